package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mdforge/mdforge/internal/mdferrors"
	"github.com/mdforge/mdforge/internal/obslog"
)

// ExecutionStatus is the lifecycle state of an Execution Record.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether the status is a final state.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// ExecutionRow is the executions table. Records are born running (there is
// no pending state) and transition at most once to a terminal status.
type ExecutionRow struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DocID         *int64     `gorm:"column:doc_id;index" json:"doc_id,omitempty"`
	DocTitle      string     `gorm:"column:doc_title" json:"doc_title"`
	Status        string     `gorm:"column:status;not null;index" json:"status"`
	StartedAt     time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	LogFile       string     `gorm:"column:log_file;not null" json:"log_file"`
	ExitCode      *int       `gorm:"column:exit_code" json:"exit_code,omitempty"`
	WorkingDir    string     `gorm:"column:working_dir" json:"working_dir"`
	PID           *int       `gorm:"column:pid" json:"pid,omitempty"`
	CascadeRunID  *int64     `gorm:"column:cascade_run_id;index" json:"cascade_run_id,omitempty"`
	LogContentSHA string     `gorm:"column:log_content_sha" json:"log_content_sha,omitempty"`
}

func (ExecutionRow) TableName() string { return "executions" }

// ExecutionRecordStore exposes no join queries; callers compose. All writes
// go through the single gorm.DB, which serializes them.
type ExecutionRecordStore interface {
	Create(docID *int64, docTitle, logFile, workingDir string) (int64, error)
	SetPID(id int64, pid int) error
	SetStatus(id int64, status ExecutionStatus, exitCode *int) error
	SetCascadeRunID(id int64, cascadeRunID int64) error
	SetLogContentSHA(id int64, sha string) error
	Get(id int64) (ExecutionRow, error)
	ListRecent(limit int) ([]ExecutionRow, error)
	ListRunning() ([]ExecutionRow, error)
	ListByCascadeRun(cascadeRunID int64) ([]ExecutionRow, error)
}

type executionRecordStore struct {
	db  *gorm.DB
	log *obslog.Logger
}

// NewExecutionRecordStore constructs the GORM-backed ExecutionRecordStore.
func NewExecutionRecordStore(db *gorm.DB, log *obslog.Logger) ExecutionRecordStore {
	return &executionRecordStore{db: db, log: log.With("store", "execution")}
}

func (s *executionRecordStore) Create(docID *int64, docTitle, logFile, workingDir string) (int64, error) {
	row := ExecutionRow{
		DocID:      docID,
		DocTitle:   docTitle,
		Status:     string(ExecutionRunning),
		StartedAt:  time.Now().UTC(),
		LogFile:    logFile,
		WorkingDir: workingDir,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *executionRecordStore) SetPID(id int64, pid int) error {
	res := s.db.Model(&ExecutionRow{}).Where("id = ?", id).Update("pid", pid)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

// SetStatus performs the single-writer running -> {completed|failed}
// transition. completed_at is stamped iff status is terminal.
func (s *executionRecordStore) SetStatus(id int64, status ExecutionStatus, exitCode *int) error {
	updates := map[string]interface{}{"status": string(status)}
	if status.IsTerminal() {
		updates["completed_at"] = time.Now().UTC()
		updates["exit_code"] = exitCode
	}
	res := s.db.Model(&ExecutionRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

func (s *executionRecordStore) SetCascadeRunID(id int64, cascadeRunID int64) error {
	res := s.db.Model(&ExecutionRow{}).Where("id = ?", id).Update("cascade_run_id", cascadeRunID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

func (s *executionRecordStore) SetLogContentSHA(id int64, sha string) error {
	res := s.db.Model(&ExecutionRow{}).Where("id = ?", id).Update("log_content_sha", sha)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

func (s *executionRecordStore) Get(id int64) (ExecutionRow, error) {
	var row ExecutionRow
	err := s.db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ExecutionRow{}, mdferrors.ErrNotFound
	}
	return row, err
}

func (s *executionRecordStore) ListRecent(limit int) ([]ExecutionRow, error) {
	var rows []ExecutionRow
	q := s.db.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

func (s *executionRecordStore) ListRunning() ([]ExecutionRow, error) {
	var rows []ExecutionRow
	err := s.db.Where("status = ?", string(ExecutionRunning)).Order("started_at ASC").Find(&rows).Error
	return rows, err
}

func (s *executionRecordStore) ListByCascadeRun(cascadeRunID int64) ([]ExecutionRow, error) {
	var rows []ExecutionRow
	err := s.db.Where("cascade_run_id = ?", cascadeRunID).Order("started_at ASC").Find(&rows).Error
	return rows, err
}
