package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mdforge/mdforge/internal/mdferrors"
	"github.com/mdforge/mdforge/internal/obslog"
)

// CascadeRunStatus is the lifecycle state of a Cascade Run.
type CascadeRunStatus string

const (
	CascadeRunning   CascadeRunStatus = "running"
	CascadeCompleted CascadeRunStatus = "completed"
	CascadeFailed    CascadeRunStatus = "failed"
	CascadePaused    CascadeRunStatus = "paused"
	CascadeCancelled CascadeRunStatus = "cancelled"
)

// CascadeRunRow is the cascade_runs table.
type CascadeRunRow struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	StartDocID    int64      `gorm:"column:start_doc_id;not null" json:"start_doc_id"`
	CurrentDocID  int64      `gorm:"column:current_doc_id;not null" json:"current_doc_id"`
	StartStage    string     `gorm:"column:start_stage;not null" json:"start_stage"`
	StopStage     string     `gorm:"column:stop_stage;not null" json:"stop_stage"`
	CurrentStage  string     `gorm:"column:current_stage;not null" json:"current_stage"`
	Status        string     `gorm:"column:status;not null;index" json:"status"`
	PRUrl         string     `gorm:"column:pr_url" json:"pr_url,omitempty"`
	StartedAt     time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ErrorMessage  string     `gorm:"column:error_message" json:"error_message,omitempty"`
}

func (CascadeRunRow) TableName() string { return "cascade_runs" }

// CascadeRunStore persists Cascade Runs.
type CascadeRunStore interface {
	Create(startDocID int64, startStage, stopStage Stage) (int64, error)
	Get(id int64) (CascadeRunRow, error)
	AdvanceStage(id int64, currentStage Stage, currentDocID int64) error
	SetPRUrl(id int64, url string) error
	Complete(id int64, status CascadeRunStatus, errMsg string) error
	ListRecent(limit int) ([]CascadeRunRow, error)
}

type cascadeRunStore struct {
	db  *gorm.DB
	log *obslog.Logger
}

// NewCascadeRunStore constructs the GORM-backed CascadeRunStore.
func NewCascadeRunStore(db *gorm.DB, log *obslog.Logger) CascadeRunStore {
	return &cascadeRunStore{db: db, log: log.With("store", "cascade_run")}
}

func (s *cascadeRunStore) Create(startDocID int64, startStage, stopStage Stage) (int64, error) {
	row := CascadeRunRow{
		StartDocID:   startDocID,
		CurrentDocID: startDocID,
		StartStage:   string(startStage),
		StopStage:    string(stopStage),
		CurrentStage: string(startStage),
		Status:       string(CascadeRunning),
		StartedAt:    time.Now().UTC(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *cascadeRunStore) Get(id int64) (CascadeRunRow, error) {
	var row CascadeRunRow
	err := s.db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CascadeRunRow{}, mdferrors.ErrNotFound
	}
	return row, err
}

func (s *cascadeRunStore) AdvanceStage(id int64, currentStage Stage, currentDocID int64) error {
	res := s.db.Model(&CascadeRunRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"current_stage":   string(currentStage),
		"current_doc_id":  currentDocID,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

func (s *cascadeRunStore) SetPRUrl(id int64, url string) error {
	res := s.db.Model(&CascadeRunRow{}).Where("id = ?", id).Update("pr_url", url)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

func (s *cascadeRunStore) Complete(id int64, status CascadeRunStatus, errMsg string) error {
	res := s.db.Model(&CascadeRunRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        string(status),
		"completed_at":  time.Now().UTC(),
		"error_message": errMsg,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

func (s *cascadeRunStore) ListRecent(limit int) ([]CascadeRunRow, error) {
	var rows []CascadeRunRow
	q := s.db.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}
