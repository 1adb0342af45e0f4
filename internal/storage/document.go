package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mdforge/mdforge/internal/mdferrors"
	"github.com/mdforge/mdforge/internal/obslog"
)

// DocumentRow is the documents table.
type DocumentRow struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title     string    `gorm:"column:title;not null" json:"title"`
	Content   string    `gorm:"column:content;not null" json:"content"`
	Project   string    `gorm:"column:project" json:"project,omitempty"`
	ParentID  *int64    `gorm:"column:parent_id;index" json:"parent_id,omitempty"`
	Stage     *string   `gorm:"column:stage;index" json:"stage,omitempty"`
	PRUrl     string    `gorm:"column:pr_url" json:"pr_url,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
	IsDeleted bool      `gorm:"column:is_deleted;not null;default:false;index" json:"is_deleted"`
}

func (DocumentRow) TableName() string { return "documents" }

// Document is the domain view of a DocumentRow, with Stage typed.
type Document struct {
	ID        int64
	Title     string
	Content   string
	Project   string
	ParentID  *int64
	Stage     *Stage
	PRUrl     string
	CreatedAt time.Time
	IsDeleted bool
}

func fromDocumentRow(r DocumentRow) Document {
	d := Document{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		Project:   r.Project,
		ParentID:  r.ParentID,
		PRUrl:     r.PRUrl,
		CreatedAt: r.CreatedAt,
		IsDeleted: r.IsDeleted,
	}
	if r.Stage != nil {
		st := Stage(*r.Stage)
		d.Stage = &st
	}
	return d
}

// DocumentStore is the only way the Execution Engine and Cascade Engine
// touch document data.
type DocumentStore interface {
	Get(id int64) (Document, error)
	Create(title, content, project string, parentID *int64) (int64, error)
	SetStage(id int64, stage *Stage) error
	SetPRUrl(id int64, url string) error
	ListAtStage(stage Stage, limit int) ([]Document, error)
	ListChildren(parentID int64) ([]Document, error)
	Delete(id int64) error
}

type documentStore struct {
	db  *gorm.DB
	log *obslog.Logger
}

// NewDocumentStore constructs the GORM-backed DocumentStore.
func NewDocumentStore(db *gorm.DB, log *obslog.Logger) DocumentStore {
	return &documentStore{db: db, log: log.With("store", "document")}
}

func (s *documentStore) Get(id int64) (Document, error) {
	var row DocumentRow
	err := s.db.Where("id = ? AND is_deleted = ?", id, false).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, mdferrors.ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return fromDocumentRow(row), nil
}

func (s *documentStore) Create(title, content, project string, parentID *int64) (int64, error) {
	row := DocumentRow{
		Title:     title,
		Content:   content,
		Project:   project,
		ParentID:  parentID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *documentStore) SetStage(id int64, stage *Stage) error {
	var val interface{}
	if stage != nil {
		v := string(*stage)
		val = v
	}
	res := s.db.Model(&DocumentRow{}).Where("id = ?", id).Update("stage", val)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

func (s *documentStore) SetPRUrl(id int64, url string) error {
	res := s.db.Model(&DocumentRow{}).Where("id = ?", id).Update("pr_url", url)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

// ListAtStage returns documents at stage ordered ascending by created_at
// then id, so callers always process the oldest-waiting document first.
func (s *documentStore) ListAtStage(stage Stage, limit int) ([]Document, error) {
	var rows []DocumentRow
	q := s.db.Where("stage = ? AND is_deleted = ?", string(stage), false).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromDocumentRow(r))
	}
	return out, nil
}

// Delete soft-deletes a document: is_deleted excludes it from Get,
// ListAtStage, and ListChildren without losing its row.
func (s *documentStore) Delete(id int64) error {
	res := s.db.Model(&DocumentRow{}).Where("id = ?", id).Update("is_deleted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

func (s *documentStore) ListChildren(parentID int64) ([]Document, error) {
	var rows []DocumentRow
	err := s.db.Where("parent_id = ? AND is_deleted = ?", parentID, false).
		Order("created_at ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromDocumentRow(r))
	}
	return out, nil
}
