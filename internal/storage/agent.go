package storage

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mdforge/mdforge/internal/mdferrors"
	"github.com/mdforge/mdforge/internal/obslog"
)

// AgentRow is the agents table. allowed_tools and output_tags are stored as
// JSON-encoded text columns; SQLite has no native array type.
type AgentRow struct {
	ID                 int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name               string     `gorm:"column:name;not null;uniqueIndex" json:"name"`
	DisplayName        string     `gorm:"column:display_name" json:"display_name"`
	Description        string     `gorm:"column:description" json:"description"`
	Category           string     `gorm:"column:category;index" json:"category"`
	SystemPrompt       string     `gorm:"column:system_prompt" json:"system_prompt"`
	UserPromptTemplate string     `gorm:"column:user_prompt_template" json:"user_prompt_template"`
	AllowedToolsJSON   string     `gorm:"column:allowed_tools_json" json:"-"`
	MaxContextDocs     int        `gorm:"column:max_context_docs" json:"max_context_docs"`
	TimeoutSeconds     int        `gorm:"column:timeout_seconds" json:"timeout_seconds"`
	OutputTagsJSON     string     `gorm:"column:output_tags_json" json:"-"`
	IsActive           bool       `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	UsageCount         int        `gorm:"column:usage_count;not null;default:0" json:"usage_count"`
	SuccessCount       int        `gorm:"column:success_count;not null;default:0" json:"success_count"`
	FailureCount       int        `gorm:"column:failure_count;not null;default:0" json:"failure_count"`
	LastUsedAt         *time.Time `gorm:"column:last_used_at" json:"last_used_at,omitempty"`
	CreatedAt          time.Time  `gorm:"column:created_at;not null" json:"created_at"`
}

func (AgentRow) TableName() string { return "agents" }

// AllowedTools decodes the stored JSON array.
func (r AgentRow) AllowedTools() []string { return decodeStringSlice(r.AllowedToolsJSON) }

// OutputTags decodes the stored JSON array.
func (r AgentRow) OutputTags() []string { return decodeStringSlice(r.OutputTagsJSON) }

func decodeStringSlice(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeStringSlice(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return ""
	}
	return string(b)
}

// AgentDefinitionInput is the set of editable fields on an Agent Definition.
type AgentDefinitionInput struct {
	Name               string
	DisplayName        string
	Description        string
	Category           string
	SystemPrompt       string
	UserPromptTemplate string
	AllowedTools       []string
	MaxContextDocs     int
	TimeoutSeconds     int
	OutputTags         []string
}

// AgentDefinitionStore is the CRUD interface over Agent Definitions. List
// operations filter inactive definitions by default.
type AgentDefinitionStore interface {
	Create(in AgentDefinitionInput) (int64, error)
	Update(id int64, in AgentDefinitionInput) error
	Get(id int64) (AgentRow, error)
	GetByName(name string) (AgentRow, error)
	List(includeInactive bool) ([]AgentRow, error)
	SetActive(id int64, active bool) error
	RecordUsage(id int64, success bool) error
}

type agentDefinitionStore struct {
	db  *gorm.DB
	log *obslog.Logger
}

// NewAgentDefinitionStore constructs the GORM-backed AgentDefinitionStore.
func NewAgentDefinitionStore(db *gorm.DB, log *obslog.Logger) AgentDefinitionStore {
	return &agentDefinitionStore{db: db, log: log.With("store", "agent")}
}

func (s *agentDefinitionStore) Create(in AgentDefinitionInput) (int64, error) {
	row := AgentRow{
		Name:               in.Name,
		DisplayName:        in.DisplayName,
		Description:        in.Description,
		Category:           in.Category,
		SystemPrompt:       in.SystemPrompt,
		UserPromptTemplate: in.UserPromptTemplate,
		AllowedToolsJSON:   encodeStringSlice(in.AllowedTools),
		MaxContextDocs:     in.MaxContextDocs,
		TimeoutSeconds:     in.TimeoutSeconds,
		OutputTagsJSON:     encodeStringSlice(in.OutputTags),
		IsActive:           true,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *agentDefinitionStore) Update(id int64, in AgentDefinitionInput) error {
	updates := map[string]interface{}{
		"display_name":          in.DisplayName,
		"description":           in.Description,
		"category":              in.Category,
		"system_prompt":         in.SystemPrompt,
		"user_prompt_template":  in.UserPromptTemplate,
		"allowed_tools_json":    encodeStringSlice(in.AllowedTools),
		"max_context_docs":      in.MaxContextDocs,
		"timeout_seconds":       in.TimeoutSeconds,
		"output_tags_json":      encodeStringSlice(in.OutputTags),
	}
	res := s.db.Model(&AgentRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

func (s *agentDefinitionStore) Get(id int64) (AgentRow, error) {
	var row AgentRow
	err := s.db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AgentRow{}, mdferrors.ErrNotFound
	}
	return row, err
}

func (s *agentDefinitionStore) GetByName(name string) (AgentRow, error) {
	var row AgentRow
	err := s.db.Where("name = ? AND is_active = ?", name, true).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AgentRow{}, mdferrors.ErrNotFound
	}
	return row, err
}

// List orders by category, name, matching agents.py's listing order.
func (s *agentDefinitionStore) List(includeInactive bool) ([]AgentRow, error) {
	var rows []AgentRow
	q := s.db.Order("category ASC, name ASC")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&rows).Error
	return rows, err
}

func (s *agentDefinitionStore) SetActive(id int64, active bool) error {
	res := s.db.Model(&AgentRow{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}

// RecordUsage increments the monotonic usage counters. Its one caller is the
// foreground `agent run` command once its synchronous execution returns;
// executions that complete in the background are not counted.
func (s *agentDefinitionStore) RecordUsage(id int64, success bool) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"usage_count":  gorm.Expr("usage_count + 1"),
		"last_used_at": now,
	}
	if success {
		updates["success_count"] = gorm.Expr("success_count + 1")
	} else {
		updates["failure_count"] = gorm.Expr("failure_count + 1")
	}
	res := s.db.Model(&AgentRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return mdferrors.ErrNotFound
	}
	return nil
}
