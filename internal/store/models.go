// Package store is the persistence layer: GORM models mirroring the domain
// entities, plus a Store wrapping *gorm.DB with a bounded transaction
// budget. The Store never sees the wire TaskSynapse shape — that
// translation is the Mapper's job (internal/mapper).
package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ValidatorTaskRow is the GORM model for a ValidatorTask.
type ValidatorTaskRow struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	PreviousTaskID *uuid.UUID `gorm:"type:uuid;index"`
	Prompt         string
	TaskType       string `gorm:"index"`
	ExpireAt       time.Time `gorm:"index"`
	IsProcessed    bool      `gorm:"index;default:false"`
	CreatedAt      time.Time `gorm:"index"`

	Completions    []CompletionRow    `gorm:"constraint:OnDelete:CASCADE;"`
	GroundTruths   []GroundTruthRow   `gorm:"constraint:OnDelete:CASCADE;"`
	MinerResponses []MinerResponseRow `gorm:"constraint:OnDelete:CASCADE;"`
}

// CompletionRow is the GORM model for a Completion.
type CompletionRow struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	ValidatorTaskID uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_task_model"`
	Model           string    `gorm:"uniqueIndex:idx_task_model"`
	CompletionJSON  []byte    `gorm:"column:completion;type:jsonb"`
	Score           *float64
	RankID          *int

	Criteria []CriterionRow `gorm:"constraint:OnDelete:CASCADE;"`
}

// CriterionRow is the GORM model for a Criterion.
type CriterionRow struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompletionID uuid.UUID `gorm:"type:uuid;index"`
	CriteriaType string
	ConfigJSON   []byte `gorm:"column:config;type:jsonb"`
}

// GroundTruthRow is the GORM model for a GroundTruth.
type GroundTruthRow struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	ValidatorTaskID   uuid.UUID `gorm:"type:uuid;index"`
	ObfuscatedModelID string
	RealModelID       string
	RankID            int
}

// MinerResponseRow is the GORM model for a MinerResponse.
type MinerResponseRow struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	ValidatorTaskID uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_task_hotkey"`
	DojoTaskID      uuid.UUID `gorm:"type:uuid;index"`
	Hotkey          string    `gorm:"uniqueIndex:idx_task_hotkey"`
	Coldkey         string
}

// TableName overrides keep the schema stable regardless of Go type renames.
func (ValidatorTaskRow) TableName() string   { return "validator_tasks" }
func (CompletionRow) TableName() string      { return "completions" }
func (CriterionRow) TableName() string       { return "criteria" }
func (GroundTruthRow) TableName() string     { return "ground_truths" }
func (MinerResponseRow) TableName() string   { return "miner_responses" }

// AutoMigrate creates/updates the five related tables with their foreign
// keys and cascade semantics.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ValidatorTaskRow{},
		&CompletionRow{},
		&CriterionRow{},
		&GroundTruthRow{},
		&MinerResponseRow{},
	)
}
