// Package domain holds the storage-agnostic entities of the subnet task
// model: the wire-format TaskSynapse exchanged between validator and miner,
// and the semantic types it is built from.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskType enumerates the kind of work a ValidatorTask represents.
type TaskType string

const (
	TaskTypeCodeGeneration TaskType = "CODE_GENERATION"
	TaskTypeCodeReview     TaskType = "CODE_REVIEW"
	TaskTypeTextToImage    TaskType = "TEXT_TO_IMAGE"
	TaskTypeThreeDGen      TaskType = "THREE_D_GENERATION"
)

// CriteriaType enumerates the closed set of judgement shapes a worker can
// be asked to render for a completion. Modeled as a tagged union: the Config
// shape in Criterion is interpreted according to this discriminant, never
// as a subclass hierarchy.
type CriteriaType string

const (
	CriteriaScore       CriteriaType = "SCORE"
	CriteriaMultiSelect CriteriaType = "MULTI_SELECT"
	CriteriaRanking     CriteriaType = "RANKING_CRITERIA"
	CriteriaMultiScore  CriteriaType = "MULTI_SCORE"
)

// Valid reports whether t is one of the known criteria-type variants.
func (t CriteriaType) Valid() bool {
	switch t {
	case CriteriaScore, CriteriaMultiSelect, CriteriaRanking, CriteriaMultiScore:
		return true
	default:
		return false
	}
}

// ResultStatus is the outcome status of a TaskResult.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "COMPLETED"
	ResultFailed    ResultStatus = "FAILED"
)

// ValidatorTask is the parent entity of a scoring round, owned by exactly
// one validator. expire_at must be strictly after created_at; is_processed
// flips from false to true exactly once, after aggregation.
type ValidatorTask struct {
	ID               uuid.UUID
	PreviousTaskID   *uuid.UUID
	Prompt           string
	TaskType         TaskType
	ExpireAt         time.Time
	IsProcessed      bool
	CreatedAt        time.Time
	Completions      []Completion
	GroundTruth      []GroundTruth
	MinerResponses   []MinerResponse
}

// ScoreConfig is the Config shape for CriteriaScore.
type ScoreConfig struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MultiSelectConfig is the Config shape for CriteriaMultiSelect.
type MultiSelectConfig struct {
	Options []string `json:"options"`
}

// MultiScoreConfig is the Config shape for CriteriaMultiScore.
type MultiScoreConfig struct {
	Options []string `json:"options"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
}

// Criterion describes the shape of judgement requested from workers for one
// completion. Config is criteria-type specific; see ScoreConfig,
// MultiSelectConfig, MultiScoreConfig.
type Criterion struct {
	ID           uuid.UUID
	CompletionID uuid.UUID
	CriteriaType CriteriaType
	Config       map[string]any
}

// Completion is one candidate answer for a ValidatorTask's prompt. Owned by
// exactly one ValidatorTask (cascade delete); (ValidatorTaskID, Model) is
// unique.
type Completion struct {
	ID              uuid.UUID
	ValidatorTaskID uuid.UUID
	Model           string
	Completion      map[string]any // opaque JSON: code files
	Score           *float64
	RankID          *int
	Criteria        []Criterion
}

// GroundTruth is the validator's private rank permutation over a task's
// completions. RankID is a dense 1..N permutation. ObfuscatedModelID is the
// identifier exposed to miners; RealModelID is never sent to a miner.
type GroundTruth struct {
	ValidatorTaskID   uuid.UUID
	ObfuscatedModelID string
	RealModelID       string
	RankID            int
}

// MinerResponse records that one miner (hotkey) was handed a task and is
// tracked under a platform-side dojo task id. Unique (ValidatorTaskID, Hotkey).
type MinerResponse struct {
	ID              uuid.UUID
	ValidatorTaskID uuid.UUID
	DojoTaskID      uuid.UUID
	Hotkey          string
	Coldkey         string
}

// Result is one worker's judgement for one criteria type on one completion
// set: Value maps a (possibly obfuscated) model id to its score or rank.
type Result struct {
	Type  CriteriaType       `json:"type"`
	Value map[string]float64 `json:"value"`
}

// TaskResult is the ephemeral, never-stored payload a miner returns when
// polled. It is consumed entirely inside aggregation.
type TaskResult struct {
	ID         uuid.UUID    `json:"id"`
	Status     ResultStatus `json:"status"`
	WorkerID   string       `json:"worker_id"`
	TaskID     uuid.UUID    `json:"task_id"`
	ResultData []Result     `json:"result_data"`
}

// PeerIdentity tags the origin of a TaskSynapse: axon (server-side, a
// miner answering) or dendrite (client-side, a validator asking).
type PeerIdentity struct {
	Hotkey string `json:"hotkey"`
}

// TaskSynapse is the wire object exchanged between validator and miner: the
// in-memory shape the Mapper translates to and from stored rows.
type TaskSynapse struct {
	RequestID            uuid.UUID        `json:"request_id"`
	PreviousTaskID        *uuid.UUID      `json:"previous_task_id,omitempty"`
	Prompt                string          `json:"prompt"`
	TaskType              TaskType        `json:"task_type"`
	CriteriaTypes         []CriteriaType  `json:"criteria_types"`
	CompletionResponses   []CompletionResponse `json:"completion_responses"`
	GroundTruth           map[string]int  `json:"ground_truth"` // obfuscated_model_id -> rank_id
	ExpireAt              time.Time       `json:"expire_at"`
	Dendrite              PeerIdentity    `json:"dendrite"`
	Axon                  PeerIdentity    `json:"axon"`
	DojoTaskID            uuid.UUID       `json:"dojo_task_id"`
	MinerHotkey           string          `json:"miner_hotkey,omitempty"`
	MinerColdkey          string          `json:"miner_coldkey,omitempty"`
	TaskResults           []TaskResult    `json:"task_results,omitempty"`
}

// CompletionResponse is one candidate completion as carried on the wire,
// before it is split into a Completion + Criteria rows.
type CompletionResponse struct {
	Model        string           `json:"model"`
	Completion   map[string]any   `json:"completion"`
	Criteria     []Criterion      `json:"criteria"`
}
