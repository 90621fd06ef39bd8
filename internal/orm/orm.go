// Package orm implements the cursor-paged queries, bulk updates, and
// idempotent task save for the task lifecycle, built on top of
// internal/store.
package orm

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dojonet/subnet/internal/domain"
	"github.com/dojonet/subnet/internal/mapper"
	"github.com/dojonet/subnet/internal/metricset"
	"github.com/dojonet/subnet/internal/store"
	"github.com/dojonet/subnet/internal/taskerr"
)

// ORM wraps a *store.Store with the higher-level task-lifecycle operations.
type ORM struct {
	Store *store.Store
}

// New constructs an ORM over s.
func New(s *store.Store) *ORM {
	return &ORM{Store: s}
}

// SaveTask persists validatorTask (with its completions/criteria already
// embedded via mapper.ToValidatorTaskRow) and minerResponses in a single
// transaction. Miner responses that fail mapping are logged at debug and
// dropped — they never abort the save of the task or of the other miners.
//
// Returns ErrInvalidTask if, after filtering, zero miner responses remain:
// a task with no reachable miners cannot make progress and must not be
// persisted as an orphan.
//
// Returns nil, nil only on unexpected store failure, never on per-miner
// mapping failures — callers distinguish that case by checking the error
// return, kept separately so Go callers don't have to infer failure from a
// typed nil.
func (o *ORM) SaveTask(ctx context.Context, taskRow *store.ValidatorTaskRow, minerSynapses []domain.TaskSynapse) (*store.ValidatorTaskRow, error) {
	var validResponses []store.MinerResponseRow
	for _, ms := range minerSynapses {
		respRow, err := mapper.ToMinerResponseRow(ms, taskRow.ID)
		if err != nil {
			log.Debug("orm: dropping miner response during SaveTask", "task_id", taskRow.ID, "err", err)
			metricset.MinerResponsesDropped.Inc(1)
			continue
		}
		validResponses = append(validResponses, *respRow)
	}
	if len(validResponses) == 0 {
		return nil, taskerr.ErrInvalidTask
	}
	taskRow.MinerResponses = validResponses

	err := o.Store.WithTx(ctx, func(tx *gorm.DB) error {
		// Completions/Criteria/GroundTruths are associations on taskRow and
		// are created in the same statement set by GORM; duplicate-skip
		// semantics come from OnConflict.
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(taskRow).Error
	})
	if err != nil {
		log.Error("orm: SaveTask failed", "task_id", taskRow.ID, "err", err)
		return nil, nil
	}
	metricset.TasksSaved.Inc(1)
	return taskRow, nil
}

// SaveTaskWithoutMiners persists taskRow with no attached MinerResponses.
// Used by internal/ingress, whose submissions arrive already-completed from
// an external generator rather than through the miner hand-off flow SaveTask
// models, so the "zero valid miner responses" rejection does not apply.
func (o *ORM) SaveTaskWithoutMiners(ctx context.Context, taskRow *store.ValidatorTaskRow) (*store.ValidatorTaskRow, error) {
	err := o.Store.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(taskRow).Error
	})
	if err != nil {
		log.Error("orm: SaveTaskWithoutMiners failed", "task_id", taskRow.ID, "err", err)
		return nil, nil
	}
	metricset.TasksSaved.Inc(1)
	return taskRow, nil
}

// GetRealModelIds returns the obfuscated->real model id de-obfuscation
// table for validatorTaskID.
func (o *ORM) GetRealModelIds(ctx context.Context, validatorTaskID uuid.UUID) (map[string]string, error) {
	var rows []store.GroundTruthRow
	if err := o.Store.DB.WithContext(ctx).
		Where("validator_task_id = ?", validatorTaskID).
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "orm: GetRealModelIds query failed")
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.ObfuscatedModelID] = r.RealModelID
	}
	return out, nil
}

// MarkValidatorTaskAsProcessed bulk-updates is_processed=true for ids.
// Idempotent: re-marking an already-processed id leaves it processed. Logs
// a warning if zero rows matched (e.g. all ids unknown); already-processed
// ids still match and are counted.
func (o *ORM) MarkValidatorTaskAsProcessed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	result := o.Store.DB.WithContext(ctx).
		Model(&store.ValidatorTaskRow{}).
		Where("id IN ?", ids).
		Update("is_processed", true)
	if result.Error != nil {
		return errors.Wrap(result.Error, "orm: MarkValidatorTaskAsProcessed failed")
	}
	if result.RowsAffected == 0 {
		log.Warn("orm: MarkValidatorTaskAsProcessed matched zero rows", "ids", ids)
	} else {
		metricset.TasksProcessed.Inc(result.RowsAffected)
	}
	return nil
}

// UpdateMinerCompletions deletes every existing CompletionRow of the task
// requestID and inserts completions in their place, in one transaction
// (delete-then-insert: readers observe either the prior or the new set,
// never a partial union). This exists because a miner may accumulate
// additional workers between polls — the validator recomputes averages and
// replaces rather than merging.
//
// It takes completion rows, not miner responses: the replacement is
// per task, not per miner hotkey, and no hotkey is validated, so it never
// returns ErrInvalidMinerResponse.
func (o *ORM) UpdateMinerCompletions(ctx context.Context, requestID uuid.UUID, completions []store.CompletionRow) error {
	return o.Store.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("validator_task_id = ?", requestID).Delete(&store.CompletionRow{}).Error; err != nil {
			return errors.Wrap(err, "orm: UpdateMinerCompletions delete failed")
		}
		if len(completions) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&completions).Error; err != nil {
			return errors.Wrap(err, "orm: UpdateMinerCompletions insert failed")
		}
		return nil
	})
}

// GetNumProcessedTasks returns the count of tasks with is_processed=true.
func (o *ORM) GetNumProcessedTasks(ctx context.Context) (int64, error) {
	var count int64
	if err := o.Store.DB.WithContext(ctx).
		Model(&store.ValidatorTaskRow{}).
		Where("is_processed = ?", true).
		Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "orm: GetNumProcessedTasks failed")
	}
	return count, nil
}
