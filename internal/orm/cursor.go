package orm

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"gorm.io/gorm"

	"github.com/dojonet/subnet/internal/store"
	"github.com/dojonet/subnet/internal/taskerr"
)

// DefaultExpiredWindow is the 6-hour lookback window expireFrom defaults
// to, relative to expireTo.
const DefaultExpiredWindow = 6 * time.Hour

// ExpiredBatch is one page of GetExpiredTasks, ordered by created_at DESC.
// HasMore is false exactly on the last batch.
type ExpiredBatch struct {
	Tasks   []store.ValidatorTaskRow
	HasMore bool
}

// GetExpiredTasks streams unprocessed, expired ValidatorTasks in
// created_at DESC order, batchSize rows at a time.
//
// Defaults: expireTo = now - taskDeadline, expireFrom = expireTo - 6h.
// Fails synchronously with ErrExpiredFromMoreThanExpireTo if expireFrom is
// after expireTo, and with ErrNoNewExpiredTasksYet if the window's count is
// zero — both checked before the returned channel is ever written to, so
// callers can treat a non-nil error as "nothing was started".
//
// The first batch and the total count are fetched concurrently (errgroup)
// as a latency optimization. Batched iteration is snapshot-consistent per
// batch only: a task
// appearing mid-iteration may or may not show up in a later batch.
func (o *ORM) GetExpiredTasks(ctx context.Context, batchSize int, taskDeadline time.Duration, expireFrom, expireTo *time.Time) (<-chan ExpiredBatch, error) {
	if batchSize <= 0 {
		batchSize = 10
	}
	to := time.Now().Add(-taskDeadline)
	if expireTo != nil {
		to = *expireTo
	}
	from := to.Add(-DefaultExpiredWindow)
	if expireFrom != nil {
		from = *expireFrom
	}
	if from.After(to) {
		return nil, taskerr.ErrExpiredFromMoreThanExpireTo
	}

	base := o.Store.DB.WithContext(ctx).
		Model(&store.ValidatorTaskRow{}).
		Where("is_processed = ?", false).
		Where("expire_at > ? AND expire_at < ?", from, to)

	var count int64
	var firstPage []store.ValidatorTaskRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return base.Session(&gorm.Session{}).Count(&count).Error
	})
	g.Go(func() error {
		return base.Session(&gorm.Session{}).
			WithContext(gctx).
			Preload("MinerResponses").
			Preload("Completions").
			Order("created_at DESC").
			Limit(batchSize).
			Find(&firstPage).Error
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "orm: GetExpiredTasks initial fetch failed")
	}
	if count == 0 {
		return nil, taskerr.ErrNoNewExpiredTasksYet
	}

	out := make(chan ExpiredBatch)
	go func() {
		defer close(out)
		offset := len(firstPage)
		hasMore := int64(offset) < count
		select {
		case out <- ExpiredBatch{Tasks: firstPage, HasMore: hasMore}:
		case <-ctx.Done():
			return
		}
		for hasMore {
			var page []store.ValidatorTaskRow
			err := base.Session(&gorm.Session{}).
				Preload("MinerResponses").
				Preload("Completions").
				Order("created_at DESC").
				Limit(batchSize).
				Offset(offset).
				Find(&page).Error
			if err != nil {
				log.Error("orm: GetExpiredTasks page fetch failed", "offset", offset, "err", err)
				return
			}
			offset += len(page)
			hasMore = int64(offset) < count && len(page) > 0
			select {
			case out <- ExpiredBatch{Tasks: page, HasMore: hasMore}:
			case <-ctx.Done():
				return
			}
			if len(page) == 0 {
				return
			}
		}
	}()
	return out, nil
}

// UnexpiredBatch is one page of GetUnexpiredTasks.
type UnexpiredBatch struct {
	Tasks   []store.ValidatorTaskRow
	HasMore bool
}

// GetUnexpiredTasks is the legacy pre-refactor equivalent of
// GetExpiredTasks: same cursor shape, but expire_at > now, is_processed =
// false, scoped to a set of validator hotkeys. It is kept because
// internal/monitor's periodic loop polls against this query, not
// GetExpiredTasks — the two queries serve
// different roles (GetExpiredTasks backs a finalize-after-deadline sweep;
// GetUnexpiredTasks backs the monitor's in-flight polling loop).
//
// Raises ErrNoNewUnexpiredTasksYet if no rows exist in scope at all, or
// ErrUnexpiredTasksAlreadyProcessed if rows exist but all are processed.
func (o *ORM) GetUnexpiredTasks(ctx context.Context, validatorHotkeys []string, batchSize int) (<-chan UnexpiredBatch, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	base := o.Store.DB.WithContext(ctx).
		Model(&store.ValidatorTaskRow{}).
		Where("expire_at > ?", time.Now())
	if len(validatorHotkeys) > 0 {
		base = base.
			Joins("JOIN miner_responses ON miner_responses.validator_task_id = validator_tasks.id").
			Where("miner_responses.hotkey IN ?", validatorHotkeys).
			Distinct()
	}

	var totalInScope int64
	if err := base.Session(&gorm.Session{}).Count(&totalInScope).Error; err != nil {
		return nil, errors.Wrap(err, "orm: GetUnexpiredTasks scope count failed")
	}
	if totalInScope == 0 {
		return nil, taskerr.ErrNoNewUnexpiredTasksYet
	}

	var unprocessedCount int64
	if err := base.Session(&gorm.Session{}).Where("is_processed = ?", false).Count(&unprocessedCount).Error; err != nil {
		return nil, errors.Wrap(err, "orm: GetUnexpiredTasks unprocessed count failed")
	}
	if unprocessedCount == 0 {
		return nil, taskerr.ErrUnexpiredTasksAlreadyProcessed
	}

	out := make(chan UnexpiredBatch)
	go func() {
		defer close(out)
		offset := 0
		for {
			var page []store.ValidatorTaskRow
			err := base.Session(&gorm.Session{}).
				Where("is_processed = ?", false).
				Preload("MinerResponses").
				Preload("Completions").
				Order("created_at DESC").
				Limit(batchSize).
				Offset(offset).
				Find(&page).Error
			if err != nil {
				log.Error("orm: GetUnexpiredTasks page fetch failed", "offset", offset, "err", err)
				return
			}
			if len(page) == 0 {
				return
			}
			offset += len(page)
			hasMore := int64(offset) < unprocessedCount
			select {
			case out <- UnexpiredBatch{Tasks: page, HasMore: hasMore}:
			case <-ctx.Done():
				return
			}
			if !hasMore {
				return
			}
		}
	}()
	return out, nil
}
