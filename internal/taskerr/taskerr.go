// Package taskerr defines the error sentinels shared across the subnet
// packages. They are values, not types: callers compare with errors.Is,
// never a type switch, so a Store implementation can wrap them with extra
// context (cockroachdb/errors) without breaking comparability.
package taskerr

import "errors"

var (
	// ErrInvalidValidatorRequest signals a validator-side malformed input:
	// missing hotkey, missing expire_at, or expire_at not after created_at.
	ErrInvalidValidatorRequest = errors.New("invalid validator request")

	// ErrInvalidMinerResponse signals a miner response missing hotkey,
	// coldkey, or dojo_task_id. The caller drops that miner and continues.
	ErrInvalidMinerResponse = errors.New("invalid miner response")

	// ErrInvalidCompletion signals a miner response with no completion
	// responses to map into rows.
	ErrInvalidCompletion = errors.New("invalid completion: no completion responses")

	// ErrInvalidTask signals a task with no valid miner responses at all
	// after filtering; SaveTask aborts rather than persisting an orphan task.
	ErrInvalidTask = errors.New("invalid task: no valid miner responses")

	// ErrInvalidCriteriaType signals an unrecognized criteria-type enum
	// value during mapping.
	ErrInvalidCriteriaType = errors.New("invalid criteria type")

	// ErrCreateTaskFailed signals the worker-platform POST exhausted its
	// retry budget.
	ErrCreateTaskFailed = errors.New("create task failed: retries exhausted")

	// ErrNoNewUnexpiredTasksYet is a benign iterator sentinel: the legacy
	// GetUnexpiredTasks query found zero candidate rows this round.
	ErrNoNewUnexpiredTasksYet = errors.New("no new unexpired tasks yet")

	// ErrUnexpiredTasksAlreadyProcessed is a benign iterator sentinel: rows
	// exist in the window but all are already marked processed.
	ErrUnexpiredTasksAlreadyProcessed = errors.New("unexpired tasks already processed")

	// ErrNoNewExpiredTasksYet is a benign iterator sentinel for GetExpiredTasks.
	ErrNoNewExpiredTasksYet = errors.New("no new expired tasks yet")

	// ErrExpiredFromMoreThanExpireTo is a caller argument violation:
	// expireFrom must not be after expireTo.
	ErrExpiredFromMoreThanExpireTo = errors.New("expireFrom is after expireTo")
)

// IsBenignIteratorError reports whether err is one of the control-flow
// sentinels a scheduler should log-and-sleep on rather than treat as a bug.
func IsBenignIteratorError(err error) bool {
	switch {
	case errors.Is(err, ErrNoNewUnexpiredTasksYet):
		return true
	case errors.Is(err, ErrUnexpiredTasksAlreadyProcessed):
		return true
	case errors.Is(err, ErrNoNewExpiredTasksYet):
		return true
	default:
		return false
	}
}
