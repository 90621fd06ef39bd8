package taskerr

import (
	"testing"

	cderrors "github.com/cockroachdb/errors"
)

func TestIsBenignIteratorError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		benign bool
	}{
		{"no new unexpired", ErrNoNewUnexpiredTasksYet, true},
		{"already processed", ErrUnexpiredTasksAlreadyProcessed, true},
		{"no new expired", ErrNoNewExpiredTasksYet, true},
		{"expired window", ErrExpiredFromMoreThanExpireTo, false},
		{"invalid task", ErrInvalidTask, false},
		{"wrapped benign", cderrors.Wrap(ErrNoNewExpiredTasksYet, "orm: query"), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsBenignIteratorError(c.err); got != c.benign {
				t.Errorf("IsBenignIteratorError(%v) = %v, want %v", c.err, got, c.benign)
			}
		})
	}
}

func TestSentinelsComparableAfterWrap(t *testing.T) {
	wrapped := cderrors.Wrap(ErrInvalidMinerResponse, "mapper: missing hotkey")
	if !cderrors.Is(wrapped, ErrInvalidMinerResponse) {
		t.Fatal("wrapped error lost sentinel identity")
	}
}
