package action

import (
	"errors"
	"fmt"
)

// DefaultMaxSteps bounds the actions one request may execute.
const DefaultMaxSteps = 1000

// Quota counts executed actions for one drive and enforces a limit.
//
// Rules that keep scheduling work (a hook that always schedules another
// effect, say) would otherwise never return control to the caller.
type Quota struct {
	limit   int
	current int
}

// NewQuota creates a quota. A non-positive limit means DefaultMaxSteps.
func NewQuota(limit int) *Quota {
	if limit <= 0 {
		limit = DefaultMaxSteps
	}
	return &Quota{limit: limit}
}

// Check counts one step and fails once the limit is passed.
func (q *Quota) Check(kind string) error {
	q.current++
	if q.current > q.limit {
		return &StepsExceededError{Kind: kind, Steps: q.current, Limit: q.limit}
	}
	return nil
}

// Current returns the steps taken so far.
func (q *Quota) Current() int {
	return q.current
}

// StepsExceededError aborts a request whose drive ran past the limit.
// It is fatal: the engine restores the pre-request snapshot.
type StepsExceededError struct {
	Kind  string // action about to execute when the limit tripped
	Steps int
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("drive exceeded max steps at %s: %d steps > %d limit", e.Kind, e.Steps, e.Limit)
}

// IsStepsExceededError reports whether err wraps a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
