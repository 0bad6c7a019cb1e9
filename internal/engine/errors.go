package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/tabletop/internal/ir"
)

// ErrStopped is returned by Submit once the run loop has shut down.
var ErrStopped = errors.New("engine stopped")

// RuntimeError is a fatal, non-rule failure: the log or the code disagrees
// with the live model. It is never a player's fault and is never retried.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// GameID identifies the affected game.
	GameID string

	// Seq is the event being replayed, 0 when not applicable.
	Seq int64

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeReplayDiverged means re-running a logged event failed or
	// produced a different state than the log recorded.
	ErrCodeReplayDiverged RuntimeErrorCode = "REPLAY_DIVERGED"

	// ErrCodeCorruptLog means the stored history is structurally invalid.
	ErrCodeCorruptLog RuntimeErrorCode = "CORRUPT_LOG"

	// ErrCodeRestoreFailed means a snapshot could not be applied.
	ErrCodeRestoreFailed RuntimeErrorCode = "RESTORE_FAILED"
)

func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.GameID != "" {
		msg += fmt.Sprintf(" (game=%s", e.GameID)
		if e.Seq != 0 {
			msg += fmt.Sprintf(", seq=%d", e.Seq)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsReplayError reports whether err is a replay divergence.
func IsReplayError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeReplayDiverged
}

// IsCorruptLog reports whether err is a corrupt-log error.
func IsCorruptLog(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == ErrCodeCorruptLog
}

// IsFatal reports whether err is anything other than a rule violation.
func IsFatal(err error) bool {
	return err != nil && !ir.IsResolutionError(err)
}

func newReplayError(gameID string, seq int64, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeReplayDiverged,
		Message: "logged event did not replay",
		GameID:  gameID,
		Seq:     seq,
		Err:     err,
	}
}

func newCorruptLogError(gameID, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCorruptLog,
		Message: fmt.Sprintf(format, args...),
		GameID:  gameID,
	}
}

func newRestoreError(gameID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeRestoreFailed,
		Message: "snapshot could not be restored",
		GameID:  gameID,
		Err:     err,
	}
}
