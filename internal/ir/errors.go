package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes rule violations.
type ErrorCode string

const (
	// CodeInvalidSelection: a key outside the choice set, a duplicate key,
	// a count outside [min,max] or an unknown select name.
	CodeInvalidSelection ErrorCode = "INVALID_SELECTION"

	// CodeMissingSelection: a continue that supplied nothing.
	CodeMissingSelection ErrorCode = "MISSING_SELECTION"

	// CodeUnpayableCost: no modifier combination makes the cost payable.
	CodeUnpayableCost ErrorCode = "UNPAYABLE_COST"

	// CodeWrongPlayer: the caller does not hold the decision.
	CodeWrongPlayer ErrorCode = "WRONG_PLAYER"

	// CodeIllegalRollback: nothing the caller may undo.
	CodeIllegalRollback ErrorCode = "ILLEGAL_ROLLBACK"

	// CodeUnknownAction: no top-level action of that name is registered.
	CodeUnknownAction ErrorCode = "UNKNOWN_ACTION"

	// CodeActionUnavailable: the action exists but can never complete now.
	CodeActionUnavailable ErrorCode = "ACTION_UNAVAILABLE"

	// CodeNothingPending: a continue with no suspended action.
	CodeNothingPending ErrorCode = "NOTHING_PENDING"

	// CodeConsentPending: a rollback consent round blocks play.
	CodeConsentPending ErrorCode = "CONSENT_PENDING"

	// CodeNoConsentRound: a vote with no open round.
	CodeNoConsentRound ErrorCode = "NO_CONSENT_ROUND"
)

// ResolutionError is the single user-facing error kind. Every rule
// violation is reported as one, and the request that raised it leaves no
// trace in the world.
type ResolutionError struct {
	Code    ErrorCode
	Message string

	// Player is the caller that triggered the error, when known.
	Player string

	// Action is the action kind involved, when known.
	Action string

	Details map[string]string
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	switch {
	case e.Player != "" && e.Action != "":
		return fmt.Sprintf("%s: %s (player=%s, action=%s)", e.Code, e.Message, e.Player, e.Action)
	case e.Player != "":
		return fmt.Sprintf("%s: %s (player=%s)", e.Code, e.Message, e.Player)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Reject builds a ResolutionError with a formatted message.
func Reject(code ErrorCode, format string, args ...any) *ResolutionError {
	return &ResolutionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithPlayer sets the player and returns the error for chaining.
func (e *ResolutionError) WithPlayer(player string) *ResolutionError {
	e.Player = player
	return e
}

// WithAction sets the action kind and returns the error for chaining.
func (e *ResolutionError) WithAction(kind string) *ResolutionError {
	e.Action = kind
	return e
}

// WithDetail adds a key/value detail and returns the error for chaining.
func (e *ResolutionError) WithDetail(key, value string) *ResolutionError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// IsResolutionError returns true if err wraps a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// ResolutionCode returns the code of a wrapped ResolutionError, or "" when
// err is not a rule violation.
func ResolutionCode(err error) ErrorCode {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
