package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/roach88/tabletop/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rule violation, failed scenario, replay mismatch
	ExitCommandError = 2 // Command error (bad paths, unknown game, corrupt log)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"` // resolution code or E_* command error
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// View outputs what a player sees. Text mode leaves the world out unless
// verbose.
func (f *OutputFormatter) View(v ir.ActionView) error {
	if f.Format == "json" {
		return f.Success(v)
	}
	fmt.Fprint(f.Writer, renderView(v))
	if f.Verbose {
		data, err := json.MarshalIndent(v.World, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(f.Writer, "world:\n%s\n", data)
	}
	return nil
}

// Rejected reports a rule violation and returns the matching exit error.
func (f *OutputFormatter) Rejected(err error) error {
	code := string(ir.ResolutionCode(err))
	var re *ir.ResolutionError
	message := err.Error()
	if errors.As(err, &re) {
		message = re.Message
	}
	if outErr := f.Error(code, message, nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, "request rejected", err)
}

func renderView(v ir.ActionView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "game %s  seq %d  active %s\n", v.GameID, v.Seq, v.ActivePlayer)
	if v.Action != "" {
		fmt.Fprintf(&b, "waiting: %s (%s)\n", v.Action, v.Player)
		for _, s := range v.Selects {
			keys := make([]string, len(s.Choices))
			for i, c := range s.Choices {
				keys[i] = c.Key
				if c.Label != "" && c.Label != c.Key {
					keys[i] = fmt.Sprintf("%s (%s)", c.Key, c.Label)
				}
			}
			fmt.Fprintf(&b, "  %s: pick %d..%d of %s\n", s.Name, s.Min, s.Max, strings.Join(keys, ", "))
			if s.Prompt != "" {
				fmt.Fprintf(&b, "    %s\n", s.Prompt)
			}
		}
	}
	if len(v.Applied) > 0 {
		kinds := make([]string, len(v.Applied))
		for i, a := range v.Applied {
			kinds[i] = a.Kind
		}
		fmt.Fprintf(&b, "applied: %s\n", strings.Join(kinds, ", "))
	}
	if len(v.Available) > 0 {
		fmt.Fprintf(&b, "available: %s\n", strings.Join(v.Available, ", "))
	}
	if c := v.Consent; c != nil {
		var yes, waiting []string
		for p, ok := range c.Votes {
			if ok {
				yes = append(yes, p)
			} else {
				waiting = append(waiting, p)
			}
		}
		slices.Sort(yes)
		slices.Sort(waiting)
		fmt.Fprintf(&b, "rollback to before seq %d requested by %s; agreed: %s; waiting on: %s\n",
			c.TargetSeq, c.Requester, strings.Join(yes, ", "), strings.Join(waiting, ", "))
	}
	return b.String()
}
