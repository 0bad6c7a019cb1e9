package ir

import (
	"fmt"
	"slices"
)

// Setup is the immutable blob a game is created from. Replaying a log always
// starts by rebuilding the world from it.
type Setup struct {
	Catalog string   `json:"catalog"`
	Players []string `json:"players"`
	Seed    int64    `json:"seed"`
	World   IRObject `json:"world"`
}

// IR returns the setup as an IRObject for hashing and logging.
func (s Setup) IR() IRObject {
	players := make(IRArray, len(s.Players))
	for i, p := range s.Players {
		players[i] = IRString(p)
	}
	world := s.World
	if world == nil {
		world = IRObject{}
	}
	return IRObject{
		"catalog": IRString(s.Catalog),
		"players": players,
		"seed":    IRInt(s.Seed),
		"world":   world,
	}
}

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the setup for structural problems.
// Returns all errors (not fail-fast).
func (s Setup) Validate() []ValidationError {
	var errs []ValidationError

	if s.Catalog == "" {
		errs = append(errs, ValidationError{Field: "catalog", Message: "rule catalogue is required"})
	}
	if len(s.Players) == 0 {
		errs = append(errs, ValidationError{Field: "players", Message: "at least one player is required"})
	}
	seen := make(map[string]bool, len(s.Players))
	for i, p := range s.Players {
		if p == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("players[%d]", i),
				Message: "player id must not be empty",
			})
			continue
		}
		if seen[p] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("players[%d]", i),
				Message: fmt.Sprintf("duplicate player id %q", p),
			})
		}
		seen[p] = true
	}
	if s.World == nil {
		errs = append(errs, ValidationError{Field: "world", Message: "initial world is required"})
	}
	return errs
}

// HasPlayer reports whether id is seated in the game.
func (s Setup) HasPlayer(id string) bool {
	return slices.Contains(s.Players, id)
}

// Snapshot is the complete resumable state of a game at one point: the lite
// world tree, the action stack, the random generator state and the logical
// clock.
type Snapshot struct {
	World IRObject `json:"world"`
	Stack IRObject `json:"stack"`
	RNG   string   `json:"rng"`
	Seq   int64    `json:"seq"`
}

// IR returns the snapshot as an IRObject.
func (s Snapshot) IR() IRObject {
	world, stack := s.World, s.Stack
	if world == nil {
		world = IRObject{}
	}
	if stack == nil {
		stack = IRObject{}
	}
	return IRObject{
		"world": world,
		"stack": stack,
		"rng":   IRString(s.RNG),
		"seq":   IRInt(s.Seq),
	}
}

// EventKind distinguishes the two externally submitted decisions.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventContinue EventKind = "continue"
)

// Choices maps a select name to the chosen choice keys.
type Choices map[string][]string

// IR returns the choices as an IRObject of string arrays.
func (c Choices) IR() IRObject {
	obj := make(IRObject, len(c))
	for name, keys := range c {
		arr := make(IRArray, len(keys))
		for i, k := range keys {
			arr[i] = IRString(k)
		}
		obj[name] = arr
	}
	return obj
}

// ChoicesFromIR converts an IRObject of string arrays back to Choices.
func ChoicesFromIR(obj IRObject) (Choices, error) {
	out := make(Choices, len(obj))
	for name, v := range obj {
		arr, ok := v.(IRArray)
		if !ok {
			return nil, fmt.Errorf("choices[%q]: expected array, got %T", name, v)
		}
		keys := make([]string, len(arr))
		for i, e := range arr {
			s, ok := e.(IRString)
			if !ok {
				return nil, fmt.Errorf("choices[%q][%d]: expected string, got %T", name, i, e)
			}
			keys[i] = string(s)
		}
		out[name] = keys
	}
	return out, nil
}

// HistoryEvent is one externally submitted start or continue call.
type HistoryEvent struct {
	Seq     int64     `json:"seq"`
	Player  string    `json:"player"`
	Kind    EventKind `json:"kind"`
	Action  string    `json:"action,omitempty"`
	Choices Choices   `json:"choices,omitempty"`
	OneWay  bool      `json:"one_way"`
}

// IR returns the event as an IRObject.
func (e HistoryEvent) IR() IRObject {
	obj := IRObject{
		"seq":     IRInt(e.Seq),
		"player":  IRString(e.Player),
		"kind":    IRString(e.Kind),
		"one_way": IRBool(e.OneWay),
	}
	if e.Action != "" {
		obj["action"] = IRString(e.Action)
	}
	if len(e.Choices) > 0 {
		obj["choices"] = e.Choices.IR()
	}
	return obj
}

// HistoryNode pairs the snapshot taken before a top-level start with the
// ordered events submitted until the next start.
type HistoryNode struct {
	Index    int            `json:"index"`
	Snapshot Snapshot       `json:"snapshot"`
	Events   []HistoryEvent `json:"events"`
}

// IR returns the node header (index and snapshot) without its events.
// Log files write events on their own lines.
func (n HistoryNode) IR() IRObject {
	return IRObject{
		"index":    IRInt(int64(n.Index)),
		"snapshot": n.Snapshot.IR(),
	}
}

// ChoiceView is one selectable option.
type ChoiceView struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// SelectView is a pending multiple-choice prompt.
type SelectView struct {
	Name    string       `json:"name"`
	Prompt  string       `json:"prompt,omitempty"`
	Choices []ChoiceView `json:"choices"`
	Min     int          `json:"min"`
	Max     int          `json:"max"`
	Default []string     `json:"default,omitempty"`
}

// AppliedEffect records one effect resolved in the current chain.
type AppliedEffect struct {
	Kind   string   `json:"kind"`
	Args   IRObject `json:"args,omitempty"`
	Result IRValue  `json:"result,omitempty"`
}

// ConsentView describes an open rollback consent round.
type ConsentView struct {
	Requester string          `json:"requester"`
	TargetSeq int64           `json:"target_seq"`
	Votes     map[string]bool `json:"votes"`
}

// ActionView is what a client sees after every request.
type ActionView struct {
	GameID       string          `json:"game_id"`
	Seq          int64           `json:"seq"`
	ActivePlayer string          `json:"active_player"`
	Action       string          `json:"action,omitempty"`
	Player       string          `json:"player,omitempty"`
	Selects      []SelectView    `json:"selects,omitempty"`
	Applied      []AppliedEffect `json:"applied,omitempty"`
	Available    []string        `json:"available,omitempty"`
	Consent      *ConsentView    `json:"consent,omitempty"`
	Done         bool            `json:"done"`
	World        IRObject        `json:"world"`
}
