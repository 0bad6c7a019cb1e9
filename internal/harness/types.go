package harness

import (
	"github.com/roach88/tabletop/internal/ir"
)

// OutcomeOK marks a step the engine accepted.
const OutcomeOK = "ok"

// TraceEvent is the deterministic summary of one step. It holds no hashes
// and no world content, so it is stable across encoding changes.
type TraceEvent struct {
	Step    int      `json:"step"`
	Op      string   `json:"op"`
	Player  string   `json:"player"`
	Action  string   `json:"action"`
	Outcome string   `json:"outcome"`
	Seq     int64    `json:"seq"`
	Active  string   `json:"active"`
	Done    bool     `json:"done"`
	Pending string   `json:"pending"`
	Selects []string `json:"selects"`
	Applied []string `json:"applied"`
	Consent bool     `json:"consent"`
}

func newTraceEvent(i int, step Step, outcome string, view ir.ActionView) TraceEvent {
	ev := TraceEvent{
		Step:    i,
		Op:      step.Op,
		Player:  step.Player,
		Action:  step.Action,
		Outcome: outcome,
		Seq:     view.Seq,
		Active:  view.ActivePlayer,
		Done:    view.Done,
		Pending: view.Action,
		Selects: []string{},
		Applied: []string{},
		Consent: view.Consent != nil,
	}
	for _, s := range view.Selects {
		ev.Selects = append(ev.Selects, s.Name)
	}
	for _, a := range view.Applied {
		ev.Applied = append(ev.Applied, a.Kind)
	}
	return ev
}

// IR renders the event for canonical encoding.
func (e TraceEvent) IR() ir.IRObject {
	return ir.IRObject{
		"step":    ir.IRInt(e.Step),
		"op":      ir.IRString(e.Op),
		"player":  ir.IRString(e.Player),
		"action":  ir.IRString(e.Action),
		"outcome": ir.IRString(e.Outcome),
		"seq":     ir.IRInt(e.Seq),
		"active":  ir.IRString(e.Active),
		"done":    ir.IRBool(e.Done),
		"pending": ir.IRString(e.Pending),
		"selects": strings(e.Selects),
		"applied": strings(e.Applied),
		"consent": ir.IRBool(e.Consent),
	}
}

func strings(ss []string) ir.IRArray {
	arr := make(ir.IRArray, len(ss))
	for i, s := range ss {
		arr[i] = ir.IRString(s)
	}
	return arr
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors lists every failed check. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Hash is the final snapshot hash of the game.
	Hash string `json:"hash,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failed check and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
