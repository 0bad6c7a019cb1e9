package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tabletop/internal/ir"
)

// marshalIR converts an IRObject to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalIR(obj ir.IRObject) (string, error) {
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalSetup parses a stored setup blob.
// ir.IRObject.UnmarshalJSON keeps integers exact and rejects floats.
func unmarshalSetup(data string) (ir.Setup, error) {
	var s ir.Setup
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return ir.Setup{}, fmt.Errorf("%w: setup: %v", ErrCorruptLog, err)
	}
	return s, nil
}

func unmarshalSnapshot(data string) (ir.Snapshot, error) {
	var s ir.Snapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return ir.Snapshot{}, fmt.Errorf("%w: snapshot: %v", ErrCorruptLog, err)
	}
	return s, nil
}

func unmarshalEvent(data string) (ir.HistoryEvent, error) {
	var e ir.HistoryEvent
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return ir.HistoryEvent{}, fmt.Errorf("%w: event: %v", ErrCorruptLog, err)
	}
	switch e.Kind {
	case ir.EventStart, ir.EventContinue:
	default:
		return ir.HistoryEvent{}, fmt.Errorf("%w: event %d has kind %q", ErrCorruptLog, e.Seq, e.Kind)
	}
	return e, nil
}
