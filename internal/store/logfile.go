package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/tabletop/internal/ir"
)

// maxLogLine bounds one log line; snapshots of large worlds are long.
const maxLogLine = 64 << 20

// WriteLog writes a game as newline-delimited canonical JSON:
//
//	{"engine_version":...,"format":"tabletop-log","game_id":...,"version":1}
//	<setup blob>
//	{"node":{"index":0,"snapshot":{...}}}
//	{"event":{...}}
//	...
func WriteLog(w io.Writer, log GameLog) error {
	bw := bufio.NewWriter(w)
	header := ir.IRObject{
		"format":         ir.IRString(ir.LogFormat),
		"version":        ir.IRInt(ir.FormatVersion),
		"game_id":        ir.IRString(log.GameID),
		"engine_version": ir.IRString(ir.EngineVersion),
	}
	if err := writeLine(bw, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := writeLine(bw, log.Setup.IR()); err != nil {
		return fmt.Errorf("write setup: %w", err)
	}
	for _, node := range log.Nodes {
		if err := writeLine(bw, ir.IRObject{"node": node.IR()}); err != nil {
			return fmt.Errorf("write node %d: %w", node.Index, err)
		}
		for _, ev := range node.Events {
			if err := writeLine(bw, ir.IRObject{"event": ev.IR()}); err != nil {
				return fmt.Errorf("write event %d: %w", ev.Seq, err)
			}
		}
	}
	return bw.Flush()
}

func writeLine(w *bufio.Writer, obj ir.IRObject) error {
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

type logHeader struct {
	Format        string `json:"format"`
	Version       int    `json:"version"`
	GameID        string `json:"game_id"`
	EngineVersion string `json:"engine_version"`
}

type logEntry struct {
	Node  *ir.HistoryNode  `json:"node"`
	Event *ir.HistoryEvent `json:"event"`
}

// ReadLog parses a log written by WriteLog. Any structural problem is
// reported as ErrCorruptLog.
func ReadLog(r io.Reader) (GameLog, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLogLine)

	line := 0
	next := func() ([]byte, bool) {
		for sc.Scan() {
			line++
			if len(sc.Bytes()) > 0 {
				return sc.Bytes(), true
			}
		}
		return nil, false
	}

	raw, ok := next()
	if !ok {
		return GameLog{}, scanErr(sc, "missing header")
	}
	var header logHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return GameLog{}, fmt.Errorf("%w: line %d: header: %v", ErrCorruptLog, line, err)
	}
	if header.Format != ir.LogFormat {
		return GameLog{}, fmt.Errorf("%w: unknown format %q", ErrCorruptLog, header.Format)
	}
	if header.Version != ir.FormatVersion {
		return GameLog{}, fmt.Errorf("%w: format version %d, want %d", ErrCorruptLog, header.Version, ir.FormatVersion)
	}
	if header.GameID == "" {
		return GameLog{}, fmt.Errorf("%w: header has no game_id", ErrCorruptLog)
	}

	raw, ok = next()
	if !ok {
		return GameLog{}, scanErr(sc, "missing setup")
	}
	setup, err := unmarshalSetup(string(raw))
	if err != nil {
		return GameLog{}, fmt.Errorf("line %d: %w", line, err)
	}

	log := GameLog{GameID: header.GameID, Setup: setup}
	for {
		raw, ok := next()
		if !ok {
			break
		}
		var entry logEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return GameLog{}, fmt.Errorf("%w: line %d: %v", ErrCorruptLog, line, err)
		}
		switch {
		case entry.Node != nil && entry.Event == nil:
			if entry.Node.Index != len(log.Nodes) {
				return GameLog{}, fmt.Errorf("%w: line %d: node index %d out of sequence", ErrCorruptLog, line, entry.Node.Index)
			}
			entry.Node.Events = nil
			log.Nodes = append(log.Nodes, *entry.Node)
		case entry.Event != nil && entry.Node == nil:
			if len(log.Nodes) == 0 {
				return GameLog{}, fmt.Errorf("%w: line %d: event before first node", ErrCorruptLog, line)
			}
			if k := entry.Event.Kind; k != ir.EventStart && k != ir.EventContinue {
				return GameLog{}, fmt.Errorf("%w: line %d: event kind %q", ErrCorruptLog, line, k)
			}
			last := &log.Nodes[len(log.Nodes)-1]
			last.Events = append(last.Events, *entry.Event)
		default:
			return GameLog{}, fmt.Errorf("%w: line %d: expected exactly one of node or event", ErrCorruptLog, line)
		}
	}
	if err := sc.Err(); err != nil {
		return GameLog{}, fmt.Errorf("read log: %w", err)
	}
	return log, nil
}

func scanErr(sc *bufio.Scanner, what string) error {
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read log: %w", err)
	}
	return fmt.Errorf("%w: %s", ErrCorruptLog, what)
}
