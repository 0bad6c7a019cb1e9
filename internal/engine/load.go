package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/store"
)

// Load resumes a stored game: restore the latest node's snapshot and replay
// that node's events. Earlier nodes are trusted as stored.
func Load(log store.GameLog, rules *Rules, opts ...Option) (*Game, error) {
	g, err := newGame(log.GameID, log.Setup, rules, opts...)
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", log.GameID, err)
	}
	if err := checkShape(log); err != nil {
		return nil, err
	}
	if len(log.Nodes) == 0 {
		return g, nil
	}

	last := log.Nodes[len(log.Nodes)-1]
	for _, n := range log.Nodes[:len(log.Nodes)-1] {
		g.nodes = append(g.nodes, ir.HistoryNode{Index: n.Index, Snapshot: n.Snapshot, Events: n.Events})
	}
	if err := g.restore(last.Snapshot); err != nil {
		return nil, err
	}
	g.nodes = append(g.nodes, ir.HistoryNode{Index: last.Index, Snapshot: last.Snapshot})
	if err := g.replayEvents(last.Index, last.Events); err != nil {
		return nil, err
	}
	slog.Debug("game loaded", "game", g.id, "nodes", len(g.nodes), "seq", g.clock.Current())
	return g, nil
}

// Replay rebuilds a game from its setup alone, re-running every logged
// event and checking each node's recorded snapshot against the state the
// replay reached. The result never persists anything.
func Replay(log store.GameLog, rules *Rules, opts ...Option) (*Game, error) {
	opts = append(opts, WithPersister(nil))
	g, err := newGame(log.GameID, log.Setup, rules, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay game %s: %w", log.GameID, err)
	}
	if err := checkShape(log); err != nil {
		return nil, err
	}

	for _, n := range log.Nodes {
		snap, err := g.Snapshot()
		if err != nil {
			return nil, err
		}
		got, err := ir.SnapshotHash(snap)
		if err != nil {
			return nil, err
		}
		want, err := ir.SnapshotHash(n.Snapshot)
		if err != nil {
			return nil, newCorruptLogError(g.id, "node %d snapshot: %v", n.Index, err)
		}
		if got != want {
			return nil, newReplayError(g.id, n.Events[0].Seq, fmt.Errorf("node %d snapshot diverged", n.Index))
		}
		g.nodes = append(g.nodes, ir.HistoryNode{Index: n.Index, Snapshot: snap})
		if err := g.replayEvents(n.Index, n.Events); err != nil {
			return nil, err
		}
	}
	slog.Debug("game replayed", "game", g.id, "nodes", len(g.nodes), "seq", g.clock.Current())
	return g, nil
}

// checkShape enforces the structural rules replay relies on: nodes indexed
// in order, each opened by exactly one start followed only by continues.
func checkShape(log store.GameLog) error {
	for i, n := range log.Nodes {
		if n.Index != i {
			return newCorruptLogError(log.GameID, "node %d carries index %d", i, n.Index)
		}
		if len(n.Events) == 0 {
			return newCorruptLogError(log.GameID, "node %d has no events", i)
		}
		for j, e := range n.Events {
			want := ir.EventContinue
			if j == 0 {
				want = ir.EventStart
			}
			if e.Kind != want {
				return newCorruptLogError(log.GameID, "node %d event %d is %q, want %q", i, j, e.Kind, want)
			}
		}
	}
	return nil
}
