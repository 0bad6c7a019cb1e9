package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/metrics"
)

// consentRound is an open vote on rolling back to before target. It lives
// in memory only; a reloaded game starts with no open round.
type consentRound struct {
	requester string
	target    int64
	votes     map[string]bool
}

func (c *consentRound) unanimous() bool {
	for _, v := range c.votes {
		if !v {
			return false
		}
	}
	return true
}

// CancelAction asks to undo the requester's most recent decision. Only the
// player holding the current decision may ask. The latest event, when it is
// the requester's own and reversible, is unwound at once; otherwise a
// consent round opens targeting the requester's latest event.
func (g *Game) CancelAction(ctx context.Context, player string) (ir.ActionView, error) {
	if g.consent != nil {
		return ir.ActionView{}, g.consentPending(player)
	}
	if !g.setup.HasPlayer(player) {
		return ir.ActionView{}, ir.Reject(ir.CodeWrongPlayer, "%q is not seated in this game", player).WithPlayer(player)
	}
	if holder := g.decisionHolder(); player != holder {
		return ir.ActionView{}, ir.Reject(ir.CodeIllegalRollback, "only %s may cancel now", holder).WithPlayer(player)
	}

	latest, ok := g.latestEvent(func(ir.HistoryEvent) bool { return true })
	if !ok {
		return ir.ActionView{}, ir.Reject(ir.CodeIllegalRollback, "nothing to undo").WithPlayer(player)
	}
	if latest.Player == player && !latest.OneWay {
		if err := g.rollback(ctx, latest.Seq); err != nil {
			return ir.ActionView{}, err
		}
		metrics.Rollbacks.WithLabelValues("immediate").Inc()
		slog.Info("rollback", "game", g.id, "player", player, "target_seq", latest.Seq, "mode", "immediate")
		return g.View(player)
	}

	target, ok := g.latestEvent(func(e ir.HistoryEvent) bool { return e.Player == player })
	if !ok {
		return ir.ActionView{}, ir.Reject(ir.CodeIllegalRollback, "%s has no decision to undo", player).WithPlayer(player)
	}
	round := &consentRound{requester: player, target: target.Seq, votes: make(map[string]bool, len(g.setup.Players))}
	for _, p := range g.setup.Players {
		round.votes[p] = p == player
	}
	g.consent = round
	slog.Info("consent round opened", "game", g.id, "requester", player, "target_seq", target.Seq)
	return g.settleConsent(ctx, player)
}

// ConsentToRollback records a yes vote; the last one executes the rollback.
func (g *Game) ConsentToRollback(ctx context.Context, player string) (ir.ActionView, error) {
	if err := g.checkVoter(player); err != nil {
		return ir.ActionView{}, err
	}
	g.consent.votes[player] = true
	return g.settleConsent(ctx, player)
}

// DeclineRollback closes the open round without rolling back.
func (g *Game) DeclineRollback(ctx context.Context, player string) (ir.ActionView, error) {
	if err := g.checkVoter(player); err != nil {
		return ir.ActionView{}, err
	}
	slog.Info("consent round declined", "game", g.id, "player", player, "target_seq", g.consent.target)
	g.consent = nil
	metrics.Rollbacks.WithLabelValues("declined").Inc()
	return g.View(player)
}

func (g *Game) checkVoter(player string) error {
	if g.consent == nil {
		return ir.Reject(ir.CodeNoConsentRound, "no rollback vote is open").WithPlayer(player)
	}
	if !g.setup.HasPlayer(player) {
		return ir.Reject(ir.CodeWrongPlayer, "%q is not seated in this game", player).WithPlayer(player)
	}
	return nil
}

func (g *Game) settleConsent(ctx context.Context, player string) (ir.ActionView, error) {
	if !g.consent.unanimous() {
		return g.View(player)
	}
	round := g.consent
	g.consent = nil
	if err := g.rollback(ctx, round.target); err != nil {
		g.consent = round
		return ir.ActionView{}, err
	}
	metrics.Rollbacks.WithLabelValues("consent").Inc()
	slog.Info("rollback", "game", g.id, "requester", round.requester, "target_seq", round.target, "mode", "consent")
	return g.View(player)
}

// latestEvent scans history backwards for the newest event matching keep.
func (g *Game) latestEvent(keep func(ir.HistoryEvent) bool) (ir.HistoryEvent, bool) {
	for i := len(g.nodes) - 1; i >= 0; i-- {
		events := g.nodes[i].Events
		for j := len(events) - 1; j >= 0; j-- {
			if keep(events[j]) {
				return events[j], true
			}
		}
	}
	return ir.HistoryEvent{}, false
}

func (g *Game) locate(seq int64) (int, int, bool) {
	for i, n := range g.nodes {
		for j, e := range n.Events {
			if e.Seq == seq {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// rollback drops the event with the given seq and everything after it,
// restores the snapshot of its node and replays the node's earlier events.
func (g *Game) rollback(ctx context.Context, seq int64) error {
	ni, ei, ok := g.locate(seq)
	if !ok {
		return newCorruptLogError(g.id, "rollback target seq %d not in history", seq)
	}
	before, err := g.Snapshot()
	if err != nil {
		return err
	}
	saved := slices.Clone(g.nodes)
	node := g.nodes[ni]
	kept := slices.Clone(node.Events[:ei])

	g.nodes = slices.Clone(g.nodes[:ni])
	if err := g.restore(node.Snapshot); err != nil {
		return g.abort(before, saved, err)
	}
	if len(kept) > 0 {
		g.nodes = append(g.nodes, ir.HistoryNode{Index: ni, Snapshot: node.Snapshot})
		if err := g.replayEvents(ni, kept); err != nil {
			return g.abort(before, saved, err)
		}
	}
	if err := g.persist(ctx, ni); err != nil {
		return g.abort(before, saved, err)
	}
	return nil
}

// replayEvents re-runs logged events into node ni through the same code
// path as live requests. Any failure or divergence is fatal.
func (g *Game) replayEvents(ni int, events []ir.HistoryEvent) error {
	for _, ev := range events {
		if seq := g.clock.Next(); seq != ev.Seq {
			return newReplayError(g.id, ev.Seq, fmt.Errorf("clock issued %d", seq))
		}
		oneWay, err := g.apply(ev)
		if err != nil {
			return newReplayError(g.id, ev.Seq, err)
		}
		if oneWay != ev.OneWay {
			return newReplayError(g.id, ev.Seq, fmt.Errorf("one-way flag diverged"))
		}
		g.nodes[ni].Events = append(g.nodes[ni].Events, ev)
		metrics.ReplayedEvents.Inc()
	}
	return nil
}
