// Package engine runs games: it wraps every player decision in a history
// event, persists it, and rolls state back or forward through that history.
//
// ARCHITECTURE:
//
// Single-Writer Request Loop:
// Engine.Run drains one Request at a time from a FIFO queue. Each request is
// resolved to quiescence (or to the next suspension point) before the next
// is dequeued, so two decisions never interleave.
//
// Request Flow:
//  1. Submit enqueues a Request and blocks on its reply
//  2. Run dequeues it and routes it to the Game
//  3. The Game snapshots its world, stack, generator and clock
//  4. The decision is applied by driving the action stack
//  5. On success the event is appended to history and committed to the store;
//     on any error the snapshot is restored and the error returned
//
// History:
// A start opens a new HistoryNode holding the pre-request snapshot; each
// continue joins the latest node. Replay restores a node's snapshot and
// re-applies its events through the same code path live requests use.
//
// Rollback:
// Only the player holding the current decision may cancel. Their own
// reversible latest event is unwound at once. Anything else opens a consent
// round that needs every seated player's vote.
//
// Determinism:
// All randomness comes from the PCG generator seeded by the setup; its state
// is part of every snapshot. Events are stamped by the logical Clock, never
// by wall time.
package engine
