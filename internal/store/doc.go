// Package store provides SQLite-backed durable storage for game histories.
//
// A game is its immutable setup blob plus an ordered list of history nodes;
// each node is a pre-action snapshot followed by the events submitted until
// the next top-level start. Rollbacks truncate the tail, so the store
// exposes a single atomic Commit that deletes every node from an index on
// and inserts the replacement tail.
//
// # Ordering
//
//   - Nodes are ordered by idx, events within a node by pos
//   - Every event also carries its logical seq (never a timestamp)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Payload columns hold RFC 8785 canonical JSON; hash columns are computed
// by internal/ir/hash.go.
//
// The same history can also be written to and read from a newline-delimited
// log file (WriteLog, ReadLog) for export and observer tooling.
package store
