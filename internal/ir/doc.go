// Package ir holds the value and wire types shared by every other package.
//
// ir imports nothing internal. World props, action arguments, snapshots and
// log lines are all built from the sealed IRValue set so that a game can be
// hashed and replayed byte-for-byte.
//
// Constraints:
//   - no floats anywhere; numbers are int64
//   - ordering comes from logical sequence numbers, never wall clocks
//   - JSON tags use snake_case
package ir
