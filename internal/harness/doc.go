// Package harness plays scripted games against the real engine.
//
// A scenario names a table, a list of player requests and checks on the
// final state. Every step goes through engine.Submit exactly as a client
// request would, and the harness records what the requesting player saw.
//
// # Scenario Format
//
//	name: build_and_gather
//	description: "What this scenario checks"
//	players: [alice, bob]      # or setup: table.cue
//	seed: 1
//	golden: true
//	steps:
//	  - op: start
//	    player: alice
//	    action: build
//	    expect:
//	      pending: build
//	      selects: [site]
//	  - op: continue
//	    player: alice
//	    choices: {site: [forest]}
//	  - op: continue
//	    player: alice
//	    choices: {site: [volcano]}
//	    expect: {error: INVALID_SELECTION}
//	assertions:
//	  - type: prop
//	    node: player/alice
//	    prop: score
//	    equals: 3
//	  - type: replay
//
// A step without expect must succeed. Expect fields are a subset match.
//
// # Assertion Types
//
//   - prop: a node's prop equals a value
//   - node: a node exists, or not, or sits under a given parent
//   - history: the number of history nodes and events
//   - available: the top-level actions a player may start
//   - replay: full replay and a reload from the store reach the live hash
//
// # Deterministic Testing
//
// Each scenario runs in a fresh in-memory SQLite database, under the
// scenario name as game id, with the seed from its setup. Traces carry no
// hashes and no world content, so golden files only change when behavior
// does.
package harness
