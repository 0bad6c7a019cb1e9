// Package setup compiles game setups written in CUE.
//
// A setup file declares one top-level "setup" struct:
//
//	setup: {
//		catalog: "sample"
//		seed:    42
//		players: ["alice", "bob"]
//		world: {
//			class: "Root", type: "root", id: "root"
//			props: {}
//			children: [...]
//		}
//	}
//
// The world is the lite serialized form of the ownership tree. It may be
// left out when the caller supplies a default table for the catalogue.
// Floats are rejected anywhere in the file: every value must survive
// canonical JSON unchanged.
package setup
