// Package tree implements the ownership tree, the only representation of
// world state.
//
// Nodes live in an arena and are addressed by Handle. Children are handle
// lists and the parent is a handle, so there are no owning back-references.
// The root owns a lookup index from (type, id) to handle that contains a
// node iff the node is reachable from the root.
//
// Serialization has two tiers: the lite form (identity, props, hidden flag,
// children) is authoritative and is what Parse reconciles against; const
// fields are derived, "$"-prefixed, and ignored on parse.
package tree
