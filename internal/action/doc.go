// Package action runs player actions and auto-resolving effects on an
// explicit stack.
//
// Actions are data records; their behaviour is looked up by kind in a
// Registry. Drive pops and executes until the top action needs a player
// decision, at which point it suspends with its partial params intact.
// Continue validates a submission against the open selects, commits it
// and drives on. Because the whole stack is plain data it is part of every
// snapshot, and a suspended drive can be restored and continued later.
package action
