// Package cost resolves what a player must pay and which rule modifiers can
// change that.
//
// A Context pairs a Cost with a source, a target and the originating
// action. Modifiers are plain data (Modifier) whose behaviour comes from a
// registered Kind. The Resolver enumerates the power set of applicable
// optional modifiers, applies each subset together with the mandatory ones
// on a forked mask view, and keeps the subsets that leave the cost, and any
// secondary costs the modifiers introduced, payable.
package cost
