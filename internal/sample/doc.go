// Package sample is a small rule catalogue used by tests, scenarios and the
// CLI demo.
//
// Players gather resources from sites, build on free sites (paying through
// the modifier solver), draw cards from a shared deck and end their turn.
// Drawing is one-way: it reveals hidden information, so undoing it needs
// every player's consent.
//
// World layout:
//
//	root
//	├── player/<id>   resources, supply, score; owns modifiers and drawn cards
//	├── site/<id>     yield, build cost; holds one building and site modifiers
//	└── deck/main     cards, drawn at random
package sample
