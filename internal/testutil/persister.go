package testutil

import (
	"context"
	"sync"

	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/store"
)

// RecordingPersister keeps every history change in memory and can be told
// to fail commits.
//
// Thread-safety: all methods are safe for concurrent use.
type RecordingPersister struct {
	mu      sync.Mutex
	games   map[string]ir.Setup
	changes []store.Change
	failErr error
}

// NewRecordingPersister creates an empty persister.
func NewRecordingPersister() *RecordingPersister {
	return &RecordingPersister{games: map[string]ir.Setup{}}
}

// FailCommits makes every later Commit return err. nil restores normal
// operation.
func (p *RecordingPersister) FailCommits(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

// CreateGame records a new game. Ids are unique.
func (p *RecordingPersister) CreateGame(_ context.Context, id string, setup ir.Setup) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.games[id]; ok {
		return store.ErrGameExists
	}
	p.games[id] = setup
	return nil
}

// Commit records c unless failing.
func (p *RecordingPersister) Commit(_ context.Context, c store.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	if _, ok := p.games[c.GameID]; !ok {
		return store.ErrGameNotFound
	}
	p.changes = append(p.changes, c)
	return nil
}

// Changes returns the accepted commits in order.
func (p *RecordingPersister) Changes() []store.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]store.Change, len(p.changes))
	copy(out, p.changes)
	return out
}

// Games returns the ids of created games.
func (p *RecordingPersister) Games() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.games))
	for id := range p.games {
		ids = append(ids, id)
	}
	return ids
}
