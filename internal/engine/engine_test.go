package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/store"
	"github.com/roach88/tabletop/internal/testutil"
)

// runEngine starts Run in the background and stops it at cleanup.
func runEngine(t *testing.T, e *Engine) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	t.Cleanup(func() {
		e.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("engine did not stop")
		}
	})
}

func TestEngine_CreateAndPlay(t *testing.T) {
	ctx := context.Background()
	e := New(nil, testRules(), NewFixedGenerator("game-1"))
	runEngine(t, e)

	setup := testSetup("alice", "bob")
	view, err := e.Submit(ctx, Request{Op: OpCreate, Player: "alice", Setup: &setup})
	require.NoError(t, err)
	assert.Equal(t, "game-1", view.GameID)
	assert.Equal(t, "alice", view.ActivePlayer)

	view, err = e.Submit(ctx, Request{Op: OpStart, GameID: "game-1", Player: "alice", Action: "pick"})
	require.NoError(t, err)
	assert.Equal(t, "pick", view.Action)

	_, err = e.Submit(ctx, Request{Op: OpContinue, GameID: "game-1", Player: "alice", Choices: ir.Choices{"color": {"nope"}}})
	assert.Equal(t, ir.CodeInvalidSelection, ir.ResolutionCode(err))

	view, err = e.Submit(ctx, Request{Op: OpContinue, GameID: "game-1", Player: "alice", Choices: ir.Choices{"color": {"red"}}})
	require.NoError(t, err)
	assert.True(t, view.Done)

	view, err = e.Submit(ctx, Request{Op: OpView, GameID: "game-1", Player: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Seq)
}

func TestEngine_ConsentFlow(t *testing.T) {
	ctx := context.Background()
	e := New(nil, testRules(), NewFixedGenerator("g"))
	runEngine(t, e)

	setup := testSetup("alice", "bob")
	_, err := e.Submit(ctx, Request{Op: OpCreate, Setup: &setup})
	require.NoError(t, err)

	for _, r := range []Request{
		{Op: OpStart, GameID: "g", Player: "alice", Action: "step"},
		{Op: OpStart, GameID: "g", Player: "bob", Action: "roll"},
		{Op: OpCancel, GameID: "g", Player: "alice"},
	} {
		_, err := e.Submit(ctx, r)
		require.NoError(t, err, r.Op)
	}

	view, err := e.Submit(ctx, Request{Op: OpConsent, GameID: "g", Player: "bob"})
	require.NoError(t, err)
	assert.Nil(t, view.Consent)
	assert.Equal(t, int64(0), view.Seq)
}

func TestEngine_UnknownGame(t *testing.T) {
	e := New(nil, testRules(), NewFixedGenerator())
	runEngine(t, e)

	_, err := e.Submit(context.Background(), Request{Op: OpView, GameID: "missing"})
	assert.ErrorIs(t, err, store.ErrGameNotFound)
}

func TestEngine_CreateRequiresSetup(t *testing.T) {
	e := New(nil, testRules(), NewFixedGenerator())
	runEngine(t, e)

	_, err := e.Submit(context.Background(), Request{Op: OpCreate})
	assert.ErrorContains(t, err, "setup is required")
}

func TestEngine_LoadsFromStore(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t)

	first := New(s, testRules(), NewFixedGenerator("g"))
	runEngine(t, first)
	setup := testSetup("alice", "bob")
	_, err := first.Submit(ctx, Request{Op: OpCreate, Setup: &setup})
	require.NoError(t, err)
	_, err = first.Submit(ctx, Request{Op: OpStart, GameID: "g", Player: "alice", Action: "step"})
	require.NoError(t, err)

	second := New(s, testRules(), NewFixedGenerator())
	runEngine(t, second)
	view, err := second.Submit(ctx, Request{Op: OpView, GameID: "g", Player: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob", view.ActivePlayer)
	assert.Equal(t, int64(1), view.Seq)
	assert.Contains(t, view.Available, "roll")
}

func TestEngine_SerializesConcurrentSubmits(t *testing.T) {
	ctx := context.Background()
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = string(rune('a'+i)) + "-game"
	}
	e := New(nil, testRules(), NewFixedGenerator(ids...))
	runEngine(t, e)

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			setup := testSetup("alice")
			view, err := e.Submit(ctx, Request{Op: OpCreate, Setup: &setup})
			if err != nil {
				errs <- err
				return
			}
			if _, err := e.Submit(ctx, Request{Op: OpStart, GameID: view.GameID, Player: "alice", Action: "step"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestEngine_StopFailsLaterSubmits(t *testing.T) {
	e := New(nil, testRules(), NewFixedGenerator())
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	e.Stop()
	require.NoError(t, <-done)

	_, err := e.Submit(context.Background(), Request{Op: OpView, GameID: "g"})
	assert.True(t, errors.Is(err, ErrStopped))
}

func TestEngine_ContextCancelStopsRun(t *testing.T) {
	e := New(nil, testRules(), NewFixedGenerator())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
