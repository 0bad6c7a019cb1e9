package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/metrics"
	"github.com/roach88/tabletop/internal/store"
)

// Op names a request kind.
type Op string

const (
	OpCreate   Op = "create"
	OpStart    Op = "start"
	OpContinue Op = "continue"
	OpCancel   Op = "cancel"
	OpConsent  Op = "consent"
	OpDecline  Op = "decline"
	OpView     Op = "view"
)

// Request is one externally submitted call.
type Request struct {
	Op      Op
	GameID  string
	Player  string
	Action  string     // OpStart
	Choices ir.Choices // OpContinue
	Setup   *ir.Setup  // OpCreate
}

// Response carries the resulting view or the error.
type Response struct {
	View ir.ActionView
	Err  error
}

type pending struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// Engine is the single-writer request loop over a set of games.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// Every game mutation happens on the Run goroutine, one request at a time,
// so no two requests ever interleave.
type Engine struct {
	store *store.Store
	rules *Rules
	ids   IDGenerator
	opts  []Option
	games map[string]*Game
	queue *requestQueue
}

// New creates an engine. s may be nil for an in-memory engine.
func New(s *store.Store, rules *Rules, ids IDGenerator, opts ...Option) *Engine {
	if s != nil {
		opts = append([]Option{WithPersister(s)}, opts...)
	}
	return &Engine{
		store: s,
		rules: rules,
		ids:   ids,
		opts:  opts,
		games: make(map[string]*Game),
		queue: newRequestQueue(),
	}
}

// Submit enqueues a request and waits for its response.
func (e *Engine) Submit(ctx context.Context, req Request) (ir.ActionView, error) {
	p := &pending{ctx: ctx, req: req, reply: make(chan Response, 1)}
	if !e.queue.Enqueue(p) {
		return ir.ActionView{}, ErrStopped
	}
	select {
	case r := <-p.reply:
		return r.View, r.Err
	case <-ctx.Done():
		return ir.ActionView{}, ctx.Err()
	}
}

// Run drains requests until ctx is cancelled or Stop is called.
//
// A failed request is answered with its error and the loop continues; the
// game itself has already rolled the request back.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "catalog", e.rules.Name)

	for {
		if p, ok := e.queue.TryDequeue(); ok {
			p.reply <- e.handle(p)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.failPending(e.queue.Close())
			return ctx.Err()

		case _, open := <-e.queue.Wait():
			// a closed signal channel means Stop was called
			if !open && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue; Run returns once it notices. Requests still
// queued fail with ErrStopped.
func (e *Engine) Stop() {
	e.failPending(e.queue.Close())
}

func (e *Engine) failPending(left []*pending) {
	for _, p := range left {
		p.reply <- Response{Err: ErrStopped}
	}
}

func (e *Engine) handle(p *pending) Response {
	start := time.Now()
	view, err := e.dispatch(p.ctx, p.req)
	metrics.Observe(string(p.req.Op), err, time.Since(start).Seconds(), IsFatal(err))

	switch {
	case err == nil:
	case IsFatal(err):
		slog.Error("request failed",
			"op", p.req.Op,
			"game", p.req.GameID,
			"player", p.req.Player,
			"error", err,
		)
	default:
		slog.Debug("request rejected",
			"op", p.req.Op,
			"game", p.req.GameID,
			"player", p.req.Player,
			"code", ir.ResolutionCode(err),
		)
	}
	return Response{View: view, Err: err}
}

func (e *Engine) dispatch(ctx context.Context, req Request) (ir.ActionView, error) {
	if req.Op == OpCreate {
		if req.Setup == nil {
			return ir.ActionView{}, fmt.Errorf("create: setup is required")
		}
		id := req.GameID
		if id == "" {
			id = e.ids.Generate()
		}
		g, err := NewGame(ctx, id, *req.Setup, e.rules, e.opts...)
		if err != nil {
			return ir.ActionView{}, err
		}
		e.games[id] = g
		return g.View(req.Player)
	}

	g, err := e.game(ctx, req.GameID)
	if err != nil {
		return ir.ActionView{}, err
	}
	switch req.Op {
	case OpStart:
		return g.StartAction(ctx, req.Player, req.Action)
	case OpContinue:
		return g.ContinueAction(ctx, req.Player, req.Choices)
	case OpCancel:
		return g.CancelAction(ctx, req.Player)
	case OpConsent:
		return g.ConsentToRollback(ctx, req.Player)
	case OpDecline:
		return g.DeclineRollback(ctx, req.Player)
	case OpView:
		return g.View(req.Player)
	default:
		return ir.ActionView{}, fmt.Errorf("unknown op %q", req.Op)
	}
}

// game returns a cached game or loads it from the store.
func (e *Engine) game(ctx context.Context, id string) (*Game, error) {
	if g, ok := e.games[id]; ok {
		return g, nil
	}
	if e.store == nil {
		return nil, fmt.Errorf("game %s: %w", id, store.ErrGameNotFound)
	}
	log, err := e.store.LoadGame(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := Load(log, e.rules, e.opts...)
	if err != nil {
		return nil, err
	}
	e.games[id] = g
	return g, nil
}

// Game returns a loaded game, for tooling. Only safe while Run is idle.
func (e *Engine) Game(id string) (*Game, bool) {
	g, ok := e.games[id]
	return g, ok
}

// QueueLen returns the number of waiting requests.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}
