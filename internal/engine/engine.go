package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/roach88/ruleweave/internal/access"
	"github.com/roach88/ruleweave/internal/idgen"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/registry"
)

// Default hop limits used when a rule needs an unbounded ancestor or
// descendant walk.
const (
	DefaultAncestorLimit   = 8
	DefaultDescendantLimit = 2
)

// Guard checks a cascade write before it is applied. The host implements
// it with the same state checks it applies to external writes. da is the
// data access of the running chain.
type Guard interface {
	CheckWrite(ctx context.Context, da access.DataAccess, target ir.Record, fields ir.Object) error
}

// Recorder receives dispatch metrics. Codes and kinds are plain strings
// so implementations need not import this package.
type Recorder interface {
	EventDispatched(schema, kind string, depth int)
	RulesMatched(phase string, n int)
	WriteApplied(schema string)
	WriteSkipped(schema string)
	ChainFinished(depth int)
	ChainFailed(code string)
}

type nopRecorder struct{}

func (nopRecorder) EventDispatched(string, string, int) {}
func (nopRecorder) RulesMatched(string, int)            {}
func (nopRecorder) WriteApplied(string)                 {}
func (nopRecorder) WriteSkipped(string)                 {}
func (nopRecorder) ChainFinished(int)                   {}
func (nopRecorder) ChainFailed(string)                  {}

// Engine dispatches mutation events against a sealed registry.
//
// Thread-safety model:
//   - Dispatch/Process/OnMutation: one call per external mutation; calls
//     for different mutations may run concurrently if the data access
//     allows it
//   - Enqueue: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Engine struct {
	reg     *registry.Registry
	data    access.DataAccess
	actions *Actions
	guard   Guard

	clock   *Clock
	chains  idgen.Generator
	settled *settledTracker
	limit   depthLimit

	ancestorLimit   int
	descendantLimit int

	logger  zerolog.Logger
	metrics Recorder

	queue *eventQueue
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxDepth sets the maximum cascade depth.
//
// Default: 16 (DefaultMaxDepth)
func WithMaxDepth(n int) EngineOption {
	return func(e *Engine) {
		e.limit = depthLimit{max: n}
	}
}

// WithAncestorLimit bounds how many ancestor levels are fetched for
// schema-restricted $parent hops. WithDescendantLimit does the same for $child.
func WithAncestorLimit(n int) EngineOption {
	return func(e *Engine) {
		e.ancestorLimit = n
	}
}

// WithDescendantLimit bounds descendant walks.
func WithDescendantLimit(n int) EngineOption {
	return func(e *Engine) {
		e.descendantLimit = n
	}
}

// WithLogger sets the engine logger. Default: zerolog.Nop().
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l.With().Str("component", "engine").Logger()
	}
}

// WithGuard sets the write guard applied to cascade writes.
func WithGuard(g Guard) EngineOption {
	return func(e *Engine) {
		e.guard = g
	}
}

// WithChainGenerator sets the chain token generator.
// Default: idgen.UUIDv7Generator.
func WithChainGenerator(g idgen.Generator) EngineOption {
	return func(e *Engine) {
		e.chains = g
	}
}

// WithClock sets the logical clock, e.g. one resumed from the event log.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) EngineOption {
	return func(e *Engine) {
		e.metrics = r
	}
}

// New creates an Engine. reg should be sealed; actions may be nil when no
// rule uses a custom action.
func New(reg *registry.Registry, data access.DataAccess, actions *Actions, opts ...EngineOption) *Engine {
	if actions == nil {
		actions = NewActions()
	}
	e := &Engine{
		reg:             reg,
		data:            data,
		actions:         actions,
		clock:           NewClock(),
		chains:          idgen.UUIDv7Generator{},
		settled:         newSettledTracker(),
		limit:           depthLimit{max: DefaultMaxDepth},
		ancestorLimit:   DefaultAncestorLimit,
		descendantLimit: DefaultDescendantLimit,
		logger:          zerolog.Nop(),
		metrics:         nopRecorder{},
		queue:           newEventQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetGuard installs the write guard after construction. The host and the
// engine reference each other, so one of them is wired late.
func (e *Engine) SetGuard(g Guard) {
	e.guard = g
}

// Registry returns the rule index the engine dispatches against.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Actions returns the custom action registry.
func (e *Engine) Actions() *Actions {
	return e.actions
}

// Clock returns the logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Result describes one dispatched chain.
type Result struct {
	Chain string
	// Events are the dispatched events in dispatch order, root events first.
	Events []ir.Event
	// Writes are the applied writes, restricted to changed fields.
	Writes []ir.Write
	// NoOps counts writes dropped because nothing would change.
	NoOps int
	// Depth is the deepest dispatched event.
	Depth int
}

// OnMutation is the event ingress: it dispatches ev and its cascade in
// its own transaction scope.
func (e *Engine) OnMutation(ctx context.Context, ev ir.Event) error {
	_, err := e.Process(ctx, ev)
	return err
}

// Process dispatches evs as one chain. When the engine's data access
// implements access.Scoped, the chain runs in a new transaction that is
// committed only if the whole cascade succeeds.
func (e *Engine) Process(ctx context.Context, evs ...ir.Event) (*Result, error) {
	scoped, ok := e.data.(access.Scoped)
	if !ok {
		return e.Dispatch(ctx, e.data, evs...)
	}
	tx, err := scoped.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin scope: %w", err)
	}
	res, err := e.Dispatch(ctx, tx, evs...)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit scope: %w", err)
	}
	return res, nil
}

// Dispatch runs evs and their cascade against da. The caller owns the
// transaction scope. All root events share one chain and depth 0.
func (e *Engine) Dispatch(ctx context.Context, da access.DataAccess, evs ...ir.Event) (*Result, error) {
	c := &chain{
		engine: e,
		da:     da,
		token:  e.chains.Generate(),
		queue:  newEventQueue(),
	}
	c.result = &Result{Chain: c.token}
	defer e.settled.Clear(c.token)

	for _, ev := range evs {
		ev.Chain = c.token
		ev.Depth = 0
		c.queue.Enqueue(ev)
	}

	err := c.run(ctx)
	if err != nil {
		var re *RuntimeError
		if errors.As(err, &re) {
			if re.Code == ErrCodeCascadeLimit {
				if osc := e.settled.Oscillating(c.token); len(osc) > 0 {
					re.Details["oscillating"] = fmt.Sprint(osc)
				}
			}
			e.metrics.ChainFailed(string(re.Code))
		} else {
			e.metrics.ChainFailed("ERROR")
		}
		e.logger.Error().
			Err(err).
			Str("chain", c.token).
			Int("events", len(c.result.Events)).
			Msg("cascade aborted")
		return c.result, err
	}

	e.metrics.ChainFinished(c.result.Depth)
	e.logger.Info().
		Str("chain", c.token).
		Int("events", len(c.result.Events)).
		Int("writes", len(c.result.Writes)).
		Int("noops", c.result.NoOps).
		Int("depth", c.result.Depth).
		Msg("cascade complete")
	return c.result, nil
}

// Enqueue submits a root event for the Run loop.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev ir.Event) bool {
	return e.queue.Enqueue(ev)
}

// QueueLen returns the number of events waiting for Run.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run processes enqueued root events one at a time, each in its own scope
// via Process. Blocks until ctx is cancelled or Stop is called.
//
// On failure the error is logged with the event context and the loop
// continues with the next event; the failed chain was rolled back.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Msg("engine starting")

	for {
		ev, ok := e.queue.TryDequeue()
		if ok {
			if _, err := e.Process(ctx, ev); err != nil {
				e.logger.Error().
					Err(err).
					Str("schema", ev.Schema).
					Str("kind", string(ev.Kind)).
					Str("record", ev.Object.ID).
					Str("code", string(ErrorCode(err))).
					Msg("event processing failed")
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info().Msg("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue.
			if e.queue.Len() == 0 && e.queueClosed() {
				e.logger.Info().Msg("engine stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Engine) queueClosed() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

// Stop closes the ingress queue; Run returns once it is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}
