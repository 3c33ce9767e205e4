// Package host is the mutation layer in front of the engine.
//
// Create, Update and Delete validate a payload, persist it and dispatch the
// resulting events in a single store transaction: a failed cascade rolls
// back the external write too. Reads go through View, which applies the
// toView selection and the record's compiled $state.
//
// Host also implements engine.Guard, so writes made by actions are checked
// against the same state rules as external writes.
package host

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/roach88/ruleweave/internal/access"
	"github.com/roach88/ruleweave/internal/augment"
	"github.com/roach88/ruleweave/internal/engine"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/registry"
	"github.com/roach88/ruleweave/internal/state"
	"github.com/roach88/ruleweave/internal/store"
)

// Host validates and persists external mutations.
type Host struct {
	reg      *registry.Registry
	store    *store.Store
	engine   *engine.Engine
	composer *augment.Composer
	states   *state.Compiler

	ancestorLimit   int
	descendantLimit int

	logger zerolog.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger. Default is zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(h *Host) {
		h.logger = l.With().Str("component", "host").Logger()
	}
}

// WithAncestorLimit caps how many parent levels are loaded for state
// compilation.
func WithAncestorLimit(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.ancestorLimit = n
		}
	}
}

// WithDescendantLimit caps how many child levels are loaded for state
// compilation.
func WithDescendantLimit(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.descendantLimit = n
		}
	}
}

// New creates a Host and installs it as eng's write guard.
// reg must be sealed.
func New(reg *registry.Registry, st *store.Store, eng *engine.Engine, opts ...Option) *Host {
	h := &Host{
		reg:             reg,
		store:           st,
		engine:          eng,
		composer:        augment.NewComposer(reg),
		states:          state.NewCompiler(reg),
		ancestorLimit:   engine.DefaultAncestorLimit,
		descendantLimit: engine.DefaultDescendantLimit,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	eng.SetGuard(h)
	return h
}

// Composer returns the augmentation composer.
func (h *Host) Composer() *augment.Composer {
	return h.composer
}

// CheckWrite implements engine.Guard.
func (h *Host) CheckWrite(ctx context.Context, da access.DataAccess, target ir.Record, fields ir.Object) error {
	st, err := h.compile(ctx, da, target)
	if err != nil {
		return err
	}
	return state.CheckWrite(st, target, fields)
}

// State returns the compiled $state of a stored record.
func (h *Host) State(ctx context.Context, schemaID, id string) (ir.CompiledState, error) {
	rec, err := h.store.Get(ctx, schemaID, id)
	if err != nil {
		return ir.CompiledState{}, err
	}
	return h.compile(ctx, h.store, rec)
}

func (h *Host) compile(ctx context.Context, da access.DataAccess, rec ir.Record) (ir.CompiledState, error) {
	anc, err := h.ancestry(ctx, da, rec)
	if err != nil {
		return ir.CompiledState{}, err
	}
	return h.states.Compile(rec, anc)
}

// ancestry loads only as many related levels as rec's state rules reach.
// Schemas whose rules never use $parent or $child issue no queries.
func (h *Host) ancestry(ctx context.Context, da access.DataAccess, rec ir.Record) (state.Ancestry, error) {
	var anc state.Ancestry
	var err error
	if d := access.ResolveDepth(h.reg.AncestorDepth(rec.Schema), h.ancestorLimit); d > 0 {
		anc.Ancestors, err = access.Ancestors(ctx, da, rec, d)
		if err != nil {
			return anc, fmt.Errorf("load ancestors: %w", err)
		}
	}
	if d := access.ResolveDepth(h.reg.DescendantDepth(rec.Schema), h.descendantLimit); d > 0 {
		anc.Descendants, err = access.Descendants(ctx, da, rec, d)
		if err != nil {
			return anc, fmt.Errorf("load descendants: %w", err)
		}
	}
	return anc, nil
}
