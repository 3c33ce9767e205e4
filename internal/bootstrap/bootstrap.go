// Package bootstrap wires the rule runtime: compiled definitions, registry,
// store, engine and host. The CLI and the scenario harness both start here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/roach88/ruleweave/internal/actions"
	"github.com/roach88/ruleweave/internal/compiler"
	"github.com/roach88/ruleweave/internal/config"
	"github.com/roach88/ruleweave/internal/engine"
	"github.com/roach88/ruleweave/internal/host"
	"github.com/roach88/ruleweave/internal/idgen"
	"github.com/roach88/ruleweave/internal/metrics"
	"github.com/roach88/ruleweave/internal/registry"
	"github.com/roach88/ruleweave/internal/store"
)

// Definitions is a compiled and sealed definitions directory.
type Definitions struct {
	Spec     *compiler.Spec
	Registry *registry.Registry
	Actions  *engine.Actions
	Cycles   []compiler.CycleWarning
}

// LoadError carries every error found while loading definitions.
type LoadError struct {
	Dir    string
	Errors []error
}

func (e *LoadError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("load %s: %v", e.Dir, e.Errors[0])
	}
	return fmt.Sprintf("load %s: %d errors, first: %v", e.Dir, len(e.Errors), e.Errors[0])
}

func (e *LoadError) Unwrap() []error {
	return e.Errors
}

// LoadDefinitions compiles dir, registers the built-in custom actions,
// builds and seals the registry and runs cycle analysis. All compile and
// registration errors are collected into a *LoadError.
func LoadDefinitions(dir string) (*Definitions, error) {
	spec, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, &LoadError{Dir: dir, Errors: errs}
	}

	reg, verrs := compiler.Register(spec)
	if len(verrs) > 0 {
		le := &LoadError{Dir: dir}
		for _, e := range verrs {
			le.Errors = append(le.Errors, e)
		}
		return nil, le
	}

	acts := engine.NewActions()
	if err := actions.Register(acts, reg); err != nil {
		return nil, fmt.Errorf("register actions: %w", err)
	}
	if verr := compiler.Seal(reg, acts.Has); verr != nil {
		return nil, &LoadError{Dir: dir, Errors: []error{*verr}}
	}

	return &Definitions{
		Spec:     spec,
		Registry: reg,
		Actions:  acts,
		Cycles:   compiler.AnalyzeCycles(reg),
	}, nil
}

// Options tunes Open. Zero values take the production defaults.
type Options struct {
	// DBPath overrides cfg.Database.Path.
	DBPath string
	// IDs generates record ids. Default: UUIDv7.
	IDs idgen.Generator
	// Chains generates cascade chain tokens. Default: UUIDv7.
	Chains idgen.Generator
	Logger *zerolog.Logger
}

// Runtime is an opened rule runtime.
type Runtime struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Definitions *Definitions
	Store       *store.Store
	Engine      *engine.Engine
	Host        *host.Host

	// Metrics is nil unless cfg.Metrics.Enabled.
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
}

// Open wires a runtime over defs using cfg. The engine clock resumes
// after the last logged event so seq stays monotonic across runs.
func Open(ctx context.Context, cfg *config.Config, defs *Definitions, opts Options) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	if err := defs.Registry.CheckDepthLimits(cfg.Engine.AncestorDepth, cfg.Engine.DescendantDepth); err != nil {
		return nil, fmt.Errorf("definitions exceed configured depth: %w", err)
	}

	path := cfg.Database.Path
	if opts.DBPath != "" {
		path = opts.DBPath
	}
	var storeOpts []store.Option
	if opts.IDs != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDs))
	}
	st, err := store.Open(path, defs.Registry, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	last, err := st.LastEventSeq(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("read event log: %w", err)
	}

	rt := &Runtime{
		Config:      cfg,
		Logger:      logger,
		Definitions: defs,
		Store:       st,
	}

	engOpts := []engine.EngineOption{
		engine.WithMaxDepth(cfg.Engine.MaxDepth),
		engine.WithAncestorLimit(cfg.Engine.AncestorDepth),
		engine.WithDescendantLimit(cfg.Engine.DescendantDepth),
		engine.WithLogger(logger),
		engine.WithClock(engine.NewClockAt(last)),
	}
	if opts.Chains != nil {
		engOpts = append(engOpts, engine.WithChainGenerator(opts.Chains))
	}
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		rt.Metrics = metrics.NewWithRegistry(promReg)
		rt.Gatherer = promReg
		engOpts = append(engOpts, engine.WithMetrics(rt.Metrics))
		logger.Debug().Msg("prometheus metrics enabled")
	}

	rt.Engine = engine.New(defs.Registry, st, defs.Actions, engOpts...)
	rt.Host = host.New(defs.Registry, st, rt.Engine,
		host.WithLogger(logger),
		host.WithAncestorLimit(cfg.Engine.AncestorDepth),
		host.WithDescendantLimit(cfg.Engine.DescendantDepth),
	)

	logger.Debug().
		Str("db", path).
		Int("schemas", len(defs.Spec.Schemas)).
		Int("rules", defs.Spec.RuleCount()).
		Int64("resume_seq", last).
		Msg("runtime opened")
	return rt, nil
}

// Close releases the store.
func (r *Runtime) Close() error {
	if r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// IsLoadError reports whether err came from LoadDefinitions.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
