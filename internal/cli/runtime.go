package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/ruleweave/internal/bootstrap"
	"github.com/roach88/ruleweave/internal/compiler"
	"github.com/roach88/ruleweave/internal/metrics"
)

// loadDefinitions compiles dir, mapping failures to a command error that
// carries the first error's code.
func loadDefinitions(f *OutputFormatter, dir string) (*bootstrap.Definitions, error) {
	defs, err := bootstrap.LoadDefinitions(dir)
	if err != nil {
		issues := issuesFromError(err)
		_ = f.Error(issues[0].Code, issues[0].Message, issues)
		return nil, WrapExitError(ExitCommandError, "failed to load definitions", err)
	}
	f.VerboseLog("Loaded %d schema(s) and %d rule(s) from %d file(s)",
		len(defs.Spec.Schemas), defs.Spec.RuleCount(), defs.Spec.FileCount)
	return defs, nil
}

// openRuntime loads dir and opens a runtime over db. An empty db uses the
// configured database path.
func openRuntime(ctx context.Context, opts *RootOptions, f *OutputFormatter, dir, db string) (*bootstrap.Runtime, error) {
	defs, err := loadDefinitions(f, dir)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	rt, err := bootstrap.Open(ctx, opts.Config, defs, bootstrap.Options{DBPath: db, Logger: &logger})
	if err != nil {
		_ = f.Error(compiler.ErrCodeGeneric, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open runtime", err)
	}
	return rt, nil
}

// closeRuntime prints collected metrics to stderr when enabled, then
// closes the store.
func closeRuntime(f *OutputFormatter, rt *bootstrap.Runtime) {
	if rt.Gatherer != nil {
		if err := metrics.WriteText(f.GetErrWriter(), rt.Gatherer); err != nil {
			rt.Logger.Warn().Err(err).Msg("failed to write metrics")
		}
	}
	if err := rt.Close(); err != nil {
		rt.Logger.Warn().Err(err).Msg("failed to close store")
	}
}

// requireFile returns a command error when path does not exist.
func requireFile(path, what string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s not found: %s", what, path))
	}
	return nil
}
