package harness

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/roach88/ruleweave/internal/bootstrap"
	"github.com/roach88/ruleweave/internal/config"
	"github.com/roach88/ruleweave/internal/host"
	"github.com/roach88/ruleweave/internal/idgen"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against a fresh in-memory runtime with deterministic
// record ids ("rec-1", ...) and chain tokens.
type Harness struct {
	runtime *bootstrap.Runtime
	runner  *Runner
	logger  zerolog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger sets the logger for the runtime and harness.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Harness) {
		h.logger = l.With().Str("component", "harness").Logger()
	}
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Compile and seal the scenario's definitions
//  2. Open a fresh in-memory store, engine and host
//  3. Execute setup steps (must succeed, not traced)
//  4. Execute flow steps, checking each expectation and tracing events
//  5. Evaluate assertions
//
// An error return means the scenario could not be run at all; failed
// expectations and assertions are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}

	defs, err := bootstrap.LoadDefinitions(scenario.Definitions)
	if err != nil {
		return nil, err
	}
	rt, err := bootstrap.Open(ctx, config.Default(), defs, bootstrap.Options{
		DBPath: ":memory:",
		IDs:    idgen.NewSequence("rec"),
		Chains: testutil.NewFixedChainGenerator(scenario.ChainToken),
		Logger: &h.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open runtime: %w", err)
	}
	defer rt.Close()
	h.runtime = rt
	h.runner = NewRunner(rt.Host)

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	h.executeFlow(ctx, scenario.Flow, result)

	result.Refs = h.runner.Refs()
	actx := &AssertionContext{Ctx: ctx, Data: rt.Store, Host: rt.Host, Refs: h.runner}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup []Step) error {
	for i, step := range setup {
		if _, err := h.runner.Apply(ctx, step); err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		h.logger.Debug().Int("step", i).Msg("setup step completed")
	}
	return nil
}

// executeFlow runs every flow step. A failed expectation is recorded and
// the flow continues, so one run reports every mismatch.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) {
	for i, step := range flow {
		op, schema := step.Op()
		outcome := StepOutcome{Step: i, Op: op, Schema: schema}

		m, err := h.runner.Apply(ctx, step)
		outcome.Error = ErrorKind(err)
		var events []ir.Event
		if m != nil {
			outcome.Record = m.Record().ID
			if m.Cascade != nil {
				events = m.Cascade.Events
			}
		}
		sort.SliceStable(events, func(a, b int) bool { return events[a].Seq < events[b].Seq })
		result.AddEvents(i, events)
		result.Steps = append(result.Steps, outcome)

		want := ""
		if step.Expect != nil {
			want = step.Expect.Error
		}
		switch {
		case outcome.Error != want && want == "":
			result.AddError(fmt.Sprintf("flow[%d] %s %s: unexpected error: %v", i, op, schema, err))
		case outcome.Error != want:
			result.AddError(fmt.Sprintf("flow[%d] %s %s: expected error %q, got %q", i, op, schema, want, outcome.Error))
		case step.Expect != nil && step.Expect.Events != nil:
			got := make([]string, len(events))
			for j, ev := range events {
				got[j] = ev.Schema + "." + string(ev.Kind)
			}
			if strings.Join(got, ",") != strings.Join(step.Expect.Events, ",") {
				result.AddError(fmt.Sprintf("flow[%d] %s %s: expected events %v, got %v", i, op, schema, step.Expect.Events, got))
			}
		}

		h.logger.Debug().
			Int("step", i).
			Str("op", op).
			Str("schema", schema).
			Str("record", outcome.Record).
			Str("error", outcome.Error).
			Int("events", len(events)).
			Msg("flow step completed")
	}
}

// Runner applies steps to a host, tracking "@name" bindings.
// The CLI apply command and the harness share it.
type Runner struct {
	host *host.Host
	refs map[string]string
}

// NewRunner creates a runner over h.
func NewRunner(h *host.Host) *Runner {
	return &Runner{host: h, refs: make(map[string]string)}
}

// Refs returns a copy of the current bindings.
func (r *Runner) Refs() map[string]string {
	out := make(map[string]string, len(r.refs))
	for k, v := range r.refs {
		out[k] = v
	}
	return out
}

// Resolve maps "@name" to its bound id. Other strings are returned as is.
func (r *Runner) Resolve(s string) (string, error) {
	if !strings.HasPrefix(s, "@") {
		return s, nil
	}
	id, ok := r.refs[s[1:]]
	if !ok {
		return "", fmt.Errorf("unbound reference %q", s)
	}
	return id, nil
}

// Apply executes one step.
func (r *Runner) Apply(ctx context.Context, step Step) (*host.Mutation, error) {
	if err := ValidateStep(step); err != nil {
		return nil, err
	}
	op, schema := step.Op()

	payload, err := r.payload(step.Payload)
	if err != nil {
		return nil, err
	}
	id, err := r.Resolve(step.ID)
	if err != nil {
		return nil, err
	}

	switch op {
	case OpCreate:
		m, err := r.host.Create(ctx, schema, payload)
		if err != nil {
			return m, err
		}
		if step.As != "" {
			for i, rec := range m.Records {
				name := step.As
				if i > 0 {
					name += "." + strconv.Itoa(i)
				}
				r.refs[name] = rec.ID
			}
		}
		return m, nil
	case OpUpdate:
		return r.host.Update(ctx, schema, id, payload)
	default:
		return r.host.Delete(ctx, schema, id)
	}
}

// payload converts decoded YAML into an Object, resolving "@name" strings
// at any depth.
func (r *Runner) payload(m map[string]any) (ir.Object, error) {
	obj, err := ir.ObjectFromAny(m)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	v, err := r.resolveValue(obj)
	if err != nil {
		return nil, err
	}
	return v.(ir.Object), nil
}

func (r *Runner) resolveValue(v ir.Value) (ir.Value, error) {
	switch val := v.(type) {
	case ir.String:
		id, err := r.Resolve(string(val))
		if err != nil {
			return nil, err
		}
		return ir.String(id), nil
	case ir.List:
		out := make(ir.List, len(val))
		for i, e := range val {
			rv, err := r.resolveValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case ir.Object:
		out := make(ir.Object, len(val))
		for k, e := range val {
			rv, err := r.resolveValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}
