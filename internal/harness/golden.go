package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ruleweave/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string        `json:"scenario_name"`
	ChainToken   string        `json:"chain_token,omitempty"`
	Steps        []StepOutcome `json:"steps"`
	Trace        []TraceEvent  `json:"trace"`
}

// toCanonical converts a TraceSnapshot to an ir.Object.
// ir.MarshalCanonical only handles IR values.
func (s *TraceSnapshot) toCanonical() ir.Object {
	steps := make(ir.List, len(s.Steps))
	for i, st := range s.Steps {
		m := ir.Object{
			"step":   ir.Int(st.Step),
			"op":     ir.String(st.Op),
			"schema": ir.String(st.Schema),
		}
		if st.Record != "" {
			m["record"] = ir.String(st.Record)
		}
		if st.Error != "" {
			m["error"] = ir.String(st.Error)
		}
		steps[i] = m
	}

	trace := make(ir.List, len(s.Trace))
	for i, ev := range s.Trace {
		m := ir.Object{
			"step":   ir.Int(ev.Step),
			"seq":    ir.Int(ev.Seq),
			"chain":  ir.String(ev.Chain),
			"depth":  ir.Int(ev.Depth),
			"event":  ir.String(ev.Name()),
			"record": ir.String(ev.Record),
		}
		if len(ev.Modified) > 0 {
			m["modified"] = ir.Strings(ev.Modified...)
		}
		trace[i] = m
	}

	out := ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"steps":         steps,
		"trace":         trace,
	}
	if s.ChainToken != "" {
		out["chain_token"] = ir.String(s.ChainToken)
	}
	return out
}

// RunWithGolden executes a scenario and compares its step outcomes and
// trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass. Test failure (via
// goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		ChainToken:   scenario.ChainToken,
		Steps:        result.Steps,
		Trace:        result.Trace,
	}
	return result, assertSnapshot(t, snapshot)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	return assertSnapshot(t, TraceSnapshot{
		ScenarioName: scenarioName,
		Steps:        result.Steps,
		Trace:        result.Trace,
	})
}

// MarshalSnapshot renders the canonical golden form of a result. The CLI
// test command compares and rewrites golden files with it.
func MarshalSnapshot(scenarioName, chainToken string, result *Result) ([]byte, error) {
	s := TraceSnapshot{
		ScenarioName: scenarioName,
		ChainToken:   chainToken,
		Steps:        result.Steps,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(s.toCanonical())
}

func assertSnapshot(t *testing.T, s TraceSnapshot) error {
	t.Helper()

	data, err := ir.MarshalCanonical(s.toCanonical())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.ScenarioName, data)
	return nil
}
