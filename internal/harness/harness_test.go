package harness

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleweave/internal/access"
	"github.com/roach88/ruleweave/internal/augment"
	"github.com/roach88/ruleweave/internal/bootstrap"
	"github.com/roach88/ruleweave/internal/engine"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/state"
)

func load(t *testing.T, path string) *Scenario {
	t.Helper()
	s, err := LoadScenario(path)
	require.NoError(t, err)
	return s
}

func TestRun_Rollup(t *testing.T) {
	result, err := Run(context.Background(), load(t, "testdata/scenarios/rollup.yaml"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, map[string]string{"order": "rec-1", "order.1": "rec-2", "order.2": "rec-3"}, result.Refs)
	require.Len(t, result.Steps, 4)
	assert.Equal(t, KindImmutable, result.Steps[3].Error)

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, "Order.modified", last.Name())
	assert.Equal(t, 1, last.Depth)
	assert.Equal(t, "rollup-3", last.Chain)
}

func TestRun_Cascade(t *testing.T) {
	result, err := Run(context.Background(), load(t, "testdata/scenarios/cascade.yaml"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	for _, ev := range result.Trace {
		assert.NotEqual(t, "Order.created", ev.Name(), "setup events are not traced")
	}
	assert.Equal(t, KindValidation, result.Steps[2].Error)
}

func TestRun_ReportsEveryFailure(t *testing.T) {
	result, err := Run(context.Background(), load(t, "testdata/bad/failing.yaml"))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected events [Order.created]")
	assert.Contains(t, result.Errors[1], "trace_count")
}

func TestRun_UnexpectedError(t *testing.T) {
	s := load(t, "testdata/scenarios/rollup.yaml")
	s.Flow = s.Flow[:1]
	s.Flow[0].Payload = map[string]any{"customer": "acme"}
	s.Flow[0].Expect = nil
	s.Assertions = nil

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	s := load(t, "testdata/scenarios/cascade.yaml")
	s.Setup[0].Payload = map[string]any{"customer": "acme"}

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute setup")
}

func TestRun_BadDefinitions(t *testing.T) {
	s := load(t, "testdata/scenarios/rollup.yaml")
	s.Definitions = t.TempDir()

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.True(t, bootstrap.IsLoadError(err))
}

func TestRunWithGolden(t *testing.T) {
	result, err := RunWithGolden(t, load(t, "testdata/scenarios/rollup.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestRunner_Resolve(t *testing.T) {
	r := boundRunner()

	id, err := r.Resolve("@order")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", id)

	id, err = r.Resolve("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", id)

	_, err = r.Resolve("@nope")
	assert.Error(t, err)
}

func TestRunner_PayloadResolvesNested(t *testing.T) {
	r := boundRunner()
	obj, err := r.payload(map[string]any{
		"order": "@order",
		"tags":  []any{"@order", "x"},
		"meta":  map[string]any{"ref": "@order", "n": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, ir.String("rec-1"), obj["order"])
	assert.Equal(t, ir.List{ir.String("rec-1"), ir.String("x")}, obj["tags"])
	meta := obj["meta"].(ir.Object)
	assert.Equal(t, ir.String("rec-1"), meta["ref"])
	assert.Equal(t, ir.Int(2), meta["n"])

	_, err = r.payload(map[string]any{"order": "@nope"})
	assert.Error(t, err)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&engine.RuntimeError{Code: engine.ErrCodeCascadeLimit}, "cascade_limit_exceeded"},
		{fmt.Errorf("wrap: %w", &engine.RuntimeError{Code: engine.ErrCodeWriteRejected, Err: &state.ImmutableFieldError{}}), "write_rejected"},
		{&state.ImmutableFieldError{Schema: "Order", Field: "note"}, KindImmutable},
		{&augment.ValidationError{}, KindValidation},
		{ir.ValidationErrors{{Field: "note", Code: ir.CodeRequired}}, KindValidation},
		{fmt.Errorf("get: %w", access.ErrNotFound), KindNotFound},
		{fmt.Errorf("boom"), KindError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}
}
