package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	return env
}

func TestValidate_Valid(t *testing.T) {
	out, _, err := execute(t, "validate", "testdata/defs")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Definitions valid (2 schema(s), 7 rule(s))")
	// item-rollup and order-start re-trigger each other
	assert.Contains(t, out, "⚠")
}

func TestValidate_JSON(t *testing.T) {
	out, _, err := execute(t, "validate", "testdata/defs", "--format", "json")
	require.NoError(t, err)

	env := decode[ValidationResult](t, out)
	assert.Equal(t, "ok", env.Status)
	assert.True(t, env.Data.Valid)
	assert.Equal(t, 2, env.Data.Schemas)
	assert.Equal(t, 7, env.Data.Rules)
	assert.NotEmpty(t, env.Data.Warnings)
}

func TestValidate_InvalidDefinitions(t *testing.T) {
	dir := t.TempDir()
	src := `schema: Order: {
	total: "float"
	status: {type: "string", enum: ["a", "b"]}
}

state: "bad-field": {
	schema: "Order"
	when: [{path: "missing", value: "a"}]
	onFields: "status"
	immutable: true
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defs.cue"), []byte(src), 0o644))

	out, _, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")

	out, _, err = execute(t, "validate", dir, "--format", "json")
	require.Error(t, err)
	env := decode[ValidationResult](t, out)
	assert.Equal(t, "error", env.Status)
	assert.False(t, env.Data.Valid)
	assert.NotEmpty(t, env.Data.Errors)
	require.NotNil(t, env.Error)
}

func TestValidate_MissingDirectory(t *testing.T) {
	_, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompose_Text(t *testing.T) {
	out, _, err := execute(t, "compose", "testdata/defs", "--schema", "Order")
	require.NoError(t, err)
	assert.Contains(t, out, "Order toCreate (slf)")
	assert.Contains(t, out, "fields: customer, note")
	assert.Contains(t, out, "items -> OrderItem many [1..*]")
}

func TestCompose_NestedJSON(t *testing.T) {
	out, _, err := execute(t, "compose", "testdata/defs",
		"--schema", "OrderItem", "--context", "nested", "--format", "json")
	require.NoError(t, err)

	env := decode[map[string]any](t, out)
	assert.Equal(t, "ok", env.Status)
	assert.ElementsMatch(t, []any{"sku", "quantity", "status"}, env.Data["fields"])
}

func TestCompose_InvalidTarget(t *testing.T) {
	_, _, err := execute(t, "compose", "testdata/defs", "--schema", "Order", "--target", "toDelete")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "toDelete")
}

func TestApplyStateTrace(t *testing.T) {
	db := filepath.Join(t.TempDir(), "orders.db")

	out, _, err := execute(t, "apply", "testdata/defs", "testdata/orders.yaml", "--db", db, "--format", "json")
	require.NoError(t, err)
	applied := decode[ApplyResult](t, out)
	assert.Equal(t, "ok", applied.Status)
	require.Len(t, applied.Data.Steps, 3)
	assert.Equal(t, []string{"Order.created", "OrderItem.created", "OrderItem.created"}, applied.Data.Steps[0].Events)
	assert.Equal(t, []string{"OrderItem.modified", "Order.modified"}, applied.Data.Steps[2].Events)

	orderID := applied.Data.Refs["order"]
	require.NotEmpty(t, orderID)
	assert.Equal(t, orderID, applied.Data.Steps[0].Record)

	t.Run("state", func(t *testing.T) {
		out, _, err := execute(t, "state", "testdata/defs", "--db", db,
			"--schema", "Order", "--id", orderID, "--format", "json")
		require.NoError(t, err)

		env := decode[map[string]any](t, out)
		fields := env.Data["fields"].(map[string]any)
		assert.Equal(t, "completed", fields["status"])
		assert.Equal(t, "acme", fields["customer"])

		st := env.Data["$state"].(map[string]any)["fields"].(map[string]any)
		note := st["note"].(map[string]any)
		assert.Equal(t, true, note["immutable"])
	})

	t.Run("state text", func(t *testing.T) {
		out, _, err := execute(t, "state", "testdata/defs", "--db", db, "--schema", "Order", "--id", orderID)
		require.NoError(t, err)
		assert.Contains(t, out, "Order "+orderID)
		assert.Contains(t, out, "status = completed")
		assert.Contains(t, out, "$state:")
		assert.Contains(t, out, "note: immutable")
	})

	t.Run("state not found", func(t *testing.T) {
		_, _, err := execute(t, "state", "testdata/defs", "--db", db, "--schema", "Order", "--id", "missing")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("trace chains", func(t *testing.T) {
		out, _, err := execute(t, "trace", "--db", db, "--format", "json")
		require.NoError(t, err)

		env := decode[ChainList](t, out)
		require.Len(t, env.Data.Chains, 3)
		assert.Equal(t, applied.Data.Steps[0].Chain, env.Data.Chains[0])
		assert.Equal(t, applied.Data.Steps[2].Chain, env.Data.Chains[2])
	})

	t.Run("trace chain", func(t *testing.T) {
		out, _, err := execute(t, "trace", "--db", db, "--chain", applied.Data.Steps[2].Chain, "--format", "json")
		require.NoError(t, err)

		env := decode[TraceResult](t, out)
		require.Len(t, env.Data.Timeline, 2)
		assert.Equal(t, "OrderItem.modified", env.Data.Timeline[0].Event)
		assert.Equal(t, "Order.modified", env.Data.Timeline[1].Event)
		assert.Equal(t, orderID, env.Data.Timeline[1].Record)
		assert.Equal(t, TraceStats{TotalEvents: 2, RootEvents: 1, MaxDepth: 1, Records: 2}, env.Data.Stats)
	})

	t.Run("trace record text", func(t *testing.T) {
		out, _, err := execute(t, "trace", "--db", db, "--record", orderID)
		require.NoError(t, err)
		assert.Contains(t, out, "History of Record:")
		assert.Contains(t, out, "=== Timeline ===")
		assert.Contains(t, out, "Order.created")
		assert.Contains(t, out, "Order.modified")
		assert.Contains(t, out, "Total Events: 2")
	})

	t.Run("trace chain and record exclusive", func(t *testing.T) {
		_, _, err := execute(t, "trace", "--db", db, "--chain", "a", "--record", "b")
		require.Error(t, err)
	})
}

func TestApply_StopsAtRejectedStep(t *testing.T) {
	db := filepath.Join(t.TempDir(), "orders.db")

	out, _, err := execute(t, "apply", "testdata/defs", "testdata/late-note.yaml", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ [0] create Order")
	assert.Contains(t, out, "✓ [1] update OrderItem")
	assert.Contains(t, out, "✗ [2] update Order: immutable")
	assert.NotContains(t, out, "[3] delete")
}

func TestApply_InvalidMutationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	src := "steps:\n  - update: Order\n    payload: { note: x }\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	_, _, err := execute(t, "apply", "testdata/defs", path, "--db", filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "update requires id")
}

func TestLoadMutationFile(t *testing.T) {
	mf, err := LoadMutationFile("testdata/orders.yaml")
	require.NoError(t, err)
	require.Len(t, mf.Steps, 3)
	assert.Equal(t, "order", mf.Steps[0].As)
	assert.Equal(t, "@order.1", mf.Steps[1].ID)

	dir := t.TempDir()
	cases := map[string]string{
		"empty":   "steps: []\n",
		"expect":  "steps:\n  - delete: Order\n    id: x\n    expect: { error: immutable }\n",
		"unknown": "steps:\n  - create: Order\n    paylod: {}\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
			_, err := LoadMutationFile(path)
			assert.Error(t, err)
		})
	}
}

func TestStateAndTrace_MissingDatabase(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.db")

	_, _, err := execute(t, "state", "testdata/defs", "--db", missing, "--schema", "Order", "--id", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "trace", "--db", missing)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_PassesWithGolden(t *testing.T) {
	out, _, err := execute(t, "test", "testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ order_rollup")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTest_Filter(t *testing.T) {
	out, _, err := execute(t, "test", "testdata/scenarios", "--filter", "cascade*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	_, _, err = execute(t, "test", "testdata/scenarios", "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_UpdateAndMismatch(t *testing.T) {
	defs, err := filepath.Abs("testdata/defs")
	require.NoError(t, err)
	dir := t.TempDir()
	src := `name: create_only
description: Creating an order creates its items
definitions: ` + defs + `
chain_token: tmp
flow:
  - create: Order
    as: order
    payload: { customer: acme, items: [{ sku: a, quantity: 1 }] }
assertions:
  - type: trace_count
    event: OrderItem.created
    count: 1
`
	scenario := filepath.Join(dir, "create.yaml")
	require.NoError(t, os.WriteFile(scenario, []byte(src), 0o644))

	_, _, err = execute(t, "test", scenario, "--update")
	require.NoError(t, err)
	golden := filepath.Join(dir, "golden", "create.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"create_only"`)
	assert.Contains(t, string(data), `"chain":"tmp-1"`)

	out, _, err := execute(t, "test", dir, "--format", "json")
	require.NoError(t, err)
	env := decode[TestResult](t, out)
	assert.Equal(t, 1, env.Data.Passed)

	require.NoError(t, os.WriteFile(golden, []byte("{}"), 0o644))
	out, _, err = execute(t, "test", scenario)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ create_only")
	assert.Contains(t, out, "does not match golden file")
}

func TestTest_FailingScenario(t *testing.T) {
	defs, err := filepath.Abs("testdata/defs")
	require.NoError(t, err)
	scenario := filepath.Join(t.TempDir(), "wrong.yaml")
	src := `name: wrong_expectation
description: Expects an error that never happens
definitions: ` + defs + `
flow:
  - create: Order
    payload: { customer: acme, items: [{ sku: a, quantity: 1 }] }
    expect: { error: validation }
assertions: []
`
	require.NoError(t, os.WriteFile(scenario, []byte(src), 0o644))

	out, _, err := execute(t, "test", scenario, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	env := decode[TestResult](t, out)
	assert.Equal(t, "error", env.Status)
	require.Len(t, env.Data.Scenarios, 1)
	assert.False(t, env.Data.Scenarios[0].Pass)
	assert.Contains(t, env.Data.Scenarios[0].Errors[0], `expected error "validation"`)
}

func TestTest_MissingPath(t *testing.T) {
	_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "01900000...0000abcd", truncateID("0190000000000000000000000000abcd"))
}

func TestFormatArgs(t *testing.T) {
	assert.Equal(t, "{}", formatArgs(nil))
	got := formatArgs(map[string]any{"b": []any{1, "x"}, "a": nil, "c": map[string]any{"d": true}})
	assert.Equal(t, "{a=null, b=[1, x], c={d=true}}", got)
}
