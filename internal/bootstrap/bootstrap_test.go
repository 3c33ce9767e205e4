package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleweave/internal/compiler"
	"github.com/roach88/ruleweave/internal/config"
	"github.com/roach88/ruleweave/internal/idgen"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/metrics"
)

const defs = `
schema: Order: {
	status: {type: "string", enum: ["pending", "completed"], default: "pending"}
	note: "string"
}

schema: OrderItem: {
	order: {type: "ref", required: true, refer: "Order"}
	status: {type: "string", enum: ["pending", "completed"], default: "pending"}
}

reaction: "item-rollup": {
	schema: "OrderItem"
	event:  "modified"
	scope:  "parent"
	when: [{path: "status", value: "completed"}]
	custom: "rollupStatus"
}
`

func writeDefs(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defs.cue"), []byte(src), 0o644))
	return dir
}

func TestLoadDefinitions(t *testing.T) {
	d, err := LoadDefinitions(writeDefs(t, defs))
	require.NoError(t, err)

	assert.True(t, d.Registry.Sealed())
	assert.Len(t, d.Spec.Schemas, 2)
	assert.Equal(t, 1, d.Spec.RuleCount())
	assert.True(t, d.Actions.Has("rollupStatus"))
	assert.Empty(t, d.Cycles)
}

func TestLoadDefinitions_CollectsErrors(t *testing.T) {
	dir := writeDefs(t, `
schema: Order: {status: "float"}
schema: OrderItem: {qty: "decimal"}
`)
	_, err := LoadDefinitions(dir)
	require.Error(t, err)
	assert.True(t, IsLoadError(err))

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, dir, le.Dir)
	assert.Len(t, le.Errors, 2)
	assert.Contains(t, err.Error(), "2 errors")
}

func TestLoadDefinitions_UnknownAction(t *testing.T) {
	dir := writeDefs(t, `
schema: Order: {status: "string"}
reaction: audit: {
	schema: "Order"
	event:  "created"
	custom: "auditTrail"
}
`)
	_, err := LoadDefinitions(dir)
	require.Error(t, err)

	var ve compiler.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Message, "auditTrail")
}

func TestOpen_ResumesClock(t *testing.T) {
	ctx := context.Background()
	d, err := LoadDefinitions(writeDefs(t, defs))
	require.NoError(t, err)
	db := filepath.Join(t.TempDir(), "rw.db")

	rt, err := Open(ctx, nil, d, Options{DBPath: db, IDs: idgen.NewSequence("rec")})
	require.NoError(t, err)
	order, err := rt.Host.Create(ctx, "Order", ir.Object{})
	require.NoError(t, err)
	_, err = rt.Host.Create(ctx, "OrderItem", ir.Object{"order": ir.String(order.Record().ID)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rt.Engine.Clock().Current())
	require.NoError(t, rt.Close())

	rt, err = Open(ctx, nil, d, Options{DBPath: db})
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, int64(2), rt.Engine.Clock().Current())
	assert.Nil(t, rt.Metrics)

	m, err := rt.Host.Update(ctx, "Order", order.Record().ID, ir.Object{"note": ir.String("x")})
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Cascade.Events[0].Seq)
}

func TestOpen_Metrics(t *testing.T) {
	ctx := context.Background()
	d, err := LoadDefinitions(writeDefs(t, defs))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Metrics.Enabled = true
	rt, err := Open(ctx, cfg, d, Options{DBPath: ":memory:"})
	require.NoError(t, err)
	defer rt.Close()
	require.NotNil(t, rt.Metrics)

	order, err := rt.Host.Create(ctx, "Order", ir.Object{})
	require.NoError(t, err)
	_, err = rt.Host.Create(ctx, "OrderItem", ir.Object{"order": ir.String(order.Record().ID)})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, metrics.WriteText(&buf, rt.Gatherer))
	assert.Contains(t, buf.String(), `ruleweave_events_dispatched_total{kind="created",schema="OrderItem"} 1`)
}

func TestOpen_RejectsHopBeyondDepthLimit(t *testing.T) {
	d, err := LoadDefinitions(writeDefs(t, defs+`
reaction: "third-item": {
	schema: "Order"
	event:  "modified"
	when: [{path: "$child(3).status", value: "completed"}]
	set: note: "third done"
}
`))
	require.NoError(t, err)

	cfg := config.Default()
	_, err = Open(context.Background(), cfg, d, Options{DBPath: ":memory:"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "third-item")

	cfg.Engine.DescendantDepth = 3
	rt, err := Open(context.Background(), cfg, d, Options{DBPath: ":memory:"})
	require.NoError(t, err)
	assert.NoError(t, rt.Close())
}

func TestRuntimeClose_Nil(t *testing.T) {
	assert.NoError(t, (&Runtime{}).Close())
}
