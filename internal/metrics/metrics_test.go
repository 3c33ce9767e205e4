package metrics

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleweave/internal/engine"
	"github.com/roach88/ruleweave/internal/ir"
	fixtures "github.com/roach88/ruleweave/internal/testutil"
)

var _ engine.Recorder = (*Collector)(nil)

func TestCollector_Records(t *testing.T) {
	c := NewWithRegistry(prometheus.NewRegistry())

	c.EventDispatched("Order", "modified", 0)
	c.EventDispatched("Order", "modified", 1)
	c.RulesMatched("index", 3)
	c.RulesMatched("conditions", 1)
	c.WriteApplied("Order")
	c.WriteSkipped("Order")
	c.ChainFinished(2)
	c.ChainFailed("CASCADE_LIMIT_EXCEEDED")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Events.WithLabelValues("Order", "modified")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Matches.WithLabelValues("index")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Matches.WithLabelValues("conditions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Writes.WithLabelValues("Order", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Writes.WithLabelValues("Order", "noop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Errors.WithLabelValues("CASCADE_LIMIT_EXCEEDED")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.Depth))
}

func TestCollector_WiredIntoEngine(t *testing.T) {
	reg := fixtures.OrderRegistry(t)
	require.NoError(t, reg.AddReaction(ir.ReactionRule{
		ID:     "item-to-order",
		Schema: "OrderItem",
		Scope:  ir.ScopeParent,
		Event:  ir.EventModified,
		Action: ir.SetAction(ir.Object{"status": ir.String("$eventObject.status")}),
	}))
	require.NoError(t, reg.Seal(nil))
	s := fixtures.OpenStore(t, reg)

	promReg := prometheus.NewRegistry()
	c := NewWithRegistry(promReg)
	eng := engine.New(reg, s, nil, engine.WithMetrics(c))
	ctx := context.Background()

	order, err := s.Insert(ctx, ir.Record{Schema: "Order", Fields: fixtures.Order("pending")})
	require.NoError(t, err)
	item, err := s.Insert(ctx, ir.Record{Schema: "OrderItem", Fields: fixtures.Item(order.ID, "in_process", 1)})
	require.NoError(t, err)

	_, err = eng.Process(ctx, ir.Event{Schema: "OrderItem", Kind: ir.EventModified, Object: item, Modified: []string{"status"}})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Events.WithLabelValues("OrderItem", "modified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Events.WithLabelValues("Order", "modified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Writes.WithLabelValues("Order", "applied")))

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, promReg))
	assert.Contains(t, buf.String(), "ruleweave_events_dispatched_total")
	assert.Contains(t, buf.String(), "ruleweave_cascade_depth_bucket")
}
