package cond

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/pathexpr"
)

func ctx() *pathexpr.Context {
	return &pathexpr.Context{
		Object: ir.Record{ID: "i1", Schema: "OrderItem", Fields: ir.Object{
			"quantity": ir.Int(3),
			"sku":      ir.String("A-1"),
			"tags":     ir.Strings("fragile", "gift"),
		}},
		Modified: []string{"quantity"},
		Ancestors: []ir.Record{
			{ID: "o1", Schema: "Order", Fields: ir.Object{"status": ir.String("pending")}},
		},
	}
}

func eval(t *testing.T, path string, op ir.Operator, v ir.Value) bool {
	t.Helper()
	c, err := Compile(ir.Condition{Path: path, Op: op, Value: v})
	require.NoError(t, err)
	return c.Eval(ctx())
}

func TestEval_Operators(t *testing.T) {
	tests := []struct {
		name string
		path string
		op   ir.Operator
		val  ir.Value
		want bool
	}{
		{"eq int", "quantity", ir.OpEq, ir.Int(3), true},
		{"eq kind mismatch", "quantity", ir.OpEq, ir.String("3"), false},
		{"neq", "sku", ir.OpNeq, ir.String("B-2"), true},
		{"in scalar", "$parent.status", ir.OpIn, ir.Strings("pending", "open"), true},
		{"notIn scalar", "$parent.status", ir.OpNotIn, ir.Strings("completed"), true},
		{"in list intersects", "tags", ir.OpIn, ir.Strings("gift"), true},
		{"in list disjoint", "tags", ir.OpIn, ir.Strings("bulk"), false},
		{"notIn list intersects", "tags", ir.OpNotIn, ir.Strings("fragile"), false},
		{"modifiedFields in", "$modifiedFields", ir.OpIn, ir.Strings("quantity"), true},
		{"lt", "quantity", ir.OpLt, ir.Int(4), true},
		{"lte equal", "quantity", ir.OpLte, ir.Int(3), true},
		{"gt", "quantity", ir.OpGt, ir.Int(3), false},
		{"gte", "quantity", ir.OpGte, ir.Int(3), true},
		{"lt string", "sku", ir.OpLt, ir.String("B"), true},
		{"lt mixed kinds", "quantity", ir.OpLt, ir.String("9"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval(t, tt.path, tt.op, tt.val))
		})
	}
}

func TestEval_NotFoundIsFalse(t *testing.T) {
	assert.False(t, eval(t, "missing", ir.OpNeq, ir.String("x")))
	assert.False(t, eval(t, "missing", ir.OpNotIn, ir.Strings("x")))
	assert.False(t, eval(t, "$parent(2).status", ir.OpNeq, ir.String("x")))
	assert.False(t, eval(t, "$child.quantity", ir.OpNotIn, ir.Strings("x")))
}

func TestCompile_Errors(t *testing.T) {
	bad := []ir.Condition{
		{Path: "status", Op: "like", Value: ir.String("x")},
		{Path: "$bogus", Op: ir.OpEq, Value: ir.String("x")},
		{Path: "status", Op: ir.OpIn, Value: ir.String("x")},
		{Path: "status", Op: ir.OpLt, Value: ir.Bool(true)},
		{Path: "status", Op: ir.OpEq},
	}
	for _, c := range bad {
		_, err := Compile(c)
		var ce *Error
		assert.ErrorAs(t, err, &ce, "%+v", c)
	}
}

func TestAll(t *testing.T) {
	cs, err := CompileAll([]ir.Condition{
		{Path: "quantity", Op: ir.OpGt, Value: ir.Int(0)},
		{Path: "$parent.status", Op: ir.OpEq, Value: ir.String("pending")},
	})
	require.NoError(t, err)
	assert.True(t, All(cs, ctx()))
	assert.True(t, All(nil, ctx()))

	cs[1].Source.Value = ir.String("completed")
	assert.False(t, All(cs, ctx()))
}

func TestMaxDepth(t *testing.T) {
	cs, err := CompileAll([]ir.Condition{
		{Path: "$parent(2).x", Op: ir.OpEq, Value: ir.Int(1)},
		{Path: "$child.y", Op: ir.OpEq, Value: ir.Int(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, MaxAncestorDepth(cs))
	assert.Equal(t, 1, MaxDescendantDepth(cs))

	cs, err = CompileAll([]ir.Condition{{Path: "$parent('Order').x", Op: ir.OpEq, Value: ir.Int(1)}})
	require.NoError(t, err)
	assert.Equal(t, -1, MaxAncestorDepth(cs))
}

func TestSplit(t *testing.T) {
	cs, err := CompileAll([]ir.Condition{
		{Path: "$parent.status", Op: ir.OpEq, Value: ir.String("pending")},
		{Path: "quantity", Op: ir.OpGt, Value: ir.Int(0)},
		{Path: "$modifiedFields", Op: ir.OpIn, Value: ir.Strings("quantity")},
		{Path: "$child.sku", Op: ir.OpEq, Value: ir.String("A-1")},
	})
	require.NoError(t, err)

	local, relational := Split(cs)
	require.Len(t, local, 2)
	assert.Equal(t, "quantity", local[0].Source.Path)
	assert.Equal(t, "$modifiedFields", local[1].Source.Path)
	require.Len(t, relational, 2)
	assert.Equal(t, "$parent.status", relational[0].Source.Path)
	assert.Equal(t, "$child.sku", relational[1].Source.Path)
}
