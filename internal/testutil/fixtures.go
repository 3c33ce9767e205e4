package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleweave/internal/idgen"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/registry"
	"github.com/roach88/ruleweave/internal/store"
)

// Statuses is the status enum shared by Order and OrderItem.
var Statuses = []string{"pending", "in_process", "completed"}

// Int64 returns a pointer to v, for FieldSpec Min/Max.
func Int64(v int64) *int64 { return &v }

// OrderSchemas returns Order and OrderItem. OrderItem.order refers to Order
// (cardinality many); quantity must be at least 1.
func OrderSchemas() []ir.Schema {
	status := ir.FieldSpec{Type: ir.TypeString, Enum: Statuses, Default: ir.String("pending")}
	return []ir.Schema{
		{ID: "Order", Fields: []ir.Field{
			{Name: "status", FieldSpec: status},
			{Name: "customer", FieldSpec: ir.FieldSpec{Type: ir.TypeString, Required: true}},
			{Name: "note", FieldSpec: ir.FieldSpec{Type: ir.TypeString}},
		}},
		{ID: "OrderItem", Fields: []ir.Field{
			{Name: "order", FieldSpec: ir.FieldSpec{Type: ir.TypeRef, Required: true, Refer: &ir.Refer{Schema: "Order"}}},
			{Name: "status", FieldSpec: status},
			{Name: "sku", FieldSpec: ir.FieldSpec{Type: ir.TypeString, Required: true}},
			{Name: "quantity", FieldSpec: ir.FieldSpec{Type: ir.TypeInt, Required: true, Min: Int64(1)}},
		}},
	}
}

// OrderRegistry returns an unsealed registry holding OrderSchemas.
func OrderRegistry(t testing.TB) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, s := range OrderSchemas() {
		require.NoError(t, reg.RegisterSchema(s))
	}
	return reg
}

// OpenStore opens a store in a temp directory with ids "rec-1", "rec-2", ...
func OpenStore(t testing.TB, reg *registry.Registry) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path, reg, store.WithIDGenerator(idgen.NewSequence("rec")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Order returns an Order record payload.
func Order(status string) ir.Object {
	return ir.Object{"status": ir.String(status), "customer": ir.String("acme")}
}

// Item returns an OrderItem record payload referring to orderID.
func Item(orderID, status string, quantity int64) ir.Object {
	return ir.Object{
		"order":    ir.String(orderID),
		"status":   ir.String(status),
		"sku":      ir.String("sku-1"),
		"quantity": ir.Int(quantity),
	}
}
