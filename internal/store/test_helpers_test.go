package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/ruleweave/internal/idgen"
	"github.com/roach88/ruleweave/internal/ir"
)

// testSchemas is a minimal access.SchemaSource: Order <- OrderItem, Order <- Note.
type testSchemas map[string]*ir.Schema

func (ts testSchemas) Schema(id string) (*ir.Schema, bool) {
	s, ok := ts[id]
	return s, ok
}

func (ts testSchemas) Children(parent string) []ir.Relation {
	var out []ir.Relation
	for _, id := range []string{"OrderItem", "Note"} {
		for _, rel := range ts[id].Relations() {
			if rel.Parent == parent {
				out = append(out, rel)
			}
		}
	}
	return out
}

func newTestSchemas() testSchemas {
	ref := func(name, target string) ir.Field {
		return ir.Field{Name: name, FieldSpec: ir.FieldSpec{Type: ir.TypeRef, Refer: &ir.Refer{Schema: target}}}
	}
	str := func(name string) ir.Field {
		return ir.Field{Name: name, FieldSpec: ir.FieldSpec{Type: ir.TypeString}}
	}
	return testSchemas{
		"Order":     {ID: "Order", Fields: []ir.Field{str("status")}},
		"OrderItem": {ID: "OrderItem", Fields: []ir.Field{ref("order", "Order"), str("status")}},
		"Note":      {ID: "Note", Fields: []ir.Field{ref("order", "Order"), str("text")}},
	}
}

// createTestStore creates a new store in a temp directory with sequential ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, newTestSchemas(), WithIDGenerator(idgen.NewSequence("rec")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
