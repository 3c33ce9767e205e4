package pathexpr

import "github.com/roach88/ruleweave/internal/ir"

// Context is the graph snapshot an expression resolves against.
type Context struct {
	Object   ir.Record
	Modified []string
	// Ancestors are ordered nearest first: parent, grandparent, ...
	Ancestors []ir.Record
	// Descendants are ordered breadth-first from Object.
	Descendants []ir.Record
}

// Resolve evaluates e against ctx. The boolean is false when the value
// cannot be found: a missing field, a missing hop, or an out-of-range index.
func (e Expr) Resolve(ctx *Context) (ir.Value, bool) {
	switch e.Selector {
	case SelectModified:
		return ir.Strings(ctx.Modified...), true
	case SelectEventObject:
		return recordValue(ctx.Object, e.Field)
	case SelectParent:
		rec, ok := nth(ctx.Ancestors, e.Schema, e.N)
		if !ok {
			return nil, false
		}
		return recordValue(rec, e.Field)
	case SelectChild:
		rec, ok := nth(ctx.Descendants, e.Schema, e.N)
		if !ok {
			return nil, false
		}
		return recordValue(rec, e.Field)
	}
	return nil, false
}

// nth returns the n-th record, counting only records of schema when set.
func nth(recs []ir.Record, schema string, n int) (ir.Record, bool) {
	if schema == "" {
		if n < 1 || n > len(recs) {
			return ir.Record{}, false
		}
		return recs[n-1], true
	}
	seen := 0
	for _, r := range recs {
		if r.Schema != schema {
			continue
		}
		seen++
		if seen == n {
			return r, true
		}
	}
	return ir.Record{}, false
}

func recordValue(rec ir.Record, field string) (ir.Value, bool) {
	if rec.IsZero() {
		return nil, false
	}
	if field == "" {
		if rec.Fields == nil {
			return ir.Object{}, true
		}
		return rec.Fields, true
	}
	if v, ok := rec.Get(field); ok {
		return v, true
	}
	if field == "id" && rec.ID != "" {
		return ir.String(rec.ID), true
	}
	return nil, false
}
