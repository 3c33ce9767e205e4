// Package state computes the runtime $state of a record.
//
// Every state rule on the record's schema whose conditions all hold
// contributes its flags to the fields it names. Contributions are merged
// per field:
//
//	immutable, required, hidden  logical OR
//	enumSubset                   intersection
//
// Both operations are commutative and associative, so rule registration
// order never changes the result. A false flag is "no opinion". Fields with
// no flag set are left out of the output.
//
// Compiled state is never cached: callers compile it on every read and
// before every write.
package state

import (
	"sort"

	"github.com/roach88/ruleweave/internal/cond"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/pathexpr"
	"github.com/roach88/ruleweave/internal/registry"
)

// Ancestry is the related-record context a state rule may reference.
// Ancestors are nearest first; Descendants are breadth-first.
type Ancestry struct {
	Ancestors   []ir.Record
	Descendants []ir.Record
}

// Compiler evaluates state rules from a sealed registry.
type Compiler struct {
	reg *registry.Registry
}

// NewCompiler returns a Compiler reading rules from reg.
func NewCompiler(reg *registry.Registry) *Compiler {
	return &Compiler{reg: reg}
}

// Compile returns the merged state of rec.
func (c *Compiler) Compile(rec ir.Record, anc Ancestry) (ir.CompiledState, error) {
	out := ir.NewCompiledState()
	schema, ok := c.reg.Schema(rec.Schema)
	if !ok {
		return out, nil
	}

	ctx := &pathexpr.Context{
		Object:      rec,
		Ancestors:   anc.Ancestors,
		Descendants: anc.Descendants,
	}

	requiredBy := make(map[string][]string)
	hiddenBy := make(map[string][]string)
	for _, rule := range c.reg.States(rec.Schema) {
		if !cond.All(rule.Conditions, ctx) {
			continue
		}
		eff := rule.Rule.Effect
		for _, name := range expandFields(schema, eff.OnFields) {
			out.Fields[name] = Merge(out.Fields[name], flagsOf(eff.StateFlags))
			if eff.Required {
				requiredBy[name] = append(requiredBy[name], rule.Rule.ID)
			}
			if eff.Hidden {
				hiddenBy[name] = append(hiddenBy[name], rule.Rule.ID)
			}
		}
	}

	for _, name := range schema.FieldNames() {
		fs, ok := out.Fields[name]
		if !ok {
			continue
		}
		if fs.IsDefault() {
			delete(out.Fields, name)
			continue
		}
		if fs.Required && fs.Hidden {
			return out, &ContradictionError{
				Schema:   rec.Schema,
				RecordID: rec.ID,
				Field:    name,
				Rules:    append(requiredBy[name], hiddenBy[name]...),
			}
		}
		if fs.EnumSubset != nil {
			fs.EnumSubset = orderEnum(fs.EnumSubset, schema, name)
			out.Fields[name] = fs
		}
	}
	return out, nil
}

func flagsOf(f ir.StateFlags) ir.FieldState {
	fs := ir.FieldState{Immutable: f.Immutable, Required: f.Required, Hidden: f.Hidden}
	if f.EnumSubset != nil {
		fs.EnumSubset = append([]string{}, f.EnumSubset...)
	}
	return fs
}

// Merge combines two field states: booleans OR, enum subsets intersect.
// A nil subset is the identity (no restriction); an empty non-nil subset
// allows nothing.
func Merge(a, b ir.FieldState) ir.FieldState {
	out := ir.FieldState{
		Immutable: a.Immutable || b.Immutable,
		Required:  a.Required || b.Required,
		Hidden:    a.Hidden || b.Hidden,
	}
	switch {
	case a.EnumSubset == nil:
		out.EnumSubset = b.EnumSubset
	case b.EnumSubset == nil:
		out.EnumSubset = a.EnumSubset
	default:
		in := make(map[string]bool, len(b.EnumSubset))
		for _, v := range b.EnumSubset {
			in[v] = true
		}
		out.EnumSubset = []string{}
		for _, v := range a.EnumSubset {
			if in[v] {
				out.EnumSubset = append(out.EnumSubset, v)
			}
		}
		sort.Strings(out.EnumSubset)
	}
	return out
}

func expandFields(s *ir.Schema, onFields []string) []string {
	for _, f := range onFields {
		if f == ir.AllFields {
			return s.FieldNames()
		}
	}
	return onFields
}

// orderEnum sorts subset by the field's declared enum order, or
// lexicographically when none is declared. Duplicates are dropped.
func orderEnum(subset []string, s *ir.Schema, field string) []string {
	f, _ := s.Field(field)
	out := make([]string, 0, len(subset))
	if len(f.Enum) > 0 {
		in := make(map[string]bool, len(subset))
		for _, v := range subset {
			in[v] = true
		}
		for _, v := range f.Enum {
			if in[v] {
				out = append(out, v)
			}
		}
		return out
	}
	seen := make(map[string]bool, len(subset))
	for _, v := range subset {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
