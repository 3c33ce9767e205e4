package state

import (
	"sort"

	"github.com/roach88/ruleweave/internal/ir"
)

// CheckWrite verifies that applying fields to rec is allowed under st.
//
// A field marked immutable yields an ImmutableFieldError for the first such
// field in key order, whether or not the value would change. Otherwise the
// merged record is checked against enum subsets and state-required fields,
// returning ir.ValidationErrors.
func CheckWrite(st ir.CompiledState, rec ir.Record, fields ir.Object) error {
	for _, name := range fields.SortedKeys() {
		if st.Field(name).Immutable {
			return &ImmutableFieldError{Schema: rec.Schema, RecordID: rec.ID, Field: name}
		}
	}
	merged := rec.Fields.Clone()
	if merged == nil {
		merged = ir.Object{}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return CheckValues(st, merged)
}

// CheckValues verifies a full field set against enum subsets and
// state-required fields.
func CheckValues(st ir.CompiledState, values ir.Object) error {
	var errs ir.ValidationErrors
	names := make([]string, 0, len(st.Fields))
	for name := range st.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fs := st.Fields[name]
		v, present := values[name]
		if fs.Required && (!present || ir.IsNull(v)) {
			errs.Add(name, ir.CodeRequired, "field is required in the current state")
			continue
		}
		if fs.EnumSubset != nil && present && !ir.IsNull(v) {
			s, ok := v.(ir.String)
			if !ok || !contains(fs.EnumSubset, string(s)) {
				errs.Add(name, ir.CodeEnum, "value %s not allowed in the current state (allowed: %v)", ir.Key(v), fs.EnumSubset)
			}
		}
	}
	return errs.Err()
}

// Visible returns a copy of values without fields st marks hidden.
func Visible(st ir.CompiledState, values ir.Object) ir.Object {
	out := make(ir.Object, len(values))
	for k, v := range values {
		if st.Field(k).Hidden {
			continue
		}
		out[k] = v
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
