package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/ruleweave/internal/ir"
)

// Value converts a concrete CUE value into an ir.Value.
// Floats are rejected: the value model has integers only.
func Value(v cue.Value) (ir.Value, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	switch v.IncompleteKind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := ir.List{}
		for iter.Next() {
			item, err := Value(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := ir.Object{}
		for iter.Next() {
			item, err := Value(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Label()] = item
		}
		return out, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, compileErr("value", v.Pos(), "float values are not supported, use int")
	default:
		return nil, compileErr("value", v.Pos(), "value must be concrete (got %v)", v.IncompleteKind())
	}
}

// field looks up a direct child of v.
func field(v cue.Value, name string) cue.Value {
	return v.LookupPath(cue.MakePath(cue.Str(name)))
}

func optString(v cue.Value, name string) (string, bool, error) {
	f := field(v, name)
	if !f.Exists() {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func reqString(v cue.Value, name, subject string) (string, error) {
	s, ok, err := optString(v, name)
	if err != nil {
		return "", err
	}
	if !ok || s == "" {
		return "", compileErr(subject+"."+name, v.Pos(), "%s is required", name)
	}
	return s, nil
}

func optBool(v cue.Value, name string) (bool, error) {
	f := field(v, name)
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optInt(v cue.Value, name string) (*int64, error) {
	f := field(v, name)
	if !f.Exists() {
		return nil, nil
	}
	if k := f.IncompleteKind(); k == cue.FloatKind || k == cue.NumberKind {
		return nil, compileErr(name, f.Pos(), "float values are not supported, use int")
	}
	n, err := f.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return &n, nil
}

// optStrings reads a list of strings. A single string is accepted as a
// one-element list.
func optStrings(v cue.Value, name string) ([]string, error) {
	f := field(v, name)
	if !f.Exists() {
		return nil, nil
	}
	if s, err := f.String(); err == nil {
		return []string{s}, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}
