package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/ruleweave/internal/ir"
)

// CompileSchema parses a CUE value into a Schema.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the schema struct itself; its label is the schema id and
// every field is either a type name or a field spec:
//
//	schema: OrderItem: {
//		order:    {type: "ref", refer: "Order", required: true}
//		sku:      "string"
//		quantity: {type: "int", required: true, min: 1}
//	}
//
// Fields keep declaration order.
func CompileSchema(v cue.Value) (*ir.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	s := &ir.Schema{ID: label(v)}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		f, err := compileField(s.ID, iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, f)
	}
	if len(s.Fields) == 0 {
		return nil, compileErr("schema."+s.ID, v.Pos(), "at least one field is required")
	}
	return s, nil
}

func compileField(schemaID, name string, v cue.Value) (ir.Field, error) {
	subject := "schema." + schemaID + "." + name
	f := ir.Field{Name: name}

	// Shorthand: `sku: "string"`
	if t, err := v.String(); err == nil {
		f.Type = ir.FieldType(t)
		return f, checkType(subject, v, f.Type)
	}

	typ, err := reqString(v, "type", subject)
	if err != nil {
		return f, err
	}
	f.Type = ir.FieldType(typ)
	if err := checkType(subject, v, f.Type); err != nil {
		return f, err
	}

	if f.Required, err = optBool(v, "required"); err != nil {
		return f, err
	}
	if f.Unique, err = optBool(v, "unique"); err != nil {
		return f, err
	}
	if f.Enum, err = optStrings(v, "enum"); err != nil {
		return f, err
	}
	if f.Min, err = optInt(v, "min"); err != nil {
		return f, err
	}
	if f.Max, err = optInt(v, "max"); err != nil {
		return f, err
	}
	if d := field(v, "default"); d.Exists() {
		if f.Default, err = Value(d); err != nil {
			return f, err
		}
	}

	if r := field(v, "refer"); r.Exists() {
		target, err := r.String()
		if err != nil {
			// Long form: refer: {schema: "Order"}
			if target, err = reqString(r, "schema", subject+".refer"); err != nil {
				return f, err
			}
		}
		f.Refer = &ir.Refer{Schema: target}
	}
	return f, nil
}

func checkType(subject string, v cue.Value, t ir.FieldType) error {
	if t == "float" || t == "number" {
		return compileErr(subject, v.Pos(), "float types are not supported, use int")
	}
	if !ir.ValidTypes[t] {
		return compileErr(subject, v.Pos(), "unknown type %q", t)
	}
	return nil
}

// label returns the last path selector of v, unquoted.
func label(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return sels[len(sels)-1].Unquoted()
}
