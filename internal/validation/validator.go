// Package validation checks record payloads against their schema's own
// FieldSpec constraints. It is the per-schema layer of the two-layer
// validation done on create and edit; the combined layer lives in augment.
//
// Validation is strict (unknown fields are rejected) and collects every
// violation instead of stopping at the first.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/ruleweave/internal/access"
	"github.com/roach88/ruleweave/internal/ir"
)

// Validator validates payloads against registered schemas.
type Validator struct {
	schemas access.SchemaSource
}

// New creates a validator reading schemas from schemas.
func New(schemas access.SchemaSource) *Validator {
	return &Validator{schemas: schemas}
}

// ValidateCreate validates a full payload for a create. Required fields
// without a default must be present and non-null.
func (v *Validator) ValidateCreate(schemaID string, data ir.Object) ir.ValidationErrors {
	s, errs := v.lookup(schemaID)
	if s == nil {
		return errs
	}
	errs = unknownFields(s, data)

	for _, f := range s.Fields {
		value, has := data[f.Name]
		if !has || ir.IsNull(value) {
			if f.Required && ir.IsNull(f.Default) {
				errs.Add(f.Name, ir.CodeRequired, "field is required")
			}
			continue
		}
		errs = append(errs, Field(f, value)...)
	}
	return errs
}

// ValidateUpdate validates a partial payload. Only provided fields are
// checked; null clears a field unless it is required.
func (v *Validator) ValidateUpdate(schemaID string, data ir.Object) ir.ValidationErrors {
	s, errs := v.lookup(schemaID)
	if s == nil {
		return errs
	}
	errs = unknownFields(s, data)

	for _, f := range s.Fields {
		value, has := data[f.Name]
		if !has {
			continue
		}
		if ir.IsNull(value) {
			if f.Required {
				errs.Add(f.Name, ir.CodeRequired, "required field cannot be cleared")
			}
			continue
		}
		errs = append(errs, Field(f, value)...)
	}
	return errs
}

func (v *Validator) lookup(schemaID string) (*ir.Schema, ir.ValidationErrors) {
	s, ok := v.schemas.Schema(schemaID)
	if !ok {
		var errs ir.ValidationErrors
		errs.Add("_schema", ir.CodeUnknownField, "unknown schema: %s", schemaID)
		return nil, errs
	}
	return s, nil
}

// unknownFields rejects payload keys the schema does not declare, in key order.
func unknownFields(s *ir.Schema, data ir.Object) ir.ValidationErrors {
	var errs ir.ValidationErrors
	for _, name := range data.SortedKeys() {
		if !s.HasField(name) {
			errs.Add(name, ir.CodeUnknownField, "unknown field '%s' - not defined in schema %s", name, s.ID)
		}
	}
	return errs
}

// ApplyDefaults returns a copy of data with declared defaults filled in
// for absent fields.
func ApplyDefaults(s *ir.Schema, data ir.Object) ir.Object {
	out := data.Clone()
	if out == nil {
		out = ir.Object{}
	}
	for _, f := range s.Fields {
		if _, has := out[f.Name]; !has && !ir.IsNull(f.Default) {
			out[f.Name] = f.Default
		}
	}
	return out
}

// Field validates one non-null value against its FieldSpec.
func Field(f ir.Field, value ir.Value) ir.ValidationErrors {
	var errs ir.ValidationErrors
	if !typeMatches(f.Type, value) {
		errs.Add(f.Name, ir.CodeType, "must be of type %s", f.Type)
		return errs
	}

	switch val := value.(type) {
	case ir.String:
		if f.Type == ir.TypeRef && strings.TrimSpace(string(val)) == "" {
			errs.Add(f.Name, ir.CodeType, "reference cannot be empty")
		}
		if len(f.Enum) > 0 && !containsString(f.Enum, string(val)) {
			errs.Add(f.Name, ir.CodeEnum, "must be one of: %s", strings.Join(f.Enum, ", "))
		}
		checkRange(&errs, f, int64(utf8.RuneCountInString(string(val))), "length")
	case ir.Int:
		checkRange(&errs, f, int64(val), "value")
	case ir.List:
		checkRange(&errs, f, int64(len(val)), "item count")
	}
	return errs
}

func checkRange(errs *ir.ValidationErrors, f ir.Field, n int64, what string) {
	if f.Min != nil && n < *f.Min {
		errs.Add(f.Name, ir.CodeMin, "%s must be at least %d", what, *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		errs.Add(f.Name, ir.CodeMax, "%s must be at most %d", what, *f.Max)
	}
}

func typeMatches(t ir.FieldType, value ir.Value) bool {
	switch value.(type) {
	case ir.String:
		return t == ir.TypeString || t == ir.TypeRef
	case ir.Int:
		return t == ir.TypeInt
	case ir.Bool:
		return t == ir.TypeBool
	case ir.List:
		return t == ir.TypeList
	case ir.Object:
		return t == ir.TypeObject
	}
	return false
}

func containsString(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// Describe formats errs for a one-line log or CLI message.
func Describe(errs ir.ValidationErrors) string {
	if len(errs) == 0 {
		return "valid"
	}
	return fmt.Sprintf("%d validation error(s): %s", len(errs), errs.Error())
}
