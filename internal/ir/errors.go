package ir

import (
	"fmt"
	"strings"
)

// Field validation codes.
const (
	CodeRequired     = "required"
	CodeType         = "type"
	CodeEnum         = "enum"
	CodeMin          = "min"
	CodeMax          = "max"
	CodeUnknownField = "unknown_field"
	CodeNotSelected  = "not_selected"
	CodeMinItems     = "min_items"
	CodeMaxItems     = "max_items"
	CodeCardinality  = "cardinality"
)

// ValidationError is one field-level constraint violation.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every violation found (validation is not
// fail-fast).
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Add appends a violation.
func (es *ValidationErrors) Add(field, code, format string, args ...any) {
	*es = append(*es, ValidationError{
		Field:   field,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

// Prefixed returns copies of es with prefix prepended to every field.
func (es ValidationErrors) Prefixed(prefix string) ValidationErrors {
	out := make(ValidationErrors, len(es))
	for i, e := range es {
		e.Field = prefix + "." + e.Field
		out[i] = e
	}
	return out
}

// Err returns es as an error, or nil when empty.
func (es ValidationErrors) Err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}
