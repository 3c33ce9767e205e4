package state

import (
	"errors"
	"fmt"
	"strings"
)

// ImmutableFieldError reports a write to a field whose compiled state marks
// it immutable.
type ImmutableFieldError struct {
	Schema   string
	RecordID string
	Field    string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("field %s.%s is immutable on record %s", e.Schema, e.Field, e.RecordID)
}

// IsImmutableField reports whether err is (or wraps) an ImmutableFieldError.
func IsImmutableField(err error) bool {
	var ie *ImmutableFieldError
	return errors.As(err, &ie)
}

// ContradictionError reports a field that separate matching rules mark both
// required and hidden. A single rule asserting both is rejected at
// registration; this only surfaces when the combination depends on data.
type ContradictionError struct {
	Schema   string
	RecordID string
	Field    string
	Rules    []string
}

func (e *ContradictionError) Error() string {
	return fmt.Sprintf("field %s.%s on record %s is both required and hidden (rules: %s)",
		e.Schema, e.Field, e.RecordID, strings.Join(e.Rules, ", "))
}

// IsContradiction reports whether err is (or wraps) a ContradictionError.
func IsContradiction(err error) bool {
	var ce *ContradictionError
	return errors.As(err, &ce)
}
