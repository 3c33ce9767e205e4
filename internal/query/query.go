// Package query is the filter language of the Data Access query operation.
//
// Predicate is a sealed interface: only types in this package implement
// it, so backend compilers can switch over it exhaustively.
//
//	Equals{Field: "status", Value: ir.String("completed")}
//	In{Field: "status", Values: []ir.Value{...}}
//	And{Predicates: [...]}
//
// Field names are record field names. The pseudo-field "id" matches the
// record id. A nil Predicate matches every record of the schema.
package query

import (
	"fmt"
	"regexp"

	"github.com/roach88/ruleweave/internal/ir"
)

// IDField is the pseudo-field matching record ids.
const IDField = "id"

// Predicate is a filter condition.
type Predicate interface {
	predicateNode()
}

// Equals matches records whose Field equals Value. A Null value matches
// records where the field is absent or null.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// In matches records whose Field equals any of Values.
// An empty Values matches nothing.
type In struct {
	Field  string
	Values []ir.Value
}

func (In) predicateNode() {}

// And matches records satisfying every predicate. Empty And matches all.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Eq is shorthand for Equals.
func Eq(field string, v ir.Value) Predicate {
	return Equals{Field: field, Value: v}
}

// All is shorthand for And.
func All(ps ...Predicate) Predicate {
	return And{Predicates: ps}
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks field names and value kinds. Only scalar values may be
// compared.
func Validate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Equals:
		if err := checkField(pred.Field); err != nil {
			return err
		}
		return checkScalar(pred.Field, pred.Value)
	case In:
		if err := checkField(pred.Field); err != nil {
			return err
		}
		for _, v := range pred.Values {
			if ir.IsNull(v) {
				return fmt.Errorf("field %q: null is not allowed in In", pred.Field)
			}
			if err := checkScalar(pred.Field, v); err != nil {
				return err
			}
		}
		return nil
	case And:
		for _, sub := range pred.Predicates {
			if err := Validate(sub); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func checkField(name string) error {
	if !fieldPattern.MatchString(name) {
		return fmt.Errorf("invalid field name %q", name)
	}
	return nil
}

func checkScalar(field string, v ir.Value) error {
	switch v.(type) {
	case nil, ir.Null, ir.String, ir.Int, ir.Bool:
		return nil
	default:
		return fmt.Errorf("field %q: cannot compare %T", field, v)
	}
}

// Match evaluates p against rec in memory, with the same semantics as the
// SQL backend.
func Match(p Predicate, rec ir.Record) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		got, ok := fieldValue(rec, pred.Field)
		if ir.IsNull(pred.Value) {
			return !ok || ir.IsNull(got)
		}
		return ok && ir.Equal(got, pred.Value)
	case In:
		got, ok := fieldValue(rec, pred.Field)
		if !ok {
			return false
		}
		for _, v := range pred.Values {
			if ir.Equal(got, v) {
				return true
			}
		}
		return false
	case And:
		for _, sub := range pred.Predicates {
			if !Match(sub, rec) {
				return false
			}
		}
		return true
	}
	return false
}

func fieldValue(rec ir.Record, field string) (ir.Value, bool) {
	if field == IDField {
		return ir.String(rec.ID), true
	}
	v, ok := rec.Fields[field]
	return v, ok
}
