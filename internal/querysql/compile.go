// Package querysql compiles query predicates to parameterized SQLite SQL
// over the store's records table.
//
// Record fields live in a canonical JSON column, so each comparison pairs
// json_type (to keep kinds apart: 1, true and "1" never match each other)
// with json_extract. Every value and JSON path is bound as a parameter;
// nothing from the predicate is interpolated into the SQL text.
package querysql

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/query"
)

// Columns is the column list every compiled query selects, in scan order.
const Columns = "id, schema, fields, seq"

// OrderBy is appended to every query so results are deterministic.
const OrderBy = " ORDER BY seq ASC, id ASC COLLATE BINARY"

// Compile returns a SELECT over live records of schema matching p.
func Compile(schema string, p query.Predicate) (string, []any, error) {
	if err := query.Validate(p); err != nil {
		return "", nil, fmt.Errorf("compile query: %w", err)
	}
	where, params, err := compilePredicate(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile query: %w", err)
	}
	sql := "SELECT " + Columns + " FROM records WHERE schema = ? AND deleted = 0 AND (" + where + ")" + OrderBy
	return sql, append([]any{schema}, params...), nil
}

func compilePredicate(p query.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case query.Equals:
		return compileEquals(pred.Field, pred.Value)
	case query.In:
		return compileIn(pred)
	case query.And:
		return compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(field string, v ir.Value) (string, []any, error) {
	if field == query.IDField {
		s, ok := v.(ir.String)
		if !ok {
			return "0 = 1", nil, nil
		}
		return "id = ?", []any{string(s)}, nil
	}

	path := "$." + field
	switch val := v.(type) {
	case nil, ir.Null:
		return "(json_type(fields, ?) IS NULL OR json_type(fields, ?) = 'null')", []any{path, path}, nil
	case ir.String:
		return "(json_type(fields, ?) = 'text' AND json_extract(fields, ?) = ?)",
			[]any{path, path, norm.NFC.String(string(val))}, nil
	case ir.Int:
		return "(json_type(fields, ?) = 'integer' AND json_extract(fields, ?) = ?)",
			[]any{path, path, int64(val)}, nil
	case ir.Bool:
		kind := "false"
		if val {
			kind = "true"
		}
		return "json_type(fields, ?) = ?", []any{path, kind}, nil
	default:
		return "", nil, fmt.Errorf("field %q: cannot compare %T", field, v)
	}
}

func compileIn(in query.In) (string, []any, error) {
	if len(in.Values) == 0 {
		return "0 = 1", nil, nil
	}
	parts := make([]string, 0, len(in.Values))
	var params []any
	for _, v := range in.Values {
		sql, ps, err := compileEquals(in.Field, v)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return "(" + strings.Join(parts, " OR ") + ")", params, nil
}

func compileAnd(and query.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, sub := range and.Predicates {
		sql, ps, err := compilePredicate(sub)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return strings.Join(parts, " AND "), params, nil
}
