package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/ruleweave/internal/access"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/query"
	"github.com/roach88/ruleweave/internal/querysql"
)

// Insert stores a new record. An empty rec.ID is filled from the id
// generator. Null field values are dropped.
func (s *Store) Insert(ctx context.Context, rec ir.Record) (ir.Record, error) {
	if rec.Schema == "" {
		return ir.Record{}, errors.New("insert: schema is required")
	}
	if rec.ID == "" {
		rec.ID = s.ids.Generate()
	}
	rec.Fields = dropNulls(rec.Fields)

	fieldsJSON, err := marshalFields(rec.Fields)
	if err != nil {
		return ir.Record{}, fmt.Errorf("insert %s: %w", rec.Schema, err)
	}
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return ir.Record{}, fmt.Errorf("insert %s: %w", rec.Schema, err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO records (id, schema, fields, seq, deleted)
		VALUES (?, ?, ?, ?, 0)
	`, rec.ID, rec.Schema, fieldsJSON, seq)
	if err != nil {
		return ir.Record{}, fmt.Errorf("insert %s: %w", rec.Schema, err)
	}
	rec.Seq = seq
	return rec, nil
}

// Get loads one live record. Returns access.ErrNotFound when the record
// does not exist, is deleted, or belongs to another schema.
func (s *Store) Get(ctx context.Context, schema, id string) (ir.Record, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+querysql.Columns+` FROM records
		WHERE id = ? AND schema = ? AND deleted = 0
	`, id, schema)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, fmt.Errorf("get %s/%s: %w", schema, id, access.ErrNotFound)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("get %s/%s: %w", schema, id, err)
	}
	return rec, nil
}

// Write merges fields into the stored record and returns the result.
// A Null value removes the field.
func (s *Store) Write(ctx context.Context, rec ir.Record, fields ir.Object) (ir.Record, error) {
	current, err := s.Get(ctx, rec.Schema, rec.ID)
	if err != nil {
		return ir.Record{}, fmt.Errorf("write: %w", err)
	}
	merged := current.Fields.Clone()
	for k, v := range fields {
		if ir.IsNull(v) {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	fieldsJSON, err := marshalFields(merged)
	if err != nil {
		return ir.Record{}, fmt.Errorf("write %s/%s: %w", rec.Schema, rec.ID, err)
	}
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return ir.Record{}, fmt.Errorf("write %s/%s: %w", rec.Schema, rec.ID, err)
	}
	_, err = s.q.ExecContext(ctx, `
		UPDATE records SET fields = ?, seq = ? WHERE id = ? AND deleted = 0
	`, fieldsJSON, seq, rec.ID)
	if err != nil {
		return ir.Record{}, fmt.Errorf("write %s/%s: %w", rec.Schema, rec.ID, err)
	}
	current.Fields = merged
	current.Seq = seq
	return current, nil
}

// Delete soft-deletes a record and returns its last state.
func (s *Store) Delete(ctx context.Context, schema, id string) (ir.Record, error) {
	current, err := s.Get(ctx, schema, id)
	if err != nil {
		return ir.Record{}, fmt.Errorf("delete: %w", err)
	}
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return ir.Record{}, fmt.Errorf("delete %s/%s: %w", schema, id, err)
	}
	if _, err := s.q.ExecContext(ctx, `UPDATE records SET deleted = 1, seq = ? WHERE id = ?`, seq, id); err != nil {
		return ir.Record{}, fmt.Errorf("delete %s/%s: %w", schema, id, err)
	}
	current.Seq = seq
	return current, nil
}

// Query returns live records of schema matching filter.
// Results are ordered by seq ASC, id ASC.
func (s *Store) Query(ctx context.Context, schema string, filter query.Predicate) ([]ir.Record, error) {
	sqlText, params, err := querysql.Compile(schema, filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", schema, err)
	}
	defer rows.Close()

	recs := []ir.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", schema, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", schema, err)
	}
	return recs, nil
}

// List returns every live record of schema.
func (s *Store) List(ctx context.Context, schema string) ([]ir.Record, error) {
	return s.Query(ctx, schema, nil)
}

// FetchRelated implements access.DataAccess.
func (s *Store) FetchRelated(ctx context.Context, rec ir.Record, scope ir.Scope) ([]ir.Record, error) {
	switch scope {
	case ir.ScopeSelf:
		cur, err := s.Get(ctx, rec.Schema, rec.ID)
		if err != nil {
			return nil, err
		}
		return []ir.Record{cur}, nil
	case ir.ScopeParent:
		return s.fetchParents(ctx, rec)
	case ir.ScopeChild:
		return s.fetchChildren(ctx, rec)
	default:
		return nil, fmt.Errorf("fetch related: unknown scope %q", scope)
	}
}

func (s *Store) fetchParents(ctx context.Context, rec ir.Record) ([]ir.Record, error) {
	if s.schemas == nil {
		return nil, errors.New("fetch parents: no schema source")
	}
	schema, ok := s.schemas.Schema(rec.Schema)
	if !ok {
		return nil, fmt.Errorf("fetch parents: unknown schema %q", rec.Schema)
	}
	var out []ir.Record
	for _, f := range schema.ParentRefs() {
		id, ok := rec.Fields[f.Name].(ir.String)
		if !ok || id == "" {
			continue
		}
		parent, err := s.Get(ctx, f.Refer.Schema, string(id))
		if errors.Is(err, access.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch parents: %w", err)
		}
		out = append(out, parent)
	}
	return out, nil
}

func (s *Store) fetchChildren(ctx context.Context, rec ir.Record) ([]ir.Record, error) {
	if s.schemas == nil {
		return nil, errors.New("fetch children: no schema source")
	}
	var out []ir.Record
	seen := make(map[string]bool)
	for _, rel := range s.schemas.Children(rec.Schema) {
		kids, err := s.Query(ctx, rel.Child, query.Eq(rel.Field, ir.String(rec.ID)))
		if err != nil {
			return nil, fmt.Errorf("fetch children: %w", err)
		}
		for _, k := range kids {
			if !seen[k.ID] {
				seen[k.ID] = true
				out = append(out, k)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (ir.Record, error) {
	var rec ir.Record
	var fieldsJSON string
	if err := row.Scan(&rec.ID, &rec.Schema, &fieldsJSON, &rec.Seq); err != nil {
		return ir.Record{}, err
	}
	fields, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return ir.Record{}, err
	}
	rec.Fields = fields
	return rec, nil
}

func dropNulls(fields ir.Object) ir.Object {
	out := make(ir.Object, len(fields))
	for k, v := range fields {
		if !ir.IsNull(v) {
			out[k] = v
		}
	}
	return out
}
