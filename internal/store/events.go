package store

import (
	"context"
	"fmt"

	"github.com/roach88/ruleweave/internal/ir"
)

// AppendEvent records a dispatched mutation event.
// Parent context is not persisted; it is recomputed on dispatch.
func (s *Store) AppendEvent(ctx context.Context, ev ir.Event) error {
	objectJSON, err := marshalFields(ev.Object.Fields)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	modifiedJSON, err := marshalNames(ev.Modified)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO mutation_events
		(chain, depth, seq, schema, kind, record_id, object, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.Chain, ev.Depth, ev.Seq, ev.Schema, string(ev.Kind), ev.Object.ID, objectJSON, modifiedJSON)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ReadChain returns the events of one cascade chain in dispatch order.
// Returns an empty slice (not nil) if the chain is unknown.
func (s *Store) ReadChain(ctx context.Context, chain string) ([]ir.Event, error) {
	return s.readEvents(ctx, `WHERE chain = ?`, chain)
}

// ReadRecordHistory returns every event recorded for one record.
func (s *Store) ReadRecordHistory(ctx context.Context, recordID string) ([]ir.Event, error) {
	return s.readEvents(ctx, `WHERE record_id = ?`, recordID)
}

// Chains returns the distinct chain tokens in first-seen order.
func (s *Store) Chains(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT chain FROM mutation_events
		GROUP BY chain
		ORDER BY MIN(seq) ASC, MIN(id) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	defer rows.Close()

	chains := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan chain: %w", err)
		}
		chains = append(chains, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chains: %w", err)
	}
	return chains, nil
}

func (s *Store) readEvents(ctx context.Context, where string, arg any) ([]ir.Event, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT chain, depth, seq, schema, kind, record_id, object, modified
		FROM mutation_events `+where+`
		ORDER BY seq ASC, id ASC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var ev ir.Event
		var kind, recordID, objectJSON, modifiedJSON string
		if err := rows.Scan(&ev.Chain, &ev.Depth, &ev.Seq, &ev.Schema, &kind, &recordID, &objectJSON, &modifiedJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		fields, err := unmarshalFields(objectJSON)
		if err != nil {
			return nil, err
		}
		modified, err := unmarshalNames(modifiedJSON)
		if err != nil {
			return nil, err
		}
		ev.Kind = ir.EventKind(kind)
		ev.Object = ir.Record{ID: recordID, Schema: ev.Schema, Fields: fields}
		ev.Modified = modified
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LastEventSeq returns the highest recorded event seq, or 0 when the log
// is empty. A new process resumes its clock from it.
func (s *Store) LastEventSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM mutation_events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last event seq: %w", err)
	}
	return seq, nil
}
