package host

import (
	"context"
	"fmt"

	"github.com/roach88/ruleweave/internal/augment"
	"github.com/roach88/ruleweave/internal/engine"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/state"
	"github.com/roach88/ruleweave/internal/store"
	"github.com/roach88/ruleweave/internal/validation"
)

// Mutation is the outcome of one external mutation.
type Mutation struct {
	// Records holds the written records, the root first. Created children
	// follow their parent in payload order.
	Records []ir.Record
	// Cascade is nil when nothing was dispatched.
	Cascade *engine.Result
}

// Record returns the root record.
func (m *Mutation) Record() ir.Record {
	if len(m.Records) == 0 {
		return ir.Record{}
	}
	return m.Records[0]
}

// Create validates payload against the toCreate contract of schemaID,
// inserts the record and its nested children, and dispatches one created
// event per record, parents before children.
func (h *Host) Create(ctx context.Context, schemaID string, payload ir.Object) (*Mutation, error) {
	if err := h.composer.Validate(schemaID, ir.TargetCreate, ir.ContextSelf, payload); err != nil {
		return nil, err
	}
	contract, err := h.composer.Compose(schemaID, ir.TargetCreate, ir.ContextSelf)
	if err != nil {
		return nil, err
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var created []ir.Record
	if err := h.insertTree(ctx, tx, contract, payload, "", "", &created); err != nil {
		return nil, err
	}
	for _, rec := range created {
		st, err := h.compile(ctx, tx, rec)
		if err != nil {
			return nil, err
		}
		if err := state.CheckValues(st, rec.Fields); err != nil {
			return nil, fmt.Errorf("create %s: %w", rec.Schema, err)
		}
	}

	evs := make([]ir.Event, len(created))
	for i, rec := range created {
		evs[i] = ir.Event{Schema: rec.Schema, Kind: ir.EventCreated, Object: rec}
	}
	res, err := h.engine.Dispatch(ctx, tx, evs...)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("schema", schemaID).
		Str("id", created[0].ID).
		Int("records", len(created)).
		Str("chain", res.Chain).
		Msg("created")
	return &Mutation{Records: created, Cascade: res}, nil
}

// insertTree inserts the payload's own record, then its children. refField
// and parentID link a nested record to the record it was composed under.
func (h *Host) insertTree(ctx context.Context, tx *store.Tx, contract ir.Contract, payload ir.Object, refField, parentID string, out *[]ir.Record) error {
	s, ok := h.reg.Schema(contract.Schema)
	if !ok {
		return fmt.Errorf("create: unknown schema %q", contract.Schema)
	}
	own, children := augment.Split(contract, payload)
	fields := validation.ApplyDefaults(s, own)
	if refField != "" {
		fields[refField] = ir.String(parentID)
	}
	rec, err := tx.Insert(ctx, ir.Record{Schema: contract.Schema, Fields: fields})
	if err != nil {
		return err
	}
	*out = append(*out, rec)

	for _, req := range contract.Children {
		items := children[req.Alias]
		if len(items) == 0 {
			continue
		}
		nested, err := h.composer.Compose(req.Schema, contract.Target, ir.ContextNested)
		if err != nil {
			return err
		}
		child, _ := h.reg.Schema(req.Schema)
		ref, _ := child.RefTo(contract.Schema)
		for _, item := range items {
			if err := h.insertTree(ctx, tx, nested, item, ref.Name, rec.ID, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// Update applies a partial write to a stored record.
//
// Checks run in order: immutable fields from the compiled $state, the
// toEdit contract (selection, then per-schema constraints), then the
// remaining state constraints on the merged record. Fields whose value
// would not change are dropped; when none remain nothing is written and
// no event is dispatched.
func (h *Host) Update(ctx context.Context, schemaID, id string, fields ir.Object) (*Mutation, error) {
	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rec, err := tx.Get(ctx, schemaID, id)
	if err != nil {
		return nil, err
	}
	st, err := h.compile(ctx, tx, rec)
	if err != nil {
		return nil, err
	}
	stateErr := state.CheckWrite(st, rec, fields)
	if state.IsImmutableField(stateErr) {
		return nil, stateErr
	}
	if err := h.composer.Validate(schemaID, ir.TargetEdit, ir.ContextSelf, fields); err != nil {
		return nil, err
	}
	if stateErr != nil {
		return nil, stateErr
	}

	contract, err := h.composer.Compose(schemaID, ir.TargetEdit, ir.ContextSelf)
	if err != nil {
		return nil, err
	}
	own, children := augment.Split(contract, fields)
	if len(children) > 0 {
		return nil, fmt.Errorf("update %s/%s: child payloads are not accepted on edit", schemaID, id)
	}

	changed := Changed(rec.Fields, own)
	if len(changed) == 0 {
		h.logger.Debug().Str("schema", schemaID).Str("id", id).Msg("update changes nothing")
		return &Mutation{Records: []ir.Record{rec}}, nil
	}

	updated, err := tx.Write(ctx, rec, changed)
	if err != nil {
		return nil, err
	}
	res, err := h.engine.Dispatch(ctx, tx, ir.Event{
		Schema:   schemaID,
		Kind:     ir.EventModified,
		Object:   updated,
		Modified: changed.SortedKeys(),
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("schema", schemaID).
		Str("id", id).
		Strs("modified", changed.SortedKeys()).
		Str("chain", res.Chain).
		Msg("updated")
	return &Mutation{Records: []ir.Record{updated}, Cascade: res}, nil
}

// Delete soft-deletes a record and dispatches a deleted event carrying its
// last state.
func (h *Host) Delete(ctx context.Context, schemaID, id string) (*Mutation, error) {
	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rec, err := tx.Delete(ctx, schemaID, id)
	if err != nil {
		return nil, err
	}
	res, err := h.engine.Dispatch(ctx, tx, ir.Event{Schema: schemaID, Kind: ir.EventDeleted, Object: rec})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	h.logger.Info().Str("schema", schemaID).Str("id", id).Str("chain", res.Chain).Msg("deleted")
	return &Mutation{Records: []ir.Record{rec}, Cascade: res}, nil
}

// Changed returns the entries of fields whose value differs from current.
// Null against an absent field is unchanged.
func Changed(current, fields ir.Object) ir.Object {
	out := make(ir.Object, len(fields))
	for k, v := range fields {
		if ir.Equal(current[k], v) {
			continue
		}
		out[k] = v
	}
	return out
}
