// Package actions holds the built-in named custom actions.
//
//	rollupStatus   scope parent: when every sibling of the triggering
//	               record shares its status, the parent takes that status.
//	cascadeStatus  scope child: every child takes the triggering record's
//	               status.
//
// Both return write intents; the engine applies them.
package actions

import (
	"context"
	"fmt"

	"github.com/roach88/ruleweave/internal/access"
	"github.com/roach88/ruleweave/internal/engine"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/query"
)

// Names of the built-in actions.
const (
	RollupStatus  = "rollupStatus"
	CascadeStatus = "cascadeStatus"
)

// StatusField is the field the built-ins read and write.
const StatusField = "status"

// Register adds the built-ins to a. schemas resolves the reference field
// from a child schema to its parent.
func Register(a *engine.Actions, schemas access.SchemaSource) error {
	if err := a.Register(RollupStatus, Rollup(schemas, StatusField)); err != nil {
		return err
	}
	return a.Register(CascadeStatus, Cascade(schemas, StatusField))
}

// Rollup returns an action that copies field from the triggering record to
// each target parent once every record of the triggering schema referring
// to that parent holds the same value.
func Rollup(schemas access.SchemaSource, field string) engine.CustomFunc {
	return func(ctx context.Context, call engine.CustomCall) ([]ir.Write, error) {
		value, ok := call.Event.Object.Get(field)
		if !ok || ir.IsNull(value) {
			return nil, nil
		}
		child, ok := schemas.Schema(call.Event.Schema)
		if !ok {
			return nil, fmt.Errorf("rollup: unknown schema %q", call.Event.Schema)
		}

		var writes []ir.Write
		for _, parent := range call.Targets {
			ref, ok := child.RefTo(parent.Schema)
			if !ok {
				continue
			}
			siblings, err := call.Data.Query(ctx, child.ID, query.Eq(ref.Name, ir.String(parent.ID)))
			if err != nil {
				return nil, fmt.Errorf("rollup: %w", err)
			}
			if !allEqual(siblings, field, value) {
				continue
			}
			writes = append(writes, ir.Write{Target: parent, Fields: ir.Object{field: value}})
		}
		return writes, nil
	}
}

// Cascade returns an action that copies field from the triggering record
// to every target whose schema declares it.
func Cascade(schemas access.SchemaSource, field string) engine.CustomFunc {
	return func(_ context.Context, call engine.CustomCall) ([]ir.Write, error) {
		value, ok := call.Event.Object.Get(field)
		if !ok || ir.IsNull(value) {
			return nil, nil
		}
		writes := make([]ir.Write, 0, len(call.Targets))
		for _, target := range call.Targets {
			if s, ok := schemas.Schema(target.Schema); !ok || !s.HasField(field) {
				continue
			}
			writes = append(writes, ir.Write{Target: target, Fields: ir.Object{field: value}})
		}
		return writes, nil
	}
}

func allEqual(recs []ir.Record, field string, value ir.Value) bool {
	for _, r := range recs {
		v, _ := r.Get(field)
		if !ir.Equal(v, value) {
			return false
		}
	}
	return true
}
