// Package access defines the Data Access boundary the rule engine consumes.
//
// The engine never talks to storage directly. It fetches related records,
// writes field updates and runs filtered queries through DataAccess. When
// the implementation also satisfies Scoped, the engine opens one Tx per
// external mutation and runs the whole cascade inside it, committing on
// success and rolling back on any failure.
package access

import (
	"context"
	"errors"

	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/query"
)

// ErrNotFound is returned when a record does not exist or is deleted.
var ErrNotFound = errors.New("record not found")

// DataAccess is the storage collaborator.
type DataAccess interface {
	// Get loads one live record.
	Get(ctx context.Context, schema, id string) (ir.Record, error)

	// FetchRelated returns the records related to rec by scope.
	// ScopeSelf returns rec reloaded; ScopeParent returns the record each
	// referring field points at, in field declaration order; ScopeChild
	// returns every live record referring to rec, ordered by seq then id.
	FetchRelated(ctx context.Context, rec ir.Record, scope ir.Scope) ([]ir.Record, error)

	// Write applies field updates to rec and returns the stored result.
	Write(ctx context.Context, rec ir.Record, fields ir.Object) (ir.Record, error)

	// Query returns live records of schema matching filter.
	Query(ctx context.Context, schema string, filter query.Predicate) ([]ir.Record, error)
}

// Tx is a DataAccess bound to one transaction.
type Tx interface {
	DataAccess
	Commit() error
	Rollback() error
}

// Scoped is implemented by a DataAccess that can open transactions.
type Scoped interface {
	Begin(ctx context.Context) (Tx, error)
}

// EventLog records dispatched mutation events.
type EventLog interface {
	AppendEvent(ctx context.Context, ev ir.Event) error
}

// SchemaSource supplies schema and relation definitions.
// registry.Registry implements it.
type SchemaSource interface {
	Schema(id string) (*ir.Schema, bool)
	Children(parent string) []ir.Relation
}
