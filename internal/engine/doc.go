// Package engine implements the reaction dispatcher and cascade controller.
//
// An external mutation enters as an ir.Event. Dispatch assigns it a chain
// token and runs it through three phases:
//
//  1. Index: candidate reaction rules are looked up by (schema, kind).
//     No data access.
//  2. Conditions: each candidate's compiled conditions are evaluated
//     against the event snapshot. The parent chain is fetched between
//     phase 1 and phase 2 only when a surviving candidate references
//     $parent, so rules that do not apply never trigger a query.
//  3. Act: for rules that matched, the scope targets are fetched and the
//     action runs. Set actions write literal or path-resolved values;
//     custom actions are named Go functions that return write intents.
//
// Every write an action produces goes back through the engine as a
// modified event at depth+1. Events of one chain are processed through a
// FIFO queue, so propagation is breadth-first: every rule for an event
// finishes before any event it caused is dispatched.
//
// TERMINATION:
//
// A write that would not change the stored value is a no-op and produces
// no event. A write that would create an event deeper than the maximum
// depth (default 16) aborts the chain with CASCADE_LIMIT_EXCEEDED. The
// settled-write tracker records which (schema, record, field) triples were
// written in the chain so an aborted chain can report the triples that
// oscillated.
//
// TRANSACTIONS:
//
// Process opens one access.Tx per external mutation when the data access
// implements access.Scoped, and commits only if the whole cascade
// succeeded. Dispatch runs inside a caller-provided scope.
//
// ORDERING:
//
// Events are stamped with seq numbers from a logical Clock. Rules are
// evaluated in registration order. Child targets come back from the data
// access ordered by seq then id.
package engine
