// Package ir provides the shared types of the rule engine: values, schemas,
// records, events and the three rule families (reaction, state,
// augmentation).
//
// All other internal packages import ir; ir imports nothing internal, so it
// stays the foundational layer with no circular dependencies.
//
// Key constraints:
//   - No float values; numbers are int64
//   - Ordering uses logical sequence numbers, never wall-clock time
//   - JSON tags use camelCase to match rule definitions
package ir
