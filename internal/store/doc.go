// Package store is the SQLite Data Access implementation.
//
// Records are rows of (id, schema, fields JSON, seq, deleted). Fields are
// stored as canonical JSON (sorted keys, NFC strings) so equal values are
// byte-equal and queries can compare them with json_extract.
//
// # Ordering
//
// Every write takes the next value of a logical clock kept in the counters
// table. Wall-clock time is never stored. Every multi-row read orders by
// seq ASC, id ASC COLLATE BINARY.
//
// # Transactions
//
// Begin returns a Tx that implements the same record operations inside one
// SQLite transaction. The engine uses it to make a whole cascade atomic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
