// Package store provides SQLite-backed durable storage for relayed transactions.
//
// The store holds two tables:
//   - tx: one row per transaction (payload, status, priority, timestamps)
//   - tx_dependency: (dependent_id, required_id) edges, both foreign keys into tx
//
// It is the only state shared between the ingress server and the dispatch
// pipeline, and the synchronisation point between them.
//
// # Guarantees
//
// Atomic batch insert:
//   - Create writes every record and every edge of a batch in one SQL
//     transaction, or nothing
//   - A required id must exist when its edge is written; earlier entries of
//     the same batch count, later ones do not
//
// Deterministic selection:
//   - NextReady orders by priority ASC, created_at ASC, id ASC COLLATE BINARY
//   - A record with an unsatisfied dependency is never returned
//
// Monotonic updates:
//   - Update only follows tx.CanTransition edges
//   - updated_at never decreases and never precedes created_at
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as INTEGER unix nanoseconds so ordering by
// created_at is exact.
package store
