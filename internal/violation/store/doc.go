// Package store persists violation records.
//
// Three implementations share one contract:
//   - InMemory: copy-on-write snapshots, for tests and single-node deployments
//   - Postgres: durable storage, writers serialized with an advisory lock
//   - Redis: shared storage using INCR ids and optimistic WATCH transactions
//
// Every implementation assigns ids in the order writes are applied, never
// reuses an id, and never exposes a partially written record. Errors are
// reported as sentinel facts (sentinel.ErrNotFound, sentinel.ErrInvalidState).
package store
