// Package store persists device credentials using SQLite.
//
// # Overview
//
// The agent needs its tenant credentials to survive restarts; without them
// it would have to bootstrap again. The store exposes them as an opaque
// key/value interface:
//
//	kv, err := store.NewSQLiteStore("/var/lib/sragent/agent.db")
//	tenant, err := kv.Get(ctx, store.KeyTenant)
//
// Missing keys return ErrNotFound.
//
// # Implementations
//
//   - SQLiteStore: modernc.org/sqlite (pure Go), WAL mode, schema created on open
//   - MockStore: in-memory, for tests
package store
