// Package storage provides the in-memory Route Store backend.
//
// MemoryStore implements store.Store with RWMutex-guarded maps. Reads return
// clones, so a route handed to the engine can never be mutated by a
// concurrent writer. Ordering matches the SQLite backend: newest first by
// creation time, ties broken by insertion order.
//
// It is the backend for tests and for `mocify serve --storage memory`.
package storage
