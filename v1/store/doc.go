// Package store provides versioned snapshot storage with conditional writes.
// The in-memory, Redis and GORM backends all expose the same contract: a read
// returns a value plus its version token, and a write commits only if the
// version is unchanged since the read. Everything above this package builds
// optimistic concurrency out of those two operations.
package store
