// Package lock provides keyed mutual exclusion with in-memory and Redis
// implementations. The Manager serializes multi-step check-then-act sequences
// on a single resource key within one process; paired with the store's
// conditional writes it forms the fast path, never the sole guard, for state
// reachable from more than one process. Locks can carry an optional TTL to
// avoid deadlocks on crashed holders.
package lock
