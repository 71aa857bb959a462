// Package retry implements the optimistic read-validate-write loop. An
// operation reads the latest snapshot, computes a new state and issues a
// conditional write; when the write loses the version race the executor
// backs off a random interval and tries again, up to a per-resource-class
// budget. Deterministic domain rejections are never retried. This loop stays
// correct across processes because it anchors on the store's compare-and-swap
// rather than on in-process memory.
package retry
