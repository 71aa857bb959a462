package store

import (
	"context"
)

// Snapshot pairs a value with the version token it was read at. Version 0
// means the key does not exist yet.
type Snapshot[T any] struct {
	Value   T
	Version int64
}

// Store is a versioned snapshot store. Save is the compare-and-swap every
// aggregate rides on: it succeeds only when the stored version still equals
// expect (expect 0 demands absence), so successful writes per key are totally
// ordered by version. A lost race surfaces as a retryable VersionConflict
// error.
//
// T represents the aggregate type stored under each key.
type Store[T any] interface {
	// Load retrieves the latest snapshot for a key. The boolean return
	// indicates whether the key exists.
	Load(ctx context.Context, key string) (Snapshot[T], bool, error)
	// Save conditionally writes value and returns the new version
	// (expect+1) on success.
	Save(ctx context.Context, key string, value T, expect int64) (int64, error)
}
