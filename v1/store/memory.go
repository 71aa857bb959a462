package store

import (
	"context"
	"sync"

	claimerrors "github.com/quayside/go-claim/v1/errors"
)

type memoryRow struct {
	data    []byte
	version int64
}

// InMemory is a Store implementation backed by a map. Values are serialized
// through the codec so loaded snapshots never alias stored state; mutating a
// loaded value cannot bypass the conditional write.
type InMemory[T any] struct {
	mu    sync.Mutex
	rows  map[string]memoryRow
	codec Codec
}

// InMemoryOption configures an InMemory store.
type InMemoryOption[T any] func(*InMemory[T])

// WithInMemoryCodec sets the codec used to serialize values.
func WithInMemoryCodec[T any](c Codec) InMemoryOption[T] {
	return func(s *InMemory[T]) { s.codec = c }
}

// NewInMemory returns a new InMemory store.
func NewInMemory[T any](opts ...InMemoryOption[T]) *InMemory[T] {
	s := &InMemory[T]{rows: make(map[string]memoryRow), codec: JSONCodec{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load implements Store.Load.
func (s *InMemory[T]) Load(ctx context.Context, key string) (Snapshot[T], bool, error) {
	var zero Snapshot[T]
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	s.mu.Lock()
	row, ok := s.rows[key]
	s.mu.Unlock()
	if !ok {
		return zero, false, nil
	}
	var v T
	if err := s.codec.Unmarshal(row.data, &v); err != nil {
		return zero, false, err
	}
	return Snapshot[T]{Value: v, Version: row.version}, true, nil
}

// Save implements Store.Save.
func (s *InMemory[T]) Save(ctx context.Context, key string, value T, expect int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := s.codec.Marshal(value)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	current := int64(0)
	if ok {
		current = row.version
	}
	if current != expect {
		return 0, claimerrors.Conflict(key)
	}
	next := expect + 1
	s.rows[key] = memoryRow{data: data, version: next}
	return next, nil
}

// Keys returns the stored keys, mainly for tests and monitoring.
func (s *InMemory[T]) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.rows))
	for k := range s.rows {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	return keys, nil
}
