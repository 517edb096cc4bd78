package snapshot

import (
	"context"
	"strings"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
)

// BlobStore is the byte-level storage behind a Manager. Get returns an error
// wrapping apperrors.ErrNotFound for unknown keys.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

// Pruner is implemented by stores that can drop every blob under prefix
// except keep. It returns the number of blobs removed.
type Pruner interface {
	Prune(ctx context.Context, prefix, keep string) (int64, error)
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Prune(ctx context.Context, prefix, keep string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key := range s.blobs {
		if key != keep && strings.HasPrefix(key, prefix) {
			delete(s.blobs, key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// NopStore stores nothing; every Get misses.
type NopStore struct{}

func (NopStore) Get(context.Context, string) ([]byte, error) { return nil, apperrors.ErrNotFound }
func (NopStore) Put(context.Context, string, []byte) error    { return nil }
func (NopStore) Close() error                                  { return nil }
