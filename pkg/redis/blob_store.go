package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
)

// BlobStore keeps index snapshots in Redis, each under its own key with a
// TTL so abandoned manifests age out.
type BlobStore struct {
	client *Client
	ttl    time.Duration
}

// NewBlobStore wraps client. A zero ttl keeps blobs forever.
func NewBlobStore(client *Client, ttl time.Duration) *BlobStore {
	return &BlobStore{client: client, ttl: ttl}
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key)
	if err != nil {
		if IsNilError(err) {
			return nil, fmt.Errorf("redis key %q: %w", key, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return data, nil
}

func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, key, data, s.ttl); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Prune drops every blob whose key starts with prefix, except keep.
func (s *BlobStore) Prune(ctx context.Context, prefix, keep string) (int64, error) {
	return s.client.FlushByPattern(ctx, globEscape(prefix)+"*", keep)
}

// globEscape quotes the characters Redis SCAN MATCH treats as wildcards.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *BlobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *BlobStore) Close() error {
	return s.client.Close()
}
