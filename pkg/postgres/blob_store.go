package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
)

const createSnapshotTable = `
CREATE TABLE IF NOT EXISTS index_snapshots (
	cache_key  TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	size_bytes INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSnapshot = `
INSERT INTO index_snapshots (cache_key, payload, size_bytes, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (cache_key) DO UPDATE
SET payload = EXCLUDED.payload,
    size_bytes = EXCLUDED.size_bytes,
    updated_at = EXCLUDED.updated_at`

// BlobStore keeps index snapshots in the index_snapshots table.
type BlobStore struct {
	client *Client
}

// NewBlobStore ensures the table exists.
func NewBlobStore(ctx context.Context, client *Client) (*BlobStore, error) {
	if _, err := client.DB.ExecContext(ctx, createSnapshotTable); err != nil {
		return nil, fmt.Errorf("creating index_snapshots table: %w", err)
	}
	return &BlobStore{client: client}, nil
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT payload FROM index_snapshots WHERE cache_key = $1`, key,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("snapshot %q: %w", key, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("querying snapshot %q: %w", key, err)
	}
	return payload, nil
}

func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertSnapshot, key, data, len(data)); err != nil {
			return fmt.Errorf("upserting snapshot %q: %w", key, err)
		}
		return nil
	})
}

// Prune deletes every snapshot under prefix except the one under keep.
func (s *BlobStore) Prune(ctx context.Context, prefix, keep string) (int64, error) {
	res, err := s.client.DB.ExecContext(ctx,
		`DELETE FROM index_snapshots WHERE left(cache_key, length($1)) = $1 AND cache_key <> $2`,
		prefix, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return res.RowsAffected()
}

func (s *BlobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *BlobStore) Close() error {
	return s.client.Close()
}
