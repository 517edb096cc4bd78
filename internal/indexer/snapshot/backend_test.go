package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/badger"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	tests := []struct {
		backend string
		want    any
	}{
		{"memory", &MemoryStore{}},
		{"none", NopStore{}},
		{"file", &FileStore{}},
		{"badger", &badger.Store{}},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg.Cache.Backend = tt.backend
			cfg.Cache.Dir = t.TempDir()
			cfg.Badger.InMemory = true
			store, err := OpenStore(ctx, cfg)
			require.NoError(t, err)
			defer store.Close()
			assert.IsType(t, tt.want, store)
		})
	}

	cfg.Cache.Backend = "floppy"
	_, err := OpenStore(ctx, cfg)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestManagerOverBadger(t *testing.T) {
	ctx := context.Background()
	store, err := badger.Open(config.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	m, err := NewManager(store, Options{KeyPrefix: "quote-index:"})
	require.NoError(t, err)
	defer m.Close()

	snap := buildSnapshot(t)
	require.NoError(t, m.Save(ctx, "v1:2:abc", snap))
	got, ok := m.Load(ctx, "v1:2:abc")
	require.True(t, ok)
	assert.Equal(t, snap.TotalQuotes, got.TotalQuotes)
	assert.NoError(t, m.Ping(ctx))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"quote-index:v1:2:abc"}, keys)
}
