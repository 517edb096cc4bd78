package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/resilience"
)

const defaultTimeout = 10 * time.Second

// Manager loads and saves snapshots through a BlobStore. Storage and decode
// failures never escape Load or SaveAsync: they are logged, counted, and
// treated as a miss or a no-op.
type Manager struct {
	store   BlobStore
	codec   Codec
	prefix  string
	timeout time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	pending sync.WaitGroup
	prune   bool
}

// Options tune a Manager. Zero values take the defaults.
type Options struct {
	Codec     Codec
	KeyPrefix string
	Timeout   time.Duration
	Metrics   *metrics.Metrics
	// KeepLatest removes older snapshots under KeyPrefix after each save
	// when the store implements Pruner.
	KeepLatest bool
}

// NewManager wraps store.
func NewManager(store BlobStore, opts Options) (*Manager, error) {
	codec := opts.Codec
	if codec == nil {
		c, err := NewCodec()
		if err != nil {
			return nil, err
		}
		codec = c
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Manager{
		store:   store,
		codec:   codec,
		prefix:  opts.KeyPrefix,
		timeout: timeout,
		metrics: opts.Metrics,
		logger:  logger.WithComponent("snapshot-cache"),
		prune:   opts.KeepLatest,
	}, nil
}

// Load returns the snapshot stored under key, or false on any kind of miss.
// Concurrent loads of the same key share one read.
func (m *Manager) Load(ctx context.Context, key string) (*Snapshot, bool) {
	storeKey := m.prefix + key
	val, err, shared := m.group.Do(storeKey, func() (interface{}, error) {
		var data []byte
		err := resilience.WithTimeout(ctx, m.timeout, "snapshot get", func(ctx context.Context) error {
			var getErr error
			data, getErr = m.store.Get(ctx, storeKey)
			return getErr
		})
		if err != nil {
			return nil, err
		}
		snap, err := m.codec.Decode(data)
		if err != nil {
			return nil, err
		}
		if snap.Key != "" && snap.Key != key {
			return nil, fmt.Errorf("snapshot key %q stored under %q: %w", snap.Key, key, apperrors.ErrSnapshotInvalid)
		}
		return snap, nil
	})
	if err != nil {
		m.miss()
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			m.logger.Debug("snapshot miss", "key", key)
		case errors.Is(err, apperrors.ErrSnapshotInvalid):
			m.logger.Warn("discarding unusable snapshot", "key", key, "error", err)
		default:
			m.logger.Error("snapshot load failed", "key", key, "error", err)
		}
		return nil, false
	}
	if m.metrics != nil {
		m.metrics.SnapshotCacheHits.Inc()
	}
	snap := val.(*Snapshot)
	m.logger.Debug("snapshot hit", "key", key, "quotes", snap.TotalQuotes, "shared", shared)
	return snap, true
}

// Save encodes and stores snap under key, stamping its key, version and
// save time.
func (m *Manager) Save(ctx context.Context, key string, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("saving snapshot: %w", apperrors.ErrInvalidInput)
	}
	stamped := *snap
	stamped.Key = key
	stamped.Version = SchemaVersion
	if stamped.SavedAt.IsZero() {
		stamped.SavedAt = time.Now().UTC()
	}
	start := time.Now()
	data, err := m.codec.Encode(&stamped)
	if err != nil {
		m.writeFailed(key, err)
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	err = resilience.WithTimeout(ctx, m.timeout, "snapshot put", func(ctx context.Context) error {
		return m.store.Put(ctx, m.prefix+key, data)
	})
	if err != nil {
		m.writeFailed(key, err)
		return fmt.Errorf("storing snapshot: %w", err)
	}
	m.logger.Info("snapshot saved",
		"key", key,
		"bytes", len(data),
		"quotes", stamped.TotalQuotes,
		"duration", time.Since(start),
	)
	if m.prune {
		m.pruneExcept(ctx, key)
	}
	return nil
}

// pruneExcept drops every other snapshot under the manager's prefix. A
// failure only costs disk space, so it is logged and ignored.
func (m *Manager) pruneExcept(ctx context.Context, key string) {
	p, ok := m.store.(Pruner)
	if !ok {
		return
	}
	var removed int64
	err := resilience.WithTimeout(ctx, m.timeout, "snapshot prune", func(ctx context.Context) error {
		var err error
		removed, err = p.Prune(ctx, m.prefix, m.prefix+key)
		return err
	})
	if err != nil {
		m.logger.Warn("snapshot prune failed", "key", key, "error", err)
		return
	}
	if removed > 0 {
		m.logger.Info("pruned stale snapshots", "kept", key, "removed", removed)
	}
}

// SaveAsync persists snap in the background. The caller must not mutate
// snap afterwards.
func (m *Manager) SaveAsync(key string, snap *Snapshot) {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		// Save has already logged and counted any failure.
		_ = m.Save(context.Background(), key, snap)
	}()
}

// Wait blocks until every SaveAsync started so far has finished.
func (m *Manager) Wait() {
	m.pending.Wait()
}

// Ping reports the health of the underlying store when it can tell.
func (m *Manager) Ping(ctx context.Context) error {
	if p, ok := m.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close waits for pending saves and closes the store.
func (m *Manager) Close() error {
	m.pending.Wait()
	if c, ok := m.codec.(interface{ Close() }); ok {
		c.Close()
	}
	return m.store.Close()
}

func (m *Manager) miss() {
	if m.metrics != nil {
		m.metrics.SnapshotCacheMisses.Inc()
	}
}

func (m *Manager) writeFailed(key string, err error) {
	if m.metrics != nil {
		m.metrics.SnapshotWriteFailure.Inc()
	}
	m.logger.Error("snapshot save failed", "key", key, "error", err)
}
