package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "dir", cfg.Source.Kind)
	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.Equal(t, 128, cfg.Engine.EmbeddingDim)
	assert.Equal(t, 120, cfg.Engine.RerankTopK)
	assert.InDelta(t, 0.12, cfg.Engine.SemanticMinScore, 1e-12)
	assert.Equal(t, "quote-index.commands", cfg.Kafka.Topics.Commands)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9000
  requestTimeout: 3s
source:
  kind: http
  baseUrl: http://example.com/data/
cache:
  backend: redis
engine:
  embeddingDim: 64
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("QS_SERVER_PORT", "9100")
	t.Setenv("QS_KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("QS_KAFKA_ENABLED", "true")
	t.Setenv("QS_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "http", cfg.Source.Kind)
	assert.Equal(t, "http://example.com/data/", cfg.Source.BaseURL)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 64, cfg.Engine.EmbeddingDim)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	// untouched sections keep defaults
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"source kind", "source:\n  kind: ftp\n"},
		{"cache backend", "cache:\n  backend: floppy\n"},
		{"embedding dim", "engine:\n  embeddingDim: 0\n"},
		{"rate window", "server:\n  rateLimit: 10\n  rateWindow: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	dsn := Default().Postgres.DSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=quotesearch")
}
