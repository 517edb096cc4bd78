package engine

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/quote"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/source"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/metrics"
)

const defaultCommandBuffer = 64

// TranscriptLoader produces the quote units of one video. source.Loader is
// the production implementation.
type TranscriptLoader interface {
	Load(ctx context.Context, v source.Video) ([]quote.Unit, error)
}

// SnapshotStore is the part of snapshot.Manager the coordinator needs.
type SnapshotStore interface {
	Load(ctx context.Context, key string) (*snapshot.Snapshot, bool)
	SaveAsync(key string, snap *snapshot.Snapshot)
}

// Options configure a Coordinator. Zero values take the defaults; a nil
// Cache disables snapshot restore and persistence.
type Options struct {
	Params        ranker.Params
	Cache         SnapshotStore
	Metrics       *metrics.Metrics
	CommandBuffer int
}

// ParamsFromConfig overlays the configurable ranking knobs on the defaults.
// Limit stays 0: the search command always returns every match.
func ParamsFromConfig(cfg config.EngineConfig) ranker.Params {
	p := ranker.DefaultParams()
	if cfg.EmbeddingDim > 0 {
		p.Dim = cfg.EmbeddingDim
	}
	if cfg.RerankTopK > 0 {
		p.RerankTopK = cfg.RerankTopK
	}
	if cfg.SemanticMinScore > 0 {
		p.SemanticMinScore = cfg.SemanticMinScore
	}
	if cfg.LexicalWeight > 0 || cfg.SemanticWeight > 0 {
		p.LexicalWeight = cfg.LexicalWeight
		p.SemanticWeight = cfg.SemanticWeight
	}
	return p
}
