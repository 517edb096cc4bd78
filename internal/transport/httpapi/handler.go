// Package httpapi exposes the index coordinator over HTTP: manifest
// replacement, search, transcripts and status.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/quote"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/logger"
)

const maxManifestBytes = 32 << 20

// Engine is the coordinator surface the handler drives.
type Engine interface {
	Init(ctx context.Context, manifest []source.Video) error
	Search(ctx context.Context, query string) ([]ranker.Result, error)
	Transcript(ctx context.Context, videoID string) ([]quote.Unit, error)
	Status() engine.Status
}

// Config holds the request defaults.
type Config struct {
	DefaultLimit  int
	MaxLimit      int
	DefaultAuthor string
}

type Handler struct {
	engine Engine
	source source.Source
	cfg    Config
	logger *slog.Logger
}

// New returns a Handler. src may be nil, which disables manifest reloads.
func New(e Engine, src source.Source, cfg Config) *Handler {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	return &Handler{
		engine: e,
		source: src,
		cfg:    cfg,
		logger: logger.WithComponent("http-api"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/manifest", h.PutManifest)
	mux.HandleFunc("POST /api/v1/manifest/reload", h.ReloadManifest)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/transcripts/{bvid}", h.Transcript)
	mux.HandleFunc("GET /api/v1/status", h.Status)
}

type manifestResponse struct {
	Status   string `json:"status"`
	Videos   int    `json:"videos"`
	CacheKey string `json:"cacheKey"`
}

// PutManifest replaces the active manifest with the request body, which may
// be a bare array or {"videos": [...]}. ?author= keeps one author's videos.
func (h *Handler) PutManifest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxManifestBytes))
	if err != nil {
		h.writeAppError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge,
			"manifest exceeds %d bytes", maxManifestBytes))
		return
	}
	videos, err := source.ParseManifest(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.applyManifest(w, r, videos)
}

// ReloadManifest fetches the manifest from the configured source.
func (h *Handler) ReloadManifest(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		h.writeError(w, http.StatusServiceUnavailable, "no manifest source configured")
		return
	}
	videos, err := h.source.Manifest(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("manifest reload failed", "error", err)
		h.writeAppError(w, err)
		return
	}
	h.applyManifest(w, r, videos)
}

func (h *Handler) applyManifest(w http.ResponseWriter, r *http.Request, videos []source.Video) {
	ctx := r.Context()
	videos = source.NormalizeManifest(videos, h.cfg.DefaultAuthor)
	if author := r.URL.Query().Get("author"); author != "" {
		videos = source.FilterByAuthor(videos, author)
	}
	if err := source.ValidateManifest(videos); err != nil {
		var verr *source.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "invalid manifest",
				"fields": verr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.Init(ctx, videos); err != nil {
		h.writeAppError(w, err)
		return
	}
	key := snapshot.Fingerprint(videos)
	logger.FromContext(ctx).Info("manifest accepted", "videos", len(videos), "cache_key", key)
	h.writeJSON(w, http.StatusAccepted, manifestResponse{
		Status:   "building",
		Videos:   len(videos),
		CacheKey: key,
	})
}

type searchResponse struct {
	Query    string          `json:"query"`
	State    engine.State    `json:"state"`
	Total    int             `json:"total"`
	Returned int             `json:"returned"`
	Results  []ranker.Result `json:"results"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := h.cfg.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.cfg.MaxLimit)
	}

	results, err := h.engine.Search(ctx, query)
	if err != nil {
		logger.FromContext(ctx).Error("search failed", "query", query, "error", err)
		h.writeAppError(w, err)
		return
	}
	total := len(results)
	if len(results) > limit {
		results = results[:limit]
	}
	logger.FromContext(ctx).Debug("search completed", "query", query, "total", total, "returned", len(results))
	h.writeJSON(w, http.StatusOK, searchResponse{
		Query:    query,
		State:    h.engine.Status().State,
		Total:    total,
		Returned: len(results),
		Results:  results,
	})
}

func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("bvid")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "bvid is required")
		return
	}
	if h.engine.Status().State == engine.StateIdle {
		h.writeAppError(w, apperrors.New(apperrors.ErrNotReady, http.StatusServiceUnavailable, "no manifest loaded"))
		return
	}
	quotes, err := h.engine.Transcript(r.Context(), id)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, engine.Transcript{VideoID: id, Quotes: quotes})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Status())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = apperrors.ErrInternal.Error()
	}
	h.writeError(w, status, message)
}
