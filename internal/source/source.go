package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/quote"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/resilience"
)

const maxDocumentBytes = 64 << 20

// Source provides manifests and raw transcripts.
type Source interface {
	Manifest(ctx context.Context) ([]Video, error)
	Transcript(ctx context.Context, v Video) ([]quote.Segment, error)
}

// New builds the source described by cfg.
func New(cfg config.SourceConfig) (Source, error) {
	switch cfg.Kind {
	case "http":
		return NewHTTPSource(cfg)
	case "dir":
		return NewDirSource(cfg.Dir, cfg.ManifestPath), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q: %w", cfg.Kind, apperrors.ErrInvalidInput)
	}
}

// HTTPSource fetches the manifest and transcripts over HTTP. Transcript
// locators are resolved against the base URL.
type HTTPSource struct {
	base         *url.URL
	manifestPath string
	client       *http.Client
	retry        resilience.RetryConfig
	breaker      *resilience.CircuitBreaker
	logger       *slog.Logger
}

// NewHTTPSource validates cfg.BaseURL.
func NewHTTPSource(cfg config.SourceConfig) (*HTTPSource, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing source base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("source base url %q must be http or https: %w", cfg.BaseURL, apperrors.ErrInvalidInput)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{
		base:         base,
		manifestPath: cfg.ManifestPath,
		client:       &http.Client{Timeout: timeout},
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: cfg.RetryBackoff,
		},
		breaker: resilience.NewCircuitBreaker("source "+base.Host, resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     cfg.BreakerReset,
			IsFailure:        upstreamFailure,
		}),
		logger: logger.WithComponent("http-source").With("base_url", base.String()),
	}, nil
}

func (s *HTTPSource) Manifest(ctx context.Context) ([]Video, error) {
	data, err := s.fetch(ctx, s.manifestPath)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	return ParseManifest(data)
}

func (s *HTTPSource) Transcript(ctx context.Context, v Video) ([]quote.Segment, error) {
	if v.Transcript == "" {
		return nil, fmt.Errorf("video %s has no transcript locator: %w", v.VideoID, apperrors.ErrTranscriptUnavailable)
	}
	data, err := s.fetch(ctx, v.Transcript)
	if err != nil {
		return nil, fmt.Errorf("fetching transcript %s: %w", v.Transcript, err)
	}
	return quote.ExtractSegments(data)
}

func (s *HTTPSource) fetch(ctx context.Context, locator string) ([]byte, error) {
	ref, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("parsing locator %q: %w", locator, apperrors.ErrInvalidInput)
	}
	target := s.base.ResolveReference(ref).String()

	var body []byte
	err = s.breaker.Execute(func() error {
		return s.fetchWithRetry(ctx, target, &body)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("fetched document", "url", target, "bytes", len(body))
	return body, nil
}

// upstreamFailure reports whether err says something about the health of
// the source server rather than about one missing document.
func upstreamFailure(err error) bool {
	return !errors.Is(err, apperrors.ErrNotFound) &&
		!errors.Is(err, apperrors.ErrTranscriptUnavailable) &&
		!errors.Is(err, context.Canceled)
}

func (s *HTTPSource) fetchWithRetry(ctx context.Context, target string, body *[]byte) error {
	return resilience.Retry(ctx, "fetch "+target, s.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return resilience.Permanent(fmt.Errorf("%s: %w", target, apperrors.ErrNotFound))
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%s: server returned %d", target, resp.StatusCode)
		case resp.StatusCode >= 400:
			return resilience.Permanent(fmt.Errorf("%s: server returned %d: %w", target, resp.StatusCode, apperrors.ErrTranscriptUnavailable))
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
		if err != nil {
			return err
		}
		*body = data
		return nil
	})
}

// DirSource reads the manifest and transcripts from a local directory.
// Transcript locators are paths relative to the directory.
type DirSource struct {
	dir          string
	manifestFile string
}

// NewDirSource returns a DirSource rooted at dir. manifestFile defaults to
// manifest.json.
func NewDirSource(dir, manifestFile string) *DirSource {
	if manifestFile == "" {
		manifestFile = "manifest.json"
	}
	return &DirSource{dir: dir, manifestFile: manifestFile}
}

func (s *DirSource) Manifest(ctx context.Context) ([]Video, error) {
	data, err := s.read(ctx, s.manifestFile)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data)
}

func (s *DirSource) Transcript(ctx context.Context, v Video) ([]quote.Segment, error) {
	if v.Transcript == "" {
		return nil, fmt.Errorf("video %s has no transcript locator: %w", v.VideoID, apperrors.ErrTranscriptUnavailable)
	}
	data, err := s.read(ctx, v.Transcript)
	if err != nil {
		return nil, fmt.Errorf("reading transcript %s: %w", v.Transcript, err)
	}
	return quote.ExtractSegments(data)
}

func (s *DirSource) read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := filepath.FromSlash(strings.TrimPrefix(name, "/"))
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("path %q escapes source directory: %w", name, apperrors.ErrInvalidInput)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Loader turns a video's raw transcript into context-linked quote units.
type Loader struct {
	src     Source
	timeout time.Duration
}

// NewLoader wraps src. A positive timeout bounds each Load.
func NewLoader(src Source, timeout time.Duration) *Loader {
	return &Loader{src: src, timeout: timeout}
}

// Load fetches and segments the transcript of v.
func (l *Loader) Load(ctx context.Context, v Video) ([]quote.Unit, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	segments, err := l.src.Transcript(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("loading transcript for %s: %w", v.VideoID, err)
	}
	return quote.Build(v.VideoID, segments), nil
}
