package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Server exposes a gatherer on its own listener, so scrapes never pass
// through the API middleware chain or its rate limit.
type Server struct {
	gatherer prometheus.Gatherer
	srv      *http.Server
	logger   *slog.Logger
}

// NewServer returns a Server for port. A nil gatherer serves the default
// registry.
func NewServer(port int, g prometheus.Gatherer) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	s := &Server{
		gatherer: g,
		logger:   slog.Default().With("component", "metrics-server"),
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", HandlerFor(g))
	mux.HandleFunc("GET /{$}", s.index)
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's routes, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is done and then shuts down, giving in-flight
// scrapes up to grace to finish.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("metrics server listening", "addr", s.srv.Addr)
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	s.logger.Info("metrics server stopped")
	return nil
}

// index lists the metric families currently exported, one per line.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	families, err := s.gatherer.Gather()
	if err != nil {
		s.logger.Warn("gathering metrics for index failed", "error", err)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "quote search metrics, scrape /metrics")
	for _, mf := range families {
		fmt.Fprintf(w, "%s\t%s\n", mf.GetName(), mf.GetHelp())
	}
}
