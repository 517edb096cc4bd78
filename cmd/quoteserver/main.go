package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/source"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/transport/httpapi"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/transport/kafkabus"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	loadOnStart := flag.Bool("load", true, "index the source manifest on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting quote search service",
		"port", cfg.Server.Port,
		"source", cfg.Source.Kind,
		"cache_backend", cfg.Cache.Backend,
		"kafka", cfg.Kafka.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *loadOnStart); err != nil {
		slog.Error("quote search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("quote search service stopped")
}

func run(ctx context.Context, cfg *config.Config, loadOnStart bool) error {
	m := metrics.New(nil)

	src, err := source.New(cfg.Source)
	if err != nil {
		return fmt.Errorf("creating source: %w", err)
	}

	store, err := snapshot.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	cache, err := snapshot.NewManager(store, snapshot.Options{
		KeyPrefix: cfg.Cache.KeyPrefix,
		Timeout:   cfg.Cache.Timeout,
		Metrics:   m,

		KeepLatest: cfg.Cache.KeepLatest,
	})
	if err != nil {
		store.Close()
		return fmt.Errorf("creating snapshot manager: %w", err)
	}
	defer cache.Close()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, nil)
		g.Go(func() error { return metricsServer.Run(gctx, cfg.Server.ShutdownTimeout) })
	}

	sinks := engine.MultiSink{engine.LogSink{Logger: logger.WithComponent("engine-events")}}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Events)
		defer producer.Close()
		eventSink := kafkabus.NewSink(producer, cfg.Engine.EventBuffer)
		sinks = append(sinks, eventSink)
		g.Go(func() error { return eventSink.Run(gctx) })
	}

	coord := engine.New(source.NewLoader(src, cfg.Engine.FetchTimeout), sinks, engine.Options{
		Params:        engine.ParamsFromConfig(cfg.Engine),
		Cache:         cache,
		Metrics:       m,
		CommandBuffer: cfg.Engine.CommandBuffer,
	})
	g.Go(func() error { return coord.Run(gctx) })

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Commands, kafkabus.CommandHandler(coord))
		g.Go(func() error { return consumer.Start(gctx) })
		slog.Info("kafka command bus enabled",
			"commands", cfg.Kafka.Topics.Commands,
			"events", cfg.Kafka.Topics.Events,
		)
	}

	if loadOnStart {
		g.Go(func() error {
			initial(gctx, cfg, src, coord)
			return nil
		})
	}

	checker := health.NewChecker(cfg.Cache.Timeout)
	checker.Register("index", indexCheck(coord))
	checker.Register("snapshot_store", health.PingCheck(cache.Ping))

	api := http.NewServeMux()
	httpapi.New(coord, src, httpapi.Config{
		DefaultLimit:  cfg.Engine.DefaultLimit,
		MaxLimit:      cfg.Engine.MaxLimit,
		DefaultAuthor: cfg.Source.DefaultAuthor,
	}).Register(api)
	var apiHandler http.Handler = api
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)
		g.Go(func() error {
			limiter.Run(gctx)
			return nil
		})
		apiHandler = middleware.RateLimit(limiter)(apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.Recover(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		slog.Info("quote search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// initial indexes the source manifest once. A failure is logged; the
// service stays up so a manifest can still be posted.
func initial(ctx context.Context, cfg *config.Config, src source.Source, coord *engine.Coordinator) {
	videos, err := src.Manifest(ctx)
	if err != nil {
		slog.Warn("initial manifest unavailable", "error", err)
		return
	}
	videos = source.NormalizeManifest(videos, cfg.Source.DefaultAuthor)
	if cfg.Source.Author != "" {
		videos = source.FilterByAuthor(videos, cfg.Source.Author)
	}
	if err := source.ValidateManifest(videos); err != nil {
		slog.Warn("initial manifest rejected", "error", err)
		return
	}
	if err := coord.Init(ctx, videos); err != nil {
		slog.Warn("initial manifest not submitted", "error", err)
		return
	}
	slog.Info("initial manifest submitted", "videos", len(videos))
}

func indexCheck(coord *engine.Coordinator) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		st := coord.Status()
		switch st.State {
		case engine.StateReady:
			return health.ComponentHealth{
				Status:  health.StatusUp,
				Message: fmt.Sprintf("%d quotes from %d videos", st.TotalQuotes, st.TotalVideos),
			}
		case engine.StateBuilding:
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("building %d/%d", st.Loaded, st.TotalVideos),
			}
		default:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no manifest loaded"}
		}
	}
}
