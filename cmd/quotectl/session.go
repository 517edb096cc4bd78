package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/source"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/logger"
)

// loadConfig reads the config file and applies the persistent flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := flags.GetString("dir"); dir != "" {
		cfg.Source.Kind = "dir"
		cfg.Source.Dir = dir
	}
	if url, _ := flags.GetString("url"); url != "" {
		cfg.Source.Kind = "http"
		cfg.Source.BaseURL = url
	}
	if manifest, _ := flags.GetString("manifest"); manifest != "" {
		cfg.Source.ManifestPath = manifest
	}
	if backend, _ := flags.GetString("cache"); backend != "" {
		cfg.Cache.Backend = backend
	}
	if author, _ := flags.GetString("author"); author != "" {
		cfg.Source.Author = author
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := flags.GetString("log-level")
	slog.SetDefault(logger.New(os.Stderr, level, "text"))
	return cfg, nil
}

// loadManifest fetches, normalizes, filters and validates the manifest.
func loadManifest(ctx context.Context, cfg *config.Config, src source.Source) ([]source.Video, error) {
	videos, err := src.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	videos = source.NormalizeManifest(videos, cfg.Source.DefaultAuthor)
	if cfg.Source.Author != "" {
		videos = source.FilterByAuthor(videos, cfg.Source.Author)
	}
	if err := source.ValidateManifest(videos); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return videos, nil
}

// session is one coordinator running for the lifetime of a command.
type session struct {
	cfg    *config.Config
	src    source.Source
	videos []source.Video
	cache  *snapshot.Manager
	coord  *engine.Coordinator
	events engine.ChanSink
	cancel context.CancelFunc
}

func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	src, err := source.New(cfg.Source)
	if err != nil {
		return nil, err
	}
	videos, err := loadManifest(ctx, cfg, src)
	if err != nil {
		return nil, err
	}
	store, err := snapshot.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cache, err := snapshot.NewManager(store, snapshot.Options{
		KeyPrefix:  cfg.Cache.KeyPrefix,
		Timeout:    cfg.Cache.Timeout,
		KeepLatest: cfg.Cache.KeepLatest,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	events := make(engine.ChanSink, cfg.Engine.EventBuffer+len(videos)+8)
	coord := engine.New(source.NewLoader(src, cfg.Engine.FetchTimeout), events, engine.Options{
		Params: engine.ParamsFromConfig(cfg.Engine),
		Cache:  cache,
	})
	runCtx, cancel := context.WithCancel(ctx)
	go coord.Run(runCtx)

	return &session{
		cfg:    cfg,
		src:    src,
		videos: videos,
		cache:  cache,
		coord:  coord,
		events: events,
		cancel: cancel,
	}, nil
}

// build indexes the manifest, reporting progress to w, and returns the
// ready event.
func (s *session) build(ctx context.Context, w io.Writer) (engine.Ready, error) {
	if err := s.coord.Init(ctx, s.videos); err != nil {
		return engine.Ready{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return engine.Ready{}, ctx.Err()
		case e := <-s.events:
			switch e.Type {
			case engine.EventProgress:
				if w != nil && !e.Progress.Cached {
					fmt.Fprintf(w, "[%d/%d] %s\n", e.Progress.Loaded, e.Progress.Total, e.Progress.VideoID)
				}
			case engine.EventError:
				if w != nil {
					fmt.Fprintf(w, "error: %s: %s\n", e.Error.VideoID, e.Error.Message)
				}
			case engine.EventReady:
				return *e.Ready, nil
			}
		}
	}
}

// close stops the coordinator and waits for pending snapshot writes.
func (s *session) close() error {
	s.cancel()
	<-s.coord.Done()
	return s.cache.Close()
}

// drain discards buffered events so the coordinator never blocks on the
// sink while a command is waiting for a reply.
func (s *session) drain(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.coord.Done():
				return
			case <-s.events:
			}
		}
	}()
}
