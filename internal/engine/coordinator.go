// Package engine owns the active index generation. A single goroutine,
// Run, applies commands and async fetch results in order; everything it
// owns is touched by no other goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/quote"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/metrics"
)

type resultKind int

const (
	restoreDone resultKind = iota
	fetchDone
	lazyDone
)

// asyncResult is what a fetch or restore goroutine reports back. It is
// applied only if token still matches the active build.
type asyncResult struct {
	kind   resultKind
	token  uint64
	snap   *snapshot.Snapshot
	hit    bool
	video  source.Video
	quotes []quote.Unit
	err    error
}

// Coordinator switches between manifests, builds or restores the index for
// the active one, and answers search and transcript commands.
type Coordinator struct {
	loader  TranscriptLoader
	cache   SnapshotStore
	sink    EventSink
	params  ranker.Params
	metrics *metrics.Metrics
	logger  *slog.Logger

	commands chan Command
	results  chan asyncResult
	done     chan struct{}
	running  atomic.Bool
	ctx      context.Context

	state      State
	token      uint64
	manifest   []source.Video
	videos     map[string]source.Video
	cacheKey   string
	cached     bool
	entries    []*index.Entry
	model      index.RankModel
	quotes     map[string][]quote.Unit
	builder    *index.Builder
	next       int
	failed     []string
	pending    map[string][]chan []quote.Unit
	loading    map[string]bool
	buildStart time.Time
	readyAt    time.Time

	statusMu sync.RWMutex
	status   Status
}

// New returns an idle coordinator. Nothing happens until Run is started.
func New(loader TranscriptLoader, sink EventSink, opts Options) *Coordinator {
	if sink == nil {
		sink = nopSink{}
	}
	if opts.Params == (ranker.Params{}) {
		opts.Params = ranker.DefaultParams()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = defaultCommandBuffer
	}
	return &Coordinator{
		loader:   loader,
		cache:    opts.Cache,
		sink:     sink,
		params:   opts.Params,
		metrics:  opts.Metrics,
		logger:   logger.WithComponent("index-coordinator"),
		commands: make(chan Command, opts.CommandBuffer),
		results:  make(chan asyncResult),
		done:     make(chan struct{}),
		state:    StateIdle,
		model:    index.EmptyRankModel(),
		videos:   make(map[string]source.Video),
		quotes:   make(map[string][]quote.Unit),
		pending:  make(map[string][]chan []quote.Unit),
		loading:  make(map[string]bool),
	}
}

// Run processes commands until ctx is cancelled. It may be called once.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("coordinator already running")
	}
	c.ctx = ctx
	defer close(c.done)

	c.logger.Info("index coordinator started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("index coordinator stopped", "token", c.token, "state", c.state)
			return nil
		case cmd := <-c.commands:
			c.handle(cmd)
		case res := <-c.results:
			if ctx.Err() != nil {
				continue
			}
			c.apply(res)
		}
	}
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Submit enqueues cmd. It fails with ErrEngineStopped once Run has returned.
func (c *Coordinator) Submit(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return apperrors.ErrEngineStopped
	default:
	}
	select {
	case c.commands <- cmd:
		return nil
	case <-c.done:
		return apperrors.ErrEngineStopped
	case <-ctx.Done():
		return fmt.Errorf("submitting %s command: %w", cmd.Type, ctx.Err())
	}
}

// Init replaces the active manifest.
func (c *Coordinator) Init(ctx context.Context, manifest []source.Video) error {
	return c.Submit(ctx, InitCommand(manifest))
}

// Search ranks query against the active index and waits for the answer.
// The results event is emitted as well.
func (c *Coordinator) Search(ctx context.Context, query string) ([]ranker.Result, error) {
	reply := make(chan []ranker.Result, 1)
	cmd := SearchCommand(query)
	cmd.results = reply
	if err := c.Submit(ctx, cmd); err != nil {
		return nil, err
	}
	select {
	case results := <-reply:
		return results, nil
	case <-c.done:
		return nil, apperrors.ErrEngineStopped
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for search results: %w", ctx.Err())
	}
}

// Transcript returns the quotes of videoID, waiting for the build or a lazy
// load when they are not cached yet. Unknown videos yield an empty list.
func (c *Coordinator) Transcript(ctx context.Context, videoID string) ([]quote.Unit, error) {
	reply := make(chan []quote.Unit, 1)
	cmd := TranscriptCommand(videoID)
	cmd.transcript = reply
	if err := c.Submit(ctx, cmd); err != nil {
		return nil, err
	}
	select {
	case quotes := <-reply:
		return quotes, nil
	case <-c.done:
		return nil, apperrors.ErrEngineStopped
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for transcript %s: %w", videoID, ctx.Err())
	}
}

// Status returns a copy of the coordinator's bookkeeping.
func (c *Coordinator) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	s := c.status
	s.FailedVideos = slices.Clone(c.status.FailedVideos)
	return s
}

func (c *Coordinator) handle(cmd Command) {
	switch cmd.Type {
	case CommandInit:
		c.startBuild(cmd.Manifest)
	case CommandSearch:
		c.search(cmd)
	case CommandGetTranscript:
		c.transcript(cmd)
	default:
		c.logger.Warn("ignoring unknown command", "type", cmd.Type)
	}
}

func (c *Coordinator) setState(to State) {
	if !canTransition(c.state, to) {
		c.logger.Error("illegal state transition", "from", c.state, "to", to)
		return
	}
	c.state = to
}

func (c *Coordinator) startBuild(manifest []source.Video) {
	c.token++
	c.abandonPending()

	c.manifest = manifest
	c.videos = make(map[string]source.Video, len(manifest))
	for _, v := range manifest {
		if _, dup := c.videos[v.VideoID]; !dup {
			c.videos[v.VideoID] = v
		}
	}
	c.cacheKey = snapshot.Fingerprint(manifest)
	c.cached = false
	c.entries = nil
	c.model = index.EmptyRankModel()
	c.quotes = make(map[string][]quote.Unit, len(manifest))
	c.builder = index.NewBuilder(c.params.Dim)
	c.next = 0
	c.failed = nil
	c.loading = make(map[string]bool)
	c.buildStart = time.Now()
	c.readyAt = time.Time{}
	c.setState(StateBuilding)
	c.publish()

	c.logger.Info("build started",
		"token", c.token,
		"videos", len(manifest),
		"cache_key", c.cacheKey,
	)

	if c.cache == nil {
		c.fetchNext()
		return
	}
	key := c.cacheKey
	c.spawn(restoreDone, func(ctx context.Context, res *asyncResult) {
		res.snap, res.hit = c.cache.Load(ctx, key)
	})
}

// spawn runs fn off the actor and posts its result, tagged with the current
// token. The send is abandoned if Run has exited.
func (c *Coordinator) spawn(kind resultKind, fn func(ctx context.Context, res *asyncResult)) {
	res := asyncResult{kind: kind, token: c.token}
	ctx := c.ctx
	go func() {
		fn(ctx, &res)
		select {
		case c.results <- res:
		case <-c.done:
		}
	}()
}

func (c *Coordinator) apply(res asyncResult) {
	if res.token != c.token {
		c.metrics.StaleResultsDropped.Inc()
		c.logger.Debug("dropping stale result",
			"result_token", res.token,
			"token", c.token,
			"bvid", res.video.VideoID,
		)
		return
	}
	switch res.kind {
	case restoreDone:
		c.onRestored(res)
	case fetchDone:
		c.onFetched(res)
	case lazyDone:
		c.onLazyLoaded(res)
	}
}

func (c *Coordinator) onRestored(res asyncResult) {
	if !res.hit || res.snap == nil || res.snap.Entries == nil {
		c.fetchNext()
		return
	}
	snap := res.snap
	if i := mismatchedVector(snap.Entries, c.params.Dim); i >= 0 {
		c.logger.Warn("discarding snapshot with foreign vector width",
			"key", c.cacheKey,
			"want", c.params.Dim,
			"got", len(snap.Entries[i].Search.Vector),
		)
		c.fetchNext()
		return
	}
	c.entries = snap.Entries
	c.model = snap.Model
	if c.model.IDF == nil {
		c.model = index.ComputeRankModel(c.entries)
	}
	c.quotes = maps.Clone(snap.Quotes)
	if c.quotes == nil {
		c.quotes = make(map[string][]quote.Unit)
	}
	c.builder = nil
	c.cached = true

	total := len(c.manifest)
	c.next = total
	c.sink.Emit(progressEvent(Progress{Loaded: total, Total: total, Cached: true}))
	c.becomeReady()
	c.flushPending()
}

// mismatchedVector returns the index of the first entry whose semantic vector
// is not dim wide, or -1.
func mismatchedVector(entries []*index.Entry, dim int) int {
	for i, e := range entries {
		if len(e.Search.Vector) != dim {
			return i
		}
	}
	return -1
}

func (c *Coordinator) fetchNext() {
	if c.next >= len(c.manifest) {
		c.finishBuild()
		return
	}
	video := c.manifest[c.next]
	c.spawn(fetchDone, func(ctx context.Context, res *asyncResult) {
		res.video = video
		res.quotes, res.err = c.loader.Load(ctx, video)
	})
}

func (c *Coordinator) onFetched(res asyncResult) {
	id := res.video.VideoID
	quotes := res.quotes
	if res.err != nil {
		quotes = c.recordFailure(res.video, res.err)
	} else {
		c.metrics.VideosIndexedTotal.Inc()
	}
	if quotes == nil {
		quotes = []quote.Unit{}
	}
	if _, seen := c.quotes[id]; !seen {
		c.quotes[id] = quotes
		c.builder.AddQuotes(videoInfo(res.video), quotes)
	} else {
		c.logger.Warn("duplicate video in manifest, keeping first", "bvid", id)
	}
	c.next++

	c.servePending(id)
	c.sink.Emit(progressEvent(Progress{Loaded: c.next, Total: len(c.manifest), VideoID: id}))
	c.publish()
	c.fetchNext()
}

func (c *Coordinator) recordFailure(video source.Video, err error) []quote.Unit {
	c.metrics.TranscriptErrors.Inc()
	c.failed = append(c.failed, video.VideoID)
	c.logger.Warn("transcript unavailable", "bvid", video.VideoID, "error", err)
	c.sink.Emit(errorEvent(Failure{Message: err.Error(), VideoID: video.VideoID}))
	return []quote.Unit{}
}

func (c *Coordinator) finishBuild() {
	c.entries, c.model = c.builder.Finalize()
	c.builder = nil
	c.becomeReady()
	c.persist()
	c.flushPending()
}

func (c *Coordinator) becomeReady() {
	c.setState(StateReady)
	c.readyAt = time.Now()
	outcome := "built"
	if c.cached {
		outcome = "cached"
	}
	c.metrics.BuildsTotal.WithLabelValues(outcome).Inc()
	c.metrics.BuildDuration.Observe(time.Since(c.buildStart).Seconds())
	c.metrics.QuotesIndexed.Set(float64(len(c.entries)))

	c.logger.Info("index ready",
		"token", c.token,
		"videos", len(c.manifest),
		"quotes", len(c.entries),
		"cached", c.cached,
		"failed", len(c.failed),
		"duration", time.Since(c.buildStart),
	)
	c.sink.Emit(readyEvent(Ready{
		TotalVideos: len(c.manifest),
		TotalQuotes: len(c.entries),
		Cached:      c.cached,
	}))
	c.publish()
}

// persist hands the current generation to the cache. The quote map is
// cloned because lazy loads keep adding to it.
func (c *Coordinator) persist() {
	if c.cache == nil {
		return
	}
	c.cache.SaveAsync(c.cacheKey, &snapshot.Snapshot{
		TotalVideos: len(c.manifest),
		TotalQuotes: len(c.entries),
		Entries:     c.entries,
		Quotes:      maps.Clone(c.quotes),
		Model:       c.model,
	})
}

func (c *Coordinator) search(cmd Command) {
	start := time.Now()
	resultType := "not_ready"
	var results []ranker.Result
	if c.state == StateReady {
		results = ranker.Search(cmd.Query, c.entries, c.model, c.params)
		resultType = "hit"
		if len(results) == 0 {
			resultType = "zero_result"
		}
	}
	if results == nil {
		results = []ranker.Result{}
	}
	elapsed := time.Since(start)
	c.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	c.metrics.SearchLatency.Observe(elapsed.Seconds())
	c.metrics.SearchResultsCount.Observe(float64(len(results)))
	c.logger.Debug("search",
		"query", cmd.Query,
		"results", len(results),
		"state", c.state,
		"elapsed", elapsed,
	)

	c.sink.Emit(resultsEvent(cmd.Query, results))
	if cmd.results != nil {
		cmd.results <- results
	}
}

func (c *Coordinator) transcript(cmd Command) {
	id := cmd.VideoID
	if quotes, ok := c.quotes[id]; ok {
		c.deliver(id, quotes, []chan []quote.Unit{cmd.transcript})
		return
	}
	_, known := c.videos[id]
	if !known && c.state != StateBuilding {
		c.deliver(id, nil, []chan []quote.Unit{cmd.transcript})
		return
	}
	c.pending[id] = append(c.pending[id], cmd.transcript)
	if c.state == StateReady && !c.loading[id] {
		c.lazyLoad(id)
	}
}

func (c *Coordinator) lazyLoad(id string) {
	video := c.videos[id]
	c.loading[id] = true
	c.logger.Debug("lazy loading transcript", "bvid", id)
	c.spawn(lazyDone, func(ctx context.Context, res *asyncResult) {
		res.video = video
		res.quotes, res.err = c.loader.Load(ctx, video)
	})
}

func (c *Coordinator) onLazyLoaded(res asyncResult) {
	id := res.video.VideoID
	delete(c.loading, id)
	quotes := res.quotes
	if res.err != nil {
		quotes = c.recordFailure(res.video, res.err)
		c.publish()
	}
	if quotes == nil {
		quotes = []quote.Unit{}
	}
	c.quotes[id] = quotes
	c.servePending(id)
	c.persist()
}

// flushPending answers every request that arrived during the build.
func (c *Coordinator) flushPending() {
	ids := slices.Sorted(maps.Keys(c.pending))
	for _, id := range ids {
		if _, ok := c.quotes[id]; ok {
			c.servePending(id)
			continue
		}
		if _, known := c.videos[id]; !known {
			c.servePending(id)
			continue
		}
		if !c.loading[id] {
			c.lazyLoad(id)
		}
	}
}

func (c *Coordinator) servePending(id string) {
	waiters, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	c.deliver(id, c.quotes[id], waiters)
}

func (c *Coordinator) deliver(id string, quotes []quote.Unit, replies []chan []quote.Unit) {
	if quotes == nil {
		quotes = []quote.Unit{}
	}
	c.sink.Emit(transcriptEvent(id, quotes))
	for _, reply := range replies {
		if reply != nil {
			reply <- quotes
		}
	}
}

// abandonPending drops requests of the previous generation. Synchronous
// callers get an empty list instead of waiting forever.
func (c *Coordinator) abandonPending() {
	for _, waiters := range c.pending {
		for _, reply := range waiters {
			if reply != nil {
				reply <- []quote.Unit{}
			}
		}
	}
	c.pending = make(map[string][]chan []quote.Unit)
}

func (c *Coordinator) publish() {
	quotes := len(c.entries)
	if c.builder != nil {
		quotes = c.builder.Len()
	}
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.status = Status{
		State:        c.state,
		BuildToken:   c.token,
		Loaded:       c.next,
		TotalVideos:  len(c.manifest),
		TotalQuotes:  quotes,
		CacheKey:     c.cacheKey,
		Cached:       c.cached,
		FailedVideos: slices.Clone(c.failed),
		ReadyAt:      c.readyAt,
	}
}

func videoInfo(v source.Video) index.VideoInfo {
	return index.VideoInfo{
		ID:       v.VideoID,
		Author:   v.Author,
		Title:    v.Title,
		CoverURL: v.CoverURL,
		Date:     v.Date,
	}
}
