package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/quote"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/source"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/quote-search/pkg/metrics"
)

const eventTimeout = 5 * time.Second

type fakeLoader struct {
	mu    sync.Mutex
	texts map[string][]string
	fail  map[string]error
	calls map[string]int
	gate  chan struct{}
}

func newFakeLoader(texts map[string][]string) *fakeLoader {
	return &fakeLoader{
		texts: texts,
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeLoader) Load(ctx context.Context, v source.Video) ([]quote.Unit, error) {
	f.mu.Lock()
	f.calls[v.VideoID]++
	gate := f.gate
	err := f.fail[v.VideoID]
	texts := f.texts[v.VideoID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	segments := make([]quote.Segment, len(texts))
	for i, text := range texts {
		start, end := float64(i), float64(i+1)
		segments[i] = quote.Segment{
			ID:    json.RawMessage(strconv.Itoa(i)),
			Start: &start,
			End:   &end,
			Text:  text,
		}
	}
	return quote.Build(v.VideoID, segments), nil
}

func (f *fakeLoader) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type fakeCache struct {
	mu    sync.Mutex
	snap  *snapshot.Snapshot
	saved []*snapshot.Snapshot
}

func (f *fakeCache) Load(ctx context.Context, key string) (*snapshot.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.snap != nil
}

func (f *fakeCache) SaveAsync(key string, snap *snapshot.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, snap)
}

func (f *fakeCache) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

var testManifest = []source.Video{
	{VideoID: "BV1", Author: "alice", Title: "Animals", Transcript: "t/BV1.json"},
	{VideoID: "BV2", Author: "bob", Title: "More animals", Transcript: "t/BV2.json"},
}

func testTexts() map[string][]string {
	return map[string][]string{
		"BV1": {"the quick brown fox jumps", "lazy dogs sleep all day"},
		"BV2": {"foxes are quick"},
	}
}

func start(t *testing.T, loader TranscriptLoader, opts Options) (*Coordinator, ChanSink) {
	t.Helper()
	sink := make(ChanSink, 1024)
	c := New(loader, sink, opts)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c, sink
}

// collectUntil reads events up to and including the first one of type typ.
func collectUntil(t *testing.T, sink ChanSink, typ EventType) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(eventTimeout)
	for {
		select {
		case e := <-sink:
			events = append(events, e)
			if e.Type == typ {
				return events
			}
		case <-timeout:
			t.Fatalf("no %s event within %s, got %v", typ, eventTimeout, types(events))
			return nil
		}
	}
}

func drain(sink ChanSink) []Event {
	var events []Event
	for {
		select {
		case e := <-sink:
			events = append(events, e)
		default:
			return events
		}
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func count(events []Event, typ EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestBuildAndSearch(t *testing.T) {
	ctx := context.Background()
	c, sink := start(t, newFakeLoader(testTexts()), Options{})

	require.NoError(t, c.Init(ctx, testManifest))
	events := collectUntil(t, sink, EventReady)
	require.Equal(t, []EventType{EventProgress, EventProgress, EventReady}, types(events))
	assert.Equal(t, Progress{Loaded: 1, Total: 2, VideoID: "BV1"}, *events[0].Progress)
	assert.Equal(t, Progress{Loaded: 2, Total: 2, VideoID: "BV2"}, *events[1].Progress)
	assert.Equal(t, Ready{TotalVideos: 2, TotalQuotes: 3}, *events[2].Ready)

	results, err := c.Search(ctx, "quick brown fox")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "the quick brown fox jumps", results[0].QuoteText)
	assert.Equal(t, ranker.MatchQuote, results[0].MatchClass)
	assert.Equal(t, "Animals", results[0].Title)

	resultEvents := collectUntil(t, sink, EventResults)
	assert.Equal(t, "quick brown fox", resultEvents[0].Results.Query)
	assert.Equal(t, results, resultEvents[0].Results.Results)

	status := c.Status()
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, uint64(1), status.BuildToken)
	assert.Equal(t, 2, status.Loaded)
	assert.Equal(t, 3, status.TotalQuotes)
	assert.Equal(t, snapshot.Fingerprint(testManifest), status.CacheKey)
	assert.False(t, status.ReadyAt.IsZero())
}

func TestEmptyQueryAndZeroMatches(t *testing.T) {
	ctx := context.Background()
	c, sink := start(t, newFakeLoader(testTexts()), Options{})
	require.NoError(t, c.Init(ctx, testManifest))
	collectUntil(t, sink, EventReady)

	results, err := c.Search(ctx, "   ")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFailedVideo(t *testing.T) {
	ctx := context.Background()
	loader := newFakeLoader(testTexts())
	loader.fail["BV2"] = errors.New("transcript gone")
	m := metrics.NewNop()
	c, sink := start(t, loader, Options{Metrics: m})

	require.NoError(t, c.Init(ctx, testManifest))
	events := collectUntil(t, sink, EventReady)
	require.Equal(t, []EventType{EventProgress, EventError, EventProgress, EventReady}, types(events))
	assert.Equal(t, "BV2", events[1].Error.VideoID)
	assert.Contains(t, events[1].Error.Message, "transcript gone")
	assert.Equal(t, 2, events[3].Ready.TotalQuotes)

	assert.Equal(t, []string{"BV2"}, c.Status().FailedVideos)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TranscriptErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VideosIndexedTotal))

	quotes, err := c.Transcript(ctx, "BV2")
	require.NoError(t, err)
	assert.Empty(t, quotes)
	assert.Equal(t, 1, loader.callCount("BV2"), "failed transcripts are cached as empty")
}

func TestCacheRestore(t *testing.T) {
	ctx := context.Background()
	mgr, err := snapshot.NewManager(snapshot.NewMemoryStore(), snapshot.Options{})
	require.NoError(t, err)
	defer mgr.Close()

	first, sink := start(t, newFakeLoader(testTexts()), Options{Cache: mgr})
	require.NoError(t, first.Init(ctx, testManifest))
	collectUntil(t, sink, EventReady)
	want, err := first.Search(ctx, "lazy dogs")
	require.NoError(t, err)
	mgr.Wait()

	loader := newFakeLoader(nil)
	m := metrics.NewNop()
	second, sink2 := start(t, loader, Options{Cache: mgr, Metrics: m})
	require.NoError(t, second.Init(ctx, testManifest))
	events := collectUntil(t, sink2, EventReady)
	require.Equal(t, []EventType{EventProgress, EventReady}, types(events))
	assert.Equal(t, Progress{Loaded: 2, Total: 2, Cached: true}, *events[0].Progress)
	assert.Equal(t, Ready{TotalVideos: 2, TotalQuotes: 3, Cached: true}, *events[1].Ready)

	got, err := second.Search(ctx, "lazy dogs")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	quotes, err := second.Transcript(ctx, "BV1")
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	assert.Zero(t, loader.callCount("BV1"))
	assert.Zero(t, loader.callCount("BV2"))
	assert.True(t, second.Status().Cached)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildsTotal.WithLabelValues("cached")))
}

func TestCacheRestoreWithoutQuotes(t *testing.T) {
	ctx := context.Background()
	mgr, err := snapshot.NewManager(snapshot.NewMemoryStore(), snapshot.Options{})
	require.NoError(t, err)
	defer mgr.Close()
	manifest := []source.Video{{VideoID: "BV1", Transcript: "t/BV1.json"}}

	first, sink := start(t, newFakeLoader(map[string][]string{"BV1": {}}), Options{Cache: mgr})
	require.NoError(t, first.Init(ctx, manifest))
	collectUntil(t, sink, EventReady)
	_, err = first.Search(ctx, "anything")
	require.NoError(t, err)
	mgr.Wait()

	loader := newFakeLoader(nil)
	second, sink2 := start(t, loader, Options{Cache: mgr})
	require.NoError(t, second.Init(ctx, manifest))
	events := collectUntil(t, sink2, EventReady)
	require.Equal(t, []EventType{EventProgress, EventReady}, types(events))
	assert.Equal(t, Ready{TotalVideos: 1, TotalQuotes: 0, Cached: true}, *events[1].Ready)
	assert.Zero(t, loader.callCount("BV1"))
}

func TestCacheRestoreRejectsOtherDim(t *testing.T) {
	ctx := context.Background()
	mgr, err := snapshot.NewManager(snapshot.NewMemoryStore(), snapshot.Options{})
	require.NoError(t, err)
	defer mgr.Close()

	narrow := ranker.DefaultParams()
	narrow.Dim = 32
	first, sink := start(t, newFakeLoader(testTexts()), Options{Cache: mgr, Params: narrow})
	require.NoError(t, first.Init(ctx, testManifest))
	collectUntil(t, sink, EventReady)
	_, err = first.Search(ctx, "fox")
	require.NoError(t, err)
	mgr.Wait()

	loader := newFakeLoader(testTexts())
	second, sink2 := start(t, loader, Options{Cache: mgr})
	require.NoError(t, second.Init(ctx, testManifest))
	events := collectUntil(t, sink2, EventReady)
	assert.False(t, events[len(events)-1].Ready.Cached)
	assert.Equal(t, 1, loader.callCount("BV1"))
	assert.False(t, second.Status().Cached)

	results, err := second.Search(ctx, "quick fox")
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestStaleBuildResultsAreDropped(t *testing.T) {
	ctx := context.Background()
	loader := newFakeLoader(map[string][]string{
		"BV1": {"old generation quote"},
		"BV9": {"new generation quote"},
	})
	loader.gate = make(chan struct{})
	m := metrics.NewNop()
	c, sink := start(t, loader, Options{Metrics: m})

	require.NoError(t, c.Init(ctx, []source.Video{{VideoID: "BV1"}}))
	require.NoError(t, c.Init(ctx, []source.Video{{VideoID: "BV9"}}))
	assert.Eventually(t, func() bool {
		return loader.callCount("BV1") == 1 && loader.callCount("BV9") == 1
	}, eventTimeout, 5*time.Millisecond)
	close(loader.gate)

	events := collectUntil(t, sink, EventReady)
	assert.Equal(t, []EventType{EventProgress, EventReady}, types(events))
	assert.Equal(t, "BV9", events[0].Progress.VideoID)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.StaleResultsDropped) == 1
	}, eventTimeout, 5*time.Millisecond)

	results, err := c.Search(ctx, "generation quote")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "BV9", results[0].VideoID)
	assert.Equal(t, uint64(2), c.Status().BuildToken)
}

func TestPendingTranscriptServedDuringBuild(t *testing.T) {
	ctx := context.Background()
	loader := newFakeLoader(testTexts())
	loader.gate = make(chan struct{})
	c, sink := start(t, loader, Options{})

	require.NoError(t, c.Init(ctx, testManifest))
	require.NoError(t, c.Submit(ctx, TranscriptCommand("BV1")))

	results, err := c.Search(ctx, "fox")
	require.NoError(t, err)
	assert.Empty(t, results, "no results while building")
	assert.Equal(t, StateBuilding, c.Status().State)

	close(loader.gate)
	events := collectUntil(t, sink, EventReady)
	assert.Equal(t,
		[]EventType{EventResults, EventTranscript, EventProgress, EventProgress, EventReady},
		types(events))
	assert.Equal(t, "BV1", events[1].Transcript.VideoID)
	assert.Len(t, events[1].Transcript.Quotes, 2)
	assert.Equal(t, 1, loader.callCount("BV1"))
}

func TestLazyLoadCoalesces(t *testing.T) {
	ctx := context.Background()
	loader := newFakeLoader(testTexts())
	loader.gate = make(chan struct{})
	cache := &fakeCache{snap: &snapshot.Snapshot{
		Entries: []*index.Entry{},
		Quotes:  map[string][]quote.Unit{},
		Model:   index.EmptyRankModel(),
	}}
	c, sink := start(t, loader, Options{Cache: cache})

	require.NoError(t, c.Init(ctx, testManifest))
	collectUntil(t, sink, EventReady)

	require.NoError(t, c.Submit(ctx, TranscriptCommand("BV1")))
	require.NoError(t, c.Submit(ctx, TranscriptCommand("BV1")))
	_, err := c.Search(ctx, "sync")
	require.NoError(t, err)

	close(loader.gate)
	events := collectUntil(t, sink, EventTranscript)
	last := events[len(events)-1]
	assert.Len(t, last.Transcript.Quotes, 2)

	_, err = c.Search(ctx, "sync")
	require.NoError(t, err)
	rest := drain(sink)
	assert.Zero(t, count(rest, EventTranscript))
	assert.Equal(t, 1, loader.callCount("BV1"))
	assert.Equal(t, 1, cache.savedCount(), "lazy loads are persisted")

	quotes, err := c.Transcript(ctx, "BV1")
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	assert.Equal(t, 1, loader.callCount("BV1"))
}

func TestTranscriptUnknownVideo(t *testing.T) {
	ctx := context.Background()
	loader := newFakeLoader(testTexts())
	c, sink := start(t, loader, Options{})

	quotes, err := c.Transcript(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, quotes)

	require.NoError(t, c.Init(ctx, testManifest))
	collectUntil(t, sink, EventReady)
	quotes, err = c.Transcript(ctx, "nope")
	require.NoError(t, err)
	assert.NotNil(t, quotes)
	assert.Empty(t, quotes)
	assert.Zero(t, loader.callCount("nope"))
}

func TestSearchBeforeInit(t *testing.T) {
	c, _ := start(t, newFakeLoader(nil), Options{})
	results, err := c.Search(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, StateIdle, c.Status().State)
}

func TestEmptyManifest(t *testing.T) {
	ctx := context.Background()
	c, sink := start(t, newFakeLoader(nil), Options{})
	require.NoError(t, c.Init(ctx, nil))
	events := collectUntil(t, sink, EventReady)
	assert.Equal(t, []EventType{EventReady}, types(events))
	assert.Equal(t, Ready{}, *events[0].Ready)
}

func TestSubmitAfterStop(t *testing.T) {
	c := New(newFakeLoader(nil), nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	cancel()
	<-c.Done()

	assert.ErrorIs(t, c.Submit(context.Background(), SearchCommand("x")), apperrors.ErrEngineStopped)
	_, err := c.Search(context.Background(), "x")
	assert.ErrorIs(t, err, apperrors.ErrEngineStopped)
	assert.Error(t, c.Run(context.Background()), "Run twice")
}

func TestSubmitRejectsInvalidCommand(t *testing.T) {
	c := New(newFakeLoader(nil), nil, Options{})
	err := c.Submit(context.Background(), TranscriptCommand(""))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	err = c.Submit(context.Background(), Command{Type: "explode"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestParamsFromConfig(t *testing.T) {
	assert.Equal(t, ranker.DefaultParams(), ParamsFromConfig(config.Default().Engine))

	p := ParamsFromConfig(config.EngineConfig{EmbeddingDim: 64, RerankTopK: 10, LexicalWeight: 1})
	assert.Equal(t, 64, p.Dim)
	assert.Equal(t, 10, p.RerankTopK)
	assert.Equal(t, 1.0, p.LexicalWeight)
	assert.Zero(t, p.SemanticWeight)
	assert.Zero(t, p.Limit)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, canTransition(StateIdle, StateBuilding))
	assert.True(t, canTransition(StateBuilding, StateBuilding))
	assert.True(t, canTransition(StateReady, StateBuilding))
	assert.True(t, canTransition(StateBuilding, StateReady))
	assert.False(t, canTransition(StateIdle, StateReady))
	assert.False(t, canTransition(StateReady, StateIdle))
	assert.Equal(t, "building", StateBuilding.String())
}
