package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/source"
)

const manifestBody = `{"videos":[
	{"bvid":"BV1","author":"alice","title":"Cooking","transcript":"t/BV1.json"},
	{"bvid":"BV2","title":"Gardening","transcript":"t/BV2.json"}
]}`

var transcripts = map[string]string{
	"t/BV1.json": `[{"id":1,"start":0,"end":2,"text":"whisk the eggs gently"},{"id":2,"start":2,"end":4,"text":"fold in the flour"}]`,
	"t/BV2.json": `{"segments":[{"id":"a","start":0,"end":3,"text":"water the tomatoes daily"}]}`,
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Coordinator) {
	t.Helper()
	dir := t.TempDir()
	for name, body := range transcripts {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifestBody), 0644))
	src := source.NewDirSource(dir, "")

	coord := engine.New(source.NewLoader(src, time.Second), nil, engine.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-coord.Done()
	})

	mux := http.NewServeMux()
	New(coord, src, Config{DefaultLimit: 10, MaxLimit: 20, DefaultAuthor: "house"}).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, coord
}

func waitReady(t *testing.T, coord *engine.Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool {
		return coord.Status().State == engine.StateReady
	}, 5*time.Second, 5*time.Millisecond)
}

type searchPayload struct {
	Query    string `json:"query"`
	State    string `json:"state"`
	Returned int    `json:"returned"`
	Results  []struct {
		VideoID    string `json:"bvid"`
		QuoteText  string `json:"quoteText"`
		MatchClass string `json:"matchClass"`
	} `json:"results"`
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestManifestSearchTranscript(t *testing.T) {
	srv, coord := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/manifest", "application/json", strings.NewReader(manifestBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decode[manifestResponse](t, resp)
	assert.Equal(t, 2, accepted.Videos)
	assert.True(t, strings.HasPrefix(accepted.CacheKey, "v1:2:"))
	waitReady(t, coord)

	resp, err = http.Get(srv.URL + "/api/v1/search?q=whisk+eggs&limit=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found := decode[searchPayload](t, resp)
	assert.Equal(t, "ready", found.State)
	assert.Equal(t, 1, found.Returned)
	require.Len(t, found.Results, 1)
	assert.Equal(t, "whisk the eggs gently", found.Results[0].QuoteText)
	assert.Equal(t, "quote", found.Results[0].MatchClass)

	resp, err = http.Get(srv.URL + "/api/v1/transcripts/BV2")
	require.NoError(t, err)
	transcript := decode[engine.Transcript](t, resp)
	assert.Equal(t, "BV2", transcript.VideoID)
	require.Len(t, transcript.Quotes, 1)
	assert.Equal(t, "water the tomatoes daily", transcript.Quotes[0].Text)

	resp, err = http.Get(srv.URL + "/api/v1/transcripts/unknown")
	require.NoError(t, err)
	assert.Empty(t, decode[engine.Transcript](t, resp).Quotes)

	resp, err = http.Get(srv.URL + "/api/v1/status")
	require.NoError(t, err)
	status := decode[map[string]any](t, resp)
	assert.Equal(t, "ready", status["state"])
	assert.Equal(t, float64(3), status["totalQuotes"])
}

func TestManifestAuthorFilterAndReload(t *testing.T) {
	srv, coord := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/manifest/reload?author=house", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, decode[manifestResponse](t, resp).Videos, "BV2 falls back to the default author")
	waitReady(t, coord)
	assert.Equal(t, 1, coord.Status().TotalVideos)
}

func TestManifestValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/manifest", "application/json",
		strings.NewReader(`[{"bvid":"BV1"},{"bvid":" "},{"bvid":"BV1"}]`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "videos[1].bvid")
	assert.Contains(t, fields, "videos[2].bvid")

	resp, err = http.Post(srv.URL+"/api/v1/manifest", "application/json", strings.NewReader(`"nope"`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		query string
		want  int
	}{
		{"", http.StatusBadRequest},
		{"?q=", http.StatusBadRequest},
		{"?q=x&limit=0", http.StatusBadRequest},
		{"?q=x&limit=abc", http.StatusBadRequest},
		{"?q=x&limit=500", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/api/v1/search" + tt.query)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestReloadWithoutSource(t *testing.T) {
	h := New(nil, nil, Config{})
	rec := httptest.NewRecorder()
	h.ReloadManifest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/manifest/reload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTranscriptBeforeManifest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/transcripts/BV1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "index not ready: no manifest loaded", body["error"])
}

func TestManifestTooLarge(t *testing.T) {
	h := New(nil, nil, Config{})
	rec := httptest.NewRecorder()
	body := strings.NewReader(strings.Repeat(" ", maxManifestBytes+1))
	h.PutManifest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/manifest", body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "manifest exceeds")
}

func TestStoppedEngine(t *testing.T) {
	coord := engine.New(nil, nil, engine.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	cancel()
	<-coord.Done()

	h := New(coord, nil, Config{})
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
