package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/quote"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/semantic"
)

var testVideo = VideoInfo{
	ID:       "BV1xx",
	Author:   "someone",
	Title:    "The Big Talk",
	CoverURL: "https://example.com/c.jpg",
	Date:     "2024-05-01",
}

func TestNewEntry(t *testing.T) {
	q := quote.Unit{
		ID:       "q_1",
		VideoID:  "BV1xx",
		Start:    12.5,
		End:      14,
		Text:     "Hello hello, World!",
		PrevText: "before",
		NextText: "after 你好",
	}
	e := NewEntry(testVideo, q, semantic.DefaultDim)

	assert.Equal(t, "BV1xx", e.VideoID)
	assert.Equal(t, "q_1", e.QuoteID)
	assert.Equal(t, 12.5, e.StartTime)
	assert.Equal(t, "BV1xx:q_1", e.Key())

	qf := e.Search.Field(FieldQuote)
	assert.Equal(t, "hello hello, world!", qf.Normalized)
	assert.Equal(t, "hellohelloworld", qf.Compact)
	assert.Equal(t, map[string]int{"hello": 2, "world": 1}, qf.TF)
	assert.Equal(t, 3, qf.Length)

	tf := e.Search.Field(FieldTitle)
	assert.Equal(t, map[string]int{"the": 1, "big": 1, "talk": 1}, tf.TF)

	cf := e.Search.Field(FieldContext)
	assert.Equal(t, "before after 你好", cf.Normalized)
	assert.Equal(t, 5, cf.Length) // before, after, 你, 好, 你好

	for _, token := range []string{"hello", "world", "the", "big", "talk", "before", "after", "你好"} {
		assert.Contains(t, e.Search.UniqueTokens, token)
	}
	assert.Len(t, e.Search.UniqueTokens, 10)

	for _, f := range Fields {
		for _, count := range e.Search.Field(f).TF {
			assert.Positive(t, count)
		}
	}
	require.Len(t, e.Search.Vector, semantic.DefaultDim)
	assert.InDelta(t, 1.0, semantic.Norm(e.Search.Vector), 1e-5)
}

func TestNewEntryEmptyText(t *testing.T) {
	e := NewEntry(VideoInfo{ID: "v"}, quote.Unit{ID: "q"}, 16)
	assert.Zero(t, semantic.Norm(e.Search.Vector))
	assert.Empty(t, e.Search.UniqueTokens)
	for _, f := range Fields {
		assert.Zero(t, e.Search.Field(f).Length)
	}
}

func TestIDF(t *testing.T) {
	assert.InDelta(t, math.Log(1.2), IDF(2, 2), 1e-12)
	assert.InDelta(t, 0.1823215567939546, IDF(2, 2), 1e-9)

	prev := IDF(2, 2)
	for n := 4; n <= 4096; n *= 2 {
		cur := IDF(n, n)
		assert.Less(t, cur, prev, "idf must shrink as a ubiquitous token spreads, n=%d", n)
		assert.Positive(t, cur)
		prev = cur
	}
	assert.Less(t, IDF(10000, 10000), 1e-4)

	assert.Greater(t, IDF(100, 1), IDF(100, 50))
}

func TestBuilderRankModel(t *testing.T) {
	b := NewBuilder(semantic.DefaultDim)
	b.AddQuotes(VideoInfo{ID: "a", Title: "alpha"}, []quote.Unit{
		{ID: "1", Text: "the cat sat"},
		{ID: "2", Text: "the dog"},
	})
	b.AddQuotes(VideoInfo{ID: "b", Title: "beta"}, []quote.Unit{
		{ID: "3", Text: "the end"},
	})
	require.Equal(t, 3, b.Len())

	entries, model := b.Finalize()
	require.Len(t, entries, 3)
	assert.Equal(t, 3, model.TotalDocs)
	assert.InDelta(t, IDF(3, 3), model.IDF["the"], 1e-12)
	assert.InDelta(t, IDF(3, 1), model.IDF["cat"], 1e-12)
	assert.InDelta(t, IDF(3, 2), model.IDF["alpha"], 1e-12)
	assert.InDelta(t, 7.0/3.0, model.AvgFieldLength.Quote, 1e-12)
	assert.InDelta(t, 1.0, model.AvgFieldLength.Title, 1e-12)

	recomputed := ComputeRankModel(entries)
	assert.Equal(t, model.TotalDocs, recomputed.TotalDocs)
	assert.Equal(t, model.AvgFieldLength, recomputed.AvgFieldLength)
	assert.InDeltaMapValues(t, model.IDF, recomputed.IDF, 1e-12)
}

func TestEmptyRankModel(t *testing.T) {
	entries, model := NewBuilder(8).Finalize()
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
	assert.Zero(t, model.TotalDocs)
	assert.Empty(t, model.IDF)
	assert.Equal(t, FieldLengths{Quote: 1, Title: 1, Context: 1}, model.AvgFieldLength)
}

func TestFieldLengthsOf(t *testing.T) {
	l := FieldLengths{Quote: 1, Title: 2, Context: 3}
	assert.Equal(t, 1.0, l.Of(FieldQuote))
	assert.Equal(t, 2.0, l.Of(FieldTitle))
	assert.Equal(t, 3.0, l.Of(FieldContext))
	assert.Equal(t, "title", FieldTitle.String())
}
