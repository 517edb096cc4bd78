package index

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/quote"
)

// FieldLengths holds one average token count per field.
type FieldLengths struct {
	Quote   float64 `json:"quote"`
	Title   float64 `json:"title"`
	Context float64 `json:"context"`
}

// Of returns the value for field f.
func (l FieldLengths) Of(f Field) float64 {
	switch f {
	case FieldQuote:
		return l.Quote
	case FieldTitle:
		return l.Title
	default:
		return l.Context
	}
}

func (l *FieldLengths) set(f Field, v float64) {
	switch f {
	case FieldQuote:
		l.Quote = v
	case FieldTitle:
		l.Title = v
	default:
		l.Context = v
	}
}

// RankModel is the global BM25 state of one index generation.
type RankModel struct {
	IDF            map[string]float64
	AvgFieldLength FieldLengths
	TotalDocs      int
}

// EmptyRankModel is the model of an index with no entries.
func EmptyRankModel() RankModel {
	return RankModel{
		IDF:            make(map[string]float64),
		AvgFieldLength: FieldLengths{Quote: 1, Title: 1, Context: 1},
	}
}

// IDF computes the saturating inverse document frequency
// ln(1 + (N - df + 0.5) / (df + 0.5)). It is never clamped.
func IDF(totalDocs, docFreq int) float64 {
	n := float64(totalDocs)
	df := float64(docFreq)
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// Builder accumulates the entries of one index generation together with the
// document frequencies and field length sums the rank model is derived from.
// A Builder is not safe for concurrent use.
type Builder struct {
	dim        int
	entries    []*Entry
	docFreq    map[string]int
	lengthSums [numFields]int
}

// NewBuilder returns an empty Builder producing vectors of width dim. The
// entry list is never nil, so an index with no quotes still persists as an
// empty list.
func NewBuilder(dim int) *Builder {
	return &Builder{
		dim:     dim,
		entries: []*Entry{},
		docFreq: make(map[string]int),
	}
}

// Add appends an already built entry.
func (b *Builder) Add(e *Entry) {
	b.entries = append(b.entries, e)
	for token := range e.Search.UniqueTokens {
		b.docFreq[token]++
	}
	for _, f := range Fields {
		b.lengthSums[f] += e.Search.Fields[f].Length
	}
}

// AddQuotes builds and adds one entry per quote of video and returns the new
// entries.
func (b *Builder) AddQuotes(video VideoInfo, quotes []quote.Unit) []*Entry {
	added := make([]*Entry, 0, len(quotes))
	for _, q := range quotes {
		e := NewEntry(video, q, b.dim)
		b.Add(e)
		added = append(added, e)
	}
	return added
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Finalize returns the accumulated entries and their rank model. The model
// is computed from scratch every time.
func (b *Builder) Finalize() ([]*Entry, RankModel) {
	return b.entries, computeModel(len(b.entries), b.docFreq, b.lengthSums)
}

// ComputeRankModel derives the rank model of entries without a Builder.
func ComputeRankModel(entries []*Entry) RankModel {
	b := NewBuilder(0)
	for _, e := range entries {
		b.Add(e)
	}
	_, model := b.Finalize()
	return model
}

func computeModel(totalDocs int, docFreq map[string]int, lengthSums [numFields]int) RankModel {
	model := EmptyRankModel()
	model.TotalDocs = totalDocs
	for token, df := range docFreq {
		model.IDF[token] = IDF(totalDocs, df)
	}
	if totalDocs > 0 {
		for _, f := range Fields {
			model.AvgFieldLength.set(f, float64(lengthSums[f])/float64(totalDocs))
		}
	}
	return model
}
