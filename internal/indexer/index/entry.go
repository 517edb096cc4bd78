package index

import (
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/quote"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/semantic"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/tokenizer"
)

// Blend weights of the per-entry semantic vector.
const (
	QuoteVectorWeight   = 1.0
	TitleVectorWeight   = 0.65
	ContextVectorWeight = 0.35
)

// Field identifies one searchable field of an entry.
type Field int

const (
	FieldQuote Field = iota
	FieldTitle
	FieldContext
	numFields
)

// Fields lists every searchable field in scoring order.
var Fields = [numFields]Field{FieldQuote, FieldTitle, FieldContext}

func (f Field) String() string {
	switch f {
	case FieldQuote:
		return "quote"
	case FieldTitle:
		return "title"
	case FieldContext:
		return "context"
	default:
		return "unknown"
	}
}

// VideoInfo is the per-video display data copied into every entry.
type VideoInfo struct {
	ID       string
	Author   string
	Title    string
	CoverURL string
	Date     string
}

// FieldStats is the search projection of a single field.
type FieldStats struct {
	Normalized string
	Compact    string
	TF         map[string]int
	Length     int
}

// Projection holds everything the ranker needs about an entry. It is owned
// by its entry and never shared.
type Projection struct {
	Fields       [numFields]FieldStats
	UniqueTokens map[string]struct{}
	Vector       []float32
}

// Field returns the stats of f.
func (p *Projection) Field(f Field) *FieldStats {
	return &p.Fields[f]
}

// Entry is one indexed quote with its denormalised display fields.
type Entry struct {
	VideoID   string  `json:"bvid"`
	Author    string  `json:"author"`
	QuoteID   string  `json:"quoteId"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	QuoteText string  `json:"quoteText"`
	PrevText  string  `json:"prevText"`
	NextText  string  `json:"nextText"`
	CoverURL  string  `json:"coverUrl"`
	Title     string  `json:"title"`
	Date      string  `json:"date"`

	Search Projection `json:"-"`
}

// NewEntry builds the index entry for quote q of video. dim is the width of
// the semantic vector.
func NewEntry(video VideoInfo, q quote.Unit, dim int) *Entry {
	quoteNorm := tokenizer.Normalize(q.Text)
	titleNorm := tokenizer.Normalize(video.Title)
	contextNorm := tokenizer.Normalize(q.PrevText + " " + q.NextText)

	e := &Entry{
		VideoID:   video.ID,
		Author:    video.Author,
		QuoteID:   q.ID,
		StartTime: q.Start,
		EndTime:   q.End,
		QuoteText: q.Text,
		PrevText:  q.PrevText,
		NextText:  q.NextText,
		CoverURL:  video.CoverURL,
		Title:     video.Title,
		Date:      video.Date,
	}

	unique := make(map[string]struct{})
	for f, text := range [numFields]string{quoteNorm, titleNorm, contextNorm} {
		tokens := tokenizer.Tokenize(text)
		for _, token := range tokens {
			unique[token] = struct{}{}
		}
		e.Search.Fields[f] = FieldStats{
			Normalized: text,
			Compact:    tokenizer.Compact(text),
			TF:         tokenizer.TermFrequency(tokens),
			Length:     len(tokens),
		}
	}
	e.Search.UniqueTokens = unique
	e.Search.Vector = semantic.EmbedWeighted([]semantic.Part{
		{Text: quoteNorm, Weight: QuoteVectorWeight},
		{Text: titleNorm, Weight: TitleVectorWeight},
		{Text: contextNorm, Weight: ContextVectorWeight},
	}, dim)
	return e
}

// Key identifies an entry across the whole index.
func (e *Entry) Key() string {
	return e.VideoID + ":" + e.QuoteID
}
