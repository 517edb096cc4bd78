package ranker

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/semantic"
	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/tokenizer"
)

// MatchClass says which field produced the strongest lexical evidence.
type MatchClass string

const (
	MatchQuote   MatchClass = "quote"
	MatchTitle   MatchClass = "title"
	MatchContext MatchClass = "context"
)

func (c MatchClass) priority() int {
	switch c {
	case MatchQuote:
		return 0
	case MatchTitle:
		return 1
	default:
		return 2
	}
}

// Result is one ranked entry together with its score breakdown.
type Result struct {
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

	MatchClass        MatchClass `json:"matchClass"`
	Score             float64    `json:"score"`
	HybridScore       float64    `json:"hybridScore"`
	LexicalScore      float64    `json:"lexicalScore"`
	SemanticScore     float64    `json:"semanticScore"`
	RerankBonus       float64    `json:"rerankBonus"`
	TokenCoverage     float64    `json:"tokenCoverage"`
	MatchedTokenCount int        `json:"matchedTokenCount"`
	QuoteHits         int        `json:"quoteHits"`
	TitleHits         int        `json:"titleHits"`
	ContextHits       int        `json:"contextHits"`
	PhraseInQuote     bool       `json:"phraseInQuote"`
	PhraseInTitle     bool       `json:"phraseInTitle"`
}

// Query is a prepared query.
type Query struct {
	Normalized string
	Compact    string
	Tokens     []string
	Vector     []float32
}

// PrepareQuery normalises raw and derives its tokens, compact form and
// vector. ok is false when the query normalises to nothing.
func PrepareQuery(raw string, dim int) (q Query, ok bool) {
	normalized := tokenizer.Normalize(raw)
	if normalized == "" {
		return Query{}, false
	}
	return Query{
		Normalized: normalized,
		Compact:    tokenizer.Compact(normalized),
		Tokens:     tokenizer.Unique(tokenizer.Tokenize(normalized)),
		Vector:     semantic.Embed(normalized, dim),
	}, true
}

// Lexical is the BM25 breakdown of one entry against one query.
type Lexical struct {
	Score             float64
	MatchedTokenCount int
	Hits              [3]int
	TokenCoverage     float64
	AllTokensInQuote  bool
}

// BM25 is the Okapi term score. A zero tf or idf scores zero and a
// non-positive average length is treated as 1.
func BM25(tf, idf, fieldLength, avgLength, k1, b float64) float64 {
	if tf == 0 || idf == 0 {
		return 0
	}
	if avgLength <= 0 {
		avgLength = 1
	}
	norm := k1 * (1 - b + b*(fieldLength/avgLength))
	return idf * (tf * (k1 + 1)) / (tf + norm)
}

// ScoreLexical computes the field-weighted BM25 score of e for tokens.
func ScoreLexical(e *index.Entry, tokens []string, model index.RankModel, p Params) Lexical {
	var lex Lexical
	if len(tokens) == 0 {
		return lex
	}
	weights := [3]float64{p.QuoteWeight, p.TitleWeight, p.ContextWeight}
	for _, token := range tokens {
		idf := model.IDF[token]
		if idf == 0 {
			continue
		}
		var tfs [3]int
		matched := false
		for _, f := range index.Fields {
			tfs[f] = e.Search.Field(f).TF[token]
			if tfs[f] > 0 {
				matched = true
			}
		}
		if !matched {
			continue
		}
		lex.MatchedTokenCount++
		for _, f := range index.Fields {
			if tfs[f] > 0 {
				lex.Hits[f]++
			}
			lex.Score += weights[f] * BM25(
				float64(tfs[f]),
				idf,
				float64(e.Search.Field(f).Length),
				model.AvgFieldLength.Of(f),
				p.K1, p.B,
			)
		}
	}
	lex.TokenCoverage = float64(lex.MatchedTokenCount) / float64(len(tokens))
	lex.AllTokensInQuote = lex.Hits[index.FieldQuote] == len(tokens)
	return lex
}

type candidate struct {
	entry    *index.Entry
	lexical  Lexical
	semantic float64
	class    MatchClass
	hybrid   float64
	bonus    float64
	final    float64
	phraseQ  bool
	phraseT  bool
}

// Search ranks entries against raw and returns every surviving candidate
// in final order. A query that normalises to nothing, or matches nothing,
// yields an empty slice.
func Search(raw string, entries []*index.Entry, model index.RankModel, p Params) []Result {
	q, ok := PrepareQuery(raw, p.Dim)
	if !ok {
		return []Result{}
	}
	candidates := collect(q, entries, model, p)
	if len(candidates) == 0 {
		return []Result{}
	}
	fuse(candidates, p)
	rerank(q, candidates, p)

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if pa, pb := a.class.priority(), b.class.priority(); pa != pb {
			return pa < pb
		}
		if a.final != b.final {
			return a.final > b.final
		}
		if a.lexical.MatchedTokenCount != b.lexical.MatchedTokenCount {
			return a.lexical.MatchedTokenCount > b.lexical.MatchedTokenCount
		}
		return a.entry.StartTime < b.entry.StartTime
	})

	if p.Limit > 0 && len(candidates) > p.Limit {
		candidates = candidates[:p.Limit]
	}
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = c.result()
	}
	return results
}

func collect(q Query, entries []*index.Entry, model index.RankModel, p Params) []*candidate {
	candidates := make([]*candidate, 0)
	for _, e := range entries {
		lex := ScoreLexical(e, q.Tokens, model, p)
		sem := semantic.Similarity(q.Vector, e.Search.Vector)

		hasLexical := lex.Score > 0 || lex.MatchedTokenCount > 0
		hasSemantic := sem >= p.SemanticMinScore
		hasCompact := q.Compact != "" && (strings.Contains(e.Search.Field(index.FieldQuote).Compact, q.Compact) ||
			strings.Contains(e.Search.Field(index.FieldTitle).Compact, q.Compact) ||
			strings.Contains(e.Search.Field(index.FieldContext).Compact, q.Compact))
		if !hasLexical && !hasSemantic && !hasCompact {
			continue
		}

		class := MatchContext
		switch {
		case lex.Hits[index.FieldQuote] > 0:
			class = MatchQuote
		case lex.Hits[index.FieldTitle] > 0:
			class = MatchTitle
		}
		candidates = append(candidates, &candidate{
			entry:    e,
			lexical:  lex,
			semantic: sem,
			class:    class,
		})
	}
	return candidates
}

func fuse(candidates []*candidate, p Params) {
	var maxLexical, maxSemantic float64
	for _, c := range candidates {
		maxLexical = max(maxLexical, c.lexical.Score)
		maxSemantic = max(maxSemantic, c.semantic)
	}
	if maxLexical == 0 {
		maxLexical = 1
	}
	if maxSemantic == 0 {
		maxSemantic = 1
	}
	for _, c := range candidates {
		lexNorm := c.lexical.Score / maxLexical
		semNorm := max(0, c.semantic) / maxSemantic
		c.hybrid = p.LexicalWeight*lexNorm + p.SemanticWeight*semNorm
	}
}

func rerank(q Query, candidates []*candidate, p Params) {
	order := make([]*candidate, len(candidates))
	copy(order, candidates)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].hybrid > order[j].hybrid
	})
	topK := p.RerankTopK
	if topK < 0 || topK > len(order) {
		topK = len(order)
	}
	for _, c := range order[:topK] {
		c.bonus = rerankBonus(q, c, p)
	}
	for _, c := range candidates {
		c.final = c.hybrid + c.bonus
	}
}

func rerankBonus(q Query, c *candidate, p Params) float64 {
	var bonus float64
	search := &c.entry.Search
	if q.Compact != "" && strings.Contains(search.Field(index.FieldQuote).Compact, q.Compact) {
		bonus += p.PhraseInQuoteBonus
		c.phraseQ = true
	}
	if q.Compact != "" && strings.Contains(search.Field(index.FieldTitle).Compact, q.Compact) {
		bonus += p.PhraseInTitleBonus
		c.phraseT = true
	}
	if c.lexical.AllTokensInQuote {
		bonus += p.AllTokensInQuoteBonus
	}
	if c.lexical.TokenCoverage > 0 {
		bonus += c.lexical.TokenCoverage * p.CoverageBonus
	}
	bonus += proximityBonus(q, search.Field(index.FieldQuote).Normalized, p)
	if c.lexical.Hits[index.FieldQuote] == 0 && c.lexical.Hits[index.FieldContext] > 0 {
		bonus -= p.ContextOnlyPenalty
	}
	return bonus
}

// proximityBonus rewards quotes whose matched query tokens sit close
// together. Positions are rune offsets of each token's first occurrence.
func proximityBonus(q Query, text string, p Params) float64 {
	positions := tokenPositions(text, q.Tokens)
	if len(positions) < 2 {
		return 0
	}
	lo, hi := positions[0], positions[0]
	for _, pos := range positions[1:] {
		lo = min(lo, pos)
		hi = max(hi, pos)
	}
	width := utf8.RuneCountInString(q.Compact)
	if width == 0 {
		width = utf8.RuneCountInString(q.Normalized)
	}
	width = max(1, width)
	return max(0, p.ProximityMaxBonus-float64(hi-lo)/(float64(width)*p.ProximityScale))
}

func tokenPositions(text string, tokens []string) []int {
	positions := make([]int, 0, len(tokens))
	for _, token := range tokens {
		if idx := strings.Index(text, token); idx >= 0 {
			positions = append(positions, utf8.RuneCountInString(text[:idx]))
		}
	}
	return positions
}

func (c *candidate) result() Result {
	e := c.entry
	return Result{
		VideoID:   e.VideoID,
		Author:    e.Author,
		QuoteID:   e.QuoteID,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		QuoteText: e.QuoteText,
		PrevText:  e.PrevText,
		NextText:  e.NextText,
		CoverURL:  e.CoverURL,
		Title:     e.Title,
		Date:      e.Date,

		MatchClass:        c.class,
		Score:             c.final,
		HybridScore:       c.hybrid,
		LexicalScore:      c.lexical.Score,
		SemanticScore:     c.semantic,
		RerankBonus:       c.bonus,
		TokenCoverage:     c.lexical.TokenCoverage,
		MatchedTokenCount: c.lexical.MatchedTokenCount,
		QuoteHits:         c.lexical.Hits[index.FieldQuote],
		TitleHits:         c.lexical.Hits[index.FieldTitle],
		ContextHits:       c.lexical.Hits[index.FieldContext],
		PhraseInQuote:     c.phraseQ,
		PhraseInTitle:     c.phraseT,
	}
}
