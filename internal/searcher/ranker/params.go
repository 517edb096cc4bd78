package ranker

import "github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/semantic"

// Params holds the tunable constants of hybrid ranking. The defaults were
// chosen empirically; nothing derives them, so treat them as knobs.
type Params struct {
	K1 float64
	B  float64

	QuoteWeight   float64
	TitleWeight   float64
	ContextWeight float64

	LexicalWeight    float64
	SemanticWeight   float64
	SemanticMinScore float64

	RerankTopK            int
	PhraseInQuoteBonus    float64
	PhraseInTitleBonus    float64
	AllTokensInQuoteBonus float64
	CoverageBonus         float64
	ProximityMaxBonus     float64
	ProximityScale        float64
	ContextOnlyPenalty    float64

	// Dim is the width of query and entry vectors.
	Dim int
	// Limit truncates the sorted result list; 0 keeps everything.
	Limit int
}

// DefaultParams returns the stock ranking constants.
func DefaultParams() Params {
	return Params{
		K1: 1.4,
		B:  0.75,

		QuoteWeight:   3.6,
		TitleWeight:   2.1,
		ContextWeight: 1.0,

		LexicalWeight:    0.74,
		SemanticWeight:   0.26,
		SemanticMinScore: 0.12,

		RerankTopK:            120,
		PhraseInQuoteBonus:    0.34,
		PhraseInTitleBonus:    0.16,
		AllTokensInQuoteBonus: 0.18,
		CoverageBonus:         0.2,
		ProximityMaxBonus:     0.12,
		ProximityScale:        200,
		ContextOnlyPenalty:    0.06,

		Dim: semantic.DefaultDim,
	}
}
