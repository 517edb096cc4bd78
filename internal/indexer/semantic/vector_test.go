package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedEmptyIsZero(t *testing.T) {
	for _, text := range []string{"", "   ", "!!!,,,"} {
		v := Embed(text, DefaultDim)
		require.Len(t, v, DefaultDim)
		for _, x := range v {
			assert.Zero(t, x)
		}
		assert.Zero(t, Norm(v))
	}
}

func TestEmbedUnitNorm(t *testing.T) {
	texts := []string{
		"a",
		"hello world",
		"我们今天去公园散步",
		"Mixed 中英 text with digits 123",
	}
	for _, text := range texts {
		v := Embed(text, DefaultDim)
		assert.InDelta(t, 1.0, Norm(v), 1e-5, text)
		assert.InDelta(t, 1.0, Similarity(v, v), 1e-5, text)
	}
}

func TestEmbedDeterministic(t *testing.T) {
	assert.Equal(t, Embed("same text", 64), Embed("same text", 64))
}

func TestEmbedDefaultsDim(t *testing.T) {
	assert.Len(t, Embed("x", 0), DefaultDim)
}

func TestSimilarityPrefersOverlap(t *testing.T) {
	q := Embed("never gonna give you up", DefaultDim)
	near := Embed("never gonna give you up never gonna let you down", DefaultDim)
	far := Embed("quantum chromodynamics lecture", DefaultDim)
	assert.Greater(t, Similarity(q, near), Similarity(q, far))
}

func TestSimilarityLengthMismatch(t *testing.T) {
	assert.Zero(t, Similarity(make([]float32, 3), make([]float32, 4)))
}

func TestEmbedWeighted(t *testing.T) {
	v := EmbedWeighted([]Part{
		{Text: "primary quote", Weight: 1.0},
		{Text: "video title", Weight: 0.65},
		{Text: "", Weight: 0.35},
		{Text: "ignored", Weight: 0},
	}, DefaultDim)
	assert.InDelta(t, 1.0, Norm(v), 1e-5)

	single := EmbedWeighted([]Part{{Text: "only", Weight: 0.3}}, DefaultDim)
	assert.InDeltaSlice(t, Embed("only", DefaultDim), single, 1e-6)

	zero := EmbedWeighted(nil, DefaultDim)
	assert.Zero(t, Norm(zero))
}
