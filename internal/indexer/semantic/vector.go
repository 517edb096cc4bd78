// Package semantic builds hashed character n-gram sketches of text. A sketch
// is a fixed-width signed count vector, normalised to unit length, so the dot
// product of two sketches approximates how much character-level substructure
// two texts share. No model weights are involved.
package semantic

import (
	"hash/fnv"
	"math"

	"github.com/Adithya-Monish-Kumar-K/quote-search/internal/indexer/tokenizer"
)

// DefaultDim is the sketch width used by the index.
const DefaultDim = 128

const maxGram = 4

// Part is one weighted input of EmbedWeighted.
type Part struct {
	Text   string
	Weight float64
}

// Embed returns the unit-length sketch of text, or an all-zero vector when
// the compacted text is empty.
func Embed(text string, dim int) []float32 {
	return normalize(sketch(text, dim))
}

// EmbedWeighted blends several texts into one unit-length sketch. Each part
// is embedded and normalised on its own, scaled by its weight, and the sum is
// normalised once. Parts with empty text or zero weight are skipped.
func EmbedWeighted(parts []Part, dim int) []float32 {
	dim = validDim(dim)
	out := make([]float32, dim)
	for _, part := range parts {
		if part.Text == "" || part.Weight == 0 {
			continue
		}
		v := Embed(part.Text, dim)
		w := float32(part.Weight)
		for i := range out {
			out[i] += v[i] * w
		}
	}
	return normalize(out)
}

// Similarity returns the dot product of a and b, which equals their cosine
// similarity when both are unit vectors. Vectors of different widths score 0.
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func sketch(text string, dim int) []float32 {
	dim = validDim(dim)
	vec := make([]float32, dim)
	chars := []rune(tokenizer.Compact(text))
	for i := range chars {
		for n := 1; n <= maxGram && i+n <= len(chars); n++ {
			h := hashGram(chars[i : i+n])
			slot := h % uint32(dim)
			if h&1 == 1 {
				vec[slot]++
			} else {
				vec[slot]--
			}
		}
	}
	return vec
}

func hashGram(gram []rune) uint32 {
	h := fnv.New32a()
	h.Write([]byte(string(gram)))
	return h.Sum32()
}

func normalize(v []float32) []float32 {
	norm := Norm(v)
	if norm == 0 {
		return v
	}
	scale := float32(1 / norm)
	for i := range v {
		v[i] *= scale
	}
	return v
}

func validDim(dim int) int {
	if dim <= 0 {
		return DefaultDim
	}
	return dim
}
