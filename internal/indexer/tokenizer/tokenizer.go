// Package tokenizer provides text normalisation and tokenisation for the
// quote index. Latin text is split into maximal [a-z0-9] runs; CJK text has
// no word boundaries, so every maximal run of ideographs is expanded into its
// unigrams, bigrams and trigrams.
package tokenizer

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC compatibility folding, lower-cases the text,
// collapses whitespace runs into a single space and trims the result.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	folded := strings.ToLower(norm.NFKC.String(text))
	return strings.Join(strings.Fields(folded), " ")
}

// Compact normalises text and then drops every rune that is neither an ASCII
// alphanumeric nor a CJK ideograph. It is used for phrase containment checks
// that should ignore spacing and punctuation.
func Compact(text string) string {
	normalized := Normalize(text)
	var sb strings.Builder
	sb.Grow(len(normalized))
	for _, r := range normalized {
		if isWordRune(r) || IsHan(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// IsHan reports whether r lies in one of the indexed CJK ideograph blocks:
// Extension A, Unified Ideographs and Compatibility Ideographs.
func IsHan(r rune) bool {
	return (r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0xF900 && r <= 0xFAFF)
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// Tokenize returns the word tokens of text followed by the CJK n-gram
// tokens. Callers fold the result into frequency maps, so the order between
// the two passes carries no meaning.
func Tokenize(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}
	tokens := wordTokens(normalized)
	return append(tokens, hanTokens(normalized)...)
}

func wordTokens(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !isWordRune(r)
	})
}

func hanRuns(normalized string) [][]rune {
	var runs [][]rune
	var current []rune
	for _, r := range normalized {
		if IsHan(r) {
			current = append(current, r)
			continue
		}
		if len(current) > 0 {
			runs = append(runs, current)
			current = nil
		}
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}

func hanTokens(normalized string) []string {
	var tokens []string
	for _, run := range hanRuns(normalized) {
		n := len(run)
		for i := 0; i < n; i++ {
			tokens = append(tokens, string(run[i]))
		}
		for i := 0; i+1 < n; i++ {
			tokens = append(tokens, string(run[i:i+2]))
		}
		for i := 0; i+2 < n; i++ {
			tokens = append(tokens, string(run[i:i+3]))
		}
	}
	return tokens
}

// TermFrequency folds tokens into a token -> count map. Counts are always
// positive.
func TermFrequency(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, token := range tokens {
		tf[token]++
	}
	return tf
}

// Unique returns tokens with duplicates removed, keeping the first
// occurrence of each.
func Unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}
