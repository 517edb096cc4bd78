package tokenizer

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"collapses runs", "  Hello \t\n  World  ", "hello world"},
		{"fullwidth folds", "ＡＢＣ１２３", "abc123"},
		{"keeps cjk", " 你好  世界 ", "你好 世界"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "helloworld42", Compact("Hello, World! 42"))
	assert.Equal(t, "你好世界", Compact("你好，世界。"))
	assert.Equal(t, "", Compact("...!!!"))
	assert.Equal(t, "caf", Compact("Café"))
}

func TestIsHan(t *testing.T) {
	assert.True(t, IsHan('中'))
	assert.True(t, IsHan('㐀'))
	assert.True(t, IsHan('切'))
	assert.False(t, IsHan('a'))
	assert.False(t, IsHan('あ'))
	assert.False(t, IsHan('，'))
}

func TestTokenizeLatin(t *testing.T) {
	assert.Equal(t, []string{"it", "s", "a", "test", "42"}, Tokenize("It's a TEST-42"))
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("   "))
}

func TestTokenizeHanNgrams(t *testing.T) {
	tokens := Tokenize("你好世界")
	assert.Equal(t, []string{
		"你", "好", "世", "界",
		"你好", "好世", "世界",
		"你好世", "好世界",
	}, tokens)
}

func TestTokenizeHanRunCounts(t *testing.T) {
	for l := 1; l <= 8; l++ {
		run := strings.Repeat("字", l)
		tokens := Tokenize(run)
		want := l + (l - 1) + max(0, l-2)
		assert.Len(t, tokens, want, "run length %d", l)
	}
}

func TestTokenizeHanDoesNotCrossBoundaries(t *testing.T) {
	tokens := Tokenize("你好 abc 世界")
	for _, token := range tokens {
		assert.NotContains(t, token, " ")
	}
	assert.NotContains(t, tokens, "好世")
	assert.Contains(t, tokens, "abc")
	assert.Contains(t, tokens, "你好")
	assert.Contains(t, tokens, "世界")
	// two runs of length 2: (2 + 1 + 0) each, plus one word token
	assert.Len(t, tokens, 7)
}

func TestTokenizeDeterministic(t *testing.T) {
	inputs := []string{
		"The quick brown fox 跳过了懒狗 42 times",
		"ＦＵＬＬ　ｗｉｄｔｈ，中文标点。",
		"",
	}
	for _, in := range inputs {
		first := Tokenize(in)
		second := Tokenize(in)
		require.Equal(t, first, second)

		a := append([]string(nil), first...)
		b := append([]string(nil), second...)
		sort.Strings(a)
		sort.Strings(b)
		assert.Equal(t, a, b)
	}
}

func TestTermFrequency(t *testing.T) {
	tf := TermFrequency([]string{"a", "b", "a", "c", "a"})
	assert.Equal(t, map[string]int{"a": 3, "b": 1, "c": 1}, tf)
	for _, count := range tf {
		assert.Positive(t, count)
	}
	assert.Empty(t, TermFrequency(nil))
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, Unique([]string{"b", "a", "b", "c", "a"}))
	assert.Empty(t, Unique(nil))
}

func BenchmarkTokenize(b *testing.B) {
	text := strings.Repeat("Information retrieval systems 信息检索系统 combine tokenization. ", 20)
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Tokenize(text)
	}
}
