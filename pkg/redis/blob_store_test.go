package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobEscape(t *testing.T) {
	assert.Equal(t, "quote-index:", globEscape("quote-index:"))
	assert.Equal(t, `a\*b\?c\[d\]e\\f`, globEscape(`a*b?c[d]e\f`))
}
