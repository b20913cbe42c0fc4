package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"capital", "france"}, Tokenize("What is the capital of France?"))
	assert.Equal(t, []string{"go", "1", "24", "released"}, Tokenize("Go 1.24 was released"))
	assert.Empty(t, Tokenize("the of and"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", TruncateRunes("héllo", 4))
	assert.Equal(t, "abc", TruncateRunes("abc", 10))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}
