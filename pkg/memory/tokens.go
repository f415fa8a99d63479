package memory

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerToken is the conventional character-per-token estimate used to
// derive the per-turn character budget from a token budget.
const charsPerToken = 4

// TokenCounter estimates token usage for history introspection.
// It uses a tiktoken encoding when one can be loaded and falls back to the
// four-characters-per-token heuristic otherwise.
type TokenCounter struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter creates a token counter.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

func (tc *TokenCounter) load() {
	tc.once.Do(func() {
		// cl100k_base is a reasonable estimator across providers.
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			tc.encoding = enc
		}
	})
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	tc.load()
	if tc.encoding != nil {
		return len(tc.encoding.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Estimate applies the character heuristic without an encoder.
func Estimate(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}
