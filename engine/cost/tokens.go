package cost

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens with a BPE encoding when available and a
// runes/4 heuristic otherwise. The heuristic path also covers offline
// startup, where the encoding tables cannot be fetched.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func NewTokenCounter() *TokenCounter {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		encoding = nil
	}
	return &TokenCounter{encoding: encoding}
}

// Count returns the token count for a text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	return heuristicCount(text)
}

func heuristicCount(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		return 1
	}
	return n
}
