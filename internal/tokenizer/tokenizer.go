// Package tokenizer counts tokens for usage accounting. The primary
// implementation uses the cl100k_base BPE encoding; a deterministic
// heuristic stands in when the encoding data is unavailable (offline
// startup, tests).
package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter reports the token count of a text. Implementations must be
// deterministic: the same input always yields the same count.
type Counter interface {
	Count(text string) int
}

const encodingName = "cl100k_base"

// TiktokenCounter counts with the cl100k_base encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the cl100k_base encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", encodingName, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// HeuristicCounter approximates BPE token counts as
// max(word count, ceil(runes/4)). Deterministic and dependency free.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	byLength := (utf8.RuneCountInString(text) + 3) / 4
	if words > byLength {
		return words
	}
	return byLength
}
