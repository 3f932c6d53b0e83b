package cost

import (
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter provides token counts for prompt budgeting. Gemini models have
// no public tokenizer, so counts come from the cl100k_base encoding; close
// enough for budget decisions, which all carry headroom.
type Counter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	// Cache encodings to avoid repeated initialization
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewCounter creates a counter for a specific model.
func NewCounter(model string) (*Counter, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()

	if exists {
		return &Counter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback covers every non-OpenAI model identifier
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &Counter{encoding: encoding, model: model}, nil
}

// Count returns the token count for text. A nil counter falls back to the
// character heuristic so callers never need a nil check.
func (c *Counter) Count(text string) int {
	if c == nil || c.encoding == nil {
		return EstimateTokens(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// Model returns the model name this counter is configured for.
func (c *Counter) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// EstimateTokens provides a rough estimation of token count for text.
// This is a simplified approximation: typically 1 token ≈ 0.75 words ≈ 4 characters.
func EstimateTokens(text string) int {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")

	charCount := utf8.RuneCountInString(text)

	// Rough estimation with some buffer for special tokens and formatting
	return int(math.Ceil(float64(charCount) / 3.5))
}
