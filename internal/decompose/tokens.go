package decompose

import "github.com/pkoukk/tiktoken-go"

// approxBytesPerToken is the estimate used when no tokenizer is available.
const approxBytesPerToken = 4

// tokenCounter measures prompt budgets. It prefers a real BPE tokenizer
// and falls back to a bytes-per-token estimate when the encoding cannot be
// loaded (e.g. offline test runs).
type tokenCounter struct {
	enc *tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		return &tokenCounter{}
	}
	return &tokenCounter{enc: enc}
}

// Count returns the token count of the text.
func (c *tokenCounter) Count(text string) int {
	if c.enc == nil {
		return (len(text) + approxBytesPerToken - 1) / approxBytesPerToken
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Truncate cuts text down to the given token budget. The second return
// value reports whether anything was cut.
func (c *tokenCounter) Truncate(text string, budget int) (string, bool) {
	if budget <= 0 {
		return text, false
	}

	if c.enc == nil {
		max := budget * approxBytesPerToken
		if len(text) <= max {
			return text, false
		}
		return text[:max], true
	}

	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text, false
	}
	return c.enc.Decode(tokens[:budget]), true
}
