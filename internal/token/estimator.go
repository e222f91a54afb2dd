// Package token estimates token counts for text, parts and messages.
package token

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/cadenza-ai/cadenza/pkg/types"
)

// encodingName is a reasonable cross-provider default; estimates feed
// pruning and overflow heuristics, not billing.
const encodingName = "cl100k_base"

// fallbackCharsPerToken approximates English text when the BPE encoding
// cannot be loaded (e.g. offline).
const fallbackCharsPerToken = 4

// Estimator counts tokens using tiktoken, falling back to a character
// heuristic when the encoding is unavailable. Safe for concurrent use.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator returns an Estimator. The encoding is loaded lazily on
// first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) encoding() *tiktoken.Tiktoken {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			e.enc = enc
		}
	})
	return e.enc
}

// Count returns the estimated token count of text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := e.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	n := len(text) / fallbackCharsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

// CountPart estimates one part's footprint, including tool inputs and
// outputs.
func (e *Estimator) CountPart(part types.Part) int {
	switch p := part.(type) {
	case *types.TextPart:
		return e.Count(p.Text)
	case *types.ReasoningPart:
		return e.Count(p.Text)
	case *types.ToolPart:
		n := e.Count(p.Tool)
		if len(p.Input) > 0 {
			if data, err := json.Marshal(p.Input); err == nil {
				n += e.Count(string(data))
			}
		}
		n += e.Count(p.State.Output)
		n += e.Count(p.State.Error)
		return n
	}
	return 0
}

// CountParts sums estimates over parts.
func (e *Estimator) CountParts(parts []types.Part) int {
	total := 0
	for _, p := range parts {
		total += e.CountPart(p)
	}
	return total
}
