// Package explain shapes a classifier's opaque per-token contribution signal
// into display-ready highlight spans over the original document text.
package explain

import (
	"errors"
	"fmt"
	"strings"
)

// TokenWeight is one element of the classifier's attribution signal: a token
// as emitted by the model tokenizer, in document order, with a signed
// contribution toward the predicted label.
type TokenWeight struct {
	Token  string  `json:"token"`
	Weight float64 `json:"weight"`
}

// Highlight is a contiguous span of the original text annotated with the
// magnitude and sign of its contribution. Consecutive highlights cover the
// full text with no gaps and no overlaps.
type Highlight struct {
	Text      string  `json:"text"`
	Magnitude float64 `json:"magnitude"`
	Sign      int     `json:"sign"` // -1 negative, 0 neutral, +1 positive
}

// ErrSignalMismatch reports an attribution signal whose tokens cannot be
// aligned with the document text.
var ErrSignalMismatch = errors.New("attribution signal does not align with document text")

// DefaultCoalesceBelow is the magnitude under which adjacent spans are merged
// for display.
const DefaultCoalesceBelow = 0.05

type span struct {
	text   string
	weight float64
}

// Highlights aligns the signal's tokens against text in order, fills the
// uncovered stretches (whitespace, punctuation the tokenizer swallowed) with
// zero-weight spans, and coalesces near-zero neighbours. Spans of opposite
// sign are never merged, whatever their magnitude.
func Highlights(text string, signal []TokenWeight, coalesceBelow float64) ([]Highlight, error) {
	if coalesceBelow <= 0 {
		coalesceBelow = DefaultCoalesceBelow
	}
	var spans []span
	cursor := 0
	for _, tw := range signal {
		if tw.Token == "" {
			continue
		}
		idx := strings.Index(text[cursor:], tw.Token)
		if idx < 0 {
			return nil, fmt.Errorf("%w: token %q not found after offset %d", ErrSignalMismatch, tw.Token, cursor)
		}
		if idx > 0 {
			spans = append(spans, span{text: text[cursor : cursor+idx]})
		}
		start := cursor + idx
		end := start + len(tw.Token)
		spans = append(spans, span{text: text[start:end], weight: tw.Weight})
		cursor = end
	}
	if cursor < len(text) {
		spans = append(spans, span{text: text[cursor:]})
	}

	merged := coalesce(spans, coalesceBelow)
	out := make([]Highlight, 0, len(merged))
	for _, s := range merged {
		out = append(out, Highlight{Text: s.text, Magnitude: abs(s.weight), Sign: sign(s.weight)})
	}
	return out, nil
}

// coalesce merges adjacent near-zero spans. Two spans merge only when both
// magnitudes sit under the threshold and their signs do not conflict; the
// surviving weight is the one with the larger magnitude.
func coalesce(spans []span, below float64) []span {
	var out []span
	for _, s := range spans {
		if n := len(out); n > 0 {
			prev := out[n-1]
			if abs(prev.weight) < below && abs(s.weight) < below && sign(prev.weight)*sign(s.weight) >= 0 {
				prev.text += s.text
				if abs(s.weight) > abs(prev.weight) {
					prev.weight = s.weight
				}
				out[n-1] = prev
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
