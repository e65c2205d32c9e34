// Package models defines the canonical Document record shared by the
// preprocessing pipeline, the classifier adapters and the aggregation layer.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Label is one of the three sentiment classes.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNeutral  Label = "neutral"
	LabelNegative Label = "negative"
)

// Labels holds the canonical label order. Ties between equal scores are
// resolved toward the earliest entry here.
var Labels = []Label{LabelPositive, LabelNeutral, LabelNegative}

// Valid reports whether l is one of the canonical labels.
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}

// Scores maps each label to a probability-like value.
type Scores map[Label]float64

// Top returns the highest-scoring label, resolving ties toward the earliest
// label in canonical order. An empty map yields neutral.
func (s Scores) Top() Label {
	if len(s) == 0 {
		return LabelNeutral
	}
	best := Labels[0]
	bestScore := s[best]
	for _, l := range Labels[1:] {
		if s[l] > bestScore {
			best = l
			bestScore = s[l]
		}
	}
	return best
}

// Validate checks that every score is non-negative and every key canonical.
func (s Scores) Validate() error {
	for l, v := range s {
		if !l.Valid() {
			return fmt.Errorf("unknown label %q in scores", l)
		}
		if v < 0 {
			return fmt.Errorf("score for %q is negative", l)
		}
	}
	return nil
}

// Diff returns positive minus negative, the signed per-document sentiment.
func (s Scores) Diff() float64 {
	return s[LabelPositive] - s[LabelNegative]
}

// ValidationError reports a malformed or missing required Document field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document validation: %s %s", e.Field, e.Reason)
}

// TimeLayout is the canonical serialized form of Document.CreatedAt:
// microsecond precision, always UTC, explicit zone marker.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Document is the canonical normalized record of one text item.
//
// Documents flow immutably-by-convention: pipeline steps and the classifier
// return modified copies, never mutate a Document held elsewhere.
type Document struct {
	ID        string
	Source    string
	Ticker    string // upper-cased; empty means no ticker
	CreatedAt time.Time
	Text      string
	Permalink string
	Label     Label // set by classification, empty until then
	Scores    Scores
}

// Classified reports whether a sentiment label has been attached.
func (d Document) Classified() bool { return d.Label != "" }

// New validates and normalizes a Document:
//   - empty ID is replaced with a fresh random identifier
//   - Source and Text are required
//   - Ticker is trimmed and upper-cased; whitespace-only becomes absent
//   - CreatedAt defaults to now, is converted to UTC and truncated to
//     microseconds so the wire form round-trips byte-for-byte
func New(d Document) (Document, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Source == "" {
		return Document{}, &ValidationError{Field: "source", Reason: "is required"}
	}
	if d.Text == "" {
		return Document{}, &ValidationError{Field: "text", Reason: "is required"}
	}
	d.Ticker = strings.ToUpper(strings.TrimSpace(d.Ticker))
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.CreatedAt = d.CreatedAt.UTC().Truncate(time.Microsecond)
	if d.Label != "" && !d.Label.Valid() {
		return Document{}, &ValidationError{Field: "label", Reason: fmt.Sprintf("unknown label %q", d.Label)}
	}
	if d.Scores != nil {
		if err := d.Scores.Validate(); err != nil {
			return Document{}, &ValidationError{Field: "scores", Reason: err.Error()}
		}
	}
	if d.Label != "" && len(d.Scores) > 0 && d.Label != d.Scores.Top() {
		return Document{}, &ValidationError{
			Field:  "label",
			Reason: fmt.Sprintf("label %q does not match the highest-scoring entry %q", d.Label, d.Scores.Top()),
		}
	}
	return d, nil
}

// FromMap builds a Document from a loosely-typed payload, the validating
// boundary for upload rows and adapter output. created_at may be an ISO-8601
// string (with offset or Z) or a time.Time; unparseable strings fall back to
// the current instant rather than failing the row.
func FromMap(payload map[string]interface{}) (Document, error) {
	d := Document{
		ID:        stringField(payload, "id"),
		Source:    stringField(payload, "source"),
		Ticker:    stringField(payload, "ticker"),
		Text:      stringField(payload, "text"),
		Permalink: stringField(payload, "permalink"),
	}
	switch v := payload["created_at"].(type) {
	case time.Time:
		d.CreatedAt = v
	case string:
		if v != "" {
			d.CreatedAt = parseTimestamp(v)
		}
	}
	return New(d)
}

func stringField(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

// parseTimestamp accepts RFC3339 shapes with or without fractional seconds.
// Invalid input yields the current instant, matching construction defaults.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
		return t
	}
	return time.Now()
}

type documentWire struct {
	ID        string  `json:"id"`
	Source    string  `json:"source"`
	Ticker    *string `json:"ticker"`
	CreatedAt string  `json:"created_at"`
	Text      string  `json:"text"`
	Permalink *string `json:"permalink"`
	Label     Label   `json:"label,omitempty"`
	Scores    Scores  `json:"scores,omitempty"`
}

// MarshalJSON renders the wire form: ticker/permalink as explicit nulls when
// absent, created_at as the canonical UTC string.
func (d Document) MarshalJSON() ([]byte, error) {
	w := documentWire{
		ID:        d.ID,
		Source:    d.Source,
		CreatedAt: d.CreatedAt.UTC().Format(TimeLayout),
		Text:      d.Text,
		Label:     d.Label,
		Scores:    d.Scores,
	}
	if d.Ticker != "" {
		w.Ticker = &d.Ticker
	}
	if d.Permalink != "" {
		w.Permalink = &d.Permalink
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the wire form and re-runs construction validation, so
// no partially-valid Document escapes decoding.
func (d *Document) UnmarshalJSON(data []byte) error {
	var w documentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Label != "" && !w.Label.Valid() {
		return &ValidationError{Field: "label", Reason: fmt.Sprintf("unknown value %q", w.Label)}
	}
	parsed := Document{
		ID:     w.ID,
		Source: w.Source,
		Text:   w.Text,
		Label:  w.Label,
		Scores: w.Scores,
	}
	if w.Ticker != nil {
		parsed.Ticker = *w.Ticker
	}
	if w.Permalink != nil {
		parsed.Permalink = *w.Permalink
	}
	if w.CreatedAt != "" {
		parsed.CreatedAt = parseTimestamp(w.CreatedAt)
	}
	out, err := New(parsed)
	if err != nil {
		return err
	}
	*d = out
	return nil
}
