package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wizanyx/finsent/models"
)

// ConfigurationError reports invalid step parameters. It is returned at
// construction time, before any batch is processed.
type ConfigurationError struct {
	Step   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pipeline step %s: %s", e.Step, e.Reason)
}

// Step transforms one Document or signals its drop. Apply returns the
// (possibly modified) document and false when the document should be dropped;
// later steps never see a dropped document.
type Step interface {
	Name() string
	Apply(doc models.Document) (models.Document, bool)
}

// Stateful marks steps carrying per-run state. The engine materializes a
// fresh instance before every batch run, so two runs never share state.
type Stateful interface {
	Step
	Fresh() Step
}

type stepFunc struct {
	name string
	fn   func(models.Document) (models.Document, bool)
}

func (s stepFunc) Name() string { return s.name }
func (s stepFunc) Apply(doc models.Document) (models.Document, bool) {
	return s.fn(doc)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeWhitespace collapses whitespace runs to a single space and trims
// leading/trailing whitespace. Never drops; text may become empty here and is
// then subject to a later DropEmptyText step.
func NormalizeWhitespace() Step {
	return stepFunc{name: "normalize_whitespace", fn: func(doc models.Document) (models.Document, bool) {
		normalized := strings.TrimSpace(whitespaceRun.ReplaceAllString(doc.Text, " "))
		if normalized != doc.Text {
			doc.Text = normalized
		}
		return doc, true
	}}
}

// DropEmptyText drops documents whose post-trim text is shorter than minLen
// characters.
func DropEmptyText(minLen int) (Step, error) {
	if minLen < 1 {
		return nil, &ConfigurationError{Step: "drop_empty_text", Reason: "min_len must be >= 1"}
	}
	return stepFunc{name: "drop_empty_text", fn: func(doc models.Document) (models.Document, bool) {
		if len([]rune(strings.TrimSpace(doc.Text))) < minLen {
			return doc, false
		}
		return doc, true
	}}, nil
}

// TruncateText cuts text to at most maxLen characters. No mid-word awareness.
func TruncateText(maxLen int) (Step, error) {
	if maxLen < 1 {
		return nil, &ConfigurationError{Step: "truncate_text", Reason: "max_len must be >= 1"}
	}
	return stepFunc{name: "truncate_text", fn: func(doc models.Document) (models.Document, bool) {
		if r := []rune(doc.Text); len(r) > maxLen {
			doc.Text = string(r[:maxLen])
		}
		return doc, true
	}}, nil
}

// UppercaseTicker upper-cases the ticker if present. Redundant with Document
// construction but kept as a reusable step for pipelines fed already-built
// documents from older adapters.
func UppercaseTicker() Step {
	return stepFunc{name: "uppercase_ticker", fn: func(doc models.Document) (models.Document, bool) {
		if doc.Ticker != "" {
			doc.Ticker = strings.ToUpper(strings.TrimSpace(doc.Ticker))
		}
		return doc, true
	}}
}

type dedupStep struct {
	seen map[string]struct{}
}

func (d *dedupStep) Name() string { return "deduplicate_by_text" }

func (d *dedupStep) Fresh() Step {
	return &dedupStep{seen: make(map[string]struct{})}
}

func (d *dedupStep) Apply(doc models.Document) (models.Document, bool) {
	key := strings.TrimSpace(doc.Text)
	if key == "" {
		return doc, true
	}
	if _, dup := d.seen[key]; dup {
		return doc, false
	}
	d.seen[key] = struct{}{}
	return doc, true
}

// DeduplicateByText drops every document after the first whose text, as seen
// at this point in the pipeline, was already observed in the same batch run.
// Dedup history is scoped to a single run: the engine instantiates the seen
// set fresh for each Process call.
//
// Equality is exact string equality on the text as transformed by all prior
// steps, which is why step order changes outcomes: placed after TruncateText
// it conflates long texts sharing a truncated prefix.
func DeduplicateByText() Step {
	return &dedupStep{seen: make(map[string]struct{})}
}
