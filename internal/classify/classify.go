// Package classify defines the classifier adapter contract and the
// implementations behind it: a deterministic mock for tests and offline use,
// a remote model-service client, and a caching decorator.
//
// The core treats classification as a plain blocking batch call. Retries,
// timeouts and concurrency strategy belong to the caller.
package classify

import (
	"context"
	"fmt"

	"github.com/wizanyx/finsent/internal/explain"
	"github.com/wizanyx/finsent/models"
)

// Prediction is the classifier output for one document.
type Prediction struct {
	Label  models.Label  `json:"label"`
	Scores models.Scores `json:"scores"`
}

// AdapterError reports an unavailable classifier or a malformed batch
// response. It is not retried here; callers decide whether to retry or
// degrade.
type AdapterError struct {
	Adapter string
	Err     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("classifier adapter %s: %v", e.Adapter, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Classifier maps a batch of documents with non-empty text to one prediction
// per document, in input order. It fails as a unit: no partial-batch results.
type Classifier interface {
	Name() string
	Warmup(ctx context.Context) error
	Classify(ctx context.Context, docs []models.Document) ([]Prediction, error)
}

// Explainer is implemented by adapters that can surface a per-token
// contribution signal for a single document.
type Explainer interface {
	Attributions(ctx context.Context, doc models.Document) ([]explain.TokenWeight, error)
}

// Apply attaches predictions to their documents and returns the labeled
// copies. A length mismatch or malformed score vector yields an AdapterError
// and zero documents are marked as classified. The stored label is always the
// highest-scoring entry (canonical-order tie-break), whatever the adapter
// claimed.
func Apply(adapter string, docs []models.Document, preds []Prediction) ([]models.Document, error) {
	if len(docs) != len(preds) {
		return nil, &AdapterError{
			Adapter: adapter,
			Err:     fmt.Errorf("response length %d does not match batch length %d", len(preds), len(docs)),
		}
	}
	out := make([]models.Document, len(docs))
	for i, doc := range docs {
		p := preds[i]
		if err := p.Scores.Validate(); err != nil {
			return nil, &AdapterError{Adapter: adapter, Err: fmt.Errorf("document %d: %w", i, err)}
		}
		doc.Scores = p.Scores
		if len(p.Scores) > 0 {
			doc.Label = p.Scores.Top()
		} else if p.Label.Valid() {
			doc.Label = p.Label
		} else {
			return nil, &AdapterError{Adapter: adapter, Err: fmt.Errorf("document %d: no scores and unknown label %q", i, p.Label)}
		}
		out[i] = doc
	}
	return out, nil
}

func texts(docs []models.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Text
	}
	return out
}
