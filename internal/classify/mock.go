package classify

import (
	"context"
	"hash/fnv"
	"log"
	"strings"

	"github.com/wizanyx/finsent/internal/explain"
	"github.com/wizanyx/finsent/models"
)

// Mock is a deterministic, dependency-free classifier for tests and local
// runs without a model service. Scores carry a small per-text variation
// derived from a hash so batching behaviour is observable, stable per text.
type Mock struct {
	logger *log.Logger
}

// NewMock returns a mock classifier.
func NewMock() *Mock {
	return &Mock{logger: log.New(log.Writer(), "[CLF-MOCK] ", log.LstdFlags)}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Warmup(ctx context.Context) error {
	m.logger.Printf("warmup completed")
	return nil
}

func (m *Mock) Classify(ctx context.Context, docs []models.Document) ([]Prediction, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	preds := make([]Prediction, len(docs))
	for i, text := range texts(docs) {
		h := float64(textHash(text)%1000) / 1000.0
		pos := 0.33 + (h-0.5)*0.02
		neg := 0.33 - (h-0.5)*0.01
		neu := 1.0 - pos - neg
		if neu < 0 {
			neu = 0
		}
		scores := models.Scores{
			models.LabelPositive: pos,
			models.LabelNegative: neg,
			models.LabelNeutral:  neu,
		}
		preds[i] = Prediction{Label: scores.Top(), Scores: scores}
	}
	return preds, nil
}

// mockLexicon drives deterministic attributions so explainability paths can
// be exercised without a model.
var mockLexicon = map[string]float64{
	"beat": 0.7, "beats": 0.8, "gain": 0.6, "gains": 0.6, "surge": 0.8,
	"surges": 0.8, "up": 0.4, "strong": 0.5, "record": 0.4, "rally": 0.6,
	"miss": -0.7, "misses": -0.7, "fall": -0.6, "falls": -0.6, "down": -0.4,
	"weak": -0.5, "loss": -0.6, "plunge": -0.9, "plunges": -0.9, "cut": -0.5,
}

// Attributions weights each whitespace token by a tiny sentiment lexicon;
// unknown tokens get a near-zero hash-derived weight.
func (m *Mock) Attributions(ctx context.Context, doc models.Document) ([]explain.TokenWeight, error) {
	fields := strings.Fields(doc.Text)
	out := make([]explain.TokenWeight, 0, len(fields))
	for _, tok := range fields {
		key := strings.ToLower(strings.Trim(tok, ".,!?;:'\"()"))
		w, ok := mockLexicon[key]
		if !ok {
			w = (float64(textHash(key)%200)/100.0 - 1.0) * 0.01
		}
		out = append(out, explain.TokenWeight{Token: tok, Weight: w})
	}
	return out, nil
}

func textHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
