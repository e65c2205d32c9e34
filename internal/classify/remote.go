package classify

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wizanyx/finsent/internal/explain"
	"github.com/wizanyx/finsent/models"
)

// Remote calls a model inference service over HTTP. The service owns the
// model and tokenizer; this adapter only normalizes its raw label shapes into
// the canonical enumeration and renormalizes score mass.
type Remote struct {
	client    *resty.Client
	batchSize int
	logger    *log.Logger
}

// NewRemote builds a remote adapter against the inference service base URL.
// batchSize caps how many texts go into one /predict call; values < 1 fall
// back to 16.
func NewRemote(baseURL string, timeout time.Duration, batchSize int) *Remote {
	if batchSize < 1 {
		batchSize = 16
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", "finsent/1.0")
	return &Remote{
		client:    client,
		batchSize: batchSize,
		logger:    log.New(log.Writer(), "[CLF-REMOTE] ", log.LstdFlags),
	}
}

func (r *Remote) Name() string { return "remote" }

// Warmup sends a single throwaway prediction so the service loads its model
// before real traffic arrives. Failure is logged, not fatal.
func (r *Remote) Warmup(ctx context.Context) error {
	_, err := r.predict(ctx, []string{"warmup text"})
	if err != nil {
		r.logger.Printf("warmup failed: %v", err)
		return err
	}
	r.logger.Printf("warmup completed")
	return nil
}

type predictRequest struct {
	Texts []string `json:"texts"`
}

type rawPrediction struct {
	Label  string             `json:"label"`
	Scores map[string]float64 `json:"scores"`
}

type tokenWeightWire struct {
	Token  string  `json:"token"`
	Weight float64 `json:"weight"`
}

func (r *Remote) Classify(ctx context.Context, docs []models.Document) ([]Prediction, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	batch := texts(docs)
	out := make([]Prediction, 0, len(batch))
	for start := 0; start < len(batch); start += r.batchSize {
		end := start + r.batchSize
		if end > len(batch) {
			end = len(batch)
		}
		preds, err := r.predict(ctx, batch[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, preds...)
	}
	return out, nil
}

func (r *Remote) predict(ctx context.Context, batch []string) ([]Prediction, error) {
	var raw []rawPrediction
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(predictRequest{Texts: batch}).
		SetResult(&raw).
		Post("/predict")
	if err != nil {
		return nil, &AdapterError{Adapter: r.Name(), Err: err}
	}
	if resp.IsError() {
		return nil, &AdapterError{Adapter: r.Name(), Err: fmt.Errorf("predict returned %s", resp.Status())}
	}
	if len(raw) != len(batch) {
		return nil, &AdapterError{
			Adapter: r.Name(),
			Err:     fmt.Errorf("predict returned %d results for %d texts", len(raw), len(batch)),
		}
	}
	preds := make([]Prediction, len(raw))
	for i, rp := range raw {
		preds[i] = normalizePrediction(rp)
	}
	return preds, nil
}

// Attributions fetches the per-token contribution signal for one document.
func (r *Remote) Attributions(ctx context.Context, doc models.Document) ([]explain.TokenWeight, error) {
	var raw []tokenWeightWire
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": doc.Text}).
		SetResult(&raw).
		Post("/explain")
	if err != nil {
		return nil, &AdapterError{Adapter: r.Name(), Err: err}
	}
	if resp.IsError() {
		return nil, &AdapterError{Adapter: r.Name(), Err: fmt.Errorf("explain returned %s", resp.Status())}
	}
	out := make([]explain.TokenWeight, len(raw))
	for i, tw := range raw {
		out[i] = explain.TokenWeight{Token: tw.Token, Weight: tw.Weight}
	}
	return out, nil
}

// normalizePrediction folds a raw service response into canonical labels:
// duplicate raw labels accumulate, every canonical label is present, score
// mass renormalizes to 1, and the reported label is recomputed from scores.
func normalizePrediction(rp rawPrediction) Prediction {
	scores := models.Scores{}
	for rawLabel, score := range rp.Scores {
		scores[mapLabel(rawLabel)] += score
	}
	if len(rp.Scores) == 0 {
		// score-less services still get a usable one-hot vector
		scores[mapLabel(rp.Label)] = 1.0
	}
	for _, l := range models.Labels {
		if _, ok := scores[l]; !ok {
			scores[l] = 0
		}
	}
	var total float64
	for _, v := range scores {
		total += v
	}
	if total == 0 {
		total = 1.0
	}
	for l, v := range scores {
		scores[l] = v / total
	}
	return Prediction{Label: scores.Top(), Scores: scores}
}

// labelIndexFallback covers index-style labels when the service exposes no
// readable mapping. Many finetuned financial models order classes
// [positive, negative, neutral].
var labelIndexFallback = map[int]models.Label{
	0: models.LabelPositive,
	1: models.LabelNegative,
	2: models.LabelNeutral,
}

// mapLabel normalizes raw model label shapes ("LABEL_0", "pos", "+",
// "NEGATIVE", "positive_score") into the canonical enumeration. Anything
// unrecognized maps to neutral.
func mapLabel(raw string) models.Label {
	label := strings.ToLower(strings.TrimSpace(raw))
	if label == "" {
		return models.LabelNeutral
	}
	if strings.HasPrefix(label, "label_") {
		idx, err := strconv.Atoi(strings.TrimPrefix(label, "label_"))
		if err != nil {
			return models.LabelNeutral
		}
		if mapped, ok := labelIndexFallback[idx]; ok {
			return mapped
		}
		return models.LabelNeutral
	}
	switch label {
	case "pos", "+":
		return models.LabelPositive
	case "neg", "-":
		return models.LabelNegative
	}
	if models.Label(label).Valid() {
		return models.Label(label)
	}
	for _, canonical := range models.Labels {
		if strings.Contains(label, string(canonical)) {
			return canonical
		}
	}
	return models.LabelNeutral
}
