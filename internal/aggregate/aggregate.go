// Package aggregate turns labeled documents into dashboard-ready per-ticker
// summaries. Summaries are recomputed from scratch on every query and never
// mutated in place, so retries can never observe a stale partial aggregate.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/wizanyx/finsent/models"
)

// DefaultWindow is the lookback applied when the caller supplies none.
const DefaultWindow = 24 * time.Hour

// DefaultTopN caps the ranked list when the caller supplies no limit.
const DefaultTopN = 10

// Options narrow an aggregation query.
type Options struct {
	// Ticker restricts to documents carrying this symbol (case-insensitive).
	// Empty aggregates market-wide, across all documents.
	Ticker string
	// Window is the lookback from Now; <= 0 falls back to DefaultWindow.
	Window time.Duration
	// Now anchors the window; zero means the current instant.
	Now time.Time
	// TopN caps the ranked list; <= 0 falls back to DefaultTopN.
	TopN int
}

// Summary is the aggregate metrics record for one (ticker, window) query.
type Summary struct {
	Ticker string               `json:"ticker,omitempty"`
	Window string               `json:"window"`
	Counts map[models.Label]int `json:"counts"`
	Total  int                  `json:"total"`
	Score  float64              `json:"score"`
	Top    []models.Document    `json:"top"`
}

// Summarize computes label counts, the composite score and the top-N ranking
// over the labeled documents inside the window. Unclassified documents are
// skipped: they carry no sentiment yet.
//
// The composite score is (positive − negative) / total. It is bounded to
// [-1, 1], moves monotonically with added positive or negative documents,
// and is exactly 0 when no documents contribute.
func Summarize(docs []models.Document, opts Options) Summary {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	ticker := strings.ToUpper(strings.TrimSpace(opts.Ticker))

	counts := make(map[models.Label]int, len(models.Labels))
	for _, l := range models.Labels {
		counts[l] = 0
	}

	cutoff := now.Add(-window)
	var contributing []models.Document
	for _, d := range docs {
		if !d.Classified() {
			continue
		}
		if ticker != "" && d.Ticker != ticker {
			continue
		}
		if d.CreatedAt.Before(cutoff) || d.CreatedAt.After(now) {
			continue
		}
		counts[d.Label]++
		contributing = append(contributing, d)
	}

	total := len(contributing)
	var score float64
	if total > 0 {
		score = float64(counts[models.LabelPositive]-counts[models.LabelNegative]) / float64(total)
	}

	rankDocuments(contributing)
	if len(contributing) > topN {
		contributing = contributing[:topN]
	}

	return Summary{
		Ticker: ticker,
		Window: window.String(),
		Counts: counts,
		Total:  total,
		Score:  score,
		Top:    contributing,
	}
}

// magnitude is a document's absolute deviation from neutral. Score vectors
// give a graded value; a bare label degrades to 1 for positive/negative and
// 0 for neutral.
func magnitude(d models.Document) float64 {
	if len(d.Scores) > 0 {
		diff := d.Scores.Diff()
		if diff < 0 {
			return -diff
		}
		return diff
	}
	if d.Label == models.LabelNeutral {
		return 0
	}
	return 1
}

// rankDocuments orders most-strongly-sentimental first; equal magnitudes
// break toward the more recent document, then toward the smaller id so the
// order is never ambiguous.
func rankDocuments(docs []models.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		mi, mj := magnitude(docs[i]), magnitude(docs[j])
		if mi != mj {
			return mi > mj
		}
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}
