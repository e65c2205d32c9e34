package aggregate

import (
	"testing"
	"time"

	"github.com/wizanyx/finsent/models"
)

var anchor = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// labeled builds a classified document whose scores agree with label and
// whose positive-negative spread is exactly diff.
func labeled(t *testing.T, id string, label models.Label, diff float64, age time.Duration) models.Document {
	t.Helper()
	scores := models.Scores{models.LabelNeutral: 1}
	if diff != 0 {
		scores = models.Scores{
			models.LabelPositive: (1 + diff) / 2,
			models.LabelNegative: (1 - diff) / 2,
			models.LabelNeutral:  0,
		}
	}
	d, err := models.New(models.Document{
		ID:        id,
		Source:    "test",
		Ticker:    "AAPL",
		CreatedAt: anchor.Add(-age),
		Text:      "text " + id,
		Label:     label,
		Scores:    scores,
	})
	if err != nil {
		t.Fatalf("models.New: %v", err)
	}
	return d
}

func TestSummarizeEmptyInput(t *testing.T) {
	s := Summarize(nil, Options{Ticker: "AAPL", Now: anchor})
	if s.Score != 0 {
		t.Fatalf("empty input score = %f, want exactly 0", s.Score)
	}
	if s.Total != 0 || len(s.Top) != 0 {
		t.Fatalf("empty input summary: %+v", s)
	}
	for _, l := range models.Labels {
		if s.Counts[l] != 0 {
			t.Fatalf("counts not zeroed: %v", s.Counts)
		}
	}
}

func TestSummarizeScoreBounds(t *testing.T) {
	pos := []models.Document{
		labeled(t, "p1", models.LabelPositive, 0.9, time.Hour),
		labeled(t, "p2", models.LabelPositive, 0.5, 2*time.Hour),
		labeled(t, "p3", models.LabelPositive, 0.2, 3*time.Hour),
	}
	if s := Summarize(pos, Options{Ticker: "AAPL", Now: anchor}); s.Score != 1.0 {
		t.Fatalf("all-positive score = %f, want exactly 1", s.Score)
	}

	neg := []models.Document{
		labeled(t, "n1", models.LabelNegative, -0.9, time.Hour),
		labeled(t, "n2", models.LabelNegative, -0.4, 2*time.Hour),
	}
	if s := Summarize(neg, Options{Ticker: "AAPL", Now: anchor}); s.Score != -1.0 {
		t.Fatalf("all-negative score = %f, want exactly -1", s.Score)
	}
}

func TestSummarizeMonotonicity(t *testing.T) {
	docs := []models.Document{
		labeled(t, "p", models.LabelPositive, 0.8, time.Hour),
		labeled(t, "n", models.LabelNegative, -0.8, time.Hour),
	}
	base := Summarize(docs, Options{Ticker: "AAPL", Now: anchor}).Score

	withPos := append(append([]models.Document{}, docs...), labeled(t, "p2", models.LabelPositive, 0.5, time.Hour))
	if got := Summarize(withPos, Options{Ticker: "AAPL", Now: anchor}).Score; got < base {
		t.Fatalf("adding a positive document decreased the score: %f -> %f", base, got)
	}
	withNeg := append(append([]models.Document{}, docs...), labeled(t, "n2", models.LabelNegative, -0.5, time.Hour))
	if got := Summarize(withNeg, Options{Ticker: "AAPL", Now: anchor}).Score; got > base {
		t.Fatalf("adding a negative document increased the score: %f -> %f", base, got)
	}
}

func TestSummarizeCounts(t *testing.T) {
	docs := []models.Document{
		labeled(t, "a", models.LabelPositive, 0.7, time.Hour),
		labeled(t, "b", models.LabelPositive, 0.6, time.Hour),
		labeled(t, "c", models.LabelNeutral, 0, time.Hour),
		labeled(t, "d", models.LabelNegative, -0.5, time.Hour),
	}
	s := Summarize(docs, Options{Ticker: "AAPL", Now: anchor})
	if s.Counts[models.LabelPositive] != 2 || s.Counts[models.LabelNeutral] != 1 || s.Counts[models.LabelNegative] != 1 {
		t.Fatalf("counts = %v", s.Counts)
	}
	if s.Total != 4 {
		t.Fatalf("total = %d", s.Total)
	}
	if want := (2.0 - 1.0) / 4.0; s.Score != want {
		t.Fatalf("score = %f, want %f", s.Score, want)
	}
}

func TestSummarizeWindowFiltering(t *testing.T) {
	docs := []models.Document{
		labeled(t, "in", models.LabelPositive, 0.9, time.Hour),
		labeled(t, "stale", models.LabelNegative, -0.9, 48*time.Hour),
		labeled(t, "future", models.LabelNegative, -0.9, -time.Hour),
	}
	s := Summarize(docs, Options{Ticker: "AAPL", Window: 24 * time.Hour, Now: anchor})
	if s.Total != 1 {
		t.Fatalf("window should keep only one document, got %d", s.Total)
	}
	if s.Top[0].ID != "in" {
		t.Fatalf("wrong survivor: %s", s.Top[0].ID)
	}
}

func TestSummarizeRankingMagnitudeThenRecency(t *testing.T) {
	docs := []models.Document{
		labeled(t, "weak", models.LabelPositive, 0.2, time.Hour),
		labeled(t, "old-strong", models.LabelNegative, -0.8, 5*time.Hour),
		labeled(t, "new-strong", models.LabelPositive, 0.8, time.Hour),
	}
	s := Summarize(docs, Options{Ticker: "AAPL", Now: anchor})
	if len(s.Top) != 3 {
		t.Fatalf("top length = %d", len(s.Top))
	}
	// equal magnitude 0.8: the more recent one ranks first
	if s.Top[0].ID != "new-strong" || s.Top[1].ID != "old-strong" || s.Top[2].ID != "weak" {
		t.Fatalf("ranking = %s, %s, %s", s.Top[0].ID, s.Top[1].ID, s.Top[2].ID)
	}
}

func TestSummarizeTopNCap(t *testing.T) {
	var docs []models.Document
	for i := 0; i < 15; i++ {
		docs = append(docs, labeled(t, string(rune('a'+i)), models.LabelPositive, 0.5, time.Hour))
	}
	s := Summarize(docs, Options{Ticker: "AAPL", Now: anchor, TopN: 3})
	if len(s.Top) != 3 {
		t.Fatalf("top-N cap ignored: %d", len(s.Top))
	}
	if s.Total != 15 {
		t.Fatalf("counts should still cover all contributing docs, got %d", s.Total)
	}
}

func TestSummarizeSkipsUnclassified(t *testing.T) {
	unlabeled, err := models.New(models.Document{Source: "test", Ticker: "AAPL", CreatedAt: anchor, Text: "raw"})
	if err != nil {
		t.Fatalf("models.New: %v", err)
	}
	docs := []models.Document{unlabeled, labeled(t, "x", models.LabelPositive, 0.9, time.Hour)}
	s := Summarize(docs, Options{Ticker: "AAPL", Now: anchor})
	if s.Total != 1 {
		t.Fatalf("unclassified documents must not contribute, total = %d", s.Total)
	}
}

func TestSummarizeTickerFilter(t *testing.T) {
	other := labeled(t, "tsla", models.LabelNegative, -0.9, time.Hour)
	other.Ticker = "TSLA"
	docs := []models.Document{labeled(t, "aapl", models.LabelPositive, 0.9, time.Hour), other}

	s := Summarize(docs, Options{Ticker: "aapl", Now: anchor})
	if s.Total != 1 || s.Top[0].ID != "aapl" {
		t.Fatalf("ticker filter broken: %+v", s)
	}
	if s.Ticker != "AAPL" {
		t.Fatalf("summary ticker should be canonical, got %q", s.Ticker)
	}

	// empty ticker aggregates market-wide
	if s := Summarize(docs, Options{Now: anchor}); s.Total != 2 {
		t.Fatalf("market-wide total = %d", s.Total)
	}
}
