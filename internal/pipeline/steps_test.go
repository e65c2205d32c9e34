package pipeline

import (
	"errors"
	"testing"

	"github.com/wizanyx/finsent/models"
)

func doc(t *testing.T, text string) models.Document {
	t.Helper()
	d, err := models.New(models.Document{Source: "test", Text: text})
	if err != nil {
		t.Fatalf("models.New: %v", err)
	}
	return d
}

func TestNormalizeWhitespace(t *testing.T) {
	step := NormalizeWhitespace()
	out, keep := step.Apply(doc(t, "  Apple  beats\n earnings  "))
	if !keep {
		t.Fatal("normalize must never drop")
	}
	if out.Text != "Apple beats earnings" {
		t.Fatalf("text = %q", out.Text)
	}

	out, keep = step.Apply(doc(t, " \t\n "))
	if !keep || out.Text != "" {
		t.Fatalf("whitespace-only should normalize to empty and survive, got %q keep=%v", out.Text, keep)
	}
}

func TestDropEmptyText(t *testing.T) {
	if _, err := DropEmptyText(0); err == nil {
		t.Fatal("min_len < 1 must fail at construction")
	}
	var cerr *ConfigurationError
	_, err := DropEmptyText(-3)
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	step, err := DropEmptyText(3)
	if err != nil {
		t.Fatalf("DropEmptyText: %v", err)
	}
	if _, keep := step.Apply(doc(t, "ab")); keep {
		t.Fatal("text shorter than min_len should drop")
	}
	if _, keep := step.Apply(doc(t, "  ab  ")); keep {
		t.Fatal("post-trim length is what counts")
	}
	if _, keep := step.Apply(doc(t, "abc")); !keep {
		t.Fatal("text at min_len should survive")
	}
}

func TestTruncateText(t *testing.T) {
	if _, err := TruncateText(0); err == nil {
		t.Fatal("max_len < 1 must fail at construction")
	}
	step, err := TruncateText(5)
	if err != nil {
		t.Fatalf("TruncateText: %v", err)
	}
	out, keep := step.Apply(doc(t, "abcdefgh"))
	if !keep || out.Text != "abcde" {
		t.Fatalf("truncate = %q keep=%v", out.Text, keep)
	}
	out, _ = step.Apply(doc(t, "abc"))
	if out.Text != "abc" {
		t.Fatalf("short text must pass unchanged, got %q", out.Text)
	}

	// character, not byte, semantics
	out, _ = step.Apply(doc(t, "日本語テスト超過"))
	if out.Text != "日本語テス" {
		t.Fatalf("rune truncation = %q", out.Text)
	}
}

func TestUppercaseTicker(t *testing.T) {
	step := UppercaseTicker()
	d := doc(t, "x")
	d.Ticker = "msft"
	out, keep := step.Apply(d)
	if !keep || out.Ticker != "MSFT" {
		t.Fatalf("ticker = %q keep=%v", out.Ticker, keep)
	}
	d.Ticker = ""
	out, _ = step.Apply(d)
	if out.Ticker != "" {
		t.Fatalf("absent ticker must stay absent, got %q", out.Ticker)
	}
}

func TestDeduplicateByText(t *testing.T) {
	step := DeduplicateByText()
	if _, keep := step.Apply(doc(t, "same text")); !keep {
		t.Fatal("first occurrence should survive")
	}
	if _, keep := step.Apply(doc(t, "same text")); keep {
		t.Fatal("second occurrence should drop")
	}
	if _, keep := step.Apply(doc(t, "other text")); !keep {
		t.Fatal("distinct text should survive")
	}
}

func TestDeduplicateFreshResetsState(t *testing.T) {
	proto, ok := DeduplicateByText().(Stateful)
	if !ok {
		t.Fatal("dedup step must be Stateful")
	}
	a := proto.Fresh()
	b := proto.Fresh()
	if _, keep := a.Apply(doc(t, "text")); !keep {
		t.Fatal("fresh run a: first occurrence should survive")
	}
	if _, keep := b.Apply(doc(t, "text")); !keep {
		t.Fatal("fresh run b must not share run a's history")
	}
}
