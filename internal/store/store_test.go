package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/wizanyx/finsent/models"
)

func TestSaveDocuments(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	doc, err := models.New(models.Document{
		ID: "doc-1", Source: "news", Ticker: "AAPL", CreatedAt: created,
		Text: "Apple beats earnings", Permalink: "https://example.com/a",
		Label: models.LabelPositive,
		Scores: models.Scores{models.LabelPositive: 0.8, models.LabelNeutral: 0.1, models.LabelNegative: 0.1},
	})
	if err != nil {
		t.Fatalf("models.New: %v", err)
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO documents`)
	prep.ExpectExec().
		WithArgs("doc-1", "news", "AAPL", created, "Apple beats earnings",
			"https://example.com/a", "positive", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := st.SaveDocuments(context.Background(), []models.Document{doc}); err != nil {
		t.Fatalf("SaveDocuments: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveDocumentsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}
	if err := st.SaveDocuments(context.Background(), nil); err != nil {
		t.Fatalf("empty save should be a no-op: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListDocumentsByTicker(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "source", "ticker", "created_at", "text", "permalink", "label", "scores"}).
		AddRow("doc-1", "news", "AAPL", since.Add(2*time.Hour), "Apple beats earnings", nil,
			"positive", []byte(`{"positive":0.8,"neutral":0.1,"negative":0.1}`)).
		AddRow("doc-2", "reddit", "AAPL", since.Add(time.Hour), "AAPL thread", "https://reddit.com/x", nil, nil)

	mock.ExpectQuery(`SELECT id, source, ticker, created_at, text, permalink, label, scores`).
		WithArgs(since, "AAPL", 100).
		WillReturnRows(rows)

	docs, err := st.ListDocuments(context.Background(), "AAPL", since, 100)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents", len(docs))
	}
	if docs[0].Label != models.LabelPositive || docs[0].Scores[models.LabelPositive] != 0.8 {
		t.Fatalf("first doc = %+v", docs[0])
	}
	if docs[1].Classified() {
		t.Fatalf("null label should stay unclassified: %+v", docs[1])
	}
	if docs[1].Permalink != "https://reddit.com/x" {
		t.Fatalf("permalink = %q", docs[1].Permalink)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListDocumentsNoLimitReturnsFullWindow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "source", "ticker", "created_at", "text", "permalink", "label", "scores"})
	for i := 0; i < 1500; i++ {
		rows.AddRow(fmt.Sprintf("doc-%d", i), "news", "AAPL",
			since.Add(time.Duration(i)*time.Minute), "Apple headline", nil, nil, nil)
	}
	// Only the window start and ticker bind: limit<=0 must not inject a
	// row cap into the query.
	mock.ExpectQuery(`SELECT id, source, ticker, created_at, text, permalink, label, scores`).
		WithArgs(since, "AAPL").
		WillReturnRows(rows)

	docs, err := st.ListDocuments(context.Background(), "AAPL", since, 0)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1500 {
		t.Fatalf("got %d documents, want all 1500 in the window", len(docs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListDocumentsRejectsInconsistentRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, source, ticker, created_at, text, permalink, label, scores`).
		WithArgs(since, "AAPL").
		WillReturnRows(sqlmock.NewRows([]string{"id", "source", "ticker", "created_at", "text", "permalink", "label", "scores"}).
			AddRow("doc-1", "news", "AAPL", since.Add(time.Hour), "Apple beats earnings", nil,
				"negative", []byte(`{"positive":0.9,"neutral":0.05,"negative":0.05}`)))

	if _, err := st.ListDocuments(context.Background(), "AAPL", since, 0); err == nil {
		t.Fatal("a row whose label disagrees with its scores should not reach aggregation")
	}
}

func TestGetDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Store{DB: db}

	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, source, ticker, created_at, text, permalink, label, scores`).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "source", "ticker", "created_at", "text", "permalink", "label", "scores"}).
			AddRow("doc-1", "upload", nil, created, "plain text", nil, nil, nil))

	doc, err := st.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.ID != "doc-1" || doc.Ticker != "" || doc.Classified() {
		t.Fatalf("doc = %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
