// Package store persists classified documents in Postgres so dashboard
// queries can aggregate over history. The preprocessing/aggregation core
// itself stays memory-only; persistence lives here, in the glue layer.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/wizanyx/finsent/models"
)

// Store wraps the documents database.
type Store struct {
	DB *sql.DB
}

// NewWithDSN opens a Postgres connection and verifies it.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.DB.Close() }

// SaveDocuments upserts classified documents by id. Re-ingesting the same
// item refreshes its label and scores instead of duplicating it.
func (s *Store) SaveDocuments(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (id, source, ticker, created_at, text, permalink, label, scores)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET label=EXCLUDED.label, scores=EXCLUDED.scores, text=EXCLUDED.text`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		var scores interface{}
		if d.Scores != nil {
			raw, err := json.Marshal(d.Scores)
			if err != nil {
				return fmt.Errorf("marshal scores for %s: %w", d.ID, err)
			}
			scores = raw
		}
		if _, err := stmt.ExecContext(ctx,
			d.ID, d.Source, nullable(d.Ticker), d.CreatedAt, d.Text,
			nullable(d.Permalink), nullable(string(d.Label)), scores,
		); err != nil {
			return fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// ListDocuments returns documents created at or after since, newest first.
// A non-empty ticker restricts to that symbol; empty means market-wide.
// A limit of zero or less means no row cap: the window alone bounds the
// result, so aggregation never runs over a silently truncated subset.
func (s *Store) ListDocuments(ctx context.Context, ticker string, since time.Time, limit int) ([]models.Document, error) {
	query := `SELECT id, source, ticker, created_at, text, permalink, label, scores
		FROM documents WHERE created_at >= $1`
	args := []interface{}{since}
	if ticker != "" {
		query += ` AND ticker = $2`
		args = append(args, ticker)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDocument loads one document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (models.Document, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, source, ticker, created_at, text, permalink, label, scores
		FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanDocument decodes one documents row and re-validates it through
// models.New, so a row edited out of band cannot hand aggregation a label
// that disagrees with its scores.
func scanDocument(row rowScanner) (models.Document, error) {
	var (
		d                        models.Document
		tickerCol, permalink, label sql.NullString
		scores                   []byte
	)
	if err := row.Scan(&d.ID, &d.Source, &tickerCol, &d.CreatedAt, &d.Text, &permalink, &label, &scores); err != nil {
		if err == sql.ErrNoRows {
			return models.Document{}, err
		}
		return models.Document{}, fmt.Errorf("scan document: %w", err)
	}
	d.Ticker = tickerCol.String
	d.Permalink = permalink.String
	d.Label = models.Label(label.String)
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &d.Scores); err != nil {
			return models.Document{}, fmt.Errorf("decode scores for %s: %w", d.ID, err)
		}
	}
	doc, err := models.New(d)
	if err != nil {
		return models.Document{}, fmt.Errorf("stored document %s: %w", d.ID, err)
	}
	return doc, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
