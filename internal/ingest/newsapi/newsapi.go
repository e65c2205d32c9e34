// Package newsapi fetches financial headlines from a NewsAPI-compatible
// endpoint and reshapes them into raw document rows.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	readability "github.com/go-shiori/go-readability"
)

// Article is one NewsAPI result item.
type Article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

type response struct {
	Status       string    `json:"status"`
	TotalResults int       `json:"totalResults"`
	Articles     []Article `json:"articles"`
}

// Client queries the everything endpoint.
type Client struct {
	apiKey        string
	endpoint      string
	fetchFullText bool
	http          *resty.Client
	logger        *log.Logger
}

func New(apiKey, endpoint string, fetchFullText bool) *Client {
	http := resty.New()
	http.SetTimeout(30 * time.Second)
	return &Client{
		apiKey:        apiKey,
		endpoint:      endpoint,
		fetchFullText: fetchFullText,
		http:          http,
		logger:        log.New(log.Writer(), "[NEWSAPI] ", log.LstdFlags),
	}
}

func (c *Client) Name() string { return "news" }

// Fetch pulls articles matching the query published at or after since. An
// empty query falls back to broad market terms.
func (c *Client) Fetch(ctx context.Context, query string, since time.Time) ([]map[string]interface{}, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		q = "stocks OR earnings OR markets"
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":        q,
			"from":     since.UTC().Format("2006-01-02"),
			"language": "en",
			"sortBy":   "publishedAt",
			"apiKey":   c.apiKey,
		}).
		Get(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch news: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("newsapi error: %s", resp.Status())
	}

	var result response
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}

	rows := make([]map[string]interface{}, 0, len(result.Articles))
	for _, a := range result.Articles {
		row := map[string]interface{}{
			"source":     "news",
			"text":       c.articleText(a),
			"created_at": a.PublishedAt,
		}
		if a.URL != "" {
			row["permalink"] = a.URL
		}
		if isTickerQuery(query) {
			row["ticker"] = query
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// articleText prefers the extracted full article body when enabled, falling
// back to headline plus description.
func (c *Client) articleText(a Article) string {
	if c.fetchFullText && a.URL != "" {
		article, err := readability.FromURL(a.URL, 15*time.Second)
		if err != nil {
			c.logger.Printf("readability extract failed for %s: %v", a.URL, err)
		} else if article.TextContent != "" {
			return article.TextContent
		}
	}
	return strings.TrimSpace(a.Title + " " + a.Description)
}

// isTickerQuery reports whether the query looks like a single stock symbol,
// in which case fetched rows are tagged with it.
func isTickerQuery(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" || len(q) > 6 || strings.ContainsAny(q, " \t") {
		return false
	}
	for _, r := range q {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
