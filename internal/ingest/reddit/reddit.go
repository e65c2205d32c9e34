// Package reddit fetches posts from the public reddit search listing and
// reshapes them into raw document rows.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// listing mirrors the reddit JSON listing envelope.
type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Permalink  string  `json:"permalink"`
	Subreddit  string  `json:"subreddit"`
	CreatedUTC float64 `json:"created_utc"`
	Stickied   bool    `json:"stickied"`
}

// Client searches a fixed set of subreddits.
type Client struct {
	endpoint   string
	userAgent  string
	subreddits []string
	http       *resty.Client
}

func New(endpoint, userAgent string, subreddits []string) *Client {
	http := resty.New()
	http.SetTimeout(30 * time.Second)
	http.SetHeader("User-Agent", userAgent)
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		userAgent:  userAgent,
		subreddits: subreddits,
		http:       http,
	}
}

func (c *Client) Name() string { return "reddit" }

// Fetch searches every configured subreddit for the query and keeps posts
// created at or after since. Stickied posts are skipped.
func (c *Client) Fetch(ctx context.Context, query string, since time.Time) ([]map[string]interface{}, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		q = "stocks"
	}

	var rows []map[string]interface{}
	for _, sub := range c.subreddits {
		posts, err := c.search(ctx, sub, q)
		if err != nil {
			return nil, fmt.Errorf("search r/%s: %w", sub, err)
		}
		for _, p := range posts {
			created := time.Unix(int64(p.CreatedUTC), 0).UTC()
			if p.Stickied || created.Before(since) {
				continue
			}
			row := map[string]interface{}{
				"source":     "reddit",
				"text":       strings.TrimSpace(p.Title + " " + p.Selftext),
				"created_at": created,
			}
			if p.Permalink != "" {
				row["permalink"] = c.endpoint + p.Permalink
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (c *Client) search(ctx context.Context, subreddit, query string) ([]post, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":           query,
			"restrict_sr": "1",
			"sort":        "new",
			"t":           "week",
			"limit":       strconv.Itoa(100),
		}).
		Get(fmt.Sprintf("%s/r/%s/search.json", c.endpoint, subreddit))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("reddit error: %s", resp.Status())
	}

	var l listing
	if err := json.Unmarshal(resp.Body(), &l); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	posts := make([]post, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}
