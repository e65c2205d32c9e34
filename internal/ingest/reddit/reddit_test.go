package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchFiltersAndReshapes(t *testing.T) {
	now := time.Now().UTC()
	fresh := now.Add(-time.Hour).Unix()
	stale := now.Add(-48 * time.Hour).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/stocks/search.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "NVDA" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("restrict_sr"); got != "1" {
			t.Errorf("restrict_sr = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data": {"children": [
			{"data": {"id": "a1", "title": "NVDA earnings thread", "selftext": "Record revenue again",
				"permalink": "/r/stocks/comments/a1/", "subreddit": "stocks", "created_utc": %d}},
			{"data": {"id": "a2", "title": "Old post", "selftext": "",
				"permalink": "/r/stocks/comments/a2/", "subreddit": "stocks", "created_utc": %d}},
			{"data": {"id": "a3", "title": "Daily discussion", "selftext": "",
				"permalink": "/r/stocks/comments/a3/", "subreddit": "stocks", "created_utc": %d, "stickied": true}}
		]}}`, fresh, stale, fresh)
	}))
	defer srv.Close()

	c := New(srv.URL, "finsent/1.0", []string{"stocks"})
	rows, err := c.Fetch(context.Background(), "NVDA", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want the one fresh non-stickied post", len(rows))
	}
	if rows[0]["text"] != "NVDA earnings thread Record revenue again" {
		t.Fatalf("text = %v", rows[0]["text"])
	}
	if rows[0]["permalink"] != srv.URL+"/r/stocks/comments/a1/" {
		t.Fatalf("permalink = %v", rows[0]["permalink"])
	}
	if rows[0]["source"] != "reddit" {
		t.Fatalf("source = %v", rows[0]["source"])
	}
}

func TestFetchPropagatesSubredditError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "finsent/1.0", []string{"stocks"})
	if _, err := c.Fetch(context.Background(), "NVDA", time.Now()); err == nil {
		t.Fatalf("expected an error on HTTP 403")
	}
}
