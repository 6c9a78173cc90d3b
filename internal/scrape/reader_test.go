package scrape

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestReaderStrategyFetch(t *testing.T) {
	var gotAuth, gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		gotURL = req["url"]
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{
				"url":     req["url"],
				"title":   "Example Article",
				"content": "# Example\n\nBody text.",
			},
		})
	}))
	defer srv.Close()

	strat, err := NewReaderStrategy(srv.URL, "secret", 5*time.Second)
	if err != nil {
		t.Fatalf("NewReaderStrategy: %v", err)
	}
	doc, err := strat.Fetch(context.Background(), "https://example.com/article")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotURL != "https://example.com/article" {
		t.Fatalf("posted url = %q", gotURL)
	}
	if doc.Title != "Example Article" {
		t.Fatalf("title = %q", doc.Title)
	}
	if !doc.IsMarkdown() || doc.Markdown != "# Example\n\nBody text." {
		t.Fatalf("markdown = %q", doc.Markdown)
	}
	if doc.Source != "example.com" {
		t.Fatalf("source = %q", doc.Source)
	}
}

func TestReaderStrategyFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream blocked", http.StatusBadGateway)
	}))
	defer srv.Close()

	strat, err := NewReaderStrategy(srv.URL, "", 5*time.Second)
	if err != nil {
		t.Fatalf("NewReaderStrategy: %v", err)
	}
	if _, err := strat.Fetch(context.Background(), "https://example.com/x"); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
