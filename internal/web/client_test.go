package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"context"

	"ragorch/internal/config"
)

func TestSearchClient_SearchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"title": "Capybara", "url": "https://example.com/capy", "content": "large rodent"},
			},
		})
	}))
	defer srv.Close()

	c := NewSearchClient(config.WebConfig{SearXNGURL: srv.URL, RequestsPerSecond: 100, BurstSize: 5, Mode: "snippet"})
	results, err := c.Search(context.Background(), "capybara", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Capybara" {
		t.Fatalf("unexpected results: %#v", results)
	}
	if results[0].Snippet != "large rodent" {
		t.Fatalf("expected snippet populated, got %q", results[0].Snippet)
	}
}

func TestSearchClient_FallsBackToHTMLWhenJSONEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "json" {
			_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]string{}})
			return
		}
		w.Write([]byte(`<html><body><a href="https://example.com/result">link</a></body></html>`))
	}))
	defer srv.Close()

	c := NewSearchClient(config.WebConfig{SearXNGURL: srv.URL, RequestsPerSecond: 100, BurstSize: 5})
	results, err := c.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].URL != "https://example.com/result" {
		t.Fatalf("unexpected HTML fallback results: %#v", results)
	}
}
