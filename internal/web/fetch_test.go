package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ragorch/internal/config"
)

func TestFetcher_FetchTextPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	f := NewFetcher(config.WebConfig{FetchTimeoutMS: 5000, FetchMaxBytes: 1 << 20})
	text, err := f.FetchText(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "hello world") {
		t.Fatalf("expected fenced plain text, got %q", text)
	}
}

func TestFetcher_FetchTextHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><title>Test</title></head><body><article><h1>Capybaras</h1><p>Large rodents native to South America, found in groups near water.</p></article></body></html>"))
	}))
	defer srv.Close()

	f := NewFetcher(config.WebConfig{FetchTimeoutMS: 5000, FetchMaxBytes: 1 << 20})
	text, err := f.FetchText(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Capybaras") {
		t.Fatalf("expected markdown body to contain article text, got %q", text)
	}
}

func TestFetcher_RejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	f := NewFetcher(config.WebConfig{FetchTimeoutMS: 5000, FetchMaxBytes: 10})
	if _, err := f.FetchText(context.Background(), srv.URL); err == nil {
		t.Fatal("expected oversized body to error")
	}
}
