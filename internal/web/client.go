// Package web implements C12's external-search capability: a SearXNG-backed
// search client, an optional full-body page fetcher, and the web-context
// assembler the retrieval dispatcher calls into for its web leg.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"ragorch/internal/config"
	"ragorch/internal/observability"
	"ragorch/internal/orcerr"
	"ragorch/internal/ragtypes"
)

// tokenBucket is a simple rate limiter guarding outbound SearXNG requests.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   int
	tokens     int
	refillAt   time.Time
	refillRate time.Duration
}

func newTokenBucket(capacity int, refillRate time.Duration) *tokenBucket {
	return &tokenBucket{capacity: capacity, tokens: capacity, refillAt: time.Now(), refillRate: refillRate}
}

func (tb *tokenBucket) takeToken() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	if now.After(tb.refillAt) {
		elapsed := now.Sub(tb.refillAt)
		add := int(elapsed / tb.refillRate)
		if add > 0 {
			tb.tokens = min(tb.capacity, tb.tokens+add)
			tb.refillAt = tb.refillAt.Add(time.Duration(add) * tb.refillRate)
		}
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *tokenBucket) wait(ctx context.Context) error {
	for {
		if tb.takeToken() {
			return nil
		}
		tb.mu.Lock()
		waitTime := time.Until(tb.refillAt)
		tb.mu.Unlock()
		if waitTime <= 0 {
			waitTime = tb.refillRate
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

var uaList = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:102.0) Gecko/20100101 Firefox/102.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36 Edg/115.0.0.0",
}

func randomUA() string {
	return uaList[int(time.Now().UnixNano())%len(uaList)]
}

// SearchClient is C12's search capability: a SearXNG-backed client with
// rate limiting and a JSON-then-HTML fallback, and an optional full-body
// fetcher for WEB_SEARCH_MODE=full.
type SearchClient struct {
	http        *http.Client
	searxngURL  string
	rateLimiter *tokenBucket
	fetcher     *Fetcher
	mode        string // "snippet" | "full"
}

// NewSearchClient builds a SearchClient from configuration. The HTTP
// client is instrumented with the module's otelhttp transport, matching
// every other outbound capability client.
func NewSearchClient(cfg config.WebConfig) *SearchClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	refillRate := time.Duration(float64(time.Second) / rps)
	return &SearchClient{
		http:        observability.NewHTTPClient(&http.Client{Timeout: 15 * time.Second}),
		searxngURL:  strings.TrimSuffix(cfg.SearXNGURL, "/"),
		rateLimiter: newTokenBucket(burst, refillRate),
		fetcher:     NewFetcher(cfg),
		mode:        cfg.Mode,
	}
}

// Search runs one SearXNG query, rate-limited, returning up to max
// results. In "full" mode each result's Body is additionally populated by
// fetching the page and extracting readable text; a fetch failure for one
// result only drops that result's Body, it never fails the whole search.
func (c *SearchClient) Search(ctx context.Context, query string, max int) ([]ragtypes.WebResult, error) {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", orcerr.Capability, err)
	}

	results, err := c.searchJSON(ctx, query, max)
	if err != nil || len(results) == 0 {
		results, err = c.searchHTML(ctx, query, max)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: searxng search: %v", orcerr.Capability, err)
	}

	if c.mode == "full" {
		for i := range results {
			body, ferr := c.fetcher.FetchText(ctx, results[i].URL)
			if ferr == nil {
				results[i].Body = body
			}
		}
	}
	return results, nil
}

func (c *SearchClient) searchJSON(ctx context.Context, query string, max int) ([]ragtypes.WebResult, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "json")
	v.Set("categories", "general")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searxngURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", randomUA())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("searxng http %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]ragtypes.WebResult, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		if i >= max {
			break
		}
		out = append(out, ragtypes.WebResult{
			ID:        fmt.Sprintf("web-%d", i+1),
			Title:     strings.TrimSpace(r.Title),
			URL:       r.URL,
			Snippet:   strings.TrimSpace(r.Content),
			Rank:      i + 1,
			FetchedAt: time.Now(),
		})
	}
	return out, nil
}

// searchHTML falls back to scraping result links when the JSON API is
// disabled or unreachable. No snippet is available from this path.
func (c *SearchClient) searchHTML(ctx context.Context, query string, max int) ([]ragtypes.WebResult, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("categories", "general")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searxngURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", randomUA())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("searxng http %d", resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	urls := extractURLs(root)

	out := make([]ragtypes.WebResult, 0, len(urls))
	seen := map[string]struct{}{}
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		title := u
		if parsed, perr := url.Parse(u); perr == nil && parsed.Host != "" {
			title = parsed.Host + parsed.Path
		}
		out = append(out, ragtypes.WebResult{
			ID:        fmt.Sprintf("web-%d", len(out)+1),
			Title:     title,
			URL:       u,
			Rank:      len(out) + 1,
			FetchedAt: time.Now(),
		})
		if len(out) >= max {
			break
		}
	}
	return out, nil
}

func extractURLs(doc *html.Node) []string {
	var urls []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && strings.Contains(attr.Val, "http") {
					urls = append(urls, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return urls
}
