package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"

	"ragorch/internal/config"
	"ragorch/internal/observability"
)

// Fetcher fetches a single page's full body for WEB_SEARCH_MODE=full,
// extracting the main article with Readability and converting it to
// Markdown. text/* and JSON responses are returned as fenced text; any
// other content type is an error.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher builds a Fetcher with a hardened transport: bounded dial/TLS/
// idle timeouts and a capped redirect count, matching the rest of the
// module's outbound HTTP clients.
func NewFetcher(cfg config.WebConfig) *Fetcher {
	timeout := time.Duration(cfg.FetchTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxBytes := cfg.FetchMaxBytes
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}

	dialer := &net.Dialer{Timeout: 7 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   7 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	checkRedirect := func(_ *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}
	client := observability.NewHTTPClient(&http.Client{Transport: transport, CheckRedirect: checkRedirect, Timeout: timeout})
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// FetchText fetches rawURL and returns best-effort readable text: the
// main article converted to Markdown for HTML pages, fenced raw text for
// text/* and JSON bodies, and an error for any other content type.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", randomUA())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	ct, cs := parseContentType(resp.Header.Get("Content-Type"))

	limited := io.LimitReader(resp.Body, f.maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("response exceeds max bytes (%d)", f.maxBytes)
	}

	utf8Body, err := toUTF8(body, cs)
	if err != nil {
		return "", fmt.Errorf("charset decode: %w", err)
	}

	switch {
	case isHTML(ct):
		return htmlToMarkdown(utf8Body, finalURL)
	case strings.HasPrefix(ct, "text/"):
		return fenced(string(utf8Body), guessFenceLanguage(ct)), nil
	case ct == "application/json" || strings.HasSuffix(ct, "+json"):
		return fenced(string(utf8Body), "json"), nil
	default:
		return "", fmt.Errorf("non-text content type %q", ct)
	}
}

func htmlToMarkdown(body []byte, finalURL string) (string, error) {
	raw := string(body)
	articleHTML := raw
	title := ""

	if base, berr := url.Parse(finalURL); berr == nil {
		if art, rerr := readability.FromReader(strings.NewReader(raw), base); rerr == nil && strings.TrimSpace(art.Content) != "" {
			articleHTML = art.Content
			title = strings.TrimSpace(art.Title)
		}
	}

	md, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(baseOrigin(finalURL)))
	if err != nil {
		return "", fmt.Errorf("html to markdown: %w", err)
	}
	md = strings.TrimSpace(md)
	if title != "" && !hasLeadingH1(md) {
		md = "# " + title + "\n\n" + md
	}
	return md, nil
}

func parseContentType(h string) (ctype, cs string) {
	if h == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(h)
	if err != nil {
		return h, ""
	}
	return strings.ToLower(mt), strings.ToLower(params["charset"])
}

func isHTML(ct string) bool {
	return ct == "text/html" || ct == "application/xhtml+xml" || strings.HasSuffix(ct, "html")
}

func toUTF8(b []byte, charsetLabel string) ([]byte, error) {
	if charsetLabel == "" || strings.EqualFold(charsetLabel, "utf-8") || strings.EqualFold(charsetLabel, "utf8") {
		return b, nil
	}
	r, err := charset.NewReaderLabel(charsetLabel, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func baseOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func guessFenceLanguage(ct string) string {
	switch ct {
	case "text/markdown":
		return "md"
	case "text/csv":
		return "csv"
	case "text/xml", "application/xml":
		return "xml"
	default:
		return ""
	}
}

func fenced(s, lang string) string {
	s = strings.TrimRight(s, "\n")
	if lang != "" {
		return "```" + lang + "\n" + s + "\n```"
	}
	return "```\n" + s + "\n```"
}

func hasLeadingH1(md string) bool {
	return strings.HasPrefix(strings.TrimLeft(md, "\n"), "# ")
}
