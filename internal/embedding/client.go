// Package embedding implements the Embedder capability: turning text into
// float vectors for semantic memory storage/recall and summary selection.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"ragorch/internal/config"
	"ragorch/internal/orcerr"
)

// Embedder is the capability abstraction named in the spec: embed a batch
// of texts into float vectors. Concrete implementations are chosen at
// composition time; the rest of the pipeline only depends on this
// interface.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// HTTPEmbedder calls a configured embedding endpoint (OpenAI-compatible
// /embeddings shape). On the per-text path, blank inputs get a zero
// vector instead of a request; the batched request sends every input as
// given.
type HTTPEmbedder struct {
	cfg        config.EmbeddingConfig
	httpClient *http.Client
	// concurrency bounds simultaneous in-flight requests when the caller
	// submits inputs one at a time (some embedding backends don't accept
	// batched input); default 5.
	concurrency int
}

func NewHTTPEmbedder(cfg config.EmbeddingConfig) *HTTPEmbedder {
	return &HTTPEmbedder{cfg: cfg, httpClient: http.DefaultClient, concurrency: 5}
}

// Embed implements Embedder by issuing one batched request, falling back
// to per-text subrequests bounded by e.concurrency when
// cfg.SingleInputOnly is set or the batched request fails.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if !e.cfg.SingleInputOnly {
		out, err := e.call(ctx, texts)
		if err == nil {
			return out, nil
		}
		// fall through to per-text path on batch failure
	}

	results := make([][]float32, len(texts))
	sem := make(chan struct{}, max(1, e.concurrency))
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = zeroVector(e.cfg.Dimensions)
			continue
		}
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			out, err := e.call(ctx, []string{text})
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				results[i] = zeroVector(e.cfg.Dimensions)
				return
			}
			if len(out) > 0 {
				results[i] = out[0]
			} else {
				results[i] = zeroVector(e.cfg.Dimensions)
			}
		}(i, text)
	}
	wg.Wait()
	if firstErr != nil {
		return results, fmt.Errorf("embed: %w: %v", orcerr.Capability, firstErr)
	}
	return results, nil
}

func (e *HTTPEmbedder) call(ctx context.Context, inputs []string) ([][]float32, error) {
	reqBody, err := json.Marshal(embedReq{Model: e.cfg.Model, Input: inputs})
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(e.cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := e.cfg.BaseURL + e.cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	if e.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	} else if e.cfg.APIHeader != "" {
		req.Header.Set(e.cfg.APIHeader, e.cfg.APIKey)
	}
	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orcerr.Capability, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", orcerr.Capability, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: embeddings endpoint status %s: %s", orcerr.Capability, resp.Status, truncate(string(bodyBytes), 200))
	}

	var er embedResp
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("%w: parse embedding response: %v", orcerr.Capability, err)
	}
	if len(er.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: unexpected embedding count: got %d, want %d", orcerr.Capability, len(er.Data), len(inputs))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

// CheckReachability verifies that the embedding endpoint is reachable and
// responding correctly by sending a small test request.
func CheckReachability(ctx context.Context, e *HTTPEmbedder) error {
	if _, err := e.Embed(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}

func zeroVector(dim int) []float32 {
	if dim <= 0 {
		dim = 768
	}
	return make([]float32, dim)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
