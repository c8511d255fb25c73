package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"genrelay/internal/domain"
)

const defaultRequestTimeout = 120 * time.Second

func defaultHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultRequestTimeout}
}

// doJSON posts a JSON payload and returns the raw response body. Non-2xx
// statuses become ProviderError with the upstream message decoded when the
// body carries a recognizable error envelope.
func doJSON(ctx context.Context, hc *http.Client, provider, method, url string, headers map[string]string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", provider, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", provider, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http request: %w", provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", provider, err)
	}
	if resp.StatusCode >= 300 {
		return nil, apiError(provider, resp.StatusCode, raw)
	}
	return raw, nil
}

// apiError extracts the upstream message from common error envelopes.
func apiError(provider string, status int, body []byte) error {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Errors  []string `json:"errors"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Error != nil && envelope.Error.Message != "":
			message = envelope.Error.Message
		case envelope.Message != "":
			message = envelope.Message
		case envelope.Detail != "":
			message = envelope.Detail
		case len(envelope.Errors) > 0:
			message = strings.Join(envelope.Errors, "; ")
		}
	}
	return domain.NewProviderError(provider, status, message)
}

// download fetches a result artifact by URL.
func download(ctx context.Context, hc *http.Client, provider, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build download: %w", provider, err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: download: %w", provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, apiError(provider, resp.StatusCode, raw)
	}
	return io.ReadAll(resp.Body)
}

// fanOut issues n independent generation calls concurrently and aggregates
// best-effort: failed individual generations are dropped and only survivors
// are returned, in index order. Only when every call fails does the last
// error surface. This mirrors the documented per-image batch policy.
func fanOut(ctx context.Context, n int, call func(ctx context.Context, index int) ([]byte, error)) ([][]byte, error) {
	results := make([][]byte, n)
	failures := make([]error, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			buf, err := call(ctx, i)
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = buf
			return nil
		})
	}
	_ = g.Wait()

	out := make([][]byte, 0, n)
	var lastErr error
	for i := 0; i < n; i++ {
		if failures[i] != nil {
			lastErr = failures[i]
			continue
		}
		out = append(out, results[i])
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}
