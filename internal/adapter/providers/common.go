// Package providers implements the six concrete market-data adapters
// (yfinance-style, local dataset, broker, Alpha Vantage, Tushare, AkShare
// commodity) that satisfy the adapter.Adapter interface.
//
// Grounded on original_source's adapters/*.py — each file below cites its
// specific Python source. HTTP adapters share a thin JSON-over-HTTP
// helper in the teacher's idiom (a single http.Client, bounded by the
// caller's context, no adapter-level retry — retry/circuit-breaking is
// the protection.Guard's job, not the adapter's).
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// httpClient is the shared transport every HTTP-backed adapter embeds.
// Kept deliberately thin: no retry, no circuit breaking — that is the
// protection.Guard's responsibility, not the adapter's.
type httpClient struct {
	base   string
	client *http.Client
}

func newHTTPClient(base string, timeout time.Duration) httpClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return httpClient{base: base, client: &http.Client{Timeout: timeout}}
}

func (h httpClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := h.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("providers: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("providers: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("providers: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("providers: 429 too many requests from %s", u)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("providers: unexpected status %d from %s: %s", resp.StatusCode, u, truncate(string(body), 200))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("providers: decode response from %s: %w", u, err)
	}
	return nil
}

func (h httpClient) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("providers: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("providers: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("providers: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("providers: read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("providers: 429 too many requests from %s", h.base+path)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("providers: unexpected status %d from %s: %s", resp.StatusCode, h.base+path, truncate(string(respBody), 200))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
