// Package connect performs authenticated calls against the App Store
// Connect API and normalizes its inconsistent error shapes.
package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pulseboard/platform/pkg/gateway/httpclient"
)

// TokenProvider supplies a bearer token for each request. A static
// provider is used within one sync invocation; a signer-backed provider
// can re-mint when an operation outlives the token window.
type TokenProvider func() (string, error)

// StaticToken wraps an already minted token.
func StaticToken(token string) TokenProvider {
	return func() (string, error) { return token, nil }
}

// UpstreamError is the normalized form of any non-2xx response. Code and
// Detail come from the API's JSON error envelope when present; otherwise
// Detail carries a bounded snippet of the raw body.
type UpstreamError struct {
	Status int
	Code   string
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream error %d (%s): %s", e.Status, e.Code, e.Detail)
	}
	return fmt.Sprintf("upstream error %d: %s", e.Status, e.Detail)
}

// IsNotFound reports whether err means the requested resource does not
// exist upstream, which the sync layer treats as absence rather than
// failure.
func IsNotFound(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	return ue.Status == http.StatusNotFound || ue.Code == "NOT_FOUND"
}

type Client struct {
	baseURL string
	http    *http.Client
	token   TokenProvider
}

func NewClient(baseURL string, httpClient *http.Client, token TokenProvider) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		token:   token,
	}
}

// GetJSON performs an authenticated GET against an API path and decodes
// the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	body, err := c.do(ctx, http.MethodGet, path, query, nil, "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// PostJSON performs an authenticated POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", path, err)
	}
	body, err := c.do(ctx, http.MethodPost, path, nil, encoded, "application/json")
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// GetReport fetches a report endpoint accepting the gzip media type and
// returns the raw (possibly compressed) bytes.
func (c *Client) GetReport(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, nil, "application/a-gzip")
}

// GetURL fetches a pre-signed download URL. These URLs embed their own
// authorization, so no bearer token is attached. Transient failures are
// retried since segment hosts throttle aggressively.
func (c *Client) GetURL(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := httpclient.Retry(ctx, segmentAttempts, 250*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return httpclient.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("fetch segment url: %w", err)
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read segment body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			upstreamErr := newUpstreamError(resp.StatusCode, body)
			if httpclient.IsRetriableStatus(resp.StatusCode) {
				return upstreamErr
			}
			return httpclient.Permanent(upstreamErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

const segmentAttempts = 3

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte, accept string) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}

	bearer, err := c.token()
	if err != nil {
		return nil, fmt.Errorf("obtain bearer token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newUpstreamError(resp.StatusCode, body)
	}
	return body, nil
}

const maxErrorSnippet = 200

func newUpstreamError(status int, body []byte) *UpstreamError {
	var envelope struct {
		Errors []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
			Title  string `json:"title"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		detail := envelope.Errors[0].Detail
		if detail == "" {
			detail = envelope.Errors[0].Title
		}
		return &UpstreamError{Status: status, Code: envelope.Errors[0].Code, Detail: detail}
	}

	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorSnippet {
		snippet = snippet[:maxErrorSnippet]
	}
	return &UpstreamError{Status: status, Detail: snippet}
}
