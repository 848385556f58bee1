package client

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

	"github.com/dmitrijs2005/nutritrack/internal/client/models"
)

const (
	maxErrorBody       = 4 << 10
	defaultDeployColor = "green"
)

// HTTPClient talks to the json-server style backend.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient validates baseURL. When hc is nil a client without timeout
// is used; deadlines then come from the caller's context.
func NewHTTPClient(baseURL string, hc *http.Client) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

func rejected(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &RejectedError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// Create posts body to the kind endpoint and returns the server id.
func (c *HTTPClient) Create(ctx context.Context, kind models.Kind, body []byte) (*CreateResponse, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}

	resp, err := c.do(ctx, http.MethodPost, kind.Endpoint(), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rejected(resp)
	}

	var out struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	id, err := normalizeID(out.ID)
	if err != nil {
		return nil, err
	}
	return &CreateResponse{ID: id, Status: resp.StatusCode}, nil
}

// normalizeID accepts string and numeric ids.
func normalizeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrMissingID
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if s == "" {
			return "", ErrMissingID
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: id %s", ErrMalformedResponse, raw)
	}
	return n.String(), nil
}

// Ping treats any answer below 500 as "reachable".
func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// DeployColor reads the backend deployment colour.
func (c *HTTPClient) DeployColor(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/deployColor", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return defaultDeployColor, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", rejected(resp)
	}

	var out struct {
		Color string `json:"color"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Color == "" {
		return defaultDeployColor, nil
	}
	return strings.ToLower(out.Color), nil
}
