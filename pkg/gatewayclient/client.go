// Package gatewayclient is a thin HTTP client for the inference gateway's
// admin and OpenAI-compatible surfaces, used by cmd/gatewayctl and by
// operators embedding gateway control in their own tooling.
package gatewayclient

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

const (
	DefaultBaseURL = "http://localhost:8080"
	DefaultTimeout = 30 * time.Second
	UserAgent      = "gatewayctl/1.0"
)

// Client talks to a running inference gateway over its admin HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	apiKey     string
}

// Config holds client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient creates a gateway client from Config, filling in defaults for
// any zero-valued fields.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		BaseURL:    baseURL,
		HTTPClient: httpClient,
		apiKey:     cfg.APIKey,
	}
}

// APIError is the gateway's structured error body.
type APIError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	RequestID  string `json:"-"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gatewayclient: %s (type: %s, status: %d, request_id: %s)", e.Message, e.Type, e.StatusCode, e.RequestID)
}

type errorEnvelope struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id"`
}

// Request issues an HTTP request against the gateway and decodes a JSON
// response into result, or returns an *APIError for non-2xx responses.
func (c *Client) Request(ctx context.Context, method, path string, body, result interface{}) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, &env); err == nil {
			apiErr.Message = env.Error.Message
			apiErr.Type = env.Error.Type
			apiErr.RequestID = env.RequestID
		} else {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// StatsResponse mirrors GET /admin/stats.
type StatsResponse struct {
	Resident []ResidentEntry `json:"resident"`
}

// ResidentEntry mirrors modelcache.StatsEntry's JSON shape.
type ResidentEntry struct {
	Name           string  `json:"name"`
	Kind           string  `json:"kind"`
	Device         string  `json:"device"`
	MemoryGB       float64 `json:"memory_gb"`
	LoadedAt       string  `json:"loaded_at"`
	LastAccess     string  `json:"last_access"`
	LoadDurationMs int64   `json:"load_duration_ms"`
	LastError      string  `json:"last_error,omitempty"`
}

// Stats fetches GET /admin/stats.
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var out StatsResponse
	if err := c.Request(ctx, http.MethodGet, "/admin/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UnloadResponse mirrors POST /admin/unload/{id}.
type UnloadResponse struct {
	Model       string `json:"model"`
	WasResident bool   `json:"was_resident"`
}

// Unload evicts a resident model by name.
func (c *Client) Unload(ctx context.Context, model string) (*UnloadResponse, error) {
	var out UnloadResponse
	if err := c.Request(ctx, http.MethodPost, "/admin/unload/"+url.PathEscape(model), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InvalidateCacheResponse mirrors POST /admin/invalidate-cache/{name}.
type InvalidateCacheResponse struct {
	Model               string `json:"model"`
	VersionCacheDropped bool   `json:"version_cache_dropped"`
	ModelUnloaded       bool   `json:"model_unloaded"`
}

// InvalidateCache drops the cached version resolution and, if resident,
// unloads the model.
func (c *Client) InvalidateCache(ctx context.Context, model string) (*InvalidateCacheResponse, error) {
	var out InvalidateCacheResponse
	if err := c.Request(ctx, http.MethodPost, "/admin/invalidate-cache/"+url.PathEscape(model), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearAllVersionCacheResponse mirrors POST /admin/clear-all-version-cache.
type ClearAllVersionCacheResponse struct {
	EntriesCleared int `json:"entries_cleared"`
}

// ClearAllVersionCache drops every cached version resolution.
func (c *Client) ClearAllVersionCache(ctx context.Context) (*ClearAllVersionCacheResponse, error) {
	var out ClearAllVersionCacheResponse
	if err := c.Request(ctx, http.MethodPost, "/admin/clear-all-version-cache", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VersionCacheStatsResponse mirrors GET /admin/version-cache-stats.
type VersionCacheStatsResponse struct {
	Entries    interface{} `json:"entries"`
	TTLSeconds float64     `json:"ttl_seconds"`
}

// VersionCacheStats fetches GET /admin/version-cache-stats.
func (c *Client) VersionCacheStats(ctx context.Context) (*VersionCacheStatsResponse, error) {
	var out VersionCacheStatsResponse
	if err := c.Request(ctx, http.MethodGet, "/admin/version-cache-stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PrewarmRequest mirrors the body of POST /admin/prewarm.
type PrewarmRequest struct {
	ModelIDs []string `json:"model_ids"`
	Parallel bool     `json:"parallel"`
}

// PrewarmResponse mirrors POST /admin/prewarm's response; Results maps
// model ID to "ok" or the load error string.
type PrewarmResponse struct {
	Results map[string]string `json:"results"`
}

// Prewarm asks the gateway to eagerly load a set of models.
func (c *Client) Prewarm(ctx context.Context, modelIDs []string, parallel bool) (*PrewarmResponse, error) {
	var out PrewarmResponse
	req := PrewarmRequest{ModelIDs: modelIDs, Parallel: parallel}
	if err := c.Request(ctx, http.MethodPost, "/admin/prewarm", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModelsResponse mirrors GET /v1/models.
type ModelsResponse struct {
	Object string          `json:"object"`
	Data   []ModelListItem `json:"data"`
}

// ModelListItem is one entry of ModelsResponse.Data.
type ModelListItem struct {
	ID     string `json:"id"`
	Object string `json:"object"`
}

// ListModels fetches GET /v1/models.
func (c *Client) ListModels(ctx context.Context) (*ModelsResponse, error) {
	var out ModelsResponse
	if err := c.Request(ctx, http.MethodGet, "/v1/models", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
