// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package helpdesk is a client for the external helpdesk REST API: it
// finds and creates customers, lists mailboxes and their custom fields,
// and creates conversations. Calls are blocking with a fixed timeout and
// are never retried here.
package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/portal/internal/metrics"
)

const (
	// DefaultTimeout bounds every helpdesk call.
	DefaultTimeout = 30 * time.Second

	// DefaultAPIKeyHeader carries the static API key.
	DefaultAPIKeyHeader = "X-FreeScout-API-Key"

	maxResponseBytes = 4 << 20
)

var (
	// ErrUnavailable means the helpdesk could not be reached, timed out,
	// or answered with a server error. The submission may be retried.
	ErrUnavailable = errors.New("helpdesk unavailable")

	// ErrCreationAmbiguous means a conversation create call succeeded but
	// no conversation id could be found in the response. The ticket may
	// exist; it must be checked by hand and never resubmitted blindly.
	ErrCreationAmbiguous = errors.New("conversation created but response carries no id")
)

// APIError is a non-retryable 4xx answer from the helpdesk.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("helpdesk %s returned HTTP %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("helpdesk %s returned HTTP %d: %s", e.Endpoint, e.Status, e.Message)
}

// Config holds the client settings.
type Config struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration

	// HTTPClient overrides the default client, e.g. with an OAuth2
	// transport. Its timeout is set to Timeout when unset.
	HTTPClient *http.Client
}

// OAuthConfig describes an OAuth2 client-credentials grant used instead
// of a static API key.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// OAuthHTTPClient returns an HTTP client that attaches client-credentials
// tokens to every request.
func OAuthHTTPClient(ctx context.Context, cfg OAuthConfig) *http.Client {
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return creds.Client(ctx)
}

// Client talks to the helpdesk API.
type Client struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	httpClient   *http.Client
}

// NewClient creates a helpdesk client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var hc *http.Client
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		if clone.Timeout == 0 {
			clone.Timeout = timeout
		}
		hc = &clone
	} else {
		hc = &http.Client{Timeout: timeout}
	}

	header := cfg.APIKeyHeader
	if header == "" {
		header = DefaultAPIKeyHeader
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		apiKeyHeader: header,
		httpClient:   hc,
	}
}

// do performs a single call and returns the raw response body of a 2xx
// answer. Transport failures, 429 and 5xx map to ErrUnavailable; other
// 4xx answers to *APIError.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, in any) ([]byte, error) {
	m := metrics.Get()
	start := time.Now()
	defer func() {
		m.HelpdeskLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	target := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", endpoint, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		m.HelpdeskRequests.WithLabelValues(endpoint, "unavailable").Inc()
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		m.HelpdeskRequests.WithLabelValues(endpoint, "unavailable").Inc()
		return nil, fmt.Errorf("%w: read %s response: %v", ErrUnavailable, endpoint, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		m.HelpdeskRequests.WithLabelValues(endpoint, "unavailable").Inc()
		slog.Error("helpdesk server error",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"body", truncate(string(data), 512),
		)
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrUnavailable, endpoint, resp.StatusCode)
	case resp.StatusCode >= 400:
		m.HelpdeskRequests.WithLabelValues(endpoint, "rejected").Inc()
		return nil, &APIError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  errorMessage(data),
		}
	}

	m.HelpdeskRequests.WithLabelValues(endpoint, "ok").Inc()
	return data, nil
}

// errorMessage pulls the "message" field out of an error body.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return truncate(strings.TrimSpace(string(data)), 200)
	}
	return body.Message
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
