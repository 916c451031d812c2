package apec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Fixed headers mimicking the APEC web UI; the API rejects requests
// that do not look like the Angular frontend.
const (
	headerAccept         = "application/json, text/plain, */*"
	headerAcceptLanguage = "en-US,en;q=0.5"
	headerContentType    = "application/json"
	headerOrigin         = "https://www.apec.fr"
	headerReferer        = "https://www.apec.fr/candidat/recherche-emploi.html/emploi"
)

// ClientConfig captures everything the client needs up front. ProxyURL
// is the fully resolved proxy (credentials already injected); empty
// means direct connection.
type ClientConfig struct {
	BaseURL    string
	SearchPath string
	UserAgent  string
	Timeout    time.Duration
	ProxyURL   string
}

// Client issues JSON requests against the APEC web services with a
// fixed header set and bounded retries. It keeps no state across calls
// beyond the underlying connection pool.
type Client struct {
	httpClient *http.Client
	baseURL    string
	searchPath string
	userAgent  string
	policy     *RetryPolicy
	logger     *zap.Logger
}

// NewClient builds a Client from config. The retry policy decides which
// failures are worth another attempt and how long to wait in between.
func NewClient(cfg ClientConfig, policy *RetryPolicy, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if policy == nil {
		policy = NewRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	searchPath := cfg.SearchPath
	if searchPath == "" {
		searchPath = "/rechercheOffre"
	}

	transport := http.DefaultTransport
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:    cfg.BaseURL,
		searchPath: searchPath,
		userAgent:  cfg.UserAgent,
		policy:     policy,
		logger:     logger,
	}, nil
}

// WithTransport swaps the underlying transport (primarily for testing).
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.httpClient.Transport = rt
}

// Get issues a GET and returns the raw JSON body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params, nil)
}

// Post marshals body, issues a POST, and returns the raw JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, payload)
}

// Search posts one page request and decodes the search envelope.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	raw, err := c.Post(ctx, c.searchPath, req)
	if err != nil {
		return SearchResponse{}, err
	}
	var resp SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return SearchResponse{}, fmt.Errorf("decode search response: %w", err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload []byte) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		TotalRequests.Inc()
		body, err := c.doOnce(ctx, method, path, params, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !c.policy.ShouldRetry(err, attempt) {
			break
		}
		wait := c.policy.Backoff(attempt)
		c.logger.Warn("request failed; backing off",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))
		TotalRetries.Inc()
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}
	TotalRequestErrors.Inc()
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, params url.Values, payload []byte) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", headerAccept)
	req.Header.Set("Accept-Language", headerAcceptLanguage)
	req.Header.Set("Content-Type", headerContentType)
	req.Header.Set("Origin", headerOrigin)
	req.Header.Set("Referer", headerReferer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrAuthFailure)
	case resp.StatusCode == http.StatusTooManyRequests:
		TotalRateLimitHits.Inc()
		return nil, &StatusError{StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return json.RawMessage(body), nil
}

// sleepCtx blocks for d or until the context finishes.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
