package mediaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Backend API paths.
const (
	PathInitiate    = "/media/multipart/initiate"
	PathPartURL     = "/media/multipart/part-url"
	PathFinalise    = "/media/multipart/finalise"
	PathCurrentUser = "/users/me"
)

// DefaultTimeout bounds every metadata call.
const DefaultTimeout = 30 * time.Second

const (
	apiVersionHeader = "X-Fanvue-API-Version"
	mediaAuthHeader  = "X-Authorization"
	userAgent        = "fanvue-app-starter/0.1"
)

// Client calls the backend API. Redirects are never followed: a 3xx is
// returned to the caller as an UpstreamError.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend API client. apiVersion is sent as
// X-Fanvue-API-Version when non-empty.
func NewClient(baseURL, apiVersion string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	hc := &http.Client{Timeout: DefaultTimeout}
	if httpClient != nil {
		copied := *httpClient
		hc = &copied
	}
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
		httpClient: hc,
		logger:     logger,
	}
}

// Post sends body as JSON to a media endpoint and returns the raw response
// body of a 2xx reply.
func (c *Client) Post(ctx context.Context, token, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("mediaapi: marshaling request: %w", err)
	}

	return c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), func(h http.Header) {
		h.Set(mediaAuthHeader, "Bearer "+token)
	})
}

// CurrentUser returns the profile of the token's owner as raw JSON.
func (c *Client) CurrentUser(ctx context.Context, token string) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, PathCurrentUser, nil, func(h http.Header) {
		h.Set("Authorization", "Bearer "+token)
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("mediaapi: %s returned invalid JSON", PathCurrentUser)
	}
	return json.RawMessage(body), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, auth func(http.Header)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("mediaapi: creating request: %w", err)
	}

	auth(req.Header)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiVersion != "" {
		req.Header.Set(apiVersionHeader, c.apiVersion)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mediaapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	c.logger.Info("upstream response",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("location", location),
	)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mediaapi: reading %s response: %w", path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &UpstreamError{
			Status:   resp.StatusCode,
			Body:     string(data),
			Location: location,
			Err:      classifyStatus(resp.StatusCode),
		}
	}

	return data, nil
}
