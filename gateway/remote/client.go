// Package remote implements the gateway against the retrieval API server
// over HTTP JSON.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hqtran/keyseek/models"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateSession(ctx context.Context) (models.SessionInfo, error) {
	var out models.SessionInfo
	err := c.do(ctx, http.MethodPost, "/session", nil, nil, &out)
	return out, err
}

func (c *Client) ListSessions(ctx context.Context) ([]models.SessionInfo, error) {
	var out []models.SessionInfo
	err := c.do(ctx, http.MethodGet, "/sessions", nil, nil, &out)
	return out, err
}

func (c *Client) QueryText(ctx context.Context, sessionID string, req models.QueryRequest) (models.QueryResponse, error) {
	var out models.QueryResponse
	q := url.Values{"session": {sessionID}}
	err := c.do(ctx, http.MethodPost, "/query-text", q, req, &out)
	return out, err
}

func (c *Client) QueryImage(ctx context.Context, sessionID string, req models.QueryRequest) (models.QueryResponse, error) {
	var out models.QueryResponse
	q := url.Values{"session": {sessionID}}
	err := c.do(ctx, http.MethodPost, "/query-img", q, req, &out)
	return out, err
}

func (c *Client) History(ctx context.Context, sessionID string) (models.HistoryResponse, error) {
	var out models.HistoryResponse
	q := url.Values{"session": {sessionID}}
	err := c.do(ctx, http.MethodGet, "/history", q, nil, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) (models.HealthStatus, error) {
	var out models.HealthStatus
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out)
	return out, err
}

// do sends one JSON request and decodes the response into out. Every failure
// mode collapses into *models.APIError so callers see a single error shape.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &models.APIError{Detail: fmt.Sprintf("encode request: %v", err)}
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return &models.APIError{Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &models.APIError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.APIError{Detail: fmt.Sprintf("decode response: %v", err), StatusCode: resp.StatusCode}
	}
	return nil
}

// decodeError prefers the API's {"detail": ...} body, falling back to the
// raw response text.
func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(b, &payload) == nil && payload.Detail != "" {
		return &models.APIError{Detail: payload.Detail, StatusCode: resp.StatusCode}
	}
	detail := strings.TrimSpace(string(b))
	if detail == "" {
		detail = resp.Status
	}
	return &models.APIError{Detail: detail, StatusCode: resp.StatusCode}
}
