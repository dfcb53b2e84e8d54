package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mocify/mocify/pkg/admin"
	"github.com/mocify/mocify/pkg/engine"
	"github.com/mocify/mocify/pkg/seed"
)

// APIError represents an error response from the admin API.
type APIError struct {
	StatusCode   int
	ErrorCode    string
	Message      string
	Port         int
	CollectionID string
}

func (e *APIError) Error() string {
	return e.Message
}

// AdminClient talks to the admin API of a running `mocify serve`.
type AdminClient struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures an admin client.
type ClientOption func(*AdminClient)

// WithTimeout sets the HTTP timeout for the client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *AdminClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *AdminClient) {
		c.httpClient = hc
	}
}

// NewAdminClient creates a client for the admin API at baseURL.
func NewAdminClient(baseURL string, opts ...ClientOption) *AdminClient {
	c := &AdminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks if the server is running.
func (c *AdminClient) Health(ctx context.Context) (*admin.HealthResponse, error) {
	var out admin.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListServers returns every collection and whether its server is running.
func (c *AdminClient) ListServers(ctx context.Context) ([]engine.ServerStatus, error) {
	var out admin.ServersResponse
	if err := c.do(ctx, http.MethodGet, "/servers", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Servers, nil
}

// StartServer starts the server of a collection.
func (c *AdminClient) StartServer(ctx context.Context, collectionID string) (*engine.ServerStatus, error) {
	var out engine.ServerStatus
	req := admin.StartServerRequest{CollectionID: collectionID}
	if err := c.do(ctx, http.MethodPost, "/servers", req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopServer stops the server on port.
func (c *AdminClient) StopServer(ctx context.Context, port int) error {
	return c.do(ctx, http.MethodDelete, "/servers/"+strconv.Itoa(port), nil, http.StatusNoContent, nil)
}

// RequestQuery filters the request journal of a server.
type RequestQuery struct {
	Limit   int
	Method  string
	Path    string
	Matched *bool
}

// Requests returns the request journal of the server on port, newest first.
func (c *AdminClient) Requests(ctx context.Context, port int, q RequestQuery) (*admin.RequestsResponse, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Method != "" {
		params.Set("method", q.Method)
	}
	if q.Path != "" {
		params.Set("path", q.Path)
	}
	if q.Matched != nil {
		params.Set("matched", strconv.FormatBool(*q.Matched))
	}
	path := "/servers/" + strconv.Itoa(port) + "/requests"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var out admin.RequestsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReloadSeed asks the server to re-apply its seed files.
func (c *AdminClient) ReloadSeed(ctx context.Context) (*seed.Result, error) {
	var out seed.Result
	if err := c.do(ctx, http.MethodPost, "/seed/reload", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{
			ErrorCode: "connection_error",
			Message:   fmt.Sprintf("cannot connect to admin API at %s: %v", c.baseURL, err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		return parseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// parseError parses an error response from the API.
func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp admin.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return &APIError{
			StatusCode:   resp.StatusCode,
			ErrorCode:    errResp.Error,
			Message:      errResp.Message,
			Port:         errResp.Port,
			CollectionID: errResp.CollectionID,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		ErrorCode:  "unknown_error",
		Message:    fmt.Sprintf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}

// FormatError returns a user-facing message, with hints for the failures
// users can act on.
func FormatError(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "Error: " + err.Error()
	}
	switch apiErr.ErrorCode {
	case "connection_error":
		return fmt.Sprintf(`Error: %s

Suggestions:
  • Start the server: mocify serve
  • Check the admin URL (--admin-url or MOCIFY_ADMIN_URL)`, apiErr.Message)
	case "port_unavailable":
		return fmt.Sprintf(`Error: %s (port %d)

Suggestions:
  • Free the port, or change the collection's port`, apiErr.Message, apiErr.Port)
	case "collection_not_found":
		return fmt.Sprintf(`Error: collection not found: %s

Suggestions:
  • List collections with: mocify servers list`, apiErr.CollectionID)
	}
	return "Error: " + apiErr.Message
}
