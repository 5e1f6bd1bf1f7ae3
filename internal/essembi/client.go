// Package essembi is the outbound client for the Essembi integration API.
package essembi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

const (
	DefaultBaseURL = "https://api.essembi.ai"
	DefaultPath    = "Integrations/MSTeams"

	maxResponseSize = 1 << 20
)

var (
	// ErrAccountNotFound means the email has no Essembi account.
	ErrAccountNotFound = errors.New("essembi: account not found")
	// ErrUnexpectedResponse means a 200 response body could not be used.
	ErrUnexpectedResponse = errors.New("essembi: unexpected response")
)

// StatusError is a non-200 response. Message is the backend-supplied
// explanation, when the error body carried one.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("essembi: %s: HTTP %d: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("essembi: %s: HTTP %d", e.Op, e.Code)
}

// Client calls the integration endpoints. Each call is a single attempt;
// the only deadline is the caller's context.
type Client struct {
	baseURL string
	path    string
	key     string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the service base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithPath overrides the integration path prefix.
func WithPath(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.path = strings.Trim(p, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client authenticating with the shared integration key.
func NewClient(key string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		path:    DefaultPath,
		key:     key,
		http:    &http.Client{},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type authenticateRequest struct {
	Email string `json:"email"`
}

type searchRequest struct {
	Email string `json:"email"`
	Query string `json:"query"`
}

// Authenticate resolves an email to the environments the user can file into.
func (c *Client) Authenticate(ctx context.Context, email string) (*protocol.IdentityResolution, error) {
	code, body, err := c.post(ctx, "Authenticate", authenticateRequest{Email: email})
	if err != nil {
		return nil, err
	}
	switch code {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrAccountNotFound
	default:
		return nil, &StatusError{Op: "authenticate", Code: code}
	}

	var res *protocol.IdentityResolution
	if err := json.Unmarshal(body, &res); err != nil || res == nil {
		return nil, fmt.Errorf("%w: authenticate: %v", ErrUnexpectedResponse, err)
	}
	return res, nil
}

// Create files a ticket.
func (c *Client) Create(ctx context.Context, sub *protocol.TicketSubmission) (*protocol.TicketResult, error) {
	code, body, err := c.post(ctx, "Create", sub)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, &StatusError{Op: "create", Code: code, Message: errorMessage(body)}
	}

	var res *protocol.TicketResult
	if err := json.Unmarshal(body, &res); err != nil || res == nil {
		return nil, fmt.Errorf("%w: create: %v", ErrUnexpectedResponse, err)
	}
	return res, nil
}

// Search finds tickets visible to the user. An empty slice means no matches.
func (c *Client) Search(ctx context.Context, email, query string) ([]protocol.SearchResult, error) {
	code, body, err := c.post(ctx, "Search", searchRequest{Email: email, Query: query})
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, &StatusError{Op: "search", Code: code}
	}

	var res *protocol.SearchResults
	if err := json.Unmarshal(body, &res); err != nil || res == nil {
		return nil, fmt.Errorf("%w: search: %v", ErrUnexpectedResponse, err)
	}
	return res.Results, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("essembi: %s: encode: %w", endpoint, err)
	}

	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.path, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("essembi: %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.key)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("essembi: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("essembi: %s: read response: %w", endpoint, err)
	}

	c.logger.Debug("essembi call",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp.StatusCode, body, nil
}

// errorMessage extracts {"message": "..."} from an error body, if present.
func errorMessage(body []byte) string {
	var mr protocol.MessageResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return ""
	}
	return strings.TrimSpace(mr.Message)
}
