// Package teams connects the bot to Microsoft Teams through the Bot
// Framework connector API.
package teams

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

	"golang.org/x/oauth2/clientcredentials"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

// Error codes returned by the connector API that classify a failed
// member lookup.
const (
	codeNotInRoster        = "BotNotInConversationRoster"
	codeConversationAbsent = "ConversationNotFound"
	codeMemberAbsent       = "MemberNotFoundInConversation"
)

const botFrameworkScope = "https://api.botframework.com/.default"

// DefaultServiceHosts are the connector API hosts an activity's service URL
// may name. Subdomains match; the scheme must be https.
var DefaultServiceHosts = []string{
	"botframework.com",
	"botframework.azure.us",
	"smba.trafficmanager.net",
}

// ErrUntrustedServiceURL is returned for an activity whose service URL is
// not a known connector API host.
var ErrUntrustedServiceURL = errors.New("teams: untrusted service url")

// Client calls the connector API at each activity's service URL.
// It implements bot.Host.
type Client struct {
	http   *http.Client
	logger *slog.Logger
	extra  []string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for connector calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithServiceHosts trusts additional service URL hosts over http or https,
// such as the local emulator.
func WithServiceHosts(hosts ...string) Option {
	return func(cl *Client) {
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				cl.extra = append(cl.extra, h)
			}
		}
	}
}

// NewClient creates a connector client. Without credentials or an HTTP
// client it sends unauthenticated requests.
func NewClient(opts ...Option) *Client {
	c := &Client{}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// CredentialsClient returns an HTTP client that authenticates as the bot
// app using the client credentials grant. tenant defaults to
// botframework.com.
func CredentialsClient(ctx context.Context, appID, password, tenant string) *http.Client {
	if tenant == "" {
		tenant = "botframework.com"
	}
	cfg := clientcredentials.Config{
		ClientID:     appID,
		ClientSecret: password,
		TokenURL:     "https://login.microsoftonline.com/" + url.PathEscape(tenant) + "/oauth2/v2.0/token",
		Scopes:       []string{botFrameworkScope},
	}
	return cfg.Client(ctx)
}

// APIError is a non-2xx connector API response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("teams: HTTP %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("teams: HTTP %d", e.Status)
}

// Classify maps a lookup failure to its outcome class.
func Classify(err *APIError) protocol.LookupStatus {
	switch {
	case err.Code == codeNotInRoster || err.Status == http.StatusForbidden:
		return protocol.LookupNotInstalled
	case err.Code == codeConversationAbsent || err.Code == codeMemberAbsent:
		return protocol.LookupUnready
	default:
		return protocol.LookupFailed
	}
}

type teamsMember struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	AADObjectID       string `json:"aadObjectId"`
	Email             string `json:"email"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// LookupMember fetches the sender of act from the conversation roster.
func (c *Client) LookupMember(ctx context.Context, act *protocol.Activity) protocol.MemberLookup {
	endpoint, err := c.endpoint(act, "members", url.PathEscape(act.From.ID))
	if err != nil {
		return protocol.MemberLookup{Status: protocol.LookupFailed, Err: err}
	}

	var m teamsMember
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &m); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			status := Classify(apiErr)
			c.logger.DebugContext(ctx, "member lookup rejected", "status", status.String(), "code", apiErr.Code)
			return protocol.MemberLookup{Status: status, Err: err}
		}
		return protocol.MemberLookup{Status: protocol.LookupFailed, Err: err}
	}

	return protocol.MemberLookup{
		Status: protocol.LookupOK,
		Member: protocol.Member{
			ID:                m.ID,
			Name:              m.Name,
			Email:             m.Email,
			UserPrincipalName: m.UserPrincipalName,
		},
	}
}

type outboundActivity struct {
	Type         string                `json:"type"`
	From         protocol.Account      `json:"from"`
	Recipient    protocol.Account      `json:"recipient"`
	Conversation protocol.Conversation `json:"conversation"`
	ReplyToID    string                `json:"replyToId,omitempty"`
	Text         string                `json:"text,omitempty"`
	TextFormat   string                `json:"textFormat,omitempty"`
	Attachments  []protocol.Attachment `json:"attachments,omitempty"`
}

// Send posts reply into the conversation of act, threaded under it when
// act has an id.
func (c *Client) Send(ctx context.Context, act *protocol.Activity, reply protocol.Reply) error {
	segments := []string{"activities"}
	if act.ID != "" {
		segments = append(segments, url.PathEscape(act.ID))
	}
	endpoint, err := c.endpoint(act, segments...)
	if err != nil {
		return err
	}

	out := outboundActivity{
		Type:         protocol.ActivityMessage,
		From:         act.Recipient,
		Recipient:    act.From,
		Conversation: act.Conversation,
		ReplyToID:    act.ID,
		Text:         reply.Text,
		Attachments:  reply.Attachments,
	}
	if reply.Text != "" {
		out.TextFormat = "markdown"
	}
	return c.do(ctx, http.MethodPost, endpoint, out, nil)
}

// CheckServiceURL returns an error unless raw names a trusted connector API host.
func (c *Client) CheckServiceURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("teams: activity has no service url")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrUntrustedServiceURL, raw)
	}
	host := strings.ToLower(u.Hostname())
	if u.Scheme == "http" || u.Scheme == "https" {
		for _, h := range c.extra {
			if hostMatches(host, h) {
				return nil
			}
		}
	}
	if u.Scheme == "https" {
		for _, h := range DefaultServiceHosts {
			if hostMatches(host, h) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %q", ErrUntrustedServiceURL, raw)
}

func hostMatches(host, allowed string) bool {
	return host == allowed || strings.HasSuffix(host, "."+allowed)
}

func (c *Client) endpoint(act *protocol.Activity, segments ...string) (string, error) {
	if err := c.CheckServiceURL(act.ServiceURL); err != nil {
		return "", err
	}
	if act.Conversation.ID == "" {
		return "", fmt.Errorf("teams: activity has no conversation")
	}
	base := strings.TrimSuffix(act.ServiceURL, "/")
	path := "/v3/conversations/" + url.PathEscape(act.Conversation.ID) + "/" + strings.Join(segments, "/")
	return base + path, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("teams: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("teams: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("teams: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("teams: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("teams: decode response: %w", err)
		}
	}
	return nil
}
