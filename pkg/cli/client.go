package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/platinummonkey/grant/pkg/audit"
)

// Client calls the grantd permission API
type Client struct {
	baseURL    string
	httpClient *http.Client
	actor      string
	email      string
	token      string
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithActor identifies the caller through the principal headers
func WithActor(id, email string) ClientOption {
	return func(c *Client) {
		c.actor = id
		c.email = email
	}
}

// WithToken sends a bearer token instead of principal headers
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithTokenSource authenticates every request with tokens from ts
func WithTokenSource(ts oauth2.TokenSource) ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{
			Timeout:   c.httpClient.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: c.httpClient.Transport},
		}
	}
}

// ClientCredentials returns a token source for the OAuth2 client credentials grant
func ClientCredentials(tokenURL, clientID, clientSecret string, scopes ...string) oauth2.TokenSource {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return cfg.TokenSource(context.Background())
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-success response from grantd
type APIError struct {
	Status      int
	Message     string
	InvalidKeys []string
}

func (e *APIError) Error() string {
	if len(e.InvalidKeys) > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Message, e.Status, strings.Join(e.InvalidKeys, ", "))
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// Permissions is the stored state of a principal, plus the resolved set when requested
type Permissions struct {
	Role        string          `json:"role"`
	Overrides   map[string]bool `json:"overrides"`
	Effective   map[string]bool `json:"effective,omitempty"`
	ActiveCount int             `json:"active_count,omitempty"`
}

// KeyCatalog lists the registry
type KeyCatalog struct {
	RegistryVersion int               `json:"registry_version"`
	Keys            []string          `json:"keys"`
	Categories      []json.RawMessage `json:"categories"`
}

// GetPermissions reads a principal's role and overrides
func (c *Client) GetPermissions(ctx context.Context, principalID string, resolved bool) (*Permissions, error) {
	path := "/principals/" + url.PathEscape(principalID) + "/permissions"
	if resolved {
		path += "?resolved=true"
	}
	var out Permissions
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePermissions replaces a principal's overrides and returns the changed keys
func (c *Client) UpdatePermissions(ctx context.Context, principalID string, overrides map[string]bool, reason string) ([]string, error) {
	body := map[string]interface{}{"overrides": overrides, "reason": reason}
	var out struct {
		ChangedKeys []string `json:"changed_keys"`
	}
	if err := c.do(ctx, http.MethodPut, "/principals/"+url.PathEscape(principalID)+"/permissions", body, &out); err != nil {
		return nil, err
	}
	return out.ChangedKeys, nil
}

// ResetPermissions restores a principal's role template
func (c *Client) ResetPermissions(ctx context.Context, principalID string) ([]string, error) {
	var out struct {
		ChangedKeys []string `json:"changed_keys"`
	}
	if err := c.do(ctx, http.MethodPost, "/principals/"+url.PathEscape(principalID)+"/permissions/reset", nil, &out); err != nil {
		return nil, err
	}
	return out.ChangedKeys, nil
}

// AuditLog reads a principal's change history, newest first
func (c *Client) AuditLog(ctx context.Context, principalID string, limit int) ([]audit.Entry, error) {
	path := "/principals/" + url.PathEscape(principalID) + "/permissions/audit"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Entries []audit.Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Keys reads the key registry
func (c *Client) Keys(ctx context.Context) (*KeyCatalog, error) {
	var out KeyCatalog
	if err := c.do(ctx, http.MethodGet, "/permissions/keys", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.actor != "" {
		req.Header.Set("X-Principal-ID", c.actor)
		if c.email != "" {
			req.Header.Set("X-Principal-Email", c.email)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call grantd: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope struct {
		Success     bool     `json:"success"`
		Error       string   `json:"error"`
		InvalidKeys []string `json:"invalid_keys"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return &APIError{Status: resp.StatusCode, Message: "unexpected response: " + strings.TrimSpace(string(data))}
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg, InvalidKeys: envelope.InvalidKeys}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
