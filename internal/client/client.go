// Package client is a Go API client for the Trackify server.  Its main job
// beyond plain HTTP is transparent session maintenance: when a request comes
// back 401 the client refreshes the token pair and replays the request once.
// Concurrent 401s share a single refresh call, so a burst of expired requests
// costs one rotation instead of N racing ones (the server would reject all
// but the first anyway, logging everyone else out).
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
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNotAuthenticated is returned when a request needs credentials and the
// client holds none.
var ErrNotAuthenticated = errors.New("client: not authenticated")

// TokenPair is the client-side view of a session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// Client talks to the Trackify HTTP API.  Safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client

	mu     sync.RWMutex
	tokens TokenPair

	refreshGroup singleflight.Group
}

// New builds a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: u, http: hc}, nil
}

// Tokens returns a copy of the current token pair.
func (c *Client) Tokens() TokenPair {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// SetTokens installs a token pair, e.g. one restored from disk.
func (c *Client) SetTokens(t TokenPair) {
	c.mu.Lock()
	c.tokens = t
	c.mu.Unlock()
}

func (c *Client) clearTokens() {
	c.mu.Lock()
	c.tokens = TokenPair{}
	c.mu.Unlock()
}

// reqOptions control per-request behavior.
type reqOptions struct {
	skipAuth    bool
	skipRefresh bool
}

// Option customizes a single request.
type Option func(*reqOptions)

// WithoutAuth sends the request without an Authorization header.
func WithoutAuth() Option { return func(o *reqOptions) { o.skipAuth = true } }

// WithoutRefresh disables the automatic refresh-and-retry on 401.  Used by
// the auth calls themselves, where a 401 is a real answer.
func WithoutRefresh() Option { return func(o *reqOptions) { o.skipRefresh = true } }

// envelope mirrors the server's JSON response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// APIError is a non-2xx response decoded from the envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// do executes one API call, decoding a successful envelope into out (which
// may be nil).  On 401 it refreshes the session and retries exactly once;
// if the refresh fails the original 401 is returned and the stored tokens
// are cleared, since they are evidently dead.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, opts ...Option) error {
	var o reqOptions
	for _, opt := range opts {
		opt(&o)
	}

	resp, raw, err := c.once(ctx, method, path, body, o)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !o.skipRefresh && !o.skipAuth {
		if rerr := c.refreshSession(ctx); rerr != nil {
			c.clearTokens()
			return decodeError(resp.StatusCode, raw)
		}
		resp, raw, err = c.once(ctx, method, path, body, o)
		if err != nil {
			return err
		}
		// A second 401 means the new token was rejected too; give up.
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("client: decode data: %w", err)
	}
	return nil
}

// once performs a single HTTP round trip and reads the full body.
func (c *Client) once(ctx context.Context, method, path string, body interface{}, o reqOptions) (*http.Response, []byte, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("client: encode body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	u := *c.base
	p, query := path, ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		p, query = path[:i], path[i+1:]
	}
	u.Path = strings.TrimRight(u.Path, "/") + p
	u.RawQuery = query

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, nil, fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !o.skipAuth {
		if tok := c.Tokens().AccessToken; tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("client: read response: %w", err)
	}
	return resp, raw, nil
}

// refreshSession rotates the token pair.  All concurrent callers are
// coalesced onto one in-flight refresh; they all see its outcome.  The
// refresh token is single-use server-side, so letting two refreshes race
// would guarantee one of them kills the session.
func (c *Client) refreshSession(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		refresh := c.Tokens().RefreshToken
		if refresh == "" {
			return nil, ErrNotAuthenticated
		}
		var data authData
		err := c.do(ctx, http.MethodPost, "/v1/auth/refresh",
			map[string]string{"refresh_token": refresh},
			&data, WithoutAuth(), WithoutRefresh())
		if err != nil {
			return nil, err
		}
		c.SetTokens(data.pair())
		return nil, nil
	})
	return err
}

func decodeError(status int, raw []byte) error {
	var env envelope
	msg := http.StatusText(status)
	if json.Unmarshal(raw, &env) == nil && env.Error != "" {
		msg = env.Error
	}
	return &APIError{Status: status, Message: msg}
}

// ----- typed API surface -----

// User mirrors the server's user payload.
type User struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Issue mirrors the server's issue payload.
type Issue struct {
	ID          uint64    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type tokenData struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authData struct {
	User    User      `json:"user"`
	Access  tokenData `json:"access"`
	Refresh tokenData `json:"refresh"`
}

func (d authData) pair() TokenPair {
	return TokenPair{
		AccessToken:  d.Access.Token,
		RefreshToken: d.Refresh.Token,
		AccessExp:    d.Access.Expires,
		RefreshExp:   d.Refresh.Expires,
	}
}

// Register creates an account and stores the returned session.
func (c *Client) Register(ctx context.Context, email, password, name string) (User, error) {
	var data authData
	err := c.do(ctx, http.MethodPost, "/v1/auth/register",
		map[string]string{"email": email, "password": password, "name": name},
		&data, WithoutAuth(), WithoutRefresh())
	if err != nil {
		return User{}, err
	}
	c.SetTokens(data.pair())
	return data.User, nil
}

// Login authenticates and stores the returned session.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var data authData
	err := c.do(ctx, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": email, "password": password},
		&data, WithoutAuth(), WithoutRefresh())
	if err != nil {
		return User{}, err
	}
	c.SetTokens(data.pair())
	return data.User, nil
}

// Logout revokes the stored refresh token and drops the session locally.
func (c *Client) Logout(ctx context.Context) error {
	refresh := c.Tokens().RefreshToken
	err := c.do(ctx, http.MethodPost, "/v1/auth/logout",
		map[string]string{"refresh_token": refresh}, nil, WithoutRefresh())
	c.clearTokens()
	return err
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var data struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/auth/me", nil, &data)
	return data.User, err
}

// IssueFilters narrows ListIssues.  Zero values mean "any".
type IssueFilters struct {
	Type     string
	Status   string
	Priority string
}

// ListIssues returns the user's issues, optionally filtered.
func (c *Client) ListIssues(ctx context.Context, f IssueFilters) ([]Issue, error) {
	q := url.Values{}
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Priority != "" {
		q.Set("priority", f.Priority)
	}
	path := "/v1/issues"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var data struct {
		Issues []Issue `json:"issues"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &data)
	return data.Issues, err
}

// CreateIssue files a new issue.
func (c *Client) CreateIssue(ctx context.Context, issueType, title, description, priority string) (Issue, error) {
	var data struct {
		Issue Issue `json:"issue"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/issues", map[string]string{
		"type": issueType, "title": title, "description": description, "priority": priority,
	}, &data)
	return data.Issue, err
}

// GetIssue fetches one issue by id.
func (c *Client) GetIssue(ctx context.Context, id uint64) (Issue, error) {
	var data struct {
		Issue Issue `json:"issue"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/issues/%d", id), nil, &data)
	return data.Issue, err
}

// IssuePatch holds the fields to change; nil means "leave as is".
type IssuePatch struct {
	Type        *string `json:"type,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
}

// UpdateIssue applies a partial update.
func (c *Client) UpdateIssue(ctx context.Context, id uint64, patch IssuePatch) (Issue, error) {
	var data struct {
		Issue Issue `json:"issue"`
	}
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/v1/issues/%d", id), patch, &data)
	return data.Issue, err
}

// DeleteIssue removes an issue.
func (c *Client) DeleteIssue(ctx context.Context, id uint64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/issues/%d", id), nil, nil)
}

// UpdateProfile changes name and/or email on the current account.
func (c *Client) UpdateProfile(ctx context.Context, name, email string) (User, error) {
	var data struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodPut, "/v1/users/profile",
		map[string]string{"name": name, "email": email}, &data)
	return data.User, err
}
