// Package github is a small client for the parts of GitHub the hub talks to:
// the OAuth token endpoint, the authenticated user, the user's repositories
// (Link-header pagination) and single repository lookups.
//
// TIMEOUTS:
// Every outbound call runs under its own context.WithTimeout (Config.Timeout,
// 10s by default), on top of whatever deadline the incoming request carries.
// A hung GitHub endpoint therefore fails one call instead of pinning the
// request goroutine until the server's WriteTimeout.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL      = "https://api.github.com"
	defaultOAuthBaseURL = "https://github.com"
	defaultTimeout      = 10 * time.Second
	defaultMaxPages     = 50
	userAgent           = "opensource-hub"

	// maxBodyBytes caps how much of a single response we read.
	maxBodyBytes = 8 << 20
)

var (
	// ErrNoToken means the OAuth exchange did not yield an access token.
	ErrNoToken = errors.New("github: access token not received")

	// ErrNotFound matches any *APIError with status 404.
	ErrNotFound = errors.New("github: not found")

	// ErrTooManyPages is returned when a pagination chain exceeds MaxPages.
	ErrTooManyPages = errors.New("github: pagination exceeded page limit")
)

// APIError is a non-2xx response from the GitHub REST API.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Type       string `json:"type"` // "auth", "ratelimit", "notfound", "permission", "unknown"
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %s (status %d)", e.Message, e.StatusCode)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Config holds OAuth app credentials and API endpoints. Zero values fall back
// to the public GitHub endpoints and the package defaults.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string // REST API, e.g. https://api.github.com
	OAuthBaseURL string // token endpoint host, e.g. https://github.com
	Timeout      time.Duration
	MaxPages     int
}

// Client talks to GitHub on behalf of the hub.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client. httpClient may be nil, in which case a client without
// its own timeout is used (per-call contexts bound every request).
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.OAuthBaseURL == "" {
		cfg.OAuthBaseURL = defaultOAuthBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.OAuthBaseURL = strings.TrimRight(cfg.OAuthBaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// User is the portion of GET /user we use.
//
// Email is a pointer because GitHub returns null when the user keeps their
// address private; callers must reject such logins rather than look up "".
//
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type User struct {
	ID        int64   `json:"id"`
	Login     string  `json:"login"`
	Name      string  `json:"name"`
	Email     *string `json:"email"`
	AvatarURL string  `json:"avatar_url"`
}

// ExternalID is the stable provider user id as stored on OAuth accounts.
func (u *User) ExternalID() string {
	return strconv.FormatInt(u.ID, 10)
}

// DisplayName prefers the profile name and falls back to the login.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Login
}

// FetchUser returns the profile of the token's owner.
func (c *Client) FetchUser(ctx context.Context, token string) (*User, error) {
	body, _, err := c.get(ctx, c.cfg.BaseURL+"/user", token)
	if err != nil {
		return nil, err
	}

	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("github: decoding /user response: %w", err)
	}
	if u.ID == 0 {
		return nil, errors.New("github: /user returned an invalid user (ID = 0)")
	}
	return &u, nil
}

// get performs one bounded GET and returns the body and headers of a 2xx
// response.
// An empty token sends the request unauthenticated.
func (c *Client) get(ctx context.Context, rawURL, token string) ([]byte, http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("github: building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("github: GET %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("github: reading %s response: %w", req.URL.Path, err)
	}

	c.observeRateLimit(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, httpError(resp.StatusCode, resp.Header, body)
	}
	return body, resp.Header, nil
}

// observeRateLimit warns when the token is close to its hourly budget.
func (c *Client) observeRateLimit(h http.Header) {
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil || remaining >= 100 {
		return
	}
	attrs := []any{slog.Int("remaining", remaining)}
	if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		attrs = append(attrs, slog.Time("resetsAt", time.Unix(reset, 0)))
	}
	c.logger.Warn("github rate limit low", attrs...)
}

// httpError converts a non-2xx response into a typed APIError.
func httpError(status int, h http.Header, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusUnauthorized:
		return &APIError{StatusCode: status, Message: "GitHub token expired or invalid", Type: "auth"}
	case http.StatusForbidden:
		if h.Get("X-RateLimit-Remaining") == "0" {
			return &APIError{StatusCode: status, Message: "GitHub rate limit exceeded", Type: "ratelimit"}
		}
		return &APIError{StatusCode: status, Message: "permission denied: " + msg, Type: "permission"}
	case http.StatusNotFound:
		return &APIError{StatusCode: status, Message: "resource not found", Type: "notfound"}
	case http.StatusTooManyRequests:
		return &APIError{StatusCode: status, Message: "too many requests", Type: "ratelimit"}
	default:
		return &APIError{StatusCode: status, Message: msg, Type: "unknown"}
	}
}
