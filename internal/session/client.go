package session

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
)

var (
	// ErrUnauthorized is returned when the server rejects the session (401).
	ErrUnauthorized = errors.New("session: unauthorized")
	// ErrNoUser is returned when the server answers 2xx but the body holds
	// no user (empty or JSON null): the request arrived without a cookie.
	ErrNoUser = errors.New("session: response carried no user")
)

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("session: unexpected status %d", e.Code)
}

// maxBody caps how much of a response we read.
const maxBody = 1 << 20

// Client talks to the QuestLog auth endpoints under an API base URL such as
// "https://questlog.app/api".
//
// Cookies are handled by the *http.Client (give it a cookie jar). A
// credential func, when set, adds an "Authorization: Bearer" header for
// clients that hold a session token instead.
type Client struct {
	base       string
	httpClient *http.Client
	credential func() (string, bool)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithCredential makes every request carry the token returned by fn, if any.
func WithCredential(fn func() (string, bool)) ClientOption {
	return func(c *Client) { c.credential = fn }
}

// StoreCredential reads the session token from store's KeySession.
func StoreCredential(store Store) func() (string, bool) {
	return func() (string, bool) {
		v, ok := store.Get(KeySession)
		return v, ok && v != ""
	}
}

// NewClient creates a Client for the given API base URL.
func NewClient(base string, opts ...ClientOption) *Client {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoginURL is where a user agent goes to log in. returnTo, if set, is where
// the server sends it afterwards.
func (c *Client) LoginURL(returnTo string) string {
	u := c.base + "/auth/oidc"
	if returnTo != "" {
		u += "?" + url.Values{"return_to": {returnTo}}.Encode()
	}
	return u
}

// CurrentUser asks the server who is logged in.
//
// Errors: ErrUnauthorized for 401, *StatusError for other non-2xx codes,
// ErrNoUser for a 2xx without a user, or the transport/context error.
func (c *Client) CurrentUser(ctx context.Context) (*Profile, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/current_user")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("session: reading current user: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoUser
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("session: decoding current user: %w", err)
	}
	p.Raw = json.RawMessage(raw)
	return &p, nil
}

// Logout asks the server to end the session.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/auth/logout")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))

	return statusError(resp.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("session: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.credential != nil {
		if token, ok := c.credential(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	}
	return &StatusError{Code: code}
}
