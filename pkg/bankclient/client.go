/**
 * @description
 * This package provides a client for the banking REST backend. It plays the role
 * of the "authenticated fetch" collaborator: every account call carries the user's
 * bearer token, and every non-2xx response is surfaced with the backend's raw text.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Money amounts in request and response payloads.
 */
package bankclient

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
	"time"
)

// maxErrorBody bounds how much of an error response is read into a RemoteError.
const maxErrorBody = 8 << 10

// ErrUnauthorized matches any RemoteError carrying a 401 or 403 status.
var ErrUnauthorized = errors.New("bank api: unauthorized")

// ErrMissingToken is returned when an authenticated call is attempted without a token.
var ErrMissingToken = errors.New("bank api: no auth token")

// RemoteError is a non-2xx response from the banking backend. Message is the raw body text.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrUnauthorized) match authorization failures.
func (e *RemoteError) Is(target error) bool {
	return target == ErrUnauthorized && (e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// NetworkError means the request never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Client is a client for the banking backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new banking backend client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP creates a client that reuses the given http.Client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	c := NewClient(baseURL, 0)
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c
}

// WithToken returns an authenticated view of the client for one user's bearer token.
func (c *Client) WithToken(token string) *AuthClient {
	return &AuthClient{client: c, token: strings.TrimSpace(token)}
}

// LoginRequest is the payload for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the payload for POST /auth/register.
type RegisterRequest struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the token returned by a successful login.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, "", http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return nil, fmt.Errorf("login response did not include an access token")
	}
	return &resp, nil
}

// Register creates a new customer and returns the backend's confirmation text.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	var text string
	if err := c.do(ctx, "", http.MethodPost, "/auth/register", req, &text); err != nil {
		return "", err
	}
	return text, nil
}

// do performs one request. A nil out discards the body; *string receives it as text;
// anything else is JSON-decoded.
func (c *Client) do(ctx context.Context, token, method, path string, payload interface{}, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("bank api base url is empty")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: fmt.Sprintf("%s %s", method, path), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := strings.TrimSpace(string(raw))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &RemoteError{StatusCode: resp.StatusCode, Message: message}
	}

	switch dst := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *string:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &NetworkError{Op: fmt.Sprintf("read %s", path), Err: err}
		}
		*dst = strings.TrimSpace(string(raw))
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
		return nil
	}
}

func escapeQuery(key, value string) string {
	return url.Values{key: []string{value}}.Encode()
}
