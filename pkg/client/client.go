package client

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

	"github.com/google/uuid"

	"github.com/naveenspark/quicknotes/pkg/domain"
)

const defaultTimeout = 30 * time.Second

// Client is the quicknotes API client. Session cookies are carried by the
// jar, so no method takes a token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithJar sets the cookie jar that holds the session cookie.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) { c.httpClient.Jar = jar }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client. Its Jar is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a new API client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- Auth ---

type userEnvelope struct {
	User *domain.User `json:"user"`
}

// StartLogin asks the server to email a login OTP.
func (c *Client) StartLogin(ctx context.Context, email string) error {
	if err := c.post(ctx, "/api/auth/login", map[string]string{"email": email}, nil); err != nil {
		return fmt.Errorf("client.StartLogin: %w", err)
	}
	return nil
}

// VerifyLoginOTP exchanges a login OTP for a session.
func (c *Client) VerifyLoginOTP(ctx context.Context, email, otp string) (*domain.User, error) {
	u, err := c.verify(ctx, "/api/auth/verify-login-otp", email, otp)
	if err != nil {
		return nil, fmt.Errorf("client.VerifyLoginOTP: %w", err)
	}
	return u, nil
}

// Signup registers a new account and emails a verification OTP.
func (c *Client) Signup(ctx context.Context, name, email string) error {
	if err := c.post(ctx, "/api/auth/signup", map[string]string{"name": name, "email": email}, nil); err != nil {
		return fmt.Errorf("client.Signup: %w", err)
	}
	return nil
}

// VerifySignupOTP completes signup and opens a session.
func (c *Client) VerifySignupOTP(ctx context.Context, email, otp string) (*domain.User, error) {
	u, err := c.verify(ctx, "/api/auth/verify-otp", email, otp)
	if err != nil {
		return nil, fmt.Errorf("client.VerifySignupOTP: %w", err)
	}
	return u, nil
}

// ResendOTP asks the server to send the pending OTP again.
func (c *Client) ResendOTP(ctx context.Context, email string) error {
	if err := c.post(ctx, "/api/auth/resend-otp", map[string]string{"email": email}, nil); err != nil {
		return fmt.Errorf("client.ResendOTP: %w", err)
	}
	return nil
}

// Me returns the user the current session cookie belongs to.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var env userEnvelope
	if err := c.get(ctx, "/api/auth/me", &env); err != nil {
		return nil, fmt.Errorf("client.Me: %w", err)
	}
	if env.User == nil || env.User.ID == "" {
		return nil, fmt.Errorf("client.Me: %w: missing user", ErrDecode)
	}
	return env.User, nil
}

// Logout ends the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.post(ctx, "/api/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("client.Logout: %w", err)
	}
	return nil
}

// OAuthURL returns the browser entry point for a provider login ("google").
func (c *Client) OAuthURL(provider string) string {
	return c.baseURL + "/api/auth/" + url.PathEscape(provider)
}

func (c *Client) verify(ctx context.Context, path, email, otp string) (*domain.User, error) {
	var env userEnvelope
	if err := c.post(ctx, path, map[string]string{"email": email, "otp": otp}, &env); err != nil {
		return nil, err
	}
	if env.User == nil || env.User.ID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrDecode)
	}
	return env.User, nil
}

// --- Notes ---

// ListNotes returns every note of the session's user.
func (c *Client) ListNotes(ctx context.Context) ([]domain.Note, error) {
	var env struct {
		Notes []domain.Note `json:"notes"`
	}
	if err := c.get(ctx, "/api/notes", &env); err != nil {
		return nil, fmt.Errorf("client.ListNotes: %w", err)
	}
	if env.Notes == nil {
		env.Notes = []domain.Note{}
	}
	return env.Notes, nil
}

// CreateNote creates a note and returns it with its server-assigned ID.
func (c *Client) CreateNote(ctx context.Context, n domain.NewNote) (*domain.Note, error) {
	var env struct {
		Note *domain.Note `json:"note"`
	}
	if err := c.post(ctx, "/api/notes/create", n, &env); err != nil {
		return nil, fmt.Errorf("client.CreateNote: %w", err)
	}
	if env.Note == nil || env.Note.ID == "" {
		return nil, fmt.Errorf("client.CreateNote: %w: missing note", ErrDecode)
	}
	return env.Note, nil
}

// TogglePin flips a note's pinned flag on the server. The updated note is
// returned when the server includes it, nil otherwise.
func (c *Client) TogglePin(ctx context.Context, id string) (*domain.Note, error) {
	var env struct {
		Note *domain.Note `json:"note"`
	}
	if err := c.doRequest(ctx, http.MethodPatch, "/api/notes/"+url.PathEscape(id), nil, &env); err != nil {
		return nil, fmt.Errorf("client.TogglePin: %w", err)
	}
	if env.Note == nil || env.Note.ID == "" {
		return nil, nil
	}
	return env.Note, nil
}

// DeleteNote deletes a note by ID.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("client.DeleteNote: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

// doRequest sends a JSON request and decodes the "data" member of the
// response envelope into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max body
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil {
			if apiErr.Message != "" {
				return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Message}
			}
			if apiErr.Error != "" {
				return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
			}
		}
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}
