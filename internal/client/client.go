package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vidsurvey/internal/api"
	"vidsurvey/internal/services"
)

// defaultReadTimeout bounds metadata reads. Submissions and reanalysis run the
// pipeline before responding and are bounded only by the caller's context.
const defaultReadTimeout = 30 * time.Second

// Client is an HTTP client for the daemon API.
type Client struct {
	baseURL     string
	token       string
	http        *http.Client
	readTimeout time.Duration
}

// Option adjusts a Client.
type Option func(*Client)

// WithReadTimeout sets the deadline for metadata reads; zero disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) { c.readTimeout = d }
}

// New builds a client. bind may be a host:port or a full URL. The default
// HTTP client sets no overall timeout.
func New(bind, token string, httpClient *http.Client, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(bind)
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "client", "init", "api address required", nil)
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "client", "init", "parse api address", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{
		baseURL:     strings.TrimRight(parsed.String(), "/"),
		token:       token,
		http:        httpClient,
		readTimeout: defaultReadTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError is a non-2xx daemon response.
type APIError struct {
	StatusCode int
	Message    string
	TotalScore *int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes back to the service markers.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusNotFound:
		return target == services.ErrNotFound
	case http.StatusConflict:
		return target == services.ErrConflict
	case http.StatusBadRequest:
		return target == services.ErrValidation
	case http.StatusUnauthorized:
		return target == services.ErrConfiguration
	}
	return false
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/api/" + strings.Join(escaped, "/")
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes a JSON response into out.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, payload []byte) error {
	apiErr := &APIError{StatusCode: status}
	var body api.ErrorBody
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.TotalScore = body.TotalScore
	} else {
		apiErr.Message = strings.TrimSpace(string(payload))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func (c *Client) getJSON(ctx context.Context, out any, parts ...string) error {
	return c.read(ctx, c.endpoint(parts...), out)
}

// read issues a GET bounded by the read timeout.
func (c *Client) read(ctx context.Context, endpoint string, out any) error {
	if c.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
