package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

const (
	DefaultBaseURL = "https://api.resend.com"
	timeout        = 15 * time.Second
)

// Message is one email to send
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

// DeliveryError is returned when the API rejects a message
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("email API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Client sends messages through the Resend API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	api        *resend.Client
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at another API host
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new email client
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", c.baseURL, err)
	}

	hc := *c.httpClient
	hc.Transport = &statusRecorder{next: hc.Transport}

	c.api = resend.NewCustomClient(&hc, apiKey)
	c.api.BaseURL = base
	return c, nil
}

// Send delivers msg and returns the ID assigned by the API
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if msg.From == "" {
		return "", fmt.Errorf("sender is required")
	}
	if len(msg.To) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	rejected := &rejection{}
	ctx = context.WithValue(ctx, rejectionKey{}, rejected)

	sent, err := c.api.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		if rejected.status != 0 {
			return "", &DeliveryError{StatusCode: rejected.status, Body: rejected.body, Err: err}
		}
		return "", fmt.Errorf("sending email: %w", err)
	}
	return sent.Id, nil
}

type rejectionKey struct{}

// rejection holds the status and body of a non-2xx API response
type rejection struct {
	status int
	body   string
}

// statusRecorder copies non-2xx responses into the request's rejection so
// Send can report the API's status code and body
type statusRecorder struct {
	next http.RoundTripper
}

func (s *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	next := s.next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req)
	if err != nil || resp.StatusCode < 300 {
		return resp, err
	}

	rej, ok := req.Context().Value(rejectionKey{}).(*rejection)
	if !ok {
		return resp, nil
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	rej.status = resp.StatusCode
	rej.body = strings.TrimSpace(string(body))
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
