// Package transport sends transformer requests to a REST API.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lexiphanic/restdriver/transformer"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries a unique id per request.
const RequestIDHeader = "X-Request-Id"

// Client sends requests relative to a base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
	signer     *TokenSigner
	log        logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the http.Client used to send requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// WithTokenSigner makes every request carry a bearer token from s.
func WithTokenSigner(s *TokenSigner) Option {
	return func(c *Client) {
		c.signer = s
	}
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		header:     http.Header{},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the URL requests are relative to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
	Duration   time.Duration
}

// URL returns the absolute URL of req.
func (c *Client) URL(req *transformer.Request) string {
	return c.baseURL + "/" + strings.TrimLeft(req.URI(), "/")
}

// Send performs req. A response with a status of 400 or above is returned
// together with a *StatusError.
func (c *Client) Send(ctx context.Context, req *transformer.Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	url := c.URL(req)
	hr, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	for k, vs := range req.Header {
		hr.Header[k] = vs
	}
	hr.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	hr.Header.Set(RequestIDHeader, requestID)
	if c.signer != nil {
		token, err := c.signer.Sign()
		if err != nil {
			return nil, fmt.Errorf("sign token: %w", err)
		}
		hr.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.log.WithFields(logrus.Fields{
		"method":     req.Method,
		"uri":        req.URI(),
		"request_id": requestID,
	})
	start := time.Now()
	resp, err := c.httpClient.Do(hr)
	if err != nil {
		log.WithError(err).Error("request failed")
		return nil, fmt.Errorf("%s %s: %w", req.Method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	ret := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		RequestID:  requestID,
		Duration:   time.Since(start),
	}
	log = log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": ret.Duration,
	})
	if resp.StatusCode >= http.StatusBadRequest {
		log.Warn("request returned an error status")
		return ret, &StatusError{
			Method:     req.Method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       data,
		}
	}
	log.Debug("request sent")
	return ret, nil
}
