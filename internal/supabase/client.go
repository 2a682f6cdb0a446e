// Package supabase implements the remote data gateway and the
// authentication client for a hosted Supabase project. Tables are
// reached through the PostgREST endpoint, accounts through GoTrue.
package supabase

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fakto/crmbot/core/telegram/netutil"
)

const (
	defaultDialTimeout     = 5 * time.Second
	defaultTLSHandshake    = 5 * time.Second
	defaultIdleConnTimeout = 30 * time.Second
	defaultResponseTimeout = 10 * time.Second
	defaultClientTimeout   = 30 * time.Second
	defaultRetryAttempts   = 2
	defaultRetryBackoff    = time.Second
)

// Config holds the Supabase project endpoints and API keys.
type Config struct {
	URL        string `yaml:"url" envconfig:"SUPABASE_URL"`
	ServiceKey string `yaml:"service_key" envconfig:"SUPABASE_SERVICE_KEY"`
	AnonKey    string `yaml:"anon_key" envconfig:"SUPABASE_ANON_KEY"`
}

// Validate checks that the required connection settings are present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("supabase.url is required")
	}
	if strings.TrimSpace(c.ServiceKey) == "" {
		return fmt.Errorf("supabase.service_key is required")
	}
	if strings.TrimSpace(c.AnonKey) == "" {
		return fmt.Errorf("supabase.anon_key is required")
	}
	return nil
}

// Client executes table CRUD operations against the PostgREST endpoint
// using the project service key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New constructs a table client from the project configuration.
func New(cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.ServiceKey,
		http:    buildHTTPClient(),
	}
}

// NewWithHTTPClient constructs a table client with a caller-supplied
// http.Client, used by tests to point at a local server.
func NewWithHTTPClient(cfg Config, hc *http.Client) *Client {
	c := New(cfg)
	if hc != nil {
		c.http = hc
	}
	return c
}

// Table starts a query against the named table.
func (c *Client) Table(name string) Query {
	return &tableQuery{client: c, table: name}
}

func buildHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: defaultResponseTimeout,
	}

	return &http.Client{
		Timeout: defaultClientTimeout,
		Transport: &retryTransport{
			base:       transport,
			maxRetries: defaultRetryAttempts,
			backoff:    defaultRetryBackoff,
		},
	}
}

type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		currReq := req
		if attempt > 1 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			} else if req.Body != nil {
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(currReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !netutil.ShouldRetry(err) || attempt == attempts {
			break
		}

		delay := t.backoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}
