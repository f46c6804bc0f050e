package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Strategy is one way of reaching the upstream: direct, through a relay, or through a proxy.
type Strategy interface {
	Name() string
	Get(ctx context.Context, target string) ([]byte, error)
}

// MaxBodyBytes caps how much of a response body a strategy reads.
const MaxBodyBytes = 4 << 20

// StatusError reports a non-2xx upstream response. Body is truncated for
// logging; payload keeps the full body for the chain.
type StatusError struct {
	Code    int
	Body    string
	payload []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d, body: %s", e.Code, e.Body)
}

// HTTPStrategy issues a GET for the target, optionally rewritten through a relay.
type HTTPStrategy struct {
	name    string
	client  HTTPClient
	rewrite func(target string) string
	header  http.Header
}

// HTTPStrategyOption configures an HTTPStrategy.
type HTTPStrategyOption func(*HTTPStrategy)

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPStrategyOption {
	return func(s *HTTPStrategy) {
		s.header.Add(key, value)
	}
}

func newHTTPStrategy(name string, client HTTPClient, rewrite func(string) string, opts ...HTTPStrategyOption) *HTTPStrategy {
	s := &HTTPStrategy{
		name:    name,
		client:  client,
		rewrite: rewrite,
		header:  http.Header{},
	}
	s.header.Set("User-Agent", "Mozilla/5.0")
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Direct requests the target URL as is.
func Direct(client HTTPClient, opts ...HTTPStrategyOption) *HTTPStrategy {
	return newHTTPStrategy("direct", client, nil, opts...)
}

// Relay requests the target through a URL template. The {url} placeholder
// receives the query-escaped target; a template without it gets the escaped
// target appended.
func Relay(template string, client HTTPClient, opts ...HTTPStrategyOption) *HTTPStrategy {
	name := "relay"
	if u, err := url.Parse(template); err == nil && u.Host != "" {
		name = "relay:" + u.Host
	}
	rewrite := func(target string) string {
		escaped := url.QueryEscape(target)
		if strings.Contains(template, "{url}") {
			return strings.Replace(template, "{url}", escaped, 1)
		}
		return template + escaped
	}
	return newHTTPStrategy(name, client, rewrite, opts...)
}

// Proxy requests the target through an HTTP(S) forward proxy.
func Proxy(proxyURL string, timeout time.Duration, opts ...HTTPStrategyOption) (*HTTPStrategy, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(u)},
	}
	return newHTTPStrategy("proxy:"+u.Host, client, nil, opts...), nil
}

func (s *HTTPStrategy) Name() string { return s.name }

func (s *HTTPStrategy) Get(ctx context.Context, target string) ([]byte, error) {
	endpoint := target
	if s.rewrite != nil {
		endpoint = s.rewrite(target)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range s.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// url.Error embeds the full URL, which may carry an API token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, fmt.Errorf("request: %w", urlErr.Err)
		}
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", MaxBodyBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 200), payload: body}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
