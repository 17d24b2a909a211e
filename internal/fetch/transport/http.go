// Package transport implements the HTTP fetch boundary. All network
// failures leave this package as tagged *domain.FetchError values so the
// classifier never has to inspect net/http internals.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sportsight/scout/internal/core/domain"
	"github.com/sportsight/scout/internal/fetch/proxy"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "scout/1.0"

	// bodySnippetLimit caps how much of an error response body is kept for
	// anti-bot detection.
	bodySnippetLimit = 2048

	// maxBodySize caps successful response bodies.
	maxBodySize = 10 << 20
)

// Options configures the HTTP transport.
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// HTTP performs fetches over net/http. It caches one http.Client per proxy
// URL so connection pools are reused across requests on the same route.
type HTTP struct {
	timeout   time.Duration
	userAgent string

	mu      sync.Mutex
	clients map[string]*http.Client
}

// New creates an HTTP transport with sane defaults for missing options.
func New(opts Options) *HTTP {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &HTTP{
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		clients:   make(map[string]*http.Client),
	}
}

// client returns the cached client for a proxy URL, creating it on first
// use. An empty proxyURL means a direct connection.
func (t *HTTP) client(proxyURL string) (*http.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[proxyURL]; ok {
		return c, nil
	}

	tr := &http.Transport{
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", proxyURL, err)
		}
		tr.Proxy = http.ProxyURL(u)
	}

	c := &http.Client{
		Transport: tr,
		Timeout:   t.timeout,
	}
	t.clients[proxyURL] = c
	return c, nil
}

// Do fetches directly, without a proxy.
func (t *HTTP) Do(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	return t.DoVia(ctx, req, "")
}

// DoVia fetches through the given proxy URL; empty means direct.
func (t *HTTP) DoVia(ctx context.Context, req *domain.Request, proxyURL string) (*domain.Response, error) {
	client, err := t.client(proxyURL)
	if err != nil {
		return nil, &domain.FetchError{
			Kind:    domain.KindProxy,
			Message: "proxy configuration rejected",
			Err:     err,
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, &domain.FetchError{
			Kind:    domain.KindConnection,
			Message: "invalid request",
			Err:     err,
		}
	}
	httpReq.Header.Set("User-Agent", t.userAgent)
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, t.wrapTransportErr(err, proxyURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, bodySnippetLimit))
		return nil, &domain.FetchError{
			Kind:       domain.KindHTTP,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       string(snippet),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, t.wrapTransportErr(err, proxyURL)
	}

	return &domain.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Latency:    time.Since(start),
	}, nil
}

// wrapTransportErr tags a client error with the right failure kind:
// deadline and timeout errors as timeouts, everything else as a connection
// failure, attributed to the proxy when one was in play.
func (t *HTTP) wrapTransportErr(err error, proxyURL string) error {
	kind := domain.KindConnection
	if proxyURL != "" {
		kind = domain.KindProxy
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = domain.KindTimeout
	}

	return &domain.FetchError{
		Kind: kind,
		Err:  err,
	}
}

// via binds a transport to one proxy so it satisfies domain.Transport.
type via struct {
	t        *HTTP
	proxyURL string
}

func (v via) Do(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	return v.t.DoVia(ctx, req, v.proxyURL)
}

// Via returns a domain.Transport that routes every request through the
// given proxy URL. An empty URL yields a direct transport.
func (t *HTTP) Via(proxyURL string) domain.Transport {
	return via{t: t, proxyURL: proxyURL}
}

// NewProber returns a health-probe function backed by this transport. The
// probe is a plain GET through the proxy; any non-2xx status counts as a
// failure.
func NewProber(t *HTTP) proxy.ProbeFunc {
	return func(ctx context.Context, p *proxy.Proxy, target string) (time.Duration, error) {
		resp, err := t.DoVia(ctx, &domain.Request{Method: http.MethodGet, URL: target}, p.URL)
		if err != nil {
			return 0, err
		}
		return resp.Latency, nil
	}
}
