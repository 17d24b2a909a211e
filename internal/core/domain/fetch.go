package domain

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// FailureKind tags the low-level origin of a fetch failure. It is decided
// once, at the transport boundary, so downstream classification never has
// to introspect error internals.
type FailureKind int

const (
	KindConnection FailureKind = iota // TCP/DNS level failure
	KindTimeout                       // deadline exceeded
	KindHTTP                          // response carried a non-2xx status
	KindProxy                         // failure attributable to the egress proxy
	KindParse                         // payload was structurally invalid
)

// String returns a human-readable name for the failure kind.
func (k FailureKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindHTTP:
		return "http"
	case KindProxy:
		return "proxy"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// FetchError is the tagged failure type surfaced by transports. StatusCode
// and Header are only populated for KindHTTP failures.
type FetchError struct {
	Kind       FailureKind
	StatusCode int
	Header     http.Header
	Body       string // truncated response body, for anti-bot detection
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("fetch failed: %s status %d", e.Kind, e.StatusCode)
	}
	if e.Message != "" {
		return fmt.Sprintf("fetch failed: %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch failed: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch failed: %s", e.Kind)
}

// Unwrap returns the underlying cause, if any.
func (e *FetchError) Unwrap() error { return e.Err }

// RetryAfterHeader returns the Retry-After value in seconds, if the
// response carried one.
func (e *FetchError) RetryAfterHeader() (time.Duration, bool) {
	if e.Header == nil {
		return 0, false
	}
	raw := e.Header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	var secs float64
	if _, err := fmt.Sscanf(raw, "%f", &secs); err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// Request is a logical fetch request handed to a Transport.
type Request struct {
	Method string
	URL    string
	Header http.Header
}

// Host returns the hostname component of the request URL, used as the
// rate-limiter and circuit-breaker scope key.
func (r *Request) Host() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}
	return u.Hostname()
}

// Response is the transport-level result of a successful fetch.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Latency    time.Duration
}

// Transport performs the actual network call. Implementations must surface
// failures as *FetchError so they can be classified.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}
