// Package classify turns transport failures into handling decisions.
//
// Classification is a pure function of the tagged failure type produced at
// the transport boundary: category, severity, retryability, and an optional
// server-suggested delay. The anti-bot check is a pluggable predicate so the
// detection heuristic can evolve independently of the classifier.
package classify

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/sportsight/scout/internal/core/domain"
)

// Category buckets failures by how they should be handled.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryTimeout        Category = "timeout"
	CategoryRateLimit      Category = "rate_limit"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryNotFound       Category = "not_found"
	CategoryServerError    Category = "server_error"
	CategoryClientError    Category = "client_error"
	CategoryParsing        Category = "parsing"
	CategoryAntiBot        Category = "anti_bot_challenge"
	CategoryProxy          Category = "proxy"
	CategoryUnknown        Category = "unknown"
)

// Classification is the handling decision for one failure. RetryAfter is
// zero unless the failure carried an explicit server-suggested delay.
type Classification struct {
	Category   Category
	Severity   domain.Severity
	Retryable  bool
	RetryAfter time.Duration
	Alert      bool
	Message    string
}

// Detector reports whether an HTTP failure is an anti-bot challenge.
type Detector func(fe *domain.FetchError) bool

// CloudflareDetector matches the Cloudflare challenge markers: a cf-ray
// response header or a "cloudflare" marker in the body.
func CloudflareDetector(fe *domain.FetchError) bool {
	if fe.Header != nil && fe.Header.Get("cf-ray") != "" {
		return true
	}
	return strings.Contains(strings.ToLower(fe.Body), "cloudflare")
}

// Classifier maps failures to classifications.
type Classifier struct {
	antiBot Detector
}

// NewClassifier creates a classifier. A nil detector falls back to
// CloudflareDetector.
func NewClassifier(antiBot Detector) *Classifier {
	if antiBot == nil {
		antiBot = CloudflareDetector
	}
	return &Classifier{antiBot: antiBot}
}

// Classify determines category, severity, retryability and suggested delay
// for a failure. It is deterministic and side-effect free.
func (c *Classifier) Classify(err error) Classification {
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		return Classification{
			Category: CategoryUnknown,
			Severity: domain.SeverityHigh,
			Alert:    true,
			Message:  "unclassifiable error",
		}
	}

	switch fe.Kind {
	case domain.KindConnection:
		return Classification{
			Category:  CategoryNetwork,
			Severity:  domain.SeverityMedium,
			Retryable: true,
			Message:   "network connection error",
		}
	case domain.KindTimeout:
		return Classification{
			Category:  CategoryTimeout,
			Severity:  domain.SeverityMedium,
			Retryable: true,
			Message:   "request timeout",
		}
	case domain.KindProxy:
		return Classification{
			Category:  CategoryProxy,
			Severity:  domain.SeverityMedium,
			Retryable: true,
			Message:   "proxy error",
		}
	case domain.KindParse:
		return Classification{
			Category: CategoryParsing,
			Severity: domain.SeverityLow,
			Message:  "data parsing error",
		}
	case domain.KindHTTP:
		return c.classifyStatus(fe)
	}

	return Classification{
		Category: CategoryUnknown,
		Severity: domain.SeverityHigh,
		Alert:    true,
		Message:  "unknown failure kind",
	}
}

func (c *Classifier) classifyStatus(fe *domain.FetchError) Classification {
	status := fe.StatusCode

	switch {
	case status == 401:
		return Classification{
			Category: CategoryAuthentication,
			Severity: domain.SeverityHigh,
			Alert:    true,
			Message:  "authentication failed",
		}

	case status == 403:
		if c.antiBot(fe) {
			return Classification{
				Category:   CategoryAntiBot,
				Severity:   domain.SeverityHigh,
				Retryable:  true,
				RetryAfter: 60 * time.Second,
				Message:    "anti-bot challenge detected",
			}
		}
		return Classification{
			Category: CategoryAuthorization,
			Severity: domain.SeverityMedium,
			Message:  "access forbidden",
		}

	case status == 404:
		return Classification{
			Category: CategoryNotFound,
			Severity: domain.SeverityLow,
			Message:  "resource not found",
		}

	case status == 429:
		retryAfter := 60 * time.Second
		if ra, ok := fe.RetryAfterHeader(); ok {
			retryAfter = ra
		}
		return Classification{
			Category:   CategoryRateLimit,
			Severity:   domain.SeverityMedium,
			Retryable:  true,
			RetryAfter: retryAfter,
			Message:    "rate limit exceeded",
		}

	case status >= 500 && status < 600:
		cls := Classification{
			Category:  CategoryServerError,
			Severity:  domain.SeverityMedium,
			Retryable: true,
			Message:   "server error",
		}
		if status == 503 {
			cls.Severity = domain.SeverityHigh
			cls.RetryAfter = 30 * time.Second
			cls.Alert = true
		}
		return cls

	case status >= 400 && status < 500:
		return Classification{
			Category: CategoryClientError,
			Severity: domain.SeverityLow,
			Message:  "client error",
		}
	}

	return Classification{
		Category:  CategoryUnknown,
		Severity:  domain.SeverityMedium,
		Retryable: true,
		Message:   "unexpected status code",
	}
}

// RetryDelay computes the backoff for a classified failure. An explicit
// server-suggested delay always wins; otherwise the growth factor depends
// on the category (rate limits and anti-bot challenges back off harder).
func RetryDelay(cls Classification, attempt int, base time.Duration) time.Duration {
	if cls.RetryAfter > 0 {
		return cls.RetryAfter
	}

	var factor float64
	switch cls.Category {
	case CategoryRateLimit:
		factor = math.Pow(3, float64(attempt))
	case CategoryAntiBot:
		factor = math.Pow(4, float64(attempt))
	case CategoryServerError:
		factor = math.Pow(2, float64(attempt))
	default:
		factor = math.Pow(2, float64(attempt-1))
	}

	return time.Duration(float64(base) * factor)
}
