package backoff

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sportsight/scout/internal/core/domain"
	"github.com/sportsight/scout/internal/fetch/classify"
)

func TestExponentialWaitTime(t *testing.T) {
	e := &Exponential{
		MaxAttempts: 5,
		Base:        time.Second,
		Max:         60 * time.Second,
		Multiplier:  2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := e.WaitTime(&Context{Attempt: tt.attempt}); got != tt.want {
			t.Errorf("WaitTime(attempt=%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialCap(t *testing.T) {
	e := &Exponential{MaxAttempts: 20, Base: time.Second, Max: 10 * time.Second, Multiplier: 2.0}
	if got := e.WaitTime(&Context{Attempt: 10}); got != 10*time.Second {
		t.Errorf("WaitTime(attempt=10) = %s, want capped 10s", got)
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	e := NewExponential(5)
	for i := 0; i < 100; i++ {
		got := e.WaitTime(&Context{Attempt: 3})
		// base 1s doubled twice is 4s, jittered by ±25%
		if got < 3*time.Second || got > 5*time.Second {
			t.Fatalf("jittered WaitTime = %s, want within [3s, 5s]", got)
		}
	}
}

func TestExponentialShouldRetry(t *testing.T) {
	e := NewExponential(3)
	if !e.ShouldRetry(&Context{Attempt: 2}) {
		t.Error("ShouldRetry(attempt=2) = false, want true")
	}
	if e.ShouldRetry(&Context{Attempt: 3}) {
		t.Error("ShouldRetry(attempt=3) = true, want false")
	}
}

func TestFibonacciWaitTime(t *testing.T) {
	f := &Fibonacci{MaxAttempts: 10, Base: time.Second, Max: 60 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 3 * time.Second},
		{4, 5 * time.Second},
		{5, 8 * time.Second},
		{6, 13 * time.Second},
	}
	for _, tt := range tests {
		if got := f.WaitTime(&Context{Attempt: tt.attempt}); got != tt.want {
			t.Errorf("WaitTime(attempt=%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}

	f.Max = 5 * time.Second
	if got := f.WaitTime(&Context{Attempt: 6}); got != 5*time.Second {
		t.Errorf("WaitTime capped = %s, want 5s", got)
	}
}

func TestAdaptiveShouldRetry(t *testing.T) {
	a := NewAdaptive(3)

	tests := []struct {
		name string
		ctx  *Context
		want bool
	}{
		{"no classification", &Context{Attempt: 1}, true},
		{"retryable", &Context{Attempt: 1, LastClass: &classify.Classification{Category: classify.CategoryServerError, Retryable: true}}, true},
		{"not retryable", &Context{Attempt: 1, LastClass: &classify.Classification{Category: classify.CategoryNotFound, Retryable: false}}, false},
		{"rate limit always retries", &Context{Attempt: 1, LastClass: &classify.Classification{Category: classify.CategoryRateLimit, Retryable: false}}, true},
		{"attempts exhausted", &Context{Attempt: 3, LastClass: &classify.Classification{Retryable: true}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.ShouldRetry(tt.ctx); got != tt.want {
				t.Errorf("ShouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdaptiveWaitTimeHonorsRetryAfter(t *testing.T) {
	a := NewAdaptive(5)
	rc := &Context{
		Attempt:   1,
		LastClass: &classify.Classification{Category: classify.CategoryRateLimit, RetryAfter: 42 * time.Second},
	}
	if got := a.WaitTime(rc); got != 42*time.Second {
		t.Errorf("WaitTime() = %s, want explicit 42s", got)
	}
}

func TestAdaptiveWaitTimeCategoryGrowth(t *testing.T) {
	a := NewAdaptive(5)
	a.Base = time.Second

	rc := &Context{
		Attempt:   2,
		LastClass: &classify.Classification{Category: classify.CategoryRateLimit},
	}
	if got := a.WaitTime(rc); got != 9*time.Second {
		t.Errorf("WaitTime(rate_limit, attempt=2) = %s, want 9s", got)
	}

	rc.LastClass.Category = classify.CategoryAntiBot
	if got := a.WaitTime(rc); got != 16*time.Second {
		t.Errorf("WaitTime(anti_bot, attempt=2) = %s, want 16s", got)
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	classifier := classify.NewClassifier(nil)
	strategy := NewAdaptive(3)
	strategy.Base = time.Millisecond

	calls := 0
	op := func(context.Context) error {
		calls++
		if calls < 3 {
			return &domain.FetchError{Kind: domain.KindHTTP, StatusCode: 500}
		}
		return nil
	}

	rc, err := Do(context.Background(), strategy, classifier, op)
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if rc.Attempt != 3 {
		t.Errorf("Attempt = %d, want 3", rc.Attempt)
	}
	if calls != 3 {
		t.Errorf("op calls = %d, want 3", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	classifier := classify.NewClassifier(nil)
	strategy := NewAdaptive(5)
	strategy.Base = time.Millisecond

	calls := 0
	op := func(context.Context) error {
		calls++
		return &domain.FetchError{Kind: domain.KindHTTP, StatusCode: 404}
	}

	rc, err := Do(context.Background(), strategy, classifier, op)
	if err == nil {
		t.Fatal("Do error = nil, want failure")
	}
	if calls != 1 {
		t.Errorf("op calls = %d, want 1 (404 is not retryable)", calls)
	}
	if rc.LastClass == nil || rc.LastClass.Category != classify.CategoryNotFound {
		t.Errorf("LastClass = %+v, want not_found", rc.LastClass)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	classifier := classify.NewClassifier(nil)
	strategy := NewAdaptive(3)
	strategy.Base = time.Millisecond

	upstream := &domain.FetchError{Kind: domain.KindConnection, Err: errors.New("refused")}
	calls := 0
	op := func(context.Context) error {
		calls++
		return upstream
	}

	rc, err := Do(context.Background(), strategy, classifier, op)
	if err == nil {
		t.Fatal("Do error = nil, want exhaustion")
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("error = %q, want attempt count in message", err)
	}
	if !errors.Is(err, upstream) {
		t.Error("exhaustion error does not wrap the last failure")
	}
	if calls != 3 || rc.Attempt != 3 {
		t.Errorf("calls = %d, Attempt = %d, want 3 each", calls, rc.Attempt)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	classifier := classify.NewClassifier(nil)
	strategy := NewAdaptive(10)
	strategy.Base = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	op := func(context.Context) error {
		return &domain.FetchError{Kind: domain.KindTimeout}
	}

	_, err := Do(ctx, strategy, classifier, op)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do error = %v, want DeadlineExceeded", err)
	}
}

func TestDoWithoutClassifier(t *testing.T) {
	strategy := NewExponential(2)
	strategy.Base = time.Millisecond
	strategy.Jitter = false

	calls := 0
	op := func(context.Context) error {
		calls++
		return errors.New("opaque")
	}

	_, err := Do(context.Background(), strategy, nil, op)
	if err == nil {
		t.Fatal("Do error = nil, want failure")
	}
	if calls != 2 {
		t.Errorf("op calls = %d, want 2 (retries without classification)", calls)
	}
}
