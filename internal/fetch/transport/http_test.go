package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sportsight/scout/internal/core/domain"
)

func TestDoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "scout-test" {
			t.Errorf("User-Agent = %q, want scout-test", ua)
		}
		w.Write([]byte(`{"matches":[]}`))
	}))
	defer srv.Close()

	tr := New(Options{UserAgent: "scout-test"})
	resp, err := tr.Do(context.Background(), &domain.Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"matches":[]}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.Latency <= 0 {
		t.Error("Latency not recorded")
	}
}

func TestDoStatusError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     http.Header
		body       string
		wantStatus int
	}{
		{"rate limited", 429, http.Header{"Retry-After": {"30"}}, "slow down", 429},
		{"server error", 503, nil, "maintenance", 503},
		{"forbidden with challenge", 403, nil, "checking your browser (cloudflare)", 403},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, vs := range tt.header {
					for _, v := range vs {
						w.Header().Add(k, v)
					}
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tr := New(Options{})
			_, err := tr.Do(context.Background(), &domain.Request{URL: srv.URL})
			if err == nil {
				t.Fatal("expected error for non-2xx status")
			}

			var fe *domain.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("error is %T, want *domain.FetchError", err)
			}
			if fe.Kind != domain.KindHTTP {
				t.Errorf("Kind = %v, want KindHTTP", fe.Kind)
			}
			if fe.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.wantStatus)
			}
			if fe.Body != tt.body {
				t.Errorf("Body = %q, want %q", fe.Body, tt.body)
			}
		})
	}
}

func TestDoTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	tr := New(Options{Timeout: 20 * time.Millisecond})
	_, err := tr.Do(context.Background(), &domain.Request{URL: srv.URL})
	if err == nil {
		t.Fatal("expected timeout error")
	}

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error is %T, want *domain.FetchError", err)
	}
	if fe.Kind != domain.KindTimeout {
		t.Errorf("Kind = %v, want KindTimeout", fe.Kind)
	}
}

func TestDoConnectionRefused(t *testing.T) {
	tr := New(Options{Timeout: time.Second})
	_, err := tr.Do(context.Background(), &domain.Request{URL: "http://127.0.0.1:1"})
	if err == nil {
		t.Fatal("expected connection error")
	}

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error is %T, want *domain.FetchError", err)
	}
	if fe.Kind != domain.KindConnection {
		t.Errorf("Kind = %v, want KindConnection", fe.Kind)
	}
}

func TestViaBadProxyURL(t *testing.T) {
	tr := New(Options{})
	_, err := tr.DoVia(context.Background(), &domain.Request{URL: "http://example.com"}, "://bad")
	if err == nil {
		t.Fatal("expected proxy configuration error")
	}

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error is %T, want *domain.FetchError", err)
	}
	if fe.Kind != domain.KindProxy {
		t.Errorf("Kind = %v, want KindProxy", fe.Kind)
	}
}

func TestClientCacheReuse(t *testing.T) {
	tr := New(Options{})
	a, err := tr.client("")
	if err != nil {
		t.Fatalf("client error: %v", err)
	}
	b, err := tr.client("")
	if err != nil {
		t.Fatalf("client error: %v", err)
	}
	if a != b {
		t.Error("direct client not reused")
	}

	p, err := tr.client("http://proxy.local:8080")
	if err != nil {
		t.Fatalf("client error: %v", err)
	}
	if p == a {
		t.Error("proxy client shares the direct client")
	}
}
