package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sportsight/scout/internal/checkpoint"
	"github.com/sportsight/scout/internal/core/domain"
	"github.com/sportsight/scout/internal/fetch/breaker"
	"github.com/sportsight/scout/internal/fetch/ratelimit"
	"github.com/sportsight/scout/internal/fetch/transport"
	"github.com/sportsight/scout/internal/monitor"
)

func newTestOrchestrator(t *testing.T, cfg Config, store checkpoint.Store) *Orchestrator {
	t.Helper()

	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Millisecond
	}
	o, err := New(cfg, Deps{
		Transport: transport.New(transport.Options{Timeout: 2 * time.Second}),
		Limiters:  ratelimit.NewRegistry(1000, 1, 10000),
		Breakers:  breaker.NewRegistry(breaker.DefaultConfig()),
		Store:     store,
		Jobs:      monitor.NewJobMonitor(),
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return o
}

func TestFetchRecoversFromTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, Config{MaxAttempts: 3}, nil)
	resp, err := o.Fetch(context.Background(), &domain.Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("Body = %q, want ok", resp.Body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

func TestFetchExhaustsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, Config{MaxAttempts: 2}, nil)
	_, err := o.Fetch(context.Background(), &domain.Request{URL: srv.URL})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error chain lost the fetch error: %v", err)
	}
	if fe.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", fe.StatusCode)
	}
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, Config{MaxAttempts: 5}, nil)
	_, err := o.Fetch(context.Background(), &domain.Request{URL: srv.URL})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1 (404 is not retryable)", got)
	}
}

func TestFetchFailsFastOnOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, Config{MaxAttempts: 3}, nil)

	host := (&domain.Request{URL: srv.URL}).Host()
	b := o.breakers.Get(host)
	failing := func(context.Context) error {
		return &domain.FetchError{Kind: domain.KindConnection}
	}
	for i := 0; i < breaker.DefaultConfig().FailureThreshold; i++ {
		b.Call(context.Background(), failing)
	}
	if b.State() != breaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", b.State())
	}

	_, err := o.Fetch(context.Background(), &domain.Request{URL: srv.URL})
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("error = %v, want wrapped ErrOpen", err)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("server saw %d calls, want 0 while breaker is open", got)
	}
}

func TestRunJobProcessesAllUnits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("match data"))
	}))
	defer srv.Close()

	store := checkpoint.NewMemoryStore()
	o := newTestOrchestrator(t, Config{Workers: 3, MaxAttempts: 2}, store)

	var mu sync.Mutex
	var seen []int
	job := Job{
		Name:  "epl-fixtures",
		Type:  checkpoint.TypePage,
		Units: makeUnits(srv.URL, 10),
		Handler: func(ctx context.Context, unit Unit, resp *domain.Response) error {
			mu.Lock()
			seen = append(seen, unit.ID)
			mu.Unlock()
			return nil
		},
	}

	if err := o.RunJob(context.Background(), job); err != nil {
		t.Fatalf("RunJob error: %v", err)
	}

	sort.Ints(seen)
	if len(seen) != 10 {
		t.Fatalf("handled %d units, want 10", len(seen))
	}

	cp, err := store.Load(context.Background(), "epl-fixtures")
	if err != nil || cp == nil {
		t.Fatalf("checkpoint missing after run: %v", err)
	}
	if cp.Value != "10" || cp.ScrapedItems != 10 {
		t.Errorf("checkpoint = %+v, want watermark 10", cp)
	}
}

func TestRunJobResumesFromCheckpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	store := checkpoint.NewMemoryStore()
	ctx := context.Background()
	if err := store.Save(ctx, &checkpoint.Checkpoint{
		JobName: "laliga-results",
		Type:    checkpoint.TypePage,
		Value:   "6",
	}); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	o := newTestOrchestrator(t, Config{Workers: 2, MaxAttempts: 2}, store)

	var mu sync.Mutex
	var seen []int
	job := Job{
		Name:  "laliga-results",
		Type:  checkpoint.TypePage,
		Units: makeUnits(srv.URL, 8),
		Handler: func(ctx context.Context, unit Unit, resp *domain.Response) error {
			mu.Lock()
			seen = append(seen, unit.ID)
			mu.Unlock()
			return nil
		},
	}

	if err := o.RunJob(ctx, job); err != nil {
		t.Fatalf("RunJob error: %v", err)
	}

	sort.Ints(seen)
	want := []int{6, 7}
	if len(seen) != len(want) || seen[0] != 6 || seen[1] != 7 {
		t.Errorf("resumed units = %v, want %v", seen, want)
	}
}

func TestRunJobSkipsParseFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	store := checkpoint.NewMemoryStore()
	o := newTestOrchestrator(t, Config{Workers: 1, MaxAttempts: 2}, store)

	job := Job{
		Name:  "bundesliga-fixtures",
		Type:  checkpoint.TypePage,
		Units: makeUnits(srv.URL, 5),
		Handler: func(ctx context.Context, unit Unit, resp *domain.Response) error {
			if unit.ID == 2 {
				return errors.New("unexpected markup")
			}
			return nil
		},
	}

	if err := o.RunJob(context.Background(), job); err != nil {
		t.Fatalf("RunJob error: %v", err)
	}

	// the watermark cannot pass the failed unit, so a rerun retries it
	cp, err := store.Load(context.Background(), "bundesliga-fixtures")
	if err != nil || cp == nil {
		t.Fatalf("checkpoint missing: %v", err)
	}
	if cp.Value != "2" {
		t.Errorf("watermark = %s, want 2 (stalled at parse failure)", cp.Value)
	}

	stats := o.jobs.Stats("bundesliga-fixtures")
	if stats == nil || stats.ItemsFailed != 1 {
		t.Errorf("job stats = %+v, want 1 failed item", stats)
	}
}

func TestRunJobHonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("ok"))
	}))
	defer srv.Close()
	defer close(release)

	o := newTestOrchestrator(t, Config{Workers: 1, MaxAttempts: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	job := Job{
		Name:  "slow-job",
		Units: makeUnits(srv.URL, 50),
		Handler: func(ctx context.Context, unit Unit, resp *domain.Response) error {
			return nil
		},
	}

	err := o.RunJob(ctx, job)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunJob error = %v, want context.Canceled", err)
	}
}

func makeUnits(baseURL string, n int) []Unit {
	units := make([]Unit, n)
	for i := range units {
		units[i] = Unit{
			ID:      i,
			Request: &domain.Request{URL: fmt.Sprintf("%s/page/%s", baseURL, strconv.Itoa(i))},
		}
	}
	return units
}
