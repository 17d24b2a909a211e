// Package orchestrator composes the fetch pipeline: rate limiting, proxy
// rotation, circuit breaking, classification, retries, checkpointing, and
// the pause safeguard, behind one Fetch call and a resumable job runner.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sportsight/scout/internal/checkpoint"
	"github.com/sportsight/scout/internal/core/domain"
	"github.com/sportsight/scout/internal/fetch/backoff"
	"github.com/sportsight/scout/internal/fetch/breaker"
	"github.com/sportsight/scout/internal/fetch/classify"
	"github.com/sportsight/scout/internal/fetch/proxy"
	"github.com/sportsight/scout/internal/fetch/ratelimit"
	"github.com/sportsight/scout/internal/fetch/transport"
	"github.com/sportsight/scout/internal/monitor"
)

// Config holds orchestrator tuning.
type Config struct {
	Workers       int           `yaml:"workers"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	PauseDuration time.Duration `yaml:"pause_duration"`
}

// DefaultConfig returns the standard orchestrator tuning.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		PauseDuration: 5 * time.Minute,
	}
}

// Deps are the collaborating components. Pool, Store, Alerts and Jobs are
// optional; nil disables the corresponding behavior.
type Deps struct {
	Transport  *transport.HTTP
	Classifier *classify.Classifier
	Limiters   *ratelimit.Registry
	Breakers   *breaker.Registry
	Pool       *proxy.Pool
	Store      checkpoint.Store
	Alerts     monitor.Sink
	Jobs       *monitor.JobMonitor
	Logger     *slog.Logger
}

// Orchestrator drives resilient fetches. Every request flows through the
// per-domain limiter, an optional proxy, and the per-domain breaker; every
// failure is classified and fed back into the adaptive components.
type Orchestrator struct {
	cfg        Config
	transport  *transport.HTTP
	classifier *classify.Classifier
	limiters   *ratelimit.Registry
	breakers   *breaker.Registry
	pool       *proxy.Pool
	store      checkpoint.Store
	alerts     monitor.Sink
	jobs       *monitor.JobMonitor
	tracker    *ErrorTracker
	logger     *slog.Logger

	pauseMu     sync.Mutex
	pausedUntil time.Time
}

// New creates an orchestrator and wires breaker state transitions into
// metrics and alerting.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Transport == nil {
		return nil, errors.New("orchestrator requires a transport")
	}
	if deps.Limiters == nil || deps.Breakers == nil {
		return nil, errors.New("orchestrator requires limiter and breaker registries")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.PauseDuration <= 0 {
		cfg.PauseDuration = DefaultConfig().PauseDuration
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.NewClassifier(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	o := &Orchestrator{
		cfg:        cfg,
		transport:  deps.Transport,
		classifier: deps.Classifier,
		limiters:   deps.Limiters,
		breakers:   deps.Breakers,
		pool:       deps.Pool,
		store:      deps.Store,
		alerts:     deps.Alerts,
		jobs:       deps.Jobs,
		tracker:    NewErrorTracker(),
		logger:     deps.Logger,
	}

	o.breakers.OnStateChange(func(name string, from, to breaker.State) {
		monitor.BreakerState.WithLabelValues(name).Set(float64(to))
		o.logger.Warn("circuit breaker state changed",
			"resource", name, "from", from.String(), "to", to.String())
		if to == breaker.StateOpen {
			o.alert(context.Background(), "breaker", domain.SeverityHigh,
				fmt.Sprintf("circuit opened for %s", name))
		}
	})

	return o, nil
}

// Tracker exposes the shared error window, mainly for the health surface.
func (o *Orchestrator) Tracker() *ErrorTracker { return o.tracker }

func (o *Orchestrator) alert(ctx context.Context, component string, sev domain.Severity, msg string) {
	monitor.AlertsTotal.WithLabelValues(component, string(sev)).Inc()
	if o.alerts == nil {
		return
	}
	if err := o.alerts.Send(ctx, monitor.NewAlert(component, sev, msg)); err != nil {
		o.logger.Warn("alert delivery failed", "component", component, "error", err)
	}
}

// Fetch performs one resilient fetch: limiter admission, proxy selection,
// breaker-guarded transport call, classification feedback, and adaptive
// retries. An open breaker fails fast without consuming retry attempts.
func (o *Orchestrator) Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	host := req.Host()
	strategy := backoff.NewAdaptive(o.cfg.MaxAttempts)
	strategy.Base = o.cfg.BaseDelay

	var resp *domain.Response
	rc, err := backoff.Do(ctx, strategy, o.classifier, func(ctx context.Context) error {
		return o.attempt(ctx, host, req, &resp)
	})

	if rc.Attempt > 1 {
		monitor.RetriesTotal.WithLabelValues(host).Add(float64(rc.Attempt - 1))
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// attempt runs a single try of the pipeline and feeds the outcome back into
// the limiter, proxy pool and error tracker.
func (o *Orchestrator) attempt(ctx context.Context, host string, req *domain.Request, out **domain.Response) error {
	if err := o.limiters.Acquire(ctx, host); err != nil {
		return err
	}

	var p *proxy.Proxy
	tr := domain.Transport(o.transport)
	if o.pool != nil && o.pool.Size() > 0 {
		p = o.pool.Get()
		if p == nil {
			o.alert(ctx, "proxy", domain.SeverityHigh, "no proxy available")
			return &domain.FetchError{Kind: domain.KindProxy, Message: "no proxy available"}
		}
		tr = o.transport.Via(p.URL)
	}

	var resp *domain.Response
	err := o.breakers.Get(host).Call(ctx, func(ctx context.Context) error {
		var ferr error
		resp, ferr = tr.Do(ctx, req)
		return ferr
	})

	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			monitor.FetchesTotal.WithLabelValues(host, "rejected").Inc()
			return err
		}
		o.feedFailure(ctx, host, p, err)
		return err
	}

	o.feedSuccess(host, p, resp.Latency)
	*out = resp
	return nil
}

func (o *Orchestrator) feedSuccess(host string, p *proxy.Proxy, latency time.Duration) {
	o.limiters.OnSuccess(host)
	if p != nil {
		o.pool.RecordSuccess(p, latency)
	}
	o.tracker.RecordSuccess()

	monitor.FetchesTotal.WithLabelValues(host, "success").Inc()
	monitor.FetchLatency.WithLabelValues(host).Observe(latency.Seconds())
	if stats, ok := o.limiters.Stats()[host]; ok {
		monitor.LimiterRate.WithLabelValues(host).Set(stats.Rate)
	}
}

func (o *Orchestrator) feedFailure(ctx context.Context, host string, p *proxy.Proxy, err error) {
	cls := o.classifier.Classify(err)

	switch cls.Category {
	case classify.CategoryRateLimit:
		o.limiters.OnRateLimit(host, cls.RetryAfter)
	default:
		o.limiters.OnError(host)
	}

	// only route-level failures count against the proxy; an HTTP status
	// means the route itself worked
	if p != nil {
		switch cls.Category {
		case classify.CategoryNetwork, classify.CategoryTimeout, classify.CategoryProxy:
			o.pool.RecordFailure(p)
		}
	}

	o.tracker.RecordFailure(cls)

	monitor.FetchesTotal.WithLabelValues(host, "error").Inc()
	monitor.FetchErrorsTotal.WithLabelValues(host, string(cls.Category)).Inc()
	if stats, ok := o.limiters.Stats()[host]; ok {
		monitor.LimiterRate.WithLabelValues(host).Set(stats.Rate)
	}

	if cls.Alert {
		o.alert(ctx, "fetch", cls.Severity, fmt.Sprintf("%s: %s", host, cls.Message))
	}

	o.logger.Debug("fetch attempt failed",
		"host", host,
		"category", string(cls.Category),
		"retryable", cls.Retryable,
		"error", err,
	)
}

// Unit is one fetchable work item in a job. ID is the unit's ordinal
// position; resume progress is tracked as a contiguous watermark over IDs.
type Unit struct {
	ID      int
	Request *domain.Request
}

// Handler consumes a fetched response for one unit. A returned error marks
// the unit as a parse failure: it is counted and skipped, never retried.
type Handler func(ctx context.Context, unit Unit, resp *domain.Response) error

// Job is a named batch of units processed by a worker pool with durable
// progress.
type Job struct {
	Name    string
	Type    checkpoint.Type
	Units   []Unit
	Handler Handler
}

// progressState tracks unit completion as a contiguous watermark: units
// [0, watermark) are done. Out-of-order completions are held until the gap
// closes, so a resume never skips an unfinished unit.
type progressState struct {
	mu        sync.Mutex
	done      map[int]bool
	watermark int
}

func (ps *progressState) complete(id int) (watermark int, advanced bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.done[id] = true
	before := ps.watermark
	for ps.done[ps.watermark] {
		delete(ps.done, ps.watermark)
		ps.watermark++
	}
	return ps.watermark, ps.watermark != before
}

// RunJob processes the job's units through a worker pool, resuming from the
// stored checkpoint and saving progress as the watermark advances. Unit
// failures are counted and skipped; the run only aborts on context
// cancellation or when the pause safeguard keeps tripping.
func (o *Orchestrator) RunJob(ctx context.Context, job Job) error {
	if job.Handler == nil {
		return errors.New("job requires a handler")
	}

	start := 0
	if o.store != nil {
		cp, err := o.store.Load(ctx, job.Name)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint for %s: %w", job.Name, err)
		}
		if cp != nil {
			if n, err := strconv.Atoi(cp.Value); err == nil && n > 0 {
				start = n
				o.logger.Info("resuming job from checkpoint",
					"job", job.Name, "completed", n, "total", len(job.Units))
			}
		}
	}

	if o.jobs != nil {
		o.jobs.StartJob(job.Name)
		defer o.jobs.FinishJob(job.Name)
	}

	if start >= len(job.Units) {
		o.logger.Info("job already complete", "job", job.Name)
		return nil
	}

	ps := &progressState{done: make(map[int]bool), watermark: start}

	units := make(chan Unit)
	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range units {
				o.runUnit(ctx, job, unit, ps)
			}
		}()
	}

feed:
	for _, unit := range job.Units {
		if unit.ID < start {
			continue
		}
		select {
		case <-ctx.Done():
			break feed
		case units <- unit:
		}
	}
	close(units)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	o.logger.Info("job finished",
		"job", job.Name,
		"completed", ps.watermark,
		"total", len(job.Units),
	)
	return nil
}

// runUnit fetches and handles one unit, then advances the checkpoint.
func (o *Orchestrator) runUnit(ctx context.Context, job Job, unit Unit, ps *progressState) {
	if err := o.waitIfPaused(ctx, job.Name); err != nil {
		return
	}

	resp, err := o.Fetch(ctx, unit.Request)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		cls := o.classifier.Classify(err)
		if o.jobs != nil {
			o.jobs.RecordFailure(job.Name, string(cls.Category))
		}
		o.logger.Warn("unit failed",
			"job", job.Name, "unit", unit.ID, "category", string(cls.Category), "error", err)
		return
	}

	if err := job.Handler(ctx, unit, resp); err != nil {
		// parse failures are never retried, the payload will not improve
		cls := o.classifier.Classify(&domain.FetchError{
			Kind: domain.KindParse,
			Err:  err,
		})
		o.tracker.RecordFailure(cls)
		if o.jobs != nil {
			o.jobs.RecordFailure(job.Name, string(cls.Category))
		}
		o.logger.Warn("unit skipped, payload unusable",
			"job", job.Name, "unit", unit.ID, "error", err)
		return
	}

	if o.jobs != nil {
		o.jobs.RecordItem(job.Name)
	}

	watermark, advanced := ps.complete(unit.ID)
	if !advanced {
		return
	}
	o.saveProgress(ctx, job, watermark)
}

func (o *Orchestrator) saveProgress(ctx context.Context, job Job, watermark int) {
	monitor.CheckpointProgress.WithLabelValues(job.Name).
		Set(float64(watermark) / float64(len(job.Units)) * 100)

	if o.store == nil {
		return
	}
	cp := &checkpoint.Checkpoint{
		JobName:      job.Name,
		Type:         job.Type,
		Value:        strconv.Itoa(watermark),
		TotalItems:   len(job.Units),
		ScrapedItems: watermark,
	}
	if err := o.store.Save(ctx, cp); err != nil {
		o.logger.Warn("checkpoint save failed", "job", job.Name, "error", err)
	}
}

// waitIfPaused trips the pause safeguard when the error tracker says the
// run should stop hammering, and blocks callers until the pause elapses.
func (o *Orchestrator) waitIfPaused(ctx context.Context, jobName string) error {
	o.pauseMu.Lock()
	if pause, reason := o.tracker.ShouldPause(); pause && time.Now().After(o.pausedUntil) {
		o.pausedUntil = time.Now().Add(o.cfg.PauseDuration)
		o.tracker.Reset()
		o.logger.Error("pausing run", "job", jobName, "reason", reason,
			"duration", o.cfg.PauseDuration)
		o.alert(ctx, "orchestrator", domain.SeverityCritical,
			fmt.Sprintf("run paused: %s", reason))
	}
	until := o.pausedUntil
	o.pauseMu.Unlock()

	wait := time.Until(until)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
