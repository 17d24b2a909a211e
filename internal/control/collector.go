// Package control is the composition root: it builds the fetch pipeline
// from configuration and manages the collector lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sportsight/scout/internal/checkpoint"
	"github.com/sportsight/scout/internal/core/config"
	"github.com/sportsight/scout/internal/core/domain"
	"github.com/sportsight/scout/internal/core/worker"
	"github.com/sportsight/scout/internal/fetch/breaker"
	"github.com/sportsight/scout/internal/fetch/orchestrator"
	"github.com/sportsight/scout/internal/fetch/proxy"
	"github.com/sportsight/scout/internal/fetch/ratelimit"
	"github.com/sportsight/scout/internal/fetch/transport"
	redisclient "github.com/sportsight/scout/internal/infra/redis"
	"github.com/sportsight/scout/internal/infra/storage/postgres"
	"github.com/sportsight/scout/internal/monitor"
)

// Collector is the main application struct managing the fetch pipeline
// lifecycle.
type Collector struct {
	cfg          *config.AppConfig
	orch         *orchestrator.Orchestrator
	pool         *proxy.Pool
	store        checkpoint.Store
	closeStore   func()
	healthServer *monitor.Server
	pruner       *worker.Pruner
	jobs         *monitor.JobMonitor
	handler      orchestrator.Handler
	log          *slog.Logger
}

// OpenStore builds the checkpoint store selected by configuration and
// returns a close function for any underlying connection.
func OpenStore(ctx context.Context, cfg *config.AppConfig) (checkpoint.Store, func(), error) {
	switch cfg.Checkpoint.Backend {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		slog.Info("Using PostgreSQL checkpoint store")
		return postgres.NewCheckpointStore(db), func() { _ = db.Close() }, nil

	case "redis":
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using Redis checkpoint store")
		return redisclient.NewCheckpointStore(client), func() { _ = client.Close() }, nil

	case "memory":
		slog.Info("Using in-memory checkpoint store")
		return checkpoint.NewMemoryStore(), func() {}, nil

	default:
		fs, err := checkpoint.NewFileStore(cfg.Checkpoint.Dir)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using file checkpoint store", "dir", cfg.Checkpoint.Dir)
		return fs, func() {}, nil
	}
}

// NewCollector creates a Collector with all dependencies initialized.
func NewCollector(cfg *config.AppConfig) (*Collector, error) {
	c := &Collector{
		cfg:  cfg,
		jobs: monitor.NewJobMonitor(),
		log:  slog.Default(),
	}

	// 1. Checkpoint storage
	store, closeStore, err := OpenStore(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	c.store = store
	c.closeStore = closeStore

	// 2. Transport and proxy pool
	tr := transport.New(transport.Options{
		Timeout:   cfg.Fetch.Timeout.Std(),
		UserAgent: cfg.Fetch.UserAgent,
	})

	if len(cfg.Proxy.URLs) > 0 {
		c.pool = proxy.NewPool(proxy.Config{
			URLs:                cfg.Proxy.URLs,
			Strategy:            proxy.Strategy(cfg.Proxy.Strategy),
			HealthCheckURL:      cfg.Proxy.HealthCheckURL,
			HealthCheckInterval: cfg.Proxy.HealthCheckInterval.Std(),
		}, transport.NewProber(tr))
		c.log.Info("Proxy pool initialized", "size", c.pool.Size())
	}

	// 3. Limiters and breakers
	limiters := ratelimit.NewRegistry(
		cfg.RateLimit.BaseRate, cfg.RateLimit.MinRate, cfg.RateLimit.MaxRate)
	for _, src := range cfg.Sources {
		if src.RateLimit > 0 {
			limiters.Configure(sourceHost(src), src.RateLimit)
		}
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout.Std(),
	})

	// 4. Orchestrator
	orch, err := orchestrator.New(orchestrator.Config{
		Workers:       cfg.Fetch.Workers,
		MaxAttempts:   cfg.Fetch.MaxAttempts,
		BaseDelay:     cfg.Fetch.BaseDelay.Std(),
		PauseDuration: cfg.Fetch.PauseDuration.Std(),
	}, orchestrator.Deps{
		Transport: tr,
		Limiters:  limiters,
		Breakers:  breakers,
		Pool:      c.pool,
		Store:     c.store,
		Alerts:    monitor.NewSlogSink(nil),
		Jobs:      c.jobs,
	})
	if err != nil {
		return nil, err
	}
	c.orch = orch

	// 5. Health surface and pruner
	healthMon := monitor.NewMonitor(c.jobs, breakers, limiters, c.pool, c.store)
	c.healthServer = monitor.NewServer(healthMon, cfg.Server.Port)
	c.pruner = worker.NewPruner(c.store, cfg.Checkpoint.RetentionDays)

	c.handler = c.defaultHandler
	return c, nil
}

// sourceHost resolves the host a source's limiter and breaker key on.
func sourceHost(src config.SourceConfig) string {
	req := &domain.Request{URL: fmt.Sprintf(src.URLTemplate, 1)}
	return req.Host()
}

// SetHandler replaces the per-page handler. Call before Start.
func (c *Collector) SetHandler(h orchestrator.Handler) {
	c.handler = h
}

// defaultHandler only validates that the payload is usable; consumers that
// parse match data plug in their own handler via SetHandler.
func (c *Collector) defaultHandler(ctx context.Context, unit orchestrator.Unit, resp *domain.Response) error {
	if len(resp.Body) == 0 {
		return errors.New("empty payload")
	}
	c.log.Debug("page fetched",
		"url", unit.Request.URL,
		"bytes", len(resp.Body),
		"latency", resp.Latency,
	)
	return nil
}

// Orchestrator exposes the fetch pipeline for embedding callers.
func (c *Collector) Orchestrator() *orchestrator.Orchestrator {
	return c.orch
}

// buildJob expands a source into a fetch job, one unit per page.
func (c *Collector) buildJob(src config.SourceConfig) orchestrator.Job {
	header := http.Header{}
	for k, v := range src.Header {
		header.Set(k, v)
	}

	units := make([]orchestrator.Unit, src.Pages)
	for i := range units {
		units[i] = orchestrator.Unit{
			ID: i,
			Request: &domain.Request{
				URL:    fmt.Sprintf(src.URLTemplate, i+1),
				Header: header,
			},
		}
	}

	return orchestrator.Job{
		Name:    src.Name,
		Type:    checkpoint.TypePage,
		Units:   units,
		Handler: c.handler,
	}
}

// Start starts the collector and all its components.
func (c *Collector) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := c.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("Health server failed", "error", err)
		}
	}()

	// Start proxy health checking
	if c.pool != nil {
		go c.pool.Start(ctx)
	}

	// Start checkpoint pruner
	go c.pruner.Start(ctx)

	// Start metrics updater
	go c.runMetricsUpdater(ctx)

	// Run source jobs
	go c.runJobs(ctx)

	return nil
}

// runJobs processes every configured source sequentially; each job fans
// out internally across the worker pool.
func (c *Collector) runJobs(ctx context.Context) {
	for _, src := range c.cfg.Sources {
		if ctx.Err() != nil {
			return
		}
		c.log.Info("Starting job", "job", src.Name, "pages", src.Pages)
		if err := c.orch.RunJob(ctx, c.buildJob(src)); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error("Job failed", "job", src.Name, "error", err)
		}
	}
	c.log.Info("All jobs finished", "count", len(c.cfg.Sources))
}

// Stop stops the collector.
func (c *Collector) Stop(ctx context.Context) error {
	c.log.Info("Stopping collector...")

	if c.closeStore != nil {
		c.closeStore()
	}

	return c.healthServer.Stop(ctx)
}

func (c *Collector) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.pool != nil {
				stats := c.pool.Stats()
				monitor.ProxiesTotal.Set(float64(stats.Total))
				monitor.ProxiesAvailable.Set(float64(stats.Available))
			}
		}
	}
}
