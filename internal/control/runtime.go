package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/redeliver/internal/core/config"
	"github.com/vietddude/redeliver/internal/functions"
	"github.com/vietddude/redeliver/internal/handling/admission"
	"github.com/vietddude/redeliver/internal/handling/invoker"
	"github.com/vietddude/redeliver/internal/handling/observe"
	"github.com/vietddude/redeliver/internal/handling/retry"
	"github.com/vietddude/redeliver/internal/health"
	"github.com/vietddude/redeliver/internal/infra/httpclient"
	"github.com/vietddude/redeliver/internal/infra/reporting"
	"github.com/vietddude/redeliver/internal/stream"
	"github.com/vietddude/redeliver/internal/transport/grpcserver"
	"github.com/vietddude/redeliver/internal/transport/httpserver"
)

// Runtime is the main application struct that owns every component.
type Runtime struct {
	cfg        config.AppConfig
	stores     *Stores
	registry   *invoker.Registry
	consumers  []*stream.Consumer
	publisher  *stream.Publisher
	breaker    *reporting.BreakerReporter
	healthMon  *health.Monitor
	httpServer *httpserver.Server
	grpcServer *grpcserver.Server
	log        *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewRuntime creates a Runtime with all dependencies initialized.
func NewRuntime(ctx context.Context, cfg config.AppConfig, log *slog.Logger) (*Runtime, error) {
	if log == nil {
		log = slog.Default()
	}

	// 1. Storage
	stores, err := OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// 2. Failure and observability sinks
	breaker := reporting.NewBreakerReporter(
		reporting.NewStoreReporter(stores.Failures),
		reporting.BreakerConfig{
			Name:                stores.Backend + "_failure_store",
			ConsecutiveFailures: cfg.Reporting.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Reporting.Breaker.OpenTimeout,
		},
		log,
	)
	reporter := reporting.Multi{reporting.NewLogReporter(log), breaker}
	recorder := observe.NewRecorder(log, stores.Logs, 0)
	classifier := retry.NewClassifier(reporter, cfg.Handling.ReportTimeout(), log)

	// 3. Event functions
	var invokers []*invoker.Invoker
	for name, handler := range functions.EventHandlers(log) {
		filter := admission.NewFilter(name, cfg.Handling.MaxAge(), recorder)
		invokers = append(invokers, invoker.New(name, handler, filter, classifier, log))
	}
	registry := invoker.NewRegistry(invokers...)

	// 4. Stream consumers and publisher
	var consumers []*stream.Consumer
	var publisher *stream.Publisher
	if stores.Redis != nil {
		publisher = stream.NewPublisher(stores.Redis.RDB(), log)

		for _, cc := range cfg.Consumers {
			inv, ok := registry.Get(cc.Function)
			if !ok {
				stores.Close()
				return nil, fmt.Errorf("consumer for stream %s: unknown function %q", cc.Stream, cc.Function)
			}
			consumers = append(consumers, stream.NewConsumer(stores.Redis.RDB(), stream.Config{
				Stream:          cc.Stream,
				Group:           cc.Group,
				Consumer:        cc.Consumer,
				BatchSize:       cc.BatchSize,
				Block:           cc.Block,
				MinIdle:         cc.MinIdle,
				ReclaimInterval: cc.ReclaimInterval,
			}, inv, log))
		}
	}

	// 5. HTTP functions share one pooled client and the publisher
	deps := functions.HTTPDeps{
		Pool:       httpclient.New(cfg.Functions.HTTPTimeout),
		PoolingURL: cfg.Functions.PoolingURL,
		Logs:       stores.Logs,
	}
	if publisher != nil {
		deps.Publisher = publisher
	}
	httpFuncs := functions.NewHTTP(deps, log)

	// 6. Health
	healthMon := health.NewMonitor(healthChecks(stores, breaker)...)

	rt := &Runtime{
		cfg:        cfg,
		stores:     stores,
		registry:   registry,
		consumers:  consumers,
		publisher:  publisher,
		breaker:    breaker,
		healthMon:  healthMon,
		httpServer: httpserver.NewServer(cfg.Server.Port, healthMon, registry, httpFuncs.Routes(), log),
		log:        log,
	}
	if cfg.Server.GRPCPort > 0 {
		rt.grpcServer = grpcserver.New(healthMon, log)
	}
	return rt, nil
}

func healthChecks(stores *Stores, breaker *reporting.BreakerReporter) []health.Check {
	var checks []health.Check
	if stores.DB != nil {
		checks = append(checks, health.Check{Name: "database", Critical: true, Probe: stores.DB.Health})
	}
	if stores.Redis != nil {
		checks = append(checks, health.Check{Name: "redis", Critical: true, Probe: stores.Redis.Health})
	}
	checks = append(checks, health.Check{
		Name: "failure_sink",
		Probe: func(ctx context.Context) error {
			if state := breaker.State(); state == "open" {
				return errors.New("failure sink breaker is open")
			}
			return nil
		},
	})
	return checks
}

// Start starts every component in the background and returns.
func (r *Runtime) Start(ctx context.Context) error {
	for _, c := range r.consumers {
		if err := c.EnsureGroup(ctx); err != nil {
			return err
		}
	}

	ctx, r.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	r.group = g

	g.Go(func() error {
		if err := r.httpServer.Start(); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	if r.grpcServer != nil {
		addr := fmt.Sprintf(":%d", r.cfg.Server.GRPCPort)
		g.Go(func() error {
			return r.grpcServer.ListenAndServe(gctx, addr)
		})
	}

	if r.stores.DB != nil {
		r.stores.DB.StartMetricsCollector(gctx)
	}

	for _, c := range r.consumers {
		g.Go(func() error {
			return c.Run(gctx)
		})
	}

	r.log.Info("Runtime started",
		"functions", r.registry.Names(),
		"consumers", len(r.consumers),
		"storage", r.stores.Backend,
	)
	return nil
}

// Wait blocks until every component has stopped and returns the first error.
func (r *Runtime) Wait() error {
	if r.group == nil {
		return nil
	}
	return r.group.Wait()
}

// Stop shuts every component down and releases connections.
func (r *Runtime) Stop(ctx context.Context) error {
	r.log.Info("Stopping runtime...")

	if r.cancel != nil {
		r.cancel()
	}

	var errs []error
	if err := r.httpServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
	}
	if err := r.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := r.stores.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Registry returns the event function registry.
func (r *Runtime) Registry() *invoker.Registry {
	return r.registry
}

// Stores returns the repositories in use.
func (r *Runtime) Stores() *Stores {
	return r.stores
}

// Publisher returns the stream publisher, nil without Redis.
func (r *Runtime) Publisher() *stream.Publisher {
	return r.publisher
}

// Health returns the current health report.
func (r *Runtime) Health(ctx context.Context) health.HealthReport {
	return r.healthMon.CheckHealth(ctx)
}
