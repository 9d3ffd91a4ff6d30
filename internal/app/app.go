// Package app assembles the service from configuration and owns the
// lifecycle of everything it opens.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"trafficwatch/internal/health"
	"trafficwatch/internal/platform/config"
	"trafficwatch/internal/platform/httpserver"
	httpmetrics "trafficwatch/internal/platform/metrics"
	"trafficwatch/internal/platform/postgres"
	platformredis "trafficwatch/internal/platform/redis"
	"trafficwatch/internal/violation/events"
	"trafficwatch/internal/violation/handler"
	"trafficwatch/internal/violation/metrics"
	"trafficwatch/internal/violation/registry"
	"trafficwatch/internal/violation/service"
	"trafficwatch/internal/violation/store"
	"trafficwatch/internal/violation/validator"
	"trafficwatch/pkg/platform/circuit"
)

// Version is reported by the banner endpoint. Overridden at build time.
var Version = "1.0.0"

// kafkaPartitions is used when the events topic has to be created.
const kafkaPartitions = 3

type recordStore interface {
	service.Store
	Ping(ctx context.Context) error
}

// App is a fully wired service instance.
type App struct {
	cfg        config.Config
	logger     *slog.Logger
	registry   *registry.Holder
	store      recordStore
	dispatcher *events.Dispatcher
	sink       events.Sink
	router     http.Handler

	db    *sql.DB
	redis *platformredis.Client
}

// New opens the configured backends and wires the HTTP surface. On error
// everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	reg, err := loadRegistry(cfg.Registry)
	if err != nil {
		return nil, err
	}
	a.registry = registry.NewHolder(reg)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	violationMetrics := metrics.New(promReg)

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	reporterOpts := []health.Option{
		health.WithTimeout(cfg.Health.ProbeTimeout),
		health.WithLogger(logger),
	}
	if err := a.openEvents(ctx, violationMetrics); err != nil {
		return nil, err
	}
	if kafka, ok := a.sink.(*events.KafkaSink); ok {
		reporterOpts = append(reporterOpts, health.WithDependency("kafka", kafka.Ping))
	}

	svc := service.New(a.store,
		validator.New(a.registry, validator.WithClockSkew(cfg.Registry.ClockSkew)),
		service.WithLogger(logger),
		service.WithMetrics(violationMetrics),
		service.WithPublisher(a.dispatcher),
	)
	query := service.NewQueryService(a.store,
		service.WithQueryLogger(logger),
		service.WithQueryMetrics(violationMetrics),
	)
	reporter := health.NewReporter(a.store.Ping, reporterOpts...)

	a.router = NewRouter(RouterConfig{
		Logger:         logger,
		Metrics:        httpmetrics.New(promReg),
		Gatherer:       promReg,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	},
		handler.New(svc, query, a.registry, logger),
		health.NewHandler(reporter),
	)
	return a, nil
}

func loadRegistry(cfg config.RegistryConfig) (*registry.Registry, error) {
	if cfg.Path == "" {
		return registry.Default(), nil
	}
	reg, err := registry.Load(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load violation registry: %w", err)
	}
	return reg, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, a.cfg.Postgres)
		if err != nil {
			return err
		}
		a.db = db
		if a.cfg.Postgres.AutoMigrate {
			if err := store.Migrate(ctx, db); err != nil {
				return err
			}
		}
		a.store = store.NewPostgres(db)
	case config.StoreRedis:
		client, err := platformredis.New(ctx, a.cfg.Redis)
		if err != nil {
			return err
		}
		a.redis = client
		a.store = store.NewRedis(client.Client, store.WithKeyPrefix(a.cfg.Redis.KeyPrefix))
	default:
		a.store = store.NewInMemory()
	}
	a.logger.InfoContext(ctx, "record store ready", "backend", a.cfg.Store.Backend)
	return nil
}

func (a *App) openEvents(ctx context.Context, m *metrics.Metrics) error {
	opts := []events.Option{
		events.WithLogger(a.logger),
		events.WithMetrics(m),
		events.WithBufferSize(a.cfg.Kafka.BufferSize),
	}
	if a.cfg.Kafka.Enabled() {
		sink, err := events.NewKafkaSink(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		a.sink = sink
		if err := sink.EnsureTopic(ctx, kafkaPartitions, 1); err != nil {
			a.logger.WarnContext(ctx, "could not ensure events topic", "topic", a.cfg.Kafka.Topic, "error", err)
		}
		opts = append(opts, events.WithBreaker(circuit.New("kafka",
			circuit.WithFailureThreshold(a.cfg.Kafka.BreakerFailures),
			circuit.WithCooldown(a.cfg.Kafka.BreakerCooldown),
		)))
	} else {
		a.sink = events.NewLogSink(a.logger)
	}
	a.dispatcher = events.NewDispatcher(a.sink, opts...)
	return nil
}

// Router returns the HTTP handler.
func (a *App) Router() http.Handler {
	return a.router
}

// Run serves HTTP, delivers events and watches the registry file until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := httpserver.New(a.cfg.Server.Addr, a.router)
	g.Go(func() error {
		a.logger.InfoContext(gctx, "starting trafficwatch", "addr", a.cfg.Server.Addr, "version", Version)
		err := httpserver.Run(gctx, srv, a.cfg.Server.ShutdownTimeout)
		a.dispatcher.Close()
		return err
	})
	g.Go(func() error {
		return a.dispatcher.Run(gctx)
	})
	if a.cfg.Registry.Path != "" && a.cfg.Registry.Watch {
		g.Go(func() error {
			return registry.Watch(gctx, a.cfg.Registry.Path, a.registry, a.logger)
		})
	}
	return g.Wait()
}

// Close releases backend connections. Safe to call on a partially built App.
func (a *App) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.sink != nil {
		_ = a.sink.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
