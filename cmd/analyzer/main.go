// Command analyzer serves the query yield analyzer over HTTP.
//
// Usage:
//
//	go run ./cmd/analyzer [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/events"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/history"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/source"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analyzer service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m)
		defer shutdownMetrics(context.Background())
	}
	checker := health.NewChecker()

	platformLimiter := ratelimit.New(time.Second)
	defer platformLimiter.Close()
	breakerHook := func(name string, to resilience.State) {
		m.SetBreakerState(name, int(to))
	}
	sources := source.FromConfig(cfg.Platforms, cfg.Analyzer.SampleSize, platformLimiter, breakerHook)

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, platform caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			for i, src := range sources {
				sources[i] = source.NewCached(src, redisClient, cfg.Redis.CacheTTL, m)
			}
			slog.Info("platform cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	if redisClient != nil {
		checker.Register("redis", redisClient.Ping, true)
	}
	registry := source.NewRegistry(sources...)

	var store history.Store = history.NewMemory(1000)
	var snapshots *events.SnapshotStore
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := history.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("failed to migrate history schema", "error", err)
			os.Exit(1)
		}
		store = pg
		if cfg.Postgres.SnapshotInterval > 0 {
			snapshots = events.NewSnapshotStore(db)
			if err := snapshots.Migrate(ctx); err != nil {
				slog.Error("failed to migrate snapshot schema", "error", err)
				os.Exit(1)
			}
		}
		checker.Register("postgres", db.Ping, false)
		slog.Info("analysis history stored in postgres", "host", cfg.Postgres.Host)
	}

	aggregator := events.NewAggregator()
	var sink analyzer.EventSink = aggregator
	if cfg.Kafka.Enabled {
		topic := cfg.Kafka.Topics.AnalysisEvents
		producer := kafka.NewProducer(cfg.Kafka, topic)
		defer producer.Close()
		collector := events.NewCollector(producer, 1000)
		collector.Start(ctx)
		defer collector.Close()
		sink = collector

		consumer := kafka.NewConsumer(cfg.Kafka, topic, aggregator.Handle())
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("analysis event consumer error", "error", err)
			}
		}()
		slog.Info("analysis events published to kafka", "topic", topic)
	}
	if snapshots != nil {
		snapshotsDone := snapshots.StartPeriodicSave(ctx, aggregator, cfg.Postgres.SnapshotInterval)
		defer func() { <-snapshotsDone }()
	}

	a, err := analyzer.New(registry, cfg.Analyzer,
		analyzer.WithMetrics(m),
		analyzer.WithEvents(sink),
		analyzer.WithHistory(store),
		analyzer.WithSpanLogging(cfg.Tracing.Enabled),
	)
	if err != nil {
		slog.Error("failed to configure analyzer", "error", err)
		os.Exit(1)
	}
	for _, p := range registry.Platforms() {
		slog.Info("platform registered", "platform", p.Name, "boolean", p.Boolean)
	}

	clientLimiter := ratelimit.New(time.Minute)
	defer clientLimiter.Close()

	h := handler.New(a, store, aggregator)
	if snapshots != nil {
		h.WithSnapshots(snapshots)
	}
	router := handler.NewRouter(h, checker, handler.RouterConfig{
		Timeout:         cfg.Server.WriteTimeout,
		AllowOrigins:    cfg.Server.AllowOrigins,
		Limiter:         clientLimiter,
		ClientRateLimit: cfg.Server.ClientRateLimit,
		Metrics:         m,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + 5*time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		slog.Error("failed to listen", "addr", server.Addr, "error", err)
		os.Exit(1)
	}
	slog.Info("analyzer service listening", "addr", server.Addr)
	if err := serve(ctx, server, ln, cfg.Server.ShutdownTimeout); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analyzer service stopped")
}

// serve runs server on ln until ctx is cancelled, then shuts it down and
// returns only once in-flight requests have finished or timeout elapsed,
// so main's deferred cleanup never runs under a live handler.
func serve(ctx context.Context, server *http.Server, ln net.Listener, timeout time.Duration) error {
	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	if err := <-shutdownErr; err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	return nil
}
