// Package main provides the CLI entry point for the alert engine.
// It loads configuration, wires the store, gateway, fanout and sweeps, and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/stargan-id/jaga-gizi-alerting/internal/config"
	"github.com/stargan-id/jaga-gizi-alerting/internal/database"
	"github.com/stargan-id/jaga-gizi-alerting/internal/escalation"
	"github.com/stargan-id/jaga-gizi-alerting/internal/fanout"
	"github.com/stargan-id/jaga-gizi-alerting/internal/gateway"
	"github.com/stargan-id/jaga-gizi-alerting/internal/handlers"
	"github.com/stargan-id/jaga-gizi-alerting/internal/lifecycle"
	"github.com/stargan-id/jaga-gizi-alerting/internal/memstore"
	"github.com/stargan-id/jaga-gizi-alerting/internal/policy"
	"github.com/stargan-id/jaga-gizi-alerting/internal/producer"
	"github.com/stargan-id/jaga-gizi-alerting/internal/resolver"
	"github.com/stargan-id/jaga-gizi-alerting/internal/router"
	"github.com/stargan-id/jaga-gizi-alerting/internal/rules"
	"github.com/stargan-id/jaga-gizi-alerting/internal/scanner"
	"github.com/stargan-id/jaga-gizi-alerting/internal/schedule"
	"github.com/stargan-id/jaga-gizi-alerting/internal/summary"
	"github.com/stargan-id/jaga-gizi-alerting/pkg/metrics"
	"github.com/stargan-id/jaga-gizi-alerting/pkg/shared"
)

// store is everything the engine needs from an alert store backend.
type store interface {
	scanner.Store
	lifecycle.Store
	escalation.Store
	resolver.Store
	summary.Store
	handlers.Store
	Ping(ctx context.Context) error
}

// publisher is a dispatch request sink that owns a connection.
type publisher interface {
	fanout.Publisher
	Close() error
}

func main() {
	// A missing .env is fine; the environment may already be populated.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	closeLog := setupLogging(cfg)
	defer closeLog()

	slog.Info("Starting alert-engine",
		"http_port", cfg.HTTPPort,
		"store_backend", cfg.StoreBackend,
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
		"kafka_brokers", cfg.KafkaBrokers,
		"notifications_ready_topic", cfg.NotificationsReadyTopic,
		"redis_addr", cfg.RedisAddr,
		"scheduler", cfg.SchedulerEnabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Alert-engine failed", "error", err)
		closeLog()
		os.Exit(1)
	}
	slog.Info("Alert-engine stopped")
}

// setupLogging installs the default slog logger. With LOG_FILE set, records are
// written to stdout and a rotating file.
func setupLogging(cfg *config.Config) func() {
	level, _ := cfg.SlogLevel() // validated
	var out io.Writer = os.Stdout
	closer := func() {}
	if cfg.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = func() { _ = file.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return closer
}

func run(ctx context.Context, cfg *config.Config) error {
	st, gw, dir, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	pub, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	instance, _ := os.Hostname()
	if instance == "" {
		instance = "alert-engine"
	}

	var (
		collector *metrics.Collector
		reader    *metrics.Reader
	)
	healthChecks := []handlers.Option{handlers.WithHealthCheck("store", st.Ping)}
	if cfg.RedisAddr != "" {
		rdb, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		collector = metrics.NewCollector(instance, rdb)
		reader = metrics.NewReader(rdb)
		healthChecks = append(healthChecks, handlers.WithHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		slog.Info("Successfully connected to Redis", "addr", cfg.RedisAddr)
	} else {
		collector = metrics.NewCollector(instance, nil)
	}
	collector.Start(ctx)
	defer collector.Stop()

	loaded, err := rules.LoadFrom(cfg.RulesFile)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	for _, w := range loaded.Warnings {
		slog.Warn("Rules file warning", "file", cfg.RulesFile, "warning", w)
	}

	pol := policy.Default()
	pol.DigestWindow = cfg.DigestWindow()
	pol.DigestMaxPerGroup = cfg.DigestMaxPerGroup

	fo := fanout.New(dir, pol, pub, fanout.WithMetrics(collector))
	sc, err := scanner.NewScanner(st, fo, gw, loaded.Rules, scanner.WithMetrics(collector))
	if err != nil {
		return fmt.Errorf("failed to build scanner: %w", err)
	}
	lc := lifecycle.NewService(st, fo)
	esc := escalation.NewSweeper(st, fo, pol, escalation.WithMetrics(collector))
	res := resolver.New(st, sc, resolver.WithMetrics(collector))

	opts := append(healthChecks, handlers.WithMetrics(collector))
	if reader != nil {
		opts = append(opts, handlers.WithMetricsReader(reader))
	}
	h := handlers.NewHandlers(handlers.Deps{
		Store:      st,
		Lifecycle:  lc,
		Scanner:    sc,
		Escalation: esc,
		Resolver:   res,
		Summary:    summary.NewAggregator(st),
		Digests:    fo,
	}, opts...)

	if cfg.SchedulerEnabled {
		sched := schedule.New(sc, esc, res, cfg.EscalationSchedule, cfg.ResolutionSchedule)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	server := router.NewServer(cfg.HTTPPort, h, router.Options{
		CronSecret: cfg.CronSecret,
		Metrics:    collector,
	})

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down HTTP server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Error shutting down server", "error", err)
		}
		slog.Info("HTTP server stopped")
		return nil
	case err := <-serverErrChan:
		return fmt.Errorf("http server: %w", err)
	}
}

// openStore connects the configured backend. The memory backend starts with an empty
// gateway and directory and is meant for local runs.
func openStore(cfg *config.Config) (store, gateway.Gateway, gateway.Directory, func(), error) {
	if cfg.StoreBackend == config.BackendMemory {
		slog.Warn("Using in-memory store; alerts are lost on restart")
		return memstore.New(), memstore.NewGateway(), memstore.NewDirectory(), func() {}, nil
	}

	slog.Info("Connecting to PostgreSQL database")
	db, err := database.NewDB(cfg.PostgresDSN)
	if err != nil {
		slog.Info("Tip: Start Postgres with 'docker compose up -d postgres' or ensure Postgres is running")
		return nil, nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		slog.Info("Database migrations applied")
	}
	return db, db.Gateway(), db.Directory(), func() { db.Close() }, nil
}

// openPublisher connects to Kafka, or logs dispatch requests when no brokers are configured.
func openPublisher(cfg *config.Config) (publisher, error) {
	if cfg.KafkaBrokers == "" {
		slog.Warn("No Kafka brokers configured; dispatch requests are only logged")
		return producer.LogPublisher{}, nil
	}
	slog.Info("Connecting to Kafka producer", "topic", cfg.NotificationsReadyTopic)
	p, err := producer.NewProducer(cfg.KafkaBrokers, cfg.NotificationsReadyTopic)
	if err != nil {
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	slog.Info("Successfully connected to Kafka producer")
	return p, nil
}
