package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"ppdb/internal/intake/events"
	"ppdb/internal/intake/handler"
	"ppdb/internal/intake/metrics"
	"ppdb/internal/intake/quota"
	"ppdb/internal/intake/sequence"
	"ppdb/internal/intake/service"
	"ppdb/internal/intake/store/application"
	"ppdb/internal/intake/store/intakeconfig"
	"ppdb/internal/platform/config"
	"ppdb/internal/platform/httpserver"
	"ppdb/internal/platform/logger"
	"ppdb/internal/platform/middleware"
	platformredis "ppdb/internal/platform/redis"
	httptransport "ppdb/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in internal/intake.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httptransport.HealthChecker{}

	// Stores: Postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		apps       application.Store  = application.NewInMemory()
		configs    intakeconfig.Store = intakeconfig.NewInMemory()
		quotaStore quota.Store        = quota.NewInMemory()
		seqStore   sequence.Store     = sequence.NewInMemory()
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}

		appStore := application.NewPostgres(db)
		cfgStore := intakeconfig.NewPostgres(db)
		qStore := quota.NewPostgres(db)
		sStore := sequence.NewPostgres(db)
		for _, ensure := range []func(context.Context) error{
			appStore.EnsureSchema,
			cfgStore.EnsureSchema,
			qStore.EnsureSchema,
			sStore.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
		}
		apps, configs, quotaStore, seqStore = appStore, cfgStore, qStore, sStore
		checks["database"] = dbChecker{db}
		log.Info("using postgres stores")
	}

	// Redis takes over sequence allocation when configured; its atomic INCR
	// keeps counters correct across replicas.
	if cfg.RedisURL != "" {
		rdb, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		seqStore = sequence.NewRedis(rdb.Client)
		checks["redis"] = rdb
		log.Info("using redis sequence counters")
	}

	allocator, err := sequence.New(seqStore, sequence.WithLogger(log))
	if err != nil {
		return err
	}
	quotas, err := quota.New(quotaStore)
	if err != nil {
		return err
	}

	// Event pipeline: Kafka when brokers are configured, the structured log
	// otherwise. Either way delivery is asynchronous.
	var sink events.Sink = events.LogSink{Logger: log}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("publishing events to kafka", "topic", cfg.KafkaTopic)
	}
	publisher := events.NewChannelPublisher(0)
	worker := events.NewWorker(sink, publisher.Inbox(), log)
	go func() { _ = worker.Run(ctx) }()

	svc, err := service.New(apps, configs, allocator, quotas,
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
		service.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Intake: handler.New(svc, log, middleware.NewHMACValidator(cfg.JWTSigningKey)),
		Logger: log,
		Checks: checks,
	})
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting intake server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

type dbChecker struct {
	db *sql.DB
}

func (c dbChecker) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
