package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/safar/go-sql-marketplace/internal/config"
	"github.com/safar/go-sql-marketplace/internal/database"
	"github.com/safar/go-sql-marketplace/internal/events"
	"github.com/safar/go-sql-marketplace/internal/httpapi"
	"github.com/safar/go-sql-marketplace/internal/logging"
	"github.com/safar/go-sql-marketplace/internal/metrics"
	"github.com/safar/go-sql-marketplace/internal/orders"
	"github.com/safar/go-sql-marketplace/internal/reconcile"
	"github.com/safar/go-sql-marketplace/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Load config: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Info("Server exited")
}

// run returns once every resource it opened has been closed.
func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	logger.Info("Connected to database successfully")

	if err := database.RunMigrations(db, cfg.Database.MigrationsPath, database.MigrateUp); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "marketplace"),
	)
	m := metrics.New(registry)

	pg := store.NewPostgres(db, cfg.Kafka.Topic)
	svc := orders.NewService(orders.Dependencies{
		Catalog:   pg,
		Inventory: pg,
		Sellers:   pg,
		Orders:    pg,
		Intents:   pg,
	},
		orders.WithLogger(logger),
		orders.WithMetrics(m),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      httpapi.NewRouter(httpapi.NewHandler(svc, db, logger), m, logger, cfg.Server.RequestTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	reconciler := reconcile.New(pg, svc, reconcile.Config{
		Interval:    cfg.Reconcile.Interval,
		GracePeriod: cfg.Reconcile.GracePeriod,
		BatchSize:   cfg.Reconcile.BatchSize,
	}, logger)
	g.Go(func() error {
		return ignoreCanceled(reconciler.Run(gctx))
	})

	if cfg.Kafka.Enabled() {
		writer := events.NewWriter(cfg.Kafka.BrokerList())
		defer writer.Close()

		relay := events.NewRelay(pg, writer, events.RelayConfig{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
		}, logger, m)
		g.Go(func() error {
			return ignoreCanceled(relay.Run(gctx))
		})
	} else {
		logger.WithField("topic", cfg.Kafka.Topic).Warn("KAFKA_BROKERS not set, order events stay in the outbox")
	}

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
