package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/amirphl/simple-executor/internal/api"
	"github.com/amirphl/simple-executor/internal/config"
	"github.com/amirphl/simple-executor/internal/db"
	"github.com/amirphl/simple-executor/internal/db/conf"
	"github.com/amirphl/simple-executor/internal/exchange"
	"github.com/amirphl/simple-executor/internal/executor"
	"github.com/amirphl/simple-executor/internal/journal"
	"github.com/amirphl/simple-executor/internal/metrics"
	"github.com/amirphl/simple-executor/internal/notifier"
	"github.com/amirphl/simple-executor/internal/tracker"
	"github.com/amirphl/simple-executor/internal/utils"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.MustLoadConfig()

	logger, err := utils.NewLogger(cfg.LogFile, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()
	log.Infow("Starting Simple Executor", "mode", cfg.Mode, "listen", cfg.ListenAddr)

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infow("Received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		log.Errorw("Executor stopped with error", "err", err)
		logger.Sync()
		os.Exit(1)
	}
	log.Info("Shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	log := logger.Sugar()

	// Run migrations if enabled
	if cfg.RunMigration {
		if err := runMigrations(ctx, cfg.DBConnStr, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Closed orders always go to the file journal, and to Postgres when configured
	fileJournal, err := journal.OpenFile(cfg.JournalPath, cfg.JournalSync)
	if err != nil {
		return err
	}
	defer fileJournal.Close()
	journals := journal.NewMulti(fileJournal)

	var records api.RecordReader
	if cfg.DBConnStr != "" {
		dbConfig, err := conf.NewConfig(ctx, cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
		if err != nil {
			return fmt.Errorf("failed to create DB config: %w", err)
		}
		defer dbConfig.DB.Close()

		dbadapter, err := db.New(*dbConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		journals.Add(dbadapter)
		records = dbadapter
		log.Info("Connected to Postgres")
	}

	// Set up notification system
	notify := notifier.New(cfg.TelegramToken, cfg.TelegramChatID, cfg.NotificationRetries, cfg.NotificationDelay)

	m := metrics.New(prometheus.DefaultRegisterer)

	// Create exchange connection
	var ex exchange.Exchange = exchange.NewWallexExchange(cfg.WallexAPIKey, cfg.CommissionPercent, logger)
	if cfg.Mode == config.ModePaper {
		ex = exchange.NewPaperExchange(ex, cfg.CommissionPercent, logger)
	}
	log.Infow("Exchange ready", "exchange", ex.Name())

	t := tracker.New(ex, journals, tracker.Config{
		Interval: cfg.PollInterval,
		Logger:   logger,
		Metrics:  m,
		Notifier: notify,
	})
	exec := executor.New(t, executor.Config{
		Logger:   logger,
		Metrics:  m,
		Notifier: notify,
	})
	server := api.NewServer(exec, api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
		Gatherer:       prometheus.DefaultGatherer,
		Records:        records,
	})

	trackerDone := make(chan error, 1)
	go func() { trackerDone <- t.Run(ctx) }()

	if err := notify.SendWithRetry(ctx, fmt.Sprintf("Simple Executor started on %s (%s)", ex.Name(), cfg.Mode)); err != nil {
		log.Warnw("startup notification failed", "err", err)
	}

	serveErr := server.Start(ctx, cfg.ListenAddr)
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}

	if err := <-trackerDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if pending := t.Pending(); len(pending) > 0 {
		log.Warnw("Orders still open at shutdown", "orders", pending)
	}
	return nil
}

// runMigrations creates the database if it doesn't exist and applies scripts/schema.sql
func runMigrations(ctx context.Context, connStr string, log *zap.SugaredLogger) error {
	log.Info("Running database migrations...")

	// Parse connection string to extract database name
	u, err := url.Parse(connStr)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name not found in connection string")
	}

	// Connect to the postgres database to create ours
	base := *u
	base.Path = "/postgres"
	baseDB, err := sql.Open("postgres", base.String())
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer baseDB.Close()

	var exists bool
	err = baseDB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}

	if !exists {
		log.Infow("Creating database", "name", dbName)
		if _, err := baseDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	target, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer target.Close()

	schemaPath, err := conf.FindSchema()
	if err != nil {
		return err
	}
	schemaSQL, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}

	if err := conf.ApplySchema(ctx, target, string(schemaSQL)); err != nil {
		return err
	}

	log.Info("Database migrations completed successfully")
	return nil
}
