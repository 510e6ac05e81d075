/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the réduction générale simulation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML file, env), then flags
  2. Initialize the structured logger and Prometheus collectors
  3. Build the rule engine (embedded parameters or RULES_FILE)
  4. Open the year store (sqlite, postgres or memory)
  5. Create API handler, router and idle-session janitor
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override configuration):
  -port    HTTP server port
  -driver  Store driver: sqlite, postgres, memory
  -db      SQLite path or PostgreSQL URL
           Use ":memory:" for an in-memory SQLite database
  -rules   Rule parameter YAML file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (ShutdownTimeout)
  3. Stop the janitor and close the store
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/reduction.db"

  # Run against PostgreSQL
  DB_DRIVER=postgres DATABASE_URL=postgres://localhost/reduction ./server

  # Run with the whole configuration in a file
  REDUCTION_CONFIG=./reduction.yaml ./server

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Store implementations
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/reduction-engine/api"
	"github.com/warp/reduction-engine/config"
	"github.com/warp/reduction-engine/generic"
	memstore "github.com/warp/reduction-engine/generic/store"
	"github.com/warp/reduction-engine/observability/metrics"
	"github.com/warp/reduction-engine/rules"
	"github.com/warp/reduction-engine/store/postgres"
	"github.com/warp/reduction-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "Store driver: sqlite, postgres, memory")
	flag.StringVar(&cfg.DatabaseURL, "db", cfg.DatabaseURL, "SQLite path or PostgreSQL URL")
	flag.StringVar(&cfg.RulesFile, "rules", cfg.RulesFile, "Rule parameter YAML file")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	metrics.Init()

	engine, err := newEngine(cfg.RulesFile)
	if err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	logger.Info("rules loaded", "years", engine.Parameters().SupportedYears())

	ctx := context.Background()
	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer closer.Close()

	handler := api.NewHandler(engine, store, logger, cfg.DefaultYear)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	janitor := api.NewSessionJanitor(handler, cfg.SessionTTL, logger)
	janitor.Start()
	defer janitor.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "driver", cfg.DBDriver, "default_year", cfg.DefaultYear)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newEngine(rulesFile string) (*rules.Engine, error) {
	if rulesFile == "" {
		return rules.NewDefaultEngine()
	}
	params, err := rules.LoadParameters(rulesFile)
	if err != nil {
		return nil, err
	}
	return rules.NewEngine(params)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(ctx context.Context, cfg config.Config) (generic.YearStore, io.Closer, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.DriverMemory:
		return memstore.NewMemory(), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", cfg.DBDriver)
}
