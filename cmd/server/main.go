/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the circulation engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from environment
  2. Initialize SQLite store
  3. Build the notification dispatcher (inbox + stubs)
  4. Load the policy table (JSON file or defaults)
  5. Wire the engine, handler, router, and sweep scheduler
  6. Start server with graceful shutdown

CONFIGURATION (environment, CIRC_ prefix):
  CIRC_ADDR            Listen address (default: :8080)
  CIRC_DB_PATH         SQLite database path (default: circulation.db)
                       Use ":memory:" for an in-memory database
  CIRC_POLICY_PATH     Policy JSON file; empty means built-in defaults
  CIRC_SWEEP_INTERVAL  Overdue/reminder sweep interval (default: 1h)
  CIRC_DEBUG           Verbose development logging (default: false)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweep scheduler
  4. Close the database connection

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background sweeps
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/meridian/circulation-engine/api"
	"github.com/meridian/circulation-engine/circulation"
	"github.com/meridian/circulation-engine/factory"
	"github.com/meridian/circulation-engine/notify"
	"github.com/meridian/circulation-engine/store/sqlite"
)

// Config is the server configuration, read from CIRC_* variables.
type Config struct {
	Addr          string        `default:":8080"`
	DBPath        string        `split_words:"true" default:"circulation.db"`
	PolicyPath    string        `split_words:"true" default:""`
	SweepInterval time.Duration `split_words:"true" default:"1h"`
	Debug         bool          `default:"false"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("circ", &cfg); err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Store
	st, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer st.Close()

	// Notifications
	inbox := notify.NewInbox()
	dispatcher := notify.NewDispatcher(inbox,
		&notify.EmailStub{Logger: logger},
		&notify.SMSStub{Logger: logger},
		logger)

	// Policy
	policy, err := factory.LoadPolicyTable(cfg.PolicyPath)
	if err != nil {
		logger.Fatal("failed to load policy table", zap.Error(err))
	}

	// Engine and HTTP surface
	engine := circulation.NewEngine(st, dispatcher, nil, policy)
	handler := api.NewHandler(engine, inbox, logger)
	router := api.NewRouter(handler)

	// Background sweeps
	scheduler := api.NewSweepScheduler(engine, logger)
	scheduler.CheckInterval = cfg.SweepInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
