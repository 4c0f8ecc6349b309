package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediauqi/money-tracker/internal/api/handlers"
	"github.com/mediauqi/money-tracker/internal/api/middleware"
	"github.com/mediauqi/money-tracker/internal/config"
	"github.com/mediauqi/money-tracker/internal/directory"
	"github.com/mediauqi/money-tracker/internal/kv"
	"github.com/mediauqi/money-tracker/internal/kv/memory"
	"github.com/mediauqi/money-tracker/internal/kv/sqlitekv"
	"github.com/mediauqi/money-tracker/internal/ledger"
	"github.com/mediauqi/money-tracker/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "Path to YAML config file (optional)")
		port       = flag.String("port", "", "HTTP server port (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New("info")
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.New(cfg.LogLevel)

	// Initialize the key-value store
	var store kv.Store
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		s, err := sqlitekv.Open(cfg.Store.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open store")
		}
		defer s.Close()
		store = s
		log.Info().Str("path", cfg.Store.Path).Msg("Using SQLite store")
	default:
		store = memory.NewStore()
		log.Warn().Msg("Using in-memory store - data is lost on restart")
	}

	// Wire the ledger and the account directory
	svc := ledger.NewService(store, log)
	dir := directory.New(store, svc)

	ledgerHandler := handlers.NewLedgerHandler(svc, log)
	accountsHandler := handlers.NewAccountsHandler(dir, svc, log)

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					handlers.NewRouter(ledgerHandler, accountsHandler),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting ledger server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
