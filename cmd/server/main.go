// Package main starts the oroio daemon: it serves the key store files and
// the key management API to the local web UI.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/oroio/internal/app"
	"github.com/atinyakov/oroio/internal/config"
	"github.com/atinyakov/oroio/internal/db"
	"github.com/atinyakov/oroio/internal/logger"
	"github.com/atinyakov/oroio/internal/server/handler/http"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, config file and environment configuration.
	options, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(2)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Wire repositories, usage fetcher and the key service.
	a, err := app.New(options, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot init application", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	// Prune old usage history when it is enabled.
	if a.DB != nil {
		db.StartHistoryCleaner(ctx, a.DB, time.Hour, options.HistoryRetention, zapLogger)
	}

	// Create HTTP handlers for the API and the raw data files.
	keysHandler := &http.KeysHandler{KeyService: a.Keys, Log: zapLogger}
	dataHandler := &http.DataHandler{Dir: options.DataDir, Log: zapLogger}

	// Build the router with middleware and routes.
	router := http.NewRouter(keysHandler, dataHandler, zapLogger, options.WebDir)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zapLogger.Info("starting HTTP server",
		zap.String("addr", options.Addr),
		zap.String("data_dir", options.DataDir),
		zap.Bool("history", a.DB != nil),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}
