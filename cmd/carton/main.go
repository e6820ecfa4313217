// Package main is the entry point for the Carton S3-compatible object
// storage server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cartonstore/carton/internal/config"
	"github.com/cartonstore/carton/internal/logging"
	"github.com/cartonstore/carton/internal/metrics"
	"github.com/cartonstore/carton/internal/server"
)

func main() {
	configPath := flag.String("config", "carton.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 4578)")
	hostname := flag.String("hostname", "", "override bind address (default: from config or localhost)")
	directory := flag.String("directory", "", "override storage root directory")
	silent := flag.Bool("silent", false, "suppress all log output")
	indexDocument := flag.String("index-document", "", "key served for bucket-root and directory GETs")
	errorDocument := flag.String("error-document", "", "key served with 404 when a GET misses")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 10)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *hostname != "" {
		cfg.Server.Host = *hostname
	}
	if *directory != "" {
		cfg.Storage.Directory = *directory
	}
	if *silent {
		cfg.Logging.Silent = true
	}
	if *indexDocument != "" {
		cfg.Website.IndexDocument = *indexDocument
	}
	if *errorDocument != "" {
		cfg.Website.ErrorDocument = *errorDocument
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Shutdown.TimeoutSeconds = *shutdownTimeout
	}

	// Initialize structured logging.
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Silent, os.Stderr)

	// An unset storage root means a fresh temporary directory per run.
	if cfg.Storage.Directory == "" {
		dir, err := os.MkdirTemp("", "carton-")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create temp storage directory: %v\n", err)
			os.Exit(1)
		}
		cfg.Storage.Directory = dir
		slog.Info("using temporary storage directory", "dir", dir)
	}

	metrics.Register()

	srv, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	addr := server.Addr(cfg)

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Carton listening", "addr", addr, "directory", cfg.Storage.Directory)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// SIGTERM/SIGINT handler: stop accepting connections, wait for in-flight
	// requests with a timeout, then exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Shutdown.TimeoutSeconds)*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}
