package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/efreitasn/hookrelay/internal/config"
	"github.com/efreitasn/hookrelay/internal/engine"
	"github.com/efreitasn/hookrelay/internal/handler"
	"github.com/efreitasn/hookrelay/internal/service"
	"github.com/efreitasn/hookrelay/internal/store"
	"github.com/spf13/pflag"
)

func main() {
	// Load configuration.
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stdout, "Usage of hookrelay:\n%s", config.Usage())
		os.Exit(0)
	}
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Handle --healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if cfg.Healthcheck {
		os.Exit(runHealthcheck(cfg.Port))
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Shared state.
	captureStore := store.NewCaptureStore()
	hub := engine.NewHub(cfg.SubscriberBuffer)

	captureSvc := service.NewCaptureService(captureStore, hub)

	// Router.
	router := handler.NewRouter(captureSvc, cfg.KeepaliveInterval, logger)

	// Start idle sweep goroutine with cancellable context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reaper := engine.NewReaper(cfg.SweepInterval, cfg.IdleTTL, hub, logger)
	reaper.Start(ctx)

	// Configure HTTP server. There is no write timeout: streams stay open
	// until the client leaves.
	addr := cfg.Addr()
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: cfg.IdleTimeout,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	// Shutdown does not wait for streaming handlers; cancelling the base
	// context ends them.
	srv.RegisterOnShutdown(cancel)

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, cancel context (stops sweep
	// goroutine and open streams).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}

// healthcheckTimeout bounds the --healthcheck request.
const healthcheckTimeout = 5 * time.Second

// runHealthcheck probes /healthz on the local server and returns the process
// exit code: 0 when it answers 200, 1 otherwise.
func runHealthcheck(port int) int {
	client := &http.Client{Timeout: healthcheckTimeout}
	return healthcheck(client, fmt.Sprintf("http://localhost:%d/healthz", port))
}

func healthcheck(client *http.Client, url string) int {
	resp, err := client.Get(url)
	if err != nil {
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
