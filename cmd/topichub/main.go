package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/topichub/internal/broker"
	"github.com/adred-codev/topichub/internal/config"
	"github.com/adred-codev/topichub/internal/httpapi"
	"github.com/adred-codev/topichub/internal/limits"
	"github.com/adred-codev/topichub/internal/logging"
	"github.com/adred-codev/topichub/internal/metrics"
	"github.com/adred-codev/topichub/internal/transport"
)

func main() {
	var debug = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	// automaxprocs matches GOMAXPROCS to the container CPU quota at init.
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("Runtime configured")

	b := broker.New(logger)
	limiter := limits.NewConnectionLimiter(cfg.ConnRateGlobal, cfg.ConnBurstGlobal, cfg.ConnRatePerIP, cfg.ConnBurstPerIP, logger)
	wsServer := transport.NewServer(b, limiter, cfg.MaxConnections, cfg.SendQueueSize, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	httpapi.NewServer(b, logger).Register(mux)
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	samplerCtx, stopSampler := context.WithCancel(context.Background())
	metrics.StartSystemSampler(samplerCtx, logger, cfg.MetricsInterval)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Drain websocket sessions first so the close frames still reach clients,
	// then stop the HTTP listener.
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Session drain incomplete")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	stopSampler()
	limiter.Close()
	logger.Info().Msg("Shutdown complete")
}
