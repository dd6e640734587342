// Command engine runs the multi-symbol, multi-venue trading pipeline:
// feed -> strategies -> risk -> router -> gateways -> positions/recorder.
//
// Configuration is read entirely from the environment (see internal/config).
// Exit codes: 0 clean shutdown, 1 invalid configuration, 2 engine
// construction or telemetry server failure.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tradingengine/internal/config"
	"tradingengine/internal/engine"
	"tradingengine/internal/telemetryhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)

	eng, err := engine.New(cfg, logger)
	if err != nil {
		logger.Error("failed to construct engine", "error", err)
		os.Exit(2)
	}

	telemetry := telemetryhttp.New(cfg.MetricsPort, eng.Metrics().Registry, logger)
	go func() {
		if err := telemetry.Start(); err != nil {
			logger.Error("telemetry server failed", "error", err)
			os.Exit(2)
		}
	}()

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(2)
	}

	logger.Info("trading engine started",
		"feed_mode", cfg.FeedMode,
		"venue_mode", cfg.VenueMode,
		"symbols", cfg.Symbols,
		"metrics_addr", fmt.Sprintf(":%d", cfg.MetricsPort),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if err := telemetry.Stop(); err != nil {
		logger.Error("failed to stop telemetry server", "error", err)
	}
	eng.Stop()
}

func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
