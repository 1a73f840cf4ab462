package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itsbohara/mlx-stt-server/internal/audio"
	"github.com/itsbohara/mlx-stt-server/internal/config"
	"github.com/itsbohara/mlx-stt-server/internal/engine"
	"github.com/itsbohara/mlx-stt-server/internal/metrics"
	"github.com/itsbohara/mlx-stt-server/internal/server"
	"github.com/itsbohara/mlx-stt-server/internal/session"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting MLX STT server",
		slog.String("config", *configPath),
		slog.Int("port", cfg.Server.Port),
		slog.String("model", cfg.Engine.Model),
		slog.String("engine_endpoint", cfg.Engine.Endpoint),
	)

	encoding, err := audio.ParseEncoding(cfg.Audio.Encoding)
	if err != nil {
		logger.Error("Invalid audio encoding", slog.String("error", err.Error()))
		os.Exit(1)
	}

	m := metrics.NewMetrics()

	eng, err := engine.NewClient(engine.Config{
		Endpoint:      cfg.Engine.Endpoint,
		Model:         cfg.Engine.Model,
		SampleRate:    cfg.Audio.SampleRate,
		Timeout:       cfg.Engine.GetTimeoutDuration(),
		MaxConcurrent: cfg.Engine.MaxConcurrent,
		Serialize:     cfg.Engine.Serialize,
		Metrics:       m,
	})
	if err != nil {
		logger.Error("Failed to create engine client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The runner may still be loading its model; sessions created before it
	// is ready fail on their first inference, so this is a warning only
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := eng.Ping(pingCtx); err != nil {
		logger.Warn("Inference runner not reachable yet",
			slog.String("endpoint", cfg.Engine.Endpoint),
			slog.String("error", err.Error()),
		)
	}
	pingCancel()

	registry := session.NewRegistry(logger, eng, session.RegistryConfig{
		MaxSessions:      cfg.Session.MaxConcurrent,
		IdleTimeout:      cfg.Session.GetIdleTimeout(),
		ShutdownTimeout:  cfg.Session.GetShutdownTimeout(),
		Encoding:         encoding,
		MinInferSamples:  cfg.Audio.MinInferSamples(),
		MaxBufferSamples: cfg.Audio.MaxBufferSamples(),
		Model:            cfg.Engine.Model,
	})

	srv := server.NewHTTPServer(cfg, logger, registry, eng, m)
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Server started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	// Stop accepting new connections first, then drain live sessions
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.GetShutdownTimeout())
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
	}

	registry.Stop()

	logger.Info("Server stopped")
}

// initLogger creates a structured logger from the logging configuration
func initLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		output = f
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, nil
}
