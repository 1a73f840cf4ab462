package server

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/itsbohara/mlx-stt-server/internal/config"
	"github.com/itsbohara/mlx-stt-server/internal/engine"
	"github.com/itsbohara/mlx-stt-server/internal/metrics"
	"github.com/itsbohara/mlx-stt-server/internal/session"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Prometheus collectors register globally, so the package shares one instance
var testMetrics = metrics.NewMetrics()

// fakeEngine returns a fixed result for every call
type fakeEngine struct {
	result *engine.Result
	err    error
}

func (f *fakeEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts engine.Options) (*engine.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &engine.Result{Text: "test transcript"}, nil
}

func (f *fakeEngine) SampleRate() int {
	return 16000
}

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:         8000,
			Address:      "127.0.0.1",
			ReadTimeout:  5,
			WriteTimeout: 5,
			MaxUploadMB:  16,
		},
		Audio: config.AudioConfig{
			SampleRate:        16000,
			Encoding:          "pcm_f32le",
			MinInferDuration:  1.0,
			MaxBufferDuration: 300,
		},
		Session: config.SessionConfig{
			MaxConcurrent:   4,
			IdleTimeout:     5,
			ShutdownTimeout: 2,
		},
		Engine: config.EngineConfig{
			Endpoint:      "http://localhost:8001",
			Model:         "parakeet-tdt-0.6b-v3",
			Timeout:       5,
			MaxConcurrent: 2,
		},
		Logging: config.LoggingConfig{
			Level:  "error",
			Format: "text",
			Output: "stderr",
		},
	}
}

// newTestServer builds an HTTPServer wired to a fake engine. maxSessions
// bounds the realtime registry.
func newTestServer(t *testing.T, eng engine.Engine, maxSessions int) *HTTPServer {
	t.Helper()

	cfg := testServerConfig()
	cfg.Session.MaxConcurrent = maxSessions

	registry := session.NewRegistry(testLogger, eng, session.RegistryConfig{
		MaxSessions:      maxSessions,
		IdleTimeout:      cfg.Session.GetIdleTimeout(),
		ShutdownTimeout:  cfg.Session.GetShutdownTimeout(),
		Encoding:         "pcm_f32le",
		MinInferSamples:  cfg.Audio.MinInferSamples(),
		MaxBufferSamples: cfg.Audio.MaxBufferSamples(),
		Model:            cfg.Engine.Model,
	})
	t.Cleanup(registry.Stop)

	h := &HTTPServer{
		logger:    testLogger,
		config:    cfg,
		registry:  registry,
		eng:       eng,
		metrics:   testMetrics,
		startTime: time.Now(),
	}

	return h
}
