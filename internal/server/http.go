package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itsbohara/mlx-stt-server/internal/config"
	"github.com/itsbohara/mlx-stt-server/internal/engine"
	"github.com/itsbohara/mlx-stt-server/internal/metrics"
	"github.com/itsbohara/mlx-stt-server/internal/session"
)

const (
	serviceName    = "mlx-stt-server"
	serviceVersion = "1.0.0"
)

// HTTPServer provides the OpenAI-compatible API and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	registry *session.Registry
	eng      engine.Engine
	metrics  *metrics.Metrics

	startTime time.Time
}

// enginePinger is implemented by engine clients that can check runner health
type enginePinger interface {
	Ping(ctx context.Context) error
}

// engineStatsProvider is implemented by engine clients that track statistics
type engineStatsProvider interface {
	GetStats() engine.ClientStats
}

// apiError is the OpenAI-compatible error response body
type apiError struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewHTTPServer creates the API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger,
	registry *session.Registry, eng engine.Engine, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		registry:  registry,
		eng:       eng,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	// The original deployment sits behind browser clients on localhost,
	// so CORS is wide open
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}).Handler(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures the HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// OpenAI-compatible endpoints
	mux.HandleFunc("/v1/audio/transcriptions", h.withMetrics("/v1/audio/transcriptions", h.handleTranscriptions))
	mux.HandleFunc("/v1/models", h.withMetrics("/v1/models", h.handleModels))

	// Realtime streaming endpoint (metrics recorded per session, not per request)
	mux.HandleFunc("/v1/realtime", h.handleRealtime)
	mux.HandleFunc("/v1/realtime/sessions", h.withMetrics("/v1/realtime/sessions", h.handleSessions))

	// Health and monitoring
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// writeJSON writes a JSON response body
func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError writes an OpenAI-compatible error body
func (h *HTTPServer) writeError(w http.ResponseWriter, status int, errorType, message string) {
	h.writeJSON(w, status, apiError{
		Error: apiErrorDetail{
			Message: message,
			Type:    errorType,
		},
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Method not allowed")
		return
	}

	modelLoaded := false
	if p, ok := h.eng.(enginePinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		modelLoaded = p.Ping(ctx) == nil
	}

	health := map[string]interface{}{
		"status":       "healthy",
		"model_loaded": modelLoaded,
		"model":        h.config.Engine.Model,
		"timestamp":    time.Now().UTC(),
		"uptime":       time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"sessions": map[string]interface{}{
				"status":       "running",
				"active_count": h.registry.Count(),
				"max_count":    h.config.Session.MaxConcurrent,
			},
			"engine": h.engineHealth(),
		},
	}

	h.writeJSON(w, http.StatusOK, health)
}

func (h *HTTPServer) engineHealth() map[string]interface{} {
	info := map[string]interface{}{
		"endpoint":    h.config.Engine.Endpoint,
		"sample_rate": h.eng.SampleRate(),
	}

	if sp, ok := h.eng.(engineStatsProvider); ok {
		stats := sp.GetStats()
		info["total_requests"] = stats.TotalRequests
		info["success_rate"] = stats.SuccessRate
		info["active_requests"] = stats.ActiveRequests
	}

	return info
}

// handleModels implements the OpenAI-compatible /v1/models endpoint
func (h *HTTPServer) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Method not allowed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data": []map[string]interface{}{
			{
				"id":       h.config.Engine.Model,
				"object":   "model",
				"created":  1700000000,
				"owned_by": "local",
			},
		},
	})
}

// handleSessions implements the /v1/realtime/sessions monitoring endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Method not allowed")
		return
	}

	infos := h.registry.GetAllInfo()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Method not allowed")
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count": h.registry.Count(),
		},
	}

	if sp, ok := h.eng.(engineStatsProvider); ok {
		stats["engine"] = sp.GetStats()
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Method not allowed")
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "MLX STT Server - OpenAI Compatible",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /health":                    "Service health check",
			"GET /v1/models":                 "List available models",
			"POST /v1/audio/transcriptions":  "Transcribe an uploaded audio file",
			"GET /v1/realtime":               "Realtime streaming transcription (WebSocket)",
			"GET /v1/realtime/sessions":      "List live streaming sessions",
			"GET /stats":                     "Service statistics",
			"GET /metrics":                   "Prometheus metrics",
		},
		"usage":     "POST /v1/audio/transcriptions with multipart/form-data containing a 'file' field",
		"timestamp": time.Now().UTC(),
	})
}
