package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/itsbohara/mlx-stt-server/internal/audio"
	"github.com/itsbohara/mlx-stt-server/internal/engine"
)

// Accepted values for the response_format form field
var responseFormats = map[string]bool{
	"json":         true,
	"text":         true,
	"verbose_json": true,
}

// transcriptionResponse is the OpenAI-compatible batch response body
type transcriptionResponse struct {
	Text     string        `json:"text"`
	Task     string        `json:"task"`
	Language string        `json:"language"`
	Duration float64       `json:"duration"`
	Words    []engine.Word `json:"words,omitempty"`
}

// handleTranscriptions implements POST /v1/audio/transcriptions
func (h *HTTPServer) handleTranscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Method not allowed")
		return
	}

	startTime := time.Now()

	maxUpload := int64(h.config.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)

	if err := r.ParseMultipartForm(maxUpload); err != nil {
		h.metrics.RecordBatchError("validation_error")
		h.writeError(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("Invalid multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.metrics.RecordBatchError("validation_error")
		h.writeError(w, http.StatusBadRequest, "validation_error", "Missing required 'file' field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".wav" && ext != ".wave" {
		h.metrics.RecordBatchError("unsupported_format")
		h.writeError(w, http.StatusBadRequest, "unsupported_format",
			fmt.Sprintf("Unsupported file format '%s', only WAV is accepted", ext))
		return
	}

	responseFormat := r.FormValue("response_format")
	if responseFormat == "" {
		responseFormat = "json"
	}
	if !responseFormats[responseFormat] {
		h.metrics.RecordBatchError("validation_error")
		h.writeError(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("Invalid response_format '%s'", responseFormat))
		return
	}

	temperature := 0.0
	if v := r.FormValue("temperature"); v != "" {
		temperature, err = strconv.ParseFloat(v, 64)
		if err != nil || temperature < 0 || temperature > 1 {
			h.metrics.RecordBatchError("validation_error")
			h.writeError(w, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("Invalid temperature '%s', expected a number in [0, 1]", v))
			return
		}
	}

	model := r.FormValue("model")
	if model == "" {
		model = h.config.Engine.Model
	}

	language := r.FormValue("language")

	// Word timestamps are produced for verbose_json or when explicitly
	// requested via timestamp_granularities
	wordTimestamps := responseFormat == "verbose_json"
	for _, g := range r.Form["timestamp_granularities"] {
		if g == "word" {
			wordTimestamps = true
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.metrics.RecordBatchError("server_error")
		h.writeError(w, http.StatusInternalServerError, "server_error",
			fmt.Sprintf("Failed to read upload: %v", err))
		return
	}

	samples, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		h.metrics.RecordDecodeError()
		h.metrics.RecordBatchError("decode_error")
		h.writeError(w, http.StatusBadRequest, "decode_error",
			fmt.Sprintf("Failed to decode WAV file: %v", err))
		return
	}

	result, err := h.eng.Transcribe(r.Context(), samples, sampleRate, engine.Options{
		Language:       language,
		Model:          model,
		Temperature:    float32(temperature),
		WordTimestamps: wordTimestamps,
	})
	if err != nil {
		h.logger.Error("Batch transcription failed",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)

		h.metrics.RecordBatchError("transcription_error")

		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrEngine) {
			status = http.StatusBadGateway
		}
		h.writeError(w, status, "transcription_error",
			fmt.Sprintf("Transcription failed: %v", err))
		return
	}

	duration := float64(len(samples)) / float64(sampleRate)
	h.metrics.RecordBatchRequest(time.Since(startTime).Seconds())

	h.logger.Info("Batch transcription completed",
		slog.String("filename", header.Filename),
		slog.Float64("audio_duration", duration),
		slog.Duration("processing_time", time.Since(startTime)),
		slog.Int("transcript_length", len(result.Text)),
	)

	resultLanguage := result.Language
	if resultLanguage == "" {
		resultLanguage = language
	}
	if resultLanguage == "" {
		resultLanguage = "en"
	}

	switch responseFormat {
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, result.Text)

	case "verbose_json":
		h.writeJSON(w, http.StatusOK, transcriptionResponse{
			Text:     result.Text,
			Task:     "transcribe",
			Language: resultLanguage,
			Duration: duration,
			Words:    result.Words,
		})

	default:
		h.writeJSON(w, http.StatusOK, transcriptionResponse{
			Text:     result.Text,
			Task:     "transcribe",
			Language: resultLanguage,
			Duration: duration,
		})
	}
}
