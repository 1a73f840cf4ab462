// Command mockengine is a stand-in inference runner for local development
// and manual testing. It accepts the multipart /transcribe request the real
// runner accepts and responds with a canned transcript whose length scales
// with the submitted audio duration.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/itsbohara/mlx-stt-server/internal/audio"
	"github.com/itsbohara/mlx-stt-server/internal/engine"
)

var samplePhrases = []string{
	"the quick brown fox jumps over the lazy dog",
	"testing the streaming transcription pipeline",
	"audio received and processed successfully",
	"one two three four five six seven eight",
	"hello world this is a mock transcription",
}

func main() {
	port := flag.Int("port", 8001, "Port to listen on")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated inference latency")
	failRate := flag.Float64("fail-rate", 0, "Fraction of requests to fail, for error path testing")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "healthy",
			"model_loaded": true,
		})
	})

	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseMultipartForm(64 << 20); err != nil {
			http.Error(w, fmt.Sprintf("invalid multipart form: %v", err), http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file field", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "failed to read file", http.StatusInternalServerError)
			return
		}

		duration, err := audio.GetWAVDuration(data)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid WAV file: %v", err), http.StatusBadRequest)
			return
		}

		time.Sleep(*delay)

		if *failRate > 0 && rand.Float64() < *failRate {
			logger.Warn("Simulating inference failure",
				slog.String("filename", header.Filename),
			)
			http.Error(w, "simulated inference failure", http.StatusInternalServerError)
			return
		}

		// Roughly one phrase per second of audio
		phraseCount := int(duration)
		if phraseCount < 1 {
			phraseCount = 1
		}
		phrases := make([]string, phraseCount)
		for i := range phrases {
			phrases[i] = samplePhrases[rand.Intn(len(samplePhrases))]
		}
		text := strings.Join(phrases, " ")

		language := r.FormValue("language")
		if language == "" {
			language = "en"
		}

		result := engine.Result{
			Text:     text,
			Language: language,
			Duration: duration,
		}

		if r.FormValue("word_timestamps") == "true" {
			words := strings.Fields(text)
			step := duration / float64(len(words))
			for i, word := range words {
				result.Words = append(result.Words, engine.Word{
					Word:  word,
					Start: float64(i) * step,
					End:   float64(i+1) * step,
				})
			}
		}

		logger.Info("Transcribed request",
			slog.String("filename", header.Filename),
			slog.String("request_id", r.FormValue("request_id")),
			slog.Float64("audio_duration", duration),
			slog.Int("transcript_length", len(text)),
		)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("Starting mock inference runner",
		slog.String("address", addr),
		slog.Duration("delay", *delay),
	)

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
