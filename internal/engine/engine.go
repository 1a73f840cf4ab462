package engine

import (
	"context"
	"errors"
)

// ErrEngine indicates a failure inside the transcription engine. Sessions
// surface it to the client as an error result and terminate; it is never
// retried silently.
var ErrEngine = errors.New("transcription engine error")

// Options holds per-call transcription parameters
type Options struct {
	Language       string
	Model          string
	Temperature    float32
	WordTimestamps bool
}

// Word represents a single word with timing information
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result represents the output of one engine invocation
type Result struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration"`
	Words    []Word  `json:"words,omitempty"`
}

// Engine is the opaque transcription function. Implementations must be safe
// for concurrent use; callers never mutate shared model state through it.
type Engine interface {
	// Transcribe converts mono float32 samples at the given rate to text.
	// It blocks until the engine responds or ctx is cancelled.
	Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (*Result, error)

	// SampleRate returns the sample rate the engine prefers for streaming input
	SampleRate() int
}
