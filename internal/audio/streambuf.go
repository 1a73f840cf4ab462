package audio

import (
	"fmt"
	"sync"
	"time"
)

// Compaction is deferred until at least this many consumed samples are
// dropped in one pass, to avoid shifting the slice on every advance.
const compactMinSamples = 8192

// StreamBuffer accumulates decoded audio samples for one streaming session
// and tracks how much of the audio has already been submitted to the
// transcription engine. The cursor marks the boundary between consumed and
// pending samples and never moves past the buffer length.
type StreamBuffer struct {
	samples    []float32
	cursor     int
	sampleRate int

	// Lifetime counters, survive compaction
	totalAppended int64
	totalConsumed int64

	lastAppend time.Time

	mu sync.Mutex
}

// StreamBufferStats represents buffer statistics for monitoring
type StreamBufferStats struct {
	BufferedSamples int     `json:"buffered_samples"`
	PendingSamples  int     `json:"pending_samples"`
	TotalAppended   int64   `json:"total_appended"`
	TotalConsumed   int64   `json:"total_consumed"`
	PendingSeconds  float64 `json:"pending_seconds"`
}

// NewStreamBuffer creates a stream buffer for audio at the given sample rate
func NewStreamBuffer(sampleRate int) *StreamBuffer {
	return &StreamBuffer{
		samples:    make([]float32, 0, sampleRate), // pre-allocate one second
		sampleRate: sampleRate,
		lastAppend: time.Now(),
	}
}

// Append adds newly decoded samples to the buffer
func (b *StreamBuffer) Append(samples []float32) {
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, samples...)
	b.totalAppended += int64(len(samples))
	b.lastAppend = time.Now()
}

// Consumable returns a copy of all samples past the cursor. The copy is safe
// to hand to an engine call while further appends arrive.
func (b *StreamBuffer) Consumable() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := b.samples[b.cursor:]
	if len(pending) == 0 {
		return nil
	}

	out := make([]float32, len(pending))
	copy(out, pending)
	return out
}

// PendingSamples returns the number of samples past the cursor
func (b *StreamBuffer) PendingSamples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples) - b.cursor
}

// PendingDuration returns the duration of audio past the cursor
func (b *StreamBuffer) PendingDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := len(b.samples) - b.cursor
	return time.Duration(pending) * time.Second / time.Duration(b.sampleRate)
}

// Advance moves the cursor forward by n samples after a successful engine
// call consumed that prefix. The consumed prefix is dropped once enough has
// accumulated to make the shift worthwhile.
func (b *StreamBuffer) Advance(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n < 0 {
		return fmt.Errorf("advance count cannot be negative, got %d", n)
	}

	if b.cursor+n > len(b.samples) {
		return fmt.Errorf("advance past buffer end: cursor=%d, n=%d, length=%d",
			b.cursor, n, len(b.samples))
	}

	b.cursor += n
	b.totalConsumed += int64(n)

	if b.cursor >= compactMinSamples {
		b.compactLocked()
	}

	return nil
}

// Compact drops the fully-consumed prefix immediately
func (b *StreamBuffer) Compact() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compactLocked()
}

func (b *StreamBuffer) compactLocked() {
	if b.cursor == 0 {
		return
	}

	remaining := copy(b.samples, b.samples[b.cursor:])
	b.samples = b.samples[:remaining]
	b.cursor = 0
}

// Len returns the current number of samples held in the buffer
func (b *StreamBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Cursor returns the current cursor position within the held samples
func (b *StreamBuffer) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// TotalConsumed returns the lifetime count of samples consumed by the engine
func (b *StreamBuffer) TotalConsumed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalConsumed
}

// TotalAppended returns the lifetime count of samples appended
func (b *StreamBuffer) TotalAppended() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalAppended
}

// LastAppend returns the time of the most recent append
func (b *StreamBuffer) LastAppend() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAppend
}

// SampleRate returns the sample rate the buffer was created with
func (b *StreamBuffer) SampleRate() int {
	return b.sampleRate
}

// Stats returns current buffer statistics
func (b *StreamBuffer) Stats() StreamBufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := len(b.samples) - b.cursor

	return StreamBufferStats{
		BufferedSamples: len(b.samples),
		PendingSamples:  pending,
		TotalAppended:   b.totalAppended,
		TotalConsumed:   b.totalConsumed,
		PendingSeconds:  float64(pending) / float64(b.sampleRate),
	}
}
