package audio

import (
	"testing"
)

func TestStreamBufferAppendAndConsume(t *testing.T) {
	b := NewStreamBuffer(16000)

	b.Append([]float32{0.1, 0.2, 0.3})

	if b.PendingSamples() != 3 {
		t.Errorf("Expected 3 pending samples, got %d", b.PendingSamples())
	}

	window := b.Consumable()
	if len(window) != 3 {
		t.Fatalf("Expected 3 consumable samples, got %d", len(window))
	}

	if err := b.Advance(len(window)); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	if b.PendingSamples() != 0 {
		t.Errorf("Expected no pending samples after advance, got %d", b.PendingSamples())
	}

	if b.TotalConsumed() != 3 {
		t.Errorf("Expected 3 total consumed, got %d", b.TotalConsumed())
	}
}

func TestStreamBufferConsumableReturnsCopy(t *testing.T) {
	b := NewStreamBuffer(16000)
	b.Append([]float32{0.5})

	window := b.Consumable()
	window[0] = 99.0

	again := b.Consumable()
	if again[0] != 0.5 {
		t.Errorf("Consumable must return a copy; buffer was mutated to %f", again[0])
	}
}

func TestStreamBufferAppendDuringConsumption(t *testing.T) {
	b := NewStreamBuffer(16000)
	b.Append([]float32{0.1, 0.2})

	window := b.Consumable()

	// New audio arrives while the engine call is in flight
	b.Append([]float32{0.3, 0.4})

	if err := b.Advance(len(window)); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	pending := b.Consumable()
	if len(pending) != 2 || pending[0] != 0.3 || pending[1] != 0.4 {
		t.Errorf("Expected pending [0.3 0.4], got %v", pending)
	}
}

func TestStreamBufferAdvancePastEnd(t *testing.T) {
	b := NewStreamBuffer(16000)
	b.Append([]float32{0.1, 0.2})

	if err := b.Advance(3); err == nil {
		t.Error("Expected error advancing past buffer end")
	}

	if err := b.Advance(-1); err == nil {
		t.Error("Expected error for negative advance")
	}

	// Failed advances must not move the cursor
	if b.PendingSamples() != 2 {
		t.Errorf("Expected 2 pending samples after failed advances, got %d", b.PendingSamples())
	}
}

func TestStreamBufferCompaction(t *testing.T) {
	b := NewStreamBuffer(16000)

	chunk := make([]float32, compactMinSamples)
	for i := range chunk {
		chunk[i] = float32(i)
	}
	b.Append(chunk)
	b.Append([]float32{1.5, 2.5})

	if err := b.Advance(compactMinSamples); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	// Crossing the compaction threshold drops the consumed prefix
	if b.Cursor() != 0 {
		t.Errorf("Expected cursor reset after compaction, got %d", b.Cursor())
	}

	if b.Len() != 2 {
		t.Errorf("Expected 2 samples held after compaction, got %d", b.Len())
	}

	pending := b.Consumable()
	if len(pending) != 2 || pending[0] != 1.5 || pending[1] != 2.5 {
		t.Errorf("Compaction corrupted pending samples: %v", pending)
	}

	// Lifetime counters survive compaction
	if b.TotalConsumed() != int64(compactMinSamples) {
		t.Errorf("Expected %d total consumed, got %d", compactMinSamples, b.TotalConsumed())
	}
	if b.TotalAppended() != int64(compactMinSamples+2) {
		t.Errorf("Expected %d total appended, got %d", compactMinSamples+2, b.TotalAppended())
	}
}

func TestStreamBufferExplicitCompact(t *testing.T) {
	b := NewStreamBuffer(16000)
	b.Append([]float32{0.1, 0.2, 0.3})

	if err := b.Advance(2); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	b.Compact()

	if b.Cursor() != 0 {
		t.Errorf("Expected cursor 0 after Compact, got %d", b.Cursor())
	}
	if b.Len() != 1 {
		t.Errorf("Expected 1 sample held after Compact, got %d", b.Len())
	}
}

func TestStreamBufferStats(t *testing.T) {
	b := NewStreamBuffer(16000)
	b.Append(make([]float32, 16000))

	if err := b.Advance(8000); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	stats := b.Stats()
	if stats.PendingSamples != 8000 {
		t.Errorf("Expected 8000 pending samples, got %d", stats.PendingSamples)
	}
	if stats.PendingSeconds != 0.5 {
		t.Errorf("Expected 0.5 pending seconds, got %f", stats.PendingSeconds)
	}
	if stats.TotalAppended != 16000 {
		t.Errorf("Expected 16000 total appended, got %d", stats.TotalAppended)
	}
	if stats.TotalConsumed != 8000 {
		t.Errorf("Expected 8000 total consumed, got %d", stats.TotalConsumed)
	}
}

func TestStreamBufferPendingDuration(t *testing.T) {
	b := NewStreamBuffer(16000)
	b.Append(make([]float32, 4000))

	if got := b.PendingDuration().Seconds(); got != 0.25 {
		t.Errorf("Expected 0.25s pending duration, got %f", got)
	}
}
