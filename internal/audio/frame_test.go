package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func encodeF32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

func encodeS16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestFrameDecoderF32LE(t *testing.T) {
	want := []float32{0.0, 0.5, -0.5, 1.0, -1.0}
	data := encodeF32LE(want)

	d := NewFrameDecoder(EncodingPCMF32LE)
	got, err := d.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(got))
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestFrameDecoderS16LE(t *testing.T) {
	data := encodeS16LE([]int16{0, 16384, -16384, 32767, -32768})

	d := NewFrameDecoder(EncodingPCMS16LE)
	got, err := d.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := []float32{0.0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestFrameDecoderChunkBoundaryIndependence(t *testing.T) {
	want := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	data := encodeF32LE(want)

	// Split the byte stream at every possible position; the decoded sample
	// sequence must not depend on where chunks were cut
	for split := 0; split <= len(data); split++ {
		d := NewFrameDecoder(EncodingPCMF32LE)

		first, err := d.Decode(data[:split])
		if err != nil {
			t.Fatalf("Split %d: first Decode failed: %v", split, err)
		}

		second, err := d.Decode(data[split:])
		if err != nil {
			t.Fatalf("Split %d: second Decode failed: %v", split, err)
		}

		got := append(first, second...)
		if len(got) != len(want) {
			t.Fatalf("Split %d: expected %d samples, got %d", split, len(want), len(got))
		}

		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Split %d: sample %d: expected %f, got %f", split, i, want[i], got[i])
			}
		}

		if d.Pending() != 0 {
			t.Errorf("Split %d: expected no pending bytes, got %d", split, d.Pending())
		}
	}
}

func TestFrameDecoderCarriesPartialFrame(t *testing.T) {
	d := NewFrameDecoder(EncodingPCMF32LE)

	samples, err := d.Decode([]byte{0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(samples) != 0 {
		t.Errorf("Expected no complete samples from 3 bytes, got %d", len(samples))
	}

	if d.Pending() != 3 {
		t.Errorf("Expected 3 pending bytes, got %d", d.Pending())
	}

	// One more byte completes the frame
	samples, err = d.Decode([]byte{0x00})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(samples) != 1 || samples[0] != 0.0 {
		t.Errorf("Expected one zero sample, got %v", samples)
	}
}

func TestFrameDecoderPassesNaNThrough(t *testing.T) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, math.Float32bits(float32(math.NaN())))

	// A NaN bit pattern is still a well-formed frame; the stream continues
	d := NewFrameDecoder(EncodingPCMF32LE)
	samples, err := d.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(samples) != 1 {
		t.Fatalf("Expected 1 sample, got %d", len(samples))
	}
	if samples[0] == samples[0] {
		t.Errorf("Expected NaN sample preserved, got %f", samples[0])
	}
}

func TestFrameDecoderBase64(t *testing.T) {
	want := []float32{0.25, -0.25}
	payload := base64.StdEncoding.EncodeToString(encodeF32LE(want))

	d := NewFrameDecoder(EncodingPCMF32LE)
	got, err := d.DecodeBase64(payload)
	if err != nil {
		t.Fatalf("DecodeBase64 failed: %v", err)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestFrameDecoderInvalidBase64(t *testing.T) {
	d := NewFrameDecoder(EncodingPCMF32LE)
	_, err := d.DecodeBase64("not!valid!base64!")
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode for invalid base64, got %v", err)
	}
}

func TestFrameDecoderReset(t *testing.T) {
	d := NewFrameDecoder(EncodingPCMF32LE)

	if _, err := d.Decode([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if d.Pending() != 2 {
		t.Fatalf("Expected 2 pending bytes, got %d", d.Pending())
	}

	d.Reset()
	if d.Pending() != 0 {
		t.Errorf("Expected no pending bytes after Reset, got %d", d.Pending())
	}
}

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"pcm_f32le", false},
		{"pcm_s16le", false},
		{"mp3", true},
		{"", true},
	}

	for _, tt := range tests {
		_, err := ParseEncoding(tt.name)
		if tt.wantErr && err == nil {
			t.Errorf("ParseEncoding(%q): expected error, got nil", tt.name)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("ParseEncoding(%q): unexpected error: %v", tt.name, err)
		}
	}
}

func TestEncodingFrameSize(t *testing.T) {
	if got := EncodingPCMF32LE.FrameSize(); got != 4 {
		t.Errorf("Expected frame size 4 for f32le, got %d", got)
	}
	if got := EncodingPCMS16LE.FrameSize(); got != 2 {
		t.Errorf("Expected frame size 2 for s16le, got %d", got)
	}
}
