package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrDecode indicates structurally invalid audio bytes. Incomplete trailing
// frames are never an error; they are carried over to the next chunk.
var ErrDecode = errors.New("audio decode error")

// Encoding identifies the PCM sample encoding of an inbound byte stream.
type Encoding string

const (
	// EncodingPCMF32LE is 32-bit little-endian IEEE float PCM (4 bytes per sample)
	EncodingPCMF32LE Encoding = "pcm_f32le"
	// EncodingPCMS16LE is 16-bit little-endian signed integer PCM (2 bytes per sample)
	EncodingPCMS16LE Encoding = "pcm_s16le"
)

// FrameSize returns the number of bytes per sample for the encoding
func (e Encoding) FrameSize() int {
	switch e {
	case EncodingPCMS16LE:
		return 2
	default:
		return 4
	}
}

// ParseEncoding validates an encoding name from configuration
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(name) {
	case EncodingPCMF32LE, EncodingPCMS16LE:
		return Encoding(name), nil
	default:
		return "", fmt.Errorf("%w: unknown encoding '%s'", ErrDecode, name)
	}
}

// FrameDecoder converts inbound encoded audio bytes into float32 samples.
// Chunk boundaries may split a sample frame; the undecodable tail is carried
// over until the next chunk arrives. One decoder belongs to one session.
type FrameDecoder struct {
	encoding Encoding
	carry    []byte
}

// NewFrameDecoder creates a decoder for the given sample encoding
func NewFrameDecoder(encoding Encoding) *FrameDecoder {
	return &FrameDecoder{
		encoding: encoding,
		carry:    make([]byte, 0, 4),
	}
}

// Decode consumes a chunk of raw bytes and returns all complete samples,
// including any carried over from previous chunks. The returned slice is
// owned by the caller.
func (d *FrameDecoder) Decode(data []byte) ([]float32, error) {
	frameSize := d.encoding.FrameSize()

	buf := data
	if len(d.carry) > 0 {
		buf = append(d.carry, data...)
	}

	complete := len(buf) / frameSize * frameSize
	tail := buf[complete:]

	// Keep the split frame for the next chunk
	d.carry = append(d.carry[:0], tail...)

	if complete == 0 {
		return nil, nil
	}

	samples := make([]float32, complete/frameSize)
	switch d.encoding {
	case EncodingPCMS16LE:
		for i := range samples {
			v := int16(binary.LittleEndian.Uint16(buf[i*2:]))
			samples[i] = float32(v) / 32768.0
		}
	default:
		// Any 4-byte pattern is a well-formed frame, NaN included; sample
		// values are the model's problem, not the wire codec's
		for i := range samples {
			bits := binary.LittleEndian.Uint32(buf[i*4:])
			samples[i] = math.Float32frombits(bits)
		}
	}

	return samples, nil
}

// DecodeBase64 decodes a base64 payload and feeds the raw bytes through Decode
func (d *FrameDecoder) DecodeBase64(payload string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %v", ErrDecode, err)
	}

	return d.Decode(raw)
}

// Pending returns the number of carried-over bytes awaiting the next chunk
func (d *FrameDecoder) Pending() int {
	return len(d.carry)
}

// Reset discards any carried-over bytes
func (d *FrameDecoder) Reset() {
	d.carry = d.carry[:0]
}
