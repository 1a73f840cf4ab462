package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidMessage indicates an inbound message that does not conform to
// the realtime protocol
var ErrInvalidMessage = errors.New("invalid realtime message")

// Message type identifiers
const (
	// Inbound (client -> server)
	TypeAudio = "audio"
	TypeEnd   = "end"

	// Outbound (server -> client)
	TypeReady         = "ready"
	TypeTranscription = "transcription"
	TypeDone          = "done"
	TypeError         = "error"
)

// ClientMessage represents an inbound message on the realtime connection.
// Audio payloads carry base64-encoded PCM bytes in Data.
type ClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// ReadyMessage greets the client once a session is admitted and announces
// the sample rate the engine expects
type ReadyMessage struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate"`
	Message    string `json:"message"`
}

// TranscriptionMessage carries a partial or final transcription result.
// Final is a data field rather than a separate message type.
type TranscriptionMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// DoneMessage signals that the final result has been delivered and the
// session is complete
type DoneMessage struct {
	Type string `json:"type"`
}

// ErrorMessage reports a session-fatal error to the client
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ParseClientMessage parses and validates an inbound realtime message
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrInvalidMessage, err)
	}

	switch msg.Type {
	case TypeAudio:
		if msg.Data == "" {
			return nil, fmt.Errorf("%w: audio message without data field", ErrInvalidMessage)
		}
	case TypeEnd:
		// No payload expected
	case "":
		return nil, fmt.Errorf("%w: missing type field", ErrInvalidMessage)
	default:
		return nil, fmt.Errorf("%w: unknown message type '%s'", ErrInvalidMessage, msg.Type)
	}

	return &msg, nil
}

// NewReadyMessage builds the session greeting
func NewReadyMessage(sampleRate int) ReadyMessage {
	return ReadyMessage{
		Type:       TypeReady,
		SampleRate: sampleRate,
		Message:    "Ready to receive audio. Send audio chunks as base64-encoded PCM data.",
	}
}

// NewTranscriptionMessage builds a partial or final transcription message
func NewTranscriptionMessage(text string, final bool) TranscriptionMessage {
	return TranscriptionMessage{
		Type:  TypeTranscription,
		Text:  text,
		Final: final,
	}
}

// NewDoneMessage builds the terminal done message
func NewDoneMessage() DoneMessage {
	return DoneMessage{Type: TypeDone}
}

// NewErrorMessage builds an error message for the client
func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{
		Type:    TypeError,
		Message: message,
	}
}
