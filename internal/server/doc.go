// Package server implements the HTTP API: the OpenAI-compatible batch
// transcription endpoint, the realtime WebSocket endpoint, and the
// health/monitoring surface.
package server
