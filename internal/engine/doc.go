// Package engine defines the transcription engine boundary and implements
// the HTTP client for the local inference runner. The engine is treated as
// an opaque function from audio samples to transcript text; the client
// handles multipart requests, concurrency limiting, and optional call
// serialization for non-reentrant model backends.
package engine
