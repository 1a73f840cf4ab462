// Package session implements the realtime streaming transcription core.
// A Session owns one client's audio buffer and drives the state machine from
// first audio chunk through incremental inference to the final result; the
// Registry tracks live sessions, enforces the concurrency cap, and evicts
// idle or closed sessions.
package session
