// Package audio handles sample decoding, buffering, and format conversion.
// It implements incremental PCM frame decoding across arbitrary chunk boundaries,
// a cursor-tracked stream buffer for the realtime path, and WAV encoding/decoding
// for batch uploads and engine requests.
package audio
