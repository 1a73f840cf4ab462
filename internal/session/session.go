package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/itsbohara/mlx-stt-server/internal/audio"
	"github.com/itsbohara/mlx-stt-server/internal/engine"
)

// ErrSessionClosed indicates input pushed to a session that no longer
// accepts it (end-of-stream already received, aborted, or closed)
var ErrSessionClosed = errors.New("session closed")

// State represents the lifecycle state of a streaming session
type State int

const (
	// StateIdle: created, awaiting the first audio chunk
	StateIdle State = iota
	// StateBuffering: accumulating audio, no inference in flight
	StateBuffering
	// StateTranscribing: an engine call is in flight
	StateTranscribing
	// StateFinalizing: end-of-stream received, flushing the remaining buffer
	StateFinalizing
	// StateClosed: terminal
	StateClosed
)

// String returns the state name for logging and monitoring
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StateTranscribing:
		return "transcribing"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Result is one transcription result emitted to the client. Partial results
// carry the transcript accumulated so far; the final result is always the
// last one emitted. A non-nil Err terminates the session.
type Result struct {
	Text  string
	Final bool
	Err   error
}

// Config contains per-session parameters
type Config struct {
	ID               string
	Language         string
	Model            string
	Encoding         audio.Encoding
	SampleRate       int
	MinInferSamples  int
	MaxBufferSamples int
	IdleTimeout      time.Duration
}

// Info represents session information for monitoring endpoints
type Info struct {
	ID              string                  `json:"id"`
	State           string                  `json:"state"`
	Language        string                  `json:"language,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	LastActivity    time.Time               `json:"last_activity"`
	Duration        time.Duration           `json:"duration"`
	Buffer          audio.StreamBufferStats `json:"buffer"`
	InferenceCalls  uint64                  `json:"inference_calls"`
	PartialsEmitted uint64                  `json:"partials_emitted"`
}

type inboundKind int

const (
	inboundAudio inboundKind = iota
	inboundEnd
)

type inboundMessage struct {
	kind inboundKind
	data []byte
}

// inferOutcome carries the result of one engine call back into the loop
type inferOutcome struct {
	result   *engine.Result
	err      error
	consumed int
}

// Session orchestrates one client's streaming transcription lifecycle.
// All message handling runs on a single goroutine, so inbound messages are
// processed strictly in arrival order and at most one engine call is in
// flight at any time.
type Session struct {
	cfg    Config
	eng    engine.Engine
	logger *slog.Logger

	decoder *audio.FrameDecoder
	buf     *audio.StreamBuffer

	inbox   chan inboundMessage
	results chan Result
	closed  chan struct{} // abrupt termination signal
	done    chan struct{} // closed when the run loop has exited

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	createdAt time.Time

	// Guarded by mu
	state           State
	lastActivity    time.Time
	transcript      string
	inferenceCalls  uint64
	partialsEmitted uint64
	inputClosed     bool

	mu sync.RWMutex
}

// New creates a session and starts its processing loop. The parent context
// bounds all engine calls; cancelling it force-terminates the session.
func New(parent context.Context, cfg Config, eng engine.Engine, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)

	now := time.Now()
	s := &Session{
		cfg:          cfg,
		eng:          eng,
		logger:       logger,
		decoder:      audio.NewFrameDecoder(cfg.Encoding),
		buf:          audio.NewStreamBuffer(cfg.SampleRate),
		inbox:        make(chan inboundMessage, 64),
		results:      make(chan Result, 16),
		closed:       make(chan struct{}),
		done:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		createdAt:    now,
		state:        StateIdle,
		lastActivity: now,
	}

	go s.run()

	return s
}

// ID returns the session's connection identity
func (s *Session) ID() string {
	return s.cfg.ID
}

// PushAudio submits one chunk of encoded audio bytes. It blocks when the
// session is busy, which backpressures the reader.
func (s *Session) PushAudio(data []byte) error {
	return s.push(inboundMessage{kind: inboundAudio, data: data})
}

// PushEnd signals end-of-stream. No further input is accepted afterwards.
func (s *Session) PushEnd() error {
	return s.push(inboundMessage{kind: inboundEnd})
}

func (s *Session) push(m inboundMessage) error {
	s.mu.Lock()
	if s.inputClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if m.kind == inboundEnd {
		s.inputClosed = true
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Abort terminates the session abruptly: the buffer is discarded and no
// further results are emitted. An in-flight engine call is allowed to
// complete before resources are released. Abort is idempotent.
func (s *Session) Abort() {
	s.mu.Lock()
	s.inputClosed = true
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.closed) })
}

// Kill cancels the session's context so an in-flight engine call returns
// immediately. Used only on hard shutdown.
func (s *Session) Kill() {
	s.Abort()
	s.cancel()
}

// Results returns the channel of transcription results. It is closed after
// the last result for the session has been emitted.
func (s *Session) Results() <-chan Result {
	return s.results
}

// Done returns a channel closed once the session loop has exited
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastActivity returns the time of the most recent inbound message
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Transcript returns the accumulated transcript text
func (s *Session) Transcript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript
}

// GetInfo returns session information for monitoring
func (s *Session) GetInfo() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Info{
		ID:              s.cfg.ID,
		State:           s.state.String(),
		Language:        s.cfg.Language,
		CreatedAt:       s.createdAt,
		LastActivity:    s.lastActivity,
		Duration:        time.Since(s.createdAt),
		Buffer:          s.buf.Stats(),
		InferenceCalls:  s.inferenceCalls,
		PartialsEmitted: s.partialsEmitted,
	}
}

// run is the session's single-threaded processing loop
func (s *Session) run() {
	defer func() {
		s.setState(StateClosed)
		close(s.results)
		close(s.done)
		s.cancel()
	}()

	idle := time.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()

	var inflight chan inferOutcome
	endReceived := false

	for {
		select {
		case m := <-s.inbox:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.IdleTimeout)

			switch m.kind {
			case inboundAudio:
				if endReceived {
					continue
				}

				samples, err := s.decoder.Decode(m.data)
				if err != nil {
					s.emitError(err)
					s.drainInflight(inflight)
					return
				}

				s.buf.Append(samples)
				if s.State() == StateIdle {
					s.setState(StateBuffering)
				}

				if s.buf.PendingSamples() > s.cfg.MaxBufferSamples {
					s.emitError(fmt.Errorf("buffered audio exceeds limit of %d samples", s.cfg.MaxBufferSamples))
					s.drainInflight(inflight)
					return
				}

				if inflight == nil && s.buf.PendingSamples() >= s.cfg.MinInferSamples {
					inflight = s.startTranscribe()
				}

			case inboundEnd:
				endReceived = true
				s.setState(StateFinalizing)

				if inflight == nil {
					s.finalize()
					return
				}
				// Wait for the in-flight call, then flush in the outcome branch
			}

		case out := <-inflight:
			inflight = nil

			if out.err != nil {
				s.emitError(out.err)
				return
			}

			if err := s.buf.Advance(out.consumed); err != nil {
				s.emitError(err)
				return
			}

			s.appendTranscript(out.result.Text)

			if strings.TrimSpace(out.result.Text) != "" {
				s.emitPartial()
			}

			if endReceived {
				s.finalize()
				return
			}

			s.setState(StateBuffering)
			if s.buf.PendingSamples() >= s.cfg.MinInferSamples {
				inflight = s.startTranscribe()
			}

		case <-idle.C:
			s.logger.Warn("Session idle timeout exceeded",
				slog.String("session_id", s.cfg.ID),
				slog.Duration("idle_timeout", s.cfg.IdleTimeout),
			)
			s.drainInflight(inflight)
			return

		case <-s.closed:
			s.drainInflight(inflight)
			return
		}
	}
}

// startTranscribe launches one engine call over the unconsumed audio.
// The window is a copy, so appends during the call are safe.
func (s *Session) startTranscribe() chan inferOutcome {
	window := s.buf.Consumable()
	s.setState(StateTranscribing)

	s.mu.Lock()
	s.inferenceCalls++
	s.mu.Unlock()

	ch := make(chan inferOutcome, 1)
	go func() {
		res, err := s.eng.Transcribe(s.ctx, window, s.cfg.SampleRate, s.engineOptions())
		ch <- inferOutcome{result: res, err: err, consumed: len(window)}
	}()

	return ch
}

// finalize flushes the remaining unconsumed audio through one last engine
// call and emits the final result. A session that reached finalizing always
// emits exactly one final result, even with an empty transcript.
func (s *Session) finalize() {
	if pending := s.buf.Consumable(); len(pending) > 0 {
		s.mu.Lock()
		s.inferenceCalls++
		s.mu.Unlock()

		res, err := s.eng.Transcribe(s.ctx, pending, s.cfg.SampleRate, s.engineOptions())
		if err != nil {
			s.emitError(err)
			return
		}

		if err := s.buf.Advance(len(pending)); err != nil {
			s.emitError(err)
			return
		}

		s.appendTranscript(res.Text)
	}

	s.emit(Result{Text: s.Transcript(), Final: true})

	s.logger.Info("Session finalized",
		slog.String("session_id", s.cfg.ID),
		slog.Duration("duration", time.Since(s.createdAt)),
		slog.Int64("samples_consumed", s.buf.TotalConsumed()),
		slog.Int("transcript_length", len(s.Transcript())),
	)
}

// drainInflight waits for an in-flight engine call to complete and discards
// its result, so already-started computation is not abandoned mid-request
func (s *Session) drainInflight(inflight chan inferOutcome) {
	if inflight != nil {
		<-inflight
	}
}

func (s *Session) engineOptions() engine.Options {
	return engine.Options{
		Language: s.cfg.Language,
		Model:    s.cfg.Model,
	}
}

func (s *Session) appendTranscript(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.transcript == "" {
		s.transcript = text
	} else {
		s.transcript += " " + text
	}
	s.mu.Unlock()
}

func (s *Session) emitPartial() {
	s.mu.Lock()
	s.partialsEmitted++
	s.mu.Unlock()

	s.emit(Result{Text: s.Transcript(), Final: false})
}

func (s *Session) emit(r Result) {
	select {
	case s.results <- r:
	case <-s.closed:
		// Consumer is gone; drop the result
	}
}

func (s *Session) emitError(err error) {
	s.logger.Error("Session terminating on error",
		slog.String("session_id", s.cfg.ID),
		slog.String("state", s.State().String()),
		slog.String("error", err.Error()),
	)

	s.emit(Result{Err: err})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
