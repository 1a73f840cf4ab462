package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itsbohara/mlx-stt-server/internal/audio"
	"github.com/itsbohara/mlx-stt-server/internal/engine"
)

// ErrCapacityExceeded indicates the registry is at its configured maximum
// of concurrent sessions. Admission is rejected immediately, never queued.
var ErrCapacityExceeded = errors.New("session capacity exceeded")

// ErrNotFound indicates an operation on an unknown connection identity
var ErrNotFound = errors.New("session not found")

// Interval between idle/closed session sweeps
const cleanupInterval = 30 * time.Second

// RegistryConfig contains registry and per-session defaults
type RegistryConfig struct {
	MaxSessions      int
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	Encoding         audio.Encoding
	MinInferSamples  int
	MaxBufferSamples int
	Model            string
}

// Registry tracks all live streaming sessions keyed by connection identity.
// It owns the exclusive mapping from connection id to session and bounds the
// total number of concurrent sessions.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	logger *slog.Logger
	eng    engine.Engine
	cfg    RegistryConfig

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewRegistry creates a session registry and starts its cleanup routine
func NewRegistry(logger *slog.Logger, eng engine.Engine, cfg RegistryConfig) *Registry {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
		eng:      eng,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go r.cleanupRoutine()

	return r
}

// Create admits a new session for the given connection identity. It fails
// with ErrCapacityExceeded when the registry is full, without mutating any
// state. No two live sessions may share a connection identity.
func (r *Registry) Create(connID, language string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connID]; exists {
		return nil, fmt.Errorf("session already exists for connection %s", connID)
	}

	if len(r.sessions) >= r.cfg.MaxSessions {
		return nil, fmt.Errorf("%w: %d sessions active, maximum is %d",
			ErrCapacityExceeded, len(r.sessions), r.cfg.MaxSessions)
	}

	sess := New(r.ctx, Config{
		ID:               connID,
		Language:         language,
		Model:            r.cfg.Model,
		Encoding:         r.cfg.Encoding,
		SampleRate:       r.eng.SampleRate(),
		MinInferSamples:  r.cfg.MinInferSamples,
		MaxBufferSamples: r.cfg.MaxBufferSamples,
		IdleTimeout:      r.cfg.IdleTimeout,
	}, r.eng, r.logger)

	r.sessions[connID] = sess

	r.logger.Info("Created streaming session",
		slog.String("session_id", connID),
		slog.String("language", language),
		slog.Int("active_sessions", len(r.sessions)),
	)

	return sess, nil
}

// Get retrieves the session for a connection identity
func (r *Registry) Get(connID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[connID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, connID)
	}

	return sess, nil
}

// Remove aborts and releases the session for a connection identity.
// Removing an unknown identity is a no-op, so teardown paths stay idempotent.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	sess, exists := r.sessions[connID]
	if exists {
		delete(r.sessions, connID)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	sess.Abort()

	r.logger.Info("Removed streaming session",
		slog.String("session_id", connID),
		slog.Duration("duration", time.Since(sess.createdAt)),
		slog.String("final_state", sess.State().String()),
	)
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// GetAllInfo returns a snapshot of all live sessions for monitoring
func (r *Registry) GetAllInfo() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.sessions))
	for _, sess := range r.sessions {
		infos = append(infos, sess.GetInfo())
	}

	return infos
}

// Stop gracefully stops the registry. Live sessions are aborted and granted
// the shutdown timeout to let in-flight engine calls complete; whatever
// remains after that is force-killed.
func (r *Registry) Stop() {
	r.logger.Info("Stopping session registry...")

	r.mu.Lock()
	remaining := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		remaining = append(remaining, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range remaining {
		sess.Abort()
	}

	deadline := time.NewTimer(r.cfg.ShutdownTimeout)
	defer deadline.Stop()

	for _, sess := range remaining {
		select {
		case <-sess.Done():
		case <-deadline.C:
			for _, s := range remaining {
				s.Kill()
			}
			r.logger.Warn("Shutdown timeout exceeded, sessions force-closed",
				slog.Duration("shutdown_timeout", r.cfg.ShutdownTimeout),
			)
			r.finishStop()
			return
		}
	}

	r.finishStop()
}

func (r *Registry) finishStop() {
	r.cancel()
	<-r.cleanup

	r.logger.Info("Session registry stopped")
}

// cleanupRoutine periodically removes closed sessions and aborts sessions
// whose last activity exceeds the idle timeout. Sessions also time out on
// their own; this sweep is the backstop for leaked handlers.
func (r *Registry) cleanupRoutine() {
	defer close(r.cleanup)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.cleanupExpiredSessions()
		}
	}
}

func (r *Registry) cleanupExpiredSessions() {
	now := time.Now()
	expired := make([]string, 0)

	r.mu.RLock()
	for connID, sess := range r.sessions {
		if sess.State() == StateClosed || now.Sub(sess.LastActivity()) > r.cfg.IdleTimeout {
			expired = append(expired, connID)
		}
	}
	r.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	r.logger.Info("Cleaning up expired sessions",
		slog.Int("expired_count", len(expired)),
	)

	for _, connID := range expired {
		r.Remove(connID)
	}
}
