package server

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/itsbohara/mlx-stt-server/internal/protocol"
	"github.com/itsbohara/mlx-stt-server/internal/session"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from arbitrary origins on localhost setups
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn serializes writes to a websocket connection. The result writer
// goroutine and the read loop's error path both write, and gorilla/websocket
// allows only one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// handleRealtime implements the /v1/realtime WebSocket endpoint. Each
// connection owns exactly one streaming session; the session is admitted
// before the upgrade so capacity rejections surface as plain HTTP errors.
func (h *HTTPServer) handleRealtime(w http.ResponseWriter, r *http.Request) {
	connID := uuid.NewString()
	language := r.URL.Query().Get("language")

	sess, err := h.registry.Create(connID, language)
	if err != nil {
		if errors.Is(err, session.ErrCapacityExceeded) {
			h.metrics.RecordSessionRejected()
			h.writeError(w, http.StatusServiceUnavailable, "capacity_exceeded",
				"Maximum number of concurrent sessions reached")
			return
		}

		h.writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.registry.Remove(connID)
		h.logger.Warn("WebSocket upgrade failed",
			slog.String("session_id", connID),
			slog.String("error", err.Error()),
		)
		return
	}

	startTime := time.Now()
	h.metrics.RecordSessionCreated()
	h.metrics.SetActiveSessions(h.registry.Count())

	h.logger.Info("Realtime connection established",
		slog.String("session_id", connID),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("language", language),
	)

	ws := &wsConn{conn: conn}

	defer func() {
		h.registry.Remove(connID)
		ws.Close()
		h.metrics.RecordSessionClosed(time.Since(startTime).Seconds())
		h.metrics.SetActiveSessions(h.registry.Count())

		h.logger.Info("Realtime connection closed",
			slog.String("session_id", connID),
			slog.Duration("duration", time.Since(startTime)),
		)
	}()

	if err := ws.WriteJSON(protocol.NewReadyMessage(h.eng.SampleRate())); err != nil {
		sess.Abort()
		return
	}

	writerDone := make(chan struct{})
	go h.writeResults(ws, sess, writerDone)

	h.readMessages(ws, sess)

	<-writerDone
}

// readMessages consumes inbound frames until the connection or the session
// ends. Any protocol violation terminates the session.
func (h *HTTPServer) readMessages(ws *wsConn, sess *session.Session) {
	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			// Client disconnected or the writer closed the connection
			sess.Abort()
			return
		}

		h.metrics.RecordMessageReceived()

		msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			ws.WriteJSON(protocol.NewErrorMessage(err.Error()))
			sess.Abort()
			return
		}

		switch msg.Type {
		case protocol.TypeAudio:
			raw, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				h.metrics.RecordDecodeError()
				ws.WriteJSON(protocol.NewErrorMessage("invalid base64 audio data"))
				sess.Abort()
				return
			}

			if err := sess.PushAudio(raw); err != nil {
				return
			}

		case protocol.TypeEnd:
			if err := sess.PushEnd(); err != nil {
				return
			}
			// Keep reading so the client's close handshake is consumed;
			// further input is rejected by the session itself
		}
	}
}

// writeResults forwards session results to the client. After a clean final
// result it sends the done message, then closes the connection to unblock
// the read loop.
func (h *HTTPServer) writeResults(ws *wsConn, sess *session.Session, done chan struct{}) {
	defer close(done)

	sawFinal := false
	failed := false

	for res := range sess.Results() {
		if res.Err != nil {
			// Engine failures are counted by the engine client itself
			failed = true
			ws.WriteJSON(protocol.NewErrorMessage(res.Err.Error()))
			sess.Abort()
			continue
		}

		if res.Final {
			sawFinal = true
			h.metrics.RecordFinalResult()
		} else {
			h.metrics.RecordPartialResult()
		}

		if err := ws.WriteJSON(protocol.NewTranscriptionMessage(res.Text, res.Final)); err != nil {
			// Client is gone; keep draining so the session never blocks
			sess.Abort()
		}
	}

	if sawFinal && !failed {
		ws.WriteJSON(protocol.NewDoneMessage())
	}

	ws.Close()
}
