package handler

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/efreitasn/hookrelay/internal/domain"
	"github.com/efreitasn/hookrelay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

const (
	// wsWriteTimeout is the deadline for a single write to a WebSocket client.
	wsWriteTimeout = 10 * time.Second

	// wsReadLimit caps inbound frames; clients are not expected to send data.
	wsReadLimit = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; identifications are not secrets.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// laggedEvent tells a stream client how many captures it missed.
type laggedEvent struct {
	Missed uint64 `json:"missed"`
}

// wsMessage is the envelope for WebSocket frames.
type wsMessage struct {
	Event  string                  `json:"event"`
	Data   *domain.CapturedRequest `json:"data,omitempty"`
	Missed uint64                  `json:"missed,omitempty"`
}

// StreamHandler drives live-update streams over SSE and WebSocket.
type StreamHandler struct {
	captureSvc *service.CaptureService
	keepalive  time.Duration
	pongWait   time.Duration // WebSocket read deadline, extended by each pong
	logger     *slog.Logger
}

// NewStreamHandler creates a new StreamHandler. keepalive is how often an
// idle SSE stream gets a comment and how often a WebSocket peer is pinged.
func NewStreamHandler(captureSvc *service.CaptureService, keepalive time.Duration, logger *slog.Logger) *StreamHandler {
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	return &StreamHandler{
		captureSvc: captureSvc,
		keepalive:  keepalive,
		pongWait:   2*keepalive + wsWriteTimeout,
		logger:     logger,
	}
}

// nextOrKeepalive waits for the next event for at most h.keepalive. timedOut
// is true when the wait ended only because the keepalive interval elapsed.
func (h *StreamHandler) nextOrKeepalive(ctx context.Context, session *service.StreamSession) (ev service.Event, timedOut bool, err error) {
	waitCtx, cancel := context.WithTimeout(ctx, h.keepalive)
	defer cancel()

	ev, err = session.Next(waitCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return service.Event{}, true, nil
	}
	return ev, false, err
}

func (h *StreamHandler) logStreamEnd(ctx context.Context, transport string, session *service.StreamSession, err error) {
	reason := "closed"
	switch {
	case errors.Is(err, domain.ErrStreamClosed):
		reason = "channel_closed"
	case ctx.Err() != nil:
		reason = "client_disconnected"
	case err != nil:
		reason = "write_failed"
	}
	h.logger.Info("stream closed",
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("transport", transport),
		slog.String("id", session.Key()),
		slog.String("subscription", session.ID().String()),
		slog.Uint64("delivered", session.Delivered()),
		slog.String("reason", reason),
	)
}

// Events handles GET /events/{id}. Each capture is written as
// "data: <json>\n\n" until the client disconnects or the stream's channel
// closes.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	id := chi.URLParam(r, "id")
	ctx := r.Context()

	session := h.captureSvc.HandleSubscribe(id)
	defer session.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("stream opened",
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("transport", "sse"),
		slog.String("id", id),
		slog.String("subscription", session.ID().String()),
	)

	bw := bufio.NewWriterSize(w, 16*1024)
	err := h.pumpSSE(ctx, session, bw, flusher)
	h.logStreamEnd(ctx, "sse", session, err)
}

func (h *StreamHandler) pumpSSE(ctx context.Context, session *service.StreamSession, bw *bufio.Writer, flusher http.Flusher) error {
	for {
		ev, timedOut, err := h.nextOrKeepalive(ctx, session)
		if err != nil {
			return err
		}

		if timedOut {
			if _, err := bw.WriteString(": keepalive\n\n"); err != nil {
				return err
			}
		} else {
			if ev.Missed > 0 {
				if err := writeSSE(bw, "lagged", laggedEvent{Missed: ev.Missed}); err != nil {
					return err
				}
			}
			if err := writeSSE(bw, "", ev.Request); err != nil {
				return err
			}
		}

		if err := bw.Flush(); err != nil {
			return err
		}
		flusher.Flush()
	}
}

// writeSSE writes one server-sent event. An empty eventName produces a
// default "message" event with only a data line.
func writeSSE(w *bufio.Writer, eventName string, data any) error {
	b, err := marshalCompact(data)
	if err != nil {
		return err
	}
	if eventName != "" {
		if _, err := w.WriteString("event: " + eventName + "\n"); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}
	return nil
}

// WebSocket handles GET /ws/{id}. Each capture is sent as one JSON text
// frame {"event":"capture","data":{...}}; losses are reported as
// {"event":"lagged","missed":N}.
func (h *StreamHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}
	defer conn.Close()

	id := chi.URLParam(r, "id")
	session := h.captureSvc.HandleSubscribe(id)
	defer session.Close()

	// The request context does not end on a hijacked connection, so the read
	// pump cancels ctx when the peer goes away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readPump(conn, h.pongWait, cancel)

	h.logger.Info("stream opened",
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("transport", "websocket"),
		slog.String("id", id),
		slog.String("subscription", session.ID().String()),
	)

	err = h.pumpWebSocket(ctx, session, conn)
	h.logStreamEnd(ctx, "websocket", session, err)

	if errors.Is(err, domain.ErrStreamClosed) {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
		conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"))
	}
}

// pumpWebSocket writes captures as they arrive and pings the peer every
// keepalive interval whether or not captures are flowing, so the peer's pongs
// keep extending the read deadline set by readPump.
func (h *StreamHandler) pumpWebSocket(ctx context.Context, session *service.StreamSession, conn *websocket.Conn) error {
	nextPing := time.Now().Add(h.keepalive)
	for {
		if !time.Now().Before(nextPing) {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
			nextPing = time.Now().Add(h.keepalive)
		}

		waitCtx, cancel := context.WithDeadline(ctx, nextPing)
		ev, err := session.Next(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return err
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
		if ev.Missed > 0 {
			if err := conn.WriteJSON(wsMessage{Event: "lagged", Missed: ev.Missed}); err != nil {
				return err
			}
		}
		req := ev.Request
		if err := conn.WriteJSON(wsMessage{Event: "capture", Data: &req}); err != nil {
			return err
		}
	}
}

// readPump reads frames to process control messages and detect disconnects.
// It calls done once the connection fails or the peer stops answering pings.
func readPump(conn *websocket.Conn, pongWait time.Duration, done func()) {
	defer done()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
