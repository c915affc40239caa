package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/middleware"
	"github.com/stemsi/mockexam-backend/internal/model"
	"github.com/stemsi/mockexam-backend/internal/runner"
	"github.com/stemsi/mockexam-backend/internal/service"
	ws "github.com/stemsi/mockexam-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// AttemptStreamer is the part of AttemptService the stream needs.
type AttemptStreamer interface {
	Subscribe(ctx context.Context, attemptID uuid.UUID, learnerID int) (<-chan service.StreamEvent, func(), error)
	Apply(ctx context.Context, attemptID uuid.UUID, learnerID int, cmd runner.Command) (*model.AttemptState, error)
}

// WSHandler streams a live attempt over a WebSocket.
type WSHandler struct {
	attempts AttemptStreamer
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts AttemptStreamer, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:id/stream?token=...
// Pushes the clock every second and the state after every command. Clients
// send the same commands as POST .../actions, plus "ping".
func (h *WSHandler) AttemptStream(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}
	learnerID := middleware.LearnerID(c)
	ctx := c.Request.Context()

	// Subscribe before upgrading so a finished or foreign attempt is
	// refused with a normal HTTP error.
	events, unsubscribe, err := h.attempts.Subscribe(ctx, id, learnerID)
	if err != nil {
		failFromError(c, err)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	ws.Prepare(conn)

	wsLog := h.log.With().Int("learner_id", learnerID).Str("attempt_id", id.String()).Logger()
	wsLog.Info().Msg("Learner connected")

	out := make(chan ws.Message, 8)
	writerDone := make(chan struct{})
	readerDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(writerDone)
		h.writeLoop(conn, wsLog, events, out, readerDone)
	}()

	send := func(m ws.Message) {
		select {
		case out <- m:
		case <-writerDone:
		}
	}

	h.command(ctx, id, learnerID, ws.Request{Action: string(runner.ActionSnapshot)}, send)
	for {
		var req ws.Request
		if err := ws.ReadJSON(conn, &req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		if req.Action == ws.ActionPing {
			send(ws.Message{Event: ws.EventPong})
			continue
		}
		h.command(ctx, id, learnerID, req, send)
	}

	close(readerDone)
	wg.Wait()
}

// command applies req. Successful commands reach every subscriber through
// the attempt's broadcast; snapshots and errors are answered directly.
func (h *WSHandler) command(ctx context.Context, id uuid.UUID, learnerID int, req ws.Request, send func(ws.Message)) {
	cmd := runner.Command{
		Action:   runner.Action(req.Action),
		Question: req.Question,
		Option:   req.Option,
		Index:    req.Index,
	}
	st, err := h.attempts.Apply(ctx, id, learnerID, cmd)
	if err != nil {
		send(ws.Message{Event: ws.EventError, Error: streamError(err)})
		return
	}
	if cmd.Action == runner.ActionSnapshot {
		send(ws.Message{Event: ws.EventState, Snapshot: &st.Snapshot, Result: st.Result})
	}
}

func streamError(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidAction):
		return "unknown action"
	case errors.Is(err, service.ErrAttemptClosed), errors.Is(err, service.ErrAttemptSubmitted):
		return "attempt is no longer accepting answers"
	default:
		return "command failed"
	}
}

// writeLoop owns all writes to conn.
func (h *WSHandler) writeLoop(conn *websocket.Conn, log zerolog.Logger, events <-chan service.StreamEvent, out <-chan ws.Message, stop <-chan struct{}) {
	ping := time.NewTicker(ws.PingPeriod)
	defer ping.Stop()

	for {
		var msg ws.Message
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt closed"),
					time.Now().Add(time.Second))
				return
			}
			msg = ws.Message{Event: ws.Event(ev.Type), Snapshot: ev.Snapshot, Result: ev.Result, Error: ev.Error}
		case msg = <-out:
		case <-ping.C:
			if err := ws.WritePing(conn); err != nil {
				log.Debug().Err(err).Msg("Ping failed")
				return
			}
			continue
		}
		if err := ws.WriteTyped(conn, msg); err != nil {
			log.Debug().Err(err).Msg("Write failed")
			return
		}
	}
}
