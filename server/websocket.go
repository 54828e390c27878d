package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bandhan-ai/ralph/graph"
	"github.com/bandhan-ai/ralph/session"
	"github.com/bandhan-ai/ralph/stream"
)

// inboundMessage is one client frame. Content is set for chat messages,
// Action and Data for approval responses.
type inboundMessage struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Action  string          `json:"action,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// wsConn serializes writes to one websocket connection. All turn events
// for a session flow through its transport's wsConn in order.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(ev stream.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteJSON(ev)
}

// handleWebSocket runs one session transport: open the session, greet
// the client, then process inbound frames on the session lane until the
// connection drops. Disconnection tears the session down; checkpoints
// let a reconnect under the same id pick the conversation back up.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Detached from the request context so an in-flight step finishes
	// cleanly when the client drops mid-turn.
	ctx := context.WithoutCancel(r.Context())
	sess, err := s.registry.Open(ctx, sessionID)
	if err != nil {
		s.log.Error().Err(err).Str("session", sessionID).Msg("failed to open session")
		return
	}

	s.setConnected(sessionID, true)
	defer func() {
		s.setConnected(sessionID, false)
		_ = s.registry.Close(ctx, sessionID)
	}()

	ws := &wsConn{conn: conn}
	log := s.log.Sub("ws").Zerolog().With().Str("session", sessionID).Logger()
	log.Info().Msg("client connected")

	if s.greeting != "" {
		ws.send(stream.FinalMessage(s.greeting))
	}

	// A session that suspended before a reconnect still owes the client
	// its approval request.
	if review := sess.PendingReview(); review != nil {
		ws.send(stream.ApprovalRequest(review))
	}

	translator := stream.NewTranslator(ws.send)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Msg("client disconnected")
			} else {
				log.Warn().Err(err).Msg("read error")
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			ws.send(stream.ErrorEvent("invalid message: " + err.Error()))
			continue
		}
		if msg.Type == "" {
			msg.Type = "message"
		}

		switch msg.Type {
		case "message":
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			ws.send(stream.UserMessage(msg.Content))
			translator.Begin()
			_, err := sess.Turn(ctx, s.engine, msg.Content, translator.Handle)
			if err != nil && isLaneError(err) {
				ws.send(stream.ErrorEvent(err.Error()))
				ws.send(stream.Typing(false))
			}

		case "approval_response":
			decision := graph.ReviewDecision{
				Action: graph.ReviewAction(msg.Action),
				Data:   msg.Data,
			}
			translator.Begin()
			_, err := sess.Resume(ctx, s.engine, decision, translator.Handle)
			if err != nil && isLaneError(err) {
				ws.send(stream.ErrorEvent(err.Error()))
				ws.send(stream.Typing(false))
			}

		case "ping":
			ws.send(stream.Pong())

		default:
			log.Warn().Str("type", msg.Type).Msg("unknown message type")
		}
	}
}

// isLaneError reports whether the error came from the session lane
// guards rather than the engine; engine failures already surfaced
// through the event stream.
func isLaneError(err error) bool {
	return errors.Is(err, session.ErrTurnInFlight) ||
		errors.Is(err, session.ErrReviewPending) ||
		errors.Is(err, session.ErrNoPendingReview) ||
		errors.Is(err, session.ErrSessionNotFound)
}
