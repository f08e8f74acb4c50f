package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/miras/pkg/extensions"
	"github.com/AleutianAI/miras/services/backend/datatypes"
	"github.com/AleutianAI/miras/services/backend/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// 10MB Read Buffer
	ReadBufferSize: 10 * 1024 * 1024,
	// 10MB Write Buffer
	WriteBufferSize: 10 * 1024 * 1024,
}

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleSearchSocket mirrors the SSE search endpoint over a WebSocket.
// Each JSON message read from the socket is one query turn; the turn's
// phase frames are written back as JSON objects in the same order the SSE
// endpoint would emit them. The socket keeps a local session so consecutive
// turns share history without the client resending the id.
func (h *searchHandler) HandleSearchSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	// --- WebSocket Connection State ---
	sessionID := uuid.New().String()
	// Identity is resolved once at upgrade time and covers every turn on
	// this socket.
	user := requestUserID(c)
	slog.Info("Websocket search client connected", "session_id", sessionID)

	// --- Send the local session id to the client immediately on connect ---
	if err := sendJSON(ws, gin.H{
		"action":     "connected",
		"session_id": sessionID,
	}); err != nil {
		return // Close if we can't even send the first message
	}

	for {
		var req datatypes.SearchRequest
		if err := ws.ReadJSON(&req); err != nil {
			slog.Info("Websocket search client disconnected", "error", err.Error())
			return
		}

		// Clients can rebind the socket to an existing session.
		if req.SessionID != "" {
			sessionID = req.SessionID
		}

		if !h.serveSocketTurn(c.Request.Context(), ws, user, sessionID, req) {
			return
		}
	}
}

// serveSocketTurn runs one query turn over the socket. Returns false when
// the socket is no longer usable and the read loop should stop.
func (h *searchHandler) serveSocketTurn(ctx context.Context, ws *websocket.Conn, user, sessionID string, req datatypes.SearchRequest) bool {
	startTime := time.Now()
	endpoint := observability.EndpointSearchWS

	ctx, span := h.tracer.Start(ctx, "HandleSearchSocketTurn")
	defer span.End()

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	// Per-turn request errors are framed instead of producing HTTP statuses;
	// the socket survives them.
	if req.Query == "" {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		return sendJSON(ws, datatypes.PhaseEvent{Phase: datatypes.PhaseError, Error: "query is required"}) == nil
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		return sendJSON(ws, datatypes.PhaseEvent{Phase: datatypes.PhaseError, Error: "invalid request: validation failed"}) == nil
	}

	screened, err := h.screenQuery(ctx, req.Query)
	if err != nil {
		span.RecordError(err)
		slog.Error("Content filter failed", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		return sendJSON(ws, datatypes.PhaseEvent{Phase: datatypes.PhaseError, Error: "content filter unavailable"}) == nil
	}
	if screened.WasBlocked {
		slog.Warn("Content filter blocked a query", "reason", screened.BlockReason)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		h.auditQuery(ctx, extensions.EventQueryBlocked, user, sessionID, "blocked", map[string]any{
			"query_length": len(req.Query),
			"reason":       screened.BlockReason,
		})
		return sendJSON(ws, datatypes.PhaseEvent{Phase: datatypes.PhaseError, Error: "query rejected by content filter"}) == nil
	}

	sess, msg := h.sessions.AppendQuery(sessionID, screened.Filtered)

	span.SetAttributes(
		attribute.String("search.session_id", sess.ID),
		attribute.Int("search.turn", sess.MessageCount),
	)

	turn := searchTurn{Query: screened.Filtered}
	if sess.MessageCount > 1 {
		turn.ConversationID = sess.ID
	}

	writeFailed := false
	outcome := h.executeSearchTurn(ctx, turn, endpoint, func(ev datatypes.PhaseEvent) error {
		if err := ws.WriteJSON(ev); err != nil {
			writeFailed = true
			return err
		}
		return nil
	})

	h.sessions.CompleteMessage(sess.ID, msg.ID, outcome.Answer)
	h.auditQuery(ctx, extensions.EventSearchQuery, user, sess.ID, auditOutcome(outcome.Err), map[string]any{
		"query_length": len(screened.Filtered),
		"chunk_count":  outcome.ChunkCount,
	})

	success := outcome.Err == nil
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, success)
		m.RecordStreamDuration(endpoint, time.Since(startTime).Seconds(), success)
		if !outcome.FirstAnswerAt.IsZero() {
			m.RecordTimeToFirstAnswer(endpoint, outcome.FirstAnswerAt.Sub(startTime).Seconds())
		}
	}

	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, "socket turn failed")
		h.recordStreamError(endpoint, outcome.Err)
		if writeFailed {
			slog.Info("Websocket search client went away mid-turn", "session_id", sess.ID)
			return false
		}
		// Upstream failed but the error frame was delivered; the socket is
		// still healthy and the next turn can proceed.
		return true
	}

	span.SetStatus(codes.Ok, "turn completed")
	return true
}
