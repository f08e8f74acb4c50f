// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// =============================================================================
// STREAMING SEARCH MODULE - PHASE RELAY
// =============================================================================
//
// This module re-frames the retrieval platform's event stream into the phase
// protocol consumed by frontends. One turn produces, in order:
//
//	search → synthesis → session_created|session_continued (at most once)
//	       → answer* → citations? → validation_start? → validation_thinking*
//	       → validation_complete? → complete
//
// The main stage relays upstream events verbatim; answer text is accumulated
// in mlocked memory so citation markers can be resolved and the fact-check
// pass can run over the finished answer. A main-stage failure ends the stream
// with a terminal error frame. A validation-stage failure is surfaced as an
// error frame but the stream still finishes with complete, since the answer
// itself already reached the client.
//
// Queries pass the configured content filter before they are stored in
// session history or sent upstream, and every turn leaves a record in the
// audit trail. Both hooks default to no-ops.
//
// The SSE endpoint (HandleSearchStream) and the WebSocket mirror
// (HandleSearchSocket, websocket.go) drive the same pipeline through an emit
// callback, so frame ordering is identical on both transports.
//
// =============================================================================

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/miras/pkg/extensions"
	"github.com/AleutianAI/miras/services/backend/datatypes"
	"github.com/AleutianAI/miras/services/backend/middleware"
	"github.com/AleutianAI/miras/services/backend/observability"
	"github.com/AleutianAI/miras/services/backend/store"
	"github.com/AleutianAI/miras/services/contextual"
	"github.com/AleutianAI/miras/services/factcheck"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// heartbeatInterval is the interval for sending keepalive pings.
	// Set to 15s to stay well under typical LB timeouts (60s for ALB/Nginx).
	heartbeatInterval = 15 * time.Second

	// searchStatusText is the content of the opening search frame.
	searchStatusText = "Searching documents..."

	// synthesisStatusText is the content of the synthesis frame, sent once
	// the upstream connection is live.
	synthesisStatusText = "Analyzing results..."

	// validationStatusText opens the validation stage.
	validationStatusText = "Starting validation..."
)

// emitFunc delivers one phase frame to the client. Implementations are the
// SSE writer's WriteEvent and the WebSocket JSON writer; returning an error
// aborts the pipeline.
type emitFunc func(datatypes.PhaseEvent) error

// =============================================================================
// Interface Definition
// =============================================================================

// SearchHandler defines the contract for the streaming search endpoints.
//
// # Description
//
// SearchHandler exposes the phase-framed search pipeline over SSE and
// WebSocket. Both transports emit identical frame sequences.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
// HTTP handlers are called concurrently by the Gin framework.
//
// # Assumptions
//
//   - All dependencies are properly initialized before handler use
//   - Gin context is valid and not nil
type SearchHandler interface {
	// HandleSearchStream processes POST /api/search requests with SSE
	// streaming of phase frames.
	HandleSearchStream(c *gin.Context)

	// HandleSearchSocket upgrades GET /api/search/ws to a WebSocket and
	// serves query turns over it, one phase-frame sequence per turn.
	HandleSearchSocket(c *gin.Context)
}

// searchHandler implements SearchHandler backed by the retrieval platform
// client, the session store, and an optional fact-check validator.
//
// # Fields
//
//   - upstream: Retrieval platform client. Must not be nil.
//   - validator: Fact-check validator. Nil disables the validation stage.
//   - sessions: Local session bookkeeping. Must not be nil.
//   - filter: Content filter applied to queries before storage.
//   - audit: Audit trail for completed and blocked turns.
//   - tracer: OpenTelemetry tracer for spans.
//
// # Thread Safety
//
// Safe for concurrent use; per-turn state lives in searchRelay values.
type searchHandler struct {
	upstream  *contextual.Client
	validator *factcheck.Validator
	sessions  *store.SessionStore
	filter    extensions.MessageFilter
	audit     extensions.AuditLogger
	tracer    trace.Tracer
}

// =============================================================================
// Constructor
// =============================================================================

// NewSearchHandler creates a SearchHandler with the provided dependencies.
//
// # Inputs
//
//   - upstream: Retrieval platform client. Must not be nil.
//   - validator: Fact-check validator. May be nil to disable the
//     validation stage (no frames after citations except complete).
//   - sessions: Session store for turn bookkeeping. Must not be nil.
//   - opts: Extension points. Nil filter and audit fields fall back to
//     the no-op implementations, so extensions.DefaultOptions() and a
//     zero ServiceOptions behave identically here.
//
// # Outputs
//
//   - SearchHandler: Ready for use with the Gin router.
//
// # Limitations
//
//   - Panics on nil upstream or sessions (programming errors).
func NewSearchHandler(upstream *contextual.Client, validator *factcheck.Validator, sessions *store.SessionStore, opts extensions.ServiceOptions) SearchHandler {
	if upstream == nil {
		panic("NewSearchHandler: upstream must not be nil")
	}
	if sessions == nil {
		panic("NewSearchHandler: sessions must not be nil")
	}
	if opts.MessageFilter == nil {
		opts.MessageFilter = &extensions.NopMessageFilter{}
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = &extensions.NopAuditLogger{}
	}

	return &searchHandler{
		upstream:  upstream,
		validator: validator,
		sessions:  sessions,
		filter:    opts.MessageFilter,
		audit:     opts.AuditLogger,
		tracer:    otel.Tracer("miras.backend.handlers.search"),
	}
}

// =============================================================================
// Handler Methods
// =============================================================================

// HandleSearchStream processes streaming search requests over SSE.
//
// # Description
//
// Handles POST /api/search requests. The flow is:
//  1. Parse and validate the request body
//  2. Screen the query through the content filter
//  3. Record the turn against its session (allocating one if needed)
//  4. Set SSE headers and create the phase writer
//  5. Start the keepalive heartbeat
//  6. Run the phase relay pipeline for the turn
//  7. Backfill the stored message and record the audit event
//
// Later turns of a session resume the upstream conversation under the
// session's identifier; the first turn lets the platform allocate a fresh
// conversation and announces it in a session_created frame.
//
// # Inputs
//
//   - c: Gin context containing the HTTP request.
//
// Request Body (datatypes.SearchRequest):
//   - query: Required. The user's question.
//   - session_id: Optional. Continues an existing local session.
func (h *searchHandler) HandleSearchStream(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointSearchStream

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleSearchStream")
	defer span.End()

	// Track active stream (for metrics)
	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		// Record final metrics
		if m := observability.DefaultMetrics; m != nil {
			duration := time.Since(startTime).Seconds()
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, duration, success)
		}
	}()

	// Step 1: Parse request body
	var req datatypes.SearchRequest
	if err := c.BindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse search request", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// Step 2: Validate request
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		slog.Error("Search request validation failed", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	// Step 3: Screen the query through the content filter
	screened, err := h.screenQuery(ctx, req.Query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "content filter failed")
		slog.Error("Content filter failed", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "content filter unavailable"})
		return
	}
	if screened.WasBlocked {
		span.SetStatus(codes.Error, "query blocked by content filter")
		slog.Warn("Content filter blocked a query", "reason", screened.BlockReason)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		h.auditQuery(ctx, extensions.EventQueryBlocked, requestUserID(c), req.SessionID, "blocked", map[string]any{
			"query_length": len(req.Query),
			"reason":       screened.BlockReason,
		})
		c.JSON(http.StatusBadRequest, gin.H{"error": "query rejected by content filter"})
		return
	}

	// Step 4: Record the turn against its session
	sess, msg := h.sessions.AppendQuery(req.SessionID, screened.Filtered)

	span.SetAttributes(
		attribute.String("search.session_id", sess.ID),
		attribute.Int("search.turn", sess.MessageCount),
		attribute.Int("search.query_length", len(screened.Filtered)),
	)

	turn := searchTurn{Query: screened.Filtered}
	if sess.MessageCount > 1 {
		// Later turns resume the upstream conversation under the session's id.
		turn.ConversationID = sess.ID
	}

	// Step 5: Set SSE headers and create writer
	SetSSEHeaders(c.Writer)
	writer, err := NewPhaseWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "SSE setup failed")
		slog.Error("Failed to create phase writer", "error", err, "session_id", sess.ID)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	// Step 6: Start heartbeat goroutine to prevent connection timeouts
	heartbeatDone := make(chan struct{})
	go runHeartbeat(ctx, writer, endpoint, heartbeatDone)

	// Step 7: Run the phase relay pipeline
	outcome := h.executeSearchTurn(ctx, turn, endpoint, writer.WriteEvent)

	// Stop heartbeat
	close(heartbeatDone)

	// Step 8: Backfill the stored message and record the audit event
	h.sessions.CompleteMessage(sess.ID, msg.ID, outcome.Answer)
	h.auditQuery(ctx, extensions.EventSearchQuery, requestUserID(c), sess.ID, auditOutcome(outcome.Err), map[string]any{
		"query_length": len(screened.Filtered),
		"chunk_count":  outcome.ChunkCount,
	})

	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, "search stream failed")
		span.SetAttributes(attribute.Int("stream.chunk_count", outcome.ChunkCount))
		slog.Error("Search stream failed",
			"error", outcome.Err,
			"session_id", sess.ID,
			"chunk_count", outcome.ChunkCount,
		)
		h.recordStreamError(endpoint, outcome.Err)
		// Error already framed to the client
		return
	}

	// Record time to first answer
	if !outcome.FirstAnswerAt.IsZero() {
		ttfa := outcome.FirstAnswerAt.Sub(startTime).Seconds()
		span.SetAttributes(attribute.Float64("stream.time_to_first_answer_seconds", ttfa))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstAnswer(endpoint, ttfa)
		}
	}

	span.SetAttributes(attribute.Int("stream.chunk_count", outcome.ChunkCount))

	success = true
	span.SetStatus(codes.Ok, "stream completed")
}

// =============================================================================
// Relay Pipeline
// =============================================================================

// searchTurn carries one resolved query turn into the relay pipeline.
type searchTurn struct {
	// Query is the user's question.
	Query string

	// ConversationID resumes an upstream conversation. Empty means the
	// platform allocates a fresh one and announces it via metadata.
	ConversationID string
}

// searchOutcome reports what one pipeline run produced.
type searchOutcome struct {
	// Answer is the finalized answer text, empty when the turn failed or
	// accumulation overflowed.
	Answer string

	// AnswerHash is the SHA-256 of the answer (hex), empty alongside Answer.
	AnswerHash string

	// ChunkCount is the number of relayed answer chunks.
	ChunkCount int

	// FirstAnswerAt is when the first answer chunk arrived (zero if none).
	FirstAnswerAt time.Time

	// Err is the terminal main-stage failure, nil on success. The error
	// frame, when one could be delivered, has already been written.
	Err error
}

// searchRelay tracks the per-turn state of the phase relay while upstream
// events are being consumed.
type searchRelay struct {
	emit     emitFunc
	acc      AnswerAccumulator
	endpoint observability.Endpoint

	// continued is true when the turn resumed an existing upstream
	// conversation, selecting session_continued over session_created.
	continued bool

	synthesisSent    bool
	sessionAnnounced bool

	retrievals    []contextual.Retrieval
	chunkCount    int
	firstAnswerAt time.Time
}

// executeSearchTurn runs the full phase sequence for one turn, delivering
// frames through emit.
//
// # Description
//
// Emits the search frame, consumes the upstream query stream, then closes
// the turn: citations resolved from the finished answer, the optional
// fact-check stage, and the terminal complete frame. Main-stage failures
// produce a terminal error frame instead; validation-stage failures are
// surfaced in-band and complete still fires.
//
// # Inputs
//
//   - ctx: Request context; cancellation stops upstream consumption.
//   - turn: Resolved query turn.
//   - endpoint: Endpoint label for metrics.
//   - emit: Frame delivery callback (SSE or WebSocket).
//
// # Outputs
//
//   - searchOutcome: Answer text, stream counters, and the terminal error.
func (h *searchHandler) executeSearchTurn(ctx context.Context, turn searchTurn, endpoint observability.Endpoint, emit emitFunc) searchOutcome {
	relay := &searchRelay{
		emit:      emit,
		acc:       NewAnswerAccumulator(),
		endpoint:  endpoint,
		continued: contextual.ValidConversationID(turn.ConversationID),
	}
	defer relay.acc.Destroy()

	// The search frame precedes the upstream connection attempt, so even a
	// refused connection yields search followed by a terminal error frame.
	if err := emit(datatypes.PhaseEvent{Phase: datatypes.PhaseSearch, Content: searchStatusText}); err != nil {
		return relay.outcome(err)
	}

	upstreamErr := h.upstream.QueryStream(ctx, contextual.QueryRequest{
		Query:          turn.Query,
		ConversationID: turn.ConversationID,
	}, func(ev *contextual.UpstreamEvent) error {
		return relay.handleUpstreamEvent(ctx, ev)
	})
	if upstreamErr != nil {
		if !errors.Is(upstreamErr, context.Canceled) {
			// StatusError.Error() carries the client-facing "API Error: <code>"
			// form; other failures surface their message as-is.
			_ = emit(datatypes.PhaseEvent{Phase: datatypes.PhaseError, Error: upstreamErr.Error()})
		}
		return relay.outcome(upstreamErr)
	}

	// An empty upstream stream still shows the synthesis transition.
	if err := relay.ensureSynthesis(); err != nil {
		return relay.outcome(err)
	}

	answer, answerHash, finErr := relay.acc.Finalize()
	if finErr != nil {
		// The relayed chunks already reached the client; only citation
		// resolution and the fact-check pass degrade.
		slog.Warn("Answer finalization failed, skipping citations and validation",
			"error", finErr,
			"accumulator_id", relay.acc.ID(),
		)
	}

	if citations := ExtractCitations(answer, relay.retrievals); len(citations) > 0 {
		if err := emit(datatypes.PhaseEvent{Phase: datatypes.PhaseCitations, Citations: citations}); err != nil {
			return relay.outcome(err)
		}
	}

	if h.validator != nil && answer != "" {
		if err := h.relayValidation(ctx, turn.Query, answer, relay.retrievals, endpoint, emit); err != nil {
			return relay.outcome(err)
		}
	}

	if err := emit(datatypes.PhaseEvent{Phase: datatypes.PhaseComplete}); err != nil {
		return relay.outcome(err)
	}

	out := relay.outcome(nil)
	out.Answer = answer
	out.AnswerHash = answerHash
	return out
}

// outcome snapshots the relay counters with the given terminal error.
func (r *searchRelay) outcome(err error) searchOutcome {
	return searchOutcome{
		ChunkCount:    r.chunkCount,
		FirstAnswerAt: r.firstAnswerAt,
		Err:           err,
	}
}

// handleUpstreamEvent dispatches one decoded upstream event into phase
// frames. The first event of any kind triggers the synthesis frame, since
// its arrival proves the upstream connection is live.
func (r *searchRelay) handleUpstreamEvent(ctx context.Context, ev *contextual.UpstreamEvent) error {
	// Stop consuming when the client has gone away.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.ensureSynthesis(); err != nil {
		return err
	}

	switch ev.Type {
	case contextual.EventMetadata:
		return r.announceSession(ev.ConversationID)
	case contextual.EventMessageDelta:
		return r.relayAnswerChunk(ev.Delta)
	case contextual.EventRetrievals:
		// Captured for citation resolution and the fact-check pass.
		r.retrievals = ev.Retrievals
	}
	// Groundedness scores and unknown events are not re-framed.
	return nil
}

// ensureSynthesis emits the synthesis frame exactly once.
func (r *searchRelay) ensureSynthesis() error {
	if r.synthesisSent {
		return nil
	}
	r.synthesisSent = true
	return r.emit(datatypes.PhaseEvent{Phase: datatypes.PhaseSynthesis, Content: synthesisStatusText})
}

// announceSession emits the session frame for the first metadata event.
// Repeated metadata events are dropped so the announced conversation id
// never changes mid-turn.
func (r *searchRelay) announceSession(conversationID string) error {
	if r.sessionAnnounced {
		return nil
	}
	r.sessionAnnounced = true

	phase := datatypes.PhaseSessionCreated
	if r.continued {
		phase = datatypes.PhaseSessionContinued
	}
	return r.emit(datatypes.PhaseEvent{Phase: phase, SessionID: conversationID})
}

// relayAnswerChunk forwards one answer chunk verbatim and accumulates it
// for the closing stages. Accumulation failures are logged but do not stop
// the relay; citations and validation degrade without the full text.
func (r *searchRelay) relayAnswerChunk(delta string) error {
	if r.firstAnswerAt.IsZero() {
		r.firstAnswerAt = time.Now()
	}
	r.chunkCount++
	if m := observability.DefaultMetrics; m != nil {
		m.RecordAnswerChunk(r.endpoint)
	}

	if err := r.acc.Write(delta); err != nil {
		slog.Warn("Answer accumulation failed",
			"error", err,
			"accumulator_id", r.acc.ID(),
		)
	}

	return r.emit(datatypes.PhaseEvent{Phase: datatypes.PhaseAnswer, Content: delta})
}

// relayValidation runs the fact-check stage over the finished answer.
//
// # Description
//
// Opens with validation_start, relays cleaned thought chunks as
// validation_thinking, and closes with validation_complete carrying the
// parsed result. A validator-side failure is surfaced as an error frame;
// the caller still emits complete afterwards, which is what distinguishes
// a validation-stage error from a terminal main-stage one.
//
// # Outputs
//
//   - error: Non-nil only when a frame could not be delivered.
func (h *searchHandler) relayValidation(ctx context.Context, query, answer string, sources []contextual.Retrieval, endpoint observability.Endpoint, emit emitFunc) error {
	if err := emit(datatypes.PhaseEvent{Phase: datatypes.PhaseValidationStart, Content: validationStatusText}); err != nil {
		return err
	}

	gotResult := false
	err := h.validator.ValidateStream(ctx, query, answer, sources, func(ev factcheck.Event) error {
		switch ev.Type {
		case factcheck.EventThought:
			return emit(datatypes.PhaseEvent{
				Phase:   datatypes.PhaseValidationThinking,
				Content: factcheck.CleanThinking(ev.Text),
			})
		case factcheck.EventResult:
			gotResult = true
			return emit(datatypes.PhaseEvent{
				Phase:      datatypes.PhaseValidationComplete,
				Validation: ev.Result,
			})
		case factcheck.EventError:
			return emit(datatypes.PhaseEvent{Phase: datatypes.PhaseError, Error: ev.Err.Error()})
		}
		// Raw JSON answer chunks are internal to the validator.
		return nil
	})
	if err != nil {
		// Frame delivery failed; the client is gone.
		return err
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordValidationRun(gotResult)
		if !gotResult {
			m.RecordError(endpoint, observability.ErrorCodeFactCheck)
		}
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// runHeartbeat sends periodic keepalive pings to prevent connection timeouts.
//
// # Description
//
// Runs in a separate goroutine, sending SSE comments every heartbeatInterval
// to keep the connection alive during long operations (retrieval, fact-check
// thinking). Stops when done channel is closed or context is cancelled.
//
// # Inputs
//
//   - ctx: Context for cancellation detection.
//   - writer: Phase writer to send keepalives.
//   - endpoint: Endpoint name for metrics.
//   - done: Channel to signal when to stop (close to stop).
func runHeartbeat(
	ctx context.Context,
	writer PhaseWriter,
	endpoint observability.Endpoint,
	done <-chan struct{},
) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				slog.Debug("Failed to write keepalive", "error", err)
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(endpoint)
			}
		}
	}
}

// recordStreamError categorizes a terminal pipeline failure for metrics.
func (h *searchHandler) recordStreamError(endpoint observability.Endpoint, err error) {
	m := observability.DefaultMetrics
	if m == nil {
		return
	}

	if _, ok := contextual.AsStatusError(err); ok {
		m.RecordError(endpoint, observability.ErrorCodeUpstreamHTTP)
		return
	}
	if errors.Is(err, context.Canceled) {
		m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
		m.RecordClientDisconnect(endpoint)
		return
	}
	m.RecordError(endpoint, observability.ErrorCodeUpstreamStream)
}

// screenQuery runs the content filter over an incoming query. The returned
// result's Filtered text is what may be stored and sent upstream. A filter
// failure fails the request closed rather than skipping the screening.
func (h *searchHandler) screenQuery(ctx context.Context, query string) (*extensions.FilterResult, error) {
	res, err := h.filter.FilterInput(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("content filter failed: %w", err)
	}
	if res.WasModified {
		slog.Info("Content filter modified a query", "detections", len(res.Detections))
	}
	return res, nil
}

// auditQuery records one search turn in the audit trail.
func (h *searchHandler) auditQuery(ctx context.Context, eventType, userID, sessionID, outcome string, metadata map[string]any) {
	auditRecord(ctx, h.audit, extensions.AuditEvent{
		EventType:    eventType,
		UserID:       userID,
		Action:       "search",
		ResourceType: "session",
		ResourceID:   sessionID,
		Outcome:      outcome,
		Metadata:     metadata,
	})
}

// auditOutcome maps a terminal pipeline error to an audit outcome label.
func auditOutcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// requestUserID names the authenticated principal for audit records.
func requestUserID(c *gin.Context) string {
	if info := middleware.GetAuthInfo(c); info != nil {
		return info.UserID
	}
	return ""
}
