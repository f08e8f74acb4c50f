// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/miras/pkg/extensions"
	"github.com/AleutianAI/miras/services/backend/datatypes"
	"github.com/AleutianAI/miras/services/backend/store"
	"github.com/AleutianAI/miras/services/contextual"
	"github.com/AleutianAI/miras/services/factcheck"
	"github.com/AleutianAI/miras/services/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Test Setup
// =============================================================================

// queryPayload is the body the upstream mock receives for each query.
type queryPayload struct {
	ConversationID string `json:"conversation_id"`
	Messages       []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// upstreamRecorder captures query payloads sent to the upstream mock.
type upstreamRecorder struct {
	mu       sync.Mutex
	payloads []queryPayload
}

func (r *upstreamRecorder) record(req *http.Request) queryPayload {
	var p queryPayload
	_ = json.NewDecoder(req.Body).Decode(&p)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return p
}

func (r *upstreamRecorder) payload(i int) queryPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payloads[i]
}

// newTestUpstream builds a contextual client against a mock platform
// server. The server is closed with the test.
func newTestUpstream(t *testing.T, handler http.HandlerFunc) *contextual.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := contextual.NewClient(contextual.Config{
		APIKey:  "test-key",
		AgentID: "test-agent",
		BaseURL: srv.URL,
	})
	require.NoError(t, err, "test upstream client should build")
	return client
}

// writeQueryStream emits raw frame payloads in the platform's SSE
// format, terminated by the done sentinel.
func writeQueryStream(w http.ResponseWriter, payloads ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, p := range payloads {
		fmt.Fprintf(w, "data: %s\n\n", p)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// scriptedLLM implements llm.Client with canned validation output.
type scriptedLLM struct {
	thoughts  []string
	answer    string
	streamErr error
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	if s.streamErr != nil {
		return "", s.streamErr
	}
	return s.answer, nil
}

func (s *scriptedLLM) GenerateStream(ctx context.Context, prompt string, params llm.GenerationParams, callback llm.StreamCallback) error {
	for _, th := range s.thoughts {
		if err := callback(llm.StreamEvent{Type: llm.EventThinking, Content: th}); err != nil {
			return err
		}
	}
	if s.streamErr != nil {
		return s.streamErr
	}
	return callback(llm.StreamEvent{Type: llm.EventToken, Content: s.answer})
}

// validResultJSON is a validation answer the fact-check parser accepts.
const validResultJSON = `{"query_answered": true, "facts_checked": [{"fact": "The report covers 2024", "verified": true, "page_found": "3"}], "overall_accuracy": "high"}`

// performSearch posts one search request through the router and returns
// the recorded response.
func performSearch(t *testing.T, router *gin.Engine, body datatypes.SearchRequest) *httptest.ResponseRecorder {
	t.Helper()

	jsonBytes, err := json.Marshal(body)
	require.NoError(t, err)

	req, _ := http.NewRequest("POST", "/api/search", bytes.NewBuffer(jsonBytes))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// searchRouter mounts a handler on a fresh engine.
func searchRouter(handler SearchHandler) *gin.Engine {
	router := gin.New()
	router.POST("/api/search", handler.HandleSearchStream)
	return router
}

// parsePhaseFrames decodes every data frame in an SSE body. Keepalive
// comments and blank separators are skipped.
func parsePhaseFrames(t *testing.T, body string) []datatypes.PhaseEvent {
	t.Helper()

	var frames []datatypes.PhaseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev datatypes.PhaseEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev),
			"frame should be valid JSON: %s", line)
		frames = append(frames, ev)
	}
	return frames
}

// phaseSequence projects frames onto their phase names.
func phaseSequence(frames []datatypes.PhaseEvent) []datatypes.Phase {
	out := make([]datatypes.Phase, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Phase)
	}
	return out
}

// =============================================================================
// NewSearchHandler Tests
// =============================================================================

func TestNewSearchHandler_PanicsOnNilUpstream(t *testing.T) {
	assert.Panics(t, func() {
		NewSearchHandler(nil, nil, store.NewSessionStore(), extensions.DefaultOptions())
	}, "should panic on nil upstream")
}

func TestNewSearchHandler_PanicsOnNilSessions(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {})

	assert.Panics(t, func() {
		NewSearchHandler(upstream, nil, nil, extensions.DefaultOptions())
	}, "should panic on nil sessions")
}

func TestNewSearchHandler_Success(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {})

	handler := NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions())
	assert.NotNil(t, handler)
}

// =============================================================================
// Request Validation Tests
// =============================================================================

func TestHandleSearchStream_InvalidRequestBody(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be reached for invalid bodies")
	})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions()))

	req, _ := http.NewRequest("POST", "/api/search", bytes.NewBufferString("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code, "should return 400 for invalid JSON")
}

func TestHandleSearchStream_EmptyQuery(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be reached for empty queries")
	})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{Query: ""})

	assert.Equal(t, http.StatusBadRequest, w.Code, "required binding should reject empty query")
}

func TestHandleSearchStream_OversizedQuery(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be reached for oversized queries")
	})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{
		Query: strings.Repeat("q", datatypes.MaxQueryBytes+1),
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Phase Relay Tests
// =============================================================================

// TestHandleSearchStream_RelaysFullTurn verifies the canonical frame
// sequence for a fresh conversation: search, synthesis, session_created
// with the platform's conversation id, each answer delta verbatim,
// resolved citations, and the terminal complete.
func TestHandleSearchStream_RelaysFullTurn(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeQueryStream(w,
			`{"event": "metadata", "data": {"conversation_id": "conv-abc123456789"}}`,
			`{"event": "message_delta", "data": {"delta": "Hello "}}`,
			`{"event": "message_delta", "data": {"delta": "world.[1]()"}}`,
			`{"event": "retrievals", "data": {"contents": [{"doc_name": "Report.pdf", "page": "3", "score": 0.92, "content_text": "hello world"}]}}`,
		)
	})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "What does the report say?"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := parsePhaseFrames(t, w.Body.String())
	require.Equal(t, []datatypes.Phase{
		datatypes.PhaseSearch,
		datatypes.PhaseSynthesis,
		datatypes.PhaseSessionCreated,
		datatypes.PhaseAnswer,
		datatypes.PhaseAnswer,
		datatypes.PhaseCitations,
		datatypes.PhaseComplete,
	}, phaseSequence(frames))

	assert.Equal(t, "Searching documents...", frames[0].Content)
	assert.Equal(t, "Analyzing results...", frames[1].Content)
	assert.Equal(t, "conv-abc123456789", frames[2].SessionID)
	assert.Equal(t, "Hello ", frames[3].Content)
	assert.Equal(t, "world.[1]()", frames[4].Content)
	require.Len(t, frames[5].Citations, 1)
	assert.Equal(t, datatypes.Citation{Number: "1", DocName: "Report.pdf", Page: "3"}, frames[5].Citations[0])
}

// TestHandleSearchStream_UpstreamRejection verifies that a non-2xx
// upstream response produces exactly search then a terminal error frame
// carrying the status code.
func TestHandleSearchStream_UpstreamRejection(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "anything"})

	frames := parsePhaseFrames(t, w.Body.String())
	require.Equal(t, []datatypes.Phase{
		datatypes.PhaseSearch,
		datatypes.PhaseError,
	}, phaseSequence(frames), "a rejected query must not reach synthesis")
	assert.Equal(t, "API Error: 503", frames[1].Error)
}

// TestHandleSearchStream_EmptyStream verifies that a stream with no
// events still walks the search/synthesis/complete skeleton.
func TestHandleSearchStream_EmptyStream(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeQueryStream(w)
	})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "anything"})

	frames := parsePhaseFrames(t, w.Body.String())
	assert.Equal(t, []datatypes.Phase{
		datatypes.PhaseSearch,
		datatypes.PhaseSynthesis,
		datatypes.PhaseComplete,
	}, phaseSequence(frames))
}

// TestHandleSearchStream_MalformedFramesSkipped verifies that noise
// lines in the upstream stream are dropped without aborting the relay.
func TestHandleSearchStream_MalformedFramesSkipped(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeQueryStream(w,
			`{"event": "message_delta", "data": {"delta": "first"}}`,
			`{not json at all`,
			`{"event": "mystery_event", "data": {"x": 1}}`,
			`{"event": "groundedness_scores", "data": {"scores": [0.9]}}`,
			`{"event": "message_delta", "data": {"delta": " second"}}`,
		)
	})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "anything"})

	frames := parsePhaseFrames(t, w.Body.String())
	assert.Equal(t, []datatypes.Phase{
		datatypes.PhaseSearch,
		datatypes.PhaseSynthesis,
		datatypes.PhaseAnswer,
		datatypes.PhaseAnswer,
		datatypes.PhaseComplete,
	}, phaseSequence(frames), "unknown and malformed frames must not surface downstream")
	assert.Equal(t, "first", frames[2].Content)
	assert.Equal(t, " second", frames[3].Content)
}

// TestHandleSearchStream_NoRetrievalsNoCitations verifies that citation
// markers without a retrievals event emit no citations frame.
func TestHandleSearchStream_NoRetrievalsNoCitations(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeQueryStream(w,
			`{"event": "message_delta", "data": {"delta": "cited.[1]() claim"}}`,
		)
	})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "anything"})

	for _, frame := range parsePhaseFrames(t, w.Body.String()) {
		assert.NotEqual(t, datatypes.PhaseCitations, frame.Phase,
			"markers must not resolve without retrieval records")
	}
}

// TestHandleSearchStream_FirstMetadataWins verifies that a second
// metadata event cannot re-announce the session.
func TestHandleSearchStream_FirstMetadataWins(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeQueryStream(w,
			`{"event": "metadata", "data": {"conversation_id": "conv-first1234567"}}`,
			`{"event": "metadata", "data": {"conversation_id": "conv-drifted999999"}}`,
		)
	})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "anything"})

	frames := parsePhaseFrames(t, w.Body.String())
	var sessionFrames []datatypes.PhaseEvent
	for _, f := range frames {
		if f.Phase == datatypes.PhaseSessionCreated || f.Phase == datatypes.PhaseSessionContinued {
			sessionFrames = append(sessionFrames, f)
		}
	}
	require.Len(t, sessionFrames, 1, "session must be announced exactly once")
	assert.Equal(t, "conv-first1234567", sessionFrames[0].SessionID)
}

// TestHandleSearchStream_SessionContinuity verifies that the second turn
// of a session resumes the upstream conversation and announces
// session_continued.
func TestHandleSearchStream_SessionContinuity(t *testing.T) {
	rec := &upstreamRecorder{}
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		p := rec.record(r)
		conv := p.ConversationID
		if conv == "" {
			conv = "conv-fresh1234567890"
		}
		writeQueryStream(w,
			fmt.Sprintf(`{"event": "metadata", "data": {"conversation_id": "%s"}}`, conv),
			`{"event": "message_delta", "data": {"delta": "turn answer"}}`,
		)
	})

	sessions := store.NewSessionStore()
	router := searchRouter(NewSearchHandler(upstream, nil, sessions, extensions.DefaultOptions()))
	sessionID := "local-session-1234567890"

	first := performSearch(t, router, datatypes.SearchRequest{Query: "opening question", SessionID: sessionID})
	firstFrames := parsePhaseFrames(t, first.Body.String())
	assert.Contains(t, phaseSequence(firstFrames), datatypes.PhaseSessionCreated)
	assert.Equal(t, "", rec.payload(0).ConversationID,
		"the first turn must let the platform allocate the conversation")

	second := performSearch(t, router, datatypes.SearchRequest{Query: "follow-up", SessionID: sessionID})
	secondFrames := parsePhaseFrames(t, second.Body.String())
	assert.Contains(t, phaseSequence(secondFrames), datatypes.PhaseSessionContinued)
	assert.NotContains(t, phaseSequence(secondFrames), datatypes.PhaseSessionCreated)
	assert.Equal(t, sessionID, rec.payload(1).ConversationID,
		"later turns must resume the session's conversation")
}

// TestHandleSearchStream_BackfillsSessionMessage verifies that the
// finished answer lands in the session store.
func TestHandleSearchStream_BackfillsSessionMessage(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeQueryStream(w,
			`{"event": "message_delta", "data": {"delta": "stored "}}`,
			`{"event": "message_delta", "data": {"delta": "answer"}}`,
		)
	})

	sessions := store.NewSessionStore()
	router := searchRouter(NewSearchHandler(upstream, nil, sessions, extensions.DefaultOptions()))
	sessionID := "local-session-1234567890"

	performSearch(t, router, datatypes.SearchRequest{Query: "a question", SessionID: sessionID})

	msgs, ok := sessions.Messages(sessionID)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a question", msgs[0].Query)
	assert.Equal(t, "stored answer", msgs[0].Response)
}

// =============================================================================
// Validation Stage Tests
// =============================================================================

// TestHandleSearchStream_ValidationSuccess verifies the full validation
// stage: start frame, cleaned thinking, and the parsed result.
func TestHandleSearchStream_ValidationSuccess(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeQueryStream(w,
			`{"event": "message_delta", "data": {"delta": "The report covers 2024."}}`,
		)
	})
	validator := factcheck.NewValidator(&scriptedLLM{
		thoughts: []string{"**Checking** the claim"},
		answer:   validResultJSON,
	}, nil)
	router := searchRouter(NewSearchHandler(upstream, validator, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "what year?"})

	frames := parsePhaseFrames(t, w.Body.String())
	require.Equal(t, []datatypes.Phase{
		datatypes.PhaseSearch,
		datatypes.PhaseSynthesis,
		datatypes.PhaseAnswer,
		datatypes.PhaseValidationStart,
		datatypes.PhaseValidationThinking,
		datatypes.PhaseValidationComplete,
		datatypes.PhaseComplete,
	}, phaseSequence(frames))

	assert.Equal(t, "Starting validation...", frames[3].Content)
	assert.Equal(t, "Checking the claim", frames[4].Content, "bold markers should be stripped")

	result := frames[5].Validation
	require.NotNil(t, result)
	assert.True(t, result.QueryAnswered)
	assert.Equal(t, 100, result.AccuracyScore)
	assert.Equal(t, 1, result.VerifiedFacts)
	assert.Equal(t, 1, result.TotalFacts)
}

// TestHandleSearchStream_ValidationFailureStillCompletes verifies that a
// validator-side failure surfaces as an error frame while the stream
// still terminates with complete.
func TestHandleSearchStream_ValidationFailureStillCompletes(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeQueryStream(w,
			`{"event": "message_delta", "data": {"delta": "The answer."}}`,
		)
	})
	validator := factcheck.NewValidator(&scriptedLLM{
		streamErr: fmt.Errorf("validation backend offline"),
	}, nil)
	router := searchRouter(NewSearchHandler(upstream, validator, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "anything"})

	frames := parsePhaseFrames(t, w.Body.String())
	require.Equal(t, []datatypes.Phase{
		datatypes.PhaseSearch,
		datatypes.PhaseSynthesis,
		datatypes.PhaseAnswer,
		datatypes.PhaseValidationStart,
		datatypes.PhaseError,
		datatypes.PhaseComplete,
	}, phaseSequence(frames), "the answer already reached the client, so complete must still fire")
	assert.Equal(t, "validation backend offline", frames[4].Error)
}

// TestHandleSearchStream_NoValidatorSkipsStage verifies that without a
// validator no validation frames appear.
func TestHandleSearchStream_NoValidatorSkipsStage(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeQueryStream(w,
			`{"event": "message_delta", "data": {"delta": "plain answer"}}`,
		)
	})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "anything"})

	for _, frame := range parsePhaseFrames(t, w.Body.String()) {
		assert.NotContains(t, []datatypes.Phase{
			datatypes.PhaseValidationStart,
			datatypes.PhaseValidationThinking,
			datatypes.PhaseValidationComplete,
		}, frame.Phase)
	}
}

// TestHandleSearchStream_SSEHeaders verifies the streaming headers.
func TestHandleSearchStream_SSEHeaders(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeQueryStream(w)
	})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), extensions.DefaultOptions()))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "anything"})

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))
}

// =============================================================================
// Content Filter and Audit Tests
// =============================================================================

// blockingFilter rejects every query with a fixed reason.
type blockingFilter struct{}

func (f *blockingFilter) FilterInput(_ context.Context, message string) (*extensions.FilterResult, error) {
	return &extensions.FilterResult{
		Original:    message,
		WasBlocked:  true,
		BlockReason: "matches a blocked pattern",
	}, nil
}

func (f *blockingFilter) FilterOutput(_ context.Context, message string) (*extensions.FilterResult, error) {
	return &extensions.FilterResult{Original: message, Filtered: message}, nil
}

// rewritingFilter masks the word "hunter2" in queries.
type rewritingFilter struct{}

func (f *rewritingFilter) FilterInput(_ context.Context, message string) (*extensions.FilterResult, error) {
	filtered := strings.ReplaceAll(message, "hunter2", "[REDACTED]")
	return &extensions.FilterResult{
		Original:    message,
		Filtered:    filtered,
		WasModified: filtered != message,
	}, nil
}

func (f *rewritingFilter) FilterOutput(_ context.Context, message string) (*extensions.FilterResult, error) {
	return &extensions.FilterResult{Original: message, Filtered: message}, nil
}

// failingFilter simulates a filter backend outage.
type failingFilter struct{}

func (f *failingFilter) FilterInput(_ context.Context, _ string) (*extensions.FilterResult, error) {
	return nil, fmt.Errorf("filter backend down")
}

func (f *failingFilter) FilterOutput(_ context.Context, message string) (*extensions.FilterResult, error) {
	return &extensions.FilterResult{Original: message, Filtered: message}, nil
}

// captureAudit records every event it is handed.
type captureAudit struct {
	mu     sync.Mutex
	events []extensions.AuditEvent
}

func (l *captureAudit) Log(_ context.Context, ev extensions.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *captureAudit) Query(_ context.Context, _ extensions.AuditFilter) ([]extensions.AuditEvent, error) {
	return l.recorded(), nil
}

func (l *captureAudit) Flush(_ context.Context) error { return nil }

func (l *captureAudit) recorded() []extensions.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]extensions.AuditEvent(nil), l.events...)
}

// TestHandleSearchStream_FilterBlocksQuery verifies that a blocked query
// is rejected before it reaches the upstream or the session store, and
// that the block leaves an audit record.
func TestHandleSearchStream_FilterBlocksQuery(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be reached for blocked queries")
	})
	audit := &captureAudit{}
	sessions := store.NewSessionStore()
	opts := extensions.DefaultOptions().WithFilter(&blockingFilter{}).WithAudit(audit)
	router := searchRouter(NewSearchHandler(upstream, nil, sessions, opts))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "anything at all"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "query rejected by content filter")

	events := audit.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, extensions.EventQueryBlocked, events[0].EventType)
	assert.Equal(t, "blocked", events[0].Outcome)

	assert.Empty(t, sessions.List(10, false), "a blocked query must not create a session")
}

// TestHandleSearchStream_FilterRedactsBeforeUpstreamAndStorage verifies
// that the filtered text, not the original, is what the upstream and the
// session store see.
func TestHandleSearchStream_FilterRedactsBeforeUpstreamAndStorage(t *testing.T) {
	rec := &upstreamRecorder{}
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		writeQueryStream(w,
			`{"event": "message_delta", "data": {"delta": "answered"}}`,
		)
	})
	sessions := store.NewSessionStore()
	opts := extensions.DefaultOptions().WithFilter(&rewritingFilter{})
	router := searchRouter(NewSearchHandler(upstream, nil, sessions, opts))
	sessionID := "local-session-1234567890"

	performSearch(t, router, datatypes.SearchRequest{
		Query:     "is hunter2 reused anywhere?",
		SessionID: sessionID,
	})

	payload := rec.payload(0)
	require.NotEmpty(t, payload.Messages)
	assert.NotContains(t, payload.Messages[0].Content, "hunter2",
		"the original secret must not reach the upstream")
	assert.Contains(t, payload.Messages[0].Content, "[REDACTED]")

	msgs, ok := sessions.Messages(sessionID)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "is [REDACTED] reused anywhere?", msgs[0].Query,
		"session history must store the redacted form")
}

// TestHandleSearchStream_FilterFailureFailsClosed verifies that a filter
// outage rejects the request instead of skipping the screening.
func TestHandleSearchStream_FilterFailureFailsClosed(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be reached when the filter is down")
	})
	opts := extensions.DefaultOptions().WithFilter(&failingFilter{})
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), opts))

	w := performSearch(t, router, datatypes.SearchRequest{Query: "anything"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "content filter unavailable")
}

// TestHandleSearchStream_AuditRecordsCompletedTurn verifies the audit
// record of a successful turn: counters only, never the query text.
func TestHandleSearchStream_AuditRecordsCompletedTurn(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		writeQueryStream(w,
			`{"event": "message_delta", "data": {"delta": "part one "}}`,
			`{"event": "message_delta", "data": {"delta": "part two"}}`,
		)
	})
	audit := &captureAudit{}
	opts := extensions.DefaultOptions().WithAudit(audit)
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), opts))

	query := "what does the maintenance runbook cover?"
	performSearch(t, router, datatypes.SearchRequest{Query: query})

	events := audit.recorded()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, extensions.EventSearchQuery, ev.EventType)
	assert.Equal(t, "success", ev.Outcome)
	assert.Equal(t, "session", ev.ResourceType)
	assert.NotEmpty(t, ev.ResourceID)
	assert.Equal(t, len(query), ev.Metadata["query_length"])
	assert.Equal(t, 2, ev.Metadata["chunk_count"])
	for key, value := range ev.Metadata {
		assert.NotEqual(t, query, value, "metadata %q must not carry the query text", key)
	}
}

// TestHandleSearchStream_AuditRecordsFailedTurn verifies that upstream
// failures still leave an audit record, marked as a failure.
func TestHandleSearchStream_AuditRecordsFailedTurn(t *testing.T) {
	upstream := newTestUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	})
	audit := &captureAudit{}
	opts := extensions.DefaultOptions().WithAudit(audit)
	router := searchRouter(NewSearchHandler(upstream, nil, store.NewSessionStore(), opts))

	performSearch(t, router, datatypes.SearchRequest{Query: "anything"})

	events := audit.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, extensions.EventSearchQuery, events[0].EventType)
	assert.Equal(t, "failure", events[0].Outcome)
}
