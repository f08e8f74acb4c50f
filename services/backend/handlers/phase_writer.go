// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/AleutianAI/miras/services/backend/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// PhaseWriter defines the contract for writing phase frames to SSE responses.
//
// # Description
//
// PhaseWriter abstracts phase-frame serialization and writing, enabling
// testability and separation from HTTP response mechanics. Each frame is
// written as a bare data line (data: json\n\n) with no event-type line;
// clients dispatch on the "phase" field inside the payload.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
// The keepalive goroutine writes concurrently with the relay pipeline.
//
// # Limitations
//
//   - Must be used with http.Flusher-compatible ResponseWriter
//   - Response headers must be set before first write
//
// # Assumptions
//
//   - Caller has set Content-Type: text/event-stream before writing
//   - Caller has disabled buffering (X-Accel-Buffering: no)
type PhaseWriter interface {
	// WriteEvent writes a single phase frame to the response.
	//
	// # Inputs
	//
	//   - event: PhaseEvent to serialize and write. Flushed immediately.
	//
	// # Outputs
	//
	//   - error: Non-nil if JSON marshaling or writing failed.
	WriteEvent(event datatypes.PhaseEvent) error

	// WriteContent writes a frame carrying only a phase and content string.
	//
	// # Inputs
	//
	//   - phase: The phase discriminator (e.g., "search", "synthesis").
	//   - content: Display text or answer chunk for the frame.
	//
	// # Outputs
	//
	//   - error: Non-nil if writing failed.
	WriteContent(phase datatypes.Phase, content string) error

	// WriteError writes an error frame.
	//
	// # Description
	//
	// Writes an error frame to inform the client of a failure. For main-stage
	// failures the stream ends after this frame; validation-stage failures are
	// followed by the complete frame.
	//
	// # Inputs
	//
	//   - errMsg: Error message for the client.
	//
	// # Outputs
	//
	//   - error: Non-nil if writing failed.
	WriteError(errMsg string) error

	// WriteComplete writes the terminal complete frame.
	//
	// # Outputs
	//
	//   - error: Non-nil if writing failed.
	//
	// # Limitations
	//
	//   - Should only be called once per stream.
	WriteComplete() error

	// WriteKeepAlive sends a comment line to prevent connection timeouts.
	//
	// # Description
	//
	// Sends an SSE comment (": ping\n\n") to keep the connection alive during
	// long operations like retrieval or fact-check thinking. SSE comments are
	// ignored by clients but keep the TCP connection active, preventing
	// timeout disconnections from load balancers (AWS ALB, Nginx default 60s).
	//
	// # Outputs
	//
	//   - error: Non-nil if writing failed.
	//
	// # Assumptions
	//
	//   - Connection is still open
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// phaseWriter implements PhaseWriter for HTTP SSE responses.
//
// # Description
//
// phaseWriter wraps an http.ResponseWriter to emit phase frames. Each frame
// is written in the format:
//
//	data: {json}
//
// followed by a blank line. There is no event-type line and no frame
// metadata; the JSON payload carries the phase discriminator.
//
// # Fields
//
//   - writer: Underlying http.ResponseWriter
//   - flusher: http.Flusher interface for immediate send
//   - mu: Mutex for thread-safe writes
//
// # Thread Safety
//
// Thread-safe via mutex. The keepalive goroutine and the relay pipeline can
// write concurrently without interleaving partial frames.
//
// # Limitations
//
//   - Cannot be reused across requests
//
// # Assumptions
//
//   - Response headers already set by caller
//   - ResponseWriter supports http.Flusher interface
type phaseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// =============================================================================
// Constructor
// =============================================================================

// NewPhaseWriter creates a new PhaseWriter for the given ResponseWriter.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - PhaseWriter: Ready to write phase frames.
//   - error: Non-nil if ResponseWriter doesn't support flushing.
//
// # Examples
//
//	SetSSEHeaders(w)
//	writer, err := NewPhaseWriter(w)
//	if err != nil {
//	    http.Error(w, "Streaming not supported", http.StatusInternalServerError)
//	    return
//	}
//	writer.WriteContent(datatypes.PhaseSearch, "Searching documents...")
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders()
func NewPhaseWriter(w http.ResponseWriter) (PhaseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &phaseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// WriteEvent writes a single phase frame to the response.
func (w *phaseWriter) WriteEvent(event datatypes.PhaseEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal phase frame: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write phase frame: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// WriteContent writes a frame carrying only a phase and content string.
func (w *phaseWriter) WriteContent(phase datatypes.Phase, content string) error {
	return w.WriteEvent(datatypes.PhaseEvent{
		Phase:   phase,
		Content: content,
	})
}

// WriteError writes an error frame.
func (w *phaseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.PhaseEvent{
		Phase: datatypes.PhaseError,
		Error: errMsg,
	})
}

// WriteComplete writes the terminal complete frame.
func (w *phaseWriter) WriteComplete() error {
	return w.WriteEvent(datatypes.PhaseEvent{
		Phase: datatypes.PhaseComplete,
	})
}

// WriteKeepAlive sends a comment line to keep the connection alive.
//
// # Description
//
// Writes an SSE comment (": ping\n\n") to keep the TCP connection active
// during long operations. Comments are ignored by SSE clients but reset
// load balancer timeout counters.
func (w *phaseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon followed by text, then double newline
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// # Description
//
// Sets the required headers for Server-Sent Events:
//   - Content-Type: text/event-stream
//   - Cache-Control: no-cache
//   - Connection: keep-alive
//   - X-Accel-Buffering: no (disables nginx buffering)
//
// Must be called before writing any response body.
//
// # Inputs
//
//   - w: HTTP ResponseWriter to configure.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ PhaseWriter = (*phaseWriter)(nil)
