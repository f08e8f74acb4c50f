// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides wire types for the backend service.
//
// This file defines the downstream phase protocol: every event the
// backend streams to a client, over SSE or WebSocket, is one PhaseEvent
// serialized as JSON. The phase field discriminates the payload.
package datatypes

import (
	"github.com/AleutianAI/miras/services/factcheck"
)

// =============================================================================
// Phase Protocol
// =============================================================================

// Phase names one stage of a streamed operation.
type Phase string

// Search stream phases, in required emission order. session_created and
// session_continued are mutually exclusive and fire at most once per
// turn. error replaces the remainder of the sequence and is terminal.
const (
	PhaseSearch             Phase = "search"
	PhaseSynthesis          Phase = "synthesis"
	PhaseSessionCreated     Phase = "session_created"
	PhaseSessionContinued   Phase = "session_continued"
	PhaseAnswer             Phase = "answer"
	PhaseCitations          Phase = "citations"
	PhaseValidationStart    Phase = "validation_start"
	PhaseValidationThinking Phase = "validation_thinking"
	PhaseValidationComplete Phase = "validation_complete"
	PhaseComplete           Phase = "complete"
	PhaseError              Phase = "error"
)

// Ingest batch phases. processing/extracting/uploading/completed repeat
// per file; batch_complete terminates the stream.
const (
	PhaseProcessing    Phase = "processing"
	PhaseExtracting    Phase = "extracting"
	PhaseUploading     Phase = "uploading"
	PhaseCompleted     Phase = "completed"
	PhaseBatchComplete Phase = "batch_complete"
)

// Citation links one citation marker in the answer text to the
// retrieval record it references. Number keeps the marker's string form
// so clients render exactly what the text says.
type Citation struct {
	Number  string `json:"number"`
	DocName string `json:"doc_name"`
	Page    string `json:"page"`
}

// PhaseEvent is one downstream stream event.
//
// # Description
//
// PhaseEvent is the union of all phase payloads; only the fields for
// the event's Phase are populated, everything else is omitted from the
// JSON. Per-phase fields:
//
//   - search, synthesis, validation_start: Content (status text)
//   - session_created, session_continued: SessionID
//   - answer, validation_thinking: Content (delta text)
//   - citations: Citations
//   - validation_complete: Validation
//   - error: Error (and File during ingest batches)
//   - processing: File, Progress
//   - extracting, uploading: File
//   - completed: File, DocID
//   - batch_complete: Total
//   - complete: no payload
type PhaseEvent struct {
	Phase      Phase             `json:"phase"`
	Content    string            `json:"content,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Citations  []Citation        `json:"citations,omitempty"`
	Validation *factcheck.Result `json:"validation,omitempty"`
	Error      string            `json:"error,omitempty"`

	// Ingest batch payload. Progress is a pointer so the leading
	// 0.0 of a batch survives omitempty.
	File     string   `json:"file,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
	DocID    string   `json:"doc_id,omitempty"`
	Total    int      `json:"total,omitempty"`
}
