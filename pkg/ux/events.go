// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"time"

	"github.com/google/uuid"
)

// StreamEventType identifies the kind of event flowing through a
// response stream.
type StreamEventType string

const (
	// StreamEventStatus reports pipeline progress before tokens arrive.
	StreamEventStatus StreamEventType = "status"

	// StreamEventToken carries one chunk of answer text.
	StreamEventToken StreamEventType = "token"

	// StreamEventThinking carries model reasoning emitted before or
	// alongside the answer.
	StreamEventThinking StreamEventType = "thinking"

	// StreamEventSources announces the documents the answer draws on.
	StreamEventSources StreamEventType = "sources"

	// StreamEventDone terminates a successful stream.
	StreamEventDone StreamEventType = "done"

	// StreamEventError terminates a failed stream.
	StreamEventError StreamEventType = "error"
)

// String returns the wire name of the event type.
func (t StreamEventType) String() string {
	return string(t)
}

// IsTerminal reports whether this event type ends the stream. No
// further events are delivered after a terminal event.
func (t StreamEventType) IsTerminal() bool {
	return t == StreamEventDone || t == StreamEventError
}

// StreamEvent is one unit of a streamed response.
//
// Every event carries identity so transcripts can be persisted and
// replayed later. Hash and PrevHash link consecutive events into a
// tamper-evident chain; they are empty until the stream reader or
// AppendChained fills them.
type StreamEvent struct {
	// Id uniquely identifies this event.
	Id string `json:"id"`

	// CreatedAt is the creation time in Unix milliseconds.
	CreatedAt int64 `json:"created_at"`

	// Type discriminates which payload fields are meaningful.
	Type StreamEventType `json:"type"`

	// Content holds text for token and thinking events.
	Content string `json:"content,omitempty"`

	// Message holds progress text for status events.
	Message string `json:"message,omitempty"`

	// Sources lists retrieved documents for sources events.
	Sources []SourceInfo `json:"sources,omitempty"`

	// SessionID names the session the stream belongs to. Set on done
	// events.
	SessionID string `json:"session_id,omitempty"`

	// Error describes the failure for error events.
	Error string `json:"error,omitempty"`

	// RequestID correlates the event with one backend request.
	RequestID string `json:"request_id,omitempty"`

	// Index is the zero-based position within the stream, assigned by
	// the reader.
	Index int `json:"index"`

	// Hash is this event's chain hash.
	Hash string `json:"hash,omitempty"`

	// PrevHash is the Hash of the preceding event. Empty on the first
	// event of a chain.
	PrevHash string `json:"prev_hash,omitempty"`
}

// CreatedAtTime converts CreatedAt to a time.Time. Returns the zero
// time when the timestamp is unset.
func (e StreamEvent) CreatedAtTime() time.Time {
	if e.CreatedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.CreatedAt)
}

// IsTerminal reports whether this event ends its stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type.IsTerminal()
}

// NewStatusEvent creates a status event carrying a progress message.
func NewStatusEvent(message string) StreamEvent {
	return StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      StreamEventStatus,
		Message:   message,
	}
}

// NewTokenEvent creates a token event carrying one chunk of answer
// text.
func NewTokenEvent(content string) StreamEvent {
	return StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      StreamEventToken,
		Content:   content,
	}
}

// NewThinkingEvent creates a thinking event carrying model reasoning.
func NewThinkingEvent(content string) StreamEvent {
	return StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      StreamEventThinking,
		Content:   content,
	}
}

// NewSourcesEvent creates a sources event announcing retrieved
// documents.
func NewSourcesEvent(sources []SourceInfo) StreamEvent {
	return StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      StreamEventSources,
		Sources:   sources,
	}
}

// NewDoneEvent creates the terminal event of a successful stream.
func NewDoneEvent(sessionID string) StreamEvent {
	return StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      StreamEventDone,
		SessionID: sessionID,
	}
}

// NewErrorEvent creates the terminal event of a failed stream.
func NewErrorEvent(message string) StreamEvent {
	return StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      StreamEventError,
		Error:     message,
	}
}

// StreamResult aggregates everything observed over one completed
// stream: the assembled answer, retrieval sources, token counts, and
// the timing needed for latency metrics.
type StreamResult struct {
	// Id uniquely identifies this result.
	Id string `json:"id"`

	// RequestID correlates the result with one backend request.
	RequestID string `json:"request_id,omitempty"`

	// CreatedAt is when the stream started, in Unix milliseconds.
	CreatedAt int64 `json:"created_at"`

	// CompletedAt is when the terminal event arrived, in Unix
	// milliseconds. Zero while the stream is still open.
	CompletedAt int64 `json:"completed_at,omitempty"`

	// FirstTokenAt is when the first token event arrived, in Unix
	// milliseconds. Zero if no token ever arrived.
	FirstTokenAt int64 `json:"first_token_at,omitempty"`

	// TotalEvents counts every event read, terminal included.
	TotalEvents int `json:"total_events"`

	// TotalTokens counts token events, not model tokens.
	TotalTokens int `json:"total_tokens"`

	// ThinkingTokens counts thinking events.
	ThinkingTokens int `json:"thinking_tokens"`

	// Answer is the concatenated token content.
	Answer string `json:"answer"`

	// Thinking is the concatenated thinking content.
	Thinking string `json:"thinking,omitempty"`

	// Sources lists the documents the answer drew on.
	Sources []SourceInfo `json:"sources,omitempty"`

	// SessionID names the session, when the stream reported one.
	SessionID string `json:"session_id,omitempty"`

	// Error is the terminal failure description, empty on success.
	Error string `json:"error,omitempty"`

	// ChainHash is the hash of the final event in the chain.
	ChainHash string `json:"chain_hash,omitempty"`

	// ContentHash is the hash of the assembled answer text.
	ContentHash string `json:"content_hash,omitempty"`
}

// NewStreamResult creates an empty result stamped with a fresh id and
// start time.
func NewStreamResult() *StreamResult {
	return &StreamResult{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
	}
}

// NewStreamResultWithRequestID creates a result correlated to a
// backend request.
func NewStreamResultWithRequestID(requestID string) *StreamResult {
	result := NewStreamResult()
	result.RequestID = requestID
	return result
}

// HasError reports whether the stream terminated with an error.
func (r *StreamResult) HasError() bool {
	return r.Error != ""
}

// Duration returns wall time from start to completion. Returns 0
// when either timestamp is missing.
func (r *StreamResult) Duration() time.Duration {
	if r.CreatedAt == 0 || r.CompletedAt == 0 {
		return 0
	}
	return time.Duration(r.CompletedAt-r.CreatedAt) * time.Millisecond
}

// TimeToFirstToken returns the latency to the first answer token.
// Returns 0 when either timestamp is missing.
func (r *StreamResult) TimeToFirstToken() time.Duration {
	if r.CreatedAt == 0 || r.FirstTokenAt == 0 {
		return 0
	}
	return time.Duration(r.FirstTokenAt-r.CreatedAt) * time.Millisecond
}

// TokensPerSecond returns token event throughput over the stream
// duration. Returns 0 when no tokens arrived or the duration is
// unknown.
func (r *StreamResult) TokensPerSecond() float64 {
	duration := r.Duration()
	if r.TotalTokens == 0 || duration == 0 {
		return 0
	}
	return float64(r.TotalTokens) / duration.Seconds()
}

// CreatedAtTime converts CreatedAt to a time.Time. Returns the zero
// time when unset.
func (r *StreamResult) CreatedAtTime() time.Time {
	if r.CreatedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.CreatedAt)
}

// CompletedAtTime converts CompletedAt to a time.Time. Returns the
// zero time when unset.
func (r *StreamResult) CompletedAtTime() time.Time {
	if r.CompletedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.CompletedAt)
}

// FirstTokenAtTime converts FirstTokenAt to a time.Time. Returns the
// zero time when unset.
func (r *StreamResult) FirstTokenAtTime() time.Time {
	if r.FirstTokenAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.FirstTokenAt)
}

// StreamCallback receives each event as it is read from a stream.
// Returning a non-nil error aborts the read.
type StreamCallback func(event StreamEvent) error
