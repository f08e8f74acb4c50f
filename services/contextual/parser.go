// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contextual

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// =============================================================================
// Upstream Event Types
// =============================================================================

// EventType discriminates the upstream SSE event variants.
type EventType string

const (
	EventMetadata           EventType = "metadata"
	EventMessageDelta       EventType = "message_delta"
	EventRetrievals         EventType = "retrievals"
	EventGroundednessScores EventType = "groundedness_scores"

	// EventUnknown carries event names this client does not recognize.
	// They are surfaced rather than dropped so callers can decide to
	// ignore them; the platform adds event types without notice.
	EventUnknown EventType = "unknown"
)

// doneSentinel terminates an upstream stream. It appears after the
// "data: " prefix is stripped.
const doneSentinel = "[DONE]"

// PageNumber is a page reference as received from the platform. Pages
// arrive as JSON strings or numbers depending on the connector that
// ingested the document, so decoding tolerates both and keeps the
// string form.
type PageNumber string

// UnmarshalJSON implements json.Unmarshaler for PageNumber.
func (p *PageNumber) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PageNumber(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = PageNumber(n.String())
	return nil
}

// Retrieval is one retrieved document chunk from a query. Chunks are
// referenced by 1-based position from citation markers in the answer
// text, so arrival order is significant and must be preserved.
type Retrieval struct {
	DocName     string     `json:"doc_name"`
	Page        PageNumber `json:"page"`
	Score       float64    `json:"score"`
	ContentText string     `json:"content_text"`
}

// UpstreamEvent is one decoded frame of the upstream query stream.
// Type selects which payload fields are populated.
type UpstreamEvent struct {
	Type EventType

	// ConversationID is set for metadata events.
	ConversationID string

	// Delta is the answer text fragment for message_delta events.
	Delta string

	// Retrievals is set for retrievals events.
	Retrievals []Retrieval

	// Scores is the raw payload of groundedness_scores events. The
	// system surfaces but does not process these.
	Scores json.RawMessage

	// RawEvent preserves the wire event name for EventUnknown.
	RawEvent string
}

// upstreamFrame is the wire shape of one data frame.
type upstreamFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// =============================================================================
// Line Parsing
// =============================================================================

// ParseLine decodes one line of an upstream SSE stream.
//
// Lines that are blank, not prefixed with "data: ", or whose payload
// fails to decode as JSON carry no event and return (nil, false);
// malformed frames are expected noise and never abort a stream. The
// [DONE] sentinel returns (nil, true).
func ParseLine(line string) (ev *UpstreamEvent, done bool) {
	if !strings.HasPrefix(line, "data: ") {
		return nil, false
	}
	payload := line[len("data: "):]

	if payload == doneSentinel {
		return nil, true
	}

	var frame upstreamFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return nil, false
	}

	out := &UpstreamEvent{Type: EventType(frame.Event)}
	switch out.Type {
	case EventMetadata:
		var data struct {
			ConversationID string `json:"conversation_id"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return nil, false
		}
		out.ConversationID = data.ConversationID
	case EventMessageDelta:
		var data struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return nil, false
		}
		out.Delta = data.Delta
	case EventRetrievals:
		var data struct {
			Contents []Retrieval `json:"contents"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return nil, false
		}
		out.Retrievals = data.Contents
	case EventGroundednessScores:
		out.Scores = frame.Data
	default:
		out.Type = EventUnknown
		out.RawEvent = frame.Event
	}

	return out, false
}

// ParseStream reads an SSE body line by line, invoking fn for each
// decoded event until the [DONE] sentinel, stream close, or a non-nil
// return from fn, whichever comes first. A callback error stops
// consumption and is returned as-is.
func ParseStream(r io.Reader, fn func(*UpstreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		ev, done := ParseLine(scanner.Text())
		if done {
			return nil
		}
		if ev == nil {
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return scanner.Err()
}
