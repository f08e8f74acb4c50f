// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SSEParser converts Server-Sent Events lines into StreamEvents.
//
// Parsers only parse. I/O, rendering, and accumulation live in
// StreamReader and StreamRenderer so each layer can be tested alone.
//
// Line handling:
//   - empty lines are event delimiters, returned as (nil, nil)
//   - lines starting with ":" are comments or keepalives, (nil, nil)
//   - "data: " and "data:" lines carry a JSON payload
//   - anything else is treated as a raw token, for servers that
//     stream plain text
//
// Implementations must be safe for concurrent use.
type SSEParser interface {
	// ParseLine parses one line of SSE input, without its trailing
	// newline. A nil event with a nil error means the line carried
	// nothing (delimiter or comment).
	ParseLine(line string) (*StreamEvent, error)

	// ParseRawJSON parses a JSON payload that has already been
	// stripped of its "data: " prefix. The returned event gets a
	// fresh Id and CreatedAt.
	ParseRawJSON(jsonData []byte) (*StreamEvent, error)
}

// sseParser is the stateless default SSEParser.
type sseParser struct{}

// NewSSEParser creates a parser that can be shared across goroutines.
func NewSSEParser() SSEParser {
	return &sseParser{}
}

func (p *sseParser) ParseLine(line string) (*StreamEvent, error) {
	line = strings.TrimSpace(line)

	if line == "" {
		return nil, nil
	}

	// Comments double as keepalives (": ping").
	if strings.HasPrefix(line, ":") {
		return nil, nil
	}

	if strings.HasPrefix(line, "data: ") {
		return p.ParseRawJSON([]byte(strings.TrimPrefix(line, "data: ")))
	}

	// Some servers omit the space after the field name.
	if strings.HasPrefix(line, "data:") {
		return p.ParseRawJSON([]byte(strings.TrimPrefix(line, "data:")))
	}

	return &StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      StreamEventToken,
		Content:   line,
	}, nil
}

func (p *sseParser) ParseRawJSON(jsonData []byte) (*StreamEvent, error) {
	// Decode into the wire shape first; missing fields stay zero.
	var raw struct {
		Type      string       `json:"type"`
		Content   string       `json:"content"`
		Message   string       `json:"message"`
		Sources   []SourceInfo `json:"sources"`
		SessionID string       `json:"session_id"`
		Error     string       `json:"error"`
		RequestID string       `json:"request_id"`
	}

	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return nil, err
	}

	return &StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      StreamEventType(raw.Type),
		Content:   raw.Content,
		Message:   raw.Message,
		Sources:   raw.Sources,
		SessionID: raw.SessionID,
		Error:     raw.Error,
		RequestID: raw.RequestID,
	}, nil
}

var _ SSEParser = (*sseParser)(nil)
