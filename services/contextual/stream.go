// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contextual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// QueryRequest is one streamed question to an agent.
type QueryRequest struct {
	// Query is the user's question. Must be non-empty.
	Query string

	// ConversationID continues an existing upstream conversation.
	// It is only forwarded when ValidConversationID accepts it;
	// otherwise the platform allocates a fresh conversation and
	// announces it in a metadata event.
	ConversationID string
}

// queryMessage is the upstream chat message shape.
type queryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// queryPayload is the upstream query body.
type queryPayload struct {
	Messages       []queryMessage `json:"messages"`
	Stream         bool           `json:"stream"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// ValidConversationID reports whether id references a real upstream
// conversation. Callers pass through ids they received from clients,
// which arrive as empty strings, the literal "null" from loose JSON
// handling, or truncated fragments; forwarding any of those makes the
// platform reject the query instead of starting a new conversation.
func ValidConversationID(id string) bool {
	return id != "" && id != "null" && len(id) > 10
}

// QueryStream POSTs a streaming query to the configured agent and
// invokes fn for each decoded upstream event until the stream
// terminates.
//
// A non-2xx response is returned as a *StatusError before any event
// fires. An error from fn stops consumption and is returned as-is.
// The response body is always closed, including when ctx is canceled
// mid-stream.
func (c *Client) QueryStream(ctx context.Context, req QueryRequest, fn func(*UpstreamEvent) error) error {
	ctx, span := tracer.Start(ctx, "contextual.QueryStream")
	defer span.End()

	if c.agentID == "" {
		err := fmt.Errorf("contextual: agent ID is not configured")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing agent id")
		return err
	}
	if req.Query == "" {
		err := fmt.Errorf("contextual: query is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty query")
		return err
	}

	payload := queryPayload{
		Messages: []queryMessage{{Role: "user", Content: req.Query}},
		Stream:   true,
	}
	// A fresh conversation omits the id entirely; the platform
	// allocates one and reports it via metadata.
	continued := ValidConversationID(req.ConversationID)
	if continued {
		payload.ConversationID = req.ConversationID
	}
	span.SetAttributes(
		attribute.Int("query.length", len(req.Query)),
		attribute.Bool("conversation.continued", continued),
	)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal query payload: %w", err)
	}

	url := fmt.Sprintf("%s/agents/%s/query?include_retrieval_content_text=true", c.baseURL, c.agentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create query request: %w", err)
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query request failed")
		return fmt.Errorf("query request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		span.SetStatus(codes.Error, "upstream rejected query")
		return &StatusError{Code: resp.StatusCode, Body: string(errBody)}
	}

	if err := ParseStream(resp.Body, fn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream consumption failed")
		return err
	}
	return nil
}

// QueryOnce runs a non-streaming query and returns the final answer
// text plus the conversation id the platform assigned or continued.
func (c *Client) QueryOnce(ctx context.Context, req QueryRequest) (answer, conversationID string, err error) {
	ctx, span := tracer.Start(ctx, "contextual.QueryOnce")
	defer span.End()

	if c.agentID == "" {
		return "", "", fmt.Errorf("contextual: agent ID is not configured")
	}
	if req.Query == "" {
		return "", "", fmt.Errorf("contextual: query is required")
	}

	payload := queryPayload{
		Messages: []queryMessage{{Role: "user", Content: req.Query}},
		Stream:   false,
	}
	if ValidConversationID(req.ConversationID) {
		payload.ConversationID = req.ConversationID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal query payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/agents/%s/query", c.baseURL, c.agentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("failed to create query request: %w", err)
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query request failed")
		return "", "", fmt.Errorf("query request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read query response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		return "", "", &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed struct {
		ConversationID string `json:"conversation_id"`
		Message        struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", "", fmt.Errorf("failed to parse query response: %w", err)
	}
	return parsed.Message.Content, parsed.ConversationID, nil
}
