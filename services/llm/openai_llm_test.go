// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Mock Server Helpers
// =============================================================================

// newMockOpenAIServer creates a test server speaking the chat
// completions SSE protocol.
//
// # Description
//
// Responds to /chat/completions with the chunks the handler writes.
// Chunks must be SSE frames ("data: {json}\n\n") ending in
// "data: [DONE]".
func newMockOpenAIServer(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

// sseChunk formats one streamed completion delta as an SSE frame.
func sseChunk(content string) string {
	return fmt.Sprintf(
		"data: {\"id\":\"cmpl-1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n",
		content,
	)
}

// =============================================================================
// GenerateStream Tests
// =============================================================================

func TestOpenAIClient_GenerateStream_DeliversTokens(t *testing.T) {
	t.Parallel()

	server := newMockOpenAIServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("Hello"))
		fmt.Fprint(w, sseChunk(" world"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer server.Close()

	client := newOpenAIClientWithBase("test-key", "gpt-4o-mini", server.URL)

	var tokens []string
	err := client.GenerateStream(context.Background(), "hi", GenerationParams{}, func(event StreamEvent) error {
		if event.Type != EventToken {
			t.Errorf("unexpected event type %q", event.Type)
		}
		tokens = append(tokens, event.Content)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	if got := strings.Join(tokens, ""); got != "Hello world" {
		t.Errorf("assembled answer = %q, want 'Hello world'", got)
	}
}

func TestOpenAIClient_GenerateStream_CallbackAborts(t *testing.T) {
	t.Parallel()

	server := newMockOpenAIServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("a"))
		fmt.Fprint(w, sseChunk("b"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer server.Close()

	client := newOpenAIClientWithBase("test-key", "gpt-4o-mini", server.URL)

	abort := errors.New("stop here")
	calls := 0
	err := client.GenerateStream(context.Background(), "hi", GenerationParams{}, func(event StreamEvent) error {
		calls++
		return abort
	})

	if !errors.Is(err, abort) {
		t.Errorf("expected callback error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Errorf("stream should stop after abort, callback ran %d times", calls)
	}
}

func TestOpenAIClient_GenerateStream_ServerError(t *testing.T) {
	t.Parallel()

	server := newMockOpenAIServer(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	})
	defer server.Close()

	client := newOpenAIClientWithBase("test-key", "gpt-4o-mini", server.URL)

	err := client.GenerateStream(context.Background(), "hi", GenerationParams{}, func(event StreamEvent) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected error from 503 response")
	}
}

// =============================================================================
// Generate Tests
// =============================================================================

func TestOpenAIClient_Generate(t *testing.T) {
	t.Parallel()

	server := newMockOpenAIServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"42"},"finish_reason":"stop"}]}`)
	})
	defer server.Close()

	client := newOpenAIClientWithBase("test-key", "gpt-4o-mini", server.URL)

	got, err := client.Generate(context.Background(), "meaning of life?", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "42" {
		t.Errorf("answer = %q, want '42'", got)
	}
}

// =============================================================================
// Request Mapping Tests
// =============================================================================

func TestOpenAIClient_BuildRequest_JSONOutput(t *testing.T) {
	t.Parallel()

	client := &OpenAIClient{model: "gpt-4o-mini"}
	req := client.buildRequest("prompt", GenerationParams{JSONOutput: true})

	if req.ResponseFormat == nil {
		t.Fatal("ResponseFormat not set for JSON output")
	}
}

func TestOpenAIClient_BuildRequest_ParamMapping(t *testing.T) {
	t.Parallel()

	temp := float32(0.5)
	maxTokens := 1024

	client := &OpenAIClient{model: "gpt-4o-mini"}
	req := client.buildRequest("prompt", GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Stop:        []string{"###"},
	})

	if req.Temperature != 0.5 {
		t.Errorf("temperature = %v", req.Temperature)
	}
	if req.MaxCompletionTokens != 1024 {
		t.Errorf("max tokens = %d", req.MaxCompletionTokens)
	}
	if len(req.Stop) != 1 {
		t.Errorf("stop = %v", req.Stop)
	}
	if req.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", req.Model)
	}
}
