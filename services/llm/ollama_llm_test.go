// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newOllamaTestClient builds a client against a mock server.
func newOllamaTestClient(server *httptest.Server) *OllamaClient {
	return &OllamaClient{
		httpClient: server.Client(),
		baseURL:    server.URL,
		model:      "gpt-oss",
	}
}

// =============================================================================
// Generate Tests
// =============================================================================

func TestOllamaClient_Generate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req ollamaGenerateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("request body is not valid JSON: %v", err)
		}
		if req.Model != "gpt-oss" {
			t.Errorf("model = %q", req.Model)
		}
		if req.Stream {
			t.Error("blocking generate should not request a stream")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"gpt-oss","response":"42","done":true}`)
	}))
	defer server.Close()

	client := newOllamaTestClient(server)

	got, err := client.Generate(context.Background(), "meaning of life?", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "42" {
		t.Errorf("answer = %q, want '42'", got)
	}
}

func TestOllamaClient_Generate_ModelNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'gpt-oss' not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := newOllamaTestClient(server)

	_, err := client.Generate(context.Background(), "hi", GenerationParams{})
	if err == nil {
		t.Fatal("expected error for missing model")
	}
	if !strings.Contains(err.Error(), "ollama pull") {
		t.Errorf("error should carry the pull hint, got %v", err)
	}
}

// =============================================================================
// GenerateStream Tests
// =============================================================================

func TestOllamaClient_GenerateStream_DeliversTokens(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req ollamaGenerateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("request body is not valid JSON: %v", err)
		}
		if !req.Stream {
			t.Error("streaming generate should request a stream")
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"response":"Hello","done":false}`)
		fmt.Fprintln(w, `{"response":" world","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer server.Close()

	client := newOllamaTestClient(server)

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

func TestOllamaClient_GenerateStream_MidStreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"response":"partial","done":false}`)
		fmt.Fprintln(w, `{"error":"out of memory"}`)
	}))
	defer server.Close()

	client := newOllamaTestClient(server)

	var sawError bool
	err := client.GenerateStream(context.Background(), "hi", GenerationParams{}, func(event StreamEvent) error {
		if event.Type == EventError {
			sawError = true
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected error from the error chunk")
	}
	if !strings.Contains(err.Error(), "out of memory") {
		t.Errorf("error should carry the server message, got %v", err)
	}
	if !sawError {
		t.Error("EventError was not delivered before the stream failed")
	}
}

// =============================================================================
// Request Mapping Tests
// =============================================================================

func TestOllamaClient_BuildOptions_Defaults(t *testing.T) {
	t.Parallel()

	client := &OllamaClient{model: "gpt-oss"}
	options := client.buildOptions(GenerationParams{})

	if options["temperature"] != float32(0.2) {
		t.Errorf("temperature = %v", options["temperature"])
	}
	if options["num_predict"] != 8192 {
		t.Errorf("num_predict = %v", options["num_predict"])
	}
	if _, ok := options["stop"]; ok {
		t.Error("stop should be absent when no stop sequences are set")
	}
}

func TestOllamaClient_BuildOptions_ParamMapping(t *testing.T) {
	t.Parallel()

	temp := float32(0.7)
	maxTokens := 512

	client := &OllamaClient{model: "gpt-oss"}
	options := client.buildOptions(GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Stop:        []string{"###"},
	})

	if options["temperature"] != float32(0.7) {
		t.Errorf("temperature = %v", options["temperature"])
	}
	if options["num_predict"] != 512 {
		t.Errorf("num_predict = %v", options["num_predict"])
	}
	if _, ok := options["stop"]; !ok {
		t.Error("stop sequences were dropped")
	}
}

func TestOllamaClient_JSONOutputSetsFormat(t *testing.T) {
	t.Parallel()

	client := &OllamaClient{model: "gpt-oss"}
	req, err := client.newGenerateRequest(context.Background(), "prompt", GenerationParams{JSONOutput: true}, false)
	if err != nil {
		t.Fatalf("newGenerateRequest failed: %v", err)
	}
	body, _ := io.ReadAll(req.Body)
	var payload ollamaGenerateRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload.Format != "json" {
		t.Errorf("format = %q, want json", payload.Format)
	}
}
