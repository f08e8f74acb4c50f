// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNewTerminalStreamRenderer(t *testing.T) {
	renderer := NewTerminalStreamRenderer(nil, PersonalityMachine)
	if renderer == nil {
		t.Fatal("NewTerminalStreamRenderer() returned nil")
	}

	result := renderer.Result()
	if result.Id == "" {
		t.Error("expected Id to be set")
	}
	if result.CreatedAt == 0 {
		t.Error("expected CreatedAt to be set")
	}
}

func TestTerminalStreamRenderer_OnToken_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	renderer.OnToken(ctx, "Hello")
	renderer.OnToken(ctx, " world")
	renderer.OnDone(ctx, "sess-123")

	output := buf.String()
	if !strings.Contains(output, "ANSWER: Hello world") {
		t.Errorf("expected ANSWER in output, got %q", output)
	}
	if !strings.Contains(output, "SESSION: sess-123") {
		t.Errorf("expected SESSION in output, got %q", output)
	}
	if !strings.Contains(output, "DONE") {
		t.Errorf("expected DONE in output, got %q", output)
	}
}

func TestTerminalStreamRenderer_OnToken_MinimalMode(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMinimal)
	ctx := context.Background()

	renderer.OnToken(ctx, "Hi")
	renderer.OnDone(ctx, "")

	output := buf.String()
	// Outside machine mode tokens stream straight to the writer.
	if !strings.Contains(output, "Hi") {
		t.Errorf("expected streamed token, got %q", output)
	}
}

func TestTerminalStreamRenderer_OnToken_SetsFirstTokenAt(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	result1 := renderer.Result()
	if result1.FirstTokenAt != 0 {
		t.Error("expected FirstTokenAt to be 0 before first token")
	}

	renderer.OnToken(ctx, "test")

	result2 := renderer.Result()
	if result2.FirstTokenAt == 0 {
		t.Error("expected FirstTokenAt to be set after first token")
	}
}

func TestTerminalStreamRenderer_OnStatus_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	renderer.OnStatus(ctx, "Searching documents...")
	renderer.OnDone(ctx, "")

	output := buf.String()
	if !strings.Contains(output, "STATUS: Searching documents...") {
		t.Errorf("expected STATUS in output, got %q", output)
	}
}

func TestTerminalStreamRenderer_OnThinking_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	renderer.OnThinking(ctx, "Checking the claim...")
	renderer.OnToken(ctx, "Answer")
	renderer.OnDone(ctx, "")

	output := buf.String()
	if !strings.Contains(output, "THINKING: Checking the claim...") {
		t.Errorf("expected THINKING in output, got %q", output)
	}

	result := renderer.Result()
	if result.ThinkingTokens != 1 {
		t.Errorf("expected ThinkingTokens 1, got %d", result.ThinkingTokens)
	}
}

func TestTerminalStreamRenderer_OnSources_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	sources := []SourceInfo{
		{Source: "doc.pdf", Page: 3, Score: 0.95},
		{Source: "notes.pdf", Score: 0.4},
		{Source: "appendix.pdf", Page: 12},
	}
	renderer.OnSources(ctx, sources)
	renderer.OnDone(ctx, "")

	output := buf.String()
	if !strings.Contains(output, "SOURCE: doc.pdf page=3 score=0.9500") {
		t.Errorf("expected SOURCE with page and score, got %q", output)
	}
	if !strings.Contains(output, "SOURCE: notes.pdf score=0.4000") {
		t.Errorf("expected SOURCE with score only, got %q", output)
	}
	if !strings.Contains(output, "SOURCE: appendix.pdf page=12") {
		t.Errorf("expected SOURCE with page only, got %q", output)
	}
}

func TestTerminalStreamRenderer_OnSources_MinimalMode(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMinimal)
	ctx := context.Background()

	sources := []SourceInfo{{Source: "test.pdf"}}
	renderer.OnSources(ctx, sources)

	output := buf.String()
	if !strings.Contains(output, "Sources:") {
		t.Errorf("expected Sources header, got %q", output)
	}
	if !strings.Contains(output, "1. test.pdf") {
		t.Errorf("expected numbered source, got %q", output)
	}
}

func TestTerminalStreamRenderer_OnSources_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	renderer.OnSources(ctx, []SourceInfo{})
	renderer.OnDone(ctx, "")

	output := buf.String()
	if strings.Contains(output, "SOURCE:") {
		t.Errorf("expected no SOURCE output for empty sources, got %q", output)
	}
}

func TestTerminalStreamRenderer_OnError_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	renderer.OnError(ctx, errors.New("connection failed"))

	output := buf.String()
	if !strings.Contains(output, "ERROR: connection failed") {
		t.Errorf("expected ERROR in output, got %q", output)
	}

	result := renderer.Result()
	if result.Error != "connection failed" {
		t.Errorf("expected Error 'connection failed', got %q", result.Error)
	}
}

func TestTerminalStreamRenderer_OnDone_SetsCompletedAt(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	result1 := renderer.Result()
	if result1.CompletedAt != 0 {
		t.Error("expected CompletedAt to be 0 before OnDone")
	}

	renderer.OnDone(ctx, "sess-xyz")

	result2 := renderer.Result()
	if result2.CompletedAt == 0 {
		t.Error("expected CompletedAt to be set after OnDone")
	}
	if result2.SessionID != "sess-xyz" {
		t.Errorf("expected SessionID 'sess-xyz', got %q", result2.SessionID)
	}
}

func TestTerminalStreamRenderer_Finalize_Idempotent(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	renderer.OnToken(ctx, "test")

	renderer.Finalize()
	renderer.Finalize()
	renderer.Finalize()

	result := renderer.Result()
	if result.Answer != "test" {
		t.Errorf("expected Answer 'test', got %q", result.Answer)
	}
}

func TestTerminalStreamRenderer_Finalize_IgnoresSubsequentCalls(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	renderer.OnToken(ctx, "first")
	renderer.Finalize()

	renderer.OnToken(ctx, "second")
	renderer.OnDone(ctx, "sess")

	result := renderer.Result()
	if result.Answer != "first" {
		t.Errorf("expected Answer 'first', got %q", result.Answer)
	}
}

func TestTerminalStreamRenderer_Result_Metrics(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	renderer.OnStatus(ctx, "starting")
	renderer.OnSources(ctx, []SourceInfo{{Source: "doc.pdf"}})
	renderer.OnThinking(ctx, "hmm")
	renderer.OnToken(ctx, "a")
	renderer.OnToken(ctx, "b")
	renderer.OnToken(ctx, "c")
	renderer.OnDone(ctx, "sess")

	result := renderer.Result()
	if result.TotalTokens != 3 {
		t.Errorf("expected TotalTokens 3, got %d", result.TotalTokens)
	}
	if result.ThinkingTokens != 1 {
		t.Errorf("expected ThinkingTokens 1, got %d", result.ThinkingTokens)
	}
	if result.TotalEvents != 7 {
		t.Errorf("expected TotalEvents 7, got %d", result.TotalEvents)
	}
	if len(result.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(result.Sources))
	}
}

func TestNewBufferStreamRenderer(t *testing.T) {
	renderer := NewBufferStreamRenderer()
	if renderer == nil {
		t.Fatal("NewBufferStreamRenderer() returned nil")
	}

	result := renderer.Result()
	if result.Id == "" {
		t.Error("expected Id to be set")
	}
}

func TestBufferStreamRenderer_CapturesAllEventTypes(t *testing.T) {
	renderer := NewBufferStreamRenderer()
	bufRenderer := renderer.(*bufferStreamRenderer)
	ctx := context.Background()

	renderer.OnStatus(ctx, "starting")
	renderer.OnSources(ctx, []SourceInfo{{Source: "doc.pdf"}})
	renderer.OnThinking(ctx, "thinking...")
	renderer.OnToken(ctx, "answer")
	renderer.OnDone(ctx, "sess-123")

	events := bufRenderer.Events()
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}

	expectedTypes := []StreamEventType{
		StreamEventStatus,
		StreamEventSources,
		StreamEventThinking,
		StreamEventToken,
		StreamEventDone,
	}
	for i, expected := range expectedTypes {
		if events[i].Type != expected {
			t.Errorf("event %d: expected Type %v, got %v", i, expected, events[i].Type)
		}
	}
}

func TestBufferStreamRenderer_Result(t *testing.T) {
	renderer := NewBufferStreamRenderer()
	ctx := context.Background()

	renderer.OnThinking(ctx, "checking sources")
	renderer.OnToken(ctx, "hello ")
	renderer.OnToken(ctx, "world")
	renderer.OnSources(ctx, []SourceInfo{{Source: "doc.pdf", Page: 2, Score: 0.9}})
	renderer.OnDone(ctx, "sess-abc")
	renderer.Finalize()

	result := renderer.Result()
	if result.Answer != "hello world" {
		t.Errorf("expected Answer 'hello world', got %q", result.Answer)
	}
	if result.Thinking != "checking sources" {
		t.Errorf("expected Thinking 'checking sources', got %q", result.Thinking)
	}
	if result.SessionID != "sess-abc" {
		t.Errorf("expected SessionID 'sess-abc', got %q", result.SessionID)
	}
	if len(result.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(result.Sources))
	}
}

func TestBufferStreamRenderer_OnError(t *testing.T) {
	renderer := NewBufferStreamRenderer()
	ctx := context.Background()

	renderer.OnToken(ctx, "partial")
	renderer.OnError(ctx, errors.New("stream failed"))
	renderer.Finalize()

	result := renderer.Result()
	if result.Answer != "partial" {
		t.Errorf("expected Answer 'partial', got %q", result.Answer)
	}
	if result.Error != "stream failed" {
		t.Errorf("expected Error 'stream failed', got %q", result.Error)
	}
	if result.CompletedAt == 0 {
		t.Error("expected CompletedAt to be set")
	}
}

func TestBufferStreamRenderer_Finalize_Idempotent(t *testing.T) {
	renderer := NewBufferStreamRenderer()
	ctx := context.Background()

	renderer.OnToken(ctx, "test")

	renderer.Finalize()
	renderer.Finalize()
	renderer.Finalize()

	result := renderer.Result()
	if result.Answer != "test" {
		t.Errorf("expected Answer 'test', got %q", result.Answer)
	}
}

func TestBufferStreamRenderer_Events_ReturnsCopy(t *testing.T) {
	renderer := NewBufferStreamRenderer()
	bufRenderer := renderer.(*bufferStreamRenderer)
	ctx := context.Background()

	renderer.OnToken(ctx, "test")

	events1 := bufRenderer.Events()
	events2 := bufRenderer.Events()

	events1[0].Content = "modified"

	if events2[0].Content != "test" {
		t.Error("Events() should return a copy, not a reference")
	}
}

func TestTerminalStreamRenderer_ConcurrentSafety(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				renderer.OnToken(ctx, "x")
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	renderer.Finalize()
	result := renderer.Result()
	if result.TotalTokens != 1000 {
		t.Errorf("expected TotalTokens 1000, got %d", result.TotalTokens)
	}
}

func TestBufferStreamRenderer_ConcurrentSafety(t *testing.T) {
	renderer := NewBufferStreamRenderer()
	ctx := context.Background()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				renderer.OnToken(ctx, "x")
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	renderer.Finalize()
	result := renderer.Result()
	if result.TotalTokens != 1000 {
		t.Errorf("expected TotalTokens 1000, got %d", result.TotalTokens)
	}

	bufRenderer := renderer.(*bufferStreamRenderer)
	events := bufRenderer.Events()
	if len(events) != 1000 {
		t.Errorf("expected 1000 events, got %d", len(events))
	}
}

func TestTerminalStreamRenderer_FullFlow_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewTerminalStreamRenderer(&buf, PersonalityMachine)
	ctx := context.Background()

	renderer.OnStatus(ctx, "Searching documents...")
	renderer.OnSources(ctx, []SourceInfo{
		{Source: "safety_manual.pdf", Page: 14, Score: 0.95},
		{Source: "incident_log.pdf", Page: 2, Score: 0.87},
	})
	renderer.OnStatus(ctx, "Analyzing results...")
	renderer.OnThinking(ctx, "Comparing the top passages...")
	renderer.OnToken(ctx, "Based on ")
	renderer.OnToken(ctx, "the manual, ")
	renderer.OnToken(ctx, "lockout requires a tagged disconnect.")
	renderer.OnDone(ctx, "sess-test-123")
	renderer.Finalize()

	output := buf.String()

	expectedParts := []string{
		"STATUS: Searching documents...",
		"SOURCE: safety_manual.pdf page=14 score=0.9500",
		"SOURCE: incident_log.pdf page=2 score=0.8700",
		"STATUS: Analyzing results...",
		"THINKING: Comparing the top passages...",
		"ANSWER: Based on the manual, lockout requires a tagged disconnect.",
		"SESSION: sess-test-123",
		"DONE",
	}

	for _, expected := range expectedParts {
		if !strings.Contains(output, expected) {
			t.Errorf("expected output to contain %q, got:\n%s", expected, output)
		}
	}

	result := renderer.Result()
	if result.Answer != "Based on the manual, lockout requires a tagged disconnect." {
		t.Errorf("unexpected Answer: %q", result.Answer)
	}
	if result.Thinking != "Comparing the top passages..." {
		t.Errorf("unexpected Thinking: %q", result.Thinking)
	}
	if result.TotalTokens != 3 {
		t.Errorf("expected TotalTokens 3, got %d", result.TotalTokens)
	}
	if len(result.Sources) != 2 {
		t.Errorf("expected 2 sources, got %d", len(result.Sources))
	}
}
