// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// StreamRenderer renders streaming events to an output destination.
//
// Each On* method handles exactly one event type; the renderer owns
// all output state (spinners, buffers, styling). Call methods in the
// order events arrive, call Finalize when the stream ends (always,
// even on error), then Result for the aggregate.
//
// Implementations must be safe for concurrent calls; events may be
// delivered from multiple goroutines.
type StreamRenderer interface {
	// OnStatus renders a progress update. Interactive modes drive a
	// spinner; machine mode prints "STATUS: message".
	OnStatus(ctx context.Context, message string)

	// OnToken renders one chunk of answer text. Interactive modes
	// print immediately for a streaming effect; machine mode buffers
	// until OnDone. Tokens must arrive in order.
	OnToken(ctx context.Context, token string)

	// OnThinking renders validation or model reasoning, styled apart
	// from the answer. Machine mode buffers until OnDone.
	OnThinking(ctx context.Context, content string)

	// OnSources renders retrieved citations as they arrive, which may
	// be before, during, or after tokens.
	OnSources(ctx context.Context, sources []SourceInfo)

	// OnDone marks successful completion. Stops spinners, flushes
	// machine-mode buffers, prints closing newlines.
	OnDone(ctx context.Context, sessionID string)

	// OnError marks failed completion. After OnError only Finalize
	// and Result should be called.
	OnError(ctx context.Context, err error)

	// Finalize cleans up spinners and seals the result. Must be
	// called when streaming ends, normally via defer. Safe to call
	// more than once.
	Finalize()

	// Result returns a copy of the accumulated result. May be called
	// mid-stream for partial state.
	Result() *StreamResult
}

// terminalStreamRenderer is the interactive renderer behind chat and
// query output.
//
// Personality modes:
//   - PersonalityFull: spinners, colors, boxed sources
//   - PersonalityMinimal: plain text
//   - PersonalityMachine: KEY: value lines for scripting
type terminalStreamRenderer struct {
	writer      io.Writer
	personality PersonalityLevel
	spinner     *Spinner
	result      *StreamResult
	mu          sync.Mutex

	answerBuilder   strings.Builder
	thinkingBuilder strings.Builder
	hasWrittenToken bool
	finalized       bool
}

// NewTerminalStreamRenderer creates an interactive renderer. A nil
// writer defaults to os.Stdout. The internal result is stamped with
// an Id and CreatedAt immediately so latency metrics start now.
func NewTerminalStreamRenderer(w io.Writer, personality PersonalityLevel) StreamRenderer {
	if w == nil {
		w = os.Stdout
	}
	return &terminalStreamRenderer{
		writer:      w,
		personality: personality,
		result:      NewStreamResult(),
	}
}

func (r *terminalStreamRenderer) OnStatus(ctx context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.TotalEvents++

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "STATUS: %s\n", message)
		return
	}

	if r.spinner == nil {
		r.spinner = NewSpinner(message)
		r.spinner.Start()
	} else {
		r.spinner.UpdateMessage(message)
	}
}

func (r *terminalStreamRenderer) OnToken(ctx context.Context, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	if !r.hasWrittenToken {
		r.result.FirstTokenAt = time.Now().UnixMilli()
		r.hasWrittenToken = true

		// The spinner yields the line to the answer.
		if r.spinner != nil {
			r.spinner.Stop()
			r.spinner = nil
			if r.personality != PersonalityMachine {
				fmt.Fprintln(r.writer)
			}
		}
	}

	r.answerBuilder.WriteString(token)
	r.result.TotalTokens++
	r.result.TotalEvents++

	if r.personality == PersonalityMachine {
		// Machine mode emits the whole answer at OnDone.
		return
	}

	fmt.Fprint(r.writer, token)
}

func (r *terminalStreamRenderer) OnThinking(ctx context.Context, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.thinkingBuilder.WriteString(content)
	r.result.ThinkingTokens++
	r.result.TotalEvents++

	if r.personality == PersonalityMachine {
		return
	}

	if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
		fmt.Fprintln(r.writer)
	}

	fmt.Fprint(r.writer, Styles.Thinking.Render(content))
}

func (r *terminalStreamRenderer) OnSources(ctx context.Context, sources []SourceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.Sources = append(r.result.Sources, sources...)
	r.result.TotalEvents++

	if len(sources) == 0 {
		return
	}

	if r.personality == PersonalityMachine {
		for _, src := range sources {
			switch {
			case src.Page > 0 && src.Score != 0:
				fmt.Fprintf(r.writer, "SOURCE: %s page=%d score=%.4f\n", src.Source, src.Page, src.Score)
			case src.Score != 0:
				fmt.Fprintf(r.writer, "SOURCE: %s score=%.4f\n", src.Source, src.Score)
			case src.Page > 0:
				fmt.Fprintf(r.writer, "SOURCE: %s page=%d\n", src.Source, src.Page)
			default:
				fmt.Fprintf(r.writer, "SOURCE: %s\n", src.Source)
			}
		}
		return
	}

	if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
	}

	if r.personality == PersonalityMinimal {
		fmt.Fprintln(r.writer)
		fmt.Fprintln(r.writer, "Sources:")
		for i, src := range sources {
			fmt.Fprintf(r.writer, "  %d. %s\n", i+1, src.Source)
		}
		fmt.Fprintln(r.writer)
		return
	}

	fmt.Fprintln(r.writer)
	var content strings.Builder
	for i, src := range sources {
		detail := ""
		switch {
		case src.Page > 0 && src.Score != 0:
			detail = Styles.Muted.Render(fmt.Sprintf(" (page %d, %.2f)", src.Page, src.Score))
		case src.Score != 0:
			detail = Styles.Muted.Render(fmt.Sprintf(" (%.2f)", src.Score))
		case src.Page > 0:
			detail = Styles.Muted.Render(fmt.Sprintf(" (page %d)", src.Page))
		}
		content.WriteString(fmt.Sprintf("%d. %s%s", i+1, truncate(src.Source, 50), detail))
		if i < len(sources)-1 {
			content.WriteString("\n")
		}
	}
	boxStyle := Styles.InfoBox.Width(60)
	titleLine := Styles.Subtitle.Render("Retrieved Sources")
	fmt.Fprintln(r.writer, boxStyle.Render(titleLine+"\n"+content.String()))
	fmt.Fprintln(r.writer)
}

// OnDone flushes machine-mode buffers as "ANSWER:", "THINKING:",
// "SESSION:" lines followed by "DONE". Interactive modes just make
// sure output ends on a fresh line.
func (r *terminalStreamRenderer) OnDone(ctx context.Context, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.SessionID = sessionID
	r.result.CompletedAt = time.Now().UnixMilli()
	r.result.TotalEvents++

	if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
	}

	if r.personality == PersonalityMachine {
		answer := r.answerBuilder.String()
		if answer != "" {
			fmt.Fprintf(r.writer, "ANSWER: %s\n", answer)
		}
		thinking := r.thinkingBuilder.String()
		if thinking != "" {
			fmt.Fprintf(r.writer, "THINKING: %s\n", thinking)
		}
		if sessionID != "" {
			fmt.Fprintf(r.writer, "SESSION: %s\n", sessionID)
		}
		fmt.Fprintln(r.writer, "DONE")
	} else {
		answer := r.answerBuilder.String()
		if answer != "" && !strings.HasSuffix(answer, "\n") {
			fmt.Fprintln(r.writer)
		}
	}
}

func (r *terminalStreamRenderer) OnError(ctx context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.Error = err.Error()
	r.result.CompletedAt = time.Now().UnixMilli()
	r.result.TotalEvents++

	if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
	}

	if r.personality == PersonalityMachine {
		fmt.Fprintf(r.writer, "ERROR: %v\n", err)
	} else {
		fmt.Fprintf(r.writer, "\n%s %s\n",
			IconError.Render(),
			Styles.Error.Render(fmt.Sprintf("Stream error: %v", err)))
	}
}

func (r *terminalStreamRenderer) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}
	r.finalized = true

	if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
	}

	r.result.Answer = r.answerBuilder.String()
	r.result.Thinking = r.thinkingBuilder.String()
	if r.result.CompletedAt == 0 {
		r.result.CompletedAt = time.Now().UnixMilli()
	}
}

// Result returns a copy so callers cannot race with rendering still
// in flight.
func (r *terminalStreamRenderer) Result() *StreamResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := *r.result
	result.Answer = r.answerBuilder.String()
	result.Thinking = r.thinkingBuilder.String()
	return &result
}

// bufferStreamRenderer captures events in memory with no output,
// which keeps renderer-driven code paths testable without a TTY.
type bufferStreamRenderer struct {
	result    *StreamResult
	events    []StreamEvent
	mu        sync.Mutex
	finalized bool

	answerBuilder   strings.Builder
	thinkingBuilder strings.Builder
}

// NewBufferStreamRenderer creates a renderer that records every event
// for later inspection via Events.
func NewBufferStreamRenderer() StreamRenderer {
	return &bufferStreamRenderer{
		result: NewStreamResult(),
		events: make([]StreamEvent, 0),
	}
}

func (r *bufferStreamRenderer) OnStatus(ctx context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.events = append(r.events, NewStatusEvent(message))
	r.result.TotalEvents++
}

func (r *bufferStreamRenderer) OnToken(ctx context.Context, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	if r.result.FirstTokenAt == 0 {
		r.result.FirstTokenAt = time.Now().UnixMilli()
	}

	r.answerBuilder.WriteString(token)
	r.events = append(r.events, NewTokenEvent(token))
	r.result.TotalTokens++
	r.result.TotalEvents++
}

func (r *bufferStreamRenderer) OnThinking(ctx context.Context, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.thinkingBuilder.WriteString(content)
	r.events = append(r.events, NewThinkingEvent(content))
	r.result.ThinkingTokens++
	r.result.TotalEvents++
}

func (r *bufferStreamRenderer) OnSources(ctx context.Context, sources []SourceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.Sources = append(r.result.Sources, sources...)
	r.events = append(r.events, NewSourcesEvent(sources))
	r.result.TotalEvents++
}

func (r *bufferStreamRenderer) OnDone(ctx context.Context, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.SessionID = sessionID
	r.result.CompletedAt = time.Now().UnixMilli()
	r.events = append(r.events, NewDoneEvent(sessionID))
	r.result.TotalEvents++
}

func (r *bufferStreamRenderer) OnError(ctx context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}

	r.result.Error = err.Error()
	r.result.CompletedAt = time.Now().UnixMilli()
	r.events = append(r.events, NewErrorEvent(err.Error()))
	r.result.TotalEvents++
}

func (r *bufferStreamRenderer) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return
	}
	r.finalized = true

	r.result.Answer = r.answerBuilder.String()
	r.result.Thinking = r.thinkingBuilder.String()
	if r.result.CompletedAt == 0 {
		r.result.CompletedAt = time.Now().UnixMilli()
	}
}

func (r *bufferStreamRenderer) Result() *StreamResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := *r.result
	result.Answer = r.answerBuilder.String()
	result.Thinking = r.thinkingBuilder.String()
	return &result
}

// Events returns a copy of the captured events in order. Not part of
// StreamRenderer; cast to *bufferStreamRenderer to reach it.
func (r *bufferStreamRenderer) Events() []StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]StreamEvent, len(r.events))
	copy(events, r.events)
	return events
}

// RenderStreamToResult drains a stream into its aggregated result,
// for callers that need no live rendering.
func RenderStreamToResult(ctx context.Context, reader StreamReader, source io.Reader) (*StreamResult, error) {
	return reader.ReadAll(ctx, source)
}

var _ StreamRenderer = (*terminalStreamRenderer)(nil)
var _ StreamRenderer = (*bufferStreamRenderer)(nil)
