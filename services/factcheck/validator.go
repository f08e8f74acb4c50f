// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package factcheck validates answers against source documents with a
// second LLM pass. The validator extracts factual claims from an
// answer, verifies each against the extracted reference document, and
// scores overall accuracy. Both the backend search stream and the CLI
// consume it.
package factcheck

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/miras/services/artifacts"
	"github.com/AleutianAI/miras/services/contextual"
	"github.com/AleutianAI/miras/services/llm"
)

var tracer = otel.Tracer("miras.factcheck")

// Thinking budgets for the validation passes. Streaming gets more
// room because the thoughts are shown to the user.
const (
	streamThinkingBudget   int32 = 2048
	blockingThinkingBudget int32 = 1024
)

// ===== EVENTS =====

// EventType discriminates validation stream events.
type EventType string

const (
	// EventThought is an incremental reasoning summary chunk.
	EventThought EventType = "thought"
	// EventAnswer is an incremental chunk of the raw JSON answer.
	EventAnswer EventType = "answer"
	// EventResult carries the parsed final result.
	EventResult EventType = "result"
	// EventError carries a validation-side failure.
	EventError EventType = "error"
)

// Event is one unit of streamed validation output. The sequence ends
// with exactly one result or one error event.
type Event struct {
	Type   EventType
	Text   string
	Result *Result
	Err    error
}

// Callback receives validation events in order. Returning an error
// aborts the stream.
type Callback func(event Event) error

// ===== VALIDATOR =====

// Validator checks answers for factual accuracy.
//
// # Description
//
// Runs a fact-checking prompt through the configured LLM backend in
// structured-output mode. When a reference store is attached, the
// extracted document matching the answer's first source is loaded into
// the prompt; validation still runs without one, with reduced
// accuracy.
//
// # Thread Safety
//
// Validator is safe for concurrent use when its LLM client is.
type Validator struct {
	llm  llm.Client
	refs *artifacts.Store
}

// NewValidator builds a validator. refs may be nil, in which case
// validation always runs without a reference document.
func NewValidator(client llm.Client, refs *artifacts.Store) *Validator {
	return &Validator{llm: client, refs: refs}
}

// ValidateStream runs a streaming validation pass, delivering thought
// and answer chunks as they arrive and finishing with exactly one
// result or error event. The returned error is non-nil only when the
// callback aborts.
func (v *Validator) ValidateStream(ctx context.Context, query, answer string, sources []contextual.Retrieval, fn Callback) error {
	ctx, span := tracer.Start(ctx, "Validator.ValidateStream")
	defer span.End()

	doc, hasDoc := v.referenceDocument(sources)
	span.SetAttributes(attribute.Bool("validation.has_document", hasDoc))

	var cbErr error
	emit := func(ev Event) error {
		if err := fn(ev); err != nil {
			cbErr = err
			return err
		}
		return nil
	}

	budget := streamThinkingBudget
	params := llm.GenerationParams{
		ThinkingBudget:  &budget,
		IncludeThoughts: true,
		ResponseSchema:  resultSchema(),
	}

	var raw strings.Builder
	streamErr := v.llm.GenerateStream(ctx, validationPrompt(query, answer, doc), params, func(ev llm.StreamEvent) error {
		switch ev.Type {
		case llm.EventThinking:
			return emit(Event{Type: EventThought, Text: ev.Content})
		case llm.EventToken:
			raw.WriteString(ev.Content)
			return emit(Event{Type: EventAnswer, Text: ev.Content})
		}
		// Stream errors also surface through the return value below.
		return nil
	})
	if cbErr != nil {
		span.RecordError(cbErr)
		return cbErr
	}
	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, streamErr.Error())
		slog.Error("Validation stream failed", "error", streamErr)
		return emit(Event{Type: EventError, Err: streamErr})
	}

	result, err := finalizeResult(raw.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("Validation result parse failed", "error", err)
		return emit(Event{Type: EventError, Err: err})
	}

	span.SetAttributes(
		attribute.Int("validation.total_facts", result.TotalFacts),
		attribute.Int("validation.accuracy", result.AccuracyScore),
	)
	return emit(Event{Type: EventResult, Result: result})
}

// Validate runs a blocking validation pass. A response that fails to
// parse as JSON yields a zeroed result rather than an error; errors
// are reserved for the LLM call itself.
func (v *Validator) Validate(ctx context.Context, query, answer string, sources []contextual.Retrieval) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Validator.Validate")
	defer span.End()

	doc, hasDoc := v.referenceDocument(sources)
	span.SetAttributes(attribute.Bool("validation.has_document", hasDoc))

	budget := blockingThinkingBudget
	params := llm.GenerationParams{
		ThinkingBudget: &budget,
		ResponseSchema: resultSchema(),
	}

	text, err := v.llm.Generate(ctx, validationPrompt(query, answer, doc), params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, err := finalizeResult(text)
	if err != nil {
		slog.Warn("Validation result parse failed, returning zeroed result", "error", err)
		return zeroResult(), nil
	}
	span.SetAttributes(
		attribute.Int("validation.total_facts", result.TotalFacts),
		attribute.Int("validation.accuracy", result.AccuracyScore),
	)
	return result, nil
}

// CheckFact verifies a single statement against a piece of context,
// with thinking disabled for speed. Parse failures degrade to a
// could-not-validate result.
func (v *Validator) CheckFact(ctx context.Context, statement, factContext string) (*FactCheck, error) {
	ctx, span := tracer.Start(ctx, "Validator.CheckFact")
	defer span.End()

	var noThinking int32
	params := llm.GenerationParams{
		ThinkingBudget: &noThinking,
		ResponseSchema: factCheckSchema(),
	}

	text, err := v.llm.Generate(ctx, factCheckPrompt(statement, factContext), params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	check, err := parseFactCheck(text)
	if err != nil {
		slog.Warn("Fact check parse failed", "error", err)
		return &FactCheck{Explanation: "Could not validate"}, nil
	}
	return check, nil
}

// referenceDocument loads the extracted document named by the first
// source. Missing store, missing sources, and missing files all
// degrade to running without a document.
func (v *Validator) referenceDocument(sources []contextual.Retrieval) (string, bool) {
	if v.refs == nil {
		return "", false
	}
	var docName string
	if len(sources) > 0 {
		docName = sources[0].DocName
	}
	return v.refs.LoadReference(docName)
}

// CleanThinking strips markdown bold markers from thought summaries
// so plain-text consumers (SSE relays, terminals) get readable output.
func CleanThinking(text string) string {
	return strings.ReplaceAll(text, "**", "")
}
