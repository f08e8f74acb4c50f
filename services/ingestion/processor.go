// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ingestion turns PDF documents into searchable knowledge: an
// LLM extraction pass produces structured XML and document metadata,
// which the pipeline uploads to the retrieval datastore and polls to
// completion.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/miras/services/artifacts"
	"github.com/AleutianAI/miras/services/llm"
)

var tracer = otel.Tracer("miras.ingestion")

const (
	// maxPDFSizeMB rejects documents the extraction model cannot take.
	maxPDFSizeMB = 50.0
	// fileAPIThresholdMB is the inline-bytes cutoff. Above it the PDF
	// goes through the backend's file API instead of the request body.
	fileAPIThresholdMB = 20.0

	// DefaultThinkingBudget lets the model decide how much to reason
	// during extraction.
	DefaultThinkingBudget int32 = -1

	pdfMIMEType = "application/pdf"
)

// Metadata describes an extracted document.
type Metadata struct {
	Title    string   `json:"title"`
	Type     string   `json:"type"`
	Topics   []string `json:"topics"`
	Date     string   `json:"date,omitempty"`
	Author   string   `json:"author,omitempty"`
	Summary  string   `json:"summary"`
	Filename string   `json:"filename"`
	SizeMB   float64  `json:"size_mb"`
}

// Extraction is the result of one PDF extraction pass.
type Extraction struct {
	Content  string
	Thinking string
	Metadata Metadata

	// Artifact paths, set when the processor has an artifact store.
	ContentPath  string
	ThinkingPath string
}

// Processor extracts PDF content and metadata through the LLM.
//
// # Description
//
// Extraction streams with thinking enabled so the reasoning can be
// shown live and kept as a sidecar artifact. Metadata runs as a
// second, thinking-free structured-output call. Both passes attach
// the PDF either inline (small files) or through the model's file
// API.
//
// # Thread Safety
//
// Processor is safe for concurrent use when its model client is.
type Processor struct {
	model llm.FileCapable
	refs  *artifacts.Store

	thinkingBudget int32
	maxSizeMB      float64
	inlineLimitMB  float64
}

// NewProcessor builds a processor. refs may be nil to skip artifact
// persistence. GEMINI_THINKING_BUDGET overrides the extraction
// thinking budget.
func NewProcessor(model llm.FileCapable, refs *artifacts.Store) *Processor {
	budget := DefaultThinkingBudget
	if raw := os.Getenv("GEMINI_THINKING_BUDGET"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			slog.Warn("Invalid GEMINI_THINKING_BUDGET, using dynamic thinking", "value", raw)
		} else {
			budget = int32(parsed)
		}
	}
	return &Processor{
		model:          model,
		refs:           refs,
		thinkingBudget: budget,
		maxSizeMB:      maxPDFSizeMB,
		inlineLimitMB:  fileAPIThresholdMB,
	}
}

// ProcessPDF extracts a PDF into XML plus metadata. onThinking, when
// non-nil, receives incremental reasoning text as it streams.
func (p *Processor) ProcessPDF(ctx context.Context, path string, onThinking func(text string)) (*Extraction, error) {
	ctx, span := tracer.Start(ctx, "Processor.ProcessPDF")
	defer span.End()

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("PDF file not found: %s", path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, fmt.Errorf("file is not a PDF: %s", path)
	}

	sizeMB := float64(info.Size()) / (1024 * 1024)
	if sizeMB > p.maxSizeMB {
		return nil, fmt.Errorf("PDF size %.2f MB exceeds maximum of %.0f MB", sizeMB, p.maxSizeMB)
	}

	file := llm.FileInput{Path: path, MIMEType: pdfMIMEType}
	inline := sizeMB <= p.inlineLimitMB
	if inline {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read PDF: %w", err)
		}
		file.Data = data
	} else {
		slog.Info("Large file detected, using File API", "path", path, "sizeMB", fmt.Sprintf("%.2f", sizeMB))
	}
	span.SetAttributes(
		attribute.Float64("pdf.size_mb", sizeMB),
		attribute.Bool("pdf.inline", inline),
	)

	slog.Info("Processing PDF", "path", path, "sizeMB", fmt.Sprintf("%.2f", sizeMB))

	budget := p.thinkingBudget
	params := llm.GenerationParams{
		ThinkingBudget:  &budget,
		IncludeThoughts: true,
	}

	var thinking, content strings.Builder
	err = p.model.GenerateWithFile(ctx, extractionPrompt, file, params, func(ev llm.StreamEvent) error {
		switch ev.Type {
		case llm.EventThinking:
			thinking.WriteString(ev.Content)
			if onThinking != nil {
				onThinking(ev.Content)
			}
		case llm.EventToken:
			content.WriteString(ev.Content)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("document extraction failed: %w", err)
	}

	meta, err := p.extractMetadata(ctx, file, info.Name())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	meta.Filename = info.Name()
	meta.SizeMB = sizeMB

	ext := &Extraction{
		Content:  content.String(),
		Thinking: thinking.String(),
		Metadata: meta,
	}
	if err := p.persist(ext, info.Name()); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return ext, nil
}

// extractMetadata runs the thinking-free metadata pass. A response
// that fails to parse degrades to stem-derived defaults; only the
// model call itself can fail the extraction.
func (p *Processor) extractMetadata(ctx context.Context, file llm.FileInput, filename string) (Metadata, error) {
	var noThinking int32
	params := llm.GenerationParams{
		ThinkingBudget: &noThinking,
		ResponseSchema: metadataSchema(),
	}

	var raw strings.Builder
	err := p.model.GenerateWithFile(ctx, metadataPrompt, file, params, func(ev llm.StreamEvent) error {
		if ev.Type == llm.EventToken {
			raw.WriteString(ev.Content)
		}
		return nil
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("metadata extraction failed: %w", err)
	}

	meta, err := parseMetadata(raw.String())
	if err != nil {
		slog.Warn("Metadata parse failed, using defaults", "file", filename, "error", err)
		return fallbackMetadata(filename), nil
	}
	return meta, nil
}

// persist writes the artifacts. The thinking sidecar is best-effort;
// the extraction itself must land.
func (p *Processor) persist(ext *Extraction, filename string) error {
	if p.refs == nil {
		return nil
	}

	contentPath, err := p.refs.SaveExtraction(filename, ext.Content)
	if err != nil {
		return fmt.Errorf("failed to save extracted content: %w", err)
	}
	ext.ContentPath = contentPath
	slog.Info("Extracted text saved", "path", contentPath)

	if ext.Thinking != "" {
		thinkingPath, err := p.refs.SaveThinking(filename, ext.Thinking)
		if err != nil {
			slog.Warn("Failed to save thinking transcript", "error", err)
		} else {
			ext.ThinkingPath = thinkingPath
		}
	}
	return nil
}
