// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingestion

import (
	"context"
	"log/slog"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/miras/services/contextual"
)

// Stage identifies a pipeline phase for progress reporting.
type Stage string

const (
	StageExtracting Stage = "extracting"
	StageUploading  Stage = "uploading"
	StageCompleted  Stage = "completed"
)

// Progress is one pipeline status update.
type Progress struct {
	Stage      Stage
	File       string
	DocumentID string
	Status     string
}

// ProgressFunc receives pipeline status updates. Errors are not
// reported here; they come back from IngestFile itself.
type ProgressFunc func(p Progress)

// UploadOutcome pairs an uploaded document part with its final
// ingestion status.
type UploadOutcome struct {
	DocumentID string
	Title      string
	Status     string
}

// IngestResult is the outcome of one full ingestion run.
type IngestResult struct {
	Extraction *Extraction
	Uploads    []UploadOutcome
}

// Pipeline chains extraction and datastore upload for one document.
type Pipeline struct {
	processor *Processor
	store     *contextual.Client
}

// NewPipeline builds a pipeline over an extraction processor and a
// datastore client.
func NewPipeline(processor *Processor, store *contextual.Client) *Pipeline {
	return &Pipeline{processor: processor, store: store}
}

// IngestFile runs extract, upload, and ingestion polling for one PDF.
// Progress updates and incremental thinking text stream through the
// optional callbacks. Oversized documents arrive in the datastore as
// multiple parts; each part is polled to a terminal status.
func (pl *Pipeline) IngestFile(ctx context.Context, path string, onProgress ProgressFunc, onThinking func(text string)) (*IngestResult, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.IngestFile")
	defer span.End()

	base := filepath.Base(path)
	report := func(p Progress) {
		if onProgress != nil {
			p.File = base
			onProgress(p)
		}
	}

	report(Progress{Stage: StageExtracting})
	ext, err := pl.processor.ProcessPDF(ctx, path, onThinking)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report(Progress{Stage: StageUploading})
	results, err := pl.store.UploadDocument(ctx, ext.Content, contextual.UploadMetadata{
		Title:       ext.Metadata.Title,
		Author:      ext.Metadata.Author,
		Date:        ext.Metadata.Date,
		Description: ext.Metadata.Summary,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	uploads := make([]UploadOutcome, 0, len(results))
	for _, r := range results {
		status := pl.store.WaitForIngestion(ctx, r.DocumentID)
		if status != "completed" {
			slog.Warn("Ingestion did not complete", "documentID", r.DocumentID, "status", status)
		}
		uploads = append(uploads, UploadOutcome{DocumentID: r.DocumentID, Title: r.Title, Status: status})
		report(Progress{Stage: StageCompleted, DocumentID: r.DocumentID, Status: status})
	}

	span.SetAttributes(attribute.Int("ingest.document_parts", len(uploads)))
	return &IngestResult{Extraction: ext, Uploads: uploads}, nil
}
