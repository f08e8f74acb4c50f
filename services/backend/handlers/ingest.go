// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// =============================================================================
// BATCH INGESTION MODULE - SSE PROGRESS STREAM
// =============================================================================
//
// This module serves POST /api/ingest/contextual/batch: a multipart upload of
// documents processed sequentially in arrival order, with progress streamed
// back as phase frames. Per file:
//
//	processing {file, progress} → extracting {file} (PDFs only)
//	                            → uploading {file}
//	                            → completed {file, doc_id} | error {file, error}
//
// A terminal batch_complete {total} frame closes the stream. Per-file failures
// are framed in-band and never abort the batch; only a dead client connection
// does. PDFs run the full extraction pipeline, everything else uploads its
// text content directly.
//
// =============================================================================

package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/miras/pkg/extensions"
	"github.com/AleutianAI/miras/services/backend/datatypes"
	"github.com/AleutianAI/miras/services/backend/observability"
	"github.com/AleutianAI/miras/services/backend/store"
	"github.com/AleutianAI/miras/services/contextual"
	"github.com/AleutianAI/miras/services/ingestion"
)

// errClientGone marks a phase-frame write failure. It ends the batch:
// there is nobody left to stream progress to.
var errClientGone = errors.New("client connection lost")

// Per-file failure causes for unconfigured deployments.
var (
	errPDFExtractionUnavailable = errors.New("PDF extraction is not configured")
	errDatastoreUnavailable     = errors.New("document datastore is not configured")
)

// =============================================================================
// Interface Definition
// =============================================================================

// IngestHandler defines the contract for the batch ingestion endpoint.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; each request owns its
// own temp directory and progress stream.
type IngestHandler interface {
	// HandleIngestBatch processes POST /api/ingest/contextual/batch
	// multipart uploads with SSE streaming of per-file progress.
	HandleIngestBatch(c *gin.Context)
}

// ingestHandler implements IngestHandler over the extraction pipeline and
// the datastore client.
//
// # Fields
//
//   - pipeline: PDF extract/upload/poll pipeline. Nil when no extraction
//     model is configured; PDFs then fail per-file.
//   - upstream: Datastore client for direct non-PDF uploads. Nil or
//     datastore-less clients fail those per-file.
//   - docs: Local record of documents ingested through this backend.
//   - audit: Records each document that lands in the store. Never nil.
type ingestHandler struct {
	pipeline *ingestion.Pipeline
	upstream *contextual.Client
	docs     *store.DocumentStore
	audit    extensions.AuditLogger
	tracer   trace.Tracer
}

// NewIngestHandler creates an IngestHandler.
//
// # Inputs
//
//   - pipeline: Extraction pipeline. May be nil; PDF files are then
//     rejected per-file while direct uploads keep working.
//   - upstream: Datastore client. May be nil; direct uploads are then
//     rejected per-file.
//   - docs: Document store for local bookkeeping. Must not be nil.
//   - opts: Pluggable service hooks. A nil AuditLogger falls back to
//     the no-op logger.
//
// # Limitations
//
//   - Panics on nil docs (programming error).
func NewIngestHandler(pipeline *ingestion.Pipeline, upstream *contextual.Client, docs *store.DocumentStore, opts extensions.ServiceOptions) IngestHandler {
	if docs == nil {
		panic("NewIngestHandler: docs must not be nil")
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = &extensions.NopAuditLogger{}
	}

	return &ingestHandler{
		pipeline: pipeline,
		upstream: upstream,
		docs:     docs,
		audit:    opts.AuditLogger,
		tracer:   otel.Tracer("miras.backend.handlers.ingest"),
	}
}

// =============================================================================
// Handler Method
// =============================================================================

// HandleIngestBatch processes a multipart document batch over SSE.
//
// # Description
//
// Reads the "files" multipart field and processes each file in order,
// streaming phase frames as it goes. The batch always runs to the end:
// a file that fails to extract or upload produces an error frame and the
// next file starts. The stream ends with batch_complete carrying the
// batch size.
//
// # Inputs
//
//   - c: Gin context containing the multipart request.
func (h *ingestHandler) HandleIngestBatch(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointIngestStream

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleIngestBatch")
	defer span.End()

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			duration := time.Since(startTime).Seconds()
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, duration, success)
		}
	}()

	form, err := c.MultipartForm()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid multipart form")
		slog.Error("Failed to parse ingest form", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		span.SetStatus(codes.Error, "no files provided")
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	span.SetAttributes(attribute.Int("ingest.batch_size", len(files)))

	SetSSEHeaders(c.Writer)
	writer, err := NewPhaseWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "SSE setup failed")
		slog.Error("Failed to create phase writer", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	// Extraction can run for minutes per file; keepalives hold the
	// connection open through the quiet stretches.
	heartbeatDone := make(chan struct{})
	go runHeartbeat(ctx, writer, endpoint, heartbeatDone)
	defer close(heartbeatDone)

	user := requestUserID(c)

	for i, file := range files {
		progress := float64(i) / float64(len(files))
		if err := h.ingestOne(ctx, writer, user, file, progress); err != nil {
			span.SetStatus(codes.Error, "client disconnected")
			slog.Info("Client went away during an ingest batch",
				"file", file.Filename,
				"position", i,
				"batch_size", len(files),
			)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
				m.RecordClientDisconnect(endpoint)
			}
			return
		}
	}

	if err := writer.WriteEvent(datatypes.PhaseEvent{
		Phase: datatypes.PhaseBatchComplete,
		Total: len(files),
	}); err != nil {
		return
	}

	success = true
	span.SetStatus(codes.Ok, "batch completed")
}

// =============================================================================
// Per-file Processing
// =============================================================================

// ingestOne processes a single uploaded file and frames its progress.
//
// The returned error reports frame-write failures only (client gone).
// Processing failures are written as in-band error frames and return nil
// so the batch continues. Each document that lands in the store is
// recorded in the audit trail, including ones ingested before a client
// disconnect ends the batch.
func (h *ingestHandler) ingestOne(ctx context.Context, writer PhaseWriter, user string, file *multipart.FileHeader, progress float64) error {
	// Base strips any path the client smuggled into the filename.
	name := filepath.Base(file.Filename)

	if err := writer.WriteEvent(datatypes.PhaseEvent{
		Phase:    datatypes.PhaseProcessing,
		File:     name,
		Progress: &progress,
	}); err != nil {
		return err
	}

	content, err := readUpload(file)
	if err != nil {
		slog.Error("Failed to read uploaded file", "file", name, "error", err)
		return h.frameFileError(writer, name, err)
	}

	var docID string
	if strings.HasSuffix(name, ".pdf") {
		docID, err = h.ingestPDF(ctx, writer, name, content)
	} else {
		docID, err = h.ingestDirect(ctx, writer, name, file.Header.Get("Content-Type"), content)
	}
	if err != nil {
		if errors.Is(err, errClientGone) {
			return err
		}
		slog.Error("Ingestion failed", "file", name, "error", err)
		return h.frameFileError(writer, name, err)
	}

	h.recordDocument(docID, name, fileType(name, file.Header.Get("Content-Type")), len(content))

	auditRecord(ctx, h.audit, extensions.AuditEvent{
		EventType:    extensions.EventIngestUpload,
		UserID:       user,
		Action:       "upload",
		ResourceType: "document",
		ResourceID:   docID,
		Outcome:      "success",
		Metadata: map[string]any{
			"file_name":  name,
			"size_bytes": len(content),
		},
	})

	if m := observability.DefaultMetrics; m != nil {
		m.RecordDocumentIngested(true)
	}

	return writer.WriteEvent(datatypes.PhaseEvent{
		Phase: datatypes.PhaseCompleted,
		File:  name,
		DocID: docID,
	})
}

// ingestPDF runs the extraction pipeline for one PDF and frames its
// stage transitions. Returns the local document id on success.
func (h *ingestHandler) ingestPDF(ctx context.Context, writer PhaseWriter, name string, content []byte) (string, error) {
	if h.pipeline == nil {
		return "", errPDFExtractionUnavailable
	}

	// The extraction model reads from disk, and artifact names derive
	// from the file name, so the temp copy keeps it.
	tempDir, err := os.MkdirTemp("", "miras-ingest-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", err
	}

	var emitErr error
	_, err = h.pipeline.IngestFile(ctx, path, func(p ingestion.Progress) {
		if emitErr != nil {
			return
		}
		switch p.Stage {
		case ingestion.StageExtracting:
			emitErr = writer.WriteEvent(datatypes.PhaseEvent{Phase: datatypes.PhaseExtracting, File: name})
		case ingestion.StageUploading:
			emitErr = writer.WriteEvent(datatypes.PhaseEvent{Phase: datatypes.PhaseUploading, File: name})
		case ingestion.StageCompleted:
			// The batch frames its own completed event with the local
			// document id once bookkeeping is done.
		}
	}, nil)
	if emitErr != nil {
		return "", errClientGone
	}
	if err != nil {
		return "", err
	}

	return uuid.New().String(), nil
}

// ingestDirect uploads a non-PDF file's text content straight to the
// datastore.
func (h *ingestHandler) ingestDirect(ctx context.Context, writer PhaseWriter, name, contentType string, content []byte) (string, error) {
	if h.upstream == nil || !h.upstream.HasDatastore() {
		return "", errDatastoreUnavailable
	}

	if err := writer.WriteEvent(datatypes.PhaseEvent{Phase: datatypes.PhaseUploading, File: name}); err != nil {
		return "", errClientGone
	}

	// Invalid bytes are dropped rather than failing the upload; these
	// files are treated as best-effort text.
	text := strings.ToValidUTF8(string(content), "")
	_, err := h.upstream.UploadDocument(ctx, text, contextual.UploadMetadata{
		Title:       name,
		Description: contentType,
	})
	if err != nil {
		return "", err
	}

	return uuid.New().String(), nil
}

// frameFileError writes an in-band error frame for one failed file.
func (h *ingestHandler) frameFileError(writer PhaseWriter, name string, cause error) error {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordDocumentIngested(false)
		m.RecordError(observability.EndpointIngestStream, observability.ErrorCodeIngest)
	}
	return writer.WriteEvent(datatypes.PhaseEvent{
		Phase: datatypes.PhaseError,
		File:  name,
		Error: cause.Error(),
	})
}

// recordDocument stores the local bookkeeping entry for an ingested file.
func (h *ingestHandler) recordDocument(docID, name, docType string, size int) {
	now := time.Now().Format(time.RFC3339)
	h.docs.Put(datatypes.DocumentInfo{
		ID:            docID,
		Name:          name,
		Type:          docType,
		Size:          int64(size),
		SizeFormatted: datatypes.FormatDocumentSize(int64(size)),
		Status:        "completed",
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// =============================================================================
// Helpers
// =============================================================================

// readUpload slurps one multipart file into memory. Documents are
// capped well below available memory by the extraction size limits, so
// buffering the whole file is fine here.
func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// fileType derives the stored document type for a file.
func fileType(name, contentType string) string {
	if strings.HasSuffix(name, ".pdf") {
		return "pdf"
	}
	if contentType != "" {
		return contentType
	}
	return "unknown"
}
