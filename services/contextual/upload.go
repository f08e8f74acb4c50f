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
	"html"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultMaxDocumentChars is the per-document character ceiling for
// uploads. The platform truncates oversized documents during parsing,
// so anything longer is split client-side into sequential parts.
const DefaultMaxDocumentChars = 200000

// UploadMetadata describes the document being uploaded. Values land in
// the HTML envelope's head so the platform's parser can index them.
type UploadMetadata struct {
	Title       string
	Author      string
	Date        string
	Description string
}

// UploadResult identifies one uploaded document.
type UploadResult struct {
	DocumentID string
	Title      string
}

// UploadDocument wraps extracted text in an HTML envelope and uploads
// it to the datastore. Content longer than the configured character
// ceiling is split into parts named "{title} (part N)", each uploaded
// as its own document; the common case returns a single result.
//
// Upload does not wait for ingestion; pair with WaitForIngestion when
// the caller needs the document to be queryable.
func (c *Client) UploadDocument(ctx context.Context, content string, meta UploadMetadata) ([]UploadResult, error) {
	ctx, span := tracer.Start(ctx, "contextual.UploadDocument")
	defer span.End()

	if c.datastoreID == "" {
		return nil, fmt.Errorf("contextual: datastore ID is not configured")
	}

	title := meta.Title
	if title == "" {
		title = "Untitled Document"
	}

	parts := []string{content}
	if utf8.RuneCountInString(content) > c.maxDocumentChars {
		splitter := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(c.maxDocumentChars),
			textsplitter.WithChunkOverlap(0),
		)
		split, err := splitter.SplitText(content)
		if err != nil {
			return nil, fmt.Errorf("failed to split oversized document: %w", err)
		}
		parts = split
		slog.Info("Splitting oversized document for upload",
			"title", title,
			"chars", utf8.RuneCountInString(content),
			"parts", len(parts),
		)
	}
	span.SetAttributes(
		attribute.Int("upload.parts", len(parts)),
		attribute.Int("upload.chars", utf8.RuneCountInString(content)),
	)

	results := make([]UploadResult, 0, len(parts))
	for i, part := range parts {
		partTitle := title
		if len(parts) > 1 {
			partTitle = fmt.Sprintf("%s (part %d)", title, i+1)
		}
		partMeta := meta
		partMeta.Title = partTitle

		res, err := c.uploadOne(ctx, part, partMeta)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upload failed")
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// uploadOne posts a single HTML document as multipart form data.
func (c *Client) uploadOne(ctx context.Context, content string, meta UploadMetadata) (*UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	envelope := buildHTMLEnvelope(content, meta)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s.html"`, escapeQuotes(meta.Title)))
	header.Set("Content-Type", "text/html")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart section: %w", err)
	}
	if _, err := part.Write([]byte(envelope)); err != nil {
		return nil, fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	reqURL := fmt.Sprintf("%s/datastores/%s/documents", c.baseURL, c.datastoreID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		DocumentID string `json:"document_id"`
		ID         string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}
	docID := parsed.DocumentID
	if docID == "" {
		docID = parsed.ID
	}

	slog.Info("Uploaded document", "title", meta.Title, "documentId", docID)
	return &UploadResult{DocumentID: docID, Title: meta.Title}, nil
}

// buildHTMLEnvelope wraps extracted text for the platform's HTML
// parser. The pre block preserves the extraction's whitespace and
// structure; head metadata feeds the platform's document index.
func buildHTMLEnvelope(content string, meta UploadMetadata) string {
	title := meta.Title
	if title == "" {
		title = "Untitled Document"
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>%s</title>
    <meta name="author" content="%s">
    <meta name="date" content="%s">
    <meta name="description" content="%s">
</head>
<body>
    <h1>%s</h1>
    <pre>%s</pre>
</body>
</html>`,
		html.EscapeString(title),
		html.EscapeString(meta.Author),
		html.EscapeString(meta.Date),
		html.EscapeString(meta.Description),
		html.EscapeString(title),
		html.EscapeString(content),
	)
}

// escapeQuotes sanitizes a filename for a Content-Disposition header.
func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, `\"`).Replace(s)
}

// Statuses at which ingestion polling stops.
func isTerminalIngestionStatus(status string) bool {
	switch status {
	case "completed", "failed", "error":
		return true
	}
	return false
}

// WaitForIngestion polls the document's status every few seconds until
// it reaches a terminal state ("completed", "failed", or "error") or
// the wait budget runs out, in which case it reports "timeout".
// Context cancellation also reports "timeout"; the document keeps
// ingesting upstream either way.
func (c *Client) WaitForIngestion(ctx context.Context, docID string) string {
	deadline := time.Now().Add(c.maxPollWait)

	for time.Now().Before(deadline) {
		status := c.DocumentStatus(ctx, docID)
		if isTerminalIngestionStatus(status) {
			return status
		}

		select {
		case <-ctx.Done():
			return "timeout"
		case <-time.After(c.pollInterval):
		}
	}
	return "timeout"
}
