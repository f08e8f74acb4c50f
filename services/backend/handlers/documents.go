// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/miras/pkg/extensions"
	"github.com/AleutianAI/miras/services/backend/datatypes"
	"github.com/AleutianAI/miras/services/backend/store"
	"github.com/AleutianAI/miras/services/contextual"
)

// DefaultDocumentLimit is the page size used when the client does not
// request one.
const DefaultDocumentLimit = 1000

// ListDocuments returns the documents visible to this backend.
//
// When an upstream datastore is configured the listing comes from it,
// reshaped for display. Otherwise the locally ingested documents are
// returned. Upstream failures degrade to an error envelope with HTTP
// 200 so the caller can render the failure alongside stale results.
func ListDocuments(upstream *contextual.Client, docs *store.DocumentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := DefaultDocumentLimit
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		cursor := c.Query("cursor")

		if upstream == nil || !upstream.HasDatastore() {
			local := docs.List()
			c.JSON(http.StatusOK, datatypes.DocumentListResponse{
				Success:   true,
				Documents: local,
				Total:     len(local),
			})
			return
		}

		list, err := upstream.ListDocuments(c.Request.Context(), limit, cursor)
		if err != nil {
			slog.Error("Failed to list datastore documents", "error", err)
			errMsg := err.Error()
			local := docs.List()
			c.JSON(http.StatusOK, datatypes.DocumentListResponse{
				Success:   false,
				Documents: local,
				Total:     len(local),
				Error:     &errMsg,
			})
			return
		}

		now := time.Now().Format(time.RFC3339)
		out := make([]datatypes.DocumentInfo, 0, len(list.Documents))
		for _, doc := range list.Documents {
			out = append(out, documentInfoFromUpstream(doc, now))
		}

		c.JSON(http.StatusOK, datatypes.DocumentListResponse{
			Success:    true,
			Documents:  out,
			Total:      list.TotalCount,
			NextCursor: list.NextCursor,
		})
	}
}

// documentInfoFromUpstream reshapes a datastore record for display.
// Connectors that predate ingestion tracking omit the status and
// timestamps, so those get stand-in values.
func documentInfoFromUpstream(doc contextual.Document, now string) datatypes.DocumentInfo {
	name := doc.Name
	if name == "" {
		name = "Unknown"
	}
	docType := doc.Type
	if docType == "" {
		docType = "document"
	}

	status := doc.IngestionStatus
	if status == "" {
		status = doc.Status
	}
	if status == "" {
		status = "completed"
	}

	createdAt := doc.CreatedAt
	if createdAt == "" {
		createdAt = now
	}
	updatedAt := doc.UpdatedAt
	if updatedAt == "" {
		updatedAt = now
	}

	return datatypes.DocumentInfo{
		ID:            doc.ID,
		Name:          name,
		Type:          docType,
		Size:          doc.Size,
		SizeFormatted: datatypes.FormatDocumentSize(doc.Size),
		Status:        status,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

// DeleteDocument removes a document from the local store and, when a
// datastore is configured, from the upstream as well. The upstream
// delete is best effort for documents this backend ingested; a document
// unknown to both sides is a 404. Successful deletes are recorded in
// the audit trail.
func DeleteDocument(upstream *contextual.Client, docs *store.DocumentStore, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID := c.Param("doc_id")
		slog.Info("Received a request to delete a document", "doc_id", docID)

		found := docs.Delete(docID)

		if upstream != nil && upstream.HasDatastore() {
			if err := upstream.DeleteDocument(c.Request.Context(), docID); err != nil {
				if !found {
					c.JSON(http.StatusNotFound, gin.H{"detail": "Document not found"})
					return
				}
				slog.Warn("Datastore document delete failed", "doc_id", docID, "error", err)
			} else {
				found = true
			}
		}

		if !found {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Document not found"})
			return
		}

		auditRecord(c.Request.Context(), audit, extensions.AuditEvent{
			EventType:    extensions.EventDocumentDelete,
			UserID:       requestUserID(c),
			Action:       "delete",
			ResourceType: "document",
			ResourceID:   docID,
			Outcome:      "success",
		})
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Document deleted"})
	}
}
