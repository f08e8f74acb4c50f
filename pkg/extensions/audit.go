// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// Event types recorded by the backend. The "category.action" format
// keeps filtering and alerting cheap on the storage side.
const (
	EventSearchQuery    = "search.query"
	EventIngestUpload   = "ingest.upload"
	EventDocumentDelete = "document.delete"
	EventSessionDelete  = "session.delete"
	EventQueryBlocked   = "search.blocked"
)

// AuditEvent records one security-relevant action for compliance
// logging: a search turn, a document upload, or an administrative
// delete.
//
// For regulatory reporting, always populate UserID (right-to-know
// requests), Timestamp (trail integrity), and ResourceType/ResourceID
// (data lineage).
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    EventSearchQuery,
//	    Timestamp:    time.Now().UTC(),
//	    UserID:       authInfo.UserID,
//	    Action:       "search",
//	    ResourceType: "session",
//	    ResourceID:   sessionID,
//	    Outcome:      "success",
//	    Metadata: map[string]any{
//	        "query_length": len(query),
//	        "chunk_count":  chunks,
//	    },
//	}
type AuditEvent struct {
	// EventType categorizes the event, e.g. EventSearchQuery.
	EventType string

	// Timestamp is when the event occurred (always UTC). If zero,
	// implementations should set it to time.Now().UTC().
	Timestamp time.Time

	// UserID identifies who performed the action. Use "system" for
	// automated actions.
	UserID string

	// Action describes the operation: "search", "upload", "delete".
	Action string

	// ResourceType is the category of resource involved:
	// "session", "document", "datastore".
	ResourceType string

	// ResourceID is the specific resource instance, when known.
	ResourceID string

	// Outcome is the result: "success", "failure", "blocked".
	Outcome string

	// Metadata holds event-specific details. The query text itself is
	// deliberately NOT recorded here by the backend; only lengths and
	// counters are, so the audit trail never becomes a transcript.
	Metadata map[string]any
}

// AuditFilter defines criteria for querying recorded events. Zero
// fields are ignored; set fields combine with AND.
type AuditFilter struct {
	// EventTypes limits results to the named types.
	EventTypes []string

	// UserID limits results to one user.
	UserID string

	// StartTime and EndTime bound the Timestamp range.
	StartTime time.Time
	EndTime   time.Time

	// Limit caps the number of results. Zero means no cap.
	Limit int
}

// AuditLogger records and queries audit events.
//
// Implementations must be safe for concurrent use and should return
// from Log quickly; the backend calls it on the request path after
// each stream finishes. Buffered implementations must persist on
// Flush, which the backend calls during shutdown.
type AuditLogger interface {
	// Log records one event. Implementations should stamp a zero
	// Timestamp with time.Now().UTC() before persisting.
	Log(ctx context.Context, event AuditEvent) error

	// Query retrieves events matching the filter, ordered by
	// Timestamp descending.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush persists any buffered events. Sync implementations may
	// treat this as a no-op.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events. This is the default for local
// single-user builds, where an audit trail of your own questions to
// your own documents serves nobody.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error {
	return nil
}

// Query returns an empty slice; nothing is stored.
func (l *NopAuditLogger) Query(_ context.Context, _ AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush is a no-op; nothing is buffered.
func (l *NopAuditLogger) Flush(_ context.Context) error {
	return nil
}

var _ AuditLogger = (*NopAuditLogger)(nil)
