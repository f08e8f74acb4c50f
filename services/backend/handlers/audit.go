// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/miras/pkg/extensions"
)

// auditRecord writes one event to the audit trail. Recording is
// best-effort and detached from request cancellation, so a client that
// disconnects mid-request still leaves a record. A nil logger drops the
// event.
func auditRecord(ctx context.Context, audit extensions.AuditLogger, ev extensions.AuditEvent) {
	if audit == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := audit.Log(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("Failed to record an audit event", "event_type", ev.EventType, "error", err)
	}
}
