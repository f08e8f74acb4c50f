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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/miras/pkg/extensions"
	"github.com/AleutianAI/miras/services/backend/store"
)

// ListSessions returns recent search sessions, most recently active first.
//
// Query parameters:
//   - limit: Maximum sessions returned (default 20).
//   - active_only: When "true", only active sessions are listed.
func ListSessions(sessions *store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := store.DefaultSessionLimit
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		activeOnly := c.Query("active_only") == "true"

		c.JSON(http.StatusOK, gin.H{"sessions": sessions.List(limit, activeOnly)})
	}
}

// GetSessionMessages returns the full turn history of one session as a bare
// JSON array. Unknown sessions produce a 404 with a detail body.
func GetSessionMessages(sessions *store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session_id")

		msgs, ok := sessions.Messages(sessionID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}

// DeleteSession removes a session and its message history. Successful
// deletes are recorded in the audit trail; a 404 is not a state change
// and leaves no record.
func DeleteSession(sessions *store.SessionStore, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session_id")
		slog.Info("Received a request to delete a session", "session_id", sessionID)

		if !sessions.Delete(sessionID) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
			return
		}
		auditRecord(c.Request.Context(), audit, extensions.AuditEvent{
			EventType:    extensions.EventSessionDelete,
			UserID:       requestUserID(c),
			Action:       "delete",
			ResourceType: "session",
			ResourceID:   sessionID,
			Outcome:      "success",
		})
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Session deleted"})
	}
}
