// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/miras/pkg/extensions"
	"github.com/AleutianAI/miras/services/backend/handlers"
	"github.com/AleutianAI/miras/services/backend/middleware"
	"github.com/AleutianAI/miras/services/backend/store"
	"github.com/AleutianAI/miras/services/contextual"
)

// SetupRoutes registers the backend's HTTP surface.
//
// search is nil when no retrieval upstream is configured; the search
// endpoints then answer 503 instead of streaming. Every other endpoint
// works in that lightweight mode, falling back to local state.
//
// Everything under /api runs behind the auth middleware; health and
// metrics stay open so probes and Prometheus never need credentials. A
// nil opts.AuthProvider falls back to NopAuthProvider, which accepts
// every request as local-user. Session and document deletes record to
// opts.AuditLogger, nil falling back to the no-op logger.
//
// apiMiddleware is applied to the /api group ahead of auth; the rate
// limiter rides in this way when it is enabled.
func SetupRoutes(router *gin.Engine, search handlers.SearchHandler, ingest handlers.IngestHandler,
	upstream *contextual.Client, sessions *store.SessionStore, docs *store.DocumentStore,
	opts extensions.ServiceOptions, apiMiddleware ...gin.HandlerFunc) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if opts.AuthProvider == nil {
		opts.AuthProvider = &extensions.NopAuthProvider{}
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = &extensions.NopAuditLogger{}
	}

	api := router.Group("/api")
	api.Use(apiMiddleware...)
	api.Use(middleware.AuthMiddleware(opts.AuthProvider))
	{
		if search != nil {
			api.POST("/search", search.HandleSearchStream)
			api.GET("/search/ws", search.HandleSearchSocket)
		} else {
			api.POST("/search", searchUnavailable)
			api.GET("/search/ws", searchUnavailable)
		}

		// Session administration routes
		conversation := api.Group("/conversation")
		{
			conversation.GET("/sessions", handlers.ListSessions(sessions))
			conversation.GET("/sessions/:session_id/messages", handlers.GetSessionMessages(sessions))
			conversation.DELETE("/sessions/:session_id", handlers.DeleteSession(sessions, opts.AuditLogger))
		}

		api.GET("/documents", handlers.ListDocuments(upstream, docs))
		api.DELETE("/documents/:doc_id", handlers.DeleteDocument(upstream, docs, opts.AuditLogger))

		api.POST("/ingest/contextual/batch", ingest.HandleIngestBatch)
	}
}

// searchUnavailable answers search requests in lightweight mode.
func searchUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"detail": "Search upstream is not configured",
	})
}
