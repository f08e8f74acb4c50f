// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/miras/pkg/extensions"
	"github.com/AleutianAI/miras/services/backend/handlers"
	"github.com/AleutianAI/miras/services/backend/store"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// newLightweightRouter wires the routes the way main does when no
// retrieval upstream is configured.
func newLightweightRouter() *gin.Engine {
	return newLightweightRouterWithOptions(extensions.DefaultOptions())
}

func newLightweightRouterWithOptions(opts extensions.ServiceOptions) *gin.Engine {
	router := gin.New()
	docs := store.NewDocumentStore()
	ingest := handlers.NewIngestHandler(nil, nil, docs, opts)
	SetupRoutes(router, nil, ingest, nil, store.NewSessionStore(), docs, opts)
	return router
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersCoreRoutes(t *testing.T) {
	router := newLightweightRouter()

	coreRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/api/search"},
		{"GET", "/api/search/ws"},
		{"GET", "/api/conversation/sessions"},
		{"GET", "/api/conversation/sessions/:session_id/messages"},
		{"DELETE", "/api/conversation/sessions/:session_id"},
		{"GET", "/api/documents"},
		{"DELETE", "/api/documents/:doc_id"},
		{"POST", "/api/ingest/contextual/batch"},
	}

	routes := router.Routes()
	for _, expected := range coreRoutes {
		found := false
		for _, r := range routes {
			if r.Method == expected.method && r.Path == expected.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected route %s %s not found", expected.method, expected.path)
		}
	}
}

// ============================================================================
// Route Handler Tests
// ============================================================================

func TestSetupRoutes_HealthEndpoint(t *testing.T) {
	router := newLightweightRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Health endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "miras-backend") {
		t.Errorf("Health body = %q, want it to name the service", w.Body.String())
	}
}

func TestSetupRoutes_MetricsEndpoint(t *testing.T) {
	router := newLightweightRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	// Prometheus metrics endpoint should return 200
	if w.Code != http.StatusOK {
		t.Errorf("Metrics endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("Content-Type") == "" {
		t.Error("Metrics endpoint should return Content-Type header")
	}
}

func TestSetupRoutes_SearchUnavailableWithoutUpstream(t *testing.T) {
	router := newLightweightRouter()

	for _, req := range []*http.Request{
		httptest.NewRequest("POST", "/api/search", strings.NewReader(`{"query": "anything"}`)),
		httptest.NewRequest("GET", "/api/search/ws", nil),
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s returned %d, want %d", req.Method, req.URL.Path, w.Code, http.StatusServiceUnavailable)
		}
		if !strings.Contains(w.Body.String(), "Search upstream is not configured") {
			t.Errorf("%s %s body = %q, want the lightweight-mode detail", req.Method, req.URL.Path, w.Body.String())
		}
	}
}

func TestSetupRoutes_DocumentsWorkInLightweightMode(t *testing.T) {
	router := newLightweightRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/documents", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Documents endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"success":true`) {
		t.Errorf("Documents body = %q, want a success envelope", w.Body.String())
	}
}

// ============================================================================
// Auth Middleware Wiring Tests
// ============================================================================

// rejectAllAuthProvider refuses every token.
type rejectAllAuthProvider struct{}

func (p *rejectAllAuthProvider) Validate(_ context.Context, _ string) (*extensions.AuthInfo, error) {
	return nil, extensions.ErrUnauthorized
}

func TestSetupRoutes_APIRequiresAuth(t *testing.T) {
	opts := extensions.DefaultOptions().WithAuth(&rejectAllAuthProvider{})
	router := newLightweightRouterWithOptions(opts)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/documents", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("API route with rejecting provider returned %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestSetupRoutes_HealthAndMetricsBypassAuth(t *testing.T) {
	opts := extensions.DefaultOptions().WithAuth(&rejectAllAuthProvider{})
	router := newLightweightRouterWithOptions(opts)

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s returned %d, want %d (probes must not need credentials)", path, w.Code, http.StatusOK)
		}
	}
}

// TestSetupRoutes_ExtraMiddlewareScopedToAPI verifies that middleware
// handed to SetupRoutes guards the /api group but not the probes.
func TestSetupRoutes_ExtraMiddlewareScopedToAPI(t *testing.T) {
	rejectAll := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	}

	router := gin.New()
	docs := store.NewDocumentStore()
	ingest := handlers.NewIngestHandler(nil, nil, docs, extensions.DefaultOptions())
	SetupRoutes(router, nil, ingest, nil, store.NewSessionStore(), docs, extensions.DefaultOptions(), rejectAll)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/documents", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("API route returned %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/health returned %d, want %d (probes bypass API middleware)", w.Code, http.StatusOK)
	}
}
