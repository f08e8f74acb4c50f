// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package contextual is the client for the Contextual AI platform. It
// covers the two surfaces the rest of the system needs: the streaming
// agent query endpoint (SSE) and datastore document management (list,
// delete, status, upload with ingestion polling).
//
// The client is deliberately thin. It owns transport concerns (auth
// headers, timeouts, frame parsing) and returns typed events and
// errors; orchestration lives with the callers.
package contextual

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"
)

// tracer is the OpenTelemetry tracer for platform client operations.
var tracer = otel.Tracer("miras.contextual")

// DefaultBaseURL is the public Contextual AI API endpoint.
const DefaultBaseURL = "https://api.contextual.ai/v1"

// Per-operation deadlines. Streaming queries carry no overall deadline;
// the caller's context bounds them instead.
const (
	restTimeout   = 30 * time.Second
	queryTimeout  = 60 * time.Second
	uploadTimeout = 120 * time.Second
	statusTimeout = 10 * time.Second
)

// Config carries the credentials and identifiers for one platform
// tenant. APIKey is required; AgentID and DatastoreID are each needed
// only by the operations that reference them.
type Config struct {
	APIKey      string
	AgentID     string
	DatastoreID string

	// BaseURL overrides the public endpoint, mostly for tests.
	// Empty means DefaultBaseURL.
	BaseURL string

	// MaxDocumentChars is the per-document character ceiling for
	// uploads. Content longer than this is split into parts before
	// upload. Zero means DefaultMaxDocumentChars.
	MaxDocumentChars int
}

// Client talks to the Contextual AI platform.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Concurrent ListDocuments
// calls with identical parameters are collapsed into a single upstream
// request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	agentID    string
	datastoreID string

	maxDocumentChars int

	// Ingestion polling cadence. Overridden in tests.
	pollInterval time.Duration
	maxPollWait  time.Duration

	listGroup singleflight.Group
}

// NewClient builds a Client from an explicit Config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("contextual: API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	maxChars := cfg.MaxDocumentChars
	if maxChars <= 0 {
		maxChars = DefaultMaxDocumentChars
	}

	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		apiKey:           cfg.APIKey,
		agentID:          cfg.AgentID,
		datastoreID:      cfg.DatastoreID,
		maxDocumentChars: maxChars,
		pollInterval:     2 * time.Second,
		maxPollWait:      60 * time.Second,
	}, nil
}

// NewClientFromEnv builds a Client from CONTEXTUAL_* environment
// variables. The API key falls back to the Podman secret mount at
// /run/secrets/contextual_api_key when the variable is unset.
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("CONTEXTUAL_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/contextual_api_key"
		if data, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(data))
			slog.Info("Loaded Contextual API key from secret file", "path", secretPath)
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("CONTEXTUAL_API_KEY is not set")
	}

	baseURL := os.Getenv("CONTEXTUAL_BASE_URL")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	agentID := os.Getenv("CONTEXTUAL_AGENT_ID")
	if agentID == "" {
		slog.Warn("CONTEXTUAL_AGENT_ID not set, query streaming unavailable")
	}
	datastoreID := os.Getenv("CONTEXTUAL_DATASTORE_ID")
	if datastoreID == "" {
		slog.Warn("CONTEXTUAL_DATASTORE_ID not set, document operations unavailable")
	}

	return NewClient(Config{
		APIKey:      apiKey,
		AgentID:     agentID,
		DatastoreID: datastoreID,
		BaseURL:     baseURL,
	})
}

// HasDatastore reports whether document operations are configured.
func (c *Client) HasDatastore() bool {
	return c.datastoreID != ""
}

// authorize stamps the bearer token on an outgoing request.
func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// =============================================================================
// Error Types
// =============================================================================

// StatusError reports a non-2xx response from the platform. Its
// message deliberately matches the diagnostic string surfaced to
// downstream SSE consumers ("API Error: <code>").
type StatusError struct {
	Code int
	Body string
}

// Error implements the error interface for StatusError.
func (e *StatusError) Error() string {
	return fmt.Sprintf("API Error: %d", e.Code)
}

// AsStatusError unwraps err to a *StatusError if one is present.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
