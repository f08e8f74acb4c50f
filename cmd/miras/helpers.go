// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/miras/cmd/miras/config"
)

// Constants for default connection settings
const (
	DefaultBackendPort = 8000
	DefaultBackendHost = "localhost"
)

// getBackendBaseURL resolves the miras backend endpoint used by the
// thin-client commands (docs, sessions, health).
func getBackendBaseURL() string {
	// 1. Priority: Environment Variable (Used by Tests & Docker overrides)
	if url := os.Getenv("MIRAS_BACKEND_URL"); url != "" {
		return url
	}
	// 2. Config file
	if config.Global.Backend.BaseURL != "" {
		return config.Global.Backend.BaseURL
	}
	// 3. Default: Standard Host/Port
	return fmt.Sprintf("http://%s:%d", DefaultBackendHost, DefaultBackendPort)
}

// signalContext returns a context that is cancelled when the process
// receives SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

// extractedDir resolves where extraction artifacts are written.
func extractedDir() string {
	if dir := os.Getenv("MIRAS_EXTRACTED_DIR"); dir != "" {
		return dir
	}
	if config.Global.ExtractedDir != "" {
		return config.Global.ExtractedDir
	}
	return "extracted_texts"
}
