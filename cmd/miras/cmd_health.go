// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/AleutianAI/miras/pkg/ux"
	"github.com/spf13/cobra"
)

// checkBackendHealth queries the backend's health endpoint.
func checkBackendHealth(baseURL string) (map[string]string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("%s/health", baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned an error: %s", resp.Status)
	}

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse the backend response: %w", err)
	}
	return result, nil
}

func runHealthCommand(cmd *cobra.Command, args []string) {
	baseURL := getBackendBaseURL()
	result, err := checkBackendHealth(baseURL)
	if err != nil {
		log.Fatalf("Health check failed: %v", err)
	}

	status := result["status"]
	service := result["service"]
	if status == "healthy" {
		ux.Success(fmt.Sprintf("%s is healthy at %s", service, baseURL))
		return
	}
	ux.Warning(fmt.Sprintf("%s reports %q at %s", service, status, baseURL))
}
