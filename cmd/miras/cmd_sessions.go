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

	"github.com/AleutianAI/miras/services/backend/datatypes"
	"github.com/spf13/cobra"
)

// fetchSessions retrieves the backend's session listing.
func fetchSessions(baseURL string, limit int, activeOnly bool) ([]datatypes.Session, error) {
	u := fmt.Sprintf("%s/api/conversation/sessions?limit=%d", baseURL, limit)
	if activeOnly {
		u += "&active_only=true"
	}

	resp, err := http.Get(u)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned an error: %s", resp.Status)
	}

	var result struct {
		Sessions []datatypes.Session `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse the backend response: %w", err)
	}
	return result.Sessions, nil
}

// deleteSessionByID asks the backend to delete one session.
func deleteSessionByID(baseURL, sessionID string) error {
	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/conversation/sessions/%s", baseURL, sessionID), nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to the backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned an error: %s", resp.Status)
	}
	return nil
}

func runListSessions(cmd *cobra.Command, args []string) {
	sessions, err := fetchSessions(getBackendBaseURL(), sessionsLimit, activeOnly)
	if err != nil {
		log.Fatalf("Failed to list sessions: %v", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	fmt.Println("Sessions:")
	fmt.Println("------------------------------------------------------------------")
	for _, s := range sessions {
		state := "ended"
		if s.IsActive {
			state = "active"
		}
		fmt.Printf("ID: %s\nTitle: %s\nMessages: %d | %s | Last activity: %s\n\n",
			s.ID, s.Title, s.MessageCount, state, s.LastMessageAt.Format("2006-01-02 15:04:05"))
	}
}

func runDeleteSession(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	if err := deleteSessionByID(getBackendBaseURL(), sessionID); err != nil {
		log.Fatalf("Failed to delete session: %v", err)
	}
	fmt.Printf("Successfully deleted session: %s\n", sessionID)
}
