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
	"net/url"

	"github.com/AleutianAI/miras/services/backend/datatypes"
	"github.com/spf13/cobra"
)

// fetchDocuments retrieves one page of the backend's document listing.
func fetchDocuments(baseURL string, limit int, cursor string) (*datatypes.DocumentListResponse, error) {
	u := fmt.Sprintf("%s/api/documents?limit=%d", baseURL, limit)
	if cursor != "" {
		u += "&cursor=" + url.QueryEscape(cursor)
	}

	resp, err := http.Get(u)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned an error: %s", resp.Status)
	}

	var result datatypes.DocumentListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse the backend response: %w", err)
	}
	return &result, nil
}

// deleteDocumentByID asks the backend to delete one document.
func deleteDocumentByID(baseURL, docID string) error {
	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/documents/%s", baseURL, docID), nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to the backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("document %s not found", docID)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned an error: %s", resp.Status)
	}
	return nil
}

func runListDocuments(cmd *cobra.Command, args []string) {
	result, err := fetchDocuments(getBackendBaseURL(), docsLimit, docsCursor)
	if err != nil {
		log.Fatalf("Failed to list documents: %v", err)
	}
	if !result.Success {
		msg := "unknown error"
		if result.Error != nil {
			msg = *result.Error
		}
		log.Fatalf("Document listing failed: %s", msg)
	}

	if len(result.Documents) == 0 {
		fmt.Println("No documents found.")
		return
	}

	fmt.Printf("Documents (%d total):\n", result.Total)
	fmt.Println("------------------------------------------------------------------")
	for _, doc := range result.Documents {
		fmt.Printf("ID: %s\nName: %s\nStatus: %s | Size: %s | Created: %s\n\n",
			doc.ID, doc.Name, doc.Status, doc.SizeFormatted, doc.CreatedAt)
	}
	if result.NextCursor != "" {
		fmt.Printf("More documents available; rerun with --cursor %s\n", result.NextCursor)
	}
}

func runDeleteDocument(cmd *cobra.Command, args []string) {
	docID := args[0]
	if err := deleteDocumentByID(getBackendBaseURL(), docID); err != nil {
		log.Fatalf("Failed to delete document: %v", err)
	}
	fmt.Printf("Successfully deleted document: %s\n", docID)
}
