// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
)

// DocumentInfo describes one ingested document. Entries listed from
// the upstream datastore pass timestamps through verbatim, so they are
// kept as strings rather than parsed.
type DocumentInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"size_formatted"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// DocumentListResponse is the envelope of GET /api/documents. Error is
// a pointer so success responses serialize it as an explicit null.
type DocumentListResponse struct {
	Success    bool           `json:"success"`
	Documents  []DocumentInfo `json:"documents"`
	Total      int            `json:"total"`
	Error      *string        `json:"error"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// FormatDocumentSize renders a byte count the way document listings
// display it. Zero and negative sizes come back from connectors that
// never recorded one.
func FormatDocumentSize(size int64) string {
	if size <= 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%.1f KB", float64(size)/1024)
}
