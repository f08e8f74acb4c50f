// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contextual

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Document is one datastore document as the platform reports it.
type Document struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	Size            int64  `json:"size"`
	IngestionStatus string `json:"ingestion_status"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// DocumentList is one page of datastore documents.
type DocumentList struct {
	Documents  []Document `json:"documents"`
	TotalCount int        `json:"total_count"`
	NextCursor string     `json:"next_cursor"`
}

// ListDocuments fetches one page of datastore documents. An empty
// cursor starts from the beginning.
//
// Concurrent calls with the same limit and cursor share a single
// upstream request; the document list page is hot when a UI polls it.
func (c *Client) ListDocuments(ctx context.Context, limit int, cursor string) (*DocumentList, error) {
	ctx, span := tracer.Start(ctx, "contextual.ListDocuments")
	defer span.End()

	if c.datastoreID == "" {
		return nil, fmt.Errorf("contextual: datastore ID is not configured")
	}

	key := "list:" + strconv.Itoa(limit) + ":" + cursor
	v, err, _ := c.listGroup.Do(key, func() (any, error) {
		return c.fetchDocumentPage(ctx, limit, cursor)
	})
	if err != nil {
		return nil, err
	}
	return v.(*DocumentList), nil
}

// fetchDocumentPage performs the actual upstream list call.
func (c *Client) fetchDocumentPage(ctx context.Context, limit int, cursor string) (*DocumentList, error) {
	ctx, cancel := context.WithTimeout(ctx, restTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	reqURL := fmt.Sprintf("%s/datastores/%s/documents?%s", c.baseURL, c.datastoreID, q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read list response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var list DocumentList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to parse list response: %w", err)
	}
	if list.TotalCount == 0 {
		list.TotalCount = len(list.Documents)
	}
	return &list, nil
}

// DeleteDocument removes a document from the datastore.
func (c *Client) DeleteDocument(ctx context.Context, docID string) error {
	ctx, span := tracer.Start(ctx, "contextual.DeleteDocument")
	defer span.End()

	if c.datastoreID == "" {
		return fmt.Errorf("contextual: datastore ID is not configured")
	}
	if docID == "" {
		return fmt.Errorf("contextual: document ID is required")
	}

	ctx, cancel := context.WithTimeout(ctx, restTimeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s/datastores/%s/documents/%s", c.baseURL, c.datastoreID, url.PathEscape(docID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// DocumentStatus reports the ingestion status of a single document.
// Any failure (transport, non-200, bad JSON) returns "checking" so
// ingestion polling keeps going instead of aborting on a transient
// fault; a missing status field reports "unknown".
func (c *Client) DocumentStatus(ctx context.Context, docID string) string {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s/datastores/%s/documents/%s", c.baseURL, c.datastoreID, url.PathEscape(docID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "checking"
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "checking"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "checking"
	}

	var doc struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "checking"
	}
	if doc.Status == "" {
		return "unknown"
	}
	return doc.Status
}
