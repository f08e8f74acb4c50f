// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"
)

// SessionTitleLength is how much of the first query becomes the
// session title.
const SessionTitleLength = 50

// Session is one conversation session as tracked by the backend. The
// id is allocated locally when a client starts a conversation and then
// doubles as the upstream conversation id on later turns.
type Session struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	StartedAt     time.Time `json:"started_at"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
	IsActive      bool      `json:"is_active"`
}

// SessionMessage is one query/response exchange within a session.
// EnhancedQuery is reserved for query-rewriting front ends and stays
// null until one populates it. Response is filled in once the answer
// stream for the turn has finished.
type SessionMessage struct {
	ID            string    `json:"id"`
	Query         string    `json:"query"`
	EnhancedQuery *string   `json:"enhanced_query"`
	Response      string    `json:"response"`
	CreatedAt     time.Time `json:"created_at"`
}

// SessionTitle derives a session title from its first query.
func SessionTitle(query string) string {
	runes := []rune(query)
	if len(runes) > SessionTitleLength {
		runes = runes[:SessionTitleLength]
	}
	return string(runes)
}
