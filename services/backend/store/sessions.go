// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store provides the backend's in-memory session and document
// bookkeeping. Both stores are process-local; restarting the service
// loses them, which is acceptable for the conversation history and the
// local document fallback they hold.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/miras/services/backend/datatypes"
)

// DefaultSessionLimit is the session-list page size when the client
// does not ask for one.
const DefaultSessionLimit = 20

// SessionStore tracks conversation sessions and their messages.
//
// # Description
//
// Sessions are keyed by id. AppendQuery is the single write path for
// turns: it creates the session on first use (titled from the query)
// or bumps an existing one, and appends the turn's message with an
// empty response. CompleteMessage fills the response in once the
// answer stream has finished.
//
// # Thread Safety
//
// Safe for concurrent use. All methods take the store lock; returned
// values are copies and never alias internal state.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*datatypes.Session
	messages map[string][]datatypes.SessionMessage
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*datatypes.Session),
		messages: make(map[string][]datatypes.SessionMessage),
	}
}

// AppendQuery records the start of a turn.
//
// An empty sessionID allocates a fresh session. The returned session
// snapshot reflects the turn being counted, so MessageCount == 1 means
// this turn opened the session. The returned message id is the handle
// for CompleteMessage.
func (s *SessionStore) AppendQuery(sessionID, query string) (datatypes.Session, datatypes.SessionMessage) {
	now := time.Now()
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &datatypes.Session{
			ID:            sessionID,
			Title:         datatypes.SessionTitle(query),
			StartedAt:     now,
			LastMessageAt: now,
			MessageCount:  1,
			IsActive:      true,
		}
		s.sessions[sessionID] = sess
		s.messages[sessionID] = nil
	} else {
		sess.LastMessageAt = now
		sess.MessageCount++
	}

	msg := datatypes.SessionMessage{
		ID:        uuid.New().String(),
		Query:     query,
		CreatedAt: now,
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)

	return *sess, msg
}

// CompleteMessage stores the final response text of a turn. Unknown
// session or message ids are ignored; the turn may have raced a
// session delete.
func (s *SessionStore) CompleteMessage(sessionID, messageID, response string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[sessionID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].Response = response
			return
		}
	}
}

// List returns up to limit sessions, most recently active first.
// limit <= 0 applies DefaultSessionLimit.
func (s *SessionStore) List(limit int, activeOnly bool) []datatypes.Session {
	if limit <= 0 {
		limit = DefaultSessionLimit
	}

	s.mu.RLock()
	out := make([]datatypes.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if activeOnly && !sess.IsActive {
			continue
		}
		out = append(out, *sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Messages returns the message history of a session in arrival order.
// The second return is false when the session does not exist.
func (s *SessionStore) Messages(sessionID string) ([]datatypes.SessionMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.messages[sessionID]
	if !ok {
		return nil, false
	}
	out := make([]datatypes.SessionMessage, len(msgs))
	copy(out, msgs)
	return out, true
}

// Delete removes a session and its messages. Returns false when the
// session does not exist.
func (s *SessionStore) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return true
}
