// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"sync"

	"github.com/AleutianAI/miras/services/backend/datatypes"
)

// DocumentStore tracks documents ingested through this backend.
//
// # Description
//
// The store is the fallback listing source when no upstream datastore
// is configured or the upstream listing fails, and the authority for
// which documents this instance ingested. List preserves insertion
// order so repeated listings are stable.
//
// # Thread Safety
//
// Safe for concurrent use.
type DocumentStore struct {
	mu    sync.RWMutex
	docs  map[string]datatypes.DocumentInfo
	order []string
}

// NewDocumentStore creates an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs: make(map[string]datatypes.DocumentInfo),
	}
}

// Put inserts or replaces a document record.
func (s *DocumentStore) Put(doc datatypes.DocumentInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; !exists {
		s.order = append(s.order, doc.ID)
	}
	s.docs[doc.ID] = doc
}

// Get looks up a document by id.
func (s *DocumentStore) Get(id string) (datatypes.DocumentInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	return doc, ok
}

// List returns all documents in insertion order.
func (s *DocumentStore) List() []datatypes.DocumentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]datatypes.DocumentInfo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}

// Delete removes a document. Returns false when the id is unknown.
func (s *DocumentStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return false
	}
	delete(s.docs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}
