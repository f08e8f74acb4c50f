// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package artifacts manages the extraction artifact directory: the XML
// documents produced by PDF extraction and their thinking-transcript
// sidecars. Answer validation reads these back as reference documents,
// so the store is shared ground between the ingestion pipeline, the
// CLI, and the backend.
package artifacts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/miras/pkg/validation"
)

// DefaultDir is the artifact directory used when none is configured.
const DefaultDir = "extracted_texts"

// maxReferenceChars caps reference documents handed to validation.
// Bounds the validation prompt; extractions of large PDFs run to
// megabytes.
const maxReferenceChars = 50000

// Store reads and writes extraction artifacts under a single
// directory.
//
// # Description
//
// Artifacts follow a fixed naming scheme: document content is
// "{stem}_extracted.xml", the extraction's thinking transcript is
// "{stem}_thinking.txt", where stem is the document name without its
// .pdf extension. The store keeps an index of XML artifacts and their
// modification times, kept current by a filesystem watcher so writes
// from other processes (the CLI ingesting while the server runs) are
// visible without rescanning. When watching is unavailable the index
// is bypassed and reads scan the directory directly.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Store struct {
	dir string

	mu    sync.RWMutex
	index map[string]time.Time

	watcher  *fsnotify.Watcher
	watching bool
}

// NewStore opens (creating if needed) the artifact directory and
// begins watching it. A store is always returned when the directory
// is usable; watcher startup failure only degrades reads to directory
// scans.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	s := &Store{
		dir:   dir,
		index: make(map[string]time.Time),
	}
	s.rebuildIndex()
	s.watching = s.startWatcher()
	return s, nil
}

// Dir returns the artifact directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Close stops the filesystem watcher. Reads and writes keep working
// afterwards; the index simply stops tracking outside changes.
func (s *Store) Close() error {
	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		s.setWatching(false)
		return err
	}
	return nil
}

// SaveExtraction writes the extracted XML for a document and returns
// the artifact path.
func (s *Store) SaveExtraction(docName, content string) (string, error) {
	return s.save(docName, "_extracted.xml", content)
}

// SaveThinking writes the extraction thinking transcript for a
// document and returns the artifact path.
func (s *Store) SaveThinking(docName, content string) (string, error) {
	return s.save(docName, "_thinking.txt", content)
}

func (s *Store) save(docName, suffix, content string) (string, error) {
	stem := refStem(docName)
	if err := validation.ValidateDocumentName(stem); err != nil {
		return "", fmt.Errorf("invalid document name: %w", err)
	}

	name := stem + suffix
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	if strings.HasSuffix(name, ".xml") {
		if info, err := os.Stat(path); err == nil {
			s.setIndex(name, info.ModTime())
		}
	}
	return path, nil
}

// LoadReference loads the reference document for a retrieval's
// doc_name, capped to the validation character budget. The name's
// .pdf extension is stripped case-insensitively; "{stem}_extracted.xml"
// is preferred over "{stem}.xml". An empty doc name falls back to the
// most recently modified XML artifact. Returns false when nothing
// suitable exists; validation proceeds without a reference in that
// case.
func (s *Store) LoadReference(docName string) (string, bool) {
	stem := refStem(docName)
	if stem == "" {
		name, ok := s.Newest()
		if !ok {
			return "", false
		}
		return s.readCapped(name)
	}

	if err := validation.ValidateDocumentName(stem); err != nil {
		slog.Warn("Rejected reference document name", "docName", docName, "error", err)
		return "", false
	}

	for _, name := range []string{stem + "_extracted.xml", stem + ".xml"} {
		if content, ok := s.readCapped(name); ok {
			slog.Info("Loaded reference document", "file", name)
			return content, true
		}
	}

	slog.Info("No reference document found", "docName", docName)
	return "", false
}

// Newest returns the file name of the most recently modified XML
// artifact.
func (s *Store) Newest() (string, bool) {
	if s.isWatching() {
		s.mu.RLock()
		var newest string
		var newestAt time.Time
		for name, mtime := range s.index {
			if newest == "" || mtime.After(newestAt) {
				newest, newestAt = name, mtime
			}
		}
		s.mu.RUnlock()
		return newest, newest != ""
	}
	return s.scanNewest()
}

// readCapped reads one artifact, capped to the reference budget.
func (s *Store) readCapped(name string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return "", false
	}
	return capRunes(string(data), maxReferenceChars), true
}

// scanNewest walks the directory for the most recent XML artifact.
func (s *Store) scanNewest() (string, bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Warn("Failed to scan artifact directory", "dir", s.dir, "error", err)
		return "", false
	}

	var newest string
	var newestAt time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xml") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestAt) {
			newest, newestAt = entry.Name(), info.ModTime()
		}
	}
	return newest, newest != ""
}

// rebuildIndex seeds the index from the directory contents.
func (s *Store) rebuildIndex() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Warn("Failed to scan artifact directory", "dir", s.dir, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[string]time.Time, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xml") {
			continue
		}
		if info, err := entry.Info(); err == nil {
			s.index[entry.Name()] = info.ModTime()
		}
	}
}

func (s *Store) setIndex(name string, mtime time.Time) {
	s.mu.Lock()
	s.index[name] = mtime
	s.mu.Unlock()
}

func (s *Store) dropIndex(name string) {
	s.mu.Lock()
	delete(s.index, name)
	s.mu.Unlock()
}

func (s *Store) isWatching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watching
}

func (s *Store) setWatching(v bool) {
	s.mu.Lock()
	s.watching = v
	s.mu.Unlock()
}

// refStem strips a .pdf extension case-insensitively. Other
// extensions are left alone; XML artifacts are keyed by the original
// PDF's stem.
func refStem(docName string) string {
	if strings.EqualFold(filepath.Ext(docName), ".pdf") {
		return docName[:len(docName)-len(".pdf")]
	}
	return docName
}

// capRunes truncates s to at most n runes.
func capRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
