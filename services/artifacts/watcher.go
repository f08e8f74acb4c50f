// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifacts

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// startWatcher begins mirroring directory changes into the index.
// Returns false when the watcher cannot be established; the store
// then serves reads by scanning the directory.
func (s *Store) startWatcher() bool {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("Artifact watcher unavailable, falling back to directory scans", "error", err)
		return false
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		slog.Warn("Failed to watch artifact directory, falling back to directory scans",
			"dir", s.dir, "error", err)
		return false
	}

	s.watcher = w
	go s.watchLoop(w)
	return true
}

func (s *Store) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			s.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Warn("Artifact watcher error", "error", err)
		}
	}
}

func (s *Store) handleEvent(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if !strings.HasSuffix(name, ".xml") {
		return
	}

	switch {
	case ev.Op&fsnotify.Remove != 0:
		s.dropIndex(name)
	case ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0:
		// A Rename event carries the old path; the stat failure
		// drops it from the index.
		info, err := os.Stat(ev.Name)
		if err != nil {
			s.dropIndex(name)
			return
		}
		s.setIndex(name, info.ModTime())
	}
}
