// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
)

// MirasConfig is the CLI configuration persisted at ~/.miras/miras.yaml.
// Credentials never live here; those stay in the environment.
type MirasConfig struct {
	// Backend locates the miras HTTP service for the thin-client
	// commands (docs, sessions, health).
	Backend BackendConfig `yaml:"backend"`

	// Chat controls the interactive chat defaults.
	Chat ChatConfig `yaml:"chat"`

	// Ingest controls the document ingestion defaults.
	Ingest IngestConfig `yaml:"ingest"`

	// ExtractedDir is where extraction artifacts are written. Relative
	// paths resolve against the working directory.
	ExtractedDir string `yaml:"extracted_dir"`
}

type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
}

type ChatConfig struct {
	// Validation fact-checks every answer against its source document.
	Validation bool `yaml:"validation"`

	// TranscriptDir is where hash-chained session transcripts are
	// saved. Empty disables transcripts.
	TranscriptDir string `yaml:"transcript_dir"`
}

type IngestConfig struct {
	// ScanUploads runs the sensitive-data scanner over extracted text
	// before anything is uploaded.
	ScanUploads bool `yaml:"scan_uploads"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() MirasConfig {
	transcriptDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		transcriptDir = filepath.Join(home, ".miras", "transcripts")
	}
	return MirasConfig{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
		},
		Chat: ChatConfig{
			Validation:    true,
			TranscriptDir: transcriptDir,
		},
		Ingest: IngestConfig{
			ScanUploads: true,
		},
		ExtractedDir: "extracted_texts",
	}
}
