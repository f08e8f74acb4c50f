// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// file paths, URL path segments, or subprocess calls. Using these validators
// prevents injection attacks (path traversal, URL manipulation).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// documentNamePattern matches document names safe to use when deriving
// artifact filenames. Allows letters, digits, spaces, dots, hyphens,
// underscores, and parentheses. Path separators are excluded.
var documentNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._()\-]{0,254}$`)

// idPattern matches identifiers returned by the upstream provider
// (conversation ids, datastore document ids). These end up in URL path
// segments, so only URL-safe characters are allowed.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,127}$`)

// ValidateDocumentName validates a document name before it is used to build
// a filename under the extraction artifact directory.
//
// Valid names:
//   - 1-255 characters
//   - Letters, digits, spaces, dots, hyphens, underscores, parentheses
//   - No path separators, no leading dot
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateDocumentName(docName); err != nil {
//	    return nil, fmt.Errorf("invalid document name: %w", err)
//	}
//	// Safe to use in a filename
func ValidateDocumentName(name string) error {
	if name == "" {
		return fmt.Errorf("document name cannot be empty")
	}

	if strings.Contains(name, "..") {
		return fmt.Errorf("document name must not contain '..': %q", name)
	}

	if !documentNamePattern.MatchString(name) {
		return fmt.Errorf("invalid document name: %q (must be 1-255 chars of letters, digits, spaces, '.', '_', '-', '(', ')')", name)
	}

	return nil
}

// ValidateID validates an upstream-issued identifier before it is embedded
// in a request URL path (document deletion, status checks, session lookups).
//
// Valid ids are 1-128 URL-safe characters: letters, digits, hyphens,
// underscores.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}

	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid id format: %q (must be 1-128 alphanumeric chars, hyphens, or underscores)", id)
	}

	return nil
}

// ValidateIDs validates multiple identifiers.
// Returns an error listing all invalid ids if any fail validation.
func ValidateIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid ids: %s", strings.Join(invalid, ", "))
	}

	return nil
}
