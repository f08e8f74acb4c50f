// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scanner

import (
	"context"
	"fmt"

	"github.com/AleutianAI/miras/pkg/extensions"
)

// RedactionFilter adapts the scanner into an extensions.MessageFilter so
// the backend can screen search queries with the same rules that screen
// documents at ingestion time. A pasted AWS key in a query would
// otherwise end up verbatim in session history and the audit trail.
type RedactionFilter struct {
	scanner *Scanner
}

// NewRedactionFilter builds a filter over the embedded rule set.
func NewRedactionFilter() (*RedactionFilter, error) {
	s, err := NewScanner()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the redaction filter: %w", err)
	}
	return &RedactionFilter{scanner: s}, nil
}

// FilterInput scans a query and masks every sensitive match. Queries are
// never blocked outright; a redacted query is still answerable, and
// refusing it would leak that something matched.
//
// A whole-buffer classification triages first; the line-by-line scan
// only runs when some rule matched. The rules carry no line anchors,
// so a "public" classification means the scan would find nothing.
func (f *RedactionFilter) FilterInput(_ context.Context, message string) (*extensions.FilterResult, error) {
	if f.scanner.Classify([]byte(message)) == "public" {
		return &extensions.FilterResult{Original: message, Filtered: message}, nil
	}

	findings := f.scanner.ScanContent(message)
	if len(findings) == 0 {
		return &extensions.FilterResult{Original: message, Filtered: message}, nil
	}

	detections := make([]extensions.Detection, 0, len(findings))
	for _, finding := range findings {
		detections = append(detections, extensions.Detection{
			Type:        finding.RuleName,
			Location:    fmt.Sprintf("line %d", finding.LineNumber),
			Action:      "redacted",
			Replacement: RedactedPlaceholder,
		})
	}

	return &extensions.FilterResult{
		Original:    message,
		Filtered:    f.scanner.Redact(message, findings),
		WasModified: true,
		Detections:  detections,
	}, nil
}

// FilterOutput passes answers through unchanged. Answers are grounded in
// the user's own indexed documents, which were already screened during
// ingestion, so a second pass here would only re-mask text the user
// explicitly chose to upload.
func (f *RedactionFilter) FilterOutput(_ context.Context, message string) (*extensions.FilterResult, error) {
	return &extensions.FilterResult{Original: message, Filtered: message}, nil
}

var _ extensions.MessageFilter = (*RedactionFilter)(nil)
