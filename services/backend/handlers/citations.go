// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"regexp"
	"strconv"

	"github.com/AleutianAI/miras/services/backend/datatypes"
	"github.com/AleutianAI/miras/services/contextual"
)

// citationMarker matches inline citation markers in finished answers. The
// platform emits them as a sentence period followed by [N] with an empty
// link target, e.g. "reached 450 MW.[2]()".
var citationMarker = regexp.MustCompile(`\.\[(\d+)\]\(\)`)

// ExtractCitations resolves citation markers in a finished answer against
// the retrievals captured during the stream.
//
// Markers are deduplicated keeping first-seen order, so the citations list
// reads in the order a reader encounters them. Marker numbers are 1-based
// positions into the retrievals slice; markers that do not resolve (zero,
// out of range) are dropped. Returns nil when no marker resolves or no
// retrievals were captured.
func ExtractCitations(answer string, retrievals []contextual.Retrieval) []datatypes.Citation {
	if len(retrievals) == 0 {
		return nil
	}

	matches := citationMarker.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var citations []datatypes.Citation
	for _, m := range matches {
		num := m[1]
		if _, dup := seen[num]; dup {
			continue
		}
		seen[num] = struct{}{}

		idx, err := strconv.Atoi(num)
		if err != nil {
			// Digit run too long for int.
			continue
		}
		idx--
		if idx < 0 || idx >= len(retrievals) {
			continue
		}

		ret := retrievals[idx]
		docName := ret.DocName
		if docName == "" {
			docName = "Unknown"
		}
		page := string(ret.Page)
		if page == "" {
			page = "N/A"
		}

		citations = append(citations, datatypes.Citation{
			Number:  num,
			DocName: docName,
			Page:    page,
		})
	}

	return citations
}
