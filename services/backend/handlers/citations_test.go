// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/miras/services/backend/datatypes"
	"github.com/AleutianAI/miras/services/contextual"
)

func testRetrievals() []contextual.Retrieval {
	return []contextual.Retrieval{
		{DocName: "Annual Report.pdf", Page: "12", Score: 0.95},
		{DocName: "Survey.pdf", Page: "3", Score: 0.81},
		{DocName: "Notes.txt", Page: "1", Score: 0.52},
	}
}

// TestExtractCitations_FirstSeenOrder verifies that citations come back
// in the order a reader encounters the markers, not marker order.
func TestExtractCitations_FirstSeenOrder(t *testing.T) {
	answer := "Revenue grew.[3]() Margins held.[1]() Headcount rose.[2]()"

	citations := ExtractCitations(answer, testRetrievals())

	require.Len(t, citations, 3)
	assert.Equal(t, []datatypes.Citation{
		{Number: "3", DocName: "Notes.txt", Page: "1"},
		{Number: "1", DocName: "Annual Report.pdf", Page: "12"},
		{Number: "2", DocName: "Survey.pdf", Page: "3"},
	}, citations)
}

// TestExtractCitations_Deduplicates verifies repeated markers resolve
// once.
func TestExtractCitations_Deduplicates(t *testing.T) {
	answer := "First claim.[1]() Second claim.[1]() Third claim.[2]()"

	citations := ExtractCitations(answer, testRetrievals())

	require.Len(t, citations, 2)
	assert.Equal(t, "1", citations[0].Number)
	assert.Equal(t, "2", citations[1].Number)
}

// TestExtractCitations_OutOfRangeDropped verifies markers pointing past
// the retrieval list, and the non-existent marker zero, are skipped.
func TestExtractCitations_OutOfRangeDropped(t *testing.T) {
	answer := "Real.[2]() Phantom.[9]() Zero.[0]()"

	citations := ExtractCitations(answer, testRetrievals())

	require.Len(t, citations, 1)
	assert.Equal(t, "2", citations[0].Number)
}

// TestExtractCitations_NoRetrievals verifies markers cannot resolve
// without captured retrievals.
func TestExtractCitations_NoRetrievals(t *testing.T) {
	assert.Nil(t, ExtractCitations("A claim.[1]()", nil))
	assert.Nil(t, ExtractCitations("A claim.[1]()", []contextual.Retrieval{}))
}

// TestExtractCitations_NoMarkers verifies an answer without markers
// yields nothing even when retrievals exist.
func TestExtractCitations_NoMarkers(t *testing.T) {
	assert.Nil(t, ExtractCitations("Plain prose with [brackets] but no markers.", testRetrievals()))
}

// TestExtractCitations_MarkerShape verifies only the period-anchored
// empty-link form counts as a marker.
func TestExtractCitations_MarkerShape(t *testing.T) {
	retrievals := testRetrievals()

	assert.Nil(t, ExtractCitations("No period [1]()", retrievals))
	assert.Nil(t, ExtractCitations("Filled link.[1](http://x)", retrievals))
	assert.NotNil(t, ExtractCitations("Anchored.[1]()", retrievals))
}

// TestExtractCitations_MissingFields verifies stand-ins for retrievals
// without a document name or page.
func TestExtractCitations_MissingFields(t *testing.T) {
	citations := ExtractCitations("Claim.[1]()", []contextual.Retrieval{{}})

	require.Len(t, citations, 1)
	assert.Equal(t, "Unknown", citations[0].DocName)
	assert.Equal(t, "N/A", citations[0].Page)
}

// TestExtractCitations_OverflowingMarker verifies a digit run too long
// for an int is dropped rather than panicking or resolving.
func TestExtractCitations_OverflowingMarker(t *testing.T) {
	answer := "Huge.[99999999999999999999999999]() Sane.[1]()"

	citations := ExtractCitations(answer, testRetrievals())

	require.Len(t, citations, 1)
	assert.Equal(t, "1", citations[0].Number)
}
