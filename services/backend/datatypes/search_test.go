// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SearchRequest
		wantErr bool
	}{
		{
			name: "ordinary query",
			req:  SearchRequest{Query: "what changed in the last release?"},
		},
		{
			name: "query at the byte cap",
			req:  SearchRequest{Query: strings.Repeat("q", MaxQueryBytes)},
		},
		{
			name:    "query over the byte cap",
			req:     SearchRequest{Query: strings.Repeat("q", MaxQueryBytes+1)},
			wantErr: true,
		},
		{
			name:    "empty query",
			req:     SearchRequest{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestValidateMaxBytes_CountsBytes pins the cap to bytes rather than
// runes; a multi-byte rune payload must not slip under it.
func TestValidateMaxBytes_CountsBytes(t *testing.T) {
	// Three bytes per rune, so a third of the cap in runes fills it.
	runes := MaxQueryBytes / 3
	req := SearchRequest{Query: strings.Repeat("日", runes+1)}
	assert.Error(t, req.Validate())
}
