// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// MaxQueryBytes caps a single search query. Checked in bytes, not
// runes, so oversized payloads are rejected before they reach the
// upstream provider.
const MaxQueryBytes = 32 * 1024

// searchValidate is the validator instance for search datatypes.
var searchValidate *validator.Validate

func init() {
	searchValidate = validator.New()
	_ = searchValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxQueryBytes on a string field.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// SearchRequest is the body of POST /api/search and of each WebSocket
// query message.
//
// Mode and Stream are accepted for wire compatibility with existing
// clients; the server streams regardless and retrieval mode is decided
// by the upstream agent configuration.
type SearchRequest struct {
	Query     string `json:"query" binding:"required" validate:"required,maxbytes"`
	Mode      string `json:"mode"`
	Stream    bool   `json:"stream"`
	SessionID string `json:"session_id"`
}

// Validate checks limits the binding tags cannot express.
func (r *SearchRequest) Validate() error {
	return searchValidate.Struct(r)
}
