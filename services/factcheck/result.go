// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package factcheck

import (
	"encoding/json"
	"fmt"
	"math"
)

// PageLabel is a page reference as reported by the model. The model
// is asked for a string but answers with bare numbers or null often
// enough that decoding tolerates all three; null becomes the empty
// label.
type PageLabel string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PageLabel) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PageLabel(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*p = PageLabel(n.String())
		return nil
	}
	return fmt.Errorf("page label must be a string or number, got %s", data)
}

// Fact is one checked claim from the validated answer.
type Fact struct {
	Fact      string    `json:"fact"`
	Verified  bool      `json:"verified"`
	PageFound PageLabel `json:"page_found"`
}

// Result is the validation outcome delivered to clients. The counts
// and score are derived from FactsChecked, not taken from the model.
type Result struct {
	QueryAnswered   bool   `json:"query_answered"`
	FactsChecked    []Fact `json:"facts_checked"`
	AccuracyScore   int    `json:"accuracy_score"`
	VerifiedFacts   int    `json:"verified_facts"`
	TotalFacts      int    `json:"total_facts"`
	OverallAccuracy string `json:"overall_accuracy"`
}

// FactCheck is the outcome of a single-statement accuracy check.
type FactCheck struct {
	IsAccurate         bool   `json:"is_accurate"`
	Confidence         int    `json:"confidence"`
	Explanation        string `json:"explanation"`
	SupportingEvidence string `json:"supporting_evidence"`
}

// finalizeResult parses the model's raw JSON answer and derives the
// score fields. Accuracy is verified/total rounded to the nearest
// percent, zero when no facts were extracted.
func finalizeResult(text string) (*Result, error) {
	var raw struct {
		QueryAnswered   bool   `json:"query_answered"`
		FactsChecked    []Fact `json:"facts_checked"`
		OverallAccuracy string `json:"overall_accuracy"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("validation result is not valid JSON: %w", err)
	}

	verified := 0
	for _, f := range raw.FactsChecked {
		if f.Verified {
			verified++
		}
	}
	total := len(raw.FactsChecked)

	accuracy := 0
	if total > 0 {
		accuracy = int(math.Round(float64(verified) / float64(total) * 100))
	}

	overall := raw.OverallAccuracy
	if overall == "" {
		overall = fmt.Sprintf("%d%%", accuracy)
	}

	facts := raw.FactsChecked
	if facts == nil {
		facts = []Fact{}
	}

	return &Result{
		QueryAnswered:   raw.QueryAnswered,
		FactsChecked:    facts,
		AccuracyScore:   accuracy,
		VerifiedFacts:   verified,
		TotalFacts:      total,
		OverallAccuracy: overall,
	}, nil
}

// zeroResult is the degraded outcome when the model's answer could
// not be parsed at all.
func zeroResult() *Result {
	return &Result{
		FactsChecked:    []Fact{},
		OverallAccuracy: "0%",
	}
}

// parseFactCheck parses a single-statement check response.
func parseFactCheck(text string) (*FactCheck, error) {
	var check FactCheck
	if err := json.Unmarshal([]byte(text), &check); err != nil {
		return nil, fmt.Errorf("fact check result is not valid JSON: %w", err)
	}
	return &check, nil
}
