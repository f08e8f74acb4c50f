// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scanner

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/miras/services/scanner/rules"
	"gopkg.in/yaml.v3"
)

// RedactedPlaceholder replaces matched text in redacted content.
const RedactedPlaceholder = "[REDACTED]"

// Scanner checks extracted document text against the embedded
// sensitive-data rules before it leaves the machine. Safe for
// concurrent use after construction.
type Scanner struct {
	Categories []Category
}

// NewScanner initializes a scanner from the rules embedded in the
// binary. The rules are baked in at compile time, so they cannot be
// edited on the host without rebuilding.
//
// Returns an error if the embedded YAML is malformed or contains an
// invalid regex.
func NewScanner() (*Scanner, error) {
	var ruleFile RuleFile
	if err := yaml.Unmarshal(rules.SensitiveDataRules, &ruleFile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded rules file: %w", err)
	}

	if err := ruleFile.Compile(); err != nil {
		return nil, fmt.Errorf("failed to compile a regex: %w", err)
	}

	ruleFile.SortByPriority()

	return &Scanner{Categories: ruleFile.Categories}, nil
}

// Classify performs a quick check on a byte slice and returns the name
// of the first matching category, checking the highest priority
// categories first. Content that matches nothing is "public".
func (s *Scanner) Classify(data []byte) string {
	for _, category := range s.Categories {
		for _, rule := range category.Rules {
			if rule.compiled.Match(data) {
				return category.Name
			}
		}
	}
	return "public"
}

// ScanContent audits a document's extracted text line by line and
// reports every match with its line number and the text that
// triggered it. This feeds the pre-upload review in the ingestion
// flow.
func (s *Scanner) ScanContent(content string) []Finding {
	var findings []Finding
	lines := strings.Split(content, "\n")
	for lineNum, line := range lines {
		for _, category := range s.Categories {
			for _, rule := range category.Rules {
				match := rule.compiled.FindString(line)
				if match == "" {
					continue
				}
				findings = append(findings, Finding{
					LineNumber:   lineNum + 1,
					Match:        strings.TrimSpace(match),
					CategoryName: category.Name,
					RuleId:       rule.Id,
					RuleName:     rule.Name,
					Confidence:   rule.Confidence,
					Reason:       rule.Reason,
				})
			}
		}
	}
	return findings
}

// Redact masks every occurrence matched by the rules that produced
// findings and returns the rewritten content. Rules that produced no
// findings are not applied, so unrelated text is untouched.
func (s *Scanner) Redact(content string, findings []Finding) string {
	fired := make(map[string]bool, len(findings))
	for _, f := range findings {
		fired[f.RuleId] = true
	}

	for _, category := range s.Categories {
		for _, rule := range category.Rules {
			if !fired[rule.Id] {
				continue
			}
			content = rule.compiled.ReplaceAllString(content, RedactedPlaceholder)
		}
	}
	return content
}
