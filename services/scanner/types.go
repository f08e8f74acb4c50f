// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scanner

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

// RuleFile is the top-level structure of the embedded rules YAML.
type RuleFile struct {
	Categories []Category `yaml:"categories"`
}

// Category groups rules that share a sensitivity level. Higher
// priority categories win when content matches more than one.
type Category struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Priority    int    `yaml:"priority"`
	Rules       []Rule `yaml:"rules"`
}

// Rule is one detection pattern.
type Rule struct {
	Id         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Regex      string          `yaml:"regex"`
	Confidence ConfidenceLevel `yaml:"confidence"`
	Reason     string          `yaml:"reason"`

	compiled *regexp.Regexp `yaml:"-"`
}

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := ConfidenceLevel(s)
	switch incoming {
	case High, Medium, Low:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Confidence: %q", incoming)
	}
}

// Compile compiles every rule's regex. Call once after unmarshalling.
func (f *RuleFile) Compile() error {
	for i := range f.Categories {
		for j := range f.Categories[i].Rules {
			rule := &f.Categories[i].Rules[j]
			re, err := regexp.Compile(rule.Regex)
			if err != nil {
				return fmt.Errorf("failed to compile the regex %s: %w", rule.Regex, err)
			}
			rule.compiled = re
		}
	}
	return nil
}

// SortByPriority orders categories from highest to lowest priority so
// classification checks the most restrictive rules first.
func (f *RuleFile) SortByPriority() {
	sort.Slice(f.Categories, func(i, j int) bool {
		return f.Categories[i].Priority > f.Categories[j].Priority
	})
}

// Finding is one sensitive-content match in a scanned document.
type Finding struct {
	FilePath     string          `json:"file_path,omitempty"`
	LineNumber   int             `json:"line_number"`
	Match        string          `json:"match"`
	CategoryName string          `json:"category_name"`
	RuleId       string          `json:"rule_id"`
	RuleName     string          `json:"rule_name"`
	Confidence   ConfidenceLevel `json:"confidence"`
	Reason       string          `json:"reason"`
}
