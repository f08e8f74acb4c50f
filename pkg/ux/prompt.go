// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// truncate shortens s to at most maxLen characters, replacing the
// tail with "..." when it has to cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}

// mirasTheme styles huh prompts to match the rest of the CLI.
func mirasTheme() *huh.Theme {
	theme := huh.ThemeBase()

	theme.Focused.Title = theme.Focused.Title.Foreground(ColorTealBright).Bold(true)
	theme.Focused.Description = theme.Focused.Description.Foreground(ColorSlate)
	theme.Focused.SelectSelector = theme.Focused.SelectSelector.Foreground(ColorTealBright)
	theme.Focused.SelectedOption = theme.Focused.SelectedOption.Foreground(ColorTealPrimary)
	theme.Focused.FocusedButton = theme.Focused.FocusedButton.Background(ColorTealDeep)

	theme.Blurred.Title = theme.Blurred.Title.Foreground(ColorSlate)

	return theme
}

// PromptOption is one entry in a selection prompt.
type PromptOption struct {
	// Label is the text shown in the list.
	Label string

	// Description is optional help text shown under the prompt.
	Description string

	// Value is returned when this option is chosen.
	Value string

	// Recommended marks the option's label with a hint.
	Recommended bool
}

// SelectOption runs an interactive selection prompt and returns the
// chosen option's Value.
func SelectOption(title, description string, options []PromptOption) (string, error) {
	huhOptions := make([]huh.Option[string], 0, len(options))
	for _, opt := range options {
		label := opt.Label
		if opt.Recommended {
			label += " (recommended)"
		}
		huhOptions = append(huhOptions, huh.NewOption(label, opt.Value))
	}

	var selected string
	sel := huh.NewSelect[string]().
		Title(title).
		Description(description).
		Options(huhOptions...).
		Value(&selected)

	form := huh.NewForm(huh.NewGroup(sel)).WithTheme(mirasTheme())
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("selection prompt failed: %w", err)
	}
	return selected, nil
}

// Confirm runs a yes/no prompt.
func Confirm(title, affirmative, negative string) (bool, error) {
	var confirmed bool
	prompt := huh.NewConfirm().
		Title(title).
		Affirmative(affirmative).
		Negative(negative).
		Value(&confirmed)

	form := huh.NewForm(huh.NewGroup(prompt)).WithTheme(mirasTheme())
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return confirmed, nil
}

// SecretAction is the user's decision about a file that scanned
// positive for sensitive content.
type SecretAction string

const (
	// SecretActionSkip leaves the file out of the upload.
	SecretActionSkip SecretAction = "skip"

	// SecretActionRedact masks the matches and continues.
	SecretActionRedact SecretAction = "redact"

	// SecretActionProceed uploads the original content unchanged.
	SecretActionProceed SecretAction = "proceed"

	// SecretActionShowMore prints the full findings, then asks again.
	SecretActionShowMore SecretAction = "show"
)

// SecretFinding is one sensitive-content match shown to the user.
type SecretFinding struct {
	// LineNumber is the 1-based line of the match.
	LineNumber int

	// PatternID identifies the matching rule.
	PatternID string

	// PatternName is the rule's display name.
	PatternName string

	// Confidence is the rule's confidence level, uppercased for
	// display.
	Confidence string

	// Match is the matched text, possibly truncated.
	Match string

	// Reason explains why the rule fired.
	Reason string
}

// SecretPromptOptions configures the sensitive-content prompt.
type SecretPromptOptions struct {
	// FilePath is the file that scanned positive.
	FilePath string

	// ShowRedact offers the redact option.
	ShowRedact bool

	// ShowForceSkip offers uploading the original anyway.
	ShowForceSkip bool

	// Findings are the matches to summarize.
	Findings []SecretFinding
}

// PromptForSecretAction asks the user what to do with a file whose
// content matched sensitive-data rules.
//
// Non-interactive runs skip the file without prompting; callers that
// want different batch behavior check IsInteractive themselves. The
// "show" choice prints each finding and asks again.
func PromptForSecretAction(opts SecretPromptOptions) (SecretAction, error) {
	if !IsInteractive() {
		return SecretActionSkip, nil
	}

	high := 0
	for _, f := range opts.Findings {
		if f.Confidence == "HIGH" {
			high++
		}
	}

	fmt.Printf("%s %s\n", IconWarning.Render(),
		Styles.Warning.Render(fmt.Sprintf("Possible sensitive content in %s", opts.FilePath)))
	if high > 0 {
		fmt.Println(Styles.Muted.Render(fmt.Sprintf("  %d findings (%d high confidence)", len(opts.Findings), high)))
	} else {
		fmt.Println(Styles.Muted.Render(fmt.Sprintf("  %d findings", len(opts.Findings))))
	}

	for {
		options := []PromptOption{
			{Label: "Skip this file", Value: string(SecretActionSkip), Recommended: true},
		}
		if opts.ShowRedact {
			options = append(options, PromptOption{Label: "Redact matches and upload", Value: string(SecretActionRedact)})
		}
		if opts.ShowForceSkip {
			options = append(options, PromptOption{Label: "Upload original anyway", Value: string(SecretActionProceed)})
		}
		options = append(options, PromptOption{Label: "Show matches", Value: string(SecretActionShowMore)})

		choice, err := SelectOption("What should happen to this file?", "", options)
		if err != nil {
			return SecretActionSkip, err
		}

		if SecretAction(choice) != SecretActionShowMore {
			return SecretAction(choice), nil
		}

		for _, f := range opts.Findings {
			fmt.Printf("  line %d: %s [%s]\n", f.LineNumber, f.PatternName, f.Confidence)
			fmt.Println(Styles.Muted.Render(fmt.Sprintf("    %s (%s)", truncate(f.Match, 40), f.Reason)))
		}
	}
}
