// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to capture stderr
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render_Styled(t *testing.T) {
	styled := []Icon{IconSuccess, IconWarning, IconError, IconPending}
	for _, icon := range styled {
		if icon.Render() == "" {
			t.Errorf("expected non-empty render for %q", icon)
		}
	}
}

func TestIcon_Render_Default(t *testing.T) {
	// Icons without specific styling render as-is
	icons := []Icon{IconArrow, IconBullet, IconSearch, IconDocs, IconThinking, IconVerified, IconRefuted}
	for _, icon := range icons {
		result := icon.Render()
		if result != string(icon) {
			t.Errorf("expected %q for %q, got %q", string(icon), icon, result)
		}
	}
}

// =============================================================================
// Title Tests
// =============================================================================

func TestTitle_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Title("Test Title")
	})

	if output != "" {
		t.Errorf("expected no output in machine mode, got %q", output)
	}
}

func TestTitle_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Title("Test Title")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Success / Warning / Error Tests
// =============================================================================

func TestSuccess_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Success("Operation completed")
	})

	if output != "OK: Operation completed\n" {
		t.Errorf("expected 'OK: Operation completed', got %q", output)
	}
}

func TestSuccess_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Success("Operation completed")
	})

	if !strings.Contains(output, "Operation completed") {
		t.Errorf("expected message in output, got %q", output)
	}
}

func TestWarning_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Warning("disk nearly full")
	})

	if output != "WARN: disk nearly full\n" {
		t.Errorf("expected 'WARN: disk nearly full', got %q", output)
	}
}

func TestError_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Error("request failed")
	})

	if output != "ERROR: request failed\n" {
		t.Errorf("expected 'ERROR: request failed', got %q", output)
	}
}

func TestError_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Error("request failed")
	})

	if !strings.Contains(output, "request failed") {
		t.Errorf("expected message in output, got %q", output)
	}
}

// =============================================================================
// Info / Muted / Thinking Tests
// =============================================================================

func TestInfo_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Info("plain info")
	})

	if output != "plain info\n" {
		t.Errorf("expected plain text in machine mode, got %q", output)
	}
}

func TestMuted_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Muted("secondary text")
	})

	if output != "" {
		t.Errorf("expected no muted output in machine mode, got %q", output)
	}
}

func TestThinking_Suppressed(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{Level: PersonalityFull, ShowThinking: false})

	output := captureStdout(func() {
		Thinking("internal reasoning")
	})

	if output != "" {
		t.Errorf("expected no thinking output when disabled, got %q", output)
	}
}

func TestThinking_Enabled(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{Level: PersonalityFull, ShowThinking: true})

	output := captureStdout(func() {
		Thinking("internal reasoning")
	})

	if !strings.Contains(output, "internal reasoning") {
		t.Errorf("expected thinking text in output, got %q", output)
	}
}

// =============================================================================
// Box Tests
// =============================================================================

func TestBox_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Box("Status", "all good")
	})

	if output != "Status: all good\n" {
		t.Errorf("expected 'Status: all good', got %q", output)
	}
}

// =============================================================================
// FileStatus Tests
// =============================================================================

func TestFileStatus_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		FileStatus("report.pdf", IconSuccess, "uploaded")
	})

	if output != "✓\treport.pdf\tuploaded\n" {
		t.Errorf("unexpected machine output: %q", output)
	}
}

func TestFileStatus_FullModeWithReason(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		FileStatus("report.pdf", IconError, "too large")
	})

	if !strings.Contains(output, "report.pdf") || !strings.Contains(output, "too large") {
		t.Errorf("expected path and reason in output, got %q", output)
	}
}

// =============================================================================
// Summary Tests
// =============================================================================

func TestSummary_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Summary(3, 1, 4)
	})

	if output != "SUMMARY: completed=3 failed=1 total=4\n" {
		t.Errorf("unexpected summary output: %q", output)
	}
}

// =============================================================================
// AccuracyStyle Tests
// =============================================================================

func TestAccuracyStyle_Thresholds(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, Styles.Success.Render("x")},
		{90, Styles.Success.Render("x")},
		{89, Styles.Warning.Render("x")},
		{70, Styles.Warning.Render("x")},
		{69, Styles.Error.Render("x")},
		{0, Styles.Error.Render("x")},
	}

	for _, tt := range tests {
		if got := AccuracyStyle(tt.score).Render("x"); got != tt.want {
			t.Errorf("AccuracyStyle(%d) rendered %q, want %q", tt.score, got, tt.want)
		}
	}
}

// =============================================================================
// ProgressBar Tests
// =============================================================================

func TestProgressBar_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	result := ProgressBar(3, 10, 20)
	if result != "3/10" {
		t.Errorf("expected '3/10', got %q", result)
	}
}

func TestProgressBar_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	result := ProgressBar(5, 10, 20)
	if !strings.Contains(result, "50%") {
		t.Errorf("expected 50%% in bar, got %q", result)
	}
}

func TestProgressBar_ZeroTotal(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	// Must not panic or divide by zero
	result := ProgressBar(0, 0, 20)
	if result == "" {
		t.Error("expected non-empty bar for zero total")
	}
}
