// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/AleutianAI/miras/pkg/ux"
	"github.com/spf13/cobra"
)

// runVerifyCommand recomputes a saved transcript's hash chain.
//
// The exit code is the verdict: 0 when the chain holds, 1 when any
// event was altered, removed, or reordered after the session.
func runVerifyCommand(cmd *cobra.Command, args []string) {
	path := args[0]

	events, err := loadTranscript(path)
	if err != nil {
		log.Fatalf("Failed to load the transcript: %v", err)
	}
	if len(events) == 0 {
		log.Fatalf("Transcript %s contains no events", path)
	}

	verification := ux.NewFullChainVerifier().Verify(events)
	info := ux.NewIntegrityInfoFromVerification(verification)
	fmt.Println(info.FormatForDisplay())

	if !verification.Valid {
		fmt.Printf("First invalid event: index %d\n", verification.InvalidEventIndex)
		if verification.ExpectedHash != "" {
			fmt.Printf("Expected hash: %s\n", verification.ExpectedHash)
			fmt.Printf("Actual hash:   %s\n", verification.ActualHash)
		}
		if verification.ErrorMessage != "" {
			fmt.Printf("Detail: %s\n", verification.ErrorMessage)
		}
		os.Exit(1)
	}
}

// loadTranscript reads a JSONL transcript back into stream events.
// The events are used exactly as stored; reparsing must not restamp
// IDs or timestamps, or every hash in the chain would change.
func loadTranscript(path string) ([]ux.StreamEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []ux.StreamEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev ux.StreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
