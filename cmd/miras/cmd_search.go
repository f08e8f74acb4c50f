// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/AleutianAI/miras/pkg/ux"
	"github.com/AleutianAI/miras/services/backend/datatypes"
	"github.com/spf13/cobra"
)

// streamBackendSearch POSTs one query to the backend's search pipeline
// and renders the phase stream as it arrives. Returns the accumulated
// result once the stream completes.
//
// Unlike chat and ask, which talk to the upstream platform directly,
// this path goes through the local backend and so picks up everything
// the backend adds: session bookkeeping, resolved citations, and the
// server-side validation pass.
func streamBackendSearch(ctx context.Context, baseURL, query, sessionID string) (*ux.PhaseResult, error) {
	body, err := json.Marshal(datatypes.SearchRequest{
		Query:     query,
		Stream:    true,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/search", baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr == nil {
			if envelope.Error != "" {
				return nil, fmt.Errorf("backend rejected the query: %s", envelope.Error)
			}
			if envelope.Detail != "" {
				return nil, fmt.Errorf("backend rejected the query: %s", envelope.Detail)
			}
		}
		return nil, fmt.Errorf("backend returned an error: %s", resp.Status)
	}

	return ux.NewPhaseStreamProcessor().Process(resp.Body)
}

// displayCitations renders the resolved citations beneath the answer.
func displayCitations(citations []ux.CitationInfo) {
	if len(citations) == 0 {
		return
	}

	if ux.GetPersonality().Level == ux.PersonalityMachine {
		for _, c := range citations {
			fmt.Printf("CITATION: [%s] %s page=%s\n", c.Number, c.DocName, c.Page)
		}
		return
	}

	fmt.Println()
	fmt.Println(ux.Styles.Subtitle.Render("Citations"))
	for _, c := range citations {
		line := fmt.Sprintf("  [%s] %s", c.Number, c.DocName)
		if c.Page != "" && c.Page != "N/A" {
			line += " " + ux.Styles.Muted.Render(fmt.Sprintf("(page %s)", c.Page))
		}
		fmt.Println(line)
	}
}

// displayValidation renders the server-side fact-check verdict. The
// shape mirrors the chat loop's local validation display so the two
// paths read the same at the terminal.
func displayValidation(v *ux.ValidationInfo) {
	if v == nil {
		return
	}

	if ux.GetPersonality().Level == ux.PersonalityMachine {
		fmt.Printf("VALIDATION: accuracy=%d verified=%d total=%d\n",
			v.AccuracyScore, v.VerifiedFacts, v.TotalFacts)
		for _, fact := range v.FactsChecked {
			fmt.Printf("FACT: verified=%t %s\n", fact.Verified, fact.Fact)
		}
		return
	}

	fmt.Println()
	fmt.Println(ux.AccuracyStyle(v.AccuracyScore).Render(
		fmt.Sprintf("Accuracy: %d%% (%d of %d facts verified)",
			v.AccuracyScore, v.VerifiedFacts, v.TotalFacts)))
	for _, fact := range v.FactsChecked {
		icon := ux.IconRefuted
		if fact.Verified {
			icon = ux.IconVerified
		}
		line := fmt.Sprintf("  %s %s", icon.Render(), fact.Fact)
		if fact.PageFound != "" && fact.PageFound != "null" {
			line += " " + ux.Styles.Muted.Render(fmt.Sprintf("(page %s)", fact.PageFound))
		}
		fmt.Println(line)
	}
}

func runSearchCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	ctx, cancel := signalContext()
	defer cancel()

	result, err := streamBackendSearch(ctx, getBackendBaseURL(), question, searchSessionID)
	if err != nil {
		log.Fatalf("Search error: %v", err)
	}

	displayCitations(result.Citations)
	displayValidation(result.Validation)

	// Machine mode already emitted a SESSION line during the stream.
	if result.SessionID != "" && ux.GetPersonality().Level != ux.PersonalityMachine {
		fmt.Println()
		fmt.Println(ux.Styles.Muted.Render(
			fmt.Sprintf("Session: %s (pass --session to continue it)", result.SessionID)))
	}
}
