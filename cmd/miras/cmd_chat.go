// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/AleutianAI/miras/cmd/miras/config"
	"github.com/AleutianAI/miras/pkg/ux"
	"github.com/AleutianAI/miras/services/artifacts"
	"github.com/AleutianAI/miras/services/contextual"
	"github.com/AleutianAI/miras/services/factcheck"
	"github.com/AleutianAI/miras/services/llm"
	"github.com/spf13/cobra"
)

// runChatCommand starts the interactive chat session.
func runChatCommand(cmd *cobra.Command, args []string) {
	client, err := contextual.NewClientFromEnv()
	if err != nil {
		log.Fatalf("Failed to create the platform client: %v", err)
	}
	if !client.HasDatastore() {
		ux.Warning("No datastore configured; document management commands will not work.")
	}

	// Set up graceful shutdown with signal handling
	ctx, cancel := signalContext()
	defer cancel()

	// Build the validator eagerly even when validation starts off, so
	// "validate on" works mid-session.
	validator, cleanup, validatorErr := buildValidator(ctx)
	defer cleanup()

	validate := resolveValidationSetting(cmd)
	if validate && validator == nil {
		ux.Warning(fmt.Sprintf("Validation is unavailable: %s", validatorErr))
		validate = false
	}

	runner := NewChatRunner(ChatRunnerConfig{
		Service:       NewUpstreamQueryService(client, resumeSessionID, nil),
		Validator:     validator,
		ValidatorErr:  validatorErr,
		Validate:      validate,
		Agent:         os.Getenv("CONTEXTUAL_AGENT_ID"),
		Datastore:     os.Getenv("CONTEXTUAL_DATASTORE_ID"),
		ResumeID:      resumeSessionID,
		TranscriptDir: config.Global.Chat.TranscriptDir,
	})
	defer runner.Close()

	// Run the chat loop
	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Chat error: %v", err)
	}
}

// runAskCommand asks a single question and prints the answer.
func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	client, err := contextual.NewClientFromEnv()
	if err != nil {
		log.Fatalf("Failed to create the platform client: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	spinner := ux.NewSpinner("Searching documents...")
	spinner.Start()

	answer, convID, err := client.QueryOnce(ctx, contextual.QueryRequest{
		Query:          question,
		ConversationID: conversationID,
	})
	if err != nil {
		spinner.StopWithError("Query failed")
		log.Fatalf("Query error: %v", err)
	}
	spinner.Stop()

	ui := ux.NewChatUI()
	ui.Response(answer)

	if contextual.ValidConversationID(convID) {
		if ux.GetPersonality().Level == ux.PersonalityMachine {
			fmt.Printf("SESSION: %s\n", convID)
		} else {
			fmt.Println(ux.Styles.Muted.Render(
				fmt.Sprintf("Conversation: %s (pass --conversation to continue it)", convID)))
		}
	}
}

// resolveValidationSetting decides whether fact-checking starts on.
// An explicit --validate flag wins, then the VALIDATION_ENABLED
// environment variable, then the config file.
func resolveValidationSetting(cmd *cobra.Command) bool {
	if cmd != nil && cmd.Flags().Changed("validate") {
		return validateAnswers
	}
	if v := os.Getenv("VALIDATION_ENABLED"); v != "" {
		return v == "true" || v == "1"
	}
	return config.Global.Chat.Validation
}

// buildValidator assembles the fact-check pipeline. Failure is not
// fatal; chat still works without validation, and the reason is kept
// for the moment the user asks to turn it on.
func buildValidator(ctx context.Context) (validator answerValidator, cleanup func(), reason string) {
	model, err := llm.NewFromEnv(ctx)
	if err != nil {
		return nil, func() {}, fmt.Sprintf("LLM backend unavailable: %v", err)
	}

	refs, err := artifacts.NewStore(extractedDir())
	if err != nil {
		// Validation still works without reference documents, just
		// with lower-confidence checks against retrieval snippets.
		return factcheck.NewValidator(model, nil), func() {}, ""
	}
	return factcheck.NewValidator(model, refs), func() { refs.Close() }, ""
}
