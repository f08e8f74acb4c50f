// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"

	"github.com/AleutianAI/miras/cmd/miras/config"
	"github.com/AleutianAI/miras/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	personalityLevel string // UX personality level (full/standard/minimal/machine)
	resumeSessionID  string
	validateAnswers  bool
	conversationID   string
	searchSessionID  string
	noThinking       bool
	skipUpload       bool
	noScan           bool
	forceUpload      bool
	docsLimit        int
	docsCursor       string
	sessionsLimit    int
	activeOnly       bool

	rootCmd = &cobra.Command{
		Use:   "miras",
		Short: "A cli for the Miras grounded document intelligence service",
		Long: `Miras chats with your documents through a managed RAG platform,
				fact-checks the answers against the source text, and keeps a
				tamper-evident transcript of every session.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
			if err := config.Load(); err != nil {
				log.Fatalf("Error loading configuration: %v", err)
			}
		},
	}

	// --- Chat / Ask ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session against your documents",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks a single question and prints the grounded answer",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_chat.go
	}
	searchCmd = &cobra.Command{
		Use:   "search [question]",
		Short: "Ask the miras backend and stream the answer with citations",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearchCommand, // Defined in cmd_search.go
	}

	// --- Ingestion ---
	ingestCmd = &cobra.Command{
		Use:   "ingest [pdf path]",
		Short: "Extract a PDF with the LLM, scan it for secrets, and upload it",
		Args:  cobra.ExactArgs(1),
		Run:   runIngestCommand, // Defined in cmd_ingest.go
	}

	// --- Document Management ---
	docsCmd = &cobra.Command{
		Use:   "docs",
		Short: "Manage documents in the datastore",
	}
	docsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the documents in the datastore",
		Run:   runListDocuments, // Defined in cmd_docs.go
	}
	docsDeleteCmd = &cobra.Command{
		Use:   "delete [document_id]",
		Short: "Delete a document from the datastore",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteDocument, // Defined in cmd_docs.go
	}

	// --- Session Management ---
	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Manage recorded chat sessions",
	}
	sessionsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List recorded chat sessions",
		Run:   runListSessions, // Defined in cmd_sessions.go
	}
	sessionsDeleteCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a recorded chat session",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession, // Defined in cmd_sessions.go
	}

	// --- Utilities ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check the health of the miras backend",
		Run:   runHealthCommand, // Defined in cmd_health.go
	}
	verifyCmd = &cobra.Command{
		Use:   "verify [transcript file]",
		Short: "Verify the hash chain of a saved session transcript",
		Long: `Recomputes the event hash chain of a transcript saved by the chat
				command and reports whether any event was altered after the fact.`,
		Args: cobra.ExactArgs(1),
		Run:  runVerifyCommand, // Defined in cmd_verify.go
	}
)

// init runs when the Go program starts
func init() {
	// Global UX personality flag
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default, rich nautical), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&resumeSessionID, "resume", "", "Resume a conversation using a specific session ID.")
	chatCmd.Flags().BoolVar(&validateAnswers, "validate", true, "Fact-check every answer against its sources")

	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&conversationID, "conversation", "", "Continue an existing conversation by ID")

	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchSessionID, "session", "", "Continue an existing backend session by ID")

	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&noThinking, "no-thinking", false, "Hide the model's reasoning stream during extraction")
	ingestCmd.Flags().BoolVar(&skipUpload, "skip-upload", false, "Extract and save locally without uploading")
	ingestCmd.Flags().BoolVar(&noScan, "no-scan", false, "Skip the sensitive-data scan before upload")
	ingestCmd.Flags().BoolVar(&forceUpload, "force", false, "Upload even if the scan finds sensitive data")

	rootCmd.AddCommand(docsCmd)
	docsCmd.AddCommand(docsListCmd)
	docsListCmd.Flags().IntVar(&docsLimit, "limit", 50, "Maximum number of documents to list")
	docsListCmd.Flags().StringVar(&docsCursor, "cursor", "", "Pagination cursor from a previous listing")
	docsCmd.AddCommand(docsDeleteCmd)

	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "Maximum number of sessions to list")
	sessionsListCmd.Flags().BoolVar(&activeOnly, "active", false, "Only list sessions that are still active")
	sessionsCmd.AddCommand(sessionsDeleteCmd)

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(verifyCmd)
}
