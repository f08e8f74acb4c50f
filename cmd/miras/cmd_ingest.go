// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/miras/cmd/miras/config"
	"github.com/AleutianAI/miras/pkg/ux"
	"github.com/AleutianAI/miras/services/artifacts"
	"github.com/AleutianAI/miras/services/contextual"
	"github.com/AleutianAI/miras/services/ingestion"
	"github.com/AleutianAI/miras/services/llm"
	"github.com/AleutianAI/miras/services/scanner"
	"github.com/spf13/cobra"
)

// runIngestCommand extracts a PDF through the LLM, scans the result
// for sensitive data, and uploads it to the datastore.
func runIngestCommand(cmd *cobra.Command, args []string) {
	filePath := args[0]

	ctx, cancel := signalContext()
	defer cancel()

	model, err := llm.NewFromEnv(ctx)
	if err != nil {
		log.Fatalf("Failed to create the LLM backend: %v", err)
	}
	fc, ok := model.(llm.FileCapable)
	if !ok {
		log.Fatalf("The configured LLM backend cannot read files; set LLM_BACKEND_TYPE=gemini")
	}

	store, err := artifacts.NewStore(extractedDir())
	if err != nil {
		log.Fatalf("Failed to open the artifact store: %v", err)
	}
	defer store.Close()

	processor := ingestion.NewProcessor(fc, store)

	// Stream the model's reasoning while it reads the document, or
	// fall back to a spinner when thinking output is suppressed.
	showThinking := ux.ShouldShowThinking() && !noThinking
	var spinner *ux.Spinner
	var onThinking func(string)
	if showThinking {
		onThinking = func(text string) { ux.Thinking(text) }
	} else {
		spinner = ux.NewSpinner(fmt.Sprintf("Extracting %s...", filepath.Base(filePath)))
		spinner.Start()
	}

	extract, err := processor.ProcessPDF(ctx, filePath, onThinking)
	if showThinking {
		fmt.Println()
	}
	if err != nil {
		if spinner != nil {
			spinner.StopWithError("Extraction failed")
		}
		log.Fatalf("Extraction error: %v", err)
	}
	if spinner != nil {
		spinner.StopWithSuccess("Extraction complete")
	}

	displayMetadata(extract.Metadata)
	if extract.ContentPath != "" {
		ux.Info(fmt.Sprintf("Extraction saved to %s", extract.ContentPath))
	}

	if skipUpload {
		return
	}

	content := extract.Content
	if !noScan && config.Global.Ingest.ScanUploads {
		scanned, proceed, err := scanForSecrets(filePath, content, forceUpload)
		if err != nil {
			log.Fatalf("Secret scan error: %v", err)
		}
		if !proceed {
			ux.FileStatus(filePath, ux.IconWarning, "upload skipped")
			return
		}
		content = scanned
	}

	client, err := contextual.NewClientFromEnv()
	if err != nil {
		log.Fatalf("Failed to create the platform client: %v", err)
	}
	if !client.HasDatastore() {
		log.Fatalf("CONTEXTUAL_DATASTORE_ID is not set; cannot upload")
	}

	upSpinner := ux.NewSpinner("Uploading to the datastore...")
	upSpinner.Start()
	results, err := client.UploadDocument(ctx, content, contextual.UploadMetadata{
		Title:       extract.Metadata.Title,
		Author:      extract.Metadata.Author,
		Date:        extract.Metadata.Date,
		Description: extract.Metadata.Summary,
	})
	if err != nil {
		upSpinner.StopWithError("Upload failed")
		log.Fatalf("Upload error: %v", err)
	}
	upSpinner.StopWithSuccess(fmt.Sprintf("Uploaded %d document(s)", len(results)))

	// Poll every part to a terminal status before printing verdicts, so
	// the spinner and the status lines don't fight over the terminal.
	pollSpinner := ux.NewProgressSpinner("Waiting for ingestion", len(results))
	pollSpinner.Start()
	statuses := make([]string, len(results))
	for i, result := range results {
		statuses[i] = client.WaitForIngestion(ctx, result.DocumentID)
		pollSpinner.Increment()
	}
	pollSpinner.Stop()

	for i, result := range results {
		icon := ux.IconSuccess
		if statuses[i] != "completed" {
			icon = ux.IconWarning
		}
		ux.FileStatus(result.Title, icon, statuses[i])
	}
}

// scanForSecrets checks extracted content for sensitive data before
// upload. Returns the content to upload, possibly redacted, and
// whether the upload should proceed.
func scanForSecrets(filePath, content string, force bool) (string, bool, error) {
	s, err := scanner.NewScanner()
	if err != nil {
		return "", false, fmt.Errorf("failed to load the scan rules: %w", err)
	}

	findings := s.ScanContent(content)
	if len(findings) == 0 {
		return content, true, nil
	}

	if force {
		ux.Warning(fmt.Sprintf("Uploading despite %d sensitive-data findings (--force)", len(findings)))
		return content, true, nil
	}

	action, err := ux.PromptForSecretAction(ux.SecretPromptOptions{
		FilePath:      filePath,
		ShowRedact:    true,
		ShowForceSkip: true,
		Findings:      toSecretFindings(findings),
	})
	if err != nil {
		return "", false, err
	}

	switch action {
	case ux.SecretActionRedact:
		return s.Redact(content, findings), true, nil
	case ux.SecretActionProceed:
		return content, true, nil
	}
	return "", false, nil
}

// toSecretFindings converts scanner findings for prompt display.
func toSecretFindings(findings []scanner.Finding) []ux.SecretFinding {
	out := make([]ux.SecretFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, ux.SecretFinding{
			LineNumber:  f.LineNumber,
			PatternID:   f.RuleId,
			PatternName: f.RuleName,
			Confidence:  strings.ToUpper(string(f.Confidence)),
			Match:       f.Match,
			Reason:      f.Reason,
		})
	}
	return out
}

// displayMetadata renders the extracted document metadata.
func displayMetadata(meta ingestion.Metadata) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Title: %s\n", meta.Title))
	b.WriteString(fmt.Sprintf("Type: %s\n", meta.Type))
	if meta.Author != "" {
		b.WriteString(fmt.Sprintf("Author: %s\n", meta.Author))
	}
	if meta.Date != "" {
		b.WriteString(fmt.Sprintf("Date: %s\n", meta.Date))
	}
	if len(meta.Topics) > 0 {
		b.WriteString(fmt.Sprintf("Topics: %s\n", strings.Join(meta.Topics, ", ")))
	}
	if meta.Summary != "" {
		b.WriteString(fmt.Sprintf("Summary: %s\n", meta.Summary))
	}
	b.WriteString(fmt.Sprintf("Size: %.2f MB", meta.SizeMB))
	ux.Box("Document Metadata", b.String())
}
