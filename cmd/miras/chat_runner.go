// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/miras/pkg/ux"
	"github.com/AleutianAI/miras/services/contextual"
	"github.com/AleutianAI/miras/services/factcheck"
)

// maxChatSources caps how many citations the chat loop displays per
// answer. The upstream platform can return dozens; the first five
// carry nearly all of the relevance mass.
const maxChatSources = 5

// =============================================================================
// Service Layer
// =============================================================================

// queryService abstracts the upstream query transport so the chat loop
// can be tested without a network.
//
// # Description
//
// A queryService owns one conversation: it sends messages, remembers
// the conversation ID the platform assigned, and exposes the
// retrievals behind the most recent answer. Implementations render
// their own streaming output; the runner only displays sources and
// session bookkeeping afterwards.
//
// # Limitations
//
//   - Not safe for concurrent SendMessage calls
//
// # Assumptions
//
//   - Callers check LastRetrievals only after a successful SendMessage
type queryService interface {
	// SendMessage sends one user message and streams the answer to the
	// terminal. Returns the aggregated result once the stream ends.
	SendMessage(ctx context.Context, message string) (*ux.StreamResult, error)

	// ConversationID returns the platform-assigned conversation ID,
	// empty until the first answer arrives.
	ConversationID() string

	// LastRetrievals returns the citations behind the most recent
	// answer, in the order the platform returned them.
	LastRetrievals() []contextual.Retrieval

	// Reset abandons the current conversation so the next message
	// starts a fresh one. The transcript chain is preserved.
	Reset()

	// Transcript returns the hash-chained event log of the whole
	// session, across resets.
	Transcript() []ux.StreamEvent
}

// answerValidator fact-checks an answer against its sources. Satisfied
// by *factcheck.Validator.
type answerValidator interface {
	ValidateStream(ctx context.Context, query, answer string, sources []contextual.Retrieval, fn factcheck.Callback) error
}

// upstreamQueryService is the production queryService backed by the
// managed RAG platform.
//
// # Description
//
// Each SendMessage drives a TerminalStreamRenderer: a status spinner
// while retrieval runs, then tokens as they arrive. Sources are not
// rendered during the stream; the runner displays them afterwards so
// they appear under the complete answer. Every event is also appended
// to a hash-chained transcript for later verification.
//
// # Limitations
//
//   - One in-flight message at a time
type upstreamQueryService struct {
	client         *contextual.Client
	out            io.Writer
	personality    ux.PersonalityLevel
	conversationID string
	retrievals     []contextual.Retrieval
	transcript     []ux.StreamEvent
}

// NewUpstreamQueryService creates a service for one chat session.
// resumeID continues an existing conversation; empty starts fresh. A
// nil writer defaults to os.Stdout.
func NewUpstreamQueryService(client *contextual.Client, resumeID string, out io.Writer) *upstreamQueryService {
	if out == nil {
		out = os.Stdout
	}
	return &upstreamQueryService{
		client:         client,
		out:            out,
		personality:    ux.GetPersonality().Level,
		conversationID: resumeID,
	}
}

// SendMessage streams one exchange with the platform.
//
// # Description
//
// Sends the message on the current conversation and renders the
// response in real time. The conversation ID reported by the first
// metadata event is kept for all later messages. Retrieval and token
// events are mirrored into the transcript chain; the terminal event
// ("done" on success, "error" on failure) seals the turn.
//
// # Inputs
//
//   - ctx: Context for cancellation
//   - message: User's input message, non-empty
//
// # Outputs
//
//   - *ux.StreamResult: Aggregated stream metrics, never nil
//   - error: Non-nil if the stream failed
func (s *upstreamQueryService) SendMessage(ctx context.Context, message string) (*ux.StreamResult, error) {
	renderer := ux.NewTerminalStreamRenderer(s.out, s.personality)
	defer renderer.Finalize()

	s.retrievals = nil

	renderer.OnStatus(ctx, "Searching documents...")
	s.transcript = ux.AppendChained(s.transcript, ux.NewStatusEvent("Searching documents..."))

	req := contextual.QueryRequest{
		Query:          message,
		ConversationID: s.conversationID,
	}
	err := s.client.QueryStream(ctx, req, func(ev *contextual.UpstreamEvent) error {
		switch ev.Type {
		case contextual.EventMetadata:
			// First valid ID wins; the platform repeats it on every
			// metadata frame.
			if s.conversationID == "" && contextual.ValidConversationID(ev.ConversationID) {
				s.conversationID = ev.ConversationID
			}
		case contextual.EventMessageDelta:
			renderer.OnToken(ctx, ev.Delta)
			s.transcript = ux.AppendChained(s.transcript, ux.NewTokenEvent(ev.Delta))
		case contextual.EventRetrievals:
			s.retrievals = append(s.retrievals, ev.Retrievals...)
			s.transcript = ux.AppendChained(s.transcript, ux.NewSourcesEvent(sourceInfos(ev.Retrievals, 0)))
		}
		return nil
	})
	if err != nil {
		renderer.OnError(ctx, err)
		renderer.Finalize()
		s.transcript = ux.AppendChained(s.transcript, ux.NewErrorEvent(err.Error()))
		return renderer.Result(), err
	}

	renderer.OnDone(ctx, s.conversationID)
	renderer.Finalize()
	s.transcript = ux.AppendChained(s.transcript, ux.NewDoneEvent(s.conversationID))

	result := renderer.Result()
	result.Sources = sourceInfos(s.retrievals, 0)
	return result, nil
}

func (s *upstreamQueryService) ConversationID() string {
	return s.conversationID
}

func (s *upstreamQueryService) LastRetrievals() []contextual.Retrieval {
	return s.retrievals
}

// Reset forgets the conversation but keeps the transcript chain so
// one session file covers the whole terminal session.
func (s *upstreamQueryService) Reset() {
	s.conversationID = ""
	s.retrievals = nil
}

func (s *upstreamQueryService) Transcript() []ux.StreamEvent {
	return s.transcript
}

// sourceInfos converts upstream retrievals into display citations.
// limit > 0 caps the result; 0 keeps everything. Page numbers that do
// not parse as integers are left at zero.
func sourceInfos(retrievals []contextual.Retrieval, limit int) []ux.SourceInfo {
	if limit > 0 && len(retrievals) > limit {
		retrievals = retrievals[:limit]
	}
	infos := make([]ux.SourceInfo, 0, len(retrievals))
	for _, r := range retrievals {
		page, _ := strconv.Atoi(string(r.Page))
		infos = append(infos, ux.SourceInfo{
			Source: r.DocName,
			Page:   page,
			Score:  r.Score,
		})
	}
	return infos
}

// =============================================================================
// Input Handling
// =============================================================================

// InputReader abstracts line-oriented user input so the chat loop can
// be driven by tests.
type InputReader interface {
	// ReadLine reads a single line, trimmed of surrounding whitespace.
	// Returns io.EOF when input is exhausted.
	ReadLine() (string, error)
}

// StdinReader implements InputReader on os.Stdin.
type StdinReader struct {
	reader *bufio.Reader
}

// NewStdinReader creates a StdinReader ready for reading user input.
func NewStdinReader() *StdinReader {
	return &StdinReader{
		reader: bufio.NewReader(os.Stdin),
	}
}

// ReadLine reads until newline and returns the trimmed result. Blocks
// until input is available or stdin is closed.
func (r *StdinReader) ReadLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// isExitCommand checks if the input is an exit command. Case-sensitive;
// input is assumed already trimmed.
func isExitCommand(input string) bool {
	return input == "exit" || input == "quit"
}

// =============================================================================
// Chat Runner
// =============================================================================

// ChatRunnerConfig carries the dependencies for a chat session.
type ChatRunnerConfig struct {
	// Service sends messages and tracks the conversation. Required.
	Service queryService

	// UI renders the chat chrome. Defaults to the terminal UI.
	UI ux.ChatUI

	// Input supplies user lines. Defaults to stdin.
	Input InputReader

	// Out is where the runner writes prompts. Defaults to os.Stdout.
	Out io.Writer

	// Validator fact-checks answers when validation is on. Nil means
	// validation is unavailable for the whole session.
	Validator answerValidator

	// ValidatorErr explains why Validator is nil, shown once if the
	// user turns validation on.
	ValidatorErr string

	// Validate enables fact-checking from the first message.
	Validate bool

	// Agent and Datastore label the session header.
	Agent     string
	Datastore string

	// ResumeID is the conversation being resumed, empty for a new one.
	ResumeID string

	// TranscriptDir is where the session transcript is saved on exit.
	// Empty disables transcripts.
	TranscriptDir string

	// Stats shows datastore document counts in the header, optional.
	Stats *ux.DatastoreStats
}

// chatRunner drives the interactive loop: read a line, stream the
// answer, show sources, optionally fact-check, repeat.
type chatRunner struct {
	service       queryService
	ui            ux.ChatUI
	input         InputReader
	out           io.Writer
	validator     answerValidator
	validatorErr  string
	validate      bool
	agent         string
	datastore     string
	resumeID      string
	transcriptDir string
	headerStats   *ux.DatastoreStats

	sessionStartTime time.Time
	sessionStats     ux.SessionStats
	uniqueSources    map[string]bool
}

// NewChatRunner creates a runner from the config, filling defaults for
// any omitted collaborator.
func NewChatRunner(cfg ChatRunnerConfig) *chatRunner {
	if cfg.UI == nil {
		cfg.UI = ux.NewChatUI()
	}
	if cfg.Input == nil {
		cfg.Input = NewStdinReader()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &chatRunner{
		service:       cfg.Service,
		ui:            cfg.UI,
		input:         cfg.Input,
		out:           cfg.Out,
		validator:     cfg.Validator,
		validatorErr:  cfg.ValidatorErr,
		validate:      cfg.Validate,
		agent:         cfg.Agent,
		datastore:     cfg.Datastore,
		resumeID:      cfg.ResumeID,
		transcriptDir: cfg.TranscriptDir,
		headerStats:   cfg.Stats,
		uniqueSources: make(map[string]bool),
	}
}

// Run executes the interactive chat loop until exit, EOF, or context
// cancellation.
//
// # Description
//
// Displays the session header, then loops: prompt, read, dispatch.
// Besides chat messages the loop understands a few inline commands:
//
//   - "exit" / "quit": end the session with a summary
//   - "reset": start a fresh conversation
//   - "validate on" / "validate off": toggle fact-checking
//
// Message errors are displayed and the loop continues; only input
// failures and cancellation end the session early.
//
// # Inputs
//
//   - ctx: Context for cancellation. Cancel to trigger graceful shutdown.
//
// # Outputs
//
//   - error: nil on normal exit, context.Canceled on shutdown
func (r *chatRunner) Run(ctx context.Context) error {
	r.sessionStartTime = time.Now()

	r.ui.Header(ux.HeaderConfig{
		Agent:      r.agent,
		Datastore:  r.datastore,
		SessionID:  r.resumeID,
		Validation: r.validate,
		Stats:      r.headerStats,
	})

	for {
		// Check for context cancellation before blocking on input
		select {
		case <-ctx.Done():
			r.endSession()
			return ctx.Err()
		default:
			// Continue to read input
		}

		fmt.Fprint(r.out, r.ui.Prompt())
		input, err := r.input.ReadLine()
		if err != nil {
			if err == io.EOF {
				// Input exhausted (e.g., piped input ended)
				r.endSession()
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		// Skip empty input
		if input == "" {
			continue
		}

		// Check for exit command
		if isExitCommand(input) {
			r.endSession()
			return nil
		}

		if r.handleInlineCommand(input) {
			continue
		}

		// Process the message
		if err := r.handleMessage(ctx, input); err != nil {
			// Check if error is due to context cancellation
			if ctx.Err() != nil {
				r.endSession()
				return ctx.Err()
			}
			// Non-fatal error: display and continue
			r.ui.Error(err)
			continue
		}
	}
}

// handleInlineCommand intercepts session control commands. Returns
// true when the input was a command and the loop should not send it.
func (r *chatRunner) handleInlineCommand(input string) bool {
	switch input {
	case "reset":
		r.service.Reset()
		ux.Success("Conversation reset. The next message starts fresh.")
		return true
	case "validate on":
		if r.validator == nil {
			reason := r.validatorErr
			if reason == "" {
				reason = "no validation backend configured"
			}
			ux.Warning(fmt.Sprintf("Validation is unavailable: %s", reason))
			return true
		}
		r.validate = true
		ux.Success("Validation enabled.")
		return true
	case "validate off":
		r.validate = false
		ux.Success("Validation disabled.")
		return true
	}
	return false
}

// handleMessage processes a single user message.
//
// # Description
//
// Sends the message through the query service, which renders tokens
// in real time. Afterwards the runner displays the citations behind
// the answer, accumulates session statistics, and fact-checks the
// answer when validation is on.
//
// # Inputs
//
//   - ctx: Context for cancellation
//   - message: User's input message, non-empty
//
// # Outputs
//
//   - error: Non-nil if the service call failed
func (r *chatRunner) handleMessage(ctx context.Context, message string) error {
	result, err := r.service.SendMessage(ctx, message)
	if err != nil {
		return err
	}

	// Accumulate session statistics from this exchange
	r.accumulateStats(result)

	retrievals := r.service.LastRetrievals()
	if len(retrievals) == 0 {
		r.ui.NoSources()
	} else {
		r.ui.Sources(sourceInfos(retrievals, maxChatSources))
	}

	if r.validate && r.validator != nil {
		r.runValidation(ctx, message, result.Answer, retrievals)
	}

	fmt.Fprintln(r.out)
	return nil
}

// runValidation fact-checks one answer against its sources.
//
// # Description
//
// Streams the validator's reasoning as thinking output, then renders
// the verdict: per-fact checkmarks and an accuracy score colored by
// severity. Validation failures are warnings, never fatal; an answer
// the user already saw is not withdrawn because the checker broke.
func (r *chatRunner) runValidation(ctx context.Context, query, answer string, sources []contextual.Retrieval) {
	err := r.validator.ValidateStream(ctx, query, answer, sources, func(ev factcheck.Event) error {
		switch ev.Type {
		case factcheck.EventThought:
			r.sessionStats.ThinkingTokens++
			ux.Thinking(factcheck.CleanThinking(ev.Text))
		case factcheck.EventResult:
			r.displayValidationResult(ev.Result)
		case factcheck.EventError:
			ux.Warning(fmt.Sprintf("Validation failed: %v", ev.Err))
		}
		return nil
	})
	if err != nil {
		ux.Warning(fmt.Sprintf("Validation failed: %v", err))
	}
}

// displayValidationResult renders the fact-check verdict.
func (r *chatRunner) displayValidationResult(result *factcheck.Result) {
	if result == nil {
		return
	}

	if ux.GetPersonality().Level == ux.PersonalityMachine {
		fmt.Fprintf(r.out, "VALIDATION: accuracy=%d verified=%d total=%d\n",
			result.AccuracyScore, result.VerifiedFacts, result.TotalFacts)
		for _, fact := range result.FactsChecked {
			fmt.Fprintf(r.out, "FACT: verified=%t %s\n", fact.Verified, fact.Fact)
		}
		return
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, ux.AccuracyStyle(result.AccuracyScore).Render(
		fmt.Sprintf("Accuracy: %d%% (%d of %d facts verified)",
			result.AccuracyScore, result.VerifiedFacts, result.TotalFacts)))
	for _, fact := range result.FactsChecked {
		icon := ux.IconRefuted
		if fact.Verified {
			icon = ux.IconVerified
		}
		line := fmt.Sprintf("  %s %s", icon.Render(), fact.Fact)
		if fact.PageFound != "" && fact.PageFound != "null" {
			line += " " + ux.Styles.Muted.Render(fmt.Sprintf("(page %s)", fact.PageFound))
		}
		fmt.Fprintln(r.out, line)
	}
}

// accumulateStats updates session statistics from a stream result.
func (r *chatRunner) accumulateStats(result *ux.StreamResult) {
	r.sessionStats.MessageCount++
	r.sessionStats.TotalTokens += result.TotalTokens

	// Track unique sources
	for _, src := range result.Sources {
		r.uniqueSources[src.Source] = true
	}
	r.sessionStats.SourcesUsed = len(r.uniqueSources)

	// Track first response latency (only for first message)
	if r.sessionStats.MessageCount == 1 {
		r.sessionStats.FirstResponseLatency = result.TimeToFirstToken()
	}
	if r.sessionStats.MessageCount > 0 {
		r.sessionStats.AverageResponseTime = time.Since(r.sessionStartTime) / time.Duration(r.sessionStats.MessageCount)
	}
}

// endSession finalizes statistics, saves and verifies the transcript,
// and displays the rich session summary.
func (r *chatRunner) endSession() {
	r.sessionStats.Duration = time.Since(r.sessionStartTime)

	events := r.service.Transcript()
	if len(events) > 0 {
		verification := ux.NewFullChainVerifier().Verify(events)
		r.sessionStats.Integrity = ux.NewIntegrityInfoFromVerification(verification)

		if r.transcriptDir != "" {
			if path, err := saveTranscript(r.transcriptDir, r.service.ConversationID(), events); err != nil {
				ux.Warning(fmt.Sprintf("Could not save the transcript: %v", err))
			} else {
				ux.Info(fmt.Sprintf("Transcript saved to %s", path))
			}
		}
	}

	r.ui.SessionEndRich(r.service.ConversationID(), &r.sessionStats)
}

// Close releases runner resources. The runner holds none directly;
// provided for symmetry with service lifecycles.
func (r *chatRunner) Close() error {
	return nil
}

// saveTranscript writes the hash-chained events as JSON lines, one
// event per line, and returns the file path. The file name is the
// conversation ID, or a local timestamp when the session never got
// one.
func saveTranscript(dir, conversationID string, events []ux.StreamEvent) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create the transcript directory: %w", err)
	}

	name := conversationID
	if name == "" {
		name = fmt.Sprintf("local-%d", time.Now().Unix())
	}
	path := filepath.Join(dir, name+".jsonl")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create the transcript file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return "", fmt.Errorf("failed to encode a transcript event: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return "", fmt.Errorf("failed to write the transcript: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush the transcript: %w", err)
	}
	return path, nil
}
