// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// PhaseType identifies a stage of the server's search pipeline as it
// appears on the wire.
type PhaseType string

const (
	PhaseSearch             PhaseType = "search"
	PhaseSynthesis          PhaseType = "synthesis"
	PhaseSessionCreated     PhaseType = "session_created"
	PhaseSessionContinued   PhaseType = "session_continued"
	PhaseAnswer             PhaseType = "answer"
	PhaseCitations          PhaseType = "citations"
	PhaseValidationStart    PhaseType = "validation_start"
	PhaseValidationThinking PhaseType = "validation_thinking"
	PhaseValidationComplete PhaseType = "validation_complete"
	PhaseComplete           PhaseType = "complete"
	PhaseError              PhaseType = "error"
)

// CitationInfo is one resolved citation from the server. Number and
// Page are strings on the wire; page may be "N/A" when the source
// retrieval carried no page.
type CitationInfo struct {
	Number  string `json:"number"`
	DocName string `json:"doc_name"`
	Page    string `json:"page"`
}

// FactCheckInfo is one claim verdict from answer validation.
type FactCheckInfo struct {
	Fact      string `json:"fact"`
	Verified  bool   `json:"verified"`
	PageFound string `json:"page_found"`
}

// ValidationInfo is the full validation report from the server.
type ValidationInfo struct {
	QueryAnswered   bool            `json:"query_answered"`
	FactsChecked    []FactCheckInfo `json:"facts_checked"`
	AccuracyScore   int             `json:"accuracy_score"`
	VerifiedFacts   int             `json:"verified_facts"`
	TotalFacts      int             `json:"total_facts"`
	OverallAccuracy string          `json:"overall_accuracy"`
}

// PhaseFrame is a single server-sent frame of the search stream.
type PhaseFrame struct {
	Phase      PhaseType       `json:"phase"`
	Content    string          `json:"content,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Citations  []CitationInfo  `json:"citations,omitempty"`
	Validation *ValidationInfo `json:"validation,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// PhaseResult contains the complete result of processing a search stream.
type PhaseResult struct {
	Answer     string
	SessionID  string
	Citations  []CitationInfo
	Validation *ValidationInfo
}

// PhaseStreamProcessor consumes a phase-framed SSE response.
type PhaseStreamProcessor interface {
	// Process reads frames until the stream completes or errors.
	// Returns the accumulated answer plus any citations, session ID,
	// and validation report the server delivered.
	Process(reader io.Reader) (*PhaseResult, error)
}

// phaseProcessor implements PhaseStreamProcessor for the server's
// data-only SSE format.
type phaseProcessor struct {
	writer      io.Writer
	personality PersonalityLevel
	spinner     *Spinner
	answer      strings.Builder
	citations   []CitationInfo
	validation  *ValidationInfo
	sessionID   string
}

// NewPhaseStreamProcessor creates a processor writing to stdout.
func NewPhaseStreamProcessor() PhaseStreamProcessor {
	return &phaseProcessor{
		writer:      os.Stdout,
		personality: GetPersonality().Level,
	}
}

// NewPhaseStreamProcessorWithWriter creates a processor with a custom
// writer (for testing).
func NewPhaseStreamProcessorWithWriter(w io.Writer, personality PersonalityLevel) PhaseStreamProcessor {
	return &phaseProcessor{
		writer:      w,
		personality: personality,
	}
}

// Process reads and renders a phase stream.
func (p *phaseProcessor) Process(reader io.Reader) (*PhaseResult, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			continue
		}
		// SSE comments are keepalives
		if strings.HasPrefix(line, ":") {
			continue
		}
		line = strings.TrimPrefix(line, "data: ")

		var frame PhaseFrame
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			// Not a frame; ignore rather than corrupt the answer
			continue
		}

		switch frame.Phase {
		case PhaseSearch, PhaseSynthesis, PhaseValidationStart:
			p.handleStatus(frame.Content)
		case PhaseSessionCreated, PhaseSessionContinued:
			p.sessionID = frame.SessionID
			if p.personality == PersonalityMachine {
				fmt.Fprintf(p.writer, "SESSION: %s\n", frame.SessionID)
			}
		case PhaseAnswer:
			p.handleToken(frame.Content)
		case PhaseCitations:
			p.citations = frame.Citations
		case PhaseValidationThinking:
			if p.personality != PersonalityMachine {
				fmt.Fprint(p.writer, Styles.Thinking.Render(frame.Content))
			}
		case PhaseValidationComplete:
			p.validation = frame.Validation
		case PhaseComplete:
			p.finalize()
			return p.result(), nil
		case PhaseError:
			p.finalize()
			return nil, fmt.Errorf("%s", frame.Error)
		}
	}

	if err := scanner.Err(); err != nil {
		p.finalize()
		return nil, err
	}

	// Stream ended without a complete frame; return what we have
	p.finalize()
	return p.result(), nil
}

func (p *phaseProcessor) result() *PhaseResult {
	return &PhaseResult{
		Answer:     p.answer.String(),
		SessionID:  p.sessionID,
		Citations:  p.citations,
		Validation: p.validation,
	}
}

func (p *phaseProcessor) handleStatus(message string) {
	if p.personality == PersonalityMachine {
		fmt.Fprintf(p.writer, "STATUS: %s\n", message)
		return
	}

	if p.spinner == nil {
		p.spinner = NewSpinner(message)
		p.spinner.Start()
	} else {
		p.spinner.UpdateMessage(message)
	}
}

func (p *phaseProcessor) handleToken(token string) {
	// Stop spinner when the first answer token arrives
	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
		if p.personality != PersonalityMachine {
			fmt.Fprintln(p.writer)
		}
	}

	p.answer.WriteString(token)

	if p.personality == PersonalityMachine {
		// In machine mode, buffer until the stream finishes
		return
	}

	fmt.Fprint(p.writer, token)
}

func (p *phaseProcessor) finalize() {
	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
	}

	if p.personality == PersonalityMachine {
		if p.answer.Len() > 0 {
			fmt.Fprintf(p.writer, "ANSWER: %s\n", p.answer.String())
		}
	} else {
		if p.answer.Len() > 0 && !strings.HasSuffix(p.answer.String(), "\n") {
			fmt.Fprintln(p.writer)
		}
	}
}
