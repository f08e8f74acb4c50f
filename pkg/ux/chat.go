// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// HeaderConfig groups the parameters for the chat header so new
// fields can be added without breaking Header callers.
type HeaderConfig struct {
	// Agent is the id of the agent answering queries.
	Agent string

	// Datastore is the document collection grounding the answers.
	Datastore string

	// SessionID is set when resuming an existing session.
	SessionID string

	// Validation reports whether answers are fact-checked against
	// their sources.
	Validation bool

	// Stats carries optional corpus statistics for the datastore.
	Stats *DatastoreStats
}

// DatastoreStats summarizes the document corpus shown in the chat
// header.
type DatastoreStats struct {
	DocumentCount int   `json:"document_count"`
	LastUpdatedAt int64 `json:"last_updated_at"` // Unix ms
}

// SessionStats accumulates metrics across a chat session for the
// end-of-session summary.
type SessionStats struct {
	// MessageCount is the number of user messages sent.
	MessageCount int

	// TotalTokens counts token events across all responses.
	TotalTokens int

	// ThinkingTokens counts validation reasoning events.
	ThinkingTokens int

	// SourcesUsed is the number of sources referenced.
	SourcesUsed int

	// Duration is the total session wall time.
	Duration time.Duration

	// FirstResponseLatency is the time to the first token of the
	// first response.
	FirstResponseLatency time.Duration

	// AverageResponseTime is the mean time per response.
	AverageResponseTime time.Duration

	// Integrity holds the transcript chain verification, when the
	// session kept a transcript.
	Integrity *IntegrityInfo
}

// SourceInfo is one retrieved document citation.
//
// Each source carries its own id and timestamp so citations can be
// persisted for audit alongside the events that produced them.
type SourceInfo struct {
	// Id uniquely identifies this citation record.
	Id string `json:"id,omitempty"`

	// CreatedAt is when the source was retrieved, in Unix ms.
	CreatedAt int64 `json:"created_at,omitempty"`

	// Source is the document name or path.
	Source string `json:"source"`

	// Page is the 1-based page the passage came from, 0 if unknown.
	Page int `json:"page,omitempty"`

	// Score is the retrieval relevance, higher is better.
	Score float64 `json:"score,omitempty"`

	// Hash fingerprints the retrieved content for tamper detection.
	Hash string `json:"hash,omitempty"`
}

// ChatUI renders the interactive chat surface. Implementations adapt
// their output to the active personality level.
type ChatUI interface {
	// Header displays the session header.
	Header(config HeaderConfig)

	// Prompt returns the styled input prompt string.
	Prompt() string

	// Response displays the assistant's answer.
	Response(answer string)

	// Sources displays the citations behind the last answer.
	Sources(sources []SourceInfo)

	// NoSources notes that retrieval found nothing.
	NoSources()

	// Error displays a chat error.
	Error(err error)

	// SessionResume announces a resumed session.
	SessionResume(sessionID string, turnCount int)

	// SessionEnd displays a plain goodbye.
	SessionEnd(sessionID string)

	// SessionEndRich displays the full session summary: statistics,
	// transcript integrity, and how to resume later. Falls back to
	// SessionEnd when stats is nil.
	SessionEndRich(sessionID string, stats *SessionStats)
}

// terminalChatUI implements ChatUI for terminal output.
type terminalChatUI struct {
	writer      io.Writer
	personality PersonalityLevel
}

// write ignores write errors; there is no recovery for a broken
// terminal.
func (u *terminalChatUI) write(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(u.writer, format, args...); err != nil {
		return
	}
}

func (u *terminalChatUI) writeln(args ...interface{}) {
	if _, err := fmt.Fprintln(u.writer, args...); err != nil {
		return
	}
}

// NewChatUI creates a terminal ChatUI on stdout with the active
// personality.
func NewChatUI() ChatUI {
	return &terminalChatUI{
		writer:      os.Stdout,
		personality: GetPersonality().Level,
	}
}

// NewChatUIWithWriter creates a ChatUI with a custom writer, used in
// tests.
func NewChatUIWithWriter(w io.Writer, personality PersonalityLevel) ChatUI {
	return &terminalChatUI{
		writer:      w,
		personality: personality,
	}
}

func (u *terminalChatUI) Header(config HeaderConfig) {
	switch u.personality {
	case PersonalityMachine:
		u.headerMachine(config)
	case PersonalityMinimal:
		u.headerMinimal(config)
	default:
		u.headerFull(config)
	}
}

func (u *terminalChatUI) headerMachine(config HeaderConfig) {
	parts := []string{fmt.Sprintf("agent=%s datastore=%s", config.Agent, config.Datastore)}
	if config.Validation {
		parts = append(parts, "validation=on")
	} else {
		parts = append(parts, "validation=off")
	}
	if config.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", config.SessionID))
	}
	if config.Stats != nil {
		parts = append(parts, fmt.Sprintf("doc_count=%d", config.Stats.DocumentCount))
		if config.Stats.LastUpdatedAt > 0 {
			parts = append(parts, fmt.Sprintf("last_updated=%d", config.Stats.LastUpdatedAt))
		}
	}
	u.write("CHAT_START: %s\n", strings.Join(parts, " "))
}

func (u *terminalChatUI) headerMinimal(config HeaderConfig) {
	u.write("Grounded Chat (agent: %s)\n", config.Agent)
	if config.Datastore != "" {
		if config.Stats != nil {
			u.write("Datastore: %s (%d docs)\n", config.Datastore, config.Stats.DocumentCount)
		} else {
			u.write("Datastore: %s\n", config.Datastore)
		}
	}
	if config.Validation {
		u.writeln("Validation: on")
	}
	u.writeln("Type 'exit' to end.")
}

func (u *terminalChatUI) headerFull(config HeaderConfig) {
	var content strings.Builder
	content.WriteString(Styles.Highlight.Render("Grounded Chat"))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("Agent: %s", Styles.Success.Render(config.Agent)))

	if config.Datastore != "" {
		content.WriteString("\n")
		if config.Stats != nil {
			// "Datastore: contracts (142 docs, updated 2h ago)"
			statsInfo := fmt.Sprintf("%d docs", config.Stats.DocumentCount)
			if config.Stats.LastUpdatedAt > 0 {
				statsInfo = fmt.Sprintf("%s, updated %s", statsInfo, formatRelativeTime(config.Stats.LastUpdatedAt))
			}
			content.WriteString(fmt.Sprintf("Datastore: %s %s",
				Styles.Success.Render(config.Datastore),
				Styles.Muted.Render(fmt.Sprintf("(%s)", statsInfo))))
		} else {
			content.WriteString(fmt.Sprintf("Datastore: %s", Styles.Success.Render(config.Datastore)))
		}
	}

	content.WriteString("\nValidation: ")
	if config.Validation {
		content.WriteString(Styles.Success.Render("on"))
	} else {
		content.WriteString(Styles.Muted.Render("off"))
	}

	if config.SessionID != "" {
		content.WriteString("\n")
		content.WriteString(fmt.Sprintf("Session: %s", Styles.Muted.Render(config.SessionID)))
	}

	boxStyle := Styles.Box.Width(60)
	u.writeln(boxStyle.Render(content.String()))
	u.writeln()
	u.writeln(Styles.Muted.Render("Type 'exit' to end, 'reset' to start over, 'validate on|off' to toggle checking."))
	u.writeln()
}

func (u *terminalChatUI) Prompt() string {
	if u.personality == PersonalityMachine {
		return "> "
	}
	return Styles.Highlight.Render("> ")
}

func (u *terminalChatUI) Response(answer string) {
	if u.personality == PersonalityMachine {
		u.write("RESPONSE: %s\n", answer)
		return
	}
	u.writeln()
	u.writeln(answer)
}

func (u *terminalChatUI) Sources(sources []SourceInfo) {
	if len(sources) == 0 {
		return
	}

	if u.personality == PersonalityMachine {
		for _, src := range sources {
			switch {
			case src.Page > 0 && src.Score != 0:
				u.write("SOURCE: %s page=%d score=%.4f\n", src.Source, src.Page, src.Score)
			case src.Score != 0:
				u.write("SOURCE: %s score=%.4f\n", src.Source, src.Score)
			case src.Page > 0:
				u.write("SOURCE: %s page=%d\n", src.Source, src.Page)
			default:
				u.write("SOURCE: %s\n", src.Source)
			}
		}
		return
	}

	u.writeln()
	if u.personality == PersonalityMinimal {
		u.writeln("Sources:")
		for i, src := range sources {
			u.write("  %d. %s\n", i+1, src.Source)
		}
		return
	}

	var content strings.Builder
	for i, src := range sources {
		content.WriteString(fmt.Sprintf("%d. %s", i+1, truncate(src.Source, 50)))
		if meta := sourceMeta(src); meta != "" {
			content.WriteString("\n   " + Styles.Muted.Render(meta))
		}
		if i < len(sources)-1 {
			content.WriteString("\n")
		}
	}

	boxStyle := Styles.InfoBox.Width(60)
	titleLine := Styles.Subtitle.Render("Sources")
	u.writeln(boxStyle.Render(titleLine + "\n" + content.String()))
}

// sourceMeta formats the page and relevance line shown under each
// citation, empty when neither is known.
func sourceMeta(src SourceInfo) string {
	switch {
	case src.Page > 0 && src.Score != 0:
		return fmt.Sprintf("Page: %d | Relevance: %.2f%%", src.Page, src.Score*100)
	case src.Score != 0:
		return fmt.Sprintf("Relevance: %.2f%%", src.Score*100)
	case src.Page > 0:
		return fmt.Sprintf("Page: %d", src.Page)
	}
	return ""
}

func (u *terminalChatUI) NoSources() {
	if u.personality == PersonalityMachine {
		u.writeln("SOURCES: none")
		return
	}
	if u.personality != PersonalityMinimal {
		u.writeln(Styles.Muted.Render("(No sources from the datastore)"))
	}
}

func (u *terminalChatUI) Error(err error) {
	if u.personality == PersonalityMachine {
		u.write("CHAT_ERROR: %v\n", err)
		return
	}
	u.write("%s %s\n", IconError.Render(), Styles.Error.Render(fmt.Sprintf("Chat error: %v", err)))
}

func (u *terminalChatUI) SessionResume(sessionID string, turnCount int) {
	if u.personality == PersonalityMachine {
		u.write("SESSION_RESUME: session=%s turns=%d\n", sessionID, turnCount)
		return
	}
	u.write("%s %s\n", IconSuccess.Render(),
		Styles.Success.Render(fmt.Sprintf("Resumed session %s (%d previous turns)", sessionID, turnCount)))
}

func (u *terminalChatUI) SessionEnd(sessionID string) {
	if u.personality == PersonalityMachine {
		u.write("CHAT_END: session=%s\n", sessionID)
		return
	}
	if sessionID != "" {
		u.writeln(Styles.Muted.Render(fmt.Sprintf("Session: %s", sessionID)))
	}
	u.writeln("Goodbye!")
}

// SessionEndRich displays the full session summary.
//
// # Description
//
// Renders session statistics, the transcript integrity line when a
// chain was kept, and the command to resume the session later. This
// is the closing screen of an interactive chat; SessionEnd covers
// the cases where no stats were accumulated.
//
// # Inputs
//
//   - sessionID: the session identifier, may be empty
//   - stats: accumulated statistics, nil falls back to SessionEnd
func (u *terminalChatUI) SessionEndRich(sessionID string, stats *SessionStats) {
	if stats == nil {
		u.SessionEnd(sessionID)
		return
	}

	switch u.personality {
	case PersonalityMachine:
		u.sessionEndRichMachine(sessionID, stats)
	case PersonalityMinimal:
		u.sessionEndRichMinimal(sessionID, stats)
	default:
		u.sessionEndRichFull(sessionID, stats)
	}
}

func (u *terminalChatUI) sessionEndRichMachine(sessionID string, stats *SessionStats) {
	line := fmt.Sprintf("CHAT_END: session=%s messages=%d tokens=%d duration=%s",
		sessionID, stats.MessageCount, stats.TotalTokens, stats.Duration.Round(time.Millisecond))
	if stats.Integrity != nil {
		if stats.Integrity.IntegrityVerified {
			line += " integrity=verified"
		} else {
			line += " integrity=failed"
		}
	}
	u.write("%s\n", line)
}

func (u *terminalChatUI) sessionEndRichMinimal(sessionID string, stats *SessionStats) {
	u.writeln()
	if sessionID != "" {
		u.write("Session: %s\n", sessionID)
	}
	u.write("Messages: %d | Tokens: %d | Duration: %s\n",
		stats.MessageCount, stats.TotalTokens, formatDuration(stats.Duration))
	if stats.Integrity != nil {
		u.write("Integrity: %s\n", stats.Integrity.FormatForDisplay())
	}
	u.writeln("Goodbye!")
}

func (u *terminalChatUI) sessionEndRichFull(sessionID string, stats *SessionStats) {
	u.writeln()

	var content strings.Builder

	content.WriteString(Styles.Subtitle.Render("Session Summary"))
	content.WriteString("\n\n")

	if sessionID != "" {
		content.WriteString(fmt.Sprintf("  %s  %s\n",
			Styles.Muted.Render("ID:"),
			Styles.Highlight.Render(sessionID)))
	}

	content.WriteString("\n")
	content.WriteString(Styles.Subtitle.Render("Statistics"))
	content.WriteString("\n\n")

	content.WriteString(fmt.Sprintf("  %s  %d messages exchanged\n",
		IconChat.Render(), stats.MessageCount))
	content.WriteString(fmt.Sprintf("  %s  %d tokens generated\n",
		IconInfo.Render(), stats.TotalTokens))

	if stats.ThinkingTokens > 0 {
		content.WriteString(fmt.Sprintf("  %s  %d validation thinking tokens\n",
			Styles.Muted.Render("🧠"), stats.ThinkingTokens))
	}

	if stats.SourcesUsed > 0 {
		content.WriteString(fmt.Sprintf("  %s  %d sources referenced\n",
			IconDocument.Render(), stats.SourcesUsed))
	}

	content.WriteString(fmt.Sprintf("  %s  %s session duration\n",
		IconTime.Render(), formatDuration(stats.Duration)))

	if stats.FirstResponseLatency > 0 {
		content.WriteString(fmt.Sprintf("  %s  %s time to first response\n",
			Styles.Muted.Render("⚡"), formatDuration(stats.FirstResponseLatency)))
	}

	if stats.Integrity != nil {
		content.WriteString(fmt.Sprintf("  %s  %s\n",
			Styles.Muted.Render("🔒"), stats.Integrity.FormatForDisplay()))
	}

	if sessionID != "" {
		content.WriteString("\n")
		content.WriteString(Styles.Subtitle.Render("Continue Later"))
		content.WriteString("\n\n")
		content.WriteString(fmt.Sprintf("  %s\n",
			Styles.Muted.Render("Resume this session:")))
		content.WriteString(fmt.Sprintf("  %s\n",
			Styles.Success.Render(fmt.Sprintf("miras chat --resume %s", sessionID))))
	}

	// Width 68 fits the resume command with a full UUID.
	boxStyle := Styles.Box.Width(68)
	u.writeln(boxStyle.Render(content.String()))
	u.writeln()
	u.writeln(Styles.Highlight.Render("Goodbye! 👋"))
}

// formatDuration renders a duration at a precision matched to its
// magnitude.
//
//	formatDuration(500*time.Millisecond) // "500ms"
//	formatDuration(5*time.Second)        // "5.0s"
//	formatDuration(90*time.Second)       // "1m 30s"
//	formatDuration(2*time.Hour)          // "2h 0m"
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// formatRelativeTime renders a Unix ms timestamp as "2h ago", "3 days
// ago", and so on. Times beyond a month show the date instead.
func formatRelativeTime(unixMs int64) string {
	if unixMs == 0 {
		return "unknown"
	}

	t := time.UnixMilli(unixMs)
	diff := time.Since(t)

	if diff < time.Minute {
		return "just now"
	}
	if diff < time.Hour {
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	}
	if diff < 24*time.Hour {
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	}
	if diff < 7*24*time.Hour {
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
	if diff < 30*24*time.Hour {
		weeks := int(diff.Hours() / (24 * 7))
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	}

	return t.Format("Jan 2, 2006")
}

// Convenience functions over a shared default ChatUI.

var defaultChatUI ChatUI

func getDefaultChatUI() ChatUI {
	if defaultChatUI == nil {
		defaultChatUI = NewChatUI()
	}
	return defaultChatUI
}

// ChatHeader prints the chat session header.
func ChatHeader(config HeaderConfig) {
	getDefaultChatUI().Header(config)
}

// ChatSources prints the citations behind a response.
func ChatSources(sources []SourceInfo) {
	getDefaultChatUI().Sources(sources)
}

// ChatPrompt returns the styled prompt string.
func ChatPrompt() string {
	return getDefaultChatUI().Prompt()
}

// ChatResponse prints the assistant's answer.
func ChatResponse(answer string) {
	getDefaultChatUI().Response(answer)
}

// ChatError prints a chat error.
func ChatError(err error) {
	getDefaultChatUI().Error(err)
}

// ChatSessionResume prints session resume info.
func ChatSessionResume(sessionID string, turnCount int) {
	getDefaultChatUI().SessionResume(sessionID, turnCount)
}

// ChatSessionEnd prints session end info.
func ChatSessionEnd(sessionID string) {
	getDefaultChatUI().SessionEnd(sessionID)
}

// ChatNoSources prints a note when retrieval found nothing.
func ChatNoSources() {
	getDefaultChatUI().NoSources()
}
