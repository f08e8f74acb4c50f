// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// Tamper-evident event chains.
//
// Each StreamEvent carries a Hash computed from its content and a
// PrevHash linking it to the event before it. Modifying any persisted
// event changes its hash and breaks every link after it, so a saved
// transcript can be proven unaltered long after the stream ended.

// secureHashEqual compares two hash strings in constant time so the
// comparison itself cannot leak how many leading characters match.
func secureHashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ChainVerifier checks that a sequence of stream events forms an
// unbroken, correctly computed hash chain.
type ChainVerifier interface {
	// Verify walks events in order and reports the first break it
	// finds, if any. Events must be in chronological order and the
	// first event must have an empty PrevHash.
	Verify(events []StreamEvent) *ChainVerificationResult
}

// HashComputer abstracts hash computation so verification can be
// tested against fixed vectors. Implementations must be safe for
// concurrent use.
type HashComputer interface {
	// ComputeEventHash hashes one event as
	// SHA256(content || createdAt || prevHash) and returns the
	// 64-character lowercase hex digest. prevHash is empty for the
	// first event of a chain.
	ComputeEventHash(content string, createdAt int64, prevHash string) string

	// ComputeContentHash returns the hex SHA-256 of content alone.
	ComputeContentHash(content string) string
}

// IntegrityInfo surfaces hash chain state to users. Hashes are safe
// to print: they fingerprint content without revealing it.
//
// Not safe for concurrent mutation.
type IntegrityInfo struct {
	// ChainHash is the hash of the final event in the stream.
	ChainHash string `json:"chain_hash"`

	// ContentHash is the hash of the assembled answer text.
	ContentHash string `json:"content_hash"`

	// TurnHashes fingerprints each question and answer pair, keyed by
	// 1-indexed turn number.
	TurnHashes map[int]string `json:"turn_hashes,omitempty"`

	// SourceHashes fingerprints retrieved source content by name.
	SourceHashes map[string]string `json:"source_hashes,omitempty"`

	// ChainLength is the number of events in the chain.
	ChainLength int `json:"chain_length"`

	// IntegrityVerified reports whether verification passed.
	IntegrityVerified bool `json:"integrity_verified"`

	// VerificationError describes the failure when verification did
	// not pass.
	VerificationError string `json:"verification_error,omitempty"`

	// VerifiedAt is when verification ran, in Unix milliseconds.
	VerifiedAt int64 `json:"verified_at,omitempty"`
}

// ChainVerificationResult reports the outcome of one chain walk,
// including where the chain failed. Immutable after creation.
type ChainVerificationResult struct {
	// Valid reports whether the whole chain verified.
	Valid bool `json:"valid"`

	// ChainLength is the number of events examined.
	ChainLength int `json:"chain_length"`

	// FinalHash is the last event's hash when the chain is valid.
	FinalHash string `json:"final_hash,omitempty"`

	// InvalidEventIndex locates the first bad event, -1 when valid.
	InvalidEventIndex int `json:"invalid_event_index"`

	// ExpectedHash and ActualHash describe the mismatch at
	// InvalidEventIndex.
	ExpectedHash string `json:"expected_hash,omitempty"`
	ActualHash   string `json:"actual_hash,omitempty"`

	// ErrorMessage is a human-readable description of the break.
	ErrorMessage string `json:"error_message,omitempty"`
}

// fullChainVerifier recomputes every hash from event content, so it
// catches both broken links and edited content.
type fullChainVerifier struct {
	hashComputer HashComputer
}

// sha256HashComputer is the stateless production HashComputer.
type sha256HashComputer struct{}

// NewIntegrityInfo extracts chain state from a completed stream
// result. TurnHashes and SourceHashes start empty; callers populate
// them per turn.
func NewIntegrityInfo(result *StreamResult, verified bool) *IntegrityInfo {
	return &IntegrityInfo{
		ChainHash:         result.ChainHash,
		ContentHash:       result.ContentHash,
		ChainLength:       result.TotalEvents,
		IntegrityVerified: verified,
		VerifiedAt:        time.Now().UnixMilli(),
		TurnHashes:        make(map[int]string),
		SourceHashes:      make(map[string]string),
	}
}

// NewIntegrityInfoFromVerification builds an IntegrityInfo from a
// verifier's result. ContentHash is not available here and stays
// empty.
func NewIntegrityInfoFromVerification(verification *ChainVerificationResult) *IntegrityInfo {
	return &IntegrityInfo{
		ChainHash:         verification.FinalHash,
		ChainLength:       verification.ChainLength,
		IntegrityVerified: verification.Valid,
		VerificationError: verification.ErrorMessage,
		VerifiedAt:        time.Now().UnixMilli(),
		TurnHashes:        make(map[int]string),
		SourceHashes:      make(map[string]string),
	}
}

// NewFullChainVerifier creates a verifier that recomputes every hash.
// O(n) hash computations over the chain.
func NewFullChainVerifier() ChainVerifier {
	return &fullChainVerifier{
		hashComputer: NewSHA256HashComputer(),
	}
}

// NewSHA256HashComputer creates the production SHA-256 computer.
func NewSHA256HashComputer() HashComputer {
	return &sha256HashComputer{}
}

// AppendChained links event onto the chain formed by events and
// returns the extended slice. The event's PrevHash and Hash are
// overwritten; callers building transcripts incrementally use this
// instead of a StreamReader.
func AppendChained(events []StreamEvent, event StreamEvent) []StreamEvent {
	prevHash := ""
	if len(events) > 0 {
		prevHash = events[len(events)-1].Hash
	}
	event.PrevHash = prevHash
	event.Hash = NewSHA256HashComputer().ComputeEventHash(event.Content, event.CreatedAt, prevHash)
	return append(events, event)
}

// AddTurnHash stores the fingerprint of one question and answer pair.
// An existing hash for the same turn is overwritten.
func (i *IntegrityInfo) AddTurnHash(turnNumber int, question, answer string) {
	computer := NewSHA256HashComputer()
	i.TurnHashes[turnNumber] = computer.ComputeContentHash(question + answer)
}

// AddSourceHash stores the fingerprint of one retrieved source.
func (i *IntegrityInfo) AddSourceHash(sourceName, content string) {
	computer := NewSHA256HashComputer()
	i.SourceHashes[sourceName] = computer.ComputeContentHash(content)
}

// FormatForDisplay renders a one-line integrity summary for session
// output, for example:
//
//	✓ Verified | Chain: 47 events | Hash: a3f2c8d9...a9b0
func (i *IntegrityInfo) FormatForDisplay() string {
	status := "✓ Verified"
	if !i.IntegrityVerified {
		status = "✗ FAILED"
	}

	hashDisplay := truncateHash(i.ChainHash)
	if i.ChainHash == "" {
		hashDisplay = "N/A"
	}

	return fmt.Sprintf("%s | Chain: %d events | Hash: %s",
		status, i.ChainLength, hashDisplay)
}

// GetTurnHash returns the stored hash for a turn, if present.
func (i *IntegrityInfo) GetTurnHash(turnNumber int) (string, bool) {
	hash, ok := i.TurnHashes[turnNumber]
	return hash, ok
}

// GetSourceHash returns the stored hash for a source, if present.
func (i *IntegrityInfo) GetSourceHash(sourceName string) (string, bool) {
	hash, ok := i.SourceHashes[sourceName]
	return hash, ok
}

// Verify recomputes the chain from scratch.
//
// # Description
//
// Checks, in order: the first event has an empty PrevHash, each
// event's PrevHash equals the previous event's Hash, and each event's
// stored Hash matches a recomputation from its content. Stops at the
// first failure.
//
// # Inputs
//
//   - events: ordered stream events, typically loaded from a saved
//     transcript
//
// # Outputs
//
//   - *ChainVerificationResult: where and how the chain failed, or
//     Valid with the final hash
func (v *fullChainVerifier) Verify(events []StreamEvent) *ChainVerificationResult {
	result := &ChainVerificationResult{
		Valid:             true,
		ChainLength:       len(events),
		InvalidEventIndex: -1,
	}

	if len(events) == 0 {
		return result
	}

	if events[0].PrevHash != "" {
		result.Valid = false
		result.InvalidEventIndex = 0
		result.ExpectedHash = ""
		result.ActualHash = events[0].PrevHash
		result.ErrorMessage = "first event should have empty PrevHash"
		return result
	}

	prevHash := ""
	for i, event := range events {
		if !secureHashEqual(event.PrevHash, prevHash) {
			result.Valid = false
			result.InvalidEventIndex = i
			result.ExpectedHash = prevHash
			result.ActualHash = event.PrevHash
			result.ErrorMessage = fmt.Sprintf(
				"chain broken at event %d: expected PrevHash %s, got %s",
				i, truncateHash(prevHash), truncateHash(event.PrevHash),
			)
			return result
		}

		computedHash := v.hashComputer.ComputeEventHash(
			event.Content, event.CreatedAt, event.PrevHash,
		)
		if !secureHashEqual(computedHash, event.Hash) {
			result.Valid = false
			result.InvalidEventIndex = i
			result.ExpectedHash = computedHash
			result.ActualHash = event.Hash
			result.ErrorMessage = fmt.Sprintf(
				"hash mismatch at event %d: computed %s, stored %s (content may have been modified)",
				i, truncateHash(computedHash), truncateHash(event.Hash),
			)
			return result
		}

		prevHash = event.Hash
	}

	result.FinalHash = events[len(events)-1].Hash
	return result
}

// ComputeEventHash hashes content, timestamp, and the previous hash.
// A null byte separates the fields so adjacent values cannot collide
// across the boundary.
func (c *sha256HashComputer) ComputeEventHash(content string, createdAt int64, prevHash string) string {
	data := fmt.Sprintf("%s\x00%d\x00%s", content, createdAt, prevHash)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

func (c *sha256HashComputer) ComputeContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// truncateHash shortens a 64-character hash to first8...last4 for
// error messages and display. Short strings pass through unchanged.
func truncateHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-4:]
}
