// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"
)

// StreamReader consumes a streaming response and delivers parsed
// events through a callback.
//
// Readers handle I/O and event sequencing only. Parsing belongs to
// SSEParser and display belongs to StreamRenderer, so each layer can
// be composed and tested on its own.
//
// A reader instance may be shared, but a single Read or ReadAll call
// must not run concurrently with another on the same instance.
type StreamReader interface {
	// Read processes the stream, invoking callback for each event in
	// order. Reading stops at EOF, on a terminal event, when ctx is
	// canceled, or when the callback returns an error. The caller
	// closes r.
	//
	// Events are delivered with Index assigned and with Hash and
	// PrevHash linking them into a verifiable chain.
	Read(ctx context.Context, r io.Reader, callback StreamCallback) error

	// ReadAll drains the stream into an aggregated StreamResult.
	//
	// A stream that terminates with an error event still returns a
	// nil error here; the failure is captured in StreamResult.Error.
	// Use Read when events must be handled as they arrive.
	ReadAll(ctx context.Context, r io.Reader) (*StreamResult, error)
}

// sseStreamReader reads Server-Sent Events line by line.
type sseStreamReader struct {
	parser SSEParser
	hashes HashComputer
}

// NewSSEStreamReader creates a reader that parses SSE input with the
// given parser and chains event hashes as it goes.
func NewSSEStreamReader(parser SSEParser) StreamReader {
	return &sseStreamReader{
		parser: parser,
		hashes: NewSHA256HashComputer(),
	}
}

func (r *sseStreamReader) Read(ctx context.Context, reader io.Reader, callback StreamCallback) error {
	scanner := bufio.NewScanner(reader)
	eventIndex := 0
	prevHash := ""

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, err := r.parser.ParseLine(scanner.Text())
		if err != nil {
			return err
		}

		// Delimiters and comments parse to nothing.
		if event == nil {
			continue
		}

		event.Index = eventIndex
		eventIndex++

		event.PrevHash = prevHash
		event.Hash = r.hashes.ComputeEventHash(event.Content, event.CreatedAt, prevHash)
		prevHash = event.Hash

		if err := callback(*event); err != nil {
			return err
		}

		if event.IsTerminal() {
			return nil
		}
	}

	return scanner.Err()
}

func (r *sseStreamReader) ReadAll(ctx context.Context, reader io.Reader) (*StreamResult, error) {
	result := NewStreamResult()

	var answer strings.Builder
	var thinking strings.Builder

	err := r.Read(ctx, reader, func(event StreamEvent) error {
		result.TotalEvents++
		result.ChainHash = event.Hash

		switch event.Type {
		case StreamEventToken:
			if result.FirstTokenAt == 0 {
				result.FirstTokenAt = time.Now().UnixMilli()
			}
			answer.WriteString(event.Content)
			result.TotalTokens++

		case StreamEventThinking:
			thinking.WriteString(event.Content)
			result.ThinkingTokens++

		case StreamEventSources:
			result.Sources = append(result.Sources, event.Sources...)

		case StreamEventDone:
			result.SessionID = event.SessionID
			result.CompletedAt = time.Now().UnixMilli()

		case StreamEventError:
			result.Error = event.Error
			result.CompletedAt = time.Now().UnixMilli()
		}

		if event.RequestID != "" && result.RequestID == "" {
			result.RequestID = event.RequestID
		}

		return nil
	})

	result.Answer = answer.String()
	result.Thinking = thinking.String()
	if result.Answer != "" {
		result.ContentHash = r.hashes.ComputeContentHash(result.Answer)
	}

	// Streams cut off without a terminal event still get an end time.
	if result.CompletedAt == 0 {
		result.CompletedAt = time.Now().UnixMilli()
	}

	return result, err
}

var _ StreamReader = (*sseStreamReader)(nil)
