// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
)

type anthropicRequest struct {
	Model     string                 `json:"model"`
	Messages  []anthropicMessage     `json:"messages"`
	System    []anthropicSystemBlock `json:"system,omitempty"`
	MaxTokens int                    `json:"max_tokens"`
	Thinking  *anthropicThinking     `json:"thinking,omitempty"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicSystemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicThinking struct {
	Type         string `json:"type"` // Must be "enabled"
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Thinking string `json:"thinking,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// anthropicStreamEvent is one server-sent event payload. Only the
// fields the stream loop needs are decoded.
type anthropicStreamEvent struct {
	Type  string          `json:"type"`
	Delta *anthropicDelta `json:"delta,omitempty"`
	Error *anthropicError `json:"error,omitempty"`
}

type anthropicDelta struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

// AnthropicClient generates text through the Anthropic messages API
// over plain REST.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

var _ Client = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from ANTHROPIC_API_KEY and
// CLAUDE_MODEL.
func NewAnthropicClient() (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	model := os.Getenv("CLAUDE_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/anthropic_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read the Anthropic API Key from Podman Secrets")
		}
	}
	if apiKey == "" {
		slog.Error("ANTHROPIC_API_KEY environment variable not set and secret not found")
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}
	if model == "" {
		model = "claude-sonnet-4-20250514"
		slog.Warn("CLAUDE_MODEL not set, defaulting to claude-sonnet-4-20250514")
	}
	slog.Info("Initializing Anthropic client", "model", model)
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    anthropicBaseURL,
	}, nil
}

// buildRequest maps generation params onto a messages API request.
func (a *AnthropicClient) buildRequest(prompt string, params GenerationParams, stream bool) anthropicRequest {
	req := anthropicRequest{
		Model:     a.model,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens: 4096,
		Stream:    stream,
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	req.Temperature = params.Temperature
	req.TopP = params.TopP
	req.TopK = params.TopK
	if len(params.Stop) > 0 {
		req.StopSeqs = params.Stop
	}
	if params.JSONOutput || params.ResponseSchema != nil {
		// The messages API has no native JSON mode; steer with a
		// system block instead.
		req.System = append(req.System, anthropicSystemBlock{
			Type: "text",
			Text: "Respond with a single valid JSON object and nothing else.",
		})
	}
	if params.ThinkingBudget != nil && *params.ThinkingBudget > 0 {
		budget := int(*params.ThinkingBudget)
		req.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: budget}
		// The budget counts against max_tokens; leave room for the answer.
		if minRequired := budget + 2048; req.MaxTokens < minRequired {
			slog.Info("Adjusting MaxTokens to fit the thinking budget", "old", req.MaxTokens, "new", minRequired)
			req.MaxTokens = minRequired
		}
	}
	return req
}

func (a *AnthropicClient) do(ctx context.Context, payload anthropicRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal the Anthropic request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create the Anthropic request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API call failed: %w", err)
	}
	return resp, nil
}

// Generate implements the Client interface. Thinking blocks in the
// response are dropped; retrieving them requires GenerateStream with
// IncludeThoughts set.
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via Anthropic", "model", a.model)

	resp, err := a.do(ctx, a.buildRequest(prompt, params, false))
	if err != nil {
		slog.Error("Anthropic API call failed", "error", err)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read the Anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Anthropic returned an error", "status_code", resp.StatusCode, "response", string(body))
		return "", fmt.Errorf("Anthropic API returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse the Anthropic response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("Anthropic API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("Anthropic returned no text content")
	}
	return text.String(), nil
}

// GenerateStream implements the Client interface. Output arrives as
// server-sent events; text deltas become EventToken and thinking
// deltas become EventThinking when IncludeThoughts is set.
func (a *AnthropicClient) GenerateStream(ctx context.Context, prompt string, params GenerationParams, callback StreamCallback) error {
	slog.Debug("Streaming text via Anthropic", "model", a.model)

	resp, err := a.do(ctx, a.buildRequest(prompt, params, true))
	if err != nil {
		slog.Error("Anthropic API call failed", "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("Anthropic returned an error", "status_code", resp.StatusCode, "response", string(body))
		return fmt.Errorf("Anthropic API returned status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		// SSE frames; "event:" markers and blank lines carry nothing.
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		var ev anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("failed to parse an Anthropic stream event: %w", err)
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				if err := callback(StreamEvent{Type: EventToken, Content: ev.Delta.Text}); err != nil {
					return err
				}
			case "thinking_delta":
				if params.IncludeThoughts {
					if err := callback(StreamEvent{Type: EventThinking, Content: ev.Delta.Thinking}); err != nil {
						return err
					}
				}
			}
		case "error":
			msg := "unknown stream error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			err := fmt.Errorf("Anthropic stream error: %s", msg)
			if cbErr := callback(StreamEvent{Type: EventError, Err: err}); cbErr != nil {
				return cbErr
			}
			return err
		case "message_stop":
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("Anthropic stream read failed: %w", err)
	}
	return nil
}
