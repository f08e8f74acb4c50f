// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

var tracer = otel.Tracer("miras.llm")

// fileActivePollInterval is how often uploaded file state is checked.
const fileActivePollInterval = 2 * time.Second

// fileActiveTimeout bounds how long we wait for an upload to become
// usable before giving up.
const fileActiveTimeout = 2 * time.Minute

// GeminiClient generates text through the Gemini API.
//
// # Description
//
// Wraps the google.golang.org/genai SDK behind the Client interface.
// Supports streamed generation with thought summaries, structured JSON
// output, and document inputs either inline or through the File API.
//
// # Thread Safety
//
// GeminiClient is safe for concurrent use; the underlying SDK client
// carries no per-request state.
type GeminiClient struct {
	client *genai.Client
	model  string
}

var _ Client = (*GeminiClient)(nil)
var _ FileCapable = (*GeminiClient)(nil)

// NewGeminiClient builds a client from GEMINI_API_KEY and GEMINI_MODEL.
func NewGeminiClient(ctx context.Context) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/gemini_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the Gemini API Key from Podman Secrets")
		} else {
			slog.Error("GEMINI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.5-flash"
		slog.Warn("GEMINI_MODEL not set, defaulting to gemini-2.5-flash")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	slog.Info("Initializing Gemini client", "model", model)
	return &GeminiClient{client: client, model: model}, nil
}

// Generate implements the Client interface.
func (g *GeminiClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "GeminiClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.model))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), buildGenaiConfig(params))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Gemini API call failed", "error", err)
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		slog.Warn("Gemini returned no text content")
		return "", fmt.Errorf("Gemini returned no candidates")
	}
	return text, nil
}

// GenerateStream implements the Client interface. Thought summary
// parts arrive as EventThinking, answer parts as EventToken.
func (g *GeminiClient) GenerateStream(ctx context.Context, prompt string, params GenerationParams, callback StreamCallback) error {
	ctx, span := tracer.Start(ctx, "GeminiClient.GenerateStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.model))

	return g.stream(ctx, genai.Text(prompt), params, callback)
}

// GenerateWithFile implements the FileCapable interface.
//
// Documents with inline Data travel in the request body. Larger
// documents are pushed through the File API first and removed again
// once generation finishes.
func (g *GeminiClient) GenerateWithFile(ctx context.Context, prompt string, file FileInput, params GenerationParams, callback StreamCallback) error {
	ctx, span := tracer.Start(ctx, "GeminiClient.GenerateWithFile")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", g.model),
		attribute.Bool("llm.file_inline", file.Data != nil),
	)

	var docPart *genai.Part
	if file.Data != nil {
		docPart = genai.NewPartFromBytes(file.Data, file.MIMEType)
	} else {
		uploaded, err := g.uploadAndWait(ctx, file)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		defer func() {
			// Uploaded files expire on their own after 48h, but
			// clean up eagerly to stay under the storage quota
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := g.client.Files.Delete(cleanupCtx, uploaded.Name, nil); err != nil {
				slog.Warn("Failed to delete uploaded file", "file", uploaded.Name, "error", err)
			}
		}()
		docPart = genai.NewPartFromURI(uploaded.URI, uploaded.MIMEType)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{docPart, genai.NewPartFromText(prompt)}, genai.RoleUser),
	}
	return g.stream(ctx, contents, params, callback)
}

// stream runs the streaming call and fans parts out to the callback.
func (g *GeminiClient) stream(ctx context.Context, contents []*genai.Content, params GenerationParams, callback StreamCallback) error {
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, buildGenaiConfig(params)) {
		if err != nil {
			slog.Error("Gemini stream failed", "error", err)
			if cbErr := callback(StreamEvent{Type: EventError, Err: err}); cbErr != nil {
				return cbErr
			}
			return fmt.Errorf("Gemini stream failed: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text == "" {
					continue
				}
				event := StreamEvent{Type: EventToken, Content: part.Text}
				if part.Thought {
					event.Type = EventThinking
				}
				if err := callback(event); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// uploadAndWait pushes a file through the File API and polls until it
// is ready for inference.
func (g *GeminiClient) uploadAndWait(ctx context.Context, file FileInput) (*genai.File, error) {
	slog.Info("Uploading document via File API", "path", file.Path)
	uploaded, err := g.client.Files.UploadFromPath(ctx, file.Path, &genai.UploadFileConfig{
		MIMEType: file.MIMEType,
	})
	if err != nil {
		return nil, fmt.Errorf("file upload failed: %w", err)
	}

	deadline := time.Now().Add(fileActiveTimeout)
	for uploaded.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("file %s still processing after %s", uploaded.Name, fileActiveTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(fileActivePollInterval):
		}
		uploaded, err = g.client.Files.Get(ctx, uploaded.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to poll file state: %w", err)
		}
	}
	if uploaded.State != genai.FileStateActive {
		return nil, fmt.Errorf("uploaded file %s entered state %s", uploaded.Name, uploaded.State)
	}
	return uploaded, nil
}

// buildGenaiConfig translates backend-neutral params to the SDK config.
func buildGenaiConfig(params GenerationParams) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if params.Temperature != nil {
		config.Temperature = params.Temperature
	}
	if params.TopP != nil {
		config.TopP = params.TopP
	}
	if params.TopK != nil {
		topK := float32(*params.TopK)
		config.TopK = &topK
	}
	if params.MaxTokens != nil {
		config.MaxOutputTokens = int32(*params.MaxTokens)
	}
	if len(params.Stop) > 0 {
		config.StopSequences = params.Stop
	}
	if params.ThinkingBudget != nil || params.IncludeThoughts {
		config.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: params.IncludeThoughts,
			ThinkingBudget:  params.ThinkingBudget,
		}
	}
	if params.JSONOutput || params.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
	}
	if params.ResponseSchema != nil {
		config.ResponseSchema = toGenaiSchema(params.ResponseSchema)
	}
	return config
}

// toGenaiSchema converts the backend-neutral schema recursively.
func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toGenaiSchema(s.Items),
	}
	switch strings.ToLower(s.Type) {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "string":
		out.Type = genai.TypeString
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeUnspecified
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}
