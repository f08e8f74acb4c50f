package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// GenerationParams tunes a single generation request. Nil pointer
// fields mean "use the backend default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// ThinkingBudget caps the model's internal reasoning tokens.
	// Zero disables thinking entirely. Nil leaves the backend default.
	ThinkingBudget *int32 `json:"thinking_budget"`

	// IncludeThoughts streams reasoning summaries as EventThinking
	// events on backends that expose them.
	IncludeThoughts bool `json:"include_thoughts"`

	// JSONOutput constrains the response to valid JSON.
	JSONOutput bool `json:"json_output"`

	// ResponseSchema constrains JSON output to a structure, on
	// backends that support structured output. Implies JSONOutput.
	ResponseSchema *Schema `json:"response_schema,omitempty"`
}

// Schema is a backend-neutral subset of JSON Schema for structured
// output. Backends translate it to their native representation.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// StreamEventType discriminates streamed generation events.
type StreamEventType string

const (
	EventThinking StreamEventType = "thinking"
	EventToken    StreamEventType = "token"
	EventError    StreamEventType = "error"
)

// StreamEvent is one unit of streamed model output.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Err     error
}

// StreamCallback receives stream events in arrival order. Returning
// an error aborts the stream.
type StreamCallback func(event StreamEvent) error

// Client defines the standard interface for any LLM backend.
type Client interface {
	// Generate runs a blocking generation and returns the full text.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// GenerateStream runs a generation, delivering output through the
	// callback as it arrives.
	GenerateStream(ctx context.Context, prompt string, params GenerationParams, callback StreamCallback) error
}

// FileInput is a document attached to a generation request. When Data
// is set the bytes travel inline with the request; otherwise the
// backend uploads the file at Path through its file API.
type FileInput struct {
	Path     string
	MIMEType string
	Data     []byte
}

// FileCapable is implemented by backends that accept document inputs
// alongside the prompt.
type FileCapable interface {
	// GenerateWithFile runs a generation over a document, streaming
	// output through the callback.
	GenerateWithFile(ctx context.Context, prompt string, file FileInput, params GenerationParams, callback StreamCallback) error
}

// NewFromEnv constructs the backend selected by LLM_BACKEND_TYPE.
// Recognized values are "gemini" (the default), "openai", "claude",
// and "ollama".
func NewFromEnv(ctx context.Context) (Client, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_BACKEND_TYPE")))
	switch backend {
	case "", "gemini":
		return NewGeminiClient(ctx)
	case "openai":
		return NewOpenAIClient()
	case "claude", "anthropic":
		return NewAnthropicClient()
	case "ollama":
		return NewOllamaClient()
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND_TYPE %q (expected gemini, openai, claude, or ollama)", backend)
	}
}
