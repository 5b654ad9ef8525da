// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for direct SDK access.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Structured output mapping (response format, forced tool, response schema)
// - Provider-specific streaming protocol

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// a consistent streaming interface.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// StreamChat streams a chat completion, sending content deltas to the provided channel.
	// A non-nil format with a JSON schema requests structured output; the deltas are then
	// fragments of the JSON document.
	// Returns token usage (available in final chunk when supported by provider).
	StreamChat(ctx context.Context, messages []ChatMessage, format *ResponseFormat, chunks chan<- string) (*TokenUsage, error)
}
