// LLMClient - Simple wrapper around providers.

package llm

import (
	"context"
)

// Client wraps a Provider with a simple interface.
type Client struct {
	provider Provider
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// StreamChat streams a chat completion.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, chunks chan<- string) (*TokenUsage, error) {
	return c.provider.StreamChat(ctx, req.Messages, req.ResponseFormat, chunks)
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}
