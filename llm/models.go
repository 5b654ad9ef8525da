// Package llm provides shared data models for LLM providers.
package llm

import "encoding/json"

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleAssistant,
		Content: content,
	}
}

// ChatRequest is the normalized, provider-neutral streaming request.
// It serializes to the OpenAI chat-completions body, which is what the
// pass-through adapters forward unchanged.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Stream         bool            `json:"stream"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// SystemPrompt joins the content of all system messages.
func (r ChatRequest) SystemPrompt() string {
	var prompt string
	for _, msg := range r.Messages {
		if msg.Role != RoleSystem || msg.Content == "" {
			continue
		}
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += msg.Content
	}
	return prompt
}

// Conversation returns the non-system messages in order.
func (r ChatRequest) Conversation() []ChatMessage {
	out := make([]ChatMessage, 0, len(r.Messages))
	for _, msg := range r.Messages {
		if msg.Role != RoleSystem {
			out = append(out, msg)
		}
	}
	return out
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// ResponseFormatType defines the type of response format.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat specifies how the LLM should format its response.
type ResponseFormat struct {
	Type       ResponseFormatType `json:"type"`
	JSONSchema *JSONSchemaFormat  `json:"json_schema,omitempty"`
}

// JSONSchemaFormat defines a JSON schema for structured outputs.
type JSONSchemaFormat struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema"`
	Strict      bool            `json:"strict"`
}

// NewTextFormat creates a text response format.
func NewTextFormat() *ResponseFormat {
	return &ResponseFormat{Type: ResponseFormatText}
}

// NewJSONObjectFormat creates a JSON object response format.
func NewJSONObjectFormat() *ResponseFormat {
	return &ResponseFormat{Type: ResponseFormatJSONObject}
}

// NewJSONSchemaFormat creates a JSON schema response format.
func NewJSONSchemaFormat(name string, schema json.RawMessage) *ResponseFormat {
	return &ResponseFormat{
		Type: ResponseFormatJSONSchema,
		JSONSchema: &JSONSchemaFormat{
			Name:   name,
			Schema: schema,
			Strict: true,
		},
	}
}

// HasSchema reports whether the format carries a JSON schema.
func (f *ResponseFormat) HasSchema() bool {
	return f != nil && f.Type == ResponseFormatJSONSchema && f.JSONSchema != nil && len(f.JSONSchema.Schema) > 0
}

// SchemaMap decodes the JSON schema into a generic map.
// Returns nil when the format has no schema or the schema is not an object.
func (f *ResponseFormat) SchemaMap() map[string]interface{} {
	if !f.HasSchema() {
		return nil
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(f.JSONSchema.Schema, &schema); err != nil {
		return nil
	}
	return schema
}
