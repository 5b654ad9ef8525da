// Security tests for LLM providers to ensure error messages don't leak API keys.
package llm

import (
	"context"
	"strings"
	"testing"
	"time"
)

func streamOnce(t *testing.T, provider Provider) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chunks := make(chan string, 100)
	go func() {
		for range chunks {
		}
	}()
	defer close(chunks)

	_, err := provider.StreamChat(ctx, []ChatMessage{UserMessage("test")}, nil, chunks)
	return err
}

// TestOpenAIStreamErrorNoAPIKeyLeak verifies OpenAI errors don't contain API keys
func TestOpenAIStreamErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-test-invalid-key-12345xyz"
	provider := NewOpenAIProvider(ProviderOpenAI, testKey, "", "gpt-4o-mini", 100, 0.7)

	err := streamOnce(t, provider)
	if err == nil {
		t.Skip("Expected error with invalid API key, but got success - skipping leak test")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("OpenAI error message leaked API key: %v", errStr)
	}
	if strings.Contains(errStr, "Authorization:") {
		t.Errorf("OpenAI error exposed Authorization header: %v", errStr)
	}
}

// TestGroqStreamErrorNoAPIKeyLeak verifies OpenAI-compatible errors don't contain API keys
func TestGroqStreamErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "gsk-test-invalid-key-12345xyz"
	provider := NewOpenAIProvider(ProviderGroq, testKey, ProviderGroq.directBaseURL(), "gemma2-9b-it", 100, 0.7)

	err := streamOnce(t, provider)
	if err == nil {
		t.Skip("Expected error with invalid API key, but got success - skipping leak test")
	}
	if strings.Contains(err.Error(), testKey) {
		t.Errorf("Groq error message leaked API key: %v", err)
	}
}

// TestAnthropicStreamErrorNoAPIKeyLeak verifies Anthropic errors don't contain API keys
func TestAnthropicStreamErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-ant-REDACTED"
	provider := NewAnthropicProvider(testKey, "claude-3-haiku-20240307", 100, 0.7)

	err := streamOnce(t, provider)
	if err == nil {
		t.Skip("Expected error with invalid API key, but got success - skipping leak test")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("Anthropic error message leaked API key: %v", errStr)
	}
	if strings.Contains(errStr, "x-api-key:") || strings.Contains(errStr, "X-API-Key:") {
		t.Errorf("Anthropic error exposed API key header: %v", errStr)
	}
}

// TestGeminiStreamErrorNoAPIKeyLeak verifies Gemini errors don't contain API keys
func TestGeminiStreamErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "test-invalid-key-12345xyz"
	provider := NewGeminiProvider(testKey, "gemini-1.5-flash-8b", 100, 0.7)

	err := streamOnce(t, provider)
	if err == nil {
		t.Skip("Expected error with invalid API key, but got success - skipping leak test")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("Gemini error message leaked API key: %v", errStr)
	}
	if strings.Contains(errStr, "x-goog-api-key:") {
		t.Errorf("Gemini error exposed API key header: %v", errStr)
	}
}

func TestConvertToAnthropicMessagesJoinsSystem(t *testing.T) {
	msgs, system := convertToAnthropicMessages([]ChatMessage{
		SystemMessage("one"),
		UserMessage("hi"),
		SystemMessage("two"),
		AssistantMessage("hello"),
	})
	if system != "one\n\ntwo" {
		t.Errorf("expected joined system prompt, got %q", system)
	}
	if len(msgs) != 2 {
		t.Errorf("expected 2 conversation messages, got %d", len(msgs))
	}
}

func TestConvertToOpenAIFormat(t *testing.T) {
	if convertToOpenAIFormat(nil) != nil {
		t.Error("expected nil format for nil input")
	}

	format := convertToOpenAIFormat(NewJSONSchemaFormat("summary", []byte(`{"type":"object"}`)))
	if format == nil || format.JSONSchema == nil {
		t.Fatal("expected json schema format")
	}
	if format.JSONSchema.Name != "summary" || !format.JSONSchema.Strict {
		t.Errorf("unexpected schema format: %+v", format.JSONSchema)
	}
}

func TestConvertToGeminiSchemaEnum(t *testing.T) {
	schema := convertToGeminiSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"status": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{"Serious", "Non-serious"},
			},
			"events": map[string]interface{}{"type": "array"},
		},
		"required": []interface{}{"status"},
	})

	status := schema.Properties["status"]
	if status == nil || len(status.Enum) != 2 {
		t.Fatalf("expected enum on status, got %+v", status)
	}
	if schema.Properties["events"].Items == nil {
		t.Error("expected default items for array property")
	}
	if len(schema.Required) != 1 || schema.Required[0] != "status" {
		t.Errorf("unexpected required: %v", schema.Required)
	}
}
