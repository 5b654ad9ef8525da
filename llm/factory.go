// LLM Provider Factory - builder API for creating direct SDK providers.
//
// Quick Start:
//
//	// Read API key from environment
//	p, err := llm.ProviderOpenAI.Model("gpt-4o-mini").FromEnv()
//
//	// Full configuration
//	p, err := llm.ProviderAnthropic.
//	    Model("claude-3-5-haiku-20241022").
//	    MaxTokens(4096).
//	    Temperature(0).
//	    FromEnv()
//
//	// Any catalog entry
//	p, err := llm.ForModel(descriptor).APIKey("sk-...")

package llm

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType represents supported LLM provider families.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI chat-completions API.
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic messages API.
	ProviderAnthropic
	// ProviderGemini is the Google Gemini API.
	ProviderGemini
	// ProviderCerebras is Cerebras inference (OpenAI-compatible).
	ProviderCerebras
	// ProviderGroq is Groq inference (OpenAI-compatible).
	ProviderGroq
	// ProviderDeepSeek is the DeepSeek API (OpenAI-compatible).
	ProviderDeepSeek
)

// AllProviders lists every provider family in declaration order.
var AllProviders = []ProviderType{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGemini,
	ProviderCerebras,
	ProviderGroq,
	ProviderDeepSeek,
}

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderGemini:
		return "gemini"
	case ProviderCerebras:
		return "cerebras"
	case ProviderGroq:
		return "groq"
	case ProviderDeepSeek:
		return "deepseek"
	default:
		return "unknown"
	}
}

// MarshalText encodes the provider as its canonical name.
func (p ProviderType) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a provider name (aliases accepted).
func (p *ProviderType) UnmarshalText(text []byte) error {
	parsed, err := ParseProviderType(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderCerebras:
		return "CEREBRAS_API_KEY"
	case ProviderGroq:
		return "GROQ_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	default:
		return ""
	}
}

// OpenAICompatible reports whether the provider speaks the OpenAI
// chat-completions wire format.
func (p ProviderType) OpenAICompatible() bool {
	switch p {
	case ProviderOpenAI, ProviderCerebras, ProviderGroq, ProviderDeepSeek:
		return true
	default:
		return false
	}
}

// directBaseURL is the public API base for OpenAI-compatible providers.
// Empty means the go-openai default.
func (p ProviderType) directBaseURL() string {
	switch p {
	case ProviderCerebras:
		return "https://api.cerebras.ai/v1"
	case ProviderGroq:
		return "https://api.groq.com/openai/v1"
	case ProviderDeepSeek:
		return "https://api.deepseek.com/v1"
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "cerebras":
		return ProviderCerebras, nil
	case "groq":
		return ProviderGroq, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// ForModel starts configuring the provider for a catalog entry.
func ForModel(d ModelDescriptor) *ProviderBuilder {
	return NewProviderBuilder(d.Provider).Model(d.ID)
}

// ProviderBuilder is a builder for configuring LLM providers.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	baseURL      string
	maxTokens    uint32
	temperature  *float32
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
	}
}

// Model sets the model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// BaseURL overrides the API base URL (OpenAI-compatible providers only).
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.baseURL = url
	return b
}

// MaxTokens sets maximum tokens for responses.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// FromEnv builds the provider, reading API key from environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	envVar := b.providerType.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s environment variable not set", b.providerType, envVar)
	}
	return b.build(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	if b.model == "" {
		return nil, fmt.Errorf("%s: model is required", b.providerType)
	}

	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	temperature := float32(0.7) // default
	if b.temperature != nil {
		temperature = *b.temperature
	}

	switch {
	case b.providerType.OpenAICompatible():
		baseURL := b.baseURL
		if baseURL == "" {
			baseURL = b.providerType.directBaseURL()
		}
		return NewOpenAIProvider(b.providerType, apiKey, baseURL, b.model, maxTokens, temperature), nil
	case b.providerType == ProviderAnthropic:
		return NewAnthropicProvider(apiKey, b.model, maxTokens, temperature), nil
	case b.providerType == ProviderGemini:
		return NewGeminiProvider(apiKey, b.model, maxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %v", b.providerType)
	}
}
