package llm

import (
	"errors"
	"fmt"
)

// ErrModelIndex is returned when a catalog position does not exist.
var ErrModelIndex = errors.New("model index out of range")

// ModelDescriptor identifies one selectable model.
type ModelDescriptor struct {
	Provider ProviderType `json:"provider" yaml:"provider"`
	ID       string       `json:"model" yaml:"model"`
	Name     string       `json:"name" yaml:"name"`
}

// Catalog is the ordered, immutable list of selectable models.
// UI selections refer to models by position.
type Catalog struct {
	models []ModelDescriptor
}

// NewCatalog copies models into a catalog.
func NewCatalog(models []ModelDescriptor) *Catalog {
	copied := make([]ModelDescriptor, len(models))
	copy(copied, models)
	return &Catalog{models: copied}
}

// DefaultCatalog returns the built-in model list.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultModels)
}

// Len returns the number of models.
func (c *Catalog) Len() int {
	return len(c.models)
}

// At returns the model at index i.
func (c *Catalog) At(i int) (ModelDescriptor, error) {
	if i < 0 || i >= len(c.models) {
		return ModelDescriptor{}, fmt.Errorf("%w: %d (catalog has %d models)", ErrModelIndex, i, len(c.models))
	}
	return c.models[i], nil
}

// IndexOf returns the position of the first model with the given id.
func (c *Catalog) IndexOf(id string) (int, bool) {
	for i, m := range c.models {
		if m.ID == id {
			return i, true
		}
	}
	return 0, false
}

// All returns a copy of the catalog entries.
func (c *Catalog) All() []ModelDescriptor {
	copied := make([]ModelDescriptor, len(c.models))
	copy(copied, c.models)
	return copied
}

var defaultModels = []ModelDescriptor{
	{Provider: ProviderOpenAI, ID: "gpt-4o-mini", Name: "OpenAI: GPT 4o Mini ($0.15)"},
	{Provider: ProviderOpenAI, ID: "gpt-4o-audio-preview", Name: "OpenAI: GPT 4o Audio Preview ($2.5)"},
	{Provider: ProviderOpenAI, ID: "gpt-4o", Name: "OpenAI: GPT 4o ($2.5)"},
	{Provider: ProviderOpenAI, ID: "chatgpt-4o-latest", Name: "OpenAI: ChatGPT 4o ($5)"},
	{Provider: ProviderAnthropic, ID: "claude-3-haiku-20240307", Name: "Anthropic: Claude 3 Haiku ($0.25)"},
	{Provider: ProviderAnthropic, ID: "claude-3-5-haiku-20241022", Name: "Anthropic: Claude 3.5 Haiku ($1)"},
	{Provider: ProviderAnthropic, ID: "claude-3-5-sonnet-20241022", Name: "Anthropic: Claude 3.5 Sonnet v2 ($3)"},
	{Provider: ProviderGemini, ID: "gemini-1.5-flash-8b", Name: "Google: Gemini 1.5 Flash 8b ($0.04)"},
	{Provider: ProviderGemini, ID: "gemini-1.5-flash-002", Name: "Google: Gemini 1.5 Flash 002 ($0.075)"},
	{Provider: ProviderGemini, ID: "gemini-1.5-pro-002", Name: "Google: Gemini 1.5 Pro 002 ($1.25)"},
	{Provider: ProviderCerebras, ID: "llama3.1-70b", Name: "Cerebras: Llama 3.1 70b ($0)"},
	{Provider: ProviderCerebras, ID: "llama3.1-8b", Name: "Cerebras: Llama 3.1 8b ($0)"},
	{Provider: ProviderGroq, ID: "llama-3.2-90b-vision-preview", Name: "Groq: Llama 3.2 90b ($0)"},
	{Provider: ProviderGroq, ID: "llama-3.2-11b-vision-preview", Name: "Groq: Llama 3.2 11b ($0)"},
	{Provider: ProviderGroq, ID: "gemma2-9b-it", Name: "Groq: Gemma 2 9b ($0)"},
	{Provider: ProviderGroq, ID: "mixtral-8x7b-32768", Name: "Groq: Mixtral 8x7b ($0)"},
}
