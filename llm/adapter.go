// Provider adapter registry.
//
// An adapter reshapes the normalized ChatRequest into the body a provider's
// streaming endpoint expects, and builds that endpoint's URL for a model.
// Adapters are pure functions; the registry is populated once at startup.

package llm

import (
	"net/url"
	"strings"
)

// DefaultGatewayURL is the LLM gateway that fronts every provider.
const DefaultGatewayURL = "https://llmfoundry.straive.com"

// RequestAdapter transforms a normalized request into a provider-specific body.
type RequestAdapter func(ChatRequest) any

// URLBuilder returns the streaming endpoint for a model id.
type URLBuilder func(model string) string

// Adapter pairs a request transform with an endpoint builder.
type Adapter struct {
	Transform RequestAdapter
	URL       URLBuilder
}

// AdapterOptions carries generation settings some providers require in the body.
type AdapterOptions struct {
	MaxTokens   uint32
	Temperature *float32
}

// Registry maps provider types to adapters.
type Registry struct {
	adapters map[ProviderType]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[ProviderType]Adapter)}
}

// NewGatewayRegistry registers adapters for every provider behind a gateway
// rooted at baseURL.
func NewGatewayRegistry(baseURL string, opts AdapterOptions) *Registry {
	if baseURL == "" {
		baseURL = DefaultGatewayURL
	}
	base := strings.TrimRight(baseURL, "/")
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}

	r := NewRegistry()
	for _, p := range []ProviderType{ProviderOpenAI, ProviderCerebras, ProviderGroq, ProviderDeepSeek} {
		endpoint := base + "/" + p.String() + "/v1/chat/completions"
		r.Register(p, Adapter{
			Transform: PassThrough,
			URL:       func(string) string { return endpoint },
		})
	}
	r.Register(ProviderAnthropic, Adapter{
		Transform: AnthropicAdapter(opts),
		URL:       func(string) string { return base + "/anthropic/v1/messages" },
	})
	r.Register(ProviderGemini, Adapter{
		Transform: GeminiAdapter(opts),
		URL: func(model string) string {
			return base + "/gemini/v1beta/models/" + url.PathEscape(model) + ":streamGenerateContent?alt=sse"
		},
	})
	return r
}

// Register installs (or replaces) the adapter for a provider.
func (r *Registry) Register(p ProviderType, a Adapter) {
	r.adapters[p] = a
}

// Lookup returns the adapter for a provider.
func (r *Registry) Lookup(p ProviderType) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// PassThrough is the identity adapter for OpenAI-compatible providers.
func PassThrough(req ChatRequest) any {
	return req
}

// Anthropic messages body.
type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   uint32             `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	ToolChoice  *anthropicChoice   `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// AnthropicAdapter reshapes requests for the Anthropic messages API.
// A JSON-schema response format becomes a single forced tool whose input is
// the structured result.
func AnthropicAdapter(opts AdapterOptions) RequestAdapter {
	return func(req ChatRequest) any {
		body := anthropicRequest{
			Model:       req.Model,
			System:      req.SystemPrompt(),
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
			Stream:      req.Stream,
		}
		for _, msg := range req.Conversation() {
			body.Messages = append(body.Messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
		}
		if schema := req.ResponseFormat.SchemaMap(); schema != nil {
			name := req.ResponseFormat.JSONSchema.Name
			body.Tools = []anthropicTool{{
				Name:        name,
				Description: req.ResponseFormat.JSONSchema.Description,
				InputSchema: schema,
			}}
			body.ToolChoice = &anthropicChoice{Type: "tool", Name: name}
		}
		return body
	}
}

// Gemini generateContent body.
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      *float32               `json:"temperature,omitempty"`
	MaxOutputTokens  uint32                 `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string                 `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]interface{} `json:"responseSchema,omitempty"`
}

// GeminiAdapter reshapes requests for the Gemini streamGenerateContent API.
func GeminiAdapter(opts AdapterOptions) RequestAdapter {
	return func(req ChatRequest) any {
		body := geminiRequest{
			GenerationConfig: &geminiGenerationConfig{
				Temperature:     opts.Temperature,
				MaxOutputTokens: opts.MaxTokens,
			},
		}
		if system := req.SystemPrompt(); system != "" {
			body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
		}
		for _, msg := range req.Conversation() {
			role := "user"
			if msg.Role == RoleAssistant {
				role = "model"
			}
			body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Content}}})
		}
		if schema := req.ResponseFormat.SchemaMap(); schema != nil {
			body.GenerationConfig.ResponseMimeType = "application/json"
			body.GenerationConfig.ResponseSchema = geminiSchema(schema)
		}
		return body
	}
}

// geminiUnsupported lists JSON Schema keywords the Gemini schema subset rejects.
var geminiUnsupported = map[string]bool{
	"$schema":              true,
	"$id":                  true,
	"additionalProperties": true,
	"strict":               true,
	"title":                true,
	"default":              true,
}

// geminiSchema returns a copy of a JSON schema with unsupported keywords removed.
func geminiSchema(schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if geminiUnsupported[k] {
			continue
		}
		// Property names are user data, not keywords.
		if props, ok := v.(map[string]interface{}); ok && k == "properties" {
			cleaned := make(map[string]interface{}, len(props))
			for name, prop := range props {
				cleaned[name] = geminiSchemaValue(prop)
			}
			out[k] = cleaned
			continue
		}
		out[k] = geminiSchemaValue(v)
	}
	return out
}

func geminiSchemaValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return geminiSchema(val)
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = geminiSchemaValue(item)
		}
		return items
	default:
		return v
	}
}
