package stream

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/richinex/aecheck/llm"
)

// KeyFunc returns the API key for a provider, or "" when none is configured.
type KeyFunc func(llm.ProviderType) string

// Direct streams completions straight from provider SDKs.
type Direct struct {
	keys        KeyFunc
	maxTokens   uint32
	temperature *float32
	build       func(llm.ModelDescriptor, string) (llm.Provider, error)
}

// DirectOption configures a Direct transport.
type DirectOption func(*Direct)

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n uint32) DirectOption {
	return func(d *Direct) { d.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) DirectOption {
	return func(d *Direct) { d.temperature = &t }
}

// WithProviderFactory replaces SDK provider construction.
func WithProviderFactory(fn func(model llm.ModelDescriptor, apiKey string) (llm.Provider, error)) DirectOption {
	return func(d *Direct) { d.build = fn }
}

// NewDirect creates an SDK transport. keys may be nil, in which case each
// provider's standard environment variable is read.
func NewDirect(keys KeyFunc, opts ...DirectOption) *Direct {
	d := &Direct{keys: keys}
	d.build = d.buildProvider
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Direct) buildProvider(model llm.ModelDescriptor, apiKey string) (llm.Provider, error) {
	b := llm.ForModel(model)
	if d.maxTokens > 0 {
		b = b.MaxTokens(d.maxTokens)
	}
	if d.temperature != nil {
		b = b.Temperature(*d.temperature)
	}
	if apiKey == "" {
		return b.FromEnv()
	}
	return b.APIKey(apiKey)
}

// streamResult holds the outcome of a provider stream.
type streamResult struct {
	usage *llm.TokenUsage
	err   error
}

// Stream runs the normalized request against the provider SDK.
func (d *Direct) Stream(ctx context.Context, call Call, out chan<- Increment) error {
	var key string
	if d.keys != nil {
		key = d.keys(call.Model.Provider)
	}
	provider, err := d.build(call.Model, key)
	if err != nil {
		return fmt.Errorf("create %s provider: %w", call.Model.Provider, err)
	}
	client := llm.NewClient(provider)

	chunks := make(chan string, 100)
	resultCh := make(chan streamResult, 1)
	go func() {
		defer close(chunks)
		usage, err := client.StreamChat(ctx, call.Request, chunks)
		resultCh <- streamResult{usage: usage, err: err}
	}()

	var content strings.Builder
	var sendErr error
	for chunk := range chunks {
		if sendErr != nil {
			continue
		}
		content.WriteString(chunk)
		sendErr = send(ctx, out, Increment{Content: content.String()})
	}

	result := <-resultCh
	if sendErr != nil {
		return sendErr
	}
	if result.err != nil {
		return fmt.Errorf("%s stream: %w", provider.Name(), result.err)
	}
	if result.usage != nil {
		klog.V(3).Infof("stream usage: provider=%s, model=%s, prompt=%d, completion=%d",
			provider.Name(), provider.Model(), result.usage.PromptTokens, result.usage.CompletionTokens)
	}
	return nil
}
