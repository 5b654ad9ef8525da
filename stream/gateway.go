package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"k8s.io/klog/v2"

	"github.com/richinex/aecheck/llm"
)

// ErrStatus is returned when the gateway answers with a non-2xx status.
var ErrStatus = errors.New("gateway returned error status")

// Gateway streams completions through an HTTP LLM gateway.
type Gateway struct {
	client  *http.Client
	token   string
	cookies []*http.Cookie
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) { g.client = c }
}

// WithToken authenticates requests with a bearer token.
func WithToken(token string) GatewayOption {
	return func(g *Gateway) { g.token = token }
}

// WithCookies forwards session cookies with every request.
func WithCookies(cookies []*http.Cookie) GatewayOption {
	return func(g *Gateway) { g.cookies = cookies }
}

// NewGateway creates a gateway transport.
func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{client: http.DefaultClient}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// With returns a copy of the gateway with extra options applied.
// The web server uses it to forward each browser session's cookies.
func (g *Gateway) With(opts ...GatewayOption) *Gateway {
	clone := *g
	for _, opt := range opts {
		opt(&clone)
	}
	return &clone
}

// Stream posts the call body and relays accumulated content from the
// event stream.
func (g *Gateway) Stream(ctx context.Context, call Call, out chan<- Increment) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.URL, bytes.NewReader(call.Body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	for _, c := range g.cookies {
		req.AddCookie(c)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", call.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := errorMessage(string(snippet))
		if msg == "" {
			msg = strings.TrimSpace(string(snippet))
		}
		return fmt.Errorf("%w: %s: %s", ErrStatus, resp.Status, msg)
	}

	extract := deltaExtractor(call.Model.Provider)
	var acc strings.Builder

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		// Some upstreams answer a streaming request with a single JSON document.
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		data := string(body)
		if msg := errorMessage(data); msg != "" {
			return send(ctx, out, Increment{Err: msg})
		}
		acc.WriteString(completeContent(call.Model.Provider, data))
		return send(ctx, out, Increment{Content: acc.String()})
	}

	var sendErr error
	err = readEvents(resp.Body, func(ev event) bool {
		if ev.Data == "[DONE]" {
			return false
		}
		delta, errMsg := extract(ev)
		if errMsg != "" {
			klog.V(2).Infof("gateway error event: model=%s, error=%s", call.Model.ID, errMsg)
			sendErr = send(ctx, out, Increment{Content: acc.String(), Err: errMsg})
			return sendErr == nil
		}
		if delta == "" {
			return true
		}
		acc.WriteString(delta)
		sendErr = send(ctx, out, Increment{Content: acc.String()})
		return sendErr == nil
	})
	if sendErr != nil {
		return sendErr
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

// extractor pulls the text delta or an error message out of one event.
type extractor func(event) (delta, errMsg string)

func deltaExtractor(p llm.ProviderType) extractor {
	switch p {
	case llm.ProviderAnthropic:
		return anthropicDelta
	case llm.ProviderGemini:
		return geminiDelta
	default:
		return openAIDelta
	}
}

func openAIDelta(ev event) (string, string) {
	if msg := errorMessage(ev.Data); msg != "" {
		return "", msg
	}
	delta := gjson.Get(ev.Data, "choices.0.delta")
	if content := delta.Get("content"); content.Type == gjson.String {
		return content.String(), ""
	}
	// Structured output requested as a tool call streams its arguments.
	return delta.Get("tool_calls.0.function.arguments").String(), ""
}

func anthropicDelta(ev event) (string, string) {
	kind := gjson.Get(ev.Data, "type").String()
	if kind == "error" || ev.Name == "error" {
		if msg := errorMessage(ev.Data); msg != "" {
			return "", msg
		}
		return "", "unknown error"
	}
	if kind != "content_block_delta" {
		return "", ""
	}
	delta := gjson.Get(ev.Data, "delta")
	switch delta.Get("type").String() {
	case "text_delta":
		return delta.Get("text").String(), ""
	case "input_json_delta":
		return delta.Get("partial_json").String(), ""
	}
	return "", ""
}

func geminiDelta(ev event) (string, string) {
	if msg := errorMessage(ev.Data); msg != "" {
		return "", msg
	}
	var b strings.Builder
	for _, part := range gjson.Get(ev.Data, "candidates.0.content.parts").Array() {
		b.WriteString(part.Get("text").String())
	}
	return b.String(), ""
}

// errorMessage returns the provider error carried by a JSON document, if any.
// Gateways and providers use both {"error": "..."} and {"error": {"message": "..."}}.
func errorMessage(data string) string {
	errField := gjson.Get(data, "error")
	if !errField.Exists() {
		return ""
	}
	if errField.IsObject() {
		if msg := errField.Get("message"); msg.Exists() {
			return msg.String()
		}
		return errField.Raw
	}
	return errField.String()
}

// completeContent extracts the text of a non-streamed completion.
func completeContent(p llm.ProviderType, data string) string {
	switch p {
	case llm.ProviderAnthropic:
		var b strings.Builder
		for _, block := range gjson.Get(data, "content").Array() {
			switch block.Get("type").String() {
			case "text":
				b.WriteString(block.Get("text").String())
			case "tool_use":
				b.WriteString(block.Get("input").Raw)
			}
		}
		return b.String()
	case llm.ProviderGemini:
		var b strings.Builder
		for _, part := range gjson.Get(data, "candidates.0.content.parts").Array() {
			b.WriteString(part.Get("text").String())
		}
		return b.String()
	default:
		msg := gjson.Get(data, "choices.0.message")
		if content := msg.Get("content"); content.Type == gjson.String {
			return content.String()
		}
		return msg.Get("tool_calls.0.function.arguments").String()
	}
}
