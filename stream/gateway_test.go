package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/richinex/aecheck/llm"
)

func sseServer(t *testing.T, check func(*http.Request), events ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\n\n", ev)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// collect runs a stream to completion and returns every increment.
func collect(t *testing.T, s Streamer, call Call) ([]Increment, error) {
	t.Helper()
	out := make(chan Increment)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		errCh <- s.Stream(context.Background(), call, out)
	}()

	var incs []Increment
	for inc := range out {
		incs = append(incs, inc)
	}
	return incs, <-errCh
}

func contents(incs []Increment) []string {
	out := make([]string, len(incs))
	for i, inc := range incs {
		out[i] = inc.Content
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGatewayOpenAIAccumulates(t *testing.T) {
	srv := sseServer(t, func(r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
			t.Errorf("expected forwarded session cookie, got %v", c)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"model":"gpt-4o-mini"}` {
			t.Errorf("unexpected body %s", body)
		}
	},
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {"choices":[{"delta":{"content":"b"}}]}`,
		`data: {"choices":[{"delta":{"content":"c"}}]}`,
		`data: [DONE]`,
	)

	g := NewGateway(WithToken("tok")).With(WithCookies([]*http.Cookie{{Name: "session", Value: "abc"}}))
	incs, err := collect(t, g, Call{
		Model: llm.ModelDescriptor{Provider: llm.ProviderOpenAI, ID: "gpt-4o-mini"},
		URL:   srv.URL,
		Body:  []byte(`{"model":"gpt-4o-mini"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := contents(incs); !equal(got, []string{"a", "ab", "abc"}) {
		t.Errorf("unexpected increments %v", got)
	}
}

func TestGatewayOpenAIToolArguments(t *testing.T) {
	srv := sseServer(t, nil,
		`data: {"choices":[{"delta":{"tool_calls":[{"function":{"arguments":"{\"status\":"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"function":{"arguments":"\"Serious\"}"}}]}}]}`,
	)
	incs, err := collect(t, NewGateway(), Call{Model: llm.ModelDescriptor{Provider: llm.ProviderGroq}, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := contents(incs); !equal(got, []string{`{"status":`, `{"status":"Serious"}`}) {
		t.Errorf("unexpected increments %v", got)
	}
}

func TestGatewayAnthropicEvents(t *testing.T) {
	srv := sseServer(t, nil,
		"event: message_start\ndata: {\"type\":\"message_start\"}",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"lo\"}}",
		"event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}",
		"event: message_stop\ndata: {\"type\":\"message_stop\"}",
	)
	incs, err := collect(t, NewGateway(), Call{Model: llm.ModelDescriptor{Provider: llm.ProviderAnthropic}, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(incs) != 3 {
		t.Fatalf("expected 3 increments, got %+v", incs)
	}
	if incs[1].Content != "Hello" {
		t.Errorf("expected accumulated Hello, got %q", incs[1].Content)
	}
	if incs[2].Err != "Overloaded" {
		t.Errorf("expected error increment, got %+v", incs[2])
	}
}

func TestGatewayGeminiParts(t *testing.T) {
	srv := sseServer(t, nil,
		`data: {"candidates":[{"content":{"parts":[{"text":"x"},{"text":"y"}],"role":"model"}}]}`,
		`data: {"candidates":[{"content":{"parts":[{"text":"z"}],"role":"model"}}]}`,
	)
	incs, err := collect(t, NewGateway(), Call{Model: llm.ModelDescriptor{Provider: llm.ProviderGemini}, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := contents(incs); !equal(got, []string{"xy", "xyz"}) {
		t.Errorf("unexpected increments %v", got)
	}
}

func TestGatewayErrorEventContinues(t *testing.T) {
	srv := sseServer(t, nil,
		`data: {"error":"rate limited"}`,
		`data: {"choices":[{"delta":{"content":"late"}}]}`,
	)
	incs, err := collect(t, NewGateway(), Call{Model: llm.ModelDescriptor{Provider: llm.ProviderOpenAI}, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(incs) != 2 || incs[0].Err != "rate limited" || incs[1].Content != "late" {
		t.Errorf("unexpected increments %+v", incs)
	}
}

func TestGatewayNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"login required"}}`)
	}))
	defer srv.Close()

	incs, err := collect(t, NewGateway(), Call{Model: llm.ModelDescriptor{Provider: llm.ProviderOpenAI}, URL: srv.URL})
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
	if !strings.Contains(err.Error(), "login required") {
		t.Errorf("expected upstream message in error, got %v", err)
	}
	if len(incs) != 0 {
		t.Errorf("expected no increments, got %+v", incs)
	}
}

func TestGatewayJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"error":{"message":"model not found"}}`)
	}))
	defer srv.Close()

	incs, err := collect(t, NewGateway(), Call{Model: llm.ModelDescriptor{Provider: llm.ProviderOpenAI}, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(incs) != 1 || incs[0].Err != "model not found" {
		t.Errorf("unexpected increments %+v", incs)
	}
}

func TestGatewayJSONCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"content":[{"type":"text","text":"whole answer"}]}`)
	}))
	defer srv.Close()

	incs, err := collect(t, NewGateway(), Call{Model: llm.ModelDescriptor{Provider: llm.ProviderAnthropic}, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(incs) != 1 || incs[0].Content != "whole answer" {
		t.Errorf("unexpected increments %+v", incs)
	}
}

func TestGatewayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := collect(t, NewGateway(), Call{Model: llm.ModelDescriptor{Provider: llm.ProviderOpenAI}, URL: url})
	if err == nil {
		t.Fatal("expected transport error")
	}
}

func TestGatewayCancelledContext(t *testing.T) {
	srv := sseServer(t, nil, `data: {"choices":[{"delta":{"content":"a"}}]}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan Increment, 10)
	err := NewGateway().Stream(ctx, Call{Model: llm.ModelDescriptor{Provider: llm.ProviderOpenAI}, URL: srv.URL}, out)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
