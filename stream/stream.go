// Package stream delivers LLM completions as a sequence of accumulated
// increments.
//
// Two transports implement Streamer: Gateway posts provider-shaped bodies to
// an LLM gateway and parses its server-sent events, Direct talks to the
// providers through their SDKs. Both report the full text received so far on
// every increment, so consumers never accumulate deltas themselves.
package stream

import (
	"context"

	"github.com/richinex/aecheck/llm"
)

// Increment is one observation of a streaming completion.
// Content is everything received so far. Err is set when the provider
// reported an error event; the stream may still continue after it.
type Increment struct {
	Content string
	Err     string
}

// Call describes one streaming request.
// URL and Body are the adapter-shaped gateway request; Request is the
// normalized form used by transports that shape requests themselves.
type Call struct {
	Model   llm.ModelDescriptor
	URL     string
	Body    []byte
	Request llm.ChatRequest
}

// Streamer issues a call and sends increments to out until the stream ends.
// Stream does not close out. A returned error is a transport failure: the
// request could not be made, the server rejected it, or the stream broke.
type Streamer interface {
	Stream(ctx context.Context, call Call, out chan<- Increment) error
}

// send delivers an increment unless the context ends first.
func send(ctx context.Context, out chan<- Increment, inc Increment) error {
	select {
	case out <- inc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
