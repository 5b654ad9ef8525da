package workflow

import (
	"encoding/json"
	"fmt"
)

// ErrorPrefix marks a step result that records a failure.
const ErrorPrefix = "ERROR: "

// Kind discriminates the Result variants.
type Kind int

const (
	// KindText is accumulated narrative text.
	KindText Kind = iota
	// KindStructured is a parsed JSON object.
	KindStructured
	// KindFailed is an error marker.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindStructured:
		return "structured"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the value recorded for one step: Text, Structured or Failed.
type Result struct {
	kind   Kind
	text   string
	fields map[string]any
}

// Text creates a text result.
func Text(s string) Result {
	return Result{kind: KindText, text: s}
}

// Structured creates a structured result. A nil map is stored as empty.
func Structured(fields map[string]any) Result {
	if fields == nil {
		fields = map[string]any{}
	}
	return Result{kind: KindStructured, fields: fields}
}

// Failed creates an error result; the message is stored with ErrorPrefix.
func Failed(msg string) Result {
	return Result{kind: KindFailed, text: ErrorPrefix + msg}
}

// Kind returns the variant.
func (r Result) Kind() Kind {
	return r.kind
}

// Text returns the text of a Text result or the prefixed message of a Failed
// one. Structured results return "".
func (r Result) Text() string {
	return r.text
}

// Fields returns the object of a Structured result, nil otherwise.
// The map is shared; use Snapshot for an independent copy.
func (r Result) Fields() map[string]any {
	return r.fields
}

// Failed reports whether the result is an error marker.
func (r Result) Failed() bool {
	return r.kind == KindFailed
}

// String renders the result as text; structured results as compact JSON.
func (r Result) String() string {
	if r.kind != KindStructured {
		return r.text
	}
	data, err := json.Marshal(r.fields)
	if err != nil {
		return ""
	}
	return string(data)
}

// MarshalJSON encodes the result as {"kind": ..., "value": ...}.
func (r Result) MarshalJSON() ([]byte, error) {
	var value any = r.text
	if r.kind == KindStructured {
		value = r.fields
	}
	return json.Marshal(struct {
		Kind  string `json:"kind"`
		Value any    `json:"value"`
	}{r.kind.String(), value})
}

func (r Result) clone() Result {
	if r.kind == KindStructured {
		r.fields = deepCopy(r.fields).(map[string]any)
	}
	return r
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
