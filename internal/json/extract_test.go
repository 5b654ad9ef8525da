package json

import (
	"strings"
	"testing"
)

func TestExtractPureJSON(t *testing.T) {
	response := `{"name": "test", "value": 42}`
	got, err := Extract(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != response {
		t.Errorf("expected response unchanged, got %q", got)
	}
}

func TestExtractWithProse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prefix", `Here is the result: {"name": "test", "value": 42}`},
		{"suffix", `{"name": "test", "value": 42} That's the output.`},
		{"both", `Let me think... {"name": "test", "value": 42} Done!`},
		{"fenced", "```json\n{\"name\": \"test\", \"value\": 42}\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.response)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != `{"name": "test", "value": 42}` {
				t.Errorf("unexpected extraction %q", got)
			}
		})
	}
}

func TestExtractNoJSON(t *testing.T) {
	_, err := Extract("This is just plain text without any JSON.")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "no complete JSON") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExtractTruncated(t *testing.T) {
	if _, err := Extract(`{"name": "test", "value": `); err == nil {
		t.Fatal("expected error for truncated document")
	}
}

func TestStripMarkdownCodeBlocksOpenFence(t *testing.T) {
	got := stripMarkdownCodeBlocks("```json\n{\"status\": \"Se")
	if got != `{"status": "Se` {
		t.Errorf("expected open fence removed, got %q", got)
	}
}
