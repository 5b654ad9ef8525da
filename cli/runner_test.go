package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/richinex/aecheck/render"
	"github.com/richinex/aecheck/stream"
	"github.com/richinex/aecheck/workflow"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aecheck.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveNarrative(t *testing.T) {
	file := filepath.Join(t.TempDir(), "narrative.txt")
	if err := os.WriteFile(file, []byte("  Dizziness after dose.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	samples := []string{"first", "second"}

	tests := []struct {
		name    string
		opts    RunOptions
		want    string
		wantErr bool
	}{
		{"sample", RunOptions{Sample: 2}, "second", false},
		{"text", RunOptions{Text: " typed "}, "typed", false},
		{"file", RunOptions{File: file}, "Dizziness after dose.", false},
		{"none", RunOptions{}, "", true},
		{"two sources", RunOptions{Sample: 1, Text: "x"}, "", true},
		{"sample out of range", RunOptions{Sample: 3}, "", true},
		{"negative sample", RunOptions{Sample: -1}, "", true},
		{"missing file", RunOptions{File: filepath.Join(t.TempDir(), "nope")}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveNarrative(tt.opts, samples)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListModelsAndSteps(t *testing.T) {
	opts := Options{ConfigPath: writeConfig(t, "{}")}

	var models bytes.Buffer
	if err := ListModels(&models, opts); err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if !strings.Contains(models.String(), "gpt-4o-mini") || strings.Count(models.String(), "\n") != 16 {
		t.Errorf("unexpected models output:\n%s", models.String())
	}

	var steps bytes.Buffer
	if err := ListSteps(&steps, opts); err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	out := steps.String()
	if !strings.HasPrefix(out, "1. Basic Analysis [analysis] model=gpt-4o-mini") {
		t.Errorf("unexpected steps output:\n%s", out)
	}
	if !strings.Contains(out, "uses: Advanced Analysis, Revised Basic Analysis, Revised Intermediate Analysis") {
		t.Errorf("expected summary dependencies in:\n%s", out)
	}
}

func TestLoadTransportOverride(t *testing.T) {
	path := writeConfig(t, "{}")
	if _, err := load(Options{ConfigPath: path, Transport: "pigeon"}); err == nil {
		t.Error("expected invalid transport error")
	}
	a, err := load(Options{ConfigPath: path, Transport: "Direct"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.settings.LLM.Transport != "direct" {
		t.Errorf("expected direct transport, got %q", a.settings.LLM.Transport)
	}
}

type echoStreamer struct{}

func (echoStreamer) Stream(ctx context.Context, call stream.Call, out chan<- stream.Increment) error {
	select {
	case out <- stream.Increment{Content: "ok " + call.Model.ID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRunPlain(t *testing.T) {
	a, err := load(Options{ConfigPath: writeConfig(t, "{}")})
	if err != nil {
		t.Fatal(err)
	}
	cfg := workflow.Config{Narrative: "Rash."}.WithDefaults(a.defaults)
	job := workflow.Job{Config: cfg, Store: workflow.NewStore(), Streamer: echoStreamer{}}
	layout := render.NewLayout(a.table).WithSchema(cfg.Schema)

	var out, progress bytes.Buffer
	state, err := runPlain(context.Background(), a.executor(), job, layout, a.settings, false, &out, &progress)
	if err != nil || state != workflow.StateCompleted {
		t.Fatalf("state %s, err %v", state, err)
	}
	if !strings.Contains(out.String(), "ok gpt-4o-mini") {
		t.Errorf("expected results in output:\n%s", out.String())
	}
	if !strings.Contains(progress.String(), "→ "+workflow.PharmacovigilanceSummary) {
		t.Errorf("expected progress lines, got:\n%s", progress.String())
	}

	out.Reset()
	job.Store = workflow.NewStore()
	if _, err := runPlain(context.Background(), a.executor(), job, layout, a.settings, true, &out, &progress); err != nil {
		t.Fatal(err)
	}
	var results map[string]json.RawMessage
	if err := json.Unmarshal(out.Bytes(), &results); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out.String())
	}
	if len(results) != 8 {
		t.Errorf("expected 8 results, got %d", len(results))
	}
}
