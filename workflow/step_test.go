package workflow

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/richinex/aecheck/llm"
)

func noop(Inputs) (Payload, error) { return Payload{}, nil }

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
		want  error
	}{
		{"empty title", []Step{{Build: noop}}, ErrInvalidStep},
		{"nil build", []Step{{Title: "a"}}, ErrInvalidStep},
		{"duplicate", []Step{{Title: "a", Build: noop}, {Title: "a", Build: noop}}, ErrDuplicateStep},
		{"forward", []Step{{Title: "a", Uses: []string{"b"}, Build: noop}, {Title: "b", Build: noop}}, ErrForwardReference},
		{"self", []Step{{Title: "a", Uses: []string{"a"}, Build: noop}}, ErrForwardReference},
		{"unknown", []Step{{Title: "a", Build: noop}, {Title: "b", Uses: []string{"LLM as a Judge Analysis"}, Build: noop}}, ErrUnknownStep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.steps...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPharmacovigilanceTable(t *testing.T) {
	table := PharmacovigilanceTable()
	want := []string{
		BasicAnalysis, IntermediateAnalysis, AdvancedAnalysis,
		JudgeBasicAnalysis, JudgeIntermediateAnalysis,
		RevisedBasicAnalysis, RevisedIntermediateAnalysis,
		PharmacovigilanceSummary,
	}
	got := table.Titles()
	if len(got) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, got[i], want[i])
		}
	}

	summary, ok := table.Lookup(PharmacovigilanceSummary)
	if !ok || summary.Category != CategorySummary || len(summary.Uses) != 3 {
		t.Errorf("unexpected summary step %+v", summary)
	}
}

func TestInputsRefusesUndeclared(t *testing.T) {
	table := PharmacovigilanceTable()
	step, _ := table.Lookup(JudgeBasicAnalysis)
	results := Snapshot{
		BasicAnalysis:        Text("basic"),
		IntermediateAnalysis: Text("intermediate"),
	}
	in := table.inputs(step, results, Config{})

	if in.Text(BasicAnalysis) != "basic" {
		t.Errorf("expected declared input, got %q", in.Text(BasicAnalysis))
	}
	if in.Text(IntermediateAnalysis) != "" {
		t.Error("expected undeclared input refused")
	}
}

func TestInputsForwardsFailedAndMissingAsEmpty(t *testing.T) {
	table := PharmacovigilanceTable()
	step, _ := table.Lookup(RevisedBasicAnalysis)
	in := table.inputs(step, Snapshot{BasicAnalysis: Failed("boom")}, Config{})

	if got := in.Text(BasicAnalysis); got != "" {
		t.Errorf("expected failed input forwarded as empty, got %q", got)
	}
	if got := in.Text(JudgeBasicAnalysis); got != "" {
		t.Errorf("expected missing input forwarded as empty, got %q", got)
	}
}

func TestRevisionMessages(t *testing.T) {
	table := PharmacovigilanceTable()
	step, _ := table.Lookup(RevisedBasicAnalysis)
	cfg := Config{
		Narrative: "joint pain",
		Prompts:   map[string]string{RevisedBasicAnalysis: "revise"},
		Models:    map[string]int{RevisedBasicAnalysis: 5},
	}
	in := table.inputs(step, Snapshot{
		BasicAnalysis:      Text("draft"),
		JudgeBasicAnalysis: Text("too vague"),
	}, cfg)

	p, err := step.Build(in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.ModelIndex != 5 {
		t.Errorf("expected model 5, got %d", p.ModelIndex)
	}
	roles := []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleUser}
	if len(p.Messages) != len(roles) {
		t.Fatalf("expected %d messages, got %d", len(roles), len(p.Messages))
	}
	for i, role := range roles {
		if p.Messages[i].Role != role {
			t.Errorf("message %d role = %s, want %s", i, p.Messages[i].Role, role)
		}
	}
	if p.Messages[2].Content != "draft" {
		t.Errorf("expected draft as assistant turn, got %q", p.Messages[2].Content)
	}
	if p.Schema != nil {
		t.Error("revision should not request structured output")
	}
}

func TestSummarySchema(t *testing.T) {
	table := PharmacovigilanceTable()
	step, _ := table.Lookup(PharmacovigilanceSummary)

	p, err := step.Build(table.inputs(step, Snapshot{}, Config{Schema: `{"type":"object"}`}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !p.Schema.HasSchema() || p.Schema.JSONSchema.Name != SummarySchemaName {
		t.Errorf("expected summary schema, got %+v", p.Schema)
	}
	if !json.Valid(p.Schema.JSONSchema.Schema) {
		t.Error("expected raw schema preserved")
	}

	if _, err := step.Build(table.inputs(step, Snapshot{}, Config{Schema: `{"type":`})); err == nil {
		t.Error("expected invalid schema error")
	}

	p, err = step.Build(table.inputs(step, Snapshot{}, Config{}))
	if err != nil || p.Schema != nil {
		t.Errorf("expected no schema when unset, got %+v, %v", p.Schema, err)
	}
}
