package workflow

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/richinex/aecheck/llm"
)

// Step table validation errors.
var (
	ErrInvalidStep      = errors.New("invalid step")
	ErrDuplicateStep    = errors.New("duplicate step title")
	ErrUnknownStep      = errors.New("unknown step")
	ErrForwardReference = errors.New("step uses a result that is not produced earlier")
)

// Category groups steps for presentation.
type Category string

// Categories of the pharmacovigilance pipeline.
const (
	CategoryAnalysis Category = "analysis"
	CategoryFeedback Category = "feedback"
	CategoryRevision Category = "revision"
	CategorySummary  Category = "summary"
)

// Payload is what a step asks the executor to send.
type Payload struct {
	ModelIndex int
	Messages   []llm.ChatMessage
	// Schema requests structured output; the step's result is then parsed
	// as a JSON object while it streams.
	Schema *llm.ResponseFormat
}

// BuildFunc computes a step's payload from configuration and earlier results.
type BuildFunc func(in Inputs) (Payload, error)

// Step is one LLM call in the pipeline.
type Step struct {
	Title    string
	Category Category
	// Uses lists the titles of earlier steps whose results Build reads.
	Uses  []string
	Build BuildFunc
}

// Inputs is the read-only view a step's Build receives.
type Inputs struct {
	step    string
	uses    map[string]bool
	results Snapshot
	config  Config
}

// Narrative returns the text under review.
func (in Inputs) Narrative() string {
	return in.config.Narrative
}

// Prompt returns the configured system prompt for the step being built.
func (in Inputs) Prompt() string {
	return in.config.Prompt(in.step)
}

// ModelIndex returns the catalog index selected for the step being built.
func (in Inputs) ModelIndex() int {
	return in.config.ModelIndex(in.step)
}

// Schema returns the configured JSON schema text.
func (in Inputs) Schema() string {
	return in.config.Schema
}

// Result returns an earlier step's result. Titles not declared in the step's
// Uses are refused.
func (in Inputs) Result(title string) (Result, bool) {
	if !in.uses[title] {
		klog.Warningf("step %q read undeclared input %q", in.step, title)
		return Result{}, false
	}
	r, ok := in.results[title]
	return r, ok
}

// Text returns an earlier step's text for use in a prompt. Missing and
// failed results are forwarded as "". Structured results are JSON.
func (in Inputs) Text(title string) string {
	r, ok := in.Result(title)
	if !ok || r.Failed() {
		return ""
	}
	return r.String()
}

// Table is a validated, ordered list of steps.
type Table struct {
	steps []Step
	index map[string]int
}

// NewTable validates steps and fixes their order. Every title must be unique
// and every Uses entry must name an earlier step.
func NewTable(steps ...Step) (*Table, error) {
	t := &Table{
		steps: make([]Step, 0, len(steps)),
		index: make(map[string]int, len(steps)),
	}
	all := make(map[string]bool, len(steps))
	for _, s := range steps {
		all[s.Title] = true
	}

	for i, s := range steps {
		if s.Title == "" {
			return nil, fmt.Errorf("%w: step %d has no title", ErrInvalidStep, i)
		}
		if s.Build == nil {
			return nil, fmt.Errorf("%w: step %q has no build function", ErrInvalidStep, s.Title)
		}
		if _, dup := t.index[s.Title]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStep, s.Title)
		}
		for _, used := range s.Uses {
			if _, earlier := t.index[used]; earlier {
				continue
			}
			if all[used] {
				return nil, fmt.Errorf("%w: %q uses %q", ErrForwardReference, s.Title, used)
			}
			return nil, fmt.Errorf("%w: %q uses %q", ErrUnknownStep, s.Title, used)
		}

		s.Uses = append([]string(nil), s.Uses...)
		t.index[s.Title] = len(t.steps)
		t.steps = append(t.steps, s)
	}
	return t, nil
}

// Len returns the number of steps.
func (t *Table) Len() int {
	return len(t.steps)
}

// Steps returns the steps in execution order.
func (t *Table) Steps() []Step {
	return append([]Step(nil), t.steps...)
}

// Titles returns step titles in execution order.
func (t *Table) Titles() []string {
	titles := make([]string, len(t.steps))
	for i, s := range t.steps {
		titles[i] = s.Title
	}
	return titles
}

// Lookup returns the step with a title.
func (t *Table) Lookup(title string) (Step, bool) {
	i, ok := t.index[title]
	if !ok {
		return Step{}, false
	}
	return t.steps[i], true
}

// inputs prepares the Build view for a step.
func (t *Table) inputs(s Step, results Snapshot, cfg Config) Inputs {
	uses := make(map[string]bool, len(s.Uses))
	for _, u := range s.Uses {
		uses[u] = true
	}
	return Inputs{step: s.Title, uses: uses, results: results, config: cfg}
}
