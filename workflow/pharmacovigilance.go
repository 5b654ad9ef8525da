package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/aecheck/llm"
)

// Step titles of the pharmacovigilance pipeline. Results are keyed by these.
const (
	BasicAnalysis               = "Basic Analysis"
	IntermediateAnalysis        = "Intermediate Analysis"
	AdvancedAnalysis            = "Advanced Analysis"
	JudgeBasicAnalysis          = "Judge Feedback: Basic Analysis"
	JudgeIntermediateAnalysis   = "Judge Feedback: Intermediate Analysis"
	RevisedBasicAnalysis        = "Revised Basic Analysis"
	RevisedIntermediateAnalysis = "Revised Intermediate Analysis"
	PharmacovigilanceSummary    = "Pharmacovigilance Summary"
)

// SummarySchemaName names the structured output requested by the summary step.
const SummarySchemaName = "pharmacovigilance_summary"

// PharmacovigilanceSteps returns the default pipeline: three independent
// analyses, judge feedback on two of them, revisions using that feedback, and
// a structured summary over the advanced and revised analyses.
func PharmacovigilanceSteps() []Step {
	return []Step{
		{Title: BasicAnalysis, Category: CategoryAnalysis, Build: analyze},
		{Title: IntermediateAnalysis, Category: CategoryAnalysis, Build: analyze},
		{Title: AdvancedAnalysis, Category: CategoryAnalysis, Build: analyze},
		{
			Title:    JudgeBasicAnalysis,
			Category: CategoryFeedback,
			Uses:     []string{BasicAnalysis},
			Build:    judge(BasicAnalysis),
		},
		{
			Title:    JudgeIntermediateAnalysis,
			Category: CategoryFeedback,
			Uses:     []string{IntermediateAnalysis},
			Build:    judge(IntermediateAnalysis),
		},
		{
			Title:    RevisedBasicAnalysis,
			Category: CategoryRevision,
			Uses:     []string{BasicAnalysis, JudgeBasicAnalysis},
			Build:    revise(BasicAnalysis, JudgeBasicAnalysis),
		},
		{
			Title:    RevisedIntermediateAnalysis,
			Category: CategoryRevision,
			Uses:     []string{IntermediateAnalysis, JudgeIntermediateAnalysis},
			Build:    revise(IntermediateAnalysis, JudgeIntermediateAnalysis),
		},
		{
			Title:    PharmacovigilanceSummary,
			Category: CategorySummary,
			Uses:     []string{AdvancedAnalysis, RevisedBasicAnalysis, RevisedIntermediateAnalysis},
			Build:    summarize(AdvancedAnalysis, RevisedBasicAnalysis, RevisedIntermediateAnalysis),
		},
	}
}

// PharmacovigilanceTable returns the validated default table.
func PharmacovigilanceTable() *Table {
	t, err := NewTable(PharmacovigilanceSteps()...)
	if err != nil {
		panic(err)
	}
	return t
}

func analyze(in Inputs) (Payload, error) {
	return Payload{
		ModelIndex: in.ModelIndex(),
		Messages: []llm.ChatMessage{
			llm.SystemMessage(in.Prompt()),
			llm.UserMessage(in.Narrative()),
		},
	}, nil
}

func judge(reviewed string) BuildFunc {
	return func(in Inputs) (Payload, error) {
		user := section("Adverse event narrative", in.Narrative()) +
			section("Analysis under review", in.Text(reviewed))
		return Payload{
			ModelIndex: in.ModelIndex(),
			Messages: []llm.ChatMessage{
				llm.SystemMessage(in.Prompt()),
				llm.UserMessage(user),
			},
		}, nil
	}
}

func revise(original, feedback string) BuildFunc {
	return func(in Inputs) (Payload, error) {
		return Payload{
			ModelIndex: in.ModelIndex(),
			Messages: []llm.ChatMessage{
				llm.SystemMessage(in.Prompt()),
				llm.UserMessage(in.Narrative()),
				llm.AssistantMessage(in.Text(original)),
				llm.UserMessage(section("Reviewer feedback", in.Text(feedback)) +
					"Revise your analysis to address this feedback."),
			},
		}, nil
	}
}

func summarize(sources ...string) BuildFunc {
	return func(in Inputs) (Payload, error) {
		var user strings.Builder
		user.WriteString(section("Adverse event narrative", in.Narrative()))
		for _, title := range sources {
			user.WriteString(section(title, in.Text(title)))
		}

		var format *llm.ResponseFormat
		if schema := strings.TrimSpace(in.Schema()); schema != "" {
			if !json.Valid([]byte(schema)) {
				return Payload{}, fmt.Errorf("summary schema is not valid JSON")
			}
			format = llm.NewJSONSchemaFormat(SummarySchemaName, json.RawMessage(schema))
		}

		return Payload{
			ModelIndex: in.ModelIndex(),
			Messages: []llm.ChatMessage{
				llm.SystemMessage(in.Prompt()),
				llm.UserMessage(user.String()),
			},
			Schema: format,
		}, nil
	}
}

func section(heading, body string) string {
	return "## " + heading + "\n\n" + body + "\n\n"
}
