package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/richinex/aecheck/workflow"
)

// View is the presentational form of a run.
type View struct {
	Buckets []Bucket
	Summary *Summary
	Loading bool
	Current string
	State   workflow.State
}

// Bucket groups the narrative results of one category.
type Bucket struct {
	Category workflow.Category
	Label    string
	Cards    []Card
}

// Card is one narrative step result.
type Card struct {
	Title  string
	Text   string
	Failed bool
}

// Summary is the structured step result, field by field.
type Summary struct {
	Title  string
	Fields []Field
	// Error is set when the summary step failed.
	Error string
}

// Field is one top-level member of the structured summary.
type Field struct {
	Key   string
	Label string
	Value string
	Items []string
}

// Layout partitions results according to a step table.
type Layout struct {
	table      *workflow.Table
	fieldOrder []string
}

// NewLayout creates a layout for a table.
func NewLayout(table *workflow.Table) *Layout {
	return &Layout{table: table}
}

// WithSchema orders summary fields as the schema declares its properties.
func (l *Layout) WithSchema(schema string) *Layout {
	l.fieldOrder = SchemaFieldOrder(schema)
	return l
}

// SchemaFieldOrder returns the top-level property names of a JSON schema in
// document order.
func SchemaFieldOrder(schema string) []string {
	var keys []string
	gjson.Get(schema, "properties").ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}

// Build converts an update into a view. Steps without results are omitted.
// The first structured result becomes the summary; every other result is a
// card in its category's bucket, in table order.
func (l *Layout) Build(u workflow.Update) View {
	v := View{Loading: u.Loading, Current: u.Current, State: u.State}
	buckets := make(map[workflow.Category]int)

	for _, step := range l.table.Steps() {
		r, ok := u.Results[step.Title]
		if !ok {
			continue
		}
		if r.Kind() == workflow.KindStructured && v.Summary == nil {
			v.Summary = &Summary{Title: step.Title, Fields: l.fields(r.Fields())}
			continue
		}
		if r.Failed() && step.Category == workflow.CategorySummary && v.Summary == nil {
			v.Summary = &Summary{Title: step.Title, Error: r.Text()}
			continue
		}

		i, seen := buckets[step.Category]
		if !seen {
			i = len(v.Buckets)
			buckets[step.Category] = i
			v.Buckets = append(v.Buckets, Bucket{Category: step.Category, Label: categoryLabel(step.Category)})
		}
		v.Buckets[i].Cards = append(v.Buckets[i].Cards, Card{
			Title:  step.Title,
			Text:   r.Text(),
			Failed: r.Failed(),
		})
	}
	return v
}

func (l *Layout) fields(obj map[string]any) []Field {
	keys := make([]string, 0, len(obj))
	seen := make(map[string]bool, len(obj))
	for _, k := range l.fieldOrder {
		if _, ok := obj[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range obj {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		f := Field{Key: k, Label: humanize(k)}
		if items, ok := obj[k].([]any); ok {
			for _, item := range items {
				f.Items = append(f.Items, formatValue(item))
			}
		} else {
			f.Value = formatValue(obj[k])
		}
		fields = append(fields, f)
	}
	return fields
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = humanize(k) + ": " + formatValue(val[k])
		}
		return strings.Join(parts, "; ")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

// humanize turns a snake_case or camelCase key into a label.
func humanize(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case r == '_' || r == '-':
			b.WriteByte(' ')
		case i > 0 && r >= 'A' && r <= 'Z':
			b.WriteByte(' ')
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func categoryLabel(c workflow.Category) string {
	switch c {
	case workflow.CategoryAnalysis:
		return "Analyses"
	case workflow.CategoryFeedback:
		return "Judge Feedback"
	case workflow.CategoryRevision:
		return "Revisions"
	case workflow.CategorySummary:
		return "Summary"
	case "":
		return "Results"
	default:
		return humanize(string(c))
	}
}
