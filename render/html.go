package render

import (
	"bytes"
	_ "embed"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"k8s.io/klog/v2"
)

//go:embed templates/results.html
var resultsTemplate string

// HTML renders views as the results fragment of the web page.
// Step text is treated as markdown; raw HTML in it is not passed through.
type HTML struct {
	md   goldmark.Markdown
	tmpl *template.Template
}

// NewHTML creates an HTML renderer.
func NewHTML() *HTML {
	h := &HTML{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
	h.tmpl = template.Must(template.New("results").Funcs(template.FuncMap{
		"markdown": h.Markdown,
	}).Parse(resultsTemplate))
	return h
}

// Markdown converts step text to HTML.
func (h *HTML) Markdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(text), &buf); err != nil {
		klog.V(2).Infof("markdown conversion failed: %v", err)
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

// Render writes the results fragment for a view.
func (h *HTML) Render(w io.Writer, v View) error {
	return h.tmpl.Execute(w, v)
}

// String renders a view to a string.
func (h *HTML) String(v View) (string, error) {
	var buf bytes.Buffer
	if err := h.Render(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
