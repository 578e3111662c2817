package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template describes one report type and the prompt used to generate it.
type Template struct {
	Type   string `yaml:"type" json:"type"`
	Title  string `yaml:"title" json:"title"`
	System string `yaml:"system" json:"-"`
	Prompt string `yaml:"prompt" json:"-"`

	tmpl *template.Template
}

// PromptData is the data available to a template prompt.
type PromptData struct {
	PatientName string
	Age         int
	Date        string
	Notes       string
	Transcript  string
}

type Templates struct {
	byType map[string]*Template
}

type templatesFile struct {
	DefaultSystem string      `yaml:"default_system"`
	Templates     []*Template `yaml:"templates"`
}

// LoadTemplates parses the embedded report templates.
func LoadTemplates() (*Templates, error) {
	return ParseTemplates(templatesYAML)
}

func ParseTemplates(data []byte) (*Templates, error) {
	var f templatesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse report templates: %w", err)
	}
	ts := &Templates{byType: make(map[string]*Template, len(f.Templates))}
	for _, t := range f.Templates {
		if t.Type == "" {
			return nil, fmt.Errorf("report template without type")
		}
		if _, dup := ts.byType[t.Type]; dup {
			return nil, fmt.Errorf("duplicate report template %q", t.Type)
		}
		if t.System == "" {
			t.System = f.DefaultSystem
		}
		tmpl, err := template.New(t.Type).Option("missingkey=error").Parse(t.Prompt)
		if err != nil {
			return nil, fmt.Errorf("report template %q: %w", t.Type, err)
		}
		t.tmpl = tmpl
		ts.byType[t.Type] = t
	}
	return ts, nil
}

func (ts *Templates) Get(reportType string) (*Template, bool) {
	t, ok := ts.byType[reportType]
	return t, ok
}

// List returns the templates sorted by type.
func (ts *Templates) List() []*Template {
	out := make([]*Template, 0, len(ts.byType))
	for _, t := range ts.byType {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Render executes the prompt and collapses runs of blank lines.
func (t *Template) Render(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Type, err)
	}
	lines := strings.Split(buf.String(), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if strings.TrimSpace(l) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, strings.TrimSpace(l))
	}
	return strings.TrimSpace(strings.Join(out, "\n")), nil
}
