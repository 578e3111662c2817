package report

import (
	"strings"
	"testing"
)

func TestLoadTemplates(t *testing.T) {
	ts, err := LoadTemplates()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, typ := range []string{"initial_assessment", "session_note", "progress", "discharge"} {
		tmpl, ok := ts.Get(typ)
		if !ok {
			t.Errorf("missing template %q", typ)
			continue
		}
		if tmpl.Title == "" || tmpl.System == "" {
			t.Errorf("template %q should have a title and a system prompt", typ)
		}
	}
	list := ts.List()
	if len(list) != 4 || list[0].Type != "discharge" {
		t.Errorf("expected 4 sorted templates, got %d starting with %q", len(list), list[0].Type)
	}
}

func TestTemplate_Render(t *testing.T) {
	ts, err := LoadTemplates()
	if err != nil {
		t.Fatal(err)
	}
	tmpl, _ := ts.Get("initial_assessment")
	out, err := tmpl.Render(PromptData{PatientName: "Carmen Vidal", Age: 34, Date: "14/10/2026", Notes: "Insomnio de 3 meses."})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Carmen Vidal (34 años)") {
		t.Errorf("expected patient name and age in prompt:\n%s", out)
	}
	if !strings.Contains(out, "Insomnio de 3 meses.") {
		t.Error("expected notes in prompt")
	}
	if strings.Contains(out, "Transcripción") {
		t.Error("transcript section should be omitted when empty")
	}
	if strings.Contains(out, "\n\n\n") {
		t.Error("blank lines should be collapsed")
	}
}

func TestParseTemplates_Errors(t *testing.T) {
	cases := map[string]string{
		"missing type": "templates:\n  - title: x\n    prompt: hi\n",
		"duplicate":    "templates:\n  - type: a\n    prompt: x\n  - type: a\n    prompt: y\n",
		"bad template": "templates:\n  - type: a\n    prompt: \"{{.Name\"\n",
		"bad yaml":     "templates: [",
	}
	for name, src := range cases {
		if _, err := ParseTemplates([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseTemplates_DefaultSystem(t *testing.T) {
	ts, err := ParseTemplates([]byte("default_system: base\ntemplates:\n  - type: a\n    prompt: hola\n  - type: b\n    system: own\n    prompt: adiós\n"))
	if err != nil {
		t.Fatal(err)
	}
	a, _ := ts.Get("a")
	b, _ := ts.Get("b")
	if a.System != "base" || b.System != "own" {
		t.Errorf("unexpected systems %q %q", a.System, b.System)
	}
}
