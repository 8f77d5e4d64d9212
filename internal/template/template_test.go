package template

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/attestlabs/attest/internal/analysis"
)

func validTemplate() *Template {
	return &Template{
		ID:   "t",
		Name: "Test",
		Sections: []Section{
			{ID: "a", Name: "A"},
			{ID: "b", Name: "B", Dependencies: []string{"a"}},
		},
		Outputs: []analysis.Output{analysis.OutputSummary},
	}
}

func TestValidateAcceptsWellFormedTemplate(t *testing.T) {
	if err := validTemplate().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		tmpl *Template
		want string
	}{
		{
			"no sections",
			&Template{ID: "t"},
			"no sections",
		},
		{
			"missing section id",
			&Template{ID: "t", Sections: []Section{{Name: "X"}}},
			"has no id",
		},
		{
			"duplicate section id",
			&Template{ID: "t", Sections: []Section{{ID: "a", Name: "A"}, {ID: "a", Name: "A2"}}},
			"duplicate",
		},
		{
			"self reference",
			&Template{ID: "t", Sections: []Section{{ID: "a", Name: "A", Dependencies: []string{"a"}}}},
			"depends on itself",
		},
		{
			"unknown dependency",
			&Template{ID: "t", Sections: []Section{{ID: "a", Name: "A", Dependencies: []string{"ghost"}}}},
			"unknown section",
		},
		{
			"cycle",
			&Template{ID: "t", Sections: []Section{
				{ID: "a", Name: "A", Dependencies: []string{"c"}},
				{ID: "b", Name: "B", Dependencies: []string{"a"}},
				{ID: "c", Name: "C", Dependencies: []string{"b"}},
			}},
			"cycle",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tmpl.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestDependencyDepth(t *testing.T) {
	cases := []struct {
		name     string
		sections []Section
		want     int
	}{
		{
			"no dependencies",
			[]Section{{ID: "a"}, {ID: "b"}},
			1,
		},
		{
			"chain of three",
			[]Section{
				{ID: "a"},
				{ID: "b", Dependencies: []string{"a"}},
				{ID: "c", Dependencies: []string{"b"}},
			},
			3,
		},
		{
			"diamond",
			[]Section{
				{ID: "a"},
				{ID: "b", Dependencies: []string{"a"}},
				{ID: "c", Dependencies: []string{"a"}},
				{ID: "d", Dependencies: []string{"b", "c"}},
			},
			3,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tmpl := &Template{ID: "t", Sections: tc.sections}
			if err := tmpl.Validate(); err != nil {
				t.Fatalf("validate: %v", err)
			}
			if got := tmpl.DependencyDepth(); got != tc.want {
				t.Errorf("depth = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestOutputSet(t *testing.T) {
	tmpl := &Template{Outputs: []analysis.Output{analysis.OutputSummary, analysis.OutputQuotes}}
	set := tmpl.OutputSet()
	if !set[analysis.OutputSummary] || !set[analysis.OutputQuotes] {
		t.Error("requested outputs missing from set")
	}
	if set[analysis.OutputDecisions] {
		t.Error("unrequested output present in set")
	}
}

const meetingYAML = `
id: meeting
name: Meeting Analysis
sections:
  - id: summary
    name: Executive Summary
    prompt: Summarize the meeting.
    output_format: paragraph
  - id: actions
    name: Action Items
    prompt: List committed follow-ups.
    output_format: bullets
    extract_evidence: true
    dependencies: [summary]
outputs:
  - summary
  - action_items
`

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meeting.yaml")
	if err := os.WriteFile(path, []byte(meetingYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tmpl.ID != "meeting" || len(tmpl.Sections) != 2 {
		t.Fatalf("parsed template = %+v", tmpl)
	}
	if tmpl.Sections[1].OutputFormat != FormatBullets {
		t.Errorf("output format = %q", tmpl.Sections[1].OutputFormat)
	}
	if !tmpl.Sections[1].ExtractEvidence {
		t.Error("extract_evidence not parsed")
	}
	if len(tmpl.Outputs) != 2 || tmpl.Outputs[1] != analysis.OutputActionItems {
		t.Errorf("outputs = %v", tmpl.Outputs)
	}
}

func TestLoadDirRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"one.yaml", "two.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(meetingYAML), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := LoadDir(dir); err == nil || !strings.Contains(err.Error(), "duplicate template id") {
		t.Errorf("error = %v, want duplicate template id", err)
	}
}

func TestLoadDirSkipsNonYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "meeting.yaml"), []byte(meetingYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	templates, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(templates) != 1 || templates["meeting"] == nil {
		t.Errorf("templates = %v", templates)
	}
}
