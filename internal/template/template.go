// Package template defines analysis templates: the ordered sections a run
// extracts, their output-format constraints, and their dependency wiring.
// Structural validation happens here, before any extraction runs.
package template

import (
	"fmt"

	"github.com/attestlabs/attest/internal/analysis"
)

// OutputFormat constrains how a section's content is rendered.
type OutputFormat string

const (
	FormatBullets   OutputFormat = "bullets"
	FormatParagraph OutputFormat = "paragraph"
	FormatTable     OutputFormat = "table"
)

// Section is one requested analysis section.
type Section struct {
	ID              string       `yaml:"id" json:"id"`
	Name            string       `yaml:"name" json:"name"`
	Prompt          string       `yaml:"prompt" json:"prompt"`
	OutputFormat    OutputFormat `yaml:"output_format" json:"outputFormat"`
	ExtractEvidence bool         `yaml:"extract_evidence" json:"extractEvidence"`
	Dependencies    []string     `yaml:"dependencies" json:"dependencies,omitempty"`
}

// Template is the caller-supplied description of one analysis. It is
// read-only to the core; nothing here mutates it after Validate.
type Template struct {
	ID          string            `yaml:"id" json:"id"`
	Name        string            `yaml:"name" json:"name"`
	Sections    []Section         `yaml:"sections" json:"sections"`
	Outputs     []analysis.Output `yaml:"outputs" json:"outputs"`
	MaxStrategy string            `yaml:"max_strategy" json:"maxStrategy,omitempty"`
	ContentType string            `yaml:"content_type" json:"contentType,omitempty"`
}

// OutputSet returns the requested outputs as a set.
func (t *Template) OutputSet() analysis.OutputSet {
	return analysis.NewOutputSet(t.Outputs)
}

// Section returns the section with the given id, or nil.
func (t *Template) Section(id string) *Section {
	for i := range t.Sections {
		if t.Sections[i].ID == id {
			return &t.Sections[i]
		}
	}
	return nil
}

// Validate checks structural integrity: unique section ids, resolvable
// dependencies, no self-references, and an acyclic dependency graph.
func (t *Template) Validate() error {
	if len(t.Sections) == 0 {
		return fmt.Errorf("template %q has no sections", t.ID)
	}

	ids := make(map[string]bool, len(t.Sections))
	for _, s := range t.Sections {
		if s.ID == "" {
			return fmt.Errorf("template %q: section %q has no id", t.ID, s.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("template %q: duplicate section id %q", t.ID, s.ID)
		}
		ids[s.ID] = true
	}

	for _, s := range t.Sections {
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				return fmt.Errorf("template %q: section %q depends on itself", t.ID, s.ID)
			}
			if !ids[dep] {
				return fmt.Errorf("template %q: section %q depends on unknown section %q", t.ID, s.ID, dep)
			}
		}
	}

	if cycle := t.findCycle(); cycle != "" {
		return fmt.Errorf("template %q: dependency cycle through section %q", t.ID, cycle)
	}

	return nil
}

// findCycle runs a three-color DFS over the dependency graph and returns the
// id of a section on a cycle, or "".
func (t *Template) findCycle() string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(t.Sections))

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		sec := t.Section(id)
		for _, dep := range sec.Dependencies {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if found := visit(dep); found != "" {
					return found
				}
			}
		}
		color[id] = black
		return ""
	}

	for _, s := range t.Sections {
		if color[s.ID] == white {
			if found := visit(s.ID); found != "" {
				return found
			}
		}
	}
	return ""
}

// DependencyDepth returns the length of the longest dependency chain, where
// a section with no dependencies has depth 1. The template must already be
// validated; cycles would not terminate.
func (t *Template) DependencyDepth() int {
	memo := make(map[string]int, len(t.Sections))

	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := memo[id]; ok {
			return d
		}
		sec := t.Section(id)
		max := 0
		for _, dep := range sec.Dependencies {
			if d := depth(dep); d > max {
				max = d
			}
		}
		memo[id] = max + 1
		return max + 1
	}

	max := 0
	for _, s := range t.Sections {
		if d := depth(s.ID); d > max {
			max = d
		}
	}
	return max
}
