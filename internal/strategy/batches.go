package strategy

import (
	"strings"

	"github.com/attestlabs/attest/internal/template"
)

// Batch is one group of sections processed in a single hybrid-mode call.
type Batch struct {
	Name     string
	Sections []template.Section
}

var batchKeywords = map[string][]string{
	"foundation": {"summary", "overview", "context", "background", "agenda", "participant", "intro"},
	"discussion": {"discussion", "analysis", "detail", "benchmark", "radio", "safety", "quote", "topic", "report"},
	"action":     {"action", "decision", "next", "follow", "task", "recommendation", "outcome"},
}

// batchOrder keeps foundation → discussion → action so later batches can
// receive earlier batches' output as cascading context.
var batchOrder = []string{"foundation", "discussion", "action"}

// GroupSections partitions sections into three semantically named batches by
// keyword matching on section id and name. When matching degenerates (a
// single non-empty batch, or more than 80% of sections in one batch) it
// falls back to equal thirds by index. Dependency-linked sections may land in
// different batches either way; hybrid mode does not promise dependency-aware
// grouping.
func GroupSections(sections []template.Section) []Batch {
	if len(sections) == 0 {
		return nil
	}

	grouped := map[string][]template.Section{}
	for _, sec := range sections {
		grouped[batchFor(sec)] = append(grouped[batchFor(sec)], sec)
	}

	if degenerate(grouped, len(sections)) {
		return equalThirds(sections)
	}

	var batches []Batch
	for _, name := range batchOrder {
		if secs := grouped[name]; len(secs) > 0 {
			batches = append(batches, Batch{Name: name, Sections: secs})
		}
	}
	return batches
}

func batchFor(sec template.Section) string {
	haystack := strings.ToLower(sec.ID + " " + sec.Name)
	for _, name := range batchOrder {
		for _, kw := range batchKeywords[name] {
			if strings.Contains(haystack, kw) {
				return name
			}
		}
	}
	return "discussion"
}

func degenerate(grouped map[string][]template.Section, total int) bool {
	nonEmpty := 0
	largest := 0
	for _, secs := range grouped {
		if len(secs) > 0 {
			nonEmpty++
		}
		if len(secs) > largest {
			largest = len(secs)
		}
	}
	return nonEmpty <= 1 || largest*100 > total*80
}

func equalThirds(sections []template.Section) []Batch {
	n := len(sections)
	cut1 := (n + 2) / 3
	cut2 := cut1 + (n-cut1+1)/2

	var batches []Batch
	parts := [][2]int{{0, cut1}, {cut1, cut2}, {cut2, n}}
	for i, p := range parts {
		if p[0] >= p[1] {
			continue
		}
		batches = append(batches, Batch{Name: batchOrder[i], Sections: sections[p[0]:p[1]]})
	}
	return batches
}

// PlanSectionGroups splits sections into per-call groups for advanced mode:
// one section per call, or evenly sized groups when the template has more
// sections than maxCalls.
func PlanSectionGroups(sections []template.Section, maxCalls int) [][]template.Section {
	if len(sections) == 0 {
		return nil
	}
	if maxCalls <= 0 || len(sections) <= maxCalls {
		groups := make([][]template.Section, len(sections))
		for i := range sections {
			groups[i] = sections[i : i+1]
		}
		return groups
	}

	groups := make([][]template.Section, 0, maxCalls)
	size := (len(sections) + maxCalls - 1) / maxCalls
	for start := 0; start < len(sections); start += size {
		end := start + size
		if end > len(sections) {
			end = len(sections)
		}
		groups = append(groups, sections[start:end])
	}
	return groups
}
