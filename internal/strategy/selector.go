// Package strategy decides how many extraction calls an analysis run makes
// and how work is partitioned between them, based on a cheap token estimate
// and the template's shape.
package strategy

import (
	"fmt"
	"strings"

	"github.com/attestlabs/attest/internal/template"
)

// Strategy is one of three fixed processing plans, ordered basic < hybrid <
// advanced.
type Strategy string

const (
	Basic    Strategy = "basic"
	Hybrid   Strategy = "hybrid"
	Advanced Strategy = "advanced"
)

// rank orders strategies for ceiling comparisons.
func (s Strategy) rank() int {
	switch s {
	case Basic:
		return 0
	case Hybrid:
		return 1
	case Advanced:
		return 2
	}
	return -1
}

// Parse converts a user/template-supplied strategy name.
func Parse(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case Basic:
		return Basic, nil
	case Hybrid:
		return Hybrid, nil
	case Advanced:
		return Advanced, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

const (
	// charsPerToken is a conservative character-length heuristic, not a real
	// tokenizer.
	charsPerToken = 4

	basicMaxTokens  = 15000
	hybridMaxTokens = 60000

	// deepDependencyThreshold forces advanced when a section sits at the end
	// of a dependency chain this long, regardless of transcript size.
	deepDependencyThreshold = 3
)

// contentCeilings caps the recommendation for content types whose analysis
// quality depends on unbroken context.
var contentCeilings = map[string]Strategy{
	"deposition": Basic,
	"testimony":  Basic,
	"interview":  Hybrid,
}

// EstimateTokens estimates token count from character length.
func EstimateTokens(text string) int {
	return len(text) / charsPerToken
}

// Alternative describes a strategy the selector did not pick and why a
// caller might still choose it.
type Alternative struct {
	Strategy Strategy `json:"strategy"`
	Reason   string   `json:"reason"`
	Tradeoff string   `json:"tradeoff"`
}

// Recommendation is the selector's full answer.
type Recommendation struct {
	Strategy         Strategy      `json:"strategy"`
	Reasoning        string        `json:"reasoning"`
	EstimatedTime    [2]int        `json:"estimatedTime"` // [min,max] seconds
	TranscriptTokens int           `json:"transcriptTokens"`
	Confidence       float64       `json:"confidence"`
	Alternatives     []Alternative `json:"alternatives"`
}

// Recommend picks a strategy for the transcript and template. Ceilings from
// the template or its content type only ever cap the recommendation
// downward; when they do, the reasoning names the cap and its source.
func Recommend(text string, tmpl *template.Template) Recommendation {
	tokens := EstimateTokens(text)

	recommended := byTokens(tokens)
	reasoning := tokenReasoning(tokens, recommended)

	if tmpl != nil && tmpl.DependencyDepth() >= deepDependencyThreshold && recommended.rank() < Advanced.rank() {
		recommended = Advanced
		reasoning = fmt.Sprintf("template has a dependency chain of depth %d, which needs per-section cascading context", tmpl.DependencyDepth())
	}

	confidence := confidenceFor(tokens)

	// Apply ceilings, lowest wins. Never raises.
	if tmpl != nil {
		if ceiling, src, ok := ceilingFor(tmpl); ok && ceiling.rank() < recommended.rank() {
			reasoning = fmt.Sprintf("%s; capped to %s by %s", reasoning, ceiling, src)
			recommended = ceiling
			confidence = 0.8
		}
	}

	return Recommendation{
		Strategy:         recommended,
		Reasoning:        reasoning,
		EstimatedTime:    estimatedTime(recommended, tmpl),
		TranscriptTokens: tokens,
		Confidence:       confidence,
		Alternatives:     alternatives(recommended),
	}
}

// Validate never blocks a manual override; it returns a human-readable
// warning when the chosen strategy diverges sharply from the automatic
// recommendation, or "" when the choice is reasonable.
func Validate(text string, chosen Strategy, tmpl *template.Template) string {
	rec := Recommend(text, tmpl)
	gap := chosen.rank() - rec.Strategy.rank()
	switch {
	case gap <= -2:
		return fmt.Sprintf("strategy %s on a transcript this size (~%d tokens) risks output truncation; %s was recommended", chosen, rec.TranscriptTokens, rec.Strategy)
	case gap >= 2:
		return fmt.Sprintf("strategy %s makes one call per section on a short transcript (~%d tokens); %s would be faster with the same quality", chosen, rec.TranscriptTokens, rec.Strategy)
	}
	return ""
}

func byTokens(tokens int) Strategy {
	switch {
	case tokens < basicMaxTokens:
		return Basic
	case tokens < hybridMaxTokens:
		return Hybrid
	default:
		return Advanced
	}
}

func tokenReasoning(tokens int, s Strategy) string {
	switch s {
	case Basic:
		return fmt.Sprintf("transcript is ~%d tokens, small enough for one extraction call covering every section", tokens)
	case Hybrid:
		return fmt.Sprintf("transcript is ~%d tokens; three batched calls keep each prompt inside a comfortable window", tokens)
	default:
		return fmt.Sprintf("transcript is ~%d tokens; per-section calls with cascading context are needed to stay inside output limits", tokens)
	}
}

// ceilingFor returns the lowest applicable ceiling and its source.
func ceilingFor(tmpl *template.Template) (Strategy, string, bool) {
	var ceiling Strategy
	var src string
	found := false

	if tmpl.MaxStrategy != "" {
		if s, err := Parse(tmpl.MaxStrategy); err == nil {
			ceiling, src, found = s, fmt.Sprintf("template %q max_strategy", tmpl.ID), true
		}
	}
	if s, ok := contentCeilings[strings.ToLower(tmpl.ContentType)]; ok {
		if !found || s.rank() < ceiling.rank() {
			ceiling, src, found = s, fmt.Sprintf("content type %q (needs unbroken context)", tmpl.ContentType), true
		}
	}
	return ceiling, src, found
}

// confidenceFor is high inside a band and lower within 15% of a boundary,
// where the heuristic token estimate could tip either way.
func confidenceFor(tokens int) float64 {
	for _, boundary := range []int{basicMaxTokens, hybridMaxTokens} {
		lo := boundary - boundary*15/100
		hi := boundary + boundary*15/100
		if tokens >= lo && tokens <= hi {
			return 0.7
		}
	}
	return 0.9
}

func estimatedTime(s Strategy, tmpl *template.Template) [2]int {
	sections := 5
	if tmpl != nil && len(tmpl.Sections) > 0 {
		sections = len(tmpl.Sections)
	}
	switch s {
	case Basic:
		return [2]int{15, 40}
	case Hybrid:
		return [2]int{45, 120}
	default:
		// One call per section, roughly 15–30s each.
		return [2]int{sections * 15, sections * 30}
	}
}

func alternatives(chosen Strategy) []Alternative {
	all := map[Strategy]Alternative{
		Basic: {
			Strategy: Basic,
			Reason:   "single call, fastest and cheapest",
			Tradeoff: "risks truncation and shallow sections on long transcripts",
		},
		Hybrid: {
			Strategy: Hybrid,
			Reason:   "three batched calls balance depth and latency",
			Tradeoff: "batch grouping can split related sections across calls",
		},
		Advanced: {
			Strategy: Advanced,
			Reason:   "per-section calls give each section the full context window",
			Tradeoff: "slowest and most expensive; one call per section",
		},
	}
	delete(all, chosen)

	out := make([]Alternative, 0, 2)
	for _, s := range []Strategy{Basic, Hybrid, Advanced} {
		if alt, ok := all[s]; ok {
			out = append(out, alt)
		}
	}
	return out
}
