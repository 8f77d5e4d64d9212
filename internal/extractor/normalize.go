package extractor

import (
	"encoding/json"
	"strings"

	"github.com/attestlabs/attest/internal/analysis"
)

// keySynonyms maps normalized key spellings (lowercased, separators
// stripped) to canonical response keys, so snake_case, kebab-case, and the
// model's occasional synonym all land on the same field.
var keySynonyms = map[string]string{
	"summary":        "summary",
	"overview":       "summary",
	"sections":       "sections",
	"agendaitems":    "agendaItems",
	"agenda":         "agendaItems",
	"topics":         "agendaItems",
	"benchmarks":     "benchmarks",
	"metrics":        "benchmarks",
	"radioreports":   "radioReports",
	"safetyevents":   "safetyEvents",
	"safetyconcerns": "safetyEvents",
	"actionitems":    "actionItems",
	"actions":        "actionItems",
	"tasks":          "actionItems",
	"decisions":      "decisions",
	"quotes":         "quotes",
	"notablequotes":  "quotes",
}

// arrayKeys are the canonical keys that must decode as JSON arrays when
// present.
var arrayKeys = map[string]bool{
	"sections":     true,
	"agendaItems":  true,
	"benchmarks":   true,
	"radioReports": true,
	"safetyEvents": true,
	"actionItems":  true,
	"decisions":    true,
	"quotes":       true,
}

func normalizeKey(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch r {
		case '_', '-', ' ':
		default:
			sb.WriteRune(r)
		}
	}
	return strings.ToLower(sb.String())
}

// normalizeKeys rewrites a raw top-level object so every recognized key
// carries its canonical name. Unrecognized keys are kept as-is and ignored
// downstream.
func normalizeKeys(raw map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(raw))
	for key, val := range raw {
		if canonical, ok := keySynonyms[normalizeKey(key)]; ok {
			out[canonical] = val
			continue
		}
		out[key] = val
	}
	return out
}

// wireSection tolerates the common name/content synonyms at the item level.
type wireSection struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Text    string `json:"text"`
}

func (w wireSection) toSection() analysis.Section {
	name := w.Name
	if name == "" {
		name = w.Title
	}
	content := w.Content
	if content == "" {
		content = w.Text
	}
	return analysis.Section{Name: name, Content: content}
}

// stripFences removes a surrounding markdown code fence when the model wraps
// its JSON despite the prompt. Anything beyond that is a contract violation.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
