package extractor

import (
	"fmt"
	"strings"

	"github.com/attestlabs/attest/internal/analysis"
	"github.com/attestlabs/attest/internal/template"
)

const systemPrompt = `You are Attest, an analyst that turns spoken-word transcripts into structured, citation-grounded analysis records.

You are given a transcript where every line starts with a [MM:SS] timestamp marker, and a list of analysis sections to produce.

## Rules
- Every timestamp you emit MUST be whole seconds derived from a [MM:SS] marker that appears in the transcript text. A line marked [2:45] is second 165. Never invent a timestamp.
- Quotes must be verbatim text from the transcript. Never paraphrase inside a quote.
- Respect each section's output-format constraint exactly.
- When asked for item collections, give every item a stable human-readable id of the form "<kind>-<n>" (e.g. "decision-1", "action-2"), unique within its collection, and use those ids in cross-reference arrays.
- Respond with a single JSON object and nothing else: no prose, no markdown fences, no commentary.
- If the transcript contains nothing for a section or collection, return an empty string or empty array — never omit a requested key.`

const (
	bulletChar        = "-"
	maxBulletItems    = 8
	maxParagraphWords = 150
)

// buildPrompt assembles the user prompt for one extraction call: the
// requested sections with their format constraints, prior sections as
// cascading context, the transcript, and a worked response example covering
// exactly the requested outputs.
func buildPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("Analyze the transcript below and produce the following sections.\n\n")

	for i, sec := range req.Sections {
		fmt.Fprintf(&sb, "## Section %d: %s\n", i+1, sec.Name)
		sb.WriteString(sec.Prompt)
		sb.WriteString("\n")
		sb.WriteString(formatConstraint(sec.OutputFormat))
		sb.WriteString("\n\n")
	}

	writeOutputInstructions(&sb, req.Outputs)

	if len(req.PriorSections) > 0 {
		sb.WriteString("## Context from earlier analysis passes\n")
		sb.WriteString("Use these already-extracted sections for cross-referential consistency. Do not repeat them in your response.\n\n")
		for _, prior := range req.PriorSections {
			fmt.Fprintf(&sb, "### %s\n%s\n\n", prior.Name, prior.Content)
		}
	}

	sb.WriteString("## Transcript\n---\n")
	sb.WriteString(req.Transcript)
	sb.WriteString("\n---\n\n")

	sb.WriteString("Respond with a single JSON object matching this example exactly in structure:\n")
	sb.WriteString(responseExample(req))
	sb.WriteString("\nReturn ONLY the JSON object.")

	return sb.String()
}

func formatConstraint(f template.OutputFormat) string {
	switch f {
	case template.FormatBullets:
		return fmt.Sprintf("Format: a bulleted list using %q bullets, at most %d items.", bulletChar+" ", maxBulletItems)
	case template.FormatTable:
		return "Format: a markdown table with a header row."
	default:
		return fmt.Sprintf("Format: a single paragraph of at most %d words.", maxParagraphWords)
	}
}

func writeOutputInstructions(sb *strings.Builder, outputs analysis.OutputSet) {
	var wants []string
	if outputs[analysis.OutputSummary] {
		wants = append(wants, `"summary": a 2-4 sentence overview of the whole transcript`)
	}
	if outputs[analysis.OutputAgendaItems] {
		wants = append(wants, `"agendaItems": topics covered, ids "agenda-<n>"`)
	}
	if outputs[analysis.OutputBenchmarks] {
		wants = append(wants, `"benchmarks": metrics or measurements stated aloud, ids "benchmark-<n>"`)
	}
	if outputs[analysis.OutputRadioReports] {
		wants = append(wants, `"radioReports": formal unit status reports, ids "radio-<n>"`)
	}
	if outputs[analysis.OutputSafetyEvents] {
		wants = append(wants, `"safetyEvents": hazards or safety concerns with severity low|medium|high|critical, ids "safety-<n>"`)
	}
	if outputs[analysis.OutputActionItems] {
		wants = append(wants, `"actionItems": committed follow-ups, ids "action-<n>"; reference motivating decisions in "decisionIds"`)
	}
	if outputs[analysis.OutputDecisions] {
		wants = append(wants, `"decisions": calls made during the conversation, ids "decision-<n>"; reference related agenda items in "agendaItemIds"`)
	}
	if outputs[analysis.OutputQuotes] {
		wants = append(wants, `"quotes": notable verbatim statements, ids "quote-<n>"`)
	}

	if len(wants) == 0 {
		return
	}
	sb.WriteString("## Requested collections\n")
	for _, w := range wants {
		sb.WriteString("- ")
		sb.WriteString(w)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

// responseExample renders a worked schema example that contains exactly the
// requested keys, so the model sees the shape it must return and nothing more.
func responseExample(req Request) string {
	var sb strings.Builder
	sb.WriteString("{\n")

	if req.Outputs[analysis.OutputSummary] {
		sb.WriteString("  \"summary\": \"Two-sentence overview of the conversation.\",\n")
	}

	sb.WriteString("  \"sections\": [\n")
	for i, sec := range req.Sections {
		fmt.Fprintf(&sb, "    {\"name\": %q, \"content\": \"...\"}", sec.Name)
		if i < len(req.Sections)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("  ]")

	if req.Outputs[analysis.OutputAgendaItems] {
		sb.WriteString(",\n  \"agendaItems\": [\n    {\"id\": \"agenda-1\", \"topic\": \"...\", \"summary\": \"...\", \"timestamp\": 165}\n  ]")
	}
	if req.Outputs[analysis.OutputBenchmarks] {
		sb.WriteString(",\n  \"benchmarks\": [\n    {\"id\": \"benchmark-1\", \"metric\": \"...\", \"value\": \"...\", \"context\": \"...\", \"timestamp\": 300}\n  ]")
	}
	if req.Outputs[analysis.OutputRadioReports] {
		sb.WriteString(",\n  \"radioReports\": [\n    {\"id\": \"radio-1\", \"unit\": \"...\", \"report\": \"...\", \"timestamp\": 480}\n  ]")
	}
	if req.Outputs[analysis.OutputSafetyEvents] {
		sb.WriteString(",\n  \"safetyEvents\": [\n    {\"id\": \"safety-1\", \"description\": \"...\", \"severity\": \"high\", \"timestamp\": 510}\n  ]")
	}
	if req.Outputs[analysis.OutputActionItems] {
		sb.WriteString(",\n  \"actionItems\": [\n    {\"id\": \"action-1\", \"description\": \"...\", \"assignee\": \"...\", \"dueDate\": \"Friday\", \"timestamp\": 165, \"decisionIds\": [\"decision-1\"]}\n  ]")
	}
	if req.Outputs[analysis.OutputDecisions] {
		sb.WriteString(",\n  \"decisions\": [\n    {\"id\": \"decision-1\", \"description\": \"...\", \"rationale\": \"...\", \"timestamp\": 120, \"agendaItemIds\": [\"agenda-1\"]}\n  ]")
	}
	if req.Outputs[analysis.OutputQuotes] {
		sb.WriteString(",\n  \"quotes\": [\n    {\"id\": \"quote-1\", \"text\": \"verbatim words from the transcript\", \"speaker\": \"...\", \"timestamp\": 210}\n  ]")
	}

	sb.WriteString("\n}")
	return sb.String()
}
