package enrich

import (
	"fmt"
	"strings"

	"github.com/attestlabs/attest/internal/transcript"
)

const enrichmentSystemPrompt = `You are an enrichment assistant. You add structured sub-fields to items already extracted from a transcript.

You only reference existing items by their exact ids, and transcript segments by their [seg N] ids. You never invent items, quotes, or timestamps. Respond with a single JSON object, no prose, no markdown fences.`

// maxContextSegments bounds the transcript slice included in enrichment
// prompts.
const maxContextSegments = 400

// buildSharedContext renders the enrichable items and the transcript once;
// both modes wrap pattern task blocks around it.
func buildSharedContext(pctx Context) string {
	var sb strings.Builder

	sb.WriteString("## Existing items\n")
	for _, d := range pctx.Results.Decisions {
		fmt.Fprintf(&sb, "- %s (decision): %s\n", d.ID, d.Description)
	}
	for _, a := range pctx.Results.ActionItems {
		fmt.Fprintf(&sb, "- %s (action item): %s\n", a.ID, a.Description)
	}
	for _, q := range pctx.Results.Quotes {
		fmt.Fprintf(&sb, "- %s (quote): %q\n", q.ID, q.Text)
	}

	end := len(pctx.Segments) - 1
	if end >= maxContextSegments {
		end = maxContextSegments - 1
	}
	sb.WriteString("\n## Transcript\n---\n")
	sb.WriteString(transcript.RenderRange(pctx.Segments, 0, end))
	sb.WriteString("---\n")

	return sb.String()
}

func buildSeparatePrompt(pctx Context, p Pattern) string {
	var sb strings.Builder
	sb.WriteString(buildSharedContext(pctx))
	sb.WriteString("\n## Task\n")
	sb.WriteString(p.BuildPrompt(pctx))
	sb.WriteString("\n\nReturn ONLY the JSON object.")
	return sb.String()
}

// buildCombinedPrompt describes every runnable pattern's task in one prompt;
// the response nests each pattern's output under its name.
func buildCombinedPrompt(pctx Context, patterns []Pattern) string {
	var sb strings.Builder
	sb.WriteString(buildSharedContext(pctx))

	sb.WriteString("\n## Tasks\n")
	for _, p := range patterns {
		fmt.Fprintf(&sb, "### %s\n%s\n\n", p.Name(), p.BuildPrompt(pctx))
	}

	sb.WriteString(`Respond with one JSON object nesting each task's output under its name:
{"patterns": {`)
	for i, p := range patterns {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q: {...}", p.Name())
	}
	sb.WriteString(`}}
Return ONLY the JSON object.`)

	return sb.String()
}
