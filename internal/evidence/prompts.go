package evidence

import (
	"fmt"
	"strings"

	"github.com/attestlabs/attest/internal/transcript"
)

const citationSystemPrompt = `You are a citation assistant. You ground analysis sections in verbatim transcript excerpts.

You never write excerpt text yourself. You only refer to transcript segments by the [seg N] ids shown to you, and the system reconstructs the text from the real transcript. Respond with a single JSON object, no prose, no markdown fences.`

// candidatePreviewChars truncates candidate text in the selection prompt for
// prompt economy; the full text is never sent twice.
const candidatePreviewChars = 240

func buildChunkPrompt(segments []transcript.Segment, win Window, tasks []SectionTask, perChunkCap int) string {
	var sb strings.Builder

	sb.WriteString("Below is a chunk of a transcript. Each line starts with its segment id.\n\n")
	sb.WriteString("For each analysis section listed, propose up to ")
	fmt.Fprintf(&sb, "%d excerpt ranges from THIS chunk that best support the section's content. ", perChunkCap)
	sb.WriteString("A range is a pair of segment ids {startId, endId} with startId <= endId, both inside this chunk. Prefer substantive passages over greetings, questions, or bare confirmations. If nothing in this chunk supports a section, propose nothing for it.\n\n")

	sb.WriteString("## Sections\n")
	for _, t := range tasks {
		fmt.Fprintf(&sb, "- id: %q — %s\n  Task: %s\n  Content: %s\n", t.ID, t.Name, t.Task, truncate(t.Content, 400))
	}

	sb.WriteString("\n## Transcript chunk\n---\n")
	sb.WriteString(transcript.RenderRange(segments, win.From, win.To))
	sb.WriteString("---\n\n")

	sb.WriteString(`Respond with JSON:
{"candidates": [{"sectionId": "...", "startId": 0, "endId": 0}]}`)

	return sb.String()
}

func buildSelectionPrompt(candidates []Candidate, tasks []SectionTask, maxPerSection int) string {
	var sb strings.Builder

	sb.WriteString("For each analysis section below, choose the candidate excerpts that best and most diversely support its content. ")
	fmt.Fprintf(&sb, "Pick at most %d candidate ids per section. ", maxPerSection)
	sb.WriteString("Prefer substantive excerpts over bare questions or confirmations. Assign each pick a relevance between 0 and 1.\n\n")

	bySection := make(map[string][]Candidate)
	for _, c := range candidates {
		bySection[c.SectionID] = append(bySection[c.SectionID], c)
	}

	for _, t := range tasks {
		secCandidates := bySection[t.ID]
		if len(secCandidates) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## Section %q — %s\nTask: %s\nContent: %s\nCandidates:\n", t.ID, t.Name, t.Task, truncate(t.Content, 600))
		for _, c := range secCandidates {
			fmt.Fprintf(&sb, "- id %d: %s\n", c.ID, truncate(c.Text, candidatePreviewChars))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`Respond with JSON:
{"selections": [{"sectionId": "...", "picks": [{"id": 1, "relevance": 0.9}]}]}`)

	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
