package transcript

import (
	"fmt"
	"strings"
)

// Segment is a single transcribed span. Segments are immutable once
// transcribed and ordered by Index; End > Start always holds.
type Segment struct {
	Index   int     `json:"index"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Duration returns the span length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Marker renders the segment's start time as a [MM:SS] marker. These markers
// are the only timestamps the model is allowed to derive from, so every
// rendered transcript line carries one.
func (s Segment) Marker() string {
	return FormatMarker(s.Start)
}

// FormatMarker renders whole seconds as "[MM:SS]". Hours fold into minutes,
// matching how the markers appear in rendered transcripts.
func FormatMarker(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("[%d:%02d]", total/60, total%60)
}

// Render produces the prompt-facing transcript text: one line per segment,
// each prefixed with its timestamp marker and speaker when known.
func Render(segments []Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		sb.WriteString(seg.Marker())
		sb.WriteString(" ")
		if seg.Speaker != "" {
			sb.WriteString(seg.Speaker)
			sb.WriteString(": ")
		}
		sb.WriteString(seg.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderRange renders segments[from..to] inclusive, with each line prefixed
// by the segment's per-run id (its position) for grounded range references.
func RenderRange(segments []Segment, from, to int) string {
	var sb strings.Builder
	for i := from; i <= to && i < len(segments); i++ {
		seg := segments[i]
		fmt.Fprintf(&sb, "[seg %d] %s ", i, seg.Marker())
		if seg.Speaker != "" {
			sb.WriteString(seg.Speaker)
			sb.WriteString(": ")
		}
		sb.WriteString(seg.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// JoinText concatenates the literal text of segments[from..to] inclusive,
// separated by single spaces. This is the only way evidence text is ever
// built; it never comes from model output.
func JoinText(segments []Segment, from, to int) string {
	parts := make([]string, 0, to-from+1)
	for i := from; i <= to && i < len(segments); i++ {
		parts = append(parts, strings.TrimSpace(segments[i].Text))
	}
	return strings.Join(parts, " ")
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
