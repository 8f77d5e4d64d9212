package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/attestlabs/attest/internal/analysis"
	"github.com/attestlabs/attest/internal/anthropic"
	"github.com/attestlabs/attest/internal/enrich"
	"github.com/attestlabs/attest/internal/evidence"
	"github.com/attestlabs/attest/internal/extractor"
	"github.com/attestlabs/attest/internal/llmcall"
	"github.com/attestlabs/attest/internal/strategy"
	"github.com/attestlabs/attest/internal/template"
	"github.com/attestlabs/attest/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeCompletion(w http.ResponseWriter, text string) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"content":     []map[string]any{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
	})
}

func promptOf(r *http.Request) string {
	var body struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	if len(body.Messages) == 0 {
		return ""
	}
	return body.Messages[0].Content
}

func pipelineAgainst(serverURL string) *Pipeline {
	llm := anthropic.NewClient("test-key", "test-model")
	llm.SetTestTransport(serverURL)
	exec := llmcall.NewExecutor(1, time.Millisecond, discardLogger())
	ext := extractor.New(llm, exec, discardLogger())
	ev := evidence.NewEngine(llm, exec, evidence.DefaultOptions(), discardLogger())
	en := enrich.NewDefaultEngine(llm, exec, discardLogger())
	return New(ext, ev, en, discardLogger())
}

func meetingSegments() []transcript.Segment {
	return []transcript.Segment{
		{Index: 0, Start: 0, End: 10, Text: "Welcome to the planning call.", Speaker: "Sarah"},
		{Index: 1, Start: 160, End: 170, Text: "We decided to ship on Friday.", Speaker: "Omar"},
		{Index: 2, Start: 170, End: 180, Text: "I will write the release notes.", Speaker: "Priya"},
	}
}

func meetingTemplate() *template.Template {
	return &template.Template{
		ID:   "meeting",
		Name: "Meeting",
		Sections: []template.Section{
			{ID: "summary", Name: "Executive Summary", Prompt: "Summarize."},
		},
		Outputs: []analysis.Output{
			analysis.OutputSummary, analysis.OutputDecisions, analysis.OutputActionItems,
		},
	}
}

func TestRunBasicEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, `{
			"summary": "A short planning call.",
			"sections": [{"name": "Executive Summary", "content": "Planned the Friday release."}],
			"decisions": [{"description": "Ship Friday", "timestamp": 165}],
			"actionItems": [{"description": "Release notes", "timestamp": -3, "decisionIds": ["decision-1", "decision-99"]}],
			"quotes": [{"text": "unsolicited quote", "timestamp": 10}]
		}`)
	}))
	defer server.Close()

	p := pipelineAgainst(server.URL)
	var stages []string
	var percents []int
	result, err := p.Run(context.Background(), Request{
		Segments: meetingSegments(),
		Template: meetingTemplate(),
		Progress: func(stage string, percent int) {
			stages = append(stages, stage)
			percents = append(percents, percent)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Strategy != strategy.Basic {
		t.Errorf("strategy = %s, want basic for a tiny transcript", result.Strategy)
	}
	res := result.Results
	if res.Summary != "A short planning call." {
		t.Errorf("summary = %q", res.Summary)
	}
	// Finalize assigned ids and repaired the dangling reference.
	if res.Decisions[0].ID != "decision-1" {
		t.Errorf("decision id = %q", res.Decisions[0].ID)
	}
	if got := res.ActionItems[0].DecisionIDs; len(got) != 1 || got[0] != "decision-1" {
		t.Errorf("decision refs = %v", got)
	}
	// The [2:45] marker derives second 165.
	if res.Decisions[0].Timestamp != 165 {
		t.Errorf("timestamp = %d, want 165", res.Decisions[0].Timestamp)
	}
	// Negative timestamps clamp to zero.
	if res.ActionItems[0].Timestamp != 0 {
		t.Errorf("timestamp = %d, want clamped to 0", res.ActionItems[0].Timestamp)
	}
	// Quotes were not requested; the unsolicited collection is pruned.
	if res.Quotes != nil {
		t.Errorf("quotes = %+v, want pruned", res.Quotes)
	}

	if len(percents) < 2 || percents[0] != 5 || percents[len(percents)-1] != 100 {
		t.Errorf("progress = %v, want 5 .. 100", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("progress not monotone: %v", percents)
		}
	}
	if stages[len(stages)-1] != "done" {
		t.Errorf("stages = %v", stages)
	}
}

func TestRunRejectsInvalidTemplate(t *testing.T) {
	p := pipelineAgainst("http://127.0.0.1:0")
	_, err := p.Run(context.Background(), Request{
		Segments: meetingSegments(),
		Template: &template.Template{ID: "bad"},
	})
	if err == nil || !strings.Contains(err.Error(), "no sections") {
		t.Fatalf("error = %v, want template validation failure", err)
	}
}

func TestRunNilTemplate(t *testing.T) {
	p := pipelineAgainst("http://127.0.0.1:0")
	if _, err := p.Run(context.Background(), Request{Segments: meetingSegments()}); err == nil {
		t.Fatal("expected error for nil template")
	}
}

func TestRunAdvancedCascadesPriorSections(t *testing.T) {
	// Dependency depth 3 forces advanced mode on a small transcript; each
	// call covers one section and receives all earlier sections as context.
	tmpl := &template.Template{
		ID:   "deep",
		Name: "Deep",
		Sections: []template.Section{
			{ID: "a", Name: "Alpha", Prompt: "First."},
			{ID: "b", Name: "Beta", Prompt: "Second.", Dependencies: []string{"a"}},
			{ID: "c", Name: "Gamma", Prompt: "Third.", Dependencies: []string{"b"}},
		},
		Outputs: []analysis.Output{analysis.OutputSummary},
	}

	var mu sync.Mutex
	var prompts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prompt := promptOf(r)
		mu.Lock()
		prompts = append(prompts, prompt)
		call := len(prompts)
		mu.Unlock()

		name := []string{"Alpha", "Beta", "Gamma"}[call-1]
		writeCompletion(w, `{"summary": "s", "sections": [{"name": "`+name+`", "content": "content of `+name+`"}]}`)
	}))
	defer server.Close()

	p := pipelineAgainst(server.URL)
	result, err := p.Run(context.Background(), Request{
		Segments: meetingSegments(),
		Template: tmpl,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Strategy != strategy.Advanced {
		t.Fatalf("strategy = %s, want advanced for dependency depth 3", result.Strategy)
	}
	if len(prompts) != 3 {
		t.Fatalf("calls = %d, want 3", len(prompts))
	}
	if strings.Contains(prompts[0], "Context from earlier analysis passes") {
		t.Error("first call should have no prior context")
	}
	if !strings.Contains(prompts[1], "content of Alpha") {
		t.Error("second call missing cascaded Alpha content")
	}
	if !strings.Contains(prompts[2], "content of Alpha") || !strings.Contains(prompts[2], "content of Beta") {
		t.Error("third call missing full prior cascade")
	}
	if len(result.Results.Sections) != 3 {
		t.Errorf("sections = %d, want 3 merged", len(result.Results.Sections))
	}
}

func TestRunManualOverrideWins(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeCompletion(w, `{"summary": "s", "sections": [{"name": "Executive Summary", "content": "c"}]}`)
	}))
	defer server.Close()

	p := pipelineAgainst(server.URL)
	result, err := p.Run(context.Background(), Request{
		Segments: meetingSegments(),
		Template: meetingTemplate(),
		Strategy: strategy.Advanced,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != strategy.Advanced {
		t.Errorf("strategy = %s, want the manual override", result.Strategy)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (single section, one per-section call)", calls)
	}
	// The automatic recommendation is still reported alongside.
	if result.Recommendation.Strategy != strategy.Basic {
		t.Errorf("recommendation = %s, want basic", result.Recommendation.Strategy)
	}
}

func TestRunEnrichmentCannotResurrectPrunedQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prompt := promptOf(r)
		if strings.Contains(prompt, "Analyze the transcript below") {
			writeCompletion(w, `{
				"summary": "s",
				"sections": [{"name": "Executive Summary", "content": "c"}],
				"decisions": [{"description": "Ship Friday", "timestamp": 165}]
			}`)
			return
		}
		// Enrichment call: propose quotes anyway.
		writeCompletion(w, `{"patterns": {
			"attribution": {"items": []},
			"priority": {"items": []},
			"sentiment": {"items": []},
			"quotes": {"quotes": [{"segmentId": 1, "confidence": 0.9}]}
		}}`)
	}))
	defer server.Close()

	p := pipelineAgainst(server.URL)
	result, err := p.Run(context.Background(), Request{
		Segments:   meetingSegments(),
		Template:   meetingTemplate(), // quotes not requested
		Enrichment: enrich.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Results.Quotes != nil {
		t.Errorf("quotes = %+v, enrichment must not resurrect a pruned collection", result.Results.Quotes)
	}
	if result.Enrichment == nil {
		t.Fatal("enrichment metadata missing")
	}
}

func TestRunEvidencePassAttachesExcerpts(t *testing.T) {
	segs := make([]transcript.Segment, 30)
	for i := range segs {
		segs[i] = transcript.Segment{
			Index: i,
			Start: float64(i * 6),
			End:   float64(i*6 + 5),
			Text:  strings.Repeat("substantive discussion of the release plan and its risks ", 2),
		}
	}

	tmpl := &template.Template{
		ID:   "cited",
		Name: "Cited",
		Sections: []template.Section{
			{ID: "risks", Name: "Risks", Prompt: "List risks.", ExtractEvidence: true},
		},
		Outputs: []analysis.Output{analysis.OutputSummary},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prompt := promptOf(r)
		switch {
		case strings.Contains(prompt, "Analyze the transcript below"):
			writeCompletion(w, `{"summary": "s", "sections": [{"name": "Risks", "content": "risk content"}]}`)
		case strings.Contains(prompt, "Transcript chunk"):
			writeCompletion(w, `{"candidates": [{"sectionId": "risks", "startId": 3, "endId": 8}]}`)
		default:
			writeCompletion(w, `{"selections": [{"sectionId": "risks", "picks": [{"id": 1, "relevance": 0.95}]}]}`)
		}
	}))
	defer server.Close()

	p := pipelineAgainst(server.URL)
	result, err := p.Run(context.Background(), Request{
		Segments: segs,
		Template: tmpl,
		Evidence: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sec := result.Results.Section("Risks")
	if sec == nil || len(sec.Evidence) != 1 {
		t.Fatalf("evidence = %+v, want 1 excerpt", sec)
	}
	want := transcript.JoinText(segs, 3, 8)
	if sec.Evidence[0].Text != want {
		t.Errorf("evidence text is not the verbatim segment join")
	}
	if sec.Evidence[0].Relevance != 0.95 {
		t.Errorf("relevance = %v", sec.Evidence[0].Relevance)
	}
}

func TestRunExtractionFailureAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "not json at all")
	}))
	defer server.Close()

	p := pipelineAgainst(server.URL)
	_, err := p.Run(context.Background(), Request{
		Segments: meetingSegments(),
		Template: meetingTemplate(),
	})
	if err == nil {
		t.Fatal("expected extraction failure to abort the run")
	}
}
