// Package evidence grounds generated analysis sections back to verbatim
// transcript spans. Phase 1 scans chunk windows for candidate excerpt ranges
// expressed as segment ids; phase 2 asks the model to select the best
// candidates per section. Excerpt text is only ever built by concatenating
// real segment text, never taken from model output.
package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/attestlabs/attest/internal/analysis"
	"github.com/attestlabs/attest/internal/anthropic"
	"github.com/attestlabs/attest/internal/llmcall"
	"github.com/attestlabs/attest/internal/transcript"
)

// SectionTask is one section that requested evidence: its original task
// description and the content the extraction pass generated for it.
type SectionTask struct {
	ID      string
	Name    string
	Task    string
	Content string
}

// Candidate is a phase-1 excerpt proposal, resolved and expanded to a
// concrete verbatim span.
type Candidate struct {
	ID        int
	SectionID string
	From      int
	To        int
	Text      string
}

// Options tune the two-phase scan. The caps are cost/quality tradeoffs, not
// correctness constraints.
type Options struct {
	WindowSize            int
	WindowOverlap         int
	MaxWindows            int
	PerChunkCap           int
	MaxEvidencePerSection int
	Concurrency           int

	MinWords          int
	MinChars          int
	MaxWords          int
	MaxChars          int
	MaxExpandSeconds  float64
	MaxExpandSegments int
}

// DefaultOptions mirrors the production tuning.
func DefaultOptions() Options {
	return Options{
		WindowSize:            220,
		WindowOverlap:         14,
		MaxWindows:            8,
		PerChunkCap:           2,
		MaxEvidencePerSection: 3,
		Concurrency:           3,
		MinWords:              40,
		MinChars:              400,
		MaxWords:              180,
		MaxChars:              1400,
		MaxExpandSeconds:      240,
		MaxExpandSegments:     40,
	}
}

// candidateCap bounds phase-1 accumulation per section.
func (o Options) candidateCap() int {
	cap := 6 * o.MaxEvidencePerSection
	if cap < 18 {
		cap = 18
	}
	return cap
}

func (o Options) bounds() bounds {
	return bounds{
		MinWords:          o.MinWords,
		MinChars:          o.MinChars,
		MaxWords:          o.MaxWords,
		MaxChars:          o.MaxChars,
		MaxExpandSeconds:  o.MaxExpandSeconds,
		MaxExpandSegments: o.MaxExpandSegments,
	}
}

type Engine struct {
	llm    llmcall.Completer
	exec   *llmcall.Executor
	opts   Options
	logger *slog.Logger
}

func NewEngine(llm llmcall.Completer, exec *llmcall.Executor, opts Options, logger *slog.Logger) *Engine {
	if opts.WindowSize <= 0 {
		opts = DefaultOptions()
	}
	return &Engine{llm: llm, exec: exec, opts: opts, logger: logger}
}

// Cite returns evidence per section id. Sections not passed in, and runs
// over zero segments, get empty evidence without any model call. Phase-2
// failure degrades to unranked phase-1 candidates instead of failing.
func (e *Engine) Cite(ctx context.Context, segments []transcript.Segment, tasks []SectionTask) (map[string][]analysis.Evidence, error) {
	out := make(map[string][]analysis.Evidence, len(tasks))
	for _, t := range tasks {
		out[t.ID] = nil
	}
	if len(tasks) == 0 || len(segments) == 0 {
		return out, nil
	}

	candidates, err := e.scanChunks(ctx, segments, tasks)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return out, nil
	}

	selected := e.selectCandidates(ctx, candidates, tasks)

	for sectionID, picks := range selected {
		for _, pick := range picks {
			out[sectionID] = append(out[sectionID], analysis.Evidence{
				Text:      pick.candidate.Text,
				Start:     segments[pick.candidate.From].Start,
				End:       segments[pick.candidate.To].End,
				Relevance: pick.relevance,
			})
		}
	}
	return out, nil
}

// scanChunks is phase 1: bounded, evenly spaced overlapping windows, each
// asked for up to PerChunkCap candidate ranges per section. Chunk calls have
// no cross-chunk dependency, so they run concurrently under a small limit.
// Individual chunk failures degrade; cancellation propagates.
func (e *Engine) scanChunks(ctx context.Context, segments []transcript.Segment, tasks []SectionTask) ([]Candidate, error) {
	windows := SelectWindows(BuildWindows(len(segments), e.opts.WindowSize, e.opts.WindowOverlap), e.opts.MaxWindows)

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		candidates []Candidate
		nextID     = 1
	)
	sectionCap := e.opts.candidateCap()
	sem := make(chan struct{}, e.opts.Concurrency)

	perSection := func() map[string]int {
		counts := make(map[string]int, len(tasks))
		for _, c := range candidates {
			counts[c.SectionID]++
		}
		return counts
	}
	allFull := func() bool {
		counts := perSection()
		for _, t := range tasks {
			if counts[t.ID] < sectionCap {
				return false
			}
		}
		return true
	}

	for _, win := range windows {
		if ctx.Err() != nil {
			break
		}
		mu.Lock()
		full := allFull()
		mu.Unlock()
		if full {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(win Window) {
			defer wg.Done()
			defer func() { <-sem }()

			ranges, err := e.scanOneChunk(ctx, segments, win, tasks)
			if err != nil {
				if ctx.Err() == nil {
					e.logger.Warn("evidence chunk scan failed", "window_from", win.From, "window_to", win.To, "error", err)
				}
				return
			}

			mu.Lock()
			defer mu.Unlock()
			counts := perSection()
			for _, r := range ranges {
				if counts[r.SectionID] >= sectionCap {
					continue
				}
				from, to, ok := expandRange(segments, r.From, r.To, e.opts.bounds())
				if !ok {
					continue
				}
				if overlapsAccepted(candidates, r.SectionID, from, to) {
					continue
				}
				candidates = append(candidates, Candidate{
					ID:        nextID,
					SectionID: r.SectionID,
					From:      from,
					To:        to,
					Text:      transcript.JoinText(segments, from, to),
				})
				nextID++
				counts[r.SectionID]++
			}
		}(win)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates, nil
}

func overlapsAccepted(candidates []Candidate, sectionID string, from, to int) bool {
	for _, c := range candidates {
		if c.SectionID == sectionID && overlaps(c.From, c.To, from, to) {
			return true
		}
	}
	return false
}

// proposedRange is the only thing phase 1 accepts from the model: a segment
// id range per section.
type proposedRange struct {
	SectionID string
	From      int
	To        int
}

type chunkResponse struct {
	Candidates []struct {
		SectionID string `json:"sectionId"`
		StartID   int    `json:"startId"`
		EndID     int    `json:"endId"`
	} `json:"candidates"`
}

func (e *Engine) scanOneChunk(ctx context.Context, segments []transcript.Segment, win Window, tasks []SectionTask) ([]proposedRange, error) {
	prompt := buildChunkPrompt(segments, win, tasks, e.opts.PerChunkCap)

	comp, err := e.exec.Execute(ctx, func(ctx context.Context) (*anthropic.Completion, error) {
		return e.llm.Complete(ctx, anthropic.Request{
			System:          citationSystemPrompt,
			Messages:        []anthropic.Message{{Role: "user", Content: prompt}},
			MaxOutputTokens: 1024,
			Temperature:     0,
		})
	})
	if err != nil {
		return nil, err
	}

	var resp chunkResponse
	if err := json.Unmarshal([]byte(stripJSONFences(comp.Content)), &resp); err != nil {
		return nil, fmt.Errorf("parse chunk response: %w", err)
	}

	valid := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		valid[t.ID] = true
	}

	var ranges []proposedRange
	for _, c := range resp.Candidates {
		if !valid[c.SectionID] {
			continue
		}
		if c.StartID < win.From || c.EndID > win.To || c.StartID > c.EndID {
			continue
		}
		ranges = append(ranges, proposedRange{SectionID: c.SectionID, From: c.StartID, To: c.EndID})
	}
	return ranges, nil
}

// pick pairs a candidate with the relevance the selection call assigned it.
type pick struct {
	candidate Candidate
	relevance float64
}

type selectionResponse struct {
	Selections []struct {
		SectionID string `json:"sectionId"`
		Picks     []struct {
			ID        int     `json:"id"`
			Relevance float64 `json:"relevance"`
		} `json:"picks"`
	} `json:"selections"`
}

// selectCandidates is phase 2. A failed selection call falls back to the
// first MaxEvidencePerSection phase-1 candidates per section, degraded but
// never fatal.
func (e *Engine) selectCandidates(ctx context.Context, candidates []Candidate, tasks []SectionTask) map[string][]pick {
	prompt := buildSelectionPrompt(candidates, tasks, e.opts.MaxEvidencePerSection)

	comp, err := e.exec.Execute(ctx, func(ctx context.Context) (*anthropic.Completion, error) {
		return e.llm.Complete(ctx, anthropic.Request{
			System:          citationSystemPrompt,
			Messages:        []anthropic.Message{{Role: "user", Content: prompt}},
			MaxOutputTokens: 1024,
			Temperature:     0,
		})
	})
	if err != nil {
		e.logger.Warn("evidence selection failed, falling back to unranked candidates", "error", err)
		return e.fallbackSelection(candidates)
	}

	var resp selectionResponse
	if err := json.Unmarshal([]byte(stripJSONFences(comp.Content)), &resp); err != nil {
		e.logger.Warn("evidence selection unparseable, falling back to unranked candidates", "error", err)
		return e.fallbackSelection(candidates)
	}

	byID := make(map[int]Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	out := make(map[string][]pick)
	for _, sel := range resp.Selections {
		for _, p := range sel.Picks {
			c, ok := byID[p.ID]
			if !ok || c.SectionID != sel.SectionID {
				continue
			}
			if len(out[sel.SectionID]) >= e.opts.MaxEvidencePerSection {
				break
			}
			rel := p.Relevance
			if rel < 0 || rel > 1 {
				rel = 0.5
			}
			out[sel.SectionID] = append(out[sel.SectionID], pick{candidate: c, relevance: rel})
		}
	}

	// Sections the model skipped entirely still get the fallback.
	for sectionID, picks := range e.fallbackSelection(candidates) {
		if len(out[sectionID]) == 0 {
			out[sectionID] = picks
		}
	}
	return out
}

func (e *Engine) fallbackSelection(candidates []Candidate) map[string][]pick {
	out := make(map[string][]pick)
	for _, c := range candidates {
		if len(out[c.SectionID]) >= e.opts.MaxEvidencePerSection {
			continue
		}
		out[c.SectionID] = append(out[c.SectionID], pick{candidate: c, relevance: 0.5})
	}
	return out
}

func stripJSONFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
