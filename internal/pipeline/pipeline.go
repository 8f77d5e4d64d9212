// Package pipeline composes the analysis run: strategy selection, one or
// more extraction calls, post-processing, the optional evidence and
// enrichment passes.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/attestlabs/attest/internal/analysis"
	"github.com/attestlabs/attest/internal/enrich"
	"github.com/attestlabs/attest/internal/evidence"
	"github.com/attestlabs/attest/internal/extractor"
	"github.com/attestlabs/attest/internal/strategy"
	"github.com/attestlabs/attest/internal/template"
	"github.com/attestlabs/attest/internal/transcript"
)

// MaxAdvancedCalls caps per-section calls in advanced mode; templates with
// more sections get evenly sized section groups instead.
const MaxAdvancedCalls = 12

// ProgressFunc receives coarse progress updates. Optional.
type ProgressFunc func(stage string, percent int)

// Request describes one analysis run.
type Request struct {
	Segments   []transcript.Segment
	Template   *template.Template
	Strategy   strategy.Strategy // "" lets the selector decide
	Enrichment enrich.Config
	Evidence   bool
	Progress   ProgressFunc
}

// Result is the completed run.
type Result struct {
	RunID          uuid.UUID               `json:"runId"`
	Strategy       strategy.Strategy       `json:"strategy"`
	Recommendation strategy.Recommendation `json:"recommendation"`
	Results        *analysis.Results       `json:"results"`
	Enrichment     *enrich.Metadata        `json:"enrichment,omitempty"`
	StartedAt      time.Time               `json:"startedAt"`
	DurationMs     int64                   `json:"durationMs"`
}

type Pipeline struct {
	extractor *extractor.Extractor
	evidence  *evidence.Engine
	enricher  *enrich.Engine
	logger    *slog.Logger
}

func New(ext *extractor.Extractor, ev *evidence.Engine, en *enrich.Engine, logger *slog.Logger) *Pipeline {
	return &Pipeline{extractor: ext, evidence: ev, enricher: en, logger: logger}
}

// Run executes one full analysis. Extraction failures abort; evidence and
// enrichment degrade gracefully. Calls within a strategy run sequentially
// because later calls consume earlier calls' output.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Template == nil {
		return nil, fmt.Errorf("analysis run needs a template")
	}
	if err := req.Template.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	runID := uuid.New()
	text := transcript.Render(req.Segments)

	rec := strategy.Recommend(text, req.Template)
	strat := req.Strategy
	if strat == "" {
		strat = rec.Strategy
	} else if warning := strategy.Validate(text, strat, req.Template); warning != "" {
		p.logger.Warn("manual strategy override", "run_id", runID, "warning", warning)
	}

	p.logger.Info("analysis run starting",
		"run_id", runID,
		"template", req.Template.ID,
		"strategy", strat,
		"segments", len(req.Segments),
		"estimated_tokens", rec.TranscriptTokens,
	)

	report := req.Progress
	if report == nil {
		report = func(string, int) {}
	}
	report("extracting", 5)

	results, err := p.extract(ctx, req, text, strat, report)
	if err != nil {
		return nil, err
	}

	analysis.Finalize(results, req.Template.OutputSet())
	clampTimestamps(results)

	if req.Evidence {
		report("citing", extractionEnd(req.Evidence))
		p.cite(ctx, req, results)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	var meta *enrich.Metadata
	if req.Enrichment.Enabled {
		report("enriching", 85)
		cfg := req.Enrichment
		if !req.Template.OutputSet()[analysis.OutputQuotes] {
			// New quotes would reappear in a collection the template pruned.
			cfg.MaxQuotes = 0
		}
		meta, err = p.enricher.ExecutePatterns(ctx, enrich.Context{
			Results:  results,
			Segments: req.Segments,
			Config:   cfg,
		})
		if err != nil {
			return nil, err
		}
	}

	report("done", 100)

	p.logger.Info("analysis run complete",
		"run_id", runID,
		"sections", len(results.Sections),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return &Result{
		RunID:          runID,
		Strategy:       strat,
		Recommendation: rec,
		Results:        results,
		Enrichment:     meta,
		StartedAt:      started.UTC(),
		DurationMs:     time.Since(started).Milliseconds(),
	}, nil
}

// extract issues the strategy's call plan and merges partial results.
func (p *Pipeline) extract(ctx context.Context, req Request, text string, strat strategy.Strategy, report ProgressFunc) (*analysis.Results, error) {
	tmpl := req.Template
	outputs := tmpl.OutputSet()

	switch strat {
	case strategy.Basic:
		return p.extractor.Extract(ctx, extractor.Request{
			Transcript: text,
			Sections:   tmpl.Sections,
			Outputs:    outputs,
		})

	case strategy.Hybrid:
		batches := strategy.GroupSections(tmpl.Sections)
		merged := &analysis.Results{}
		ranges := ProgressRanges(len(batches), req.Evidence)
		for i, batch := range batches {
			report("extracting "+batch.Name, ranges[i].Start)
			partial, err := p.extractor.Extract(ctx, extractor.Request{
				Transcript:    text,
				Sections:      batch.Sections,
				Outputs:       outputs,
				PriorSections: dependencyContext(tmpl, batch.Sections, merged.Sections),
			})
			if err != nil {
				return nil, fmt.Errorf("batch %s: %w", batch.Name, err)
			}
			merged.Merge(partial)
		}
		return merged, nil

	default: // advanced
		groups := strategy.PlanSectionGroups(tmpl.Sections, MaxAdvancedCalls)
		merged := &analysis.Results{}
		ranges := ProgressRanges(len(groups), req.Evidence)
		for i, group := range groups {
			report("extracting "+group[0].Name, ranges[i].Start)
			partial, err := p.extractor.Extract(ctx, extractor.Request{
				Transcript: text,
				Sections:   group,
				Outputs:    outputs,
				// Advanced cascades the full prior content.
				PriorSections: merged.Sections,
			})
			if err != nil {
				return nil, fmt.Errorf("section %s: %w", group[0].ID, err)
			}
			merged.Merge(partial)
		}
		return merged, nil
	}
}

// dependencyContext returns the already-extracted sections the current batch
// declared dependencies on. Hybrid mode passes only declared dependencies;
// sections split from their dependencies by keyword grouping may get no
// cross-batch context. Known quality gap, preserved deliberately.
func dependencyContext(tmpl *template.Template, batch []template.Section, extracted []analysis.Section) []analysis.Section {
	deps := make(map[string]bool)
	for _, sec := range batch {
		for _, dep := range sec.Dependencies {
			deps[dep] = true
		}
	}
	if len(deps) == 0 {
		return nil
	}

	nameByID := make(map[string]string, len(tmpl.Sections))
	for _, sec := range tmpl.Sections {
		nameByID[sec.ID] = sec.Name
	}
	wanted := make(map[string]bool, len(deps))
	for id := range deps {
		wanted[nameByID[id]] = true
	}

	var out []analysis.Section
	for _, sec := range extracted {
		if wanted[sec.Name] {
			out = append(out, sec)
		}
	}
	return out
}

// cite runs the evidence pass and attaches excerpts to sections that asked
// for them. Failures degrade to empty evidence.
func (p *Pipeline) cite(ctx context.Context, req Request, results *analysis.Results) {
	var tasks []evidence.SectionTask
	for _, sec := range req.Template.Sections {
		if !sec.ExtractEvidence {
			continue
		}
		generated := results.Section(sec.Name)
		if generated == nil {
			continue
		}
		tasks = append(tasks, evidence.SectionTask{
			ID:      sec.ID,
			Name:    sec.Name,
			Task:    sec.Prompt,
			Content: generated.Content,
		})
	}
	if len(tasks) == 0 {
		return
	}

	cited, err := p.evidence.Cite(ctx, req.Segments, tasks)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("evidence pass failed", "error", err)
		}
		return
	}

	for _, sec := range req.Template.Sections {
		if ev := cited[sec.ID]; len(ev) > 0 {
			if generated := results.Section(sec.Name); generated != nil {
				generated.Evidence = ev
			}
		}
	}
}

// clampTimestamps floors negative timestamps at zero. Timestamps come from
// the model's reading of [MM:SS] markers and are occasionally off the rails.
func clampTimestamps(r *analysis.Results) {
	for i := range r.AgendaItems {
		if r.AgendaItems[i].Timestamp < 0 {
			r.AgendaItems[i].Timestamp = 0
		}
	}
	for i := range r.Benchmarks {
		if r.Benchmarks[i].Timestamp < 0 {
			r.Benchmarks[i].Timestamp = 0
		}
	}
	for i := range r.RadioReports {
		if r.RadioReports[i].Timestamp < 0 {
			r.RadioReports[i].Timestamp = 0
		}
	}
	for i := range r.SafetyEvents {
		if r.SafetyEvents[i].Timestamp < 0 {
			r.SafetyEvents[i].Timestamp = 0
		}
	}
	for i := range r.ActionItems {
		if r.ActionItems[i].Timestamp < 0 {
			r.ActionItems[i].Timestamp = 0
		}
	}
	for i := range r.Decisions {
		if r.Decisions[i].Timestamp < 0 {
			r.Decisions[i].Timestamp = 0
		}
	}
	for i := range r.Quotes {
		if r.Quotes[i].Timestamp < 0 {
			r.Quotes[i].Timestamp = 0
		}
	}
}
