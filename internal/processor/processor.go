// Package processor ties the run loop together: it loads transcripts from
// the store, drives the pipeline, persists the outcome, and announces it
// on the bus.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/attestlabs/attest/internal/bus"
	"github.com/attestlabs/attest/internal/cache"
	"github.com/attestlabs/attest/internal/enrich"
	"github.com/attestlabs/attest/internal/pipeline"
	"github.com/attestlabs/attest/internal/store"
	"github.com/attestlabs/attest/internal/strategy"
	"github.com/attestlabs/attest/internal/template"
	"github.com/attestlabs/attest/internal/transcript"
)

// Options configure run defaults applied when a request leaves them unset.
type Options struct {
	DefaultTemplateID string
	Enrichment        enrich.Config
	Evidence          bool
	RunTimeout        time.Duration
}

type Processor struct {
	store     *store.Store
	bus       *bus.Client
	pipeline  *pipeline.Pipeline
	templates map[string]*template.Template
	cache     *cache.AnalysisCache
	logger    *slog.Logger
	opts      Options
}

func New(s *store.Store, b *bus.Client, p *pipeline.Pipeline, templates map[string]*template.Template, c *cache.AnalysisCache, opts Options, logger *slog.Logger) *Processor {
	if opts.RunTimeout == 0 {
		opts.RunTimeout = 30 * time.Minute
	}
	return &Processor{
		store:     s,
		bus:       b,
		pipeline:  p,
		templates: templates,
		cache:     c,
		logger:    logger,
		opts:      opts,
	}
}

// Template resolves a template id, falling back to the configured default
// when id is empty.
func (p *Processor) Template(id string) (*template.Template, error) {
	if id == "" {
		id = p.opts.DefaultTemplateID
	}
	tmpl, ok := p.templates[id]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", id)
	}
	return tmpl, nil
}

// Templates returns the loaded templates, for listing.
func (p *Processor) Templates() map[string]*template.Template {
	return p.templates
}

// HandleTranscriptStored is the NATS handler for attest.transcript.stored.
func (p *Processor) HandleTranscriptStored(subject string, data []byte) {
	var evt bus.TranscriptStored
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse transcript event", "error", err)
		return
	}

	transcriptID, err := uuid.Parse(evt.TranscriptID)
	if err != nil {
		p.logger.Error("invalid transcript id", "transcript_id", evt.TranscriptID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.RunTimeout)
	defer cancel()

	if _, err := p.Analyze(ctx, transcriptID, evt.TemplateID, strategy.Strategy(evt.Strategy)); err != nil {
		p.logger.Error("analysis failed", "transcript_id", transcriptID, "error", err)
	}
}

// Analyze runs one analysis end to end and returns the stored record.
// Failures are recorded against the run and announced before returning.
func (p *Processor) Analyze(ctx context.Context, transcriptID uuid.UUID, templateID string, strat strategy.Strategy) (*store.AnalysisRecord, error) {
	rec, tmpl, err := p.prepare(ctx, transcriptID, templateID, strat)
	if err != nil {
		return nil, err
	}

	analysisID, err := p.store.BeginAnalysis(ctx, transcriptID, tmpl.ID, string(strat))
	if err != nil {
		return nil, err
	}

	return p.run(ctx, analysisID, rec, tmpl, strat)
}

// StartAnalysis begins a run and returns its id immediately; the run itself
// continues in the background with its own timeout.
func (p *Processor) StartAnalysis(ctx context.Context, transcriptID uuid.UUID, templateID string, strat strategy.Strategy) (uuid.UUID, error) {
	rec, tmpl, err := p.prepare(ctx, transcriptID, templateID, strat)
	if err != nil {
		return uuid.Nil, err
	}

	analysisID, err := p.store.BeginAnalysis(ctx, transcriptID, tmpl.ID, string(strat))
	if err != nil {
		return uuid.Nil, err
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), p.opts.RunTimeout)
		defer cancel()
		if _, err := p.run(runCtx, analysisID, rec, tmpl, strat); err != nil {
			p.logger.Error("analysis failed", "analysis_id", analysisID, "error", err)
		}
	}()

	return analysisID, nil
}

// prepare loads and validates everything a run needs before it is recorded.
func (p *Processor) prepare(ctx context.Context, transcriptID uuid.UUID, templateID string, strat strategy.Strategy) (*store.TranscriptRecord, *template.Template, error) {
	rec, err := p.store.GetTranscript(ctx, transcriptID)
	if err != nil {
		return nil, nil, err
	}

	tmpl, err := p.Template(templateID)
	if err != nil {
		return nil, nil, err
	}
	tmpl = withContentType(tmpl, rec.ContentType)

	if strat != "" {
		if _, err := strategy.Parse(string(strat)); err != nil {
			return nil, nil, err
		}
	}
	return rec, tmpl, nil
}

func (p *Processor) run(ctx context.Context, analysisID uuid.UUID, rec *store.TranscriptRecord, tmpl *template.Template, strat strategy.Strategy) (*store.AnalysisRecord, error) {
	result, err := p.pipeline.Run(ctx, pipeline.Request{
		Segments:   rec.Segments,
		Template:   tmpl,
		Strategy:   strat,
		Enrichment: p.opts.Enrichment,
		Evidence:   p.opts.Evidence,
	})
	if err != nil {
		p.fail(analysisID, rec.ID, err)
		return nil, err
	}

	if err := p.store.CompleteAnalysis(ctx, analysisID, string(result.Strategy), result.Results, result.Enrichment); err != nil {
		p.fail(analysisID, rec.ID, err)
		return nil, err
	}

	completedAt := result.StartedAt.Add(time.Duration(result.DurationMs) * time.Millisecond)
	record := &store.AnalysisRecord{
		ID:           analysisID,
		TranscriptID: rec.ID,
		TemplateID:   tmpl.ID,
		Strategy:     string(result.Strategy),
		Status:       store.StatusCompleted,
		Results:      result.Results,
		Enrichment:   result.Enrichment,
		CreatedAt:    result.StartedAt,
		CompletedAt:  &completedAt,
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, record); err != nil {
			p.logger.Warn("failed to cache analysis", "analysis_id", analysisID, "error", err)
		}
	}

	if p.bus != nil {
		if err := p.bus.Publish(bus.SubjectAnalysisCompleted, bus.AnalysisCompleted{
			AnalysisID:   analysisID.String(),
			TranscriptID: rec.ID.String(),
			TemplateID:   tmpl.ID,
			Strategy:     string(result.Strategy),
			DurationMs:   result.DurationMs,
		}); err != nil {
			p.logger.Warn("failed to publish completion", "analysis_id", analysisID, "error", err)
		}
	}

	return record, nil
}

// Recommend estimates a strategy for a stored transcript without running it.
func (p *Processor) Recommend(ctx context.Context, transcriptID uuid.UUID, templateID string) (*strategy.Recommendation, error) {
	rec, err := p.store.GetTranscript(ctx, transcriptID)
	if err != nil {
		return nil, err
	}
	tmpl, err := p.Template(templateID)
	if err != nil {
		return nil, err
	}
	tmpl = withContentType(tmpl, rec.ContentType)

	recommendation := strategy.Recommend(transcript.Render(rec.Segments), tmpl)
	return &recommendation, nil
}

// GetAnalysis serves reads through the cache when one is configured.
func (p *Processor) GetAnalysis(ctx context.Context, id uuid.UUID) (*store.AnalysisRecord, error) {
	if p.cache != nil {
		cached, err := p.cache.Get(ctx, id)
		if err != nil {
			p.logger.Warn("cache read failed", "analysis_id", id, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	rec, err := p.store.GetAnalysis(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.cache != nil && rec.Status == store.StatusCompleted {
		if err := p.cache.Set(ctx, rec); err != nil {
			p.logger.Warn("failed to cache analysis", "analysis_id", id, "error", err)
		}
	}
	return rec, nil
}

// ListAnalyses returns the runs recorded for a transcript, newest first.
func (p *Processor) ListAnalyses(ctx context.Context, transcriptID uuid.UUID) ([]store.AnalysisRecord, error) {
	return p.store.ListAnalyses(ctx, transcriptID)
}

// Ingest stores a transcript and announces it on the bus.
func (p *Processor) Ingest(ctx context.Context, title, contentType string, segments []transcript.Segment) (uuid.UUID, error) {
	id, err := p.store.WriteTranscript(ctx, title, contentType, segments)
	if err != nil {
		return uuid.Nil, err
	}
	if p.bus != nil {
		if err := p.bus.Publish(bus.SubjectTranscriptStored, bus.TranscriptStored{TranscriptID: id.String()}); err != nil {
			p.logger.Warn("failed to publish transcript stored", "transcript_id", id, "error", err)
		}
	}
	return id, nil
}

// fail records and announces a failed run. Uses a fresh context so a
// cancelled run still gets marked failed.
func (p *Processor) fail(analysisID, transcriptID uuid.UUID, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.store.FailAnalysis(ctx, analysisID, runErr); err != nil {
		p.logger.Error("failed to record analysis failure", "analysis_id", analysisID, "error", err)
	}
	if p.bus != nil {
		if err := p.bus.Publish(bus.SubjectAnalysisFailed, bus.AnalysisFailed{
			AnalysisID:   analysisID.String(),
			TranscriptID: transcriptID.String(),
			Error:        runErr.Error(),
		}); err != nil {
			p.logger.Warn("failed to publish failure", "analysis_id", analysisID, "error", err)
		}
	}
}

// withContentType fills an unset template content type from the transcript
// record so content ceilings still apply. The shared template is not mutated.
func withContentType(tmpl *template.Template, contentType string) *template.Template {
	if tmpl.ContentType != "" || contentType == "" {
		return tmpl
	}
	clone := *tmpl
	clone.ContentType = contentType
	return &clone
}
