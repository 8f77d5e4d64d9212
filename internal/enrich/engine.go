// Package enrich runs a secondary pass that adds attribution, priority, and
// sentiment sub-fields to already-extracted items and surfaces a bounded
// number of new notable quotes, grounded only to provided segment ids.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/attestlabs/attest/internal/analysis"
	"github.com/attestlabs/attest/internal/anthropic"
	"github.com/attestlabs/attest/internal/llmcall"
	"github.com/attestlabs/attest/internal/transcript"
)

// Engine holds the pattern registry: an owned map, single-writer at
// registration time, read-only during execution. Registering an existing
// name replaces the prior pattern.
type Engine struct {
	llm      llmcall.Completer
	exec     *llmcall.Executor
	logger   *slog.Logger
	patterns map[string]Pattern
	order    []string
}

func NewEngine(llm llmcall.Completer, exec *llmcall.Executor, logger *slog.Logger) *Engine {
	return &Engine{
		llm:      llm,
		exec:     exec,
		logger:   logger,
		patterns: make(map[string]Pattern),
	}
}

// NewDefaultEngine returns an engine with the built-in pattern set
// registered.
func NewDefaultEngine(llm llmcall.Completer, exec *llmcall.Executor, logger *slog.Logger) *Engine {
	e := NewEngine(llm, exec, logger)
	e.RegisterPattern(&attributionPattern{})
	e.RegisterPattern(&priorityPattern{})
	e.RegisterPattern(&sentimentPattern{})
	e.RegisterPattern(&quotesPattern{})
	return e
}

// RegisterPattern adds or replaces a pattern by name. Last write wins.
func (e *Engine) RegisterPattern(p Pattern) {
	name := p.Name()
	if _, exists := e.patterns[name]; !exists {
		e.order = append(e.order, name)
	}
	e.patterns[name] = p
}

// UnregisterPattern removes a pattern; unknown names are a no-op.
func (e *Engine) UnregisterPattern(name string) {
	if _, exists := e.patterns[name]; !exists {
		return
	}
	delete(e.patterns, name)
	for i, n := range e.order {
		if n == name {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// GetPattern returns the named pattern, or nil.
func (e *Engine) GetPattern(name string) Pattern {
	return e.patterns[name]
}

// ListPatterns returns registered pattern names in registration order.
func (e *Engine) ListPatterns() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// ShouldEnrich gates the pass: enrichment needs something to enrich, an
// enabled config, and segments to ground against.
func ShouldEnrich(results *analysis.Results, segments []transcript.Segment, cfg Config) bool {
	if !cfg.Enabled || len(segments) == 0 || results == nil {
		return false
	}
	return len(results.ActionItems) > 0 || len(results.Decisions) > 0 || len(results.Quotes) > 0
}

// ExecutePatterns runs the whole registered set against one result object,
// mutating it in place, and returns per-pattern metadata. Pattern failures
// degrade: the run never aborts because enrichment underperformed.
func (e *Engine) ExecutePatterns(ctx context.Context, pctx Context) (*Metadata, error) {
	started := time.Now()
	meta := &Metadata{
		Mode:           pctx.Config.Mode,
		EnrichedAt:     started.UTC(),
		Model:          e.llm.Model(),
		PatternResults: make(map[string]PatternResult, len(e.order)),
	}

	if !ShouldEnrich(pctx.Results, pctx.Segments, pctx.Config) {
		meta.TotalDurationMs = time.Since(started).Milliseconds()
		return meta, nil
	}

	runnable := e.runnablePatterns(pctx)
	for _, name := range e.order {
		meta.PatternResults[name] = PatternResult{}
	}
	if len(runnable) == 0 {
		meta.TotalDurationMs = time.Since(started).Milliseconds()
		return meta, nil
	}

	meta.EnrichmentRun = true

	switch pctx.Config.Mode {
	case ModeSeparate:
		e.executeSeparate(ctx, pctx, runnable, meta)
	default:
		e.executeCombined(ctx, pctx, runnable, meta)
	}

	meta.TotalDurationMs = time.Since(started).Milliseconds()
	return meta, ctx.Err()
}

// ExecutePattern runs one named pattern standalone.
func (e *Engine) ExecutePattern(ctx context.Context, name string, pctx Context) (*Metadata, error) {
	p := e.patterns[name]
	if p == nil {
		return nil, fmt.Errorf("unknown pattern %q", name)
	}

	started := time.Now()
	meta := &Metadata{
		Mode:           ModeSeparate,
		EnrichedAt:     started.UTC(),
		Model:          e.llm.Model(),
		PatternResults: map[string]PatternResult{name: {}},
	}

	if !ShouldEnrich(pctx.Results, pctx.Segments, pctx.Config) || !p.ShouldRun(pctx) {
		meta.TotalDurationMs = time.Since(started).Milliseconds()
		return meta, nil
	}

	meta.EnrichmentRun = true
	e.executeSeparate(ctx, pctx, []Pattern{p}, meta)
	meta.TotalDurationMs = time.Since(started).Milliseconds()
	return meta, ctx.Err()
}

func (e *Engine) runnablePatterns(pctx Context) []Pattern {
	var out []Pattern
	for _, name := range e.order {
		p := e.patterns[name]
		if p.ShouldRun(pctx) {
			out = append(out, p)
		}
	}
	return out
}

// executeSeparate issues one call per pattern, sequentially. Later calls
// must not race earlier merges.
func (e *Engine) executeSeparate(ctx context.Context, pctx Context, patterns []Pattern, meta *Metadata) {
	for _, p := range patterns {
		if ctx.Err() != nil {
			return
		}
		patternStart := time.Now()
		result := PatternResult{}

		raw, err := e.call(ctx, buildSeparatePrompt(pctx, p))
		if err == nil {
			var data *Data
			data, _, err = p.ParseResponse(raw)
			if err == nil {
				if v, ok := p.(Validator); ok && !v.Validate(data) {
					err = fmt.Errorf("pattern %s rejected its own data", p.Name())
				} else {
					result.ItemsEnriched = e.merge(pctx, data)
					result.Success = true
				}
			}
		}
		if err != nil {
			result.Error = err.Error()
			e.logger.Warn("enrichment pattern failed", "pattern", p.Name(), "error", err)
		}

		result.DurationMs = time.Since(patternStart).Milliseconds()
		meta.PatternResults[p.Name()] = result
	}
}

// executeCombined makes one call covering every runnable pattern and fans
// the response out per pattern.
func (e *Engine) executeCombined(ctx context.Context, pctx Context, patterns []Pattern, meta *Metadata) {
	callStart := time.Now()
	raw, err := e.call(ctx, buildCombinedPrompt(pctx, patterns))
	callMs := time.Since(callStart).Milliseconds()

	if err != nil {
		e.logger.Warn("combined enrichment call failed", "error", err)
		for _, p := range patterns {
			meta.PatternResults[p.Name()] = PatternResult{Error: err.Error(), DurationMs: callMs}
		}
		return
	}

	var combined struct {
		Patterns map[string]json.RawMessage `json:"patterns"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &combined); err != nil {
		e.logger.Warn("combined enrichment response unparseable", "error", err)
		for _, p := range patterns {
			meta.PatternResults[p.Name()] = PatternResult{Error: "unparseable combined response", DurationMs: callMs}
		}
		return
	}

	for _, p := range patterns {
		result := PatternResult{DurationMs: callMs}
		sub, ok := combined.Patterns[p.Name()]
		if !ok {
			result.Error = "pattern missing from combined response"
			meta.PatternResults[p.Name()] = result
			continue
		}

		data, _, err := p.ParseResponse(string(sub))
		if err != nil {
			result.Error = err.Error()
			meta.PatternResults[p.Name()] = result
			continue
		}
		if v, isV := p.(Validator); isV && !v.Validate(data) {
			result.Error = "pattern rejected its own data"
			meta.PatternResults[p.Name()] = result
			continue
		}

		result.ItemsEnriched = e.merge(pctx, data)
		result.Success = true
		meta.PatternResults[p.Name()] = result
	}
}

func (e *Engine) call(ctx context.Context, prompt string) (string, error) {
	comp, err := e.exec.Execute(ctx, func(ctx context.Context) (*anthropic.Completion, error) {
		return e.llm.Complete(ctx, anthropic.Request{
			System:          enrichmentSystemPrompt,
			Messages:        []anthropic.Message{{Role: "user", Content: prompt}},
			MaxOutputTokens: 2048,
			Temperature:     0,
		})
	})
	if err != nil {
		return "", err
	}
	return comp.Content, nil
}

// merge applies parsed enrichment data: item records match strictly by id
// (unmatched ids drop silently), records under the confidence floor are
// skipped, and new quotes append to the original collection up to MaxQuotes.
func (e *Engine) merge(pctx Context, data *Data) int {
	if data == nil {
		return 0
	}
	enriched := 0

	actions := make(map[string]*analysis.ActionItem, len(pctx.Results.ActionItems))
	for i := range pctx.Results.ActionItems {
		actions[pctx.Results.ActionItems[i].ID] = &pctx.Results.ActionItems[i]
	}
	decisions := make(map[string]*analysis.Decision, len(pctx.Results.Decisions))
	for i := range pctx.Results.Decisions {
		decisions[pctx.Results.Decisions[i].ID] = &pctx.Results.Decisions[i]
	}

	for _, item := range data.Items {
		if item.Confidence < pctx.Config.MinConfidence {
			continue
		}
		if a, ok := actions[item.ID]; ok {
			if item.Priority != "" {
				a.Priority = item.Priority
			}
			if item.Sentiment != "" {
				a.Sentiment = item.Sentiment
			}
			if item.Attribution != "" && a.Assignee == "" {
				a.Assignee = item.Attribution
			}
			enriched++
			continue
		}
		if d, ok := decisions[item.ID]; ok {
			if item.Attribution != "" {
				d.Attribution = item.Attribution
			}
			if item.Priority != "" {
				d.Priority = item.Priority
			}
			if item.Sentiment != "" {
				d.Sentiment = item.Sentiment
			}
			enriched++
		}
		// Unmatched ids drop silently.
	}

	enriched += e.appendQuotes(pctx, data.Quotes)
	return enriched
}

// appendQuotes resolves grounded quote refs to verbatim segments and
// appends them, skipping refs under the confidence floor, out-of-range ids,
// and segments already quoted.
func (e *Engine) appendQuotes(pctx Context, refs []QuoteRef) int {
	if len(refs) == 0 || pctx.Config.MaxQuotes <= 0 {
		return 0
	}

	existing := make(map[string]bool, len(pctx.Results.Quotes))
	usedIDs := make(map[string]bool, len(pctx.Results.Quotes))
	for _, q := range pctx.Results.Quotes {
		existing[q.Text] = true
		usedIDs[q.ID] = true
	}
	nextID := func() string {
		for n := 1; ; n++ {
			id := fmt.Sprintf("quote-%d", n)
			if !usedIDs[id] {
				usedIDs[id] = true
				return id
			}
		}
	}

	added := 0
	for _, ref := range refs {
		if added >= pctx.Config.MaxQuotes {
			break
		}
		if ref.Confidence < pctx.Config.MinConfidence {
			continue
		}
		if ref.SegmentID < 0 || ref.SegmentID >= len(pctx.Segments) {
			continue
		}
		seg := pctx.Segments[ref.SegmentID]
		text := strings.TrimSpace(seg.Text)
		if text == "" || existing[text] {
			continue
		}
		pctx.Results.Quotes = append(pctx.Results.Quotes, analysis.Quote{
			ID:        nextID(),
			Text:      text,
			Speaker:   seg.Speaker,
			Timestamp: int(seg.Start),
		})
		existing[text] = true
		added++
	}
	return added
}

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
