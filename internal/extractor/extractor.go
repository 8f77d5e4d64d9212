// Package extractor owns the structured-extraction contract: prompt
// construction for one extraction call, and the validation pipeline that
// turns a raw model response into canonical analysis results.
package extractor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/attestlabs/attest/internal/analysis"
	"github.com/attestlabs/attest/internal/anthropic"
	"github.com/attestlabs/attest/internal/llmcall"
)

const (
	DefaultMaxOutputTokens = 8192
	DefaultTemperature     = 0.2
)

type Extractor struct {
	llm    llmcall.Completer
	exec   *llmcall.Executor
	logger *slog.Logger
}

func New(llm llmcall.Completer, exec *llmcall.Executor, logger *slog.Logger) *Extractor {
	return &Extractor{llm: llm, exec: exec, logger: logger}
}

// Extract performs one extraction call and returns the parsed, normalized,
// structurally validated results for the requested sections. Id assignment,
// cross-reference repair, and pruning run once per analysis run, after all
// calls have merged (analysis.Finalize).
func (e *Extractor) Extract(ctx context.Context, req Request) (*analysis.Results, error) {
	if req.MaxOutputTokens <= 0 {
		req.MaxOutputTokens = DefaultMaxOutputTokens
	}

	prompt := buildPrompt(req)

	e.logger.Info("extraction call",
		"sections", len(req.Sections),
		"prior_sections", len(req.PriorSections),
		"transcript_len", len(req.Transcript),
	)

	comp, err := e.exec.Execute(ctx, func(ctx context.Context) (*anthropic.Completion, error) {
		return e.llm.Complete(ctx, anthropic.Request{
			System:          systemPrompt,
			Messages:        []anthropic.Message{{Role: "user", Content: prompt}},
			MaxOutputTokens: req.MaxOutputTokens,
			Temperature:     req.Temperature,
		})
	})
	if err != nil {
		return nil, err
	}

	results, err := parseResponse(comp.Content)
	if err != nil {
		e.logger.Error("extraction response rejected", "error", err)
		return nil, err
	}

	e.logger.Info("extraction call complete",
		"sections", len(results.Sections),
		"decisions", len(results.Decisions),
		"action_items", len(results.ActionItems),
	)
	return results, nil
}

// parseResponse runs the response pipeline: parse JSON (fatal on failure),
// normalize key variants, validate structure, convert to the canonical
// shape.
func parseResponse(raw string) (*analysis.Results, error) {
	body := stripFences(raw)

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &top); err != nil {
		return nil, &ContractError{Reason: "invalid JSON in extraction response", Preview: preview(raw)}
	}

	top = normalizeKeys(top)

	// Every recognized collection key present must be an array.
	for key := range arrayKeys {
		rawVal, ok := top[key]
		if !ok || string(rawVal) == "null" {
			continue
		}
		var probe []json.RawMessage
		if err := json.Unmarshal(rawVal, &probe); err != nil {
			return nil, &ContractError{
				Reason:  "response does not match expected structure: " + key + " is not an array",
				Preview: preview(raw),
			}
		}
	}

	results := &analysis.Results{}

	if rawVal, ok := top["summary"]; ok {
		if err := json.Unmarshal(rawVal, &results.Summary); err != nil {
			return nil, &ContractError{Reason: "response does not match expected structure: summary is not a string", Preview: preview(raw)}
		}
	}

	if rawVal, ok := top["sections"]; ok {
		var wire []wireSection
		if err := json.Unmarshal(rawVal, &wire); err != nil {
			return nil, &ContractError{Reason: "response does not match expected structure: malformed sections", Preview: preview(raw)}
		}
		for _, w := range wire {
			sec := w.toSection()
			if sec.Name == "" || sec.Content == "" {
				return nil, &ContractError{Reason: "response does not match expected structure: section missing name or content", Preview: preview(raw)}
			}
			results.Sections = append(results.Sections, sec)
		}
	}

	if err := decodeCollection(top, "agendaItems", &results.AgendaItems, raw); err != nil {
		return nil, err
	}
	if err := decodeCollection(top, "benchmarks", &results.Benchmarks, raw); err != nil {
		return nil, err
	}
	if err := decodeCollection(top, "radioReports", &results.RadioReports, raw); err != nil {
		return nil, err
	}
	if err := decodeCollection(top, "safetyEvents", &results.SafetyEvents, raw); err != nil {
		return nil, err
	}
	if err := decodeCollection(top, "actionItems", &results.ActionItems, raw); err != nil {
		return nil, err
	}
	if err := decodeCollection(top, "decisions", &results.Decisions, raw); err != nil {
		return nil, err
	}
	if err := decodeCollection(top, "quotes", &results.Quotes, raw); err != nil {
		return nil, err
	}

	return results, nil
}

func decodeCollection[T any](top map[string]json.RawMessage, key string, dst *[]T, raw string) error {
	rawVal, ok := top[key]
	if !ok || string(rawVal) == "null" {
		return nil
	}
	if err := json.Unmarshal(rawVal, dst); err != nil {
		return &ContractError{Reason: "response does not match expected structure: malformed " + key, Preview: preview(raw)}
	}
	return nil
}
