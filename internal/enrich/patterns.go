package enrich

import (
	"encoding/json"
	"fmt"
)

// Built-in patterns. Each one's prompt block is combined with the shared
// item/transcript context by the engine.

type attributionPattern struct{}

func (attributionPattern) Name() string { return "attribution" }

func (attributionPattern) ShouldRun(pctx Context) bool {
	return len(pctx.Results.Decisions) > 0 || len(pctx.Results.ActionItems) > 0
}

func (attributionPattern) BuildPrompt(pctx Context) string {
	return `Attribute each decision and action item to the person who made or owns it, based only on the transcript. Use the speaker names exactly as they appear.
Output shape: {"items": [{"id": "decision-1", "attribution": "Sarah", "confidence": 0.9}]}`
}

func (attributionPattern) ParseResponse(raw string) (*Data, map[string]any, error) {
	return parseItemResponse("attribution", raw)
}

type priorityPattern struct{}

func (priorityPattern) Name() string { return "priority" }

func (priorityPattern) ShouldRun(pctx Context) bool {
	return len(pctx.Results.ActionItems) > 0 || len(pctx.Results.Decisions) > 0
}

func (priorityPattern) BuildPrompt(pctx Context) string {
	return `Assign each action item and decision a priority based on urgency and impact expressed in the transcript: one of "low", "medium", "high", "urgent".
Output shape: {"items": [{"id": "action-1", "priority": "high", "confidence": 0.8}]}`
}

func (priorityPattern) ParseResponse(raw string) (*Data, map[string]any, error) {
	return parseItemResponse("priority", raw)
}

func (priorityPattern) Validate(data *Data) bool {
	for _, item := range data.Items {
		switch item.Priority {
		case "", "low", "medium", "high", "urgent":
		default:
			return false
		}
	}
	return true
}

type sentimentPattern struct{}

func (sentimentPattern) Name() string { return "sentiment" }

func (sentimentPattern) ShouldRun(pctx Context) bool {
	return len(pctx.Results.Decisions) > 0 || len(pctx.Results.ActionItems) > 0
}

func (sentimentPattern) BuildPrompt(pctx Context) string {
	return `Judge the sentiment around each decision and action item — how the room felt about it: one of "positive", "neutral", "negative", "mixed".
Output shape: {"items": [{"id": "decision-1", "sentiment": "positive", "confidence": 0.7}]}`
}

func (sentimentPattern) ParseResponse(raw string) (*Data, map[string]any, error) {
	return parseItemResponse("sentiment", raw)
}

func (sentimentPattern) Validate(data *Data) bool {
	for _, item := range data.Items {
		switch item.Sentiment {
		case "", "positive", "neutral", "negative", "mixed":
		default:
			return false
		}
	}
	return true
}

type quotesPattern struct{}

func (quotesPattern) Name() string { return "quotes" }

func (quotesPattern) ShouldRun(pctx Context) bool {
	return pctx.Config.MaxQuotes > 0
}

func (quotesPattern) BuildPrompt(pctx Context) string {
	return fmt.Sprintf(`Find up to %d notable quotes NOT already captured above. Refer to them ONLY by the [seg N] id of the segment containing the quote — never write the quote text yourself.
Output shape: {"quotes": [{"segmentId": 12, "confidence": 0.85}]}`, pctx.Config.MaxQuotes)
}

func (quotesPattern) ParseResponse(raw string) (*Data, map[string]any, error) {
	var resp struct {
		Quotes []QuoteRef `json:"quotes"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &resp); err != nil {
		return nil, nil, fmt.Errorf("parse quotes response: %w", err)
	}
	return &Data{Quotes: resp.Quotes}, map[string]any{"proposed": len(resp.Quotes)}, nil
}

// parseItemResponse handles the shared {"items": [...]} shape.
func parseItemResponse(pattern, raw string) (*Data, map[string]any, error) {
	var resp struct {
		Items []ItemEnrichment `json:"items"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &resp); err != nil {
		return nil, nil, fmt.Errorf("parse %s response: %w", pattern, err)
	}
	return &Data{Items: resp.Items}, map[string]any{"proposed": len(resp.Items)}, nil
}
