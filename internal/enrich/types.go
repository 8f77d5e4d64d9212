package enrich

import (
	"time"

	"github.com/attestlabs/attest/internal/analysis"
	"github.com/attestlabs/attest/internal/transcript"
)

// Mode selects how registered patterns are executed.
type Mode string

const (
	// ModeCombined folds every pattern into one call; fastest.
	ModeCombined Mode = "combined"
	// ModeSeparate issues one call per pattern, sequentially, for narrower
	// prompts and rate-limit courtesy.
	ModeSeparate Mode = "separate"
)

// Config controls the enrichment pass.
type Config struct {
	Mode               Mode    `json:"mode"`
	MaxQuotes          int     `json:"maxQuotes"`
	MinConfidence      float64 `json:"minConfidence"`
	MaxEvidencePerItem int     `json:"maxEvidencePerItem"`
	Enabled            bool    `json:"enabled"`
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeCombined,
		MaxQuotes:          5,
		MinConfidence:      0.5,
		MaxEvidencePerItem: 2,
		Enabled:            true,
	}
}

// Context is everything a pattern sees: the run's results and segments, and
// the active config. Created fresh per run, owned by the run.
type Context struct {
	Results  *analysis.Results
	Segments []transcript.Segment
	Config   Config
}

// ItemEnrichment is one enrichment record, matched back to an existing item
// strictly by id. Records whose id no longer exists are silently dropped.
type ItemEnrichment struct {
	ID          string  `json:"id"`
	Attribution string  `json:"attribution,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	Sentiment   string  `json:"sentiment,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// QuoteRef is a new notable quote proposed by segment id only. The engine
// resolves the verbatim text and timestamp from the real segment. The model
// never supplies quote text that gets used directly.
type QuoteRef struct {
	SegmentID  int     `json:"segmentId"`
	Confidence float64 `json:"confidence"`
}

// Data is the parsed output of one pattern.
type Data struct {
	Items  []ItemEnrichment
	Quotes []QuoteRef
}

// Pattern is the pluggable capability set for one unit of enrichment logic.
type Pattern interface {
	Name() string
	// BuildPrompt returns the pattern's task block; the engine supplies the
	// shared item/transcript context around it.
	BuildPrompt(pctx Context) string
	// ParseResponse turns the pattern's raw response (or its slice of a
	// combined response) into data plus free-form metadata.
	ParseResponse(raw string) (*Data, map[string]any, error)
	ShouldRun(pctx Context) bool
}

// Validator is the optional extra capability for patterns that can sanity
// check their parsed data.
type Validator interface {
	Validate(data *Data) bool
}

// PatternResult reports how one pattern performed. Present for every
// registered pattern regardless of mode.
type PatternResult struct {
	Success       bool   `json:"success"`
	ItemsEnriched int    `json:"itemsEnriched"`
	DurationMs    int64  `json:"durationMs"`
	Error         string `json:"error,omitempty"`
}

// Metadata summarizes one enrichment pass.
type Metadata struct {
	EnrichmentRun   bool                     `json:"enrichmentRun"`
	Mode            Mode                     `json:"mode"`
	EnrichedAt      time.Time                `json:"enrichedAt"`
	TotalDurationMs int64                    `json:"totalDurationMs"`
	Model           string                   `json:"model"`
	PatternResults  map[string]PatternResult `json:"patternResults"`
}
