package extractor

import (
	"fmt"

	"github.com/attestlabs/attest/internal/analysis"
	"github.com/attestlabs/attest/internal/template"
)

// Request describes one extraction call. Sections is the slice of the
// template this call covers (all of them for basic strategy, a batch or a
// single section otherwise); PriorSections is cascading context from earlier
// calls in the same run.
type Request struct {
	Transcript      string
	Sections        []template.Section
	Outputs         analysis.OutputSet
	PriorSections   []analysis.Section
	MaxOutputTokens int
	Temperature     float64
}

// ContractError is a fatal contract violation: the model answered the call
// but the response does not satisfy the schema the prompt demanded. It is
// never retried: a schema mismatch is a prompt bug, not transience.
type ContractError struct {
	Reason  string
	Preview string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s (content preview: %s)", e.Reason, e.Preview)
}

// preview truncates raw content for error diagnostics.
func preview(raw string) string {
	const max = 240
	if len(raw) <= max {
		return raw
	}
	return raw[:max] + "…"
}
