package analysis

// Output identifies one kind of requested analysis output. A template's
// requested outputs decide which collections may appear in the results.
type Output string

const (
	OutputSummary      Output = "summary"
	OutputAgendaItems  Output = "agenda_items"
	OutputBenchmarks   Output = "benchmarks"
	OutputRadioReports Output = "radio_reports"
	OutputSafetyEvents Output = "safety_events"
	OutputActionItems  Output = "action_items"
	OutputDecisions    Output = "decisions"
	OutputQuotes       Output = "quotes"
)

// Evidence is a verbatim transcript excerpt supporting a section. Text is
// always a concatenation of consecutive segment texts, never synthesized.
type Evidence struct {
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Relevance float64 `json:"relevance"`
}

// Section is one generated analysis section.
type Section struct {
	Name     string     `json:"name"`
	Content  string     `json:"content"`
	Evidence []Evidence `json:"evidence,omitempty"`
}

// AgendaItem is a topic the conversation covered.
type AgendaItem struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Summary   string `json:"summary"`
	Timestamp int    `json:"timestamp"`
}

// Benchmark is a metric or measurement stated in the transcript.
type Benchmark struct {
	ID        string `json:"id"`
	Metric    string `json:"metric"`
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Timestamp int    `json:"timestamp"`
}

// RadioReport is a formal status report given over the air.
type RadioReport struct {
	ID        string `json:"id"`
	Unit      string `json:"unit"`
	Report    string `json:"report"`
	Timestamp int    `json:"timestamp"`
}

// SafetyEvent is a hazard, incident, or safety concern raised in the
// transcript.
type SafetyEvent struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Severity    string `json:"severity"` // low | medium | high | critical
	Timestamp   int    `json:"timestamp"`
}

// ActionItem is a committed follow-up. DecisionIDs reference the decisions
// that produced it; dangling references are repaired during finalization.
type ActionItem struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Assignee    string   `json:"assignee,omitempty"`
	DueDate     string   `json:"dueDate,omitempty"`
	Timestamp   int      `json:"timestamp"`
	DecisionIDs []string `json:"decisionIds,omitempty"`

	// Enrichment fields, populated by a secondary pass when enabled.
	Priority  string `json:"priority,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
}

// Decision is a call made during the conversation. AgendaItemIDs reference
// the agenda items it arose from.
type Decision struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Rationale     string   `json:"rationale,omitempty"`
	Timestamp     int      `json:"timestamp"`
	AgendaItemIDs []string `json:"agendaItemIds,omitempty"`

	// Enrichment fields.
	Attribution string `json:"attribution,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Sentiment   string `json:"sentiment,omitempty"`
}

// Quote is a notable verbatim statement.
type Quote struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Speaker   string `json:"speaker,omitempty"`
	Timestamp int    `json:"timestamp"`
}

// Results is the canonical output of one analysis run. Collections are nil
// unless the template requested the corresponding output.
type Results struct {
	Summary      string        `json:"summary,omitempty"`
	Sections     []Section     `json:"sections"`
	AgendaItems  []AgendaItem  `json:"agendaItems,omitempty"`
	Benchmarks   []Benchmark   `json:"benchmarks,omitempty"`
	RadioReports []RadioReport `json:"radioReports,omitempty"`
	SafetyEvents []SafetyEvent `json:"safetyEvents,omitempty"`
	ActionItems  []ActionItem  `json:"actionItems,omitempty"`
	Decisions    []Decision    `json:"decisions,omitempty"`
	Quotes       []Quote       `json:"quotes,omitempty"`
}

// Section returns the named section, or nil.
func (r *Results) Section(name string) *Section {
	for i := range r.Sections {
		if r.Sections[i].Name == name {
			return &r.Sections[i]
		}
	}
	return nil
}

// Merge folds another partial result into r. Later sections and collection
// items append; a non-empty summary overwrites. Used by multi-call
// strategies where each call extracts a slice of the template.
func (r *Results) Merge(other *Results) {
	if other == nil {
		return
	}
	if other.Summary != "" {
		r.Summary = other.Summary
	}
	r.Sections = append(r.Sections, other.Sections...)
	r.AgendaItems = append(r.AgendaItems, other.AgendaItems...)
	r.Benchmarks = append(r.Benchmarks, other.Benchmarks...)
	r.RadioReports = append(r.RadioReports, other.RadioReports...)
	r.SafetyEvents = append(r.SafetyEvents, other.SafetyEvents...)
	r.ActionItems = append(r.ActionItems, other.ActionItems...)
	r.Decisions = append(r.Decisions, other.Decisions...)
	r.Quotes = append(r.Quotes, other.Quotes...)
}
