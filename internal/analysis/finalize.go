package analysis

import "fmt"

// OutputSet is the set of outputs a template requested.
type OutputSet map[Output]bool

// NewOutputSet builds a set from a list of outputs.
func NewOutputSet(outputs []Output) OutputSet {
	set := make(OutputSet, len(outputs))
	for _, o := range outputs {
		set[o] = true
	}
	return set
}

// Finalize is the single post-processing step run once after parsing: it
// assigns any missing collection ids, deduplicates id collisions, repairs
// cross-references by dropping ids that do not resolve, and prunes every
// collection the template did not request. Repairs are silent: a generative
// model's imperfect referential consistency is not a usage error.
func Finalize(r *Results, outputs OutputSet) {
	assignIDs(r)
	repairReferences(r)
	prune(r, outputs)
}

// assignIDs gives every collection item a unique "<kind>-<n>" id. Items that
// already carry an id keep it unless it collides with an earlier item in the
// same collection; collisions and blanks get the next free id.
func assignIDs(r *Results) {
	used := make(map[string]bool)
	for i := range r.AgendaItems {
		r.AgendaItems[i].ID = claimID(used, "agenda", r.AgendaItems[i].ID)
	}
	used = make(map[string]bool)
	for i := range r.Benchmarks {
		r.Benchmarks[i].ID = claimID(used, "benchmark", r.Benchmarks[i].ID)
	}
	used = make(map[string]bool)
	for i := range r.RadioReports {
		r.RadioReports[i].ID = claimID(used, "radio", r.RadioReports[i].ID)
	}
	used = make(map[string]bool)
	for i := range r.SafetyEvents {
		r.SafetyEvents[i].ID = claimID(used, "safety", r.SafetyEvents[i].ID)
	}
	used = make(map[string]bool)
	for i := range r.ActionItems {
		r.ActionItems[i].ID = claimID(used, "action", r.ActionItems[i].ID)
	}
	used = make(map[string]bool)
	for i := range r.Decisions {
		r.Decisions[i].ID = claimID(used, "decision", r.Decisions[i].ID)
	}
	used = make(map[string]bool)
	for i := range r.Quotes {
		r.Quotes[i].ID = claimID(used, "quote", r.Quotes[i].ID)
	}
}

// claimID keeps id when it is non-empty and unclaimed, otherwise returns the
// first free "<kind>-<n>". The claimed id is recorded in used.
func claimID(used map[string]bool, kind, id string) string {
	if id != "" && !used[id] {
		used[id] = true
		return id
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d", kind, n)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

// repairReferences drops cross-reference ids that do not resolve to a real
// item. Valid references are left untouched.
func repairReferences(r *Results) {
	decisions := make(map[string]bool, len(r.Decisions))
	for _, d := range r.Decisions {
		decisions[d.ID] = true
	}
	agenda := make(map[string]bool, len(r.AgendaItems))
	for _, a := range r.AgendaItems {
		agenda[a.ID] = true
	}

	for i := range r.ActionItems {
		r.ActionItems[i].DecisionIDs = keepResolved(r.ActionItems[i].DecisionIDs, decisions)
	}
	for i := range r.Decisions {
		r.Decisions[i].AgendaItemIDs = keepResolved(r.Decisions[i].AgendaItemIDs, agenda)
	}
}

func keepResolved(refs []string, valid map[string]bool) []string {
	if len(refs) == 0 {
		return refs
	}
	kept := refs[:0]
	for _, ref := range refs {
		if valid[ref] {
			kept = append(kept, ref)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// prune removes every collection the template did not request, even if the
// model emitted one.
func prune(r *Results, outputs OutputSet) {
	if !outputs[OutputSummary] {
		r.Summary = ""
	}
	if !outputs[OutputAgendaItems] {
		r.AgendaItems = nil
	}
	if !outputs[OutputBenchmarks] {
		r.Benchmarks = nil
	}
	if !outputs[OutputRadioReports] {
		r.RadioReports = nil
	}
	if !outputs[OutputSafetyEvents] {
		r.SafetyEvents = nil
	}
	if !outputs[OutputActionItems] {
		r.ActionItems = nil
	}
	if !outputs[OutputDecisions] {
		r.Decisions = nil
	}
	if !outputs[OutputQuotes] {
		r.Quotes = nil
	}
}
