package invalidation

import (
	"fmt"
	"log"
	"strings"

	"github.com/weaverlabs/coordination/internal/evidence"
	"github.com/weaverlabs/coordination/internal/registry"
)

// #region engine-config
// EngineConfig tunes the default rule set.
type EngineConfig struct {
	// ContextShifts maps context families to incompatible families for the
	// context_shift rule.
	ContextShifts map[string][]string
	// ExtraFailureKeywords extends the approach_failed rule with
	// deployment-specific phrasing.
	ExtraFailureKeywords []string
}

// DefaultEngineConfig returns the standard rule configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{ContextShifts: DefaultContextShifts()}
}

// #endregion engine-config

// #region engine
// Engine evaluates an ordered rule set against (worker, entry) pairs.
// It is a pure function of its inputs: no registry or monitor state is
// read or written here.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine seeded with the five default rules in their
// mandated order.
func NewEngine(config EngineConfig) *Engine {
	if config.ContextShifts == nil {
		config.ContextShifts = DefaultContextShifts()
	}
	return &Engine{rules: defaultRules(config)}
}

// AddRule appends a rule. Order is significant: earlier rules win the
// tie-break when several terminate-severity rules match one entry.
func (eng *Engine) AddRule(rule Rule) {
	eng.rules = append(eng.rules, rule)
	log.Printf("[invalidation] added rule %s (%s)", rule.Name(), rule.Severity())
}

// Rules returns the registered rules in evaluation order.
func (eng *Engine) Rules() []Rule {
	out := make([]Rule, len(eng.rules))
	copy(out, eng.rules)
	return out
}

// #endregion engine

// #region check-entry
// CheckEntry evaluates every rule against one entry and aggregates by
// severity. When any terminate-severity rule matches, the decision
// terminates and takes its kind from the first such rule in registration
// order. Warn-only matches keep the worker running but still carry the
// highest-priority warning's kind and reason.
func (eng *Engine) CheckEntry(w registry.Worker, e evidence.Entry) Decision {
	var matched []string
	highest := SeverityInfo
	primary := KindNone

	for _, rule := range eng.rules {
		if !matchRule(rule, w, e) {
			continue
		}
		matched = append(matched, rule.Name())

		switch {
		case rule.Severity() == SeverityTerminate:
			if highest != SeverityTerminate {
				highest = SeverityTerminate
				primary = rule.Kind()
			}
		case rule.Severity() == SeverityWarn && highest != SeverityTerminate:
			highest = SeverityWarn
			if primary == KindNone {
				primary = rule.Kind()
			}
		}
	}

	if len(matched) == 0 {
		return Decision{
			Reason:           "No invalidation detected",
			Kind:             KindNone,
			ConflictingEntry: e.EntryNumber,
			Recommendation:   "Continue thinking",
			Confidence:       1.0,
		}
	}

	return Decision{
		ShouldTerminate:  highest == SeverityTerminate,
		Reason:           buildReason(primary, e, matched),
		Kind:             primary,
		ConflictingEntry: e.EntryNumber,
		Recommendation:   buildRecommendation(primary),
		Confidence:       confidence(len(matched)),
		MatchedRules:     matched,
	}
}

// matchRule isolates a panicking predicate the same way callback fan-out
// isolates subscribers: logged and treated as no match.
func matchRule(rule Rule, w registry.Worker, e evidence.Entry) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[invalidation] rule %s panicked: %v", rule.Name(), r)
			matched = false
		}
	}()
	return rule.Matches(w, e)
}

// #endregion check-entry

// #region check-entries
// CheckEntries evaluates entries in the order given (callers supply
// ascending entry-number order) and returns on the first entry that
// terminates. Later entries are not evaluated. When none terminate it
// returns one aggregate decision referencing the last entry's number.
func (eng *Engine) CheckEntries(w registry.Worker, entries []evidence.Entry) Decision {
	if len(entries) == 0 {
		return Decision{
			Reason:         "No new entries",
			Kind:           KindNone,
			Recommendation: "Continue thinking",
			Confidence:     1.0,
		}
	}

	for _, e := range entries {
		decision := eng.CheckEntry(w, e)
		if decision.ShouldTerminate {
			return decision
		}
	}

	return Decision{
		Reason:           fmt.Sprintf("Checked %d new entries, none invalidate thinking", len(entries)),
		Kind:             KindNone,
		ConflictingEntry: entries[len(entries)-1].EntryNumber,
		Recommendation:   "Continue thinking",
		Confidence:       1.0,
	}
}

// #endregion check-entries

// #region decision-text
func buildReason(kind Kind, e evidence.Entry, matched []string) string {
	var base string
	switch kind {
	case KindApproachFailed:
		base = fmt.Sprintf("Entry #%d indicates the current approach failed. User reported no improvement or unsuccessful results.", e.EntryNumber)
	case KindDirectionChange:
		base = fmt.Sprintf("Entry #%d shows the user changed investigation direction. New approach requested.", e.EntryNumber)
	case KindSolutionFound:
		base = fmt.Sprintf("Entry #%d shows another worker found and validated a solution. This line of thinking is no longer needed.", e.EntryNumber)
	case KindContextShift:
		base = fmt.Sprintf("Entry #%d shifted the investigation context. Focus moved to a different area.", e.EntryNumber)
	case KindContradiction:
		base = fmt.Sprintf("Entry #%d contradicts the current hypothesis.", e.EntryNumber)
	default:
		base = fmt.Sprintf("Entry #%d may invalidate current thinking.", e.EntryNumber)
	}
	if len(matched) > 0 {
		base += fmt.Sprintf(" (matched rules: %s)", strings.Join(matched, ", "))
	}
	return base
}

func buildRecommendation(kind Kind) string {
	switch kind {
	case KindApproachFailed:
		return "Terminate thinking. Acknowledge the failed approach and defer to the current investigation direction."
	case KindDirectionChange:
		return "Terminate thinking. The user has a new direction; a fresh worker should be forked for the new context."
	case KindSolutionFound:
		return "Terminate thinking. A solution is already validated; defer to it."
	case KindContextShift:
		return "Terminate thinking. The investigation moved to a different context where this line of reasoning may not apply."
	case KindContradiction:
		return "Review the entry and re-evaluate the hypothesis. Terminate if the contradiction holds."
	}
	return "Continue with caution"
}

// confidence grows with the number of matched rules: one match 0.7,
// two 0.85, three or more capped at 1.0.
func confidence(matchedCount int) float64 {
	bonus := matchedCount - 1
	if bonus > 2 {
		bonus = 2
	}
	return 0.7 + 0.15*float64(bonus)
}

// #endregion decision-text
