package invalidation

import (
	"regexp"
	"strings"

	"github.com/weaverlabs/coordination/internal/evidence"
	"github.com/weaverlabs/coordination/internal/registry"
)

// #region attribute-keys
// Worker attribute keys the default rules read.
const (
	AttrHypothesis = "hypothesis"
	AttrContext    = "context"
)

// #endregion attribute-keys

// #region patterns
var failurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(failed|failure|didn't work|not working|no improvement)\b`),
	regexp.MustCompile(`\b(after \d+ days?.*no|tried for.*failed)\b`),
	regexp.MustCompile(`\b(solution (failed|didn't work)|approach (failed|unsuccessful))\b`),
}

var directionChangePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(try (a |an )?(different|alternative)|change approach|new (hypothesis|direction))\b`),
	regexp.MustCompile(`\b(instead|rather than|not .* but)\b`),
	regexp.MustCompile(`\b(pivot to|switch to|focus on .* instead)\b`),
	regexp.MustCompile(`\b(forget .* try|abandon .* approach)\b`),
}

var solutionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(solution found|problem solved|fix (applied|working))\b`),
	regexp.MustCompile(`\b(successfully (fixed|resolved)|issue (resolved|closed))\b`),
	regexp.MustCompile(`\b(validation (successful|passed)|confirmed (working|fixed))\b`),
	regexp.MustCompile(`\b\d+%\s*(improvement|reduction|better)\b`),
}

var contradictionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(actually|in fact|turns out|however)\b`),
	regexp.MustCompile(`\b(not .* but|instead of|contrary to)\b`),
	regexp.MustCompile(`\b(disproved|incorrect|wrong assumption)\b`),
}

// #endregion patterns

// #region context-shifts
// DefaultContextShifts maps a context family to the families considered
// incompatible with it. A thinking worker declared on the left whose ticket
// evidence shifts to a label on the right has lost its footing.
func DefaultContextShifts() map[string][]string {
	return map[string][]string{
		"database":    {"network", "system", "hardware"},
		"network":     {"database", "application", "security"},
		"system":      {"database", "network", "application"},
		"performance": {"security", "configuration", "deployment"},
	}
}

// #endregion context-shifts

// #region default-rules
// defaultRules builds the five standard rules in their mandated order:
// approach_failed, direction_change, solution_found_elsewhere,
// context_shift, contradiction. This order is the tie-break when several
// terminate-severity rules match the same entry.
func defaultRules(config EngineConfig) []Rule {
	return []Rule{
		staticRule{
			name:        "user_approach_failed",
			kind:        KindApproachFailed,
			severity:    SeverityTerminate,
			description: "User reported that the current approach failed",
			predicate:   approachFailedPredicate(config.ExtraFailureKeywords),
		},
		staticRule{
			name:        "user_direction_change",
			kind:        KindDirectionChange,
			severity:    SeverityTerminate,
			description: "User explicitly changed investigation direction",
			predicate:   directionChange,
		},
		staticRule{
			name:        "solution_found_elsewhere",
			kind:        KindSolutionFound,
			severity:    SeverityTerminate,
			description: "Another worker already found and validated a solution",
			predicate:   solutionFound,
		},
		staticRule{
			name:        "context_shift",
			kind:        KindContextShift,
			severity:    SeverityTerminate,
			description: "Investigation context shifted to an incompatible area",
			predicate:   contextShiftPredicate(config.ContextShifts),
		},
		staticRule{
			name:        "contradiction",
			kind:        KindContradiction,
			severity:    SeverityWarn,
			description: "New evidence contradicts the worker's current hypothesis",
			predicate:   contradiction,
		},
	}
}

// #endregion default-rules

// #region predicates
func entryText(e evidence.Entry) string {
	return strings.ToLower(e.PromptInput + " " + e.RawOutput)
}

func approachFailedPredicate(extraKeywords []string) func(registry.Worker, evidence.Entry) bool {
	return func(_ registry.Worker, e evidence.Entry) bool {
		if e.Source != evidence.SourceUser {
			return false
		}
		content := entryText(e)
		for _, re := range failurePatterns {
			if re.MatchString(content) {
				return true
			}
		}
		for _, kw := range extraKeywords {
			if kw != "" && strings.Contains(content, strings.ToLower(kw)) {
				return true
			}
		}
		return false
	}
}

func directionChange(_ registry.Worker, e evidence.Entry) bool {
	if e.Source != evidence.SourceUser {
		return false
	}
	content := entryText(e)
	for _, re := range directionChangePatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

func solutionFound(_ registry.Worker, e evidence.Entry) bool {
	if e.Source != evidence.SourceWorker && e.Source != evidence.SourceUser {
		return false
	}
	content := entryText(e)
	for _, re := range solutionPatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

func contextShiftPredicate(shifts map[string][]string) func(registry.Worker, evidence.Entry) bool {
	return func(w registry.Worker, e evidence.Entry) bool {
		workerContext := strings.ToLower(w.Attributes[AttrContext])
		entryContext := strings.ToLower(e.ContextLabel)
		if workerContext == "" || entryContext == "" {
			return false
		}
		for base, incompatible := range shifts {
			if !strings.Contains(workerContext, base) {
				continue
			}
			for _, other := range incompatible {
				if strings.Contains(entryContext, other) {
					return true
				}
			}
		}
		return false
	}
}

// contradiction fires when the entry mentions the leading terms of the
// worker's declared hypothesis together with contradiction phrasing.
func contradiction(w registry.Worker, e evidence.Entry) bool {
	hypothesis := strings.ToLower(w.Attributes[AttrHypothesis])
	if hypothesis == "" {
		return false
	}
	content := entryText(e)

	terms := strings.Fields(hypothesis)
	if len(terms) > 3 {
		terms = terms[:3]
	}
	mentioned := false
	for _, term := range terms {
		if strings.Contains(content, term) {
			mentioned = true
			break
		}
	}
	if !mentioned {
		return false
	}

	for _, re := range contradictionPatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// #endregion predicates
