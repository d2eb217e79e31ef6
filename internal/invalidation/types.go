package invalidation

import (
	"github.com/weaverlabs/coordination/internal/evidence"
	"github.com/weaverlabs/coordination/internal/registry"
)

// #region kind
// Kind classifies why a worker's reasoning was invalidated.
type Kind string

const (
	KindApproachFailed  Kind = "approach_failed"
	KindDirectionChange Kind = "direction_change"
	KindSolutionFound   Kind = "solution_found_elsewhere"
	KindContextShift    Kind = "context_shift"
	KindContradiction   Kind = "contradiction"
	KindNone            Kind = "none"
)

// #endregion kind

// #region severity
// Severity orders rule outcomes: terminate > warn > info.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityTerminate
)

func (s Severity) String() string {
	switch s {
	case SeverityTerminate:
		return "terminate"
	case SeverityWarn:
		return "warn"
	}
	return "info"
}

// #endregion severity

// #region rule
// Rule inspects a worker's declared state plus one candidate entry and
// reports whether the entry invalidates the worker's reasoning. Rules are
// registered in an ordered list; when several terminate-severity rules
// match the same entry, the first registered one names the decision.
type Rule interface {
	Name() string
	Kind() Kind
	Severity() Severity
	Description() string
	Matches(w registry.Worker, e evidence.Entry) bool
}

// #endregion rule

// #region decision
// Decision is the engine's verdict on one or more candidate entries.
type Decision struct {
	ShouldTerminate  bool
	Reason           string
	Kind             Kind
	ConflictingEntry int // entry number that triggered the decision
	Recommendation   string
	Confidence       float64 // 0-1
	MatchedRules     []string
}

// #endregion decision

// #region static-rule
// staticRule implements Rule with a fixed predicate function.
type staticRule struct {
	name        string
	kind        Kind
	severity    Severity
	description string
	predicate   func(registry.Worker, evidence.Entry) bool
}

func (r staticRule) Name() string        { return r.name }
func (r staticRule) Kind() Kind          { return r.kind }
func (r staticRule) Severity() Severity  { return r.severity }
func (r staticRule) Description() string { return r.description }
func (r staticRule) Matches(w registry.Worker, e evidence.Entry) bool {
	return r.predicate(w, e)
}

// NewRule builds a Rule from a predicate, for callers extending the
// engine beyond the default rule set.
func NewRule(name string, kind Kind, severity Severity, description string, predicate func(registry.Worker, evidence.Entry) bool) Rule {
	return staticRule{
		name:        name,
		kind:        kind,
		severity:    severity,
		description: description,
		predicate:   predicate,
	}
}

// #endregion static-rule
