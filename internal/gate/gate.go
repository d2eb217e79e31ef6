package gate

import (
	"fmt"
	"log"

	"github.com/weaverlabs/coordination/internal/evidence"
	"github.com/weaverlabs/coordination/internal/invalidation"
	"github.com/weaverlabs/coordination/internal/provenance"
	"github.com/weaverlabs/coordination/internal/registry"
)

// #region gate
// Gate is the validate-before-respond check every worker must pass
// immediately before emitting a final answer. It composes the registry,
// the evidence monitor, and the rule engine; on invalidation it
// terminates the worker as a side effect of validation, so callers never
// need to remember a separate termination step.
type Gate struct {
	registry *registry.Registry
	monitor  *evidence.Monitor
	engine   *invalidation.Engine
	history  *provenance.Store // optional decision log
}

// NewGate wires the gate to its collaborators. All three are required;
// the provenance store is attached separately because it is optional.
func NewGate(reg *registry.Registry, mon *evidence.Monitor, eng *invalidation.Engine) *Gate {
	return &Gate{registry: reg, monitor: mon, engine: eng}
}

// AttachProvenance makes the gate record every validation outcome in the
// given store. A provenance write failure is logged and never fails the
// validation itself.
func (g *Gate) AttachProvenance(store *provenance.Store) {
	g.history = store
}

// #endregion gate

// #region validate
// Validate checks whether the worker may still respond. An unknown worker
// is an error, not a decision. The worker's watermark is left untouched:
// "I looked" and "I accepted" stay distinct actions, so advancing the
// watermark remains an explicit registry operation.
func (g *Gate) Validate(workerID string) (Result, error) {
	w, ok := g.registry.Get(workerID)
	if !ok {
		return Result{}, fmt.Errorf("validate: worker %s not found", workerID)
	}

	updates := g.monitor.CheckForUpdates(w.TicketID, w.Watermark.End)
	if len(updates) == 0 {
		result := Result{
			WorkerID:      workerID,
			SafeToRespond: true,
			Reason:        "No new evidence since thinking started",
			Kind:          invalidation.KindNone,
			Confidence:    1.0,
		}
		g.record(w, result)
		return result, nil
	}

	entries := make([]evidence.Entry, len(updates))
	for i, u := range updates {
		entries[i] = u.Entry
	}
	decision := g.engine.CheckEntries(w, entries)

	if decision.ShouldTerminate {
		// Terminate before returning: a worker that failed validation must
		// never observe itself as still active.
		g.registry.Terminate(workerID, decision.Reason)
		result := Result{
			WorkerID:         workerID,
			SafeToRespond:    false,
			ShouldTerminate:  true,
			Reason:           decision.Reason,
			Recommendation:   decision.Recommendation,
			Kind:             decision.Kind,
			ConflictingEntry: decision.ConflictingEntry,
			NewEntries:       len(updates),
			Confidence:       decision.Confidence,
		}
		g.record(w, result)
		return result, nil
	}

	result := Result{
		WorkerID:         workerID,
		SafeToRespond:    true,
		Reason:           "New evidence checked, no invalidation detected",
		Kind:             invalidation.KindNone,
		ConflictingEntry: decision.ConflictingEntry,
		NewEntries:       len(updates),
		Confidence:       decision.Confidence,
	}
	g.record(w, result)
	return result, nil
}

// #endregion validate

// #region record
func (g *Gate) record(w registry.Worker, result Result) {
	if g.history == nil {
		return
	}
	_, err := g.history.Append(provenance.Record{
		WorkerID:         w.ID,
		TicketID:         w.TicketID,
		SafeToRespond:    result.SafeToRespond,
		ShouldTerminate:  result.ShouldTerminate,
		Kind:             string(result.Kind),
		Reason:           result.Reason,
		Recommendation:   result.Recommendation,
		ConflictingEntry: result.ConflictingEntry,
		EntriesChecked:   result.NewEntries,
		Confidence:       result.Confidence,
	})
	if err != nil {
		log.Printf("[gate] record decision for %s: %v", w.ID, err)
	}
}

// #endregion record
