package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// #region errors
// ErrDuplicateID is returned by Register when the worker ID is already taken.
var ErrDuplicateID = errors.New("worker id already registered")

// #endregion errors

// #region registry-struct
// Registry is the authoritative in-memory store of worker lifecycle state.
//
// All mutations are serialized by one store-wide lock. Worker counts stay
// in the tens, so a single coarse lock is cheaper than per-worker locking
// and removes lost-update races between e.g. UpdateWatermark and Terminate
// on the same worker.
type Registry struct {
	mu          sync.Mutex
	workers     map[string]Worker
	ticketIndex map[string]map[string]struct{} // ticket_id -> worker ids
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workers:     make(map[string]Worker),
		ticketIndex: make(map[string]map[string]struct{}),
	}
}

// #endregion registry-struct

// #region register
// Register stores a new worker and indexes it by ticket. Returns the
// worker ID, or an error if the ID is taken or an enum field is invalid.
func (r *Registry) Register(w Worker) (string, error) {
	if !w.Type.Valid() {
		return "", fmt.Errorf("register %s: unknown worker type %q", w.ID, w.Type)
	}
	if !w.Status.Valid() {
		return "", fmt.Errorf("register %s: unknown status %q", w.ID, w.Status)
	}
	if !w.Watermark.Valid() {
		return "", fmt.Errorf("register %s: watermark start %d > end %d", w.ID, w.Watermark.Start, w.Watermark.End)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[w.ID]; exists {
		return "", fmt.Errorf("register %s: %w", w.ID, ErrDuplicateID)
	}

	r.workers[w.ID] = w
	if _, ok := r.ticketIndex[w.TicketID]; !ok {
		r.ticketIndex[w.TicketID] = make(map[string]struct{})
	}
	r.ticketIndex[w.TicketID][w.ID] = struct{}{}

	return w.ID, nil
}

// #endregion register

// #region reads
// Get returns the worker with the given ID. The second return is false
// when no such worker exists.
func (r *Registry) Get(id string) (Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	return w, ok
}

// GetByTicket returns all workers registered for a ticket.
func (r *Registry) GetByTicket(ticketID string) []Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, ok := r.ticketIndex[ticketID]
	if !ok {
		return nil
	}
	out := make([]Worker, 0, len(ids))
	for id := range ids {
		if w, exists := r.workers[id]; exists {
			out = append(out, w)
		}
	}
	return out
}

// GetByStatus returns all workers with the given status.
func (r *Registry) GetByStatus(status WorkerStatus) []Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Worker
	for _, w := range r.workers {
		if w.Status == status {
			out = append(out, w)
		}
	}
	return out
}

// GetByType returns all workers of the given type.
func (r *Registry) GetByType(t WorkerType) []Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Worker
	for _, w := range r.workers {
		if w.Type == t {
			out = append(out, w)
		}
	}
	return out
}

// GetThinkingWorkers returns the ticket's workers currently in thinking status.
func (r *Registry) GetThinkingWorkers(ticketID string) []Worker {
	var out []Worker
	for _, w := range r.GetByTicket(ticketID) {
		if w.Status == StatusThinking {
			out = append(out, w)
		}
	}
	return out
}

// GetChildren returns all workers forked from the given parent. This is a
// linear scan over the worker map, not a stored edge list, so terminating
// a parent never leaves a dangling reference to clean up.
func (r *Registry) GetChildren(parentID string) []Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Worker
	for _, w := range r.workers {
		if w.ParentID == parentID {
			out = append(out, w)
		}
	}
	return out
}

// #endregion reads

// #region mutations
// UpdateStatus sets a worker's status. Returns false when the ID is unknown.
// The store does not guard non-terminal transitions; callers are responsible
// for only mutating workers they believe are still active.
func (r *Registry) UpdateStatus(id string, status WorkerStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	w.Status = status
	r.workers[id] = w
	return true
}

// UpdateHeartbeat records that the worker checked in now.
func (r *Registry) UpdateHeartbeat(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	w.LastHeartbeat = time.Now().UTC()
	r.workers[id] = w
	return true
}

// UpdateWatermark advances the evidence entry range the worker has seen.
func (r *Registry) UpdateWatermark(id string, wm Watermark) bool {
	if !wm.Valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	w.Watermark = wm
	r.workers[id] = w
	return true
}

// Terminate stops a worker and records why. Idempotent: terminating a
// worker that is already terminal leaves it unchanged and reports true.
// Returns false only when the ID is unknown.
func (r *Registry) Terminate(id, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	if w.Status.Terminal() {
		return true
	}
	w.Status = StatusTerminated
	w.TerminationReason = reason
	r.workers[id] = w
	return true
}

// Complete marks a worker as finished successfully. Idempotent once the
// worker is terminal, same as Terminate.
func (r *Registry) Complete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	if w.Status.Terminal() {
		return true
	}
	w.Status = StatusCompleted
	r.workers[id] = w
	return true
}

// Cleanup removes the worker from the store and the ticket index. This is
// the only operation that frees memory; Terminate alone does not.
func (r *Registry) Cleanup(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	if ids, exists := r.ticketIndex[w.TicketID]; exists {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.ticketIndex, w.TicketID)
		}
	}
	delete(r.workers, id)
	return true
}

// #endregion mutations

// #region rollups
// Stats returns aggregate counts by status and type.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{
		TotalWorkers:  len(r.workers),
		ByStatus:      make(map[WorkerStatus]int, len(WorkerStatuses)),
		ByType:        make(map[WorkerType]int, len(WorkerTypes)),
		ActiveTickets: len(r.ticketIndex),
	}
	for _, s := range WorkerStatuses {
		stats.ByStatus[s] = 0
	}
	for _, t := range WorkerTypes {
		stats.ByType[t] = 0
	}
	for _, w := range r.workers {
		stats.ByStatus[w.Status]++
		stats.ByType[w.Type]++
	}
	return stats
}

// TicketStatus returns the per-ticket roll-up of every worker's state.
func (r *Registry) TicketStatus(ticketID string) TicketStatus {
	workers := r.GetByTicket(ticketID)
	ts := TicketStatus{
		TicketID:     ticketID,
		TotalWorkers: len(workers),
		Workers:      make([]WorkerSummary, 0, len(workers)),
	}
	for _, w := range workers {
		ts.Workers = append(ts.Workers, WorkerSummary{
			ID:                w.ID,
			Type:              w.Type,
			Status:            w.Status,
			StartedAt:         w.StartedAt,
			TerminationReason: w.TerminationReason,
		})
	}
	return ts
}

// #endregion rollups
