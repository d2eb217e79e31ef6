package registry

import (
	"fmt"
	"time"
)

// #region worker-type
// WorkerType enumerates the kinds of workers the registry tracks.
type WorkerType string

const (
	TypeCurator           WorkerType = "curator"
	TypeGuardian          WorkerType = "guardian"
	TypeEvidenceOrganizer WorkerType = "evidence-organizer"
	TypeFolderParser      WorkerType = "folder-parser"
	TypeThinking          WorkerType = "thinking"
	TypeOrchestrator      WorkerType = "orchestrator"
)

// WorkerTypes lists every valid worker type in declaration order.
var WorkerTypes = []WorkerType{
	TypeCurator, TypeGuardian, TypeEvidenceOrganizer,
	TypeFolderParser, TypeThinking, TypeOrchestrator,
}

// Valid reports whether t is a known worker type.
func (t WorkerType) Valid() bool {
	for _, known := range WorkerTypes {
		if t == known {
			return true
		}
	}
	return false
}

// #endregion worker-type

// #region worker-status
// WorkerStatus enumerates lifecycle states of a worker.
type WorkerStatus string

const (
	StatusForeground WorkerStatus = "foreground" // user-facing worker
	StatusThinking   WorkerStatus = "thinking"   // background investigation
	StatusAppending  WorkerStatus = "appending"  // writing evidence
	StatusValidating WorkerStatus = "validating" // checking context before responding
	StatusTerminated WorkerStatus = "terminated" // stopped due to invalidation
	StatusCompleted  WorkerStatus = "completed"  // finished successfully
)

// WorkerStatuses lists every valid status in declaration order.
var WorkerStatuses = []WorkerStatus{
	StatusForeground, StatusThinking, StatusAppending,
	StatusValidating, StatusTerminated, StatusCompleted,
}

// Valid reports whether s is a known status.
func (s WorkerStatus) Valid() bool {
	for _, known := range WorkerStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether s permits no further status transitions.
func (s WorkerStatus) Terminal() bool {
	return s == StatusTerminated || s == StatusCompleted
}

// #endregion worker-status

// #region watermark
// Watermark is the inclusive range of evidence entry numbers a worker
// has already seen. Invariant: Start <= End.
type Watermark struct {
	Start int
	End   int
}

// Valid reports whether the range is well-formed.
func (w Watermark) Valid() bool {
	return w.Start <= w.End
}

// #endregion watermark

// #region worker
// Worker is an active worker instance tracked by the registry.
type Worker struct {
	ID                string
	Type              WorkerType
	Status            WorkerStatus
	TicketID          string
	EvidenceSource    string // path to the evidence log this worker reads
	Watermark         Watermark
	StartedAt         time.Time
	LastHeartbeat     time.Time
	HeartbeatInterval time.Duration
	ParentID          string // set when forked from another worker
	TerminationReason string

	// Attributes is a read-only context bag consumed by the rule engine.
	// Known keys: "hypothesis", "context".
	Attributes map[string]string
}

// NewWorkerID generates a worker ID in the canonical
// <type>-<ticket>-<epoch_ms> format. Creation order is recoverable
// from the trailing timestamp.
func NewWorkerID(t WorkerType, ticketID string) string {
	return fmt.Sprintf("%s-%s-%d", t, ticketID, time.Now().UnixMilli())
}

// #endregion worker

// #region stats
// Stats aggregates registry counts.
type Stats struct {
	TotalWorkers  int
	ByStatus      map[WorkerStatus]int
	ByType        map[WorkerType]int
	ActiveTickets int // tickets with at least one registered worker
}

// WorkerSummary is one row of a per-ticket roll-up.
type WorkerSummary struct {
	ID                string
	Type              WorkerType
	Status            WorkerStatus
	StartedAt         time.Time
	TerminationReason string
}

// TicketStatus is the per-ticket roll-up returned by TicketStatus.
type TicketStatus struct {
	TicketID     string
	TotalWorkers int
	Workers      []WorkerSummary
}

// #endregion stats
