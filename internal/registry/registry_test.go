package registry

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func makeWorker(id, ticket string) Worker {
	return Worker{
		ID:                id,
		Type:              TypeThinking,
		Status:            StatusThinking,
		TicketID:          ticket,
		EvidenceSource:    "evidence/" + ticket + ".md",
		Watermark:         Watermark{Start: 1, End: 1},
		StartedAt:         time.Now().UTC(),
		LastHeartbeat:     time.Now().UTC(),
		HeartbeatInterval: 5 * time.Second,
		Attributes:        map[string]string{},
	}
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	id, err := r.Register(makeWorker("thinking-TICKET-001-123", "TICKET-001"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id != "thinking-TICKET-001-123" {
		t.Fatalf("unexpected id %q", id)
	}
	if _, ok := r.Get(id); !ok {
		t.Fatal("registered worker not found")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	w := makeWorker("thinking-TICKET-001-123", "TICKET-001")
	if _, err := r.Register(w); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := r.Register(w)
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if got := r.Stats().TotalWorkers; got != 1 {
		t.Fatalf("store changed by failed register: %d workers", got)
	}
}

func TestRegisterRejectsUnknownEnums(t *testing.T) {
	r := NewRegistry()

	w := makeWorker("w-1", "TICKET-001")
	w.Type = WorkerType("janitor")
	if _, err := r.Register(w); err == nil {
		t.Fatal("expected error for unknown type")
	}

	w = makeWorker("w-2", "TICKET-001")
	w.Status = WorkerStatus("sleeping")
	if _, err := r.Register(w); err == nil {
		t.Fatal("expected error for unknown status")
	}

	w = makeWorker("w-3", "TICKET-001")
	w.Watermark = Watermark{Start: 5, End: 2}
	if _, err := r.Register(w); err == nil {
		t.Fatal("expected error for inverted watermark")
	}
}

func TestGetByTicket(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b"} {
		if _, err := r.Register(makeWorker(id, "TICKET-001")); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	if _, err := r.Register(makeWorker("c", "TICKET-002")); err != nil {
		t.Fatalf("register c: %v", err)
	}

	got := r.GetByTicket("TICKET-001")
	if len(got) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(got))
	}
	if got := r.GetByTicket("TICKET-404"); len(got) != 0 {
		t.Fatalf("expected empty result for unknown ticket, got %d", len(got))
	}
}

func TestGetThinkingWorkers(t *testing.T) {
	r := NewRegistry()
	thinking := makeWorker("a", "TICKET-001")
	done := makeWorker("b", "TICKET-001")
	done.Status = StatusCompleted
	for _, w := range []Worker{thinking, done} {
		if _, err := r.Register(w); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	got := r.GetThinkingWorkers("TICKET-001")
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected only worker a, got %v", got)
	}
}

func TestGetByStatusAndType(t *testing.T) {
	r := NewRegistry()
	w := makeWorker("a", "TICKET-001")
	w.Type = TypeCurator
	w.Status = StatusForeground
	if _, err := r.Register(w); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register(makeWorker("b", "TICKET-001")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if got := r.GetByStatus(StatusForeground); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("by status: %v", got)
	}
	if got := r.GetByType(TypeCurator); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("by type: %v", got)
	}
	if got := r.GetByType(TypeGuardian); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestTerminate(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(makeWorker("a", "TICKET-001")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if !r.Terminate("a", "solution found by another worker") {
		t.Fatal("terminate returned false")
	}
	w, _ := r.Get("a")
	if w.Status != StatusTerminated {
		t.Fatalf("status = %s", w.Status)
	}
	if w.TerminationReason != "solution found by another worker" {
		t.Fatalf("reason = %q", w.TerminationReason)
	}
}

func TestTerminateUnknownLeavesStoreUnchanged(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(makeWorker("a", "TICKET-001")); err != nil {
		t.Fatalf("register: %v", err)
	}
	before := r.Stats()

	if r.Terminate("ghost", "x") {
		t.Fatal("terminate of unknown id returned true")
	}

	after := r.Stats()
	if after.TotalWorkers != before.TotalWorkers || after.ByStatus[StatusTerminated] != 0 {
		t.Fatalf("registry changed: before=%+v after=%+v", before, after)
	}
}

func TestTerminateIdempotentOnTerminal(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(makeWorker("a", "TICKET-001")); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Terminate("a", "first reason")

	if !r.Terminate("a", "second reason") {
		t.Fatal("repeat terminate returned false")
	}
	w, _ := r.Get("a")
	if w.TerminationReason != "first reason" {
		t.Fatalf("reason overwritten: %q", w.TerminationReason)
	}

	if !r.Complete("a") {
		t.Fatal("complete on terminal returned false")
	}
	if w, _ := r.Get("a"); w.Status != StatusTerminated {
		t.Fatalf("terminal status changed to %s", w.Status)
	}
}

func TestUpdateStatus(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(makeWorker("a", "TICKET-001")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.UpdateStatus("a", StatusValidating) {
		t.Fatal("update returned false")
	}
	if w, _ := r.Get("a"); w.Status != StatusValidating {
		t.Fatalf("status = %s", w.Status)
	}
	if r.UpdateStatus("ghost", StatusValidating) {
		t.Fatal("update of unknown id returned true")
	}
}

func TestUpdateWatermark(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(makeWorker("a", "TICKET-001")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.UpdateWatermark("a", Watermark{Start: 1, End: 7}) {
		t.Fatal("update returned false")
	}
	if w, _ := r.Get("a"); w.Watermark.End != 7 {
		t.Fatalf("watermark = %+v", w.Watermark)
	}
	if r.UpdateWatermark("a", Watermark{Start: 9, End: 3}) {
		t.Fatal("inverted watermark accepted")
	}
}

func TestUpdateHeartbeat(t *testing.T) {
	r := NewRegistry()
	w := makeWorker("a", "TICKET-001")
	w.LastHeartbeat = time.Now().Add(-time.Minute)
	if _, err := r.Register(w); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.UpdateHeartbeat("a") {
		t.Fatal("heartbeat returned false")
	}
	got, _ := r.Get("a")
	if !got.LastHeartbeat.After(w.LastHeartbeat) {
		t.Fatal("heartbeat not advanced")
	}
}

func TestCleanup(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(makeWorker("a", "TICKET-001")); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Terminate("a", "done")

	if !r.Cleanup("a") {
		t.Fatal("cleanup returned false")
	}
	if _, ok := r.Get("a"); ok {
		t.Fatal("worker still present after cleanup")
	}
	if got := r.Stats().ActiveTickets; got != 0 {
		t.Fatalf("ticket index not cleaned: %d tickets", got)
	}
	if r.Cleanup("a") {
		t.Fatal("second cleanup returned true")
	}
}

func TestGetChildren(t *testing.T) {
	r := NewRegistry()
	parent := makeWorker("parent", "TICKET-001")
	if _, err := r.Register(parent); err != nil {
		t.Fatalf("register parent: %v", err)
	}
	child := makeWorker("child", "TICKET-001")
	child.ParentID = parent.ID
	if _, err := r.Register(child); err != nil {
		t.Fatalf("register child: %v", err)
	}

	got := r.GetChildren(parent.ID)
	if len(got) != 1 || got[0].ID != "child" {
		t.Fatalf("children = %v", got)
	}
	if got := r.GetChildren("child"); len(got) != 0 {
		t.Fatalf("leaf has children: %v", got)
	}
}

func TestStats(t *testing.T) {
	r := NewRegistry()
	a := makeWorker("a", "TICKET-001")
	b := makeWorker("b", "TICKET-002")
	b.Type = TypeOrchestrator
	b.Status = StatusForeground
	for _, w := range []Worker{a, b} {
		if _, err := r.Register(w); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	r.Terminate("a", "done")

	stats := r.Stats()
	if stats.TotalWorkers != 2 {
		t.Fatalf("total = %d", stats.TotalWorkers)
	}
	if stats.ByStatus[StatusTerminated] != 1 || stats.ByStatus[StatusForeground] != 1 {
		t.Fatalf("by status = %v", stats.ByStatus)
	}
	if stats.ByType[TypeThinking] != 1 || stats.ByType[TypeOrchestrator] != 1 {
		t.Fatalf("by type = %v", stats.ByType)
	}
	if stats.ActiveTickets != 2 {
		t.Fatalf("active tickets = %d", stats.ActiveTickets)
	}
}

func TestTicketStatus(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(makeWorker("a", "TICKET-001")); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Terminate("a", "invalidated")

	ts := r.TicketStatus("TICKET-001")
	if ts.TotalWorkers != 1 {
		t.Fatalf("total = %d", ts.TotalWorkers)
	}
	if ts.Workers[0].Status != StatusTerminated || ts.Workers[0].TerminationReason != "invalidated" {
		t.Fatalf("summary = %+v", ts.Workers[0])
	}
}

func TestNewWorkerID(t *testing.T) {
	id := NewWorkerID(TypeThinking, "TICKET-001")
	if !strings.HasPrefix(id, "thinking-TICKET-001-") {
		t.Fatalf("unexpected id format: %q", id)
	}
}
