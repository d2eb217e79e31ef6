package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// #region callback
// NotificationCallback receives an evidence update together with the IDs of
// the workers subscribed to the affected ticket.
type NotificationCallback func(update Update, subscriberIDs []string)

// #endregion callback

// #region monitor-struct
// Monitor watches evidence logs for changes and notifies subscribers.
//
// It keeps a cached per-ticket snapshot so "nothing changed" is cheap to
// answer, and computes entry deltas relative to a caller-supplied watermark.
// The log file stays authoritative; the cache is advisory.
type Monitor struct {
	mu          sync.Mutex
	snapshots   map[string]Snapshot            // ticket_id -> last captured snapshot
	subscribers map[string]map[string]struct{} // ticket_id -> worker ids
	callbacks   []NotificationCallback
	loops       map[string]*pollLoop // ticket_id -> background poll loop
}

type pollLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor with no cached state.
func NewMonitor() *Monitor {
	return &Monitor{
		snapshots:   make(map[string]Snapshot),
		subscribers: make(map[string]map[string]struct{}),
		loops:       make(map[string]*pollLoop),
	}
}

// #endregion monitor-struct

// #region capture
// CaptureState reads and parses the ticket's evidence log, caches the
// resulting snapshot, and returns it. A missing or unreadable log yields
// an empty snapshot rather than an error; availability wins over
// strictness here.
func (m *Monitor) CaptureState(ticketID, source string) Snapshot {
	content, err := os.ReadFile(source)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[monitor] read %s: %v", source, err)
		}
		return Snapshot{
			TicketID:     ticketID,
			Source:       source,
			ContextLabel: ContextLabelFromPath(source),
			CapturedAt:   time.Now().UTC(),
		}
	}

	entries := ParseEntries(string(content))
	warnOnRegression(ticketID, entries)

	var lastTimestamp string
	if len(entries) > 0 {
		lastTimestamp = entries[len(entries)-1].Timestamp
	}

	snap := Snapshot{
		TicketID:           ticketID,
		Source:             source,
		EntryCount:         len(entries),
		LastEntryTimestamp: lastTimestamp,
		ContextLabel:       ContextLabelFromPath(source),
		ContentFingerprint: fingerprint(content),
		CapturedAt:         time.Now().UTC(),
	}

	m.mu.Lock()
	m.snapshots[ticketID] = snap
	m.mu.Unlock()

	return snap
}

// fingerprint hashes raw log content for cheap change detection.
func fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// warnOnRegression logs when entry numbers are not monotonically
// increasing. The append-only contract is assumed, not enforced: parsing
// continues so hand-edited logs stay visible.
func warnOnRegression(ticketID string, entries []Entry) {
	for i := 1; i < len(entries); i++ {
		if entries[i].EntryNumber <= entries[i-1].EntryNumber {
			log.Printf("[monitor] ticket %s: entry #%d follows #%d, log may have been edited",
				ticketID, entries[i].EntryNumber, entries[i-1].EntryNumber)
			return
		}
	}
}

// #endregion capture

// #region check-updates
// CheckForUpdates returns one Update per entry newer than lastSeen (the end
// of the caller's watermark), in ascending entry-number order. Without a
// cached snapshot, or when the snapshot shows nothing beyond lastSeen, it
// returns nil without touching the file.
func (m *Monitor) CheckForUpdates(ticketID string, lastSeen int) []Update {
	m.mu.Lock()
	snap, ok := m.snapshots[ticketID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if snap.EntryCount <= lastSeen {
		return nil
	}

	content, err := os.ReadFile(snap.Source)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[monitor] read %s: %v", snap.Source, err)
		}
		return nil
	}

	entries := ParseEntries(string(content))
	var updates []Update
	for _, e := range entries {
		if e.EntryNumber <= lastSeen {
			continue
		}
		e.ContextLabel = snap.ContextLabel
		maybe, hint := preFilter(e)
		updates = append(updates, Update{
			TicketID:         ticketID,
			Source:           snap.Source,
			EntryNumber:      e.EntryNumber,
			Entry:            e,
			MaybeInvalidates: maybe,
			Hint:             hint,
		})
	}
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].EntryNumber < updates[j].EntryNumber
	})
	return updates
}

// #endregion check-updates

// #region pre-filter
var failureHints = []string{"failed", "not working", "no improvement", "try different", "change approach"}
var solutionHints = []string{"solution found", "problem solved", "fix applied"}

// preFilter is a fast, over-inclusive keyword check. The rule engine owns
// the authoritative decision.
func preFilter(e Entry) (bool, string) {
	content := strings.ToLower(e.PromptInput + " " + e.RawOutput)

	for _, kw := range failureHints {
		if strings.Contains(content, kw) {
			return true, fmt.Sprintf("entry #%d mentions %q", e.EntryNumber, kw)
		}
	}
	if e.Source == SourceWorker {
		for _, kw := range solutionHints {
			if strings.Contains(content, kw) {
				return true, fmt.Sprintf("entry #%d reports %q from another worker", e.EntryNumber, kw)
			}
		}
	}
	return false, ""
}

// #endregion pre-filter

// #region subscriptions
// Subscribe adds a worker to the ticket's subscriber set.
func (m *Monitor) Subscribe(workerID, ticketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribers[ticketID]; !ok {
		m.subscribers[ticketID] = make(map[string]struct{})
	}
	m.subscribers[ticketID][workerID] = struct{}{}
}

// Unsubscribe removes a worker from the ticket's subscriber set. Returns
// false when the ticket has no subscriber set at all.
func (m *Monitor) Unsubscribe(workerID, ticketID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.subscribers[ticketID]
	if !ok {
		return false
	}
	delete(set, workerID)
	return true
}

// RegisterNotificationCallback appends a fan-out target. Multiple callbacks
// may be registered; delivery order follows registration order.
func (m *Monitor) RegisterNotificationCallback(fn NotificationCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// NotifySubscribers invokes every registered callback with the update and
// the ticket's current subscriber set. Fan-out is synchronous in the
// caller's goroutine; a panicking callback is isolated and logged so the
// remaining callbacks still run.
func (m *Monitor) NotifySubscribers(update Update) {
	m.mu.Lock()
	set := m.subscribers[update.TicketID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	callbacks := make([]NotificationCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	if len(ids) == 0 && len(callbacks) == 0 {
		return
	}
	sort.Strings(ids)

	for _, fn := range callbacks {
		invokeCallback(fn, update, ids)
	}
}

func invokeCallback(fn NotificationCallback, update Update, ids []string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[monitor] notification callback panicked: %v", r)
		}
	}()
	fn(update, ids)
}

// #endregion subscriptions

// #region polling
// StartMonitoring launches a background loop that re-captures the ticket's
// snapshot every interval and logs when the content fingerprint changes.
// Delta computation and termination decisions stay with callers via
// CheckForUpdates, so polling cadence never couples to decision cadence.
// Returns false when the ticket is already being monitored.
func (m *Monitor) StartMonitoring(ticketID, source string, interval time.Duration) bool {
	m.mu.Lock()
	if _, running := m.loops[ticketID]; running {
		m.mu.Unlock()
		log.Printf("[monitor] already monitoring ticket %s", ticketID)
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	loop := &pollLoop{cancel: cancel, done: make(chan struct{})}
	m.loops[ticketID] = loop
	m.mu.Unlock()

	go m.runPollLoop(ctx, loop, ticketID, source, interval)

	log.Printf("[monitor] started monitoring ticket %s every %s", ticketID, interval)
	return true
}

func (m *Monitor) runPollLoop(ctx context.Context, loop *pollLoop, ticketID, source string, interval time.Duration) {
	defer close(loop.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastFingerprint string
	for {
		select {
		case <-ctx.Done():
			log.Printf("[monitor] stopped monitoring ticket %s", ticketID)
			return
		case <-ticker.C:
			snap := m.CaptureState(ticketID, source)
			if lastFingerprint != "" && snap.ContentFingerprint != lastFingerprint {
				log.Printf("[monitor] evidence changed for ticket %s (%d entries)", ticketID, snap.EntryCount)
			}
			lastFingerprint = snap.ContentFingerprint
		}
	}
}

// StopMonitoring cancels the ticket's poll loop and blocks until the loop
// has observably exited, guaranteeing no late snapshot write afterwards.
// Returns false when the ticket was not being monitored.
func (m *Monitor) StopMonitoring(ticketID string) bool {
	m.mu.Lock()
	loop, ok := m.loops[ticketID]
	if ok {
		delete(m.loops, ticketID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	loop.cancel()
	<-loop.done
	return true
}

// MonitoringStatus reports active poll loops and subscriber counts.
func (m *Monitor) MonitoringStatus() MonitoringStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := MonitoringStatus{
		ActiveMonitors:      len(m.loops),
		MonitoredTickets:    make([]string, 0, len(m.loops)),
		SubscribersByTicket: make(map[string]int, len(m.subscribers)),
	}
	for ticketID := range m.loops {
		status.MonitoredTickets = append(status.MonitoredTickets, ticketID)
	}
	sort.Strings(status.MonitoredTickets)
	for ticketID, set := range m.subscribers {
		status.SubscribersByTicket[ticketID] = len(set)
		status.TotalSubscribers += len(set)
	}
	return status
}

// #endregion polling
