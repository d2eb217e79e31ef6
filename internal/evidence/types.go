package evidence

import "time"

// #region source
// Entry sources. An entry without a source annotation defaults to SourceUser.
const (
	SourceUser   = "user"
	SourceWorker = "worker"
	SourceSystem = "system"
)

// #endregion source

// #region entry
// Entry is one immutable record of an append-only evidence log.
type Entry struct {
	EntryNumber  int    // 1-based, strictly increasing within a log
	Timestamp    string // free-text timestamp from the entry header
	PromptInput  string
	RawOutput    string
	ContextLabel string // derived from the log file name
	Source       string // "user" | "worker" | "system"
	Attributes   map[string]string
}

// #endregion entry

// #region snapshot
// Snapshot is the monitor's cached per-ticket view of an evidence log.
// The log file stays authoritative; a snapshot only exists to make
// "did anything change" cheap.
type Snapshot struct {
	TicketID           string
	Source             string // log path
	EntryCount         int
	LastEntryTimestamp string
	ContextLabel       string
	ContentFingerprint string // sha256 of the raw log content
	CapturedAt         time.Time
}

// #endregion snapshot

// #region update
// Update notifies that a new entry appeared in a ticket's evidence log.
//
// MaybeInvalidates comes from the monitor's keyword pre-filter. It is
// intentionally cheap and over-inclusive; the rule engine makes the
// authoritative call.
type Update struct {
	TicketID         string
	Source           string // log path
	EntryNumber      int
	Entry            Entry
	MaybeInvalidates bool
	Hint             string // human-readable advisory, empty when MaybeInvalidates is false
}

// #endregion update

// #region monitoring-status
// MonitoringStatus is a roll-up of the monitor's poll loops and subscribers.
type MonitoringStatus struct {
	ActiveMonitors      int
	MonitoredTickets    []string
	TotalSubscribers    int
	SubscribersByTicket map[string]int
}

// #endregion monitoring-status
