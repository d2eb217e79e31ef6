package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/weaverlabs/coordination/internal/evidence"
	"github.com/weaverlabs/coordination/internal/provenance"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the gate decision database")
	logPath := flag.String("log", "", "parse an evidence log instead of the database")
	last := flag.Int("last", 20, "show N most recent decisions")
	worker := flag.String("worker", "", "filter decisions to one worker")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" && *logPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/coordination.db [--last N] [--worker id] [--json]")
		fmt.Fprintln(os.Stderr, "       inspect --log path/to/evidence.md [--json]")
		os.Exit(2)
	}

	var err error
	if *logPath != "" {
		err = runLogMode(*logPath, *jsonOut)
	} else {
		err = runDecisionMode(*dbPath, *last, *worker, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region decision-mode

type decisionRow struct {
	DecisionID       string  `json:"decision_id"`
	WorkerID         string  `json:"worker_id"`
	TicketID         string  `json:"ticket_id"`
	SafeToRespond    bool    `json:"safe_to_respond"`
	Kind             string  `json:"kind,omitempty"`
	Reason           string  `json:"reason,omitempty"`
	ConflictingEntry int     `json:"conflicting_entry,omitempty"`
	EntriesChecked   int     `json:"entries_checked"`
	Confidence       float64 `json:"confidence"`
	CreatedAt        string  `json:"created_at"`
}

func runDecisionMode(dbPath string, last int, worker string, jsonOut bool) error {
	store, err := provenance.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	var records []provenance.Record
	if worker != "" {
		records, err = store.ListByWorker(worker)
	} else {
		records, err = store.ListRecent(last)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "no decisions found")
		return nil
	}

	rows := make([]decisionRow, len(records))
	for i, rec := range records {
		rows[i] = decisionRow{
			DecisionID:       rec.DecisionID,
			WorkerID:         rec.WorkerID,
			TicketID:         rec.TicketID,
			SafeToRespond:    rec.SafeToRespond,
			Kind:             rec.Kind,
			Reason:           rec.Reason,
			ConflictingEntry: rec.ConflictingEntry,
			EntriesChecked:   rec.EntriesChecked,
			Confidence:       rec.Confidence,
			CreatedAt:        rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}
	return printDecisionTable(rows)
}

func printDecisionTable(rows []decisionRow) error {
	fmt.Printf("%-10s  %-40s  %-6s  %-24s  %7s  %5s  %s\n",
		"Decision", "Worker", "Safe", "Kind", "Entries", "Conf", "Time")
	fmt.Printf("%-10s+-%-40s+-%-6s+-%-24s+-%7s+-%5s+-%s\n",
		"----------", "----------------------------------------", "------",
		"------------------------", "-------", "-----", "--------------------")

	unsafe := 0
	for _, r := range rows {
		safe := "yes"
		if !r.SafeToRespond {
			safe = "NO"
			unsafe++
		}
		kind := r.Kind
		if kind == "" {
			kind = "—"
		}
		fmt.Printf("%-10s  %-40s  %-6s  %-24s  %7d  %5.2f  %s\n",
			shortID(r.DecisionID), r.WorkerID, safe, kind, r.EntriesChecked, r.Confidence, r.CreatedAt)
	}

	fmt.Printf("\n%d decision(s), %d unsafe\n", len(rows), unsafe)
	return nil
}

// #endregion decision-mode

// #region log-mode

type logEntryRow struct {
	EntryNumber int    `json:"entry_number"`
	Timestamp   string `json:"timestamp"`
	Source      string `json:"source"`
	PromptInput string `json:"prompt_input"`
	RawOutput   string `json:"raw_output"`
}

func runLogMode(path string, jsonOut bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}
	entries := evidence.ParseEntries(string(data))
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no entries found")
		return nil
	}

	if jsonOut {
		rows := make([]logEntryRow, len(entries))
		for i, e := range entries {
			rows[i] = logEntryRow{
				EntryNumber: e.EntryNumber,
				Timestamp:   e.Timestamp,
				Source:      e.Source,
				PromptInput: e.PromptInput,
				RawOutput:   e.RawOutput,
			}
		}
		return printJSON(rows)
	}

	fmt.Printf("%s: %d entries (context %q)\n\n", path, len(entries), evidence.ContextLabelFromPath(path))
	for _, e := range entries {
		fmt.Printf("#%-4d %-8s %s\n", e.EntryNumber, e.Source, e.Timestamp)
		if e.PromptInput != "" {
			fmt.Printf("  prompt: %s\n", truncate(e.PromptInput, 100))
		}
		if e.RawOutput != "" {
			fmt.Printf("  output: %s\n", truncate(e.RawOutput, 100))
		}
	}
	return nil
}

// #endregion log-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// #endregion output
