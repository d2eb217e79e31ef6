package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/weaverlabs/coordination/internal/config"
	"github.com/weaverlabs/coordination/internal/evidence"
	"github.com/weaverlabs/coordination/internal/gate"
	"github.com/weaverlabs/coordination/internal/invalidation"
	"github.com/weaverlabs/coordination/internal/provenance"
	"github.com/weaverlabs/coordination/internal/registry"
)

// #region main
func main() {
	configPath := envOr("COORDINATION_CONFIG", "coordination.yaml")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	dbPath := envOr("COORDINATION_DB", cfg.ProvenancePath)
	if v := os.Getenv("COORDINATION_POLL_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			log.Fatalf("invalid COORDINATION_POLL_SECONDS %q", v)
		}
		cfg.PollIntervalSeconds = seconds
	}

	history, err := provenance.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open provenance store: %v", err)
	}
	defer history.Close()

	reg := registry.NewRegistry()
	monitor := evidence.NewMonitor()
	engine := invalidation.NewEngine(invalidation.EngineConfig{
		ContextShifts:        cfg.MergedContextShifts(invalidation.DefaultContextShifts()),
		ExtraFailureKeywords: cfg.ExtraFailureKeywords,
	})
	checker := gate.NewGate(reg, monitor, engine)
	checker.AttachProvenance(history)

	monitor.RegisterNotificationCallback(func(update evidence.Update, workerIDs []string) {
		if update.MaybeInvalidates {
			log.Printf("[coordinator] entry #%d on %s may invalidate %d worker(s): %s",
				update.EntryNumber, update.TicketID, len(workerIDs), update.Hint)
		}
	})

	fmt.Println("Coordination console ready.")
	fmt.Printf("  Provenance DB: %s | Poll interval: %s\n", dbPath, cfg.PollInterval())
	fmt.Println("Commands: register, append, validate, terminate, complete, status, stats, watch, unwatch, quit")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		if cmd == "quit" || cmd == "exit" {
			break
		}
		runCommand(cmd, args, reg, monitor, checker, cfg)
	}
}

// #endregion main

// #region commands
func runCommand(cmd string, args []string, reg *registry.Registry, monitor *evidence.Monitor,
	checker *gate.Gate, cfg config.Config) {
	switch cmd {
	case "register":
		// register <type> <ticket> <evidence-log> [parent-id]
		if len(args) < 3 {
			fmt.Println("usage: register <type> <ticket> <evidence-log> [parent-id]")
			return
		}
		workerType := registry.WorkerType(args[0])
		w := registry.Worker{
			ID:                registry.NewWorkerID(workerType, args[1]),
			Type:              workerType,
			Status:            registry.StatusThinking,
			TicketID:          args[1],
			EvidenceSource:    args[2],
			StartedAt:         time.Now().UTC(),
			HeartbeatInterval: cfg.PollInterval(),
		}
		if len(args) > 3 {
			w.ParentID = args[3]
		}
		snapshot := monitor.CaptureState(w.TicketID, w.EvidenceSource)
		w.Watermark = registry.Watermark{End: snapshot.EntryCount}
		if snapshot.EntryCount > 0 {
			w.Watermark.Start = 1
		}
		id, err := reg.Register(w)
		if err != nil {
			log.Printf("register error: %v", err)
			return
		}
		monitor.Subscribe(id, w.TicketID)
		fmt.Printf("registered %s (watermark %d..%d)\n", id, w.Watermark.Start, w.Watermark.End)

	case "append":
		// append <ticket> <evidence-log> <source> <text...>
		if len(args) < 4 {
			fmt.Println("usage: append <ticket> <evidence-log> <user|worker|system> <text...>")
			return
		}
		ticketID, path, source := args[0], args[1], args[2]
		text := strings.Join(args[3:], " ")
		result, err := evidence.AppendWithRetry(path, evidence.Entry{
			PromptInput: text,
			Source:      source,
		})
		if err != nil {
			log.Printf("append error: %v", err)
			return
		}
		monitor.CaptureState(ticketID, path)
		for _, update := range monitor.CheckForUpdates(ticketID, result.EntryNumber-1) {
			monitor.NotifySubscribers(update)
		}
		fmt.Printf("appended entry #%d\n", result.EntryNumber)

	case "validate":
		if len(args) != 1 {
			fmt.Println("usage: validate <worker-id>")
			return
		}
		result, err := checker.Validate(args[0])
		if err != nil {
			log.Printf("validate error: %v", err)
			return
		}
		if result.SafeToRespond {
			fmt.Printf("SAFE (%d new entries, confidence %.2f): %s\n",
				result.NewEntries, result.Confidence, result.Reason)
		} else {
			fmt.Printf("UNSAFE [%s] entry #%d (confidence %.2f): %s\n",
				result.Kind, result.ConflictingEntry, result.Confidence, result.Reason)
			fmt.Printf("  recommendation: %s\n", result.Recommendation)
		}

	case "terminate":
		if len(args) < 2 {
			fmt.Println("usage: terminate <worker-id> <reason...>")
			return
		}
		if !reg.Terminate(args[0], strings.Join(args[1:], " ")) {
			fmt.Println("no such worker")
		}

	case "complete":
		if len(args) != 1 {
			fmt.Println("usage: complete <worker-id>")
			return
		}
		if !reg.Complete(args[0]) {
			fmt.Println("no such worker")
		}

	case "status":
		if len(args) != 1 {
			fmt.Println("usage: status <ticket>")
			return
		}
		ts := reg.TicketStatus(args[0])
		fmt.Printf("ticket %s: %d worker(s)\n", ts.TicketID, ts.TotalWorkers)
		for _, w := range ts.Workers {
			line := fmt.Sprintf("  %-40s %-18s %s", w.ID, w.Type, w.Status)
			if w.TerminationReason != "" {
				line += " (" + w.TerminationReason + ")"
			}
			fmt.Println(line)
		}

	case "stats":
		stats := reg.Stats()
		fmt.Printf("workers: %d total across %d ticket(s)\n", stats.TotalWorkers, stats.ActiveTickets)
		for status, n := range stats.ByStatus {
			fmt.Printf("  %-12s %d\n", status, n)
		}
		ms := monitor.MonitoringStatus()
		fmt.Printf("monitoring: %d active loop(s), %d subscriber(s)\n", ms.ActiveMonitors, ms.TotalSubscribers)

	case "watch":
		if len(args) != 2 {
			fmt.Println("usage: watch <ticket> <evidence-log>")
			return
		}
		if monitor.StartMonitoring(args[0], args[1], cfg.PollInterval()) {
			fmt.Printf("watching %s every %s\n", args[0], cfg.PollInterval())
		} else {
			fmt.Println("already watching")
		}

	case "unwatch":
		if len(args) != 1 {
			fmt.Println("usage: unwatch <ticket>")
			return
		}
		if !monitor.StopMonitoring(args[0]) {
			fmt.Println("not watching")
		}

	default:
		fmt.Printf("unknown command %q\n", cmd)
	}
}

// #endregion commands

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
