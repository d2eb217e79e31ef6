package evidence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendEntryToNewLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticket.md")

	res, err := AppendEntry(path, Entry{
		PromptInput: "Investigate slow queries",
		RawOutput:   "Query log attached",
		Source:      SourceUser,
	}, "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.EntryNumber != 1 {
		t.Fatalf("entry number = %d", res.EntryNumber)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	entries := ParseEntries(string(content))
	if len(entries) != 1 || entries[0].PromptInput != "Investigate slow queries" {
		t.Fatalf("round trip failed: %+v", entries)
	}
}

func TestAppendEntryNumbersIncrease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticket.md")

	fp := ""
	for i := 1; i <= 3; i++ {
		res, err := AppendEntry(path, Entry{PromptInput: "p", RawOutput: "o"}, fp)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if res.EntryNumber != i {
			t.Fatalf("entry number = %d, want %d", res.EntryNumber, i)
		}
		fp = res.NewFingerprint
	}

	content, _ := os.ReadFile(path)
	entries := ParseEntries(string(content))
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestAppendEntryCollision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticket.md")

	res, err := AppendEntry(path, Entry{PromptInput: "first"}, "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// Another writer gets in between.
	if _, err := AppendEntry(path, Entry{PromptInput: "second"}, res.NewFingerprint); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Re-using the stale fingerprint must be rejected.
	_, err = AppendEntry(path, Entry{PromptInput: "third"}, res.NewFingerprint)
	if !errors.Is(err, ErrCollision) {
		t.Fatalf("expected ErrCollision, got %v", err)
	}
}

func TestAppendEntryCreatesRecoveryPoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticket.md")

	res, err := AppendEntry(path, Entry{PromptInput: "first"}, "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.RecoveryPoint != "" {
		t.Fatal("new log should not need a recovery point")
	}

	res, err = AppendEntry(path, Entry{PromptInput: "second"}, res.NewFingerprint)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.RecoveryPoint == "" {
		t.Fatal("expected a recovery point for an existing log")
	}
	if _, err := os.Stat(res.RecoveryPoint); err != nil {
		t.Fatalf("recovery point missing: %v", err)
	}
}

func TestAppendWithRetryIgnoresStaleReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticket.md")

	for i := 1; i <= 3; i++ {
		res, err := AppendWithRetry(path, Entry{PromptInput: "p", RawOutput: "o"})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if res.EntryNumber != i {
			t.Fatalf("entry number = %d, want %d", res.EntryNumber, i)
		}
	}
}

func TestFileFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticket.md")

	fp, err := FileFingerprint(path)
	if err != nil || fp != "" {
		t.Fatalf("missing file: fp=%q err=%v", fp, err)
	}

	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fp, err = FileFingerprint(path)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if len(fp) != 64 {
		t.Fatalf("fingerprint length = %d", len(fp))
	}
}
