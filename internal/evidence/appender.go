package evidence

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// #region errors
// ErrCollision is returned when the log changed between the caller's last
// read and the append attempt.
var ErrCollision = errors.New("evidence log modified since last read")

// #endregion errors

// #region append-result
// AppendResult reports the outcome of a successful append.
type AppendResult struct {
	EntryNumber    int
	NewFingerprint string
	RecoveryPoint  string // backup path, kept for manual recovery
}

// #endregion append-result

// #region fingerprint
// FileFingerprint hashes the current log content. Callers pass the result
// back to AppendEntry as the expected fingerprint for collision detection.
// A missing file yields an empty fingerprint.
func FileFingerprint(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	if len(content) == 0 {
		return "", nil
	}
	return fingerprint(content), nil
}

// #endregion fingerprint

// #region append
// AppendEntry atomically appends one entry to an evidence log.
//
// The workflow mirrors the evidence harmony protocol: create a recovery
// point, abort with ErrCollision when the file's current fingerprint
// differs from expectedFingerprint, write the entry in the canonical log
// format with the next entry number, and roll back from the recovery point
// if the write fails. An empty expectedFingerprint matches only a missing
// or empty log.
func AppendEntry(path string, e Entry, expectedFingerprint string) (AppendResult, error) {
	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return AppendResult{}, fmt.Errorf("read %s: %w", path, err)
	}

	current := ""
	if len(content) > 0 {
		current = fingerprint(content)
	}
	if current != expectedFingerprint {
		return AppendResult{}, fmt.Errorf("append %s: %w", path, ErrCollision)
	}

	recoveryPoint := ""
	if len(content) > 0 {
		recoveryPoint = fmt.Sprintf("%s.%s.bak", path, time.Now().UTC().Format("20060102150405"))
		if err := os.WriteFile(recoveryPoint, content, 0644); err != nil {
			return AppendResult{}, fmt.Errorf("create recovery point: %w", err)
		}
	}

	next := nextEntryNumber(string(content))
	block := formatEntry(next, e)

	var buf strings.Builder
	buf.Write(content)
	if len(content) > 0 {
		buf.WriteString("\n\n---\n\n")
	}
	buf.WriteString(block)

	if err := os.WriteFile(path, []byte(buf.String()), 0644); err != nil {
		if recoveryPoint != "" {
			if rbErr := os.WriteFile(path, content, 0644); rbErr != nil {
				return AppendResult{}, fmt.Errorf("write failed (%v) and rollback failed: %w", err, rbErr)
			}
		}
		return AppendResult{}, fmt.Errorf("write %s: %w", path, err)
	}

	return AppendResult{
		EntryNumber:    next,
		NewFingerprint: fingerprint([]byte(buf.String())),
		RecoveryPoint:  recoveryPoint,
	}, nil
}

// #region append-retry

const maxAppendRetries = 2 // max 2 retries = 3 total attempts

// AppendWithRetry appends an entry, re-reading the fingerprint and
// retrying when a concurrent writer got in first. Once the retries are
// exhausted the last ErrCollision is returned to the caller.
func AppendWithRetry(path string, e Entry) (AppendResult, error) {
	var lastErr error
	for attempt := 0; attempt <= maxAppendRetries; attempt++ {
		fp, err := FileFingerprint(path)
		if err != nil {
			return AppendResult{}, err
		}
		result, err := AppendEntry(path, e, fp)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrCollision) {
			return AppendResult{}, err
		}
		lastErr = err
	}
	return AppendResult{}, lastErr
}

// #endregion append-retry

// nextEntryNumber scans existing content for the highest entry number.
func nextEntryNumber(content string) int {
	entries := ParseEntries(content)
	max := 0
	for _, e := range entries {
		if e.EntryNumber > max {
			max = e.EntryNumber
		}
	}
	return max + 1
}

const fence = "```"

// formatEntry renders one entry in the canonical log format.
func formatEntry(number int, e Entry) string {
	timestamp := e.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	}
	source := e.Source
	if source == "" {
		source = SourceUser
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Evidence Entry #%d: %s\n\n", number, timestamp)
	fmt.Fprintf(&b, "<!-- source: %s -->\n\n", source)
	fmt.Fprintf(&b, "### Prompt Input\n%s\n%s\n%s\n\n", fence, e.PromptInput, fence)
	fmt.Fprintf(&b, "### Raw Data Output\n%s\n%s\n%s\n", fence, e.RawOutput, fence)
	return b.String()
}

// #endregion append
