package provenance

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS gate_decisions (
	decision_id       TEXT PRIMARY KEY,
	worker_id         TEXT NOT NULL,
	ticket_id         TEXT NOT NULL,
	safe_to_respond   INTEGER NOT NULL,
	should_terminate  INTEGER NOT NULL,
	kind              TEXT NOT NULL,
	reason            TEXT,
	recommendation    TEXT,
	conflicting_entry INTEGER NOT NULL DEFAULT 0,
	entries_checked   INTEGER NOT NULL DEFAULT 0,
	confidence        REAL NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gate_decisions_worker ON gate_decisions(worker_id);
CREATE INDEX IF NOT EXISTS idx_gate_decisions_ticket ON gate_decisions(ticket_id);
`

// #endregion schema

// #region record
// Record is one gate validation outcome, safe and unsafe alike. The log is
// append-only: validation history survives worker cleanup.
type Record struct {
	DecisionID       string
	WorkerID         string
	TicketID         string
	SafeToRespond    bool
	ShouldTerminate  bool
	Kind             string
	Reason           string
	Recommendation   string
	ConflictingEntry int
	EntriesChecked   int
	Confidence       float64
	CreatedAt        time.Time
}

// #endregion record

// #region store
// Store persists gate decisions in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion store

// #region write
// Append writes one decision record. A zero DecisionID or CreatedAt is
// filled in. Returns the stored decision ID.
func (s *Store) Append(rec Record) (string, error) {
	if rec.DecisionID == "" {
		rec.DecisionID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO gate_decisions
		 (decision_id, worker_id, ticket_id, safe_to_respond, should_terminate,
		  kind, reason, recommendation, conflicting_entry, entries_checked, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DecisionID,
		rec.WorkerID,
		rec.TicketID,
		boolToInt(rec.SafeToRespond),
		boolToInt(rec.ShouldTerminate),
		rec.Kind,
		nullIfEmpty(rec.Reason),
		nullIfEmpty(rec.Recommendation),
		rec.ConflictingEntry,
		rec.EntriesChecked,
		rec.Confidence,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("append decision: %w", err)
	}
	return rec.DecisionID, nil
}

// #endregion write

// #region reads
// ListRecent returns the newest decisions first.
func (s *Store) ListRecent(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT decision_id, worker_id, ticket_id, safe_to_respond, should_terminate,
		        kind, reason, recommendation, conflicting_entry, entries_checked, confidence, created_at
		 FROM gate_decisions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListByWorker returns a worker's decisions, oldest first.
func (s *Store) ListByWorker(workerID string) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT decision_id, worker_id, ticket_id, safe_to_respond, should_terminate,
		        kind, reason, recommendation, conflicting_entry, entries_checked, confidence, created_at
		 FROM gate_decisions WHERE worker_id = ? ORDER BY created_at ASC`, workerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions for %s: %w", workerID, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// CountUnsafe returns how many validations came back unsafe.
func (s *Store) CountUnsafe() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM gate_decisions WHERE safe_to_respond = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unsafe: %w", err)
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var safe, terminate int
		var reason, recommendation sql.NullString
		var createdStr string

		if err := rows.Scan(
			&rec.DecisionID, &rec.WorkerID, &rec.TicketID, &safe, &terminate,
			&rec.Kind, &reason, &recommendation, &rec.ConflictingEntry,
			&rec.EntriesChecked, &rec.Confidence, &createdStr,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.SafeToRespond = safe != 0
		rec.ShouldTerminate = terminate != 0
		if reason.Valid {
			rec.Reason = reason.String
		}
		if recommendation.Valid {
			rec.Recommendation = recommendation.String
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion reads

// #region helpers
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
