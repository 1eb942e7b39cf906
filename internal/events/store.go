package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SQLStore persists events to a modernc.org/sqlite-backed database,
// following the teacher's internal/events/store.go schema and query
// shapes, adapted to the closed typed-event union: Payload is
// JSON-marshalled as an opaque blob and re-hydrated by the caller, who
// already knows the Kind and therefore the concrete payload type.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens (and migrates) the events table on db.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("events: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			agent_id TEXT,
			target TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			delivered_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_events_target ON events(target);
		CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`)
	return err
}

type storedEvent struct {
	Event
	Target string `json:"target"`
}

// Save persists event under target "all"; callers that need per-target
// routing history should wrap Save with their own target bookkeeping —
// the in-process Bus already does target matching on delivery, so the
// store here only needs to retain enough to replay on reconnect.
func (s *SQLStore) Save(event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO events (id, kind, agent_id, target, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		event.ID, string(event.Kind), event.AgentID, "all", string(payload), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("events: save: %w", err)
	}
	return nil
}

// GetPending returns undelivered events for target (or any target, via
// the "all" broadcast row), optionally filtered to kinds.
func (s *SQLStore) GetPending(target string, kinds []Kind) ([]Event, error) {
	query := `SELECT id, kind, agent_id, payload, created_at FROM events
	          WHERE delivered_at IS NULL AND (target = ? OR target = 'all')`
	args := []any{target}

	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, k := range kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		query += " AND kind IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("events: get pending: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e          Event
			kind       string
			agentID    sql.NullString
			payloadRaw string
		)
		if err := rows.Scan(&e.ID, &kind, &agentID, &payloadRaw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan: %w", err)
		}
		e.Kind = Kind(kind)
		e.AgentID = agentID.String
		var raw json.RawMessage = json.RawMessage(payloadRaw)
		e.Payload = raw
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkDelivered stamps eventID as consumed. When no row matches it
// returns a plain "not found" error (not an errs.Error), detected via a
// zero-rows-affected check following the teacher's RowsAffected idiom.
func (s *SQLStore) MarkDelivered(eventID string) error {
	res, err := s.db.Exec(
		`UPDATE events SET delivered_at = ? WHERE id = ?`,
		time.Now(), eventID,
	)
	if err != nil {
		return fmt.Errorf("events: mark delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("events: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("events: event %s not found", eventID)
	}
	return nil
}

// Cleanup deletes delivered events older than olderThan.
func (s *SQLStore) Cleanup(olderThan time.Time) error {
	_, err := s.db.Exec(
		`DELETE FROM events WHERE delivered_at IS NOT NULL AND delivered_at < ?`,
		olderThan,
	)
	if err != nil {
		return fmt.Errorf("events: cleanup: %w", err)
	}
	return nil
}
