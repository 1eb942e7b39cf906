package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cliaimonitor/agentctl/internal/errs"
	"github.com/cliaimonitor/agentctl/internal/types"
)

// Store is the SQL-backed persistence layer for agents, tasks, and
// sessions, following the upsert/scan pattern of the teacher's
// internal/tasks/store.go.
type Store struct {
	db *sql.DB
}

// New wraps db and creates the schema if it does not already exist.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, fmt.Errorf("persistence: init: %w", err)
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			config TEXT NOT NULL,
			pid INTEGER,
			pool_id TEXT,
			restart_count INTEGER NOT NULL DEFAULT 0,
			in_flight_tasks INTEGER NOT NULL DEFAULT 0,
			last_heartbeat DATETIME,
			last_crash_time DATETIME,
			stop_requested INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			description TEXT NOT NULL,
			payload TEXT,
			status TEXT NOT NULL,
			result TEXT,
			error TEXT,
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(agent_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

		CREATE TABLE IF NOT EXISTS sessions (
			agent_id TEXT PRIMARY KEY,
			terminal_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		);
	`)
	return err
}

// SaveAgent upserts an agent record.
func (s *Store) SaveAgent(a types.Agent) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return errs.PersistenceFailuref("persistence.SaveAgent", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO agents (id, type, status, config, pid, pool_id, restart_count, in_flight_tasks,
			last_heartbeat, last_crash_time, stop_requested, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			status = excluded.status,
			config = excluded.config,
			pid = excluded.pid,
			pool_id = excluded.pool_id,
			restart_count = excluded.restart_count,
			in_flight_tasks = excluded.in_flight_tasks,
			last_heartbeat = excluded.last_heartbeat,
			last_crash_time = excluded.last_crash_time,
			stop_requested = excluded.stop_requested,
			updated_at = excluded.updated_at`,
		a.ID, a.Type, string(a.Status), string(cfg), nullInt(a.PID), nullString(a.PoolID),
		a.RestartCount, a.InFlightTasks, nullTime(a.LastHeartbeat), nullTime(a.LastCrashTime),
		boolToInt(a.StopRequested), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return errs.PersistenceFailuref("persistence.SaveAgent", err)
	}
	return nil
}

// GetAgent returns the agent with id, or a NotFound error.
func (s *Store) GetAgent(id string) (types.Agent, error) {
	row := s.db.QueryRow(`
		SELECT id, type, status, config, pid, pool_id, restart_count, in_flight_tasks,
			last_heartbeat, last_crash_time, stop_requested, created_at, updated_at
		FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return types.Agent{}, errs.NotFoundf("persistence.GetAgent", fmt.Errorf("agent %s", id))
	}
	if err != nil {
		return types.Agent{}, errs.PersistenceFailuref("persistence.GetAgent", err)
	}
	return a, nil
}

// ListAgents returns every agent, optionally filtered to poolID when
// non-empty.
func (s *Store) ListAgents(poolID string) ([]types.Agent, error) {
	var rows *sql.Rows
	var err error
	if poolID == "" {
		rows, err = s.db.Query(`
			SELECT id, type, status, config, pid, pool_id, restart_count, in_flight_tasks,
				last_heartbeat, last_crash_time, stop_requested, created_at, updated_at
			FROM agents ORDER BY created_at ASC`)
	} else {
		rows, err = s.db.Query(`
			SELECT id, type, status, config, pid, pool_id, restart_count, in_flight_tasks,
				last_heartbeat, last_crash_time, stop_requested, created_at, updated_at
			FROM agents WHERE pool_id = ? ORDER BY created_at ASC`, poolID)
	}
	if err != nil {
		return nil, errs.PersistenceFailuref("persistence.ListAgents", err)
	}
	defer rows.Close()

	var out []types.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, errs.PersistenceFailuref("persistence.ListAgents", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(r scanner) (types.Agent, error) {
	var (
		a            types.Agent
		status       string
		cfg          string
		pid          sql.NullInt64
		poolID       sql.NullString
		lastHB       sql.NullTime
		lastCrash    sql.NullTime
		stopReq      int
	)
	if err := r.Scan(&a.ID, &a.Type, &status, &cfg, &pid, &poolID, &a.RestartCount,
		&a.InFlightTasks, &lastHB, &lastCrash, &stopReq, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return types.Agent{}, err
	}
	a.Status = types.AgentStatus(status)
	if err := json.Unmarshal([]byte(cfg), &a.Config); err != nil {
		return types.Agent{}, fmt.Errorf("decode config: %w", err)
	}
	a.PID = int(pid.Int64)
	a.PoolID = poolID.String
	a.LastHeartbeat = lastHB.Time
	a.LastCrashTime = lastCrash.Time
	a.StopRequested = stopReq != 0
	return a, nil
}

// SaveTask upserts a task record.
func (s *Store) SaveTask(t types.Task) error {
	var payload, result []byte
	var err error
	if t.Payload != nil {
		if payload, err = json.Marshal(t.Payload); err != nil {
			return errs.PersistenceFailuref("persistence.SaveTask", err)
		}
	}
	if t.Result != nil {
		if result, err = json.Marshal(t.Result); err != nil {
			return errs.PersistenceFailuref("persistence.SaveTask", err)
		}
	}
	_, err = s.db.Exec(`
		INSERT INTO tasks (id, agent_id, description, payload, status, result, error,
			created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			description = excluded.description,
			payload = excluded.payload,
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		t.ID, t.AgentID, t.Description, nullBytes(payload), string(t.Status), nullBytes(result),
		t.Error, t.CreatedAt, nullTime(t.StartedAt), nullTime(t.CompletedAt),
	)
	if err != nil {
		return errs.PersistenceFailuref("persistence.SaveTask", err)
	}
	return nil
}

// GetTask returns a task by id, or NotFound.
func (s *Store) GetTask(id string) (types.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, agent_id, description, payload, status, result, error, created_at, started_at, completed_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return types.Task{}, errs.NotFoundf("persistence.GetTask", fmt.Errorf("task %s", id))
	}
	if err != nil {
		return types.Task{}, errs.PersistenceFailuref("persistence.GetTask", err)
	}
	return t, nil
}

// ListTasksByStatus returns every task with the given status.
func (s *Store) ListTasksByStatus(status types.TaskStatus) ([]types.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, agent_id, description, payload, status, result, error, created_at, started_at, completed_at
		FROM tasks WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, errs.PersistenceFailuref("persistence.ListTasksByStatus", err)
	}
	defer rows.Close()

	var out []types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errs.PersistenceFailuref("persistence.ListTasksByStatus", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(r scanner) (types.Task, error) {
	var (
		t         types.Task
		status    string
		payload   sql.NullString
		result    sql.NullString
		errStr    sql.NullString
		startedAt sql.NullTime
		completed sql.NullTime
	)
	if err := r.Scan(&t.ID, &t.AgentID, &t.Description, &payload, &status, &result, &errStr,
		&t.CreatedAt, &startedAt, &completed); err != nil {
		return types.Task{}, err
	}
	t.Status = types.TaskStatus(status)
	t.Error = errStr.String
	t.StartedAt = startedAt.Time
	t.CompletedAt = completed.Time
	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &t.Payload); err != nil {
			return types.Task{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	if result.Valid && result.String != "" {
		var res types.TaskResult
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return types.Task{}, fmt.Errorf("decode result: %w", err)
		}
		t.Result = &res
	}
	return t, nil
}

// SaveSession upserts a session record.
func (s *Store) SaveSession(sess types.Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (agent_id, terminal_id, status, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			terminal_id = excluded.terminal_id,
			status = excluded.status,
			ended_at = excluded.ended_at`,
		sess.AgentID, sess.TerminalID, sess.Status, sess.StartedAt, nullTime(sess.EndedAt),
	)
	if err != nil {
		return errs.PersistenceFailuref("persistence.SaveSession", err)
	}
	return nil
}

// GetSessionByAgent returns the session for agentID, or NotFound.
func (s *Store) GetSessionByAgent(agentID string) (types.Session, error) {
	row := s.db.QueryRow(`
		SELECT agent_id, terminal_id, status, started_at, ended_at FROM sessions WHERE agent_id = ?`, agentID)
	var sess types.Session
	var ended sql.NullTime
	err := row.Scan(&sess.AgentID, &sess.TerminalID, &sess.Status, &sess.StartedAt, &ended)
	if err == sql.ErrNoRows {
		return types.Session{}, errs.NotFoundf("persistence.GetSessionByAgent", fmt.Errorf("session for %s", agentID))
	}
	if err != nil {
		return types.Session{}, errs.PersistenceFailuref("persistence.GetSessionByAgent", err)
	}
	sess.EndedAt = ended.Time
	return sess, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
