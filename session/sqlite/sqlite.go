// Package sqlite implements core.SessionStore and core.TaskStore on a SQLite
// database via the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/logging"
)

//go:embed schema.sql
var schema string

// timeLayout is fixed width so text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Options configures a Store.
type Options struct {
	Logger logging.Logger
}

// Store is a SQLite backed session and task store. It is safe for
// concurrent use; writes are serialized on a single connection.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the database at dsn and applies the
// schema. Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, dsn string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// One connection keeps pragmas and :memory: databases consistent.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	opts.Logger.Debug("sqlite.store.opened", "dsn", dsn)

	return &Store{db: db, logger: opts.Logger}, nil
}

// migrate upgrades databases created before chat_messages.is_error existed.
func migrate(ctx context.Context, db *sql.DB) error {
	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('chat_messages') WHERE name = 'is_error'`).Scan(&n); err != nil {
		return fmt.Errorf("sqlite: inspect chat_messages: %w", err)
	}

	if n > 0 {
		return nil
	}

	if _, err := db.ExecContext(ctx, `ALTER TABLE chat_messages ADD COLUMN is_error INTEGER NOT NULL DEFAULT 0`); err != nil {
		return fmt.Errorf("sqlite: add is_error column: %w", err)
	}

	return nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// LoadMessages returns the checkpoint of sessionID; empty for unknown ids.
func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_call_id, tool_calls, is_error, timestamp
		 FROM chat_messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load messages: %w", err)
	}
	defer rows.Close()

	msgs := []core.Message{}

	for rows.Next() {
		var (
			m         core.Message
			role      string
			toolCalls string
			ts        string
		)

		if err := rows.Scan(&role, &m.Content, &m.ToolCallID, &toolCalls, &m.IsError, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}

		m.Role = core.Role(role)

		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("sqlite: decode tool calls: %w", err)
			}
		}

		if m.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}

		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// SaveMessages replaces the checkpoint of sessionID in one transaction,
// creating the session if needed.
func (s *Store) SaveMessages(ctx context.Context, sessionID string, msgs []core.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, core.DefaultSessionTitle, now, now); err != nil {
		return fmt.Errorf("sqlite: upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("sqlite: clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_messages (session_id, seq, role, content, tool_call_id, tool_calls, is_error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		toolCalls, err := encodeToolCalls(m.ToolCalls)
		if err != nil {
			return err
		}

		if _, err := stmt.ExecContext(ctx, sessionID, i, string(m.Role), m.Content, m.ToolCallID, toolCalls, m.IsError, formatTime(m.Timestamp)); err != nil {
			return fmt.Errorf("sqlite: insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}

	return nil
}

// Create stores a new session. Creating an existing id returns the stored
// session unchanged.
func (s *Store) Create(ctx context.Context, id, title string) (*core.Session, error) {
	sess := core.NewSession(id, title)

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		sess.ID, sess.Title, formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt)); err != nil {
		return nil, fmt.Errorf("sqlite: create session: %w", err)
	}

	return s.Get(ctx, id)
}

// Get returns a session including its messages.
func (s *Store) Get(ctx context.Context, id string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if sess.Messages, err = s.LoadMessages(ctx, id); err != nil {
		return nil, err
	}

	return sess, nil
}

// List returns all sessions without messages, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*core.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	out := []*core.Session{}

	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sess.Messages = nil
		out = append(out, sess)
	}

	return out, rows.Err()
}

// Rename sets the title of a session.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ?`, title, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("sqlite: rename session: %w", err)
	}

	return requireAffected(res, core.ErrSessionNotFound)
}

// Delete removes a session; its messages go with it.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete session: %w", err)
	}

	return requireAffected(res, core.ErrSessionNotFound)
}

// CreateTask stores t. A zero CreatedAt is set to now.
func (s *Store) CreateTask(ctx context.Context, t *core.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_tasks (id, name, description, task, created_at, last_result) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, t.Task, formatTime(t.CreatedAt), t.LastResult); err != nil {
		return fmt.Errorf("sqlite: create task: %w", err)
	}

	return nil
}

// GetTask returns the task with id.
func (s *Store) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, task, created_at, last_result FROM agent_tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTaskNotFound
	}

	return t, err
}

// ListTasks returns all tasks, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, task, created_at, last_result FROM agent_tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tasks: %w", err)
	}
	defer rows.Close()

	out := []*core.Task{}

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	return out, rows.Err()
}

// UpdateTask replaces name, description and task text of an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *core.Task) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_tasks SET name = ?, description = ?, task = ? WHERE id = ?`,
		t.Name, t.Description, t.Task, t.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update task: %w", err)
	}

	return requireAffected(res, core.ErrTaskNotFound)
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agent_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete task: %w", err)
	}

	return requireAffected(res, core.ErrTaskNotFound)
}

// SetTaskResult records the outcome of the latest run of a task.
func (s *Store) SetTaskResult(ctx context.Context, id, result string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agent_tasks SET last_result = ? WHERE id = ?`, result, id)
	if err != nil {
		return fmt.Errorf("sqlite: set task result: %w", err)
	}

	return requireAffected(res, core.ErrTaskNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*core.Session, error) {
	var (
		sess             core.Session
		created, updated string
	)

	if err := row.Scan(&sess.ID, &sess.Title, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scan session: %w", err)
	}

	var err error
	if sess.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if sess.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}

	return &sess, nil
}

func scanTask(row scanner) (*core.Task, error) {
	var (
		t       core.Task
		created string
	)

	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Task, &created, &t.LastResult); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scan task: %w", err)
	}

	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}

	return &t, nil
}

func encodeToolCalls(calls []core.ToolCall) (string, error) {
	if len(calls) == 0 {
		return "", nil
	}

	b, err := json.Marshal(calls)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode tool calls: %w", err)
	}

	return string(b), nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
