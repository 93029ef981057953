// Package sqlite implements history.Store backed by a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/michaelbrown/devbot/internal/history"
	"github.com/michaelbrown/devbot/internal/llm"

	_ "modernc.org/sqlite"
)

// Store implements history.Store.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for tests).
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// --- run log ---

func (s *Store) AppendRun(ctx context.Context, run *history.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	var exitCode any
	if run.ExitCode != nil {
		exitCode = *run.ExitCode
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, language, source, status, exit_code, stdout, stderr,
		                  timed_out, truncated, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Language, run.Source, run.Status, exitCode,
		run.Stdout, run.Stderr, boolToInt(run.TimedOut), boolToInt(run.Truncated),
		run.DurationMillis, run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("appending run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, opts history.RunListOptions) ([]history.Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, language, source, status, exit_code, stdout, stderr,
	                 timed_out, truncated, duration_ms, created_at FROM runs`
	var conds []string
	var args []any

	if opts.Language != "" {
		conds = append(conds, "language = ?")
		args = append(args, opts.Language)
	}
	if opts.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, opts.Status)
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []history.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *Store) GetRun(ctx context.Context, id string) (*history.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, language, source, status, exit_code, stdout, stderr,
		       timed_out, truncated, duration_ms, created_at
		FROM runs WHERE id = ? OR id LIKE ? || '%'`, id, id)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	defer rows.Close()

	var matches []*history.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, run)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("run not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous run prefix %q matches %d runs", id, len(matches))
	}
}

func scanRun(rows *sql.Rows) (*history.Run, error) {
	var run history.Run
	var exitCode sql.NullInt64
	var timedOut, truncated int
	var createdAt string
	err := rows.Scan(&run.ID, &run.Language, &run.Source, &run.Status, &exitCode,
		&run.Stdout, &run.Stderr, &timedOut, &truncated, &run.DurationMillis, &createdAt)
	if err != nil {
		return nil, err
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	run.TimedOut = timedOut != 0
	run.Truncated = truncated != 0
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &run, nil
}

// --- sessions ---

func (s *Store) CreateSession(ctx context.Context, sess *history.Session) error {
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, status, provider, model, profile, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.Status, sess.Provider, sess.Model, sess.Profile,
		sess.CreatedAt.Format(time.RFC3339), sess.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_messages (session_id, messages) VALUES (?, '[]')`,
		sess.ID,
	)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*history.Session, error) {
	// Exact match first, then prefix match
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, status, provider, model, profile, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	if sess, err := scanSession(row); err == nil {
		return sess, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, status, provider, model, profile, created_at, updated_at
		FROM sessions WHERE id LIKE ? || '%'`, id)
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	defer rows.Close()

	var matches []*history.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, sess)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("session not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous session prefix %q matches %d sessions", id, len(matches))
	}
}

func (s *Store) ListSessions(ctx context.Context, opts history.SessionListOptions) ([]history.Session, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, title, status, provider, model, profile, created_at, updated_at FROM sessions`
	var args []any

	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}

	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []history.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func (s *Store) UpdateSession(ctx context.Context, sess *history.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET title = ?, status = ?, updated_at = ? WHERE id = ?`,
		sess.Title, sess.Status, sess.UpdatedAt.Format(time.RFC3339), sess.ID,
	)
	return err
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	// Messages first (foreign key), then the session
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, sess.ID); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sess.ID)
	return err
}

func (s *Store) SaveMessages(ctx context.Context, sessionID string, messages []llm.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_messages (session_id, messages, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		sessionID, string(data), now,
	)
	return err
}

func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]llm.Message, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT messages FROM session_messages WHERE session_id = ?`, sessionID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	var messages []llm.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	return messages, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// scanner works with both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*history.Session, error) {
	var sess history.Session
	var createdAt, updatedAt string
	err := sc.Scan(&sess.ID, &sess.Title, &sess.Status, &sess.Provider,
		&sess.Model, &sess.Profile, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &sess, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
