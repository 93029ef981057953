// Package history persists the append-only execution log and saved chat
// sessions.
package history

import (
	"context"
	"time"

	"github.com/michaelbrown/devbot/internal/dispatch"
	"github.com/michaelbrown/devbot/internal/llm"
)

// Run is one entry of the execution log: the request plus its display
// record. Rows are append-only; stdout/stderr are stored already capped.
type Run struct {
	ID             string    `json:"id"`
	Language       string    `json:"language"`
	Source         string    `json:"source"`
	Status         string    `json:"status"`
	ExitCode       *int      `json:"exit_code,omitempty"`
	Stdout         string    `json:"stdout,omitempty"`
	Stderr         string    `json:"stderr,omitempty"`
	TimedOut       bool      `json:"timed_out"`
	Truncated      bool      `json:"truncated"`
	DurationMillis int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// RunFromRecord builds a log entry from a request and its record.
func RunFromRecord(req dispatch.Request, rec *dispatch.Record) *Run {
	return &Run{
		ID:             rec.ID,
		Language:       rec.Language,
		Source:         req.Source,
		Status:         string(rec.Status),
		ExitCode:       rec.ExitCode,
		Stdout:         rec.Stdout,
		Stderr:         rec.Stderr,
		TimedOut:       rec.TimedOut,
		Truncated:      rec.Truncated,
		DurationMillis: rec.DurationMillis,
		CreatedAt:      rec.CreatedAt,
	}
}

// RunListOptions controls filtering and pagination for ListRuns.
type RunListOptions struct {
	Language string
	Status   string
	Limit    int
	Offset   int
}

// SessionStatus represents the lifecycle state of a chat session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// Session is the metadata for a saved conversation.
type Session struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    SessionStatus `json:"status"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Profile   string        `json:"profile"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SessionListOptions controls filtering and pagination for ListSessions.
type SessionListOptions struct {
	Status SessionStatus
	Limit  int
	Offset int
}

// Store is the persistence interface for the run log and chat sessions.
type Store interface {
	// AppendRun adds an entry to the execution log.
	AppendRun(ctx context.Context, run *Run) error

	// ListRuns returns log entries ordered by created_at descending.
	ListRuns(ctx context.Context, opts RunListOptions) ([]Run, error)

	// GetRun returns a run by ID or ID prefix.
	GetRun(ctx context.Context, id string) (*Run, error)

	// CreateSession inserts a new session. The ID field must be set by the caller.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession returns a session by ID or ID prefix.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns sessions ordered by updated_at descending.
	ListSessions(ctx context.Context, opts SessionListOptions) ([]Session, error)

	// UpdateSession updates mutable fields (title, status, updated_at).
	UpdateSession(ctx context.Context, s *Session) error

	// DeleteSession removes a session and its messages.
	DeleteSession(ctx context.Context, id string) error

	// SaveMessages overwrites the full message history for a session.
	SaveMessages(ctx context.Context, sessionID string, messages []llm.Message) error

	// LoadMessages returns the message history for a session.
	LoadMessages(ctx context.Context, sessionID string) ([]llm.Message, error)

	// Close releases resources.
	Close() error
}
