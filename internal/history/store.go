// Package history keeps one sqlite row per finished recording session.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rbright/huddle/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	run_id          TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	guild_id        TEXT NOT NULL,
	channel_id      TEXT NOT NULL,
	channel_name    TEXT NOT NULL DEFAULT '',
	identity        TEXT NOT NULL,
	state           TEXT NOT NULL,
	started_at      INTEGER NOT NULL,
	ended_at        INTEGER NOT NULL,
	speakers        INTEGER NOT NULL DEFAULT 0,
	transcript_path TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS sessions_ended_at ON sessions(ended_at DESC);
`

// Entry is one stored session outcome.
type Entry struct {
	RunID          string
	SessionID      string
	GuildID        string
	ChannelID      string
	ChannelName    string
	Identity       string
	State          string
	StartedAt      time.Time
	EndedAt        time.Time
	Speakers       int
	TranscriptPath string
	Error          string
}

// Store records session outcomes in sqlite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// DefaultPath returns $XDG_STATE_HOME/huddle/history.sqlite, falling back to
// ~/.local/state/huddle/history.sqlite.
func DefaultPath() (string, error) {
	if state := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); state != "" {
		return filepath.Join(state, "huddle", "history.sqlite"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "huddle", "history.sqlite"), nil
}

// Open opens (and migrates) the database at path. ":memory:" is accepted.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db, logger: logger.With("component", "history")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one entry, assigning a run id when absent.
func (s *Store) Record(ctx context.Context, entry Entry) (string, error) {
	if entry.RunID == "" {
		entry.RunID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			run_id, session_id, guild_id, channel_id, channel_name, identity,
			state, started_at, ended_at, speakers, transcript_path, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.RunID, entry.SessionID, entry.GuildID, entry.ChannelID, entry.ChannelName, entry.Identity,
		entry.State, entry.StartedAt.UnixMilli(), entry.EndedAt.UnixMilli(), entry.Speakers,
		entry.TranscriptPath, entry.Error,
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return entry.RunID, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, session_id, guild_id, channel_id, channel_name, identity,
		       state, started_at, ended_at, speakers, transcript_path, error
		FROM sessions
		ORDER BY ended_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var startedAt, endedAt int64
		if err := rows.Scan(&e.RunID, &e.SessionID, &e.GuildID, &e.ChannelID, &e.ChannelName, &e.Identity,
			&e.State, &startedAt, &endedAt, &e.Speakers, &e.TranscriptPath, &e.Error); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedAt)
		e.EndedAt = time.UnixMilli(endedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SessionEnded stores summary. Write failures are logged only.
func (s *Store) SessionEnded(ctx context.Context, summary session.Summary) {
	entry := Entry{
		SessionID:      summary.ID,
		GuildID:        summary.GroupID,
		ChannelID:      summary.ChannelID,
		ChannelName:    summary.ChannelName,
		Identity:       summary.Identity,
		State:          string(summary.State),
		StartedAt:      summary.StartedAt,
		EndedAt:        summary.EndedAt,
		Speakers:       summary.Speakers,
		TranscriptPath: summary.TranscriptPath,
	}
	if summary.Err != nil {
		entry.Error = summary.Err.Error()
	}

	runID, err := s.Record(ctx, entry)
	if err != nil {
		s.logger.Error("failed to record session history", "session_id", summary.ID, "error", err.Error())
		return
	}
	s.logger.Debug("session history recorded", "session_id", summary.ID, "run_id", runID)
}

var _ session.Observer = (*Store)(nil)
