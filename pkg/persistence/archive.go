// Package persistence provides the SQLite archive for finished
// conversations. The live store stays in memory; a session is written
// here exactly once, when the chair delivers the final response.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"parliament/pkg/logx"
	"parliament/pkg/session"
)

// ErrNotFound is returned when an archived session does not exist.
var ErrNotFound = errors.New("archived session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT NOT NULL,
	archived_at     TIMESTAMP NOT NULL,
	source_question TEXT NOT NULL,
	round_number    INTEGER NOT NULL,
	phase           TEXT NOT NULL,
	transcript      TEXT NOT NULL,
	PRIMARY KEY (id, archived_at)
);

CREATE TABLE IF NOT EXISTS summaries (
	session_id   TEXT NOT NULL,
	archived_at  TIMESTAMP NOT NULL,
	pattern_name TEXT NOT NULL DEFAULT '',
	closing      TEXT NOT NULL DEFAULT '',
	summary      TEXT NOT NULL,
	PRIMARY KEY (session_id, archived_at)
);
`

// Archive wraps the sqlite database holding finished conversations.
type Archive struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open creates or opens the archive database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("archive")
	logger.Info("archive opened: %s", path)
	return &Archive{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}

// ArchivedSession is one archived conversation row. Summary holds the
// chair's normalized output as stored JSON.
type ArchivedSession struct {
	ID             string            `json:"sessionId"`
	ArchivedAt     time.Time         `json:"archivedAt"`
	SourceQuestion string            `json:"sourceQuestion"`
	RoundNumber    int               `json:"roundNumber"`
	Phase          string            `json:"phase"`
	Messages       []session.Message `json:"messages"`
	PatternName    string            `json:"patternName,omitempty"`
	Closing        string            `json:"closing,omitempty"`
	Summary        json.RawMessage   `json:"summary,omitempty"`
}

// SaveFinalized writes a finished session and its chair summary. The
// summary argument is any JSON-marshalable value; pattern name and
// closing are denormalized for listing.
func (a *Archive) SaveFinalized(ctx context.Context, sess *session.Session, summary any, patternName, closing string) error {
	transcript, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	archivedAt := time.Now().UTC()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, archived_at, source_question, round_number, phase, transcript)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, archivedAt, sess.SourceQuestion, sess.RoundNumber, string(sess.Phase), string(transcript),
	); err != nil {
		return fmt.Errorf("failed to insert archived session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO summaries (session_id, archived_at, pattern_name, closing, summary)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, archivedAt, patternName, closing, string(summaryJSON),
	); err != nil {
		return fmt.Errorf("failed to insert archived summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}
	a.logger.Info("archived session %s (%d messages)", sess.ID, len(sess.Messages))
	return nil
}

// List returns the most recent archived conversations, newest first.
func (a *Archive) List(ctx context.Context, limit int) ([]ArchivedSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT s.id, s.archived_at, s.source_question, s.round_number, s.phase,
		        m.pattern_name, m.closing
		 FROM sessions s
		 JOIN summaries m ON m.session_id = s.id AND m.archived_at = s.archived_at
		 ORDER BY s.archived_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ArchivedSession
	for rows.Next() {
		var as ArchivedSession
		if err := rows.Scan(&as.ID, &as.ArchivedAt, &as.SourceQuestion,
			&as.RoundNumber, &as.Phase, &as.PatternName, &as.Closing); err != nil {
			return nil, fmt.Errorf("failed to scan archived session: %w", err)
		}
		out = append(out, as)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading archived sessions: %w", err)
	}
	return out, nil
}

// Get returns the latest archived copy of one session, including the
// full transcript and summary JSON.
func (a *Archive) Get(ctx context.Context, sessionID string) (*ArchivedSession, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT s.id, s.archived_at, s.source_question, s.round_number, s.phase,
		        s.transcript, m.pattern_name, m.closing, m.summary
		 FROM sessions s
		 JOIN summaries m ON m.session_id = s.id AND m.archived_at = s.archived_at
		 WHERE s.id = ?
		 ORDER BY s.archived_at DESC
		 LIMIT 1`, sessionID)

	var as ArchivedSession
	var transcript, summary string
	err := row.Scan(&as.ID, &as.ArchivedAt, &as.SourceQuestion, &as.RoundNumber,
		&as.Phase, &transcript, &as.PatternName, &as.Closing, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archived session: %w", err)
	}

	if err := json.Unmarshal([]byte(transcript), &as.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode archived transcript: %w", err)
	}
	as.Summary = json.RawMessage(summary)
	return &as, nil
}
