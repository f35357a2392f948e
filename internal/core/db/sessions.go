package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neilberkman/studychat/internal/core/models"
)

// sourceSeparator joins a message's source ids in the mirror table.
// Source ids are file paths so a newline never appears inside one.
const sourceSeparator = "\n"

// Session is a row of the searchable session mirror
type Session struct {
	SessionID    string
	Title        string
	CreatedAt    time.Time
	Position     int
	MessageCount int
}

// ReindexSessions replaces the mirror tables with the given collection.
// Positions follow slice order so index 0 is the newest session.
func (db *DB) ReindexSessions(ctx context.Context, sessions []models.Session) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reindex: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// messages cascade from sessions; delete explicitly so FTS triggers fire
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}

	sessStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sessions (session_id, title, created_at, position, message_count)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = sessStmt.Close() }()

	msgStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (message_id, session_id, sender, text_content, image, sources, mode, is_error, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = msgStmt.Close() }()

	for pos, s := range sessions {
		res, err := sessStmt.ExecContext(ctx, s.ID, s.Title, s.Timestamp.UnixMilli(), pos, len(s.Messages))
		if err != nil {
			return fmt.Errorf("index session %s: %w", s.ID, err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for seq, m := range s.Messages {
			_, err := msgStmt.ExecContext(ctx,
				m.ID, rowID, string(m.Sender), m.Text, m.Image,
				strings.Join(m.Sources, sourceSeparator), string(m.Mode), m.IsError, seq,
			)
			if err != nil {
				return fmt.Errorf("index message %s: %w", m.ID, err)
			}
		}
	}

	return tx.Commit()
}

// ListSessions returns mirrored sessions newest first. A limit of zero
// or less returns all of them.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	query := `
		SELECT session_id, title, created_at, position, message_count
		FROM sessions
		ORDER BY position ASC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		var s Session
		var createdMs int64
		if err := rows.Scan(&s.SessionID, &s.Title, &createdMs, &s.Position, &s.MessageCount); err != nil {
			return nil, err
		}
		s.CreatedAt = time.UnixMilli(createdMs)
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// SplitSources reverses the mirror's source encoding
func SplitSources(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, sourceSeparator)
}
