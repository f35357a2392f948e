package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neilberkman/studychat/internal/core/db"
	"github.com/neilberkman/studychat/internal/core/models"
)

// DefaultLimit bounds result sets when the caller sets no limit
const DefaultLimit = 200

// Result represents a single search result
type Result struct {
	MessageID    string
	SessionID    string
	SessionTitle string
	Sender       models.Sender
	Mode         models.Mode
	Snippet      string
	CreatedAt    time.Time
}

// Default sort order: newest session first, then conversation order
const defaultOrderBy = "s.position ASC, m.sequence ASC"

// Search runs a full-text search over the session mirror. Error messages
// are never returned.
func Search(ctx context.Context, database *db.DB, f Filters) ([]Result, error) {
	query := strings.TrimSpace(f.Query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	where, args := f.clauses()

	// Check if query contains special characters that FTS5 can't handle well
	// For these, use LIKE instead for exact substring matching
	var sqlText string
	if strings.ContainsAny(query, "-_@#$%&/.:") {
		sqlText = fmt.Sprintf(`
			SELECT
				m.message_id,
				s.session_id,
				s.title,
				m.sender,
				COALESCE(m.mode, ''),
				m.text_content,
				s.created_at
			FROM messages m
			JOIN sessions s ON s.id = m.session_id
			WHERE m.text_content LIKE '%%' || ? || '%%' %s
			ORDER BY %s
			LIMIT ?
		`, where, defaultOrderBy)
	} else {
		query = ftsQuery(query)
		sqlText = fmt.Sprintf(`
			SELECT
				m.message_id,
				s.session_id,
				s.title,
				m.sender,
				COALESCE(m.mode, ''),
				snippet(messages_fts, 0, '', '', '...', 32),
				s.created_at
			FROM messages_fts
			JOIN messages m ON messages_fts.rowid = m.id
			JOIN sessions s ON s.id = m.session_id
			WHERE messages_fts MATCH ? %s
			ORDER BY %s
			LIMIT ?
		`, where, defaultOrderBy)
	}

	args = append([]interface{}{query}, args...)
	args = append(args, limit)

	rows, err := database.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []Result
	for rows.Next() {
		var r Result
		var sender, mode string
		var createdMs int64
		if err := rows.Scan(
			&r.MessageID,
			&r.SessionID,
			&r.SessionTitle,
			&sender,
			&mode,
			&r.Snippet,
			&createdMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Sender = models.Sender(sender)
		r.Mode = models.Mode(mode)
		r.CreatedAt = time.UnixMilli(createdMs)
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return results, nil
}

// ftsQuery quotes each word so FTS5 operators in user text are literal
func ftsQuery(q string) string {
	words := strings.Fields(strings.ReplaceAll(q, `"`, " "))
	for i, w := range words {
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}

func (f Filters) clauses() (string, []interface{}) {
	parts := []string{"m.is_error = 0"}
	var args []interface{}

	if f.Mode != "" {
		parts = append(parts, "m.sender = 'ai' AND m.mode = ?")
		args = append(args, string(f.Mode))
	}
	if f.HasAfter {
		parts = append(parts, "s.created_at >= ?")
		args = append(args, f.After.UnixMilli())
	}
	if f.HasBefore {
		parts = append(parts, "s.created_at < ?")
		args = append(args, f.Before.UnixMilli())
	}
	return "AND " + strings.Join(parts, " AND "), args
}
