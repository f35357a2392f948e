package db

import (
	"context"
	"database/sql"
	"time"
)

// Stats represents database statistics
type Stats struct {
	TotalSessions   int
	TotalMessages   int
	UserMessages    int
	Answers         int
	ErrorMessages   int
	RAGAnswers      int
	GeneralAnswers  int
	SourcedAnswers  int
	OldestSession   time.Time
	NewestSession   time.Time
	LongestTitle    string
	LongestMsgCount int
}

// GetStats returns comprehensive database statistics
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&stats.TotalSessions)
	if err != nil {
		return nil, err
	}

	// Message breakdown in one pass
	err = db.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN sender = 'user' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sender = 'ai' AND is_error = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_error = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sender = 'ai' AND is_error = 0 AND mode = 'rag' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sender = 'ai' AND is_error = 0 AND mode = 'general' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sender = 'ai' AND sources != '' THEN 1 ELSE 0 END), 0)
		FROM messages
	`).Scan(
		&stats.TotalMessages, &stats.UserMessages, &stats.Answers, &stats.ErrorMessages,
		&stats.RAGAnswers, &stats.GeneralAnswers, &stats.SourcedAnswers,
	)
	if err != nil {
		return nil, err
	}

	// Date range (only if we have sessions)
	if stats.TotalSessions > 0 {
		var minCreated, maxCreated sql.NullInt64
		err = db.conn.QueryRowContext(ctx, "SELECT MIN(created_at), MAX(created_at) FROM sessions").Scan(&minCreated, &maxCreated)
		if err != nil {
			return nil, err
		}
		if minCreated.Valid {
			stats.OldestSession = time.UnixMilli(minCreated.Int64)
		}
		if maxCreated.Valid {
			stats.NewestSession = time.UnixMilli(maxCreated.Int64)
		}

		err = db.conn.QueryRowContext(ctx, `
			SELECT title, message_count
			FROM sessions
			ORDER BY message_count DESC, position ASC
			LIMIT 1
		`).Scan(&stats.LongestTitle, &stats.LongestMsgCount)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
	}

	return stats, nil
}
