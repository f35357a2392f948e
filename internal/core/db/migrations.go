package db

import (
	"fmt"
)

// migrate applies database migrations for existing databases
func (db *DB) migrate() error {
	// Migration 1: error flag on mirrored messages
	if err := db.migration001AddIsError(); err != nil {
		return fmt.Errorf("migration 001: %w", err)
	}

	return nil
}

// migration001AddIsError adds messages.is_error so stats and search can
// leave out synthesized failure messages
func (db *DB) migration001AddIsError() error {
	var hasIsError bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('messages')
		WHERE name='is_error'
	`).Scan(&hasIsError)
	if err != nil {
		return err
	}

	if !hasIsError {
		_, err = db.conn.Exec(`ALTER TABLE messages ADD COLUMN is_error BOOLEAN NOT NULL DEFAULT 0;`)
		if err != nil {
			return fmt.Errorf("add is_error column: %w", err)
		}
	}

	return nil
}
