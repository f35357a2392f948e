package db

func (db *DB) initSchema() error {
	schema := `
	-- Durable key-value entries (the session collection lives here)
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Searchable mirror of the session collection, rebuilt on every write
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		position INTEGER NOT NULL,
		message_count INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_session_id ON sessions(session_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL,
		session_id INTEGER NOT NULL,
		sender TEXT NOT NULL,
		text_content TEXT,
		image TEXT,
		sources TEXT,
		mode TEXT,
		sequence INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_messages_mode ON messages(mode);

	-- Natural language search with porter stemming
	CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		text_content,
		tokenize='porter unicode61'
	);

	-- Triggers to keep FTS in sync
	CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts(rowid, text_content) VALUES (new.id, new.text_content);
	END;

	CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
		DELETE FROM messages_fts WHERE rowid = old.id;
	END;

	CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
		UPDATE messages_fts SET text_content = new.text_content WHERE rowid = new.id;
	END;
	`

	_, err := db.conn.Exec(schema)
	return err
}
