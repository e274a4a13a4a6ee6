// Package archive stores conversation tails discarded by "new conversation"
// in a local SQLite database.
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	codelet "github.com/Paranoid-AF/codelet"
)

// Archive is a handle to the archive database. It is safe for concurrent use.
type Archive struct {
	db *sql.DB
}

// Entry summarizes one archived conversation tail.
type Entry struct {
	ID        int64
	SessionID string
	Model     string
	Archived  time.Time
	Messages  int
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		archived_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_archived_at ON conversations(archived_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id, id);`,
}

// Open opens or creates the archive at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init archive schema: %w", err)
		}
	}
	return &Archive{db: db}, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Save stores msgs as one archived conversation and returns its id.
// An empty tail is not stored and returns 0.
func (a *Archive) Save(sessionID, model string, msgs []codelet.Message, now time.Time) (int64, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO conversations(session_id, model_id, archived_at) VALUES(?, ?, ?)",
		sessionID,
		model,
		now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare("INSERT INTO messages(conversation_id, role, content) VALUES(?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, m := range msgs {
		if _, err := stmt.Exec(id, string(m.Role), m.Content); err != nil {
			return 0, fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// Recent returns up to limit archived conversations, newest first.
func (a *Archive) Recent(limit int) ([]Entry, error) {
	rows, err := a.db.Query(
		`SELECT c.id, c.session_id, c.model_id, c.archived_at, COUNT(m.id)
		FROM conversations c LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id ORDER BY c.archived_at DESC, c.id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var archivedAt int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Model, &archivedAt, &e.Messages); err != nil {
			return nil, err
		}
		e.Archived = time.Unix(archivedAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Messages returns the messages of an archived conversation in order.
func (a *Archive) Messages(id int64) ([]codelet.Message, error) {
	rows, err := a.db.Query(
		"SELECT role, content FROM messages WHERE conversation_id = ? ORDER BY id ASC",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []codelet.Message{}
	for rows.Next() {
		var m codelet.Message
		var role string
		if err := rows.Scan(&role, &m.Content); err != nil {
			return nil, err
		}
		m.Role = codelet.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}
