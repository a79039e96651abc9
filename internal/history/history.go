// Package history records keypad commands, newest first.
package history

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one executed command. Entries are immutable once appended.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Succeeded bool      `json:"succeeded"`
}

// NewEntry stamps a new entry with a fresh id and the current time.
func NewEntry(sessionID, command string, succeeded bool) Entry {
	return Entry{
		ID:        uuid.New(),
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Command:   command,
		Succeeded: succeeded,
	}
}

// Log is an append-only command log.
type Log interface {
	Append(e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(limit int) ([]Entry, error)
}

// SQLiteLog keeps entries in the command_history table.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLite creates a log on an open database.
func NewSQLite(db *sql.DB) *SQLiteLog {
	return &SQLiteLog{db: db}
}

// Append adds an entry.
func (l *SQLiteLog) Append(e Entry) error {
	_, err := l.db.Exec(`
		INSERT INTO command_history (id, session_id, timestamp, command, succeeded)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID.String(), e.SessionID, e.Timestamp.UnixMilli(), e.Command, e.Succeeded)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *SQLiteLog) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := l.db.Query(`
		SELECT id, session_id, timestamp, command, succeeded
		FROM command_history
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the retention window.
func (l *SQLiteLog) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	result, err := l.db.Exec(`DELETE FROM command_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			id        string
			sessionID sql.NullString
			ts        int64
		)
		if err := rows.Scan(&id, &sessionID, &ts, &e.Command, &e.Succeeded); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("failed to parse entry id %q: %w", id, err)
		}
		e.ID = parsed
		e.SessionID = sessionID.String
		e.Timestamp = time.UnixMilli(ts).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MemoryLog keeps entries in memory, bounded by capacity.
type MemoryLog struct {
	mu       sync.RWMutex
	entries  []Entry // oldest first
	capacity int
}

// NewMemory creates an in-memory log. A capacity <= 0 keeps everything.
func NewMemory(capacity int) *MemoryLog {
	return &MemoryLog{capacity: capacity}
}

// Append adds an entry.
func (l *MemoryLog) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if l.capacity > 0 && len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *MemoryLog) Recent(limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := len(l.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}
