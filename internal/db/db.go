package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection holding received notifications
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path
func Open(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	// Initialize schema
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		// Checkpoint the WAL to ensure all data is written to the main database file
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

// Flush forces a WAL checkpoint to write pending changes to the main database file
func (db *DB) Flush() error {
	if db.conn != nil {
		// Use RESTART mode to force checkpoint even if there are active readers
		_, err := db.conn.Exec("PRAGMA wal_checkpoint(RESTART)")
		return err
	}
	return nil
}

// initSchema creates the database tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
	-- Notifications received from services
	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pid INTEGER NOT NULL,
		process TEXT,
		state TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Listener lifecycle events
	CREATE TABLE IF NOT EXISTS listener_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_notifications_timestamp ON notifications(timestamp);
	CREATE INDEX IF NOT EXISTS idx_notifications_pid ON notifications(pid);
	CREATE INDEX IF NOT EXISTS idx_listener_events_timestamp ON listener_events(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Notification is one recorded datagram from a service
type Notification struct {
	ID        int64
	PID       int
	Process   string
	State     string
	Timestamp time.Time
}

// RecordNotification stores a received notification. This sits on the
// datagram receive path, so a locked database is retried briefly (3
// attempts, 5ms between) instead of blocking the listener.
func (db *DB) RecordNotification(pid int, process, state string) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(
			`INSERT INTO notifications (pid, process, state, timestamp)
			 VALUES (?, ?, ?, ?)`,
			pid, process, state, time.Now(),
		)
		if err == nil {
			return nil
		}
		// Check if error is SQLITE_BUSY
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		// Other error, return immediately
		return err
	}
	return fmt.Errorf("failed to record notification after %d retries: database locked", maxRetries)
}

// ListenerEvent is a listener lifecycle event
type ListenerEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogListenerEvent logs a listener lifecycle event to the database
func (db *DB) LogListenerEvent(eventType, details string) error {
	_, err := db.conn.Exec(
		`INSERT INTO listener_events (event_type, details, timestamp)
		 VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
	return err
}

// GetRecentNotifications retrieves recent notifications, newest first
func (db *DB) GetRecentNotifications(limit int) ([]Notification, error) {
	rows, err := db.conn.Query(
		`SELECT id, pid, process, state, timestamp
		 FROM notifications
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// GetNotificationsByPID retrieves recent notifications from one process
func (db *DB) GetNotificationsByPID(pid, limit int) ([]Notification, error) {
	rows, err := db.conn.Query(
		`SELECT id, pid, process, state, timestamp
		 FROM notifications
		 WHERE pid = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		pid, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func scanNotifications(rows *sql.Rows) ([]Notification, error) {
	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.PID, &n.Process, &n.State, &n.Timestamp); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// GetRecentListenerEvents retrieves recent listener events, newest first
func (db *DB) GetRecentListenerEvents(limit int) ([]ListenerEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM listener_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ListenerEvent
	for rows.Next() {
		var e ListenerEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PruneBefore deletes notifications and listener events older than the
// cutoff and reports how many rows went away
func (db *DB) PruneBefore(cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"notifications", "listener_events"} {
		result, err := db.conn.Exec(
			`DELETE FROM `+table+` WHERE timestamp < ?`, cutoff,
		)
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		if affected, err := result.RowsAffected(); err == nil {
			total += affected
		}
	}
	return total, nil
}
