package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps entries in a SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and creates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps appends ordered
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_session ON history(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(e Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO history (session_id, speaker, text, timestamp) VALUES (?, ?, ?, ?)`,
		e.SessionID, e.Speaker, e.Text, e.Timestamp.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM history`)
	return err
}

// Entries returns all entries in insertion order.
func (s *SQLiteStore) Entries() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT session_id, speaker, text, timestamp FROM history ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			sessionID sql.NullString
			ts        int64
		)
		if err := rows.Scan(&sessionID, &e.Speaker, &e.Text, &ts); err != nil {
			return nil, err
		}
		e.SessionID = sessionID.String
		e.Timestamp = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Open returns the store for a backend name: "file" or "sqlite".
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown history backend %q", backend)
	}
}
