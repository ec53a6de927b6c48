package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory SQLite database exists per connection; a single
	// connection keeps all statements on the same database.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY, -- UUID
        schema_text TEXT NOT NULL DEFAULT '',
        schema_analysis TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS history_entries (
        id TEXT PRIMARY KEY, -- UUID
        session_id TEXT NOT NULL,
        query TEXT NOT NULL,
        sql_text TEXT NOT NULL,
        refinements INTEGER NOT NULL DEFAULT 0,
        converged BOOLEAN NOT NULL DEFAULT TRUE,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (session_id) REFERENCES sessions (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Session methods
func (s *SQLiteStore) CreateSession() (*Session, error) {
	sessionID := uuid.NewString()
	stmt, err := s.db.Prepare("INSERT INTO sessions (id, created_at) VALUES (?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare session insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	_, err = stmt.Exec(sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to execute session insert: %w", err)
	}
	return &Session{ID: sessionID, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetSessionByID(sessionID string) (*Session, error) {
	var session Session
	var analysis sql.NullString
	err := s.db.QueryRow("SELECT id, schema_text, schema_analysis, created_at FROM sessions WHERE id = ?", sessionID).Scan(&session.ID, &session.SchemaText, &analysis, &session.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if analysis.Valid {
		session.SchemaAnalysis = &analysis.String
	}
	return &session, nil
}

// UpdateSessionSchema replaces the schema text and clears any previous
// analysis, which no longer describes the new schema.
func (s *SQLiteStore) UpdateSessionSchema(sessionID string, schemaText string) error {
	stmt, err := s.db.Prepare("UPDATE sessions SET schema_text = ?, schema_analysis = NULL WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare schema update: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(schemaText, sessionID)
	if err != nil {
		return fmt.Errorf("failed to execute schema update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("session not found, schema not updated")
	}
	return nil
}

func (s *SQLiteStore) UpdateSessionAnalysis(sessionID string, analysis string) error {
	stmt, err := s.db.Prepare("UPDATE sessions SET schema_analysis = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare analysis update: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(analysis, sessionID)
	if err != nil {
		return fmt.Errorf("failed to execute analysis update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("session not found, analysis not updated")
	}
	return nil
}

// HistoryEntry methods
func (s *SQLiteStore) AppendHistoryEntry(entry *HistoryEntry) error {
	entry.ID = uuid.NewString() // Ensure ID is set
	entry.Timestamp = time.Now()

	stmt, err := s.db.Prepare("INSERT INTO history_entries (id, session_id, query, sql_text, refinements, converged, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(entry.ID, entry.SessionID, entry.Query, entry.SQL, entry.Refinements, entry.Converged, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to execute history insert: %w", err)
	}
	return nil
}

// GetHistoryBySessionID returns the session's entries in submission order,
// oldest first.
func (s *SQLiteStore) GetHistoryBySessionID(sessionID string) ([]HistoryEntry, error) {
	query := `
        SELECT id, session_id, query, sql_text, refinements, converged, timestamp
        FROM history_entries
        WHERE session_id = ?
        ORDER BY timestamp ASC, rowid ASC
    `

	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Query, &entry.SQL, &entry.Refinements, &entry.Converged, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
