package core

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/querysmith/querysmith/internal/store"
)

var (
	ErrSchemaRequired   = errors.New("session has no schema text")
	ErrAnalysisRequired = errors.New("schema has not been analyzed")
)

type SessionService struct {
	dbStore  *store.SQLiteStore
	pipeline *PipelineService
}

func NewSessionService(db *store.SQLiteStore, pipeline *PipelineService) *SessionService {
	return &SessionService{
		dbStore:  db,
		pipeline: pipeline,
	}
}

func (s *SessionService) CreateSession() (*store.Session, error) {
	return s.dbStore.CreateSession()
}

// GetSession returns nil, nil when the session does not exist.
func (s *SessionService) GetSession(sessionID string) (*store.Session, error) {
	return s.dbStore.GetSessionByID(sessionID)
}

// SetSchema overwrites the session's schema text. The text is stored
// verbatim; malformed schemas are the model's problem, not ours. Any prior
// analysis is cleared.
func (s *SessionService) SetSchema(sessionID string, schemaText string) (*store.Session, error) {
	session, err := s.dbStore.GetSessionByID(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify session: %w", err)
	}
	if session == nil {
		return nil, nil // Not found
	}

	if err := s.dbStore.UpdateSessionSchema(sessionID, schemaText); err != nil {
		return nil, fmt.Errorf("failed to store schema text: %w", err)
	}
	session.SchemaText = schemaText
	session.SchemaAnalysis = nil
	return session, nil
}

// AnalyzeSchema runs the schema analysis stage and persists the summary on
// the session.
func (s *SessionService) AnalyzeSchema(sessionID string) (string, error) {
	session, err := s.dbStore.GetSessionByID(sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to verify session: %w", err)
	}
	if session == nil {
		return "", nil // Not found; callers map this to 404 via GetSession
	}
	if strings.TrimSpace(session.SchemaText) == "" {
		return "", ErrSchemaRequired
	}

	analysis, err := s.pipeline.AnalyzeSchema(session.SchemaText)
	if err != nil {
		return "", err
	}

	if err := s.dbStore.UpdateSessionAnalysis(sessionID, analysis); err != nil {
		return "", fmt.Errorf("failed to store schema analysis: %w", err)
	}
	return analysis, nil
}

// GenerateSQL runs the full sequencer for one query and, on success,
// appends a history entry. A failed run leaves the history untouched.
func (s *SessionService) GenerateSQL(sessionID string, queryText string) (*PipelineResult, error) {
	session, err := s.dbStore.GetSessionByID(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify session: %w", err)
	}
	if session == nil {
		return nil, nil // Not found
	}
	if session.SchemaAnalysis == nil || *session.SchemaAnalysis == "" {
		return nil, ErrAnalysisRequired
	}

	result, err := s.pipeline.Run(session.SchemaText, *session.SchemaAnalysis, queryText)
	if err != nil {
		return nil, err
	}

	entry := store.HistoryEntry{
		SessionID:   sessionID,
		Query:       queryText,
		SQL:         result.SQL,
		Refinements: result.Refinements,
		Converged:   result.Converged,
	}
	if err := s.dbStore.AppendHistoryEntry(&entry); err != nil {
		// The generated SQL is still worth surfacing; the entry just
		// won't appear in the history list.
		log.Printf("Failed to append history entry for session %s: %v", sessionID, err)
	}

	return result, nil
}

func (s *SessionService) History(sessionID string) ([]store.HistoryEntry, error) {
	return s.dbStore.GetHistoryBySessionID(sessionID)
}
