package store

import "time"

type Session struct {
	ID             string    `json:"id"` // Using UUID for external ID
	SchemaText     string    `json:"schema_text"`
	SchemaAnalysis *string   `json:"schema_analysis"` // Nullable until the analysis stage has run
	CreatedAt      time.Time `json:"created_at"`
}

type HistoryEntry struct {
	ID          string    `json:"id"` // Using UUID for external ID
	SessionID   string    `json:"session_id"`
	Query       string    `json:"query"`
	SQL         string    `json:"sql"`
	Refinements int       `json:"refinements"`
	Converged   bool      `json:"converged"`
	Timestamp   time.Time `json:"timestamp"`
}
