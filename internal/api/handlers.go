package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/querysmith/querysmith/internal/core"
	"github.com/querysmith/querysmith/internal/store"
)

type APIHandler struct {
	sessionService *core.SessionService
}

func NewAPIHandler(ss *core.SessionService) *APIHandler {
	return &APIHandler{sessionService: ss}
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.CreateSession()
	if err != nil {
		log.Printf("Error creating session: %v", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessionService.GetSession(sessionID)
	if err != nil {
		log.Printf("Error getting session %s: %v", sessionID, err)
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(session)
}

type SetSchemaRequest struct {
	Schema string `json:"schema"`
}

// SetSchemaHandler accepts the schema either as JSON ({"schema": "..."}) or
// as a raw text body, which is how the form submits an uploaded schema file.
func (h *APIHandler) SetSchemaHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var schemaText string
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var req SetSchemaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		schemaText = req.Schema
	} else {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		schemaText = string(body)
	}

	if strings.TrimSpace(schemaText) == "" {
		http.Error(w, "Schema text cannot be empty", http.StatusBadRequest)
		return
	}

	session, err := h.sessionService.SetSchema(sessionID, schemaText)
	if err != nil {
		log.Printf("Error setting schema for session %s: %v", sessionID, err)
		http.Error(w, "Failed to set schema", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(session)
}

type AnalyzeSchemaResponse struct {
	SchemaAnalysis string `json:"schema_analysis"`
}

func (h *APIHandler) AnalyzeSchemaHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	analysis, err := h.sessionService.AnalyzeSchema(sessionID)
	if err != nil {
		h.writeServiceError(w, "analyze schema", sessionID, err)
		return
	}
	if analysis == "" {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(AnalyzeSchemaResponse{SchemaAnalysis: analysis})
}

type GenerateSQLRequest struct {
	Query string `json:"query"`
}

func (h *APIHandler) GenerateSQLHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req GenerateSQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "Query text cannot be empty", http.StatusBadRequest)
		return
	}

	result, err := h.sessionService.GenerateSQL(sessionID, req.Query)
	if err != nil {
		h.writeServiceError(w, "generate SQL", sessionID, err)
		return
	}
	if result == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(result)
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessionService.GetSession(sessionID)
	if err != nil {
		log.Printf("Error getting session %s: %v", sessionID, err)
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	entries, err := h.sessionService.History(sessionID)
	if err != nil {
		log.Printf("Error listing history for session %s: %v", sessionID, err)
		http.Error(w, "Failed to list history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	json.NewEncoder(w).Encode(entries)
}

// writeServiceError maps session service errors onto HTTP statuses: missing
// prerequisites are client errors, remote model failures are 502, everything
// else is 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, action, sessionID string, err error) {
	switch {
	case errors.Is(err, core.ErrSchemaRequired):
		http.Error(w, "A database schema must be provided first", http.StatusBadRequest)
	case errors.Is(err, core.ErrAnalysisRequired):
		http.Error(w, "The schema must be analyzed first", http.StatusBadRequest)
	case errors.Is(err, core.ErrGenerationFailed):
		log.Printf("Generation failure during %s for session %s: %v", action, sessionID, err)
		http.Error(w, "Generation failed, please try again", http.StatusBadGateway)
	default:
		log.Printf("Error during %s for session %s: %v", action, sessionID, err)
		http.Error(w, "Failed to "+action, http.StatusInternalServerError)
	}
}
