package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/anspn/iota-service/internal/manager"
	"github.com/anspn/iota-service/internal/models"
	"github.com/anspn/iota-service/internal/receipts"
)

// Server provides the REST API handlers over the session manager.
type Server struct {
	mgr      *manager.Manager
	receipts receipts.Store
}

// NewServer creates a new API server. The receipt store may be nil when no
// receipts database is configured.
func NewServer(m *manager.Manager, r receipts.Store) *Server {
	return &Server{mgr: m, receipts: r}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/sessions", s.startSession)
	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/end", s.endSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/receipt", s.getReceipt)

	mux.HandleFunc("GET /api/v1/stats", s.stats)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Sessions ---

// StartSessionRequest is the JSON body for POST /api/v1/sessions.
type StartSessionRequest struct {
	Identity string `json:"identity"`
	Owner    string `json:"owner"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	sess, err := s.mgr.Start(r.Context(), req.Identity, req.Owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.mgr.End(r.Context(), id)
	if err != nil {
		if errors.Is(err, manager.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sess, err := s.mgr.Lookup(id)
	if err != nil {
		if errors.Is(err, manager.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	filter := manager.Filter{
		Owner:    r.URL.Query().Get("owner"),
		Identity: r.URL.Query().Get("identity"),
	}

	if status := r.URL.Query().Get("status"); status != "" {
		st := models.SessionStatus(status)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status: "+status)
			return
		}
		filter.Status = st
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+limit)
			return
		}
		filter.Limit = n
	}

	sessions := s.mgr.List(filter)
	if sessions == nil {
		sessions = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// --- Receipts ---

type receiptResponse struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	Digest      string `json:"digest"`
	LedgerID    string `json:"ledger_id"`
	PublishedAt string `json:"published_at"`
}

func (s *Server) getReceipt(w http.ResponseWriter, r *http.Request) {
	if s.receipts == nil {
		writeError(w, http.StatusServiceUnavailable, "receipt store not configured")
		return
	}

	id := r.PathValue("id")
	rec, err := s.receipts.GetBySession(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, receiptResponse{
		ID:          rec.ID,
		SessionID:   rec.SessionID,
		Digest:      rec.Digest,
		LedgerID:    rec.LedgerID,
		PublishedAt: rec.PublishedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

// --- Stats ---

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Stats())
}
