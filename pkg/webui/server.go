// Package webui exposes the conversation engine over HTTP: the JSON
// API the front end talks to, plus logs, archive, health, and metrics
// endpoints for operating the service.
package webui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parliament/pkg/config"
	"parliament/pkg/conversation"
	"parliament/pkg/logx"
	"parliament/pkg/persistence"
	"parliament/pkg/session"
	"parliament/pkg/version"
)

//go:embed static
var staticFS embed.FS

// Server is the HTTP front for the engine.
type Server struct {
	engine  *conversation.Engine
	store   *session.Store
	archive *persistence.Archive
	logger  *logx.Logger
}

// NewServer creates a web server. The archive may be nil; archive
// endpoints then report service unavailable.
func NewServer(engine *conversation.Engine, store *session.Store, archive *persistence.Archive) *Server {
	return &Server{
		engine:  engine,
		store:   store,
		archive: archive,
		logger:  logx.NewLogger("webui"),
	}
}

// requireAuth wraps a handler with Basic Authentication. Username is
// always "parliament"; the password comes from the unified service
// password (secrets file or PARLIAMENT_PASSWORD env var). An empty
// password disables auth, which is the local-development default.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expectedPassword := config.GetServicePassword()
		if expectedPassword == "" {
			next(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok || username != "parliament" || password != expectedPassword {
			if ok {
				s.logger.Warn("Failed authentication attempt from %s (username: %s)", r.RemoteAddr, username)
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="Parliament"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat", s.requireAuth(s.handleChat))
	mux.HandleFunc("/api/answer", s.requireAuth(s.handleAnswer))
	mux.HandleFunc("/api/choice", s.requireAuth(s.handleChoice))
	mux.HandleFunc("/api/deep-analysis", s.requireAuth(s.handleDeepAnalysis))
	mux.HandleFunc("/api/continue-question", s.requireAuth(s.handleContinueQuestion))
	mux.HandleFunc("/api/chair-summary", s.requireAuth(s.handleChairSummary))
	mux.HandleFunc("/api/external-domain-approval", s.requireAuth(s.handleExternalDomainApproval))
	mux.HandleFunc("/api/clear-session", s.requireAuth(s.handleClearSession))

	mux.HandleFunc("/api/sessions", s.requireAuth(s.handleSessions))
	mux.HandleFunc("/api/archive", s.requireAuth(s.handleArchiveList))
	mux.HandleFunc("/api/archive/", s.requireAuth(s.handleArchiveGet))
	mux.HandleFunc("/api/logs", s.requireAuth(s.handleLogs))
	mux.HandleFunc("/api/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.requireAuth(s.handleIndex))
}

// handleIndex serves the embedded chat page at the root path only.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(page); err != nil {
		s.logger.Error("Failed to write index page: %v", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

// writeEngineError maps an engine failure onto the ERROR reply shape
// the front end renders inline.
func (s *Server) writeEngineError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{
		"mode":  string(conversation.ModeError),
		"error": err.Error(),
	})
}

// handleChat implements POST /api/chat - opens or continues a
// conversation with a free-form user message.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody struct {
		SessionID  string `json:"sessionId"`
		Message    string `json:"message"`
		StartFresh bool   `json:"startFresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	reply, err := s.engine.StartConversation(r.Context(), reqBody.SessionID, reqBody.Message, reqBody.StartFresh)
	if err != nil {
		s.logger.Error("chat failed for session %s: %v", reqBody.SessionID, err)
		s.writeEngineError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// handleAnswer implements POST /api/answer - one answer submission,
// including the external-specialist decision actions.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in conversation.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	reply, err := s.engine.SubmitAnswer(r.Context(), in)
	if err != nil {
		s.logger.Error("answer failed for session %s: %v", in.SessionID, err)
		s.writeEngineError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// handleChoice implements POST /api/choice - the continue-or-opinion
// fork after deep analysis.
func (s *Server) handleChoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody struct {
		SessionID string `json:"sessionId"`
		Choice    string `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	reply, err := s.engine.RecordChoice(reqBody.SessionID, reqBody.Choice)
	if err != nil {
		s.writeEngineError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// handleDeepAnalysis implements POST /api/deep-analysis.
func (s *Server) handleDeepAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	reply, err := s.engine.DeepAnalysis(r.Context(), reqBody.SessionID)
	if err != nil {
		s.logger.Error("deep analysis failed for session %s: %v", reqBody.SessionID, err)
		s.writeEngineError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// handleContinueQuestion implements POST /api/continue-question - one
// more refining question after the user declines the final opinion.
func (s *Server) handleContinueQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	reply, err := s.engine.ContinueQuestion(r.Context(), reqBody.SessionID)
	if err != nil {
		s.logger.Error("continue question failed for session %s: %v", reqBody.SessionID, err)
		s.writeEngineError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// handleChairSummary implements POST /api/chair-summary.
func (s *Server) handleChairSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	reply, err := s.engine.ChairSummary(r.Context(), reqBody.SessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, conversation.ErrSessionFinalized) {
			status = http.StatusBadRequest
		}
		s.logger.Error("chair summary failed for session %s: %v", reqBody.SessionID, err)
		s.writeEngineError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// handleExternalDomainApproval implements POST /api/external-domain-approval.
func (s *Server) handleExternalDomainApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody struct {
		SessionID string `json:"sessionId"`
		Approved  bool   `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	reply, err := s.engine.ApproveExternalDomain(reqBody.SessionID, reqBody.Approved)
	if err != nil {
		s.writeEngineError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// handleClearSession implements POST /api/clear-session.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if reqBody.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	s.engine.ClearSession(reqBody.SessionID)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleSessions implements GET /api/sessions - lists live session ids.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.store.List())
}

// handleArchiveList implements GET /api/archive.
func (s *Server) handleArchiveList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.archive == nil {
		http.Error(w, "Archive not available", http.StatusServiceUnavailable)
		return
	}

	list, err := s.archive.List(r.Context(), 50)
	if err != nil {
		s.logger.Error("Failed to list archive: %v", err)
		http.Error(w, "Failed to list archive", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleArchiveGet implements GET /api/archive/:id.
func (s *Server) handleArchiveGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.archive == nil {
		http.Error(w, "Archive not available", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.URL.Path[len("/api/archive/"):]
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	archived, err := s.archive.Get(r.Context(), sessionID)
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "Archived session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("Failed to read archived session %s: %v", sessionID, err)
		http.Error(w, "Failed to read archived session", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, archived)
}

// handleLogs implements GET /api/logs - serves the in-memory log
// buffer, optionally filtered by domain and RFC3339 since timestamp.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	domain := query.Get("domain")
	sinceStr := query.Get("since")

	var since time.Time
	if sinceStr != "" {
		var err error
		since, err = time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			http.Error(w, "Invalid since parameter (use RFC3339)", http.StatusBadRequest)
			return
		}
	}

	logs := logx.GetRecentLogEntries(domain, since)
	if len(logs) > 1000 {
		logs = logs[len(logs)-1000:]
	}
	s.writeJSON(w, http.StatusOK, logs)
}

// handleHealth implements GET /api/healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// StartServer starts the HTTP server and shuts it down when ctx ends.
func (s *Server) StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting web server on %s", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck // Parent context is cancelled; we need a fresh context for shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown failed: %v", err)
		}
	}()

	return nil
}

// ListenAddr resolves the configured listen address with a fallback.
func ListenAddr() string {
	cfg, err := config.GetConfig()
	if err != nil || cfg.WebUI == nil || cfg.WebUI.Addr == "" {
		return ":8321"
	}
	return cfg.WebUI.Addr
}
