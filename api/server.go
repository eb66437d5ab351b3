package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wricardo/karel/game/engine"
	"github.com/wricardo/karel/game/history"
	"github.com/wricardo/karel/game/library"
	"github.com/wricardo/karel/game/program"
	"github.com/wricardo/karel/game/script"
	"github.com/wricardo/karel/game/service"
	"github.com/wricardo/karel/game/session"
	"github.com/wricardo/karel/transport/websocket"
)

// maxBodySize bounds request bodies (world files and Lua sources).
const maxBodySize = 1 << 20

// Server represents the REST API server
type Server struct {
	service service.KarelService
	hub     *websocket.Hub
	router  *mux.Router
	logger  *zap.Logger
}

// NewServer creates a new API server. hub may be nil, which disables /ws.
func NewServer(svc service.KarelService, hub *websocket.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: svc,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// World operations
	api.HandleFunc("/sessions/{id}/world", s.handleLoadWorld).Methods("POST")
	api.HandleFunc("/sessions/{id}/world", s.handleSaveSessionWorld).Methods("PUT")
	api.HandleFunc("/sessions/{id}/robot", s.handlePlaceRobot).Methods("POST")
	api.HandleFunc("/sessions/{id}/edit", s.handleEdit).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/sessions/{id}/render", s.handleRender).Methods("GET")

	// Programs
	api.HandleFunc("/sessions/{id}/run", s.handleRun).Methods("POST")
	api.HandleFunc("/sessions/{id}/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/sessions/{id}/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/programs", s.handleListPrograms).Methods("GET")

	// World library
	api.HandleFunc("/worlds", s.handleListWorlds).Methods("GET")
	api.HandleFunc("/worlds/{name}", s.handleGetWorld).Methods("GET")
	api.HandleFunc("/worlds/{name}", s.handleSaveWorld).Methods("PUT")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs every API request. WebSocket upgrades pass through
// untouched since they need the raw ResponseWriter.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps a service error onto an HTTP status.
func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var engErr *engine.Error
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, library.ErrWorldNotFound),
		errors.Is(err, program.ErrProgramNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrRunning),
		errors.Is(err, session.ErrNotRunning),
		errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrNoWorld),
		errors.Is(err, session.ErrNoRobot):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrNoProgram),
		errors.Is(err, library.ErrInvalidWorld),
		errors.Is(err, library.ErrInvalidName),
		errors.Is(err, script.ErrScript),
		errors.As(err, &engErr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrHistoryDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		World string `json:"world,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	info, err := s.service.CreateSession(r.Context(), req.World)
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}

	// Parse query parameters
	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	total := len(sessions)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// World Operation Handlers

// handleLoadWorld loads a library world ({"world": "maze"}) or a world file
// sent inline ({"name": "mine", "text": "Dimension: (3, 3)\n..."}).
func (s *Server) handleLoadWorld(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	var req struct {
		World string `json:"world,omitempty"`
		Name  string `json:"name,omitempty"`
		Text  string `json:"text,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	var (
		info *service.SessionInfo
		err  error
	)
	if req.Text != "" {
		info, err = s.service.LoadWorldText(r.Context(), sessionID, req.Name, req.Text)
	} else {
		info, err = s.service.LoadWorld(r.Context(), sessionID, req.World)
	}
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleSaveSessionWorld(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "World name is required")
		return
	}

	if err := s.service.SaveSessionWorld(r.Context(), mux.Vars(r)["id"], req.Name); err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"message":  "World saved successfully",
		"world_id": req.Name,
	})
}

func (s *Server) handlePlaceRobot(w http.ResponseWriter, r *http.Request) {
	var req service.PlaceRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	info, err := s.service.PlaceRobot(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req service.EditRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	info, err := s.service.EditWorld(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Reset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "World reset successfully",
		"session": info,
	})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.Render(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, out)
}

// Program Handlers

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req service.RunRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	resp, err := s.service.Run(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		respondErr(w, err)
		return
	}

	status := http.StatusOK
	if resp.Async {
		status = http.StatusAccepted
	}
	respondJSON(w, status, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Cancel(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Cancellation requested",
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	q := history.Query{
		Page:  1,
		Limit: 20,
		Order: "desc",
	}

	query := r.URL.Query()
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			q.Page = p
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			q.Limit = l
		}
	}

	if order := query.Get("order"); order == "asc" || order == "desc" {
		q.Order = order
	}

	page, err := s.service.GetRunHistory(r.Context(), mux.Vars(r)["id"], q)
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := s.service.ListPrograms(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, programs)
}

// World Library Handlers

func (s *Server) handleListWorlds(w http.ResponseWriter, r *http.Request) {
	worlds, err := s.service.ListWorlds(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, worlds)
}

func (s *Server) handleGetWorld(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(mux.Vars(r)["name"], library.Ext)

	detail, err := s.service.GetWorld(r.Context(), name)
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// handleSaveWorld stores the request body, a world file, in the library.
func (s *Server) handleSaveWorld(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(mux.Vars(r)["name"], library.Ext)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.service.SaveWorld(r.Context(), name, string(body)); err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"message":  "World saved successfully",
		"world_id": name,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket disabled", http.StatusNotFound)
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	// Verify session exists
	info, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, info.ID)
}
