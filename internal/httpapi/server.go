package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raghavared/agent-maestro/internal/broadcast"
	"github.com/raghavared/agent-maestro/internal/config"
	"github.com/raghavared/agent-maestro/internal/ds"
	"github.com/raghavared/agent-maestro/internal/observability"
	"github.com/raghavared/agent-maestro/internal/orchestrator"
	"github.com/raghavared/agent-maestro/internal/session"
	"github.com/raghavared/agent-maestro/internal/store"
)

// sessionHeader lets a worker bind once and omit session_id per command.
const sessionHeader = "X-Maestro-Session"

type Server struct {
	cfg       config.Config
	manager   *orchestrator.Manager
	hub       *broadcast.Hub
	metrics   *observability.Metrics
	storeMode string
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, manager *orchestrator.Manager, hub *broadcast.Hub, metrics *observability.Metrics, storeMode string) *Server {
	return &Server{
		cfg:       cfg,
		manager:   manager,
		hub:       hub,
		metrics:   metrics,
		storeMode: storeMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers unless explicitly opened up.
				// Non-browser clients omit Origin and are allowed through.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/strategies", s.handleListStrategies)

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/sessions/{id}", s.handleGetSession)
	r.Delete("/v1/sessions/{id}", s.handleDeleteSession)
	r.Post("/v1/sessions/{id}/stop", s.handleStopSession)
	r.Get("/v1/sessions/{id}/structure", s.handleSessionStructure)
	r.Get("/v1/sessions/{id}/timeline", s.handleSessionTimeline)
	r.Post("/v1/sessions/{id}/commands", s.handleCommand)
	r.Post("/v1/commands", s.handleCommand)

	r.Post("/v1/tasks", s.handleCreateTask)
	r.Get("/v1/tasks", s.handleListTasks)
	r.Get("/v1/tasks/{id}", s.handleGetTask)
	r.Post("/v1/tasks/{id}/status", s.handleUpdateTaskStatus)

	r.Get("/v1/events/ws", s.handleEventsWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode,
		"observers":  s.hub.Observers(),
	})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"strategies": s.manager.Registry().List(),
	})
}

type createSessionRequest struct {
	StrategyID string   `json:"strategy_id"`
	TaskIDs    []string `json:"task_ids"`
	AddedBy    string   `json:"added_by"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	view, err := s.manager.CreateSession(r.Context(), req.StrategyID, req.TaskIDs, ds.AddedBy(req.AddedBy))
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": s.manager.ListSessions(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondManagerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type stopSessionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	var req stopSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	view, err := s.manager.StopSession(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleSessionStructure(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	if view.DataStructure == nil {
		respondError(w, http.StatusNotFound, "no_data_structure", "session strategy has no data structure")
		return
	}
	respondJSON(w, http.StatusOK, view.DataStructure)
}

func (s *Server) handleSessionTimeline(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": view.Session.ID,
		"timeline":   view.Session.Timeline,
	})
}

type commandRequest struct {
	SessionID string `json:"session_id"`
	orchestrator.Command
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		sessionID = strings.TrimSpace(req.SessionID)
	}
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.Header.Get(sessionHeader))
	}
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "session id is required via path, body or "+sessionHeader)
		return
	}

	res, err := s.manager.Execute(r.Context(), sessionID, req.Command)
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	task, err := s.manager.CreateTask(r.Context(), req.Title, req.Description)
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = parsed
	}
	tasks, err := s.manager.ListTasks(r.Context(), limit)
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	if tasks == nil {
		tasks = []store.TaskRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.manager.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

type updateTaskStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req updateTaskStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	task, err := s.manager.UpdateTaskStatus(r.Context(), chi.URLParam(r, "id"), store.UserStatus(req.Status))
	if err != nil {
		s.respondManagerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// respondManagerError maps the orchestrator error taxonomy onto HTTP: bad
// input 400, missing things 404, everything the strategy or lifecycle
// refuses 409 with the allowed alternatives in the body.
func (s *Server) respondManagerError(w http.ResponseWriter, err error) {
	var notAllowed *orchestrator.CommandNotAllowedError
	if errors.As(err, &notAllowed) {
		respondJSON(w, http.StatusConflict, errorResponse{
			Error:   notAllowed.Error(),
			Code:    "command_not_allowed",
			Allowed: notAllowed.Allowed,
		})
		return
	}
	var invalid *orchestrator.InvalidTransitionError
	if errors.As(err, &invalid) {
		allowed := make([]string, 0, len(invalid.Allowed))
		for _, st := range invalid.Allowed {
			allowed = append(allowed, string(st))
		}
		respondJSON(w, http.StatusConflict, errorResponse{
			Error:   invalid.Error(),
			Code:    "invalid_transition",
			Allowed: strings.Join(allowed, ","),
		})
		return
	}
	var terminal *orchestrator.AlreadyTerminalError
	if errors.As(err, &terminal) {
		respondError(w, http.StatusConflict, "already_terminal", terminal.Error())
		return
	}

	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, ds.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, session.ErrTerminalState):
		respondError(w, http.StatusConflict, "terminal_state", err.Error())
	case errors.Is(err, orchestrator.ErrAlreadyProcessing):
		respondError(w, http.StatusConflict, "already_processing", err.Error())
	case errors.Is(err, orchestrator.ErrNoDataStructure):
		respondError(w, http.StatusBadRequest, "no_data_structure", err.Error())
	case errors.Is(err, orchestrator.ErrNoCurrentItem):
		respondError(w, http.StatusBadRequest, "no_current_item", err.Error())
	case errors.Is(err, ds.ErrDuplicateItem):
		respondError(w, http.StatusConflict, "duplicate_item", err.Error())
	case errors.Is(err, ds.ErrCycleDetected):
		respondError(w, http.StatusConflict, "cycle_detected", err.Error())
	default:
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Allowed string `json:"allowed,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
