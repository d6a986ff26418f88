package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quorum/internal/api"
	"quorum/internal/approval"
	"quorum/internal/config"
	"quorum/internal/ident"
	"quorum/internal/logging"
	"quorum/internal/query"
	"quorum/internal/store"
)

const flushTimeout = 5 * time.Second

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	cfg    *config.Config

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
		cfg:    cfg,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/tasks", authMiddleware(token, srv.handleTasks))
	mux.HandleFunc("/api/tasks/list", authMiddleware(token, srv.handleTaskList))
	mux.HandleFunc("/api/tasks/vote", authMiddleware(token, srv.handleVote))
	mux.HandleFunc("/api/tasks/delete", authMiddleware(token, srv.handleTaskDelete))
	mux.HandleFunc("/api/notifications", authMiddleware(token, srv.handleNotifications))
	mux.HandleFunc("/api/notifications/ack", authMiddleware(token, srv.handleAck))
	mux.HandleFunc("/api/notifications/dismiss", authMiddleware(token, srv.handleDismiss))
	mux.HandleFunc("/api/group-notifications", authMiddleware(token, srv.handleGroupNotifications))

	srv.server = &http.Server{
		Handler:           requestLogMiddleware(srv.log(), mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.daemon.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	tasks := make(map[string]int, len(status.Tasks))
	for st, count := range status.Tasks {
		tasks[st.String()] = count
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Tasks:        tasks,
		FanoutLag:    status.FanoutLag,
	})
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleTaskCreate(w, r)
	case http.MethodGet:
		s.handleTaskGet(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	uid, err := api.ParseID("uid", req.UID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := api.ParseOptionalID("id", req.ID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	gid, err := api.ParseOptionalID("gid", req.GID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	assignees, err := api.ParseIDs("assignee", req.Assignees)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	approvers, err := api.ParseIDs("approver", req.Approvers)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := s.daemon.engine.Create(r.Context(), approval.CreateRequest{
		UID:       uid,
		ID:        id,
		GID:       gid,
		Kind:      req.Kind,
		Duedate:   req.Duedate,
		Threshold: req.Threshold,
		Assignees: assignees,
		Approvers: approvers,
		Message:   req.Message,
		Payload:   req.Payload,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.TaskResponse{Task: api.FromTask(task)})
}

func (s *apiServer) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	uid, err := api.ParseID("uid", r.URL.Query().Get("uid"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := api.ParseID("id", r.URL.Query().Get("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := s.daemon.engine.Get(r.Context(), uid, id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: api.FromTask(task)})
}

func (s *apiServer) handleTaskList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	values := r.URL.Query()

	uid, err := api.ParseID("uid", values.Get("uid"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := api.ParseStatusFilter(values.Get("status"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	before, err := query.ParseToken(values.Get("token"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := query.Limit(s.cfg, parseLimit(values.Get("limit")))

	tasks, err := s.daemon.engine.List(r.Context(), uid, status, before, limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	page := query.PageOf(tasks, limit, func(t *store.Task) ident.ID { return t.ID })
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{
		Tasks:     api.FromTasks(page.Items),
		NextToken: page.NextToken,
	})
}

func (s *apiServer) handleVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	uid, err := api.ParseID("uid", req.UID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := api.ParseID("id", req.ID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	voter, err := api.ParseID("voter", req.Voter)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	decision, err := api.ParseDecision(req.Decision)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := s.daemon.engine.Vote(r.Context(), uid, id, voter, decision)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: api.FromTask(task)})
}

func (s *apiServer) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.DeleteTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	uid, err := api.ParseID("uid", req.UID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := api.ParseID("id", req.ID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.daemon.engine.Delete(r.Context(), uid, id); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *apiServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	values := r.URL.Query()

	uid, err := api.ParseID("uid", values.Get("uid"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := api.ParseStatusFilter(values.Get("status"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	before, err := query.ParseToken(values.Get("token"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := query.Limit(s.cfg, parseLimit(values.Get("limit")))

	rows, err := s.daemon.store.ListNotifications(r.Context(), uid, status, before, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	page := query.PageOf(rows, limit, func(n *store.Notification) ident.ID { return n.TID })
	s.writeJSON(w, http.StatusOK, api.NotificationListResponse{
		Notifications: api.FromNotifications(page.Items),
		NextToken:     page.NextToken,
	})
}

func (s *apiServer) handleAck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	uid, err := api.ParseID("uid", req.UID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tid, err := api.ParseID("tid", req.TID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sender, err := api.ParseID("sender", req.Sender)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	decision, err := api.ParseDecision(req.Decision)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := s.daemon.engine.Ack(r.Context(), uid, tid, sender, decision)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: api.FromTask(task)})
}

func (s *apiServer) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.DismissRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	uid, err := api.ParseID("uid", req.UID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tid, err := api.ParseID("tid", req.TID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sender, err := api.ParseID("sender", req.Sender)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.daemon.engine.Dismiss(r.Context(), uid, tid, sender); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"dismissed": true})
}

func (s *apiServer) handleGroupNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	values := r.URL.Query()

	gid, err := api.ParseID("gid", values.Get("gid"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := store.Role(s.cfg.Approval.DefaultGroupRole)
	if value := strings.TrimSpace(values.Get("role")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < int(store.RoleMember) || parsed > int(store.RoleOwner) {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid role %q", value))
			return
		}
		role = store.Role(parsed)
	}
	before, err := query.ParseToken(values.Get("token"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := query.Limit(s.cfg, parseLimit(values.Get("limit")))

	rows, err := s.daemon.store.ListGroupNotifications(r.Context(), gid, role, before, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	page := query.PageOf(rows, limit, func(g *store.GroupNotification) ident.ID { return g.TID })
	s.writeJSON(w, http.StatusOK, api.GroupNotificationListResponse{
		Notifications: api.FromGroupNotifications(page.Items),
		NextToken:     page.NextToken,
	})
}

// writeEngineError maps the engine's sentinel errors onto HTTP statuses.
func (s *apiServer) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, approval.ErrValidation), errors.Is(err, approval.ErrCodec):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, approval.ErrUnauthorized):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, approval.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, approval.ErrTerminal), errors.Is(err, approval.ErrDuplicateVote):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseLimit(value string) int {
	limit, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return limit
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
