package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"latinevents/internal/config"
	"latinevents/internal/ics"
	appLog "latinevents/internal/log"
	"latinevents/internal/metrics"
	"latinevents/internal/refresh"
	"latinevents/internal/session"
)

const (
	maxBodyBytes    = 64 << 10
	shutdownTimeout = 10 * time.Second
	calendarName    = "Latin Events"
)

// Refresher runs the feed crawler.
type Refresher interface {
	Run(ctx context.Context) (refresh.Result, error)
}

// Deps are the components the HTTP API drives.
type Deps struct {
	Sessions  *session.Registry
	Refresher Refresher
	Metrics   *metrics.Metrics
}

// Server provides the HTTP API for sessions and the feed refresh.
type Server struct {
	cfg       *config.Config
	mux       *http.ServeMux
	sessions  *session.Registry
	refresher Refresher
	metrics   *metrics.Metrics
	validate  *validator.Validate
	now       func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		sessions:  deps.Sessions,
		refresher: deps.Refresher,
		metrics:   deps.Metrics,
		validate:  validator.New(),
		now:       time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health and /metrics with
// HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="latinevents", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves h on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.handle("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	s.handle("/api/refresh-events", s.handleRefresh)

	s.handle("POST /api/sessions", s.handleCreateSession)
	s.handle("GET /api/sessions/{id}", s.handleGetSession)
	s.handle("DELETE /api/sessions/{id}", s.handleDeleteSession)
	s.handle("POST /api/sessions/{id}/filters", s.handleSetFilter)
	s.handle("POST /api/sessions/{id}/more", s.handleMore)
	s.handle("POST /api/sessions/{id}/reload", s.handleReload)
	s.handle("POST /api/sessions/{id}/scroll", s.handleScroll)
	s.handle("POST /api/sessions/{id}/panel", s.handlePanel)
	s.handle("GET /api/sessions/{id}/events.ics", s.handleCalendar)
}

// handle registers fn under pattern, instrumented with the pattern as route
// label.
func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, s.metrics.Middleware(pattern, fn))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleRefresh runs the crawler and, when it succeeds, reloads every
// session silently with a fresh cache-bust token.
//
// POST /api/refresh-events
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.refresher == nil {
		writeJSON(w, http.StatusInternalServerError, refresh.Result{Error: "refresh not configured"})
		return
	}

	// A client disconnect must not kill a running crawler.
	ctx := context.WithoutCancel(r.Context())

	res, err := s.refresher.Run(ctx)
	if errors.Is(err, refresh.ErrBusy) {
		writeJSON(w, http.StatusConflict, refresh.Result{Error: err.Error()})
		return
	}
	if err != nil {
		appLog.Error("refresh failed", err)
		writeJSON(w, http.StatusInternalServerError, refresh.Result{Error: err.Error()})
		return
	}
	if !res.OK {
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}

	opts := session.ReloadOptions{CacheBust: refresh.CacheBustToken(s.now()), Silent: true}
	if err := s.sessions.ReloadAll(ctx, opts); err != nil {
		// The crawler succeeded; sessions show the load error themselves.
		appLog.Warn("reload after refresh failed", "error", err.Error())
	}
	writeJSON(w, http.StatusOK, res)
}

type createSessionResponse struct {
	ID   string       `json:"id"`
	View session.View `json:"view"`
}

// handleCreateSession creates a session and runs its first load. A failed
// load still creates the session; the view carries the error message.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		appLog.Debug("initial load failed", "session", sess.ID())
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{ID: sess.ID(), View: sess.View()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type filterRequest struct {
	Field string `json:"field" validate:"required,oneof=region label style startDate"`
	Value string `json:"value"`
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req filterRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := sess.SetFilter(req.Field, req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

type moreResponse struct {
	Expanded bool         `json:"expanded"`
	View     session.View `json:"view"`
}

// handleMore is the reveal trigger, fired when the end of the list becomes
// visible.
func (s *Server) handleMore(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	expanded := sess.RequestMore()
	writeJSON(w, http.StatusOK, moreResponse{Expanded: expanded, View: sess.View()})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req session.ReloadOptions
	if !s.decode(w, r, &req, true) {
		return
	}
	if err := sess.Reload(r.Context(), req); err != nil {
		appLog.Debug("reload failed", "session", sess.ID())
	}
	writeJSON(w, http.StatusOK, sess.View())
}

type scrollRequest struct {
	Y *float64 `json:"y" validate:"required"`
}

func (s *Server) handleScroll(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req scrollRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	sess.Scroll(*req.Y)
	writeJSON(w, http.StatusOK, sess.View().Panel)
}

const (
	panelToggle   = "toggle"
	panelFloating = "floating"
)

type panelRequest struct {
	Action string `json:"action" validate:"required,oneof=toggle floating"`
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req panelRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	switch req.Action {
	case panelToggle:
		sess.TogglePanel()
	case panelFloating:
		sess.OpenFromFloating()
	}
	writeJSON(w, http.StatusOK, sess.View().Panel)
}

// handleCalendar exports the currently visible events as iCalendar.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	events := sess.VisibleEvents()

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="latin-events.ics"`)
	err := ics.Export(w, events, ics.Options{
		Name:     calendarName,
		Location: s.cfg.Location(),
		Now:      s.now(),
	})
	if err != nil {
		appLog.Error("calendar export failed", err, "session", sess.ID())
	}
}

// lookup resolves the {id} path value and writes a 404 for unknown ids.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return sess, true
}

// decode reads a JSON body into v and validates it. With allowEmpty an
// empty body leaves v at its zero value.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return false
		}
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: failed %q check", fe.Field(), fe.Tag()))
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
