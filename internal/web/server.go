// Package web serves the landing page and the Magic ToDo page over HTTP.
// Every browser session gets its own board.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/thinkpilot/internal/logbook"
	"github.com/kingrea/thinkpilot/internal/logging"
	"github.com/kingrea/thinkpilot/internal/task"
	"github.com/kingrea/thinkpilot/internal/version"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

const (
	// SessionCookie names the cookie carrying the session id.
	SessionCookie = "thinkpilot_session"

	todoPath = "/todo-pilot"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Server wraps the HTTP listener and the per-session boards.
type Server struct {
	settings Settings
	newBoard func() *task.Board
	logger   *logging.Logger
	journal  *logbook.Logbook
	clock    func() time.Time
	sessions *sessionStore

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithBoardFactory sets how fresh session boards are built.
func WithBoardFactory(fn func() *task.Board) Option {
	return func(s *Server) {
		if fn != nil {
			s.newBoard = fn
		}
	}
}

// WithLogger overrides the default discarding logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLogbook records board activity in the session journal.
func WithLogbook(lb *logbook.Logbook) Option {
	return func(s *Server) {
		s.journal = lb
	}
}

// WithClock allows tests to control session expiry.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	settings.normalize()
	s := &Server{
		settings: settings,
		newBoard: func() *task.Board { return task.NewBoard() },
		logger:   logging.Discard(),
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.sessions = newSessionStore(s.settings.SessionTTL, s.settings.MaxSessions, s.newBoard, s.now)
	return s
}

// Handler returns the routing table. Start serves it; tests may mount it
// on httptest directly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleLanding)
	mux.HandleFunc(todoPath, s.handleTodo)
	mux.HandleFunc(todoPath+"/add", s.handleAdd)
	mux.HandleFunc(todoPath+"/toggle", s.handleToggle)
	mux.HandleFunc(todoPath+"/steps", s.handleSteps)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("web: server is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("web: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.now()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", "err", err)
		}
	}()
	s.logger.Info("listening", "addr", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	server := s.server
	if s.listener == nil || server == nil {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusDraining
	s.mu.Unlock()
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	// In-flight handlers read the status, so the lock is released while draining.
	if err := server.Shutdown(deadline); err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = nil
	s.server = nil
	s.mu.Unlock()
	s.logger.Info("stopped")
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ExpireSessions drops boards idle for longer than the session TTL and
// reports how many were removed.
func (s *Server) ExpireSessions() int {
	n := s.sessions.expire()
	if n > 0 {
		s.logger.Debug("sessions expired", "count", n)
	}
	return n
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.now().Sub(s.startTime).Seconds())
}

// session resolves the caller's session, starting a new one (and setting
// the cookie) when the cookie is missing or expired.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if sess, ok := s.sessions.get(c.Value); ok {
			return sess
		}
	}
	sess := s.sessions.create()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Debug("session started", "session", sess.id)
	s.journalFor(sess).Info("Session opened")
	return sess
}

func (s *Server) journalFor(sess *session) *logbook.Logbook {
	if s.journal == nil {
		return nil
	}
	return s.journal.ForSession(shortID(sess.id))
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	s.render(w, "landing", nil)
}

type todoPage struct {
	Snapshot task.Snapshot
	Flash    string
}

func (s *Server) handleTodo(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	sess := s.session(w, r)
	s.render(w, "todo", todoPage{Snapshot: sess.board.Snapshot(), Flash: sess.takeFlash()})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if !s.parseForm(w, r) {
		return
	}
	sess := s.session(w, r)
	sess.board.SetInput(r.PostForm.Get("text"))
	if added, ok := sess.board.Add(); ok {
		s.journalFor(sess).Info("Task %d added: %s", added.ID, added.Text)
		s.logger.Debug("task added", "session", sess.id, "id", added.ID)
	}
	redirectToTodo(w, r)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if !s.parseForm(w, r) {
		return
	}
	id, ok := formID(w, r)
	if !ok {
		return
	}
	sess := s.session(w, r)
	if sess.board.Toggle(id) {
		s.journalFor(sess).Info("Task %d toggled", id)
	}
	redirectToTodo(w, r)
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if !s.parseForm(w, r) {
		return
	}
	id, ok := formID(w, r)
	if !ok {
		return
	}
	sess := s.session(w, r)
	steps, err := sess.board.RequestSteps(r.Context(), id)
	if err != nil {
		s.logger.Error("break into steps", "session", sess.id, "id", id, "err", err)
		s.journalFor(sess).Error("Task %d steps failed: %v", id, err)
		sess.setFlash("Could not break the task into steps. Try again later.")
		redirectToTodo(w, r)
		return
	}
	if sess.board.ApplySteps(id, steps) {
		s.journalFor(sess).Info("Task %d broken into %d steps", id, len(steps))
	}
	redirectToTodo(w, r)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	sess := s.session(w, r)
	writeJSON(w, http.StatusOK, sess.board.Snapshot())
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Sessions      int    `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		Version:       version.Version,
		UptimeSeconds: s.uptimeSeconds(),
		Sessions:      s.sessions.len(),
	})
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload exceeds limit"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form"})
		return false
	}
	return true
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("render page", "page", name, "err", err)
	}
}

func formID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.PostForm.Get("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return 0, false
	}
	return id, true
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	return false
}

func redirectToTodo(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, todoPath, http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
