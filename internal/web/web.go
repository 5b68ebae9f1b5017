package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"timetable/internal/config"
	"timetable/internal/ics"
	appLog "timetable/internal/log"
	"timetable/internal/model"
	"timetable/internal/refresh"
	"timetable/internal/schedule"
	"timetable/internal/timegrid"
	"timetable/internal/view"
)

// Schedule is the part of schedule.Service the server needs.
type Schedule interface {
	Today(ctx context.Context, program string, semester int, creds model.Credentials) schedule.Data
	Grid() *timegrid.Grid
	Now() time.Time
}

// Links builds web app deep links. remote.Client satisfies it.
type Links interface {
	WebLink(program string, semester, week int) string
	EventLink(program string, semester, week int, id model.ID) string
}

// Server exposes today's schedule as JSON and ICS.
type Server struct {
	cfg   *config.Config
	svc   Schedule
	links Links
	mux   *http.ServeMux

	// Service calls touch the cache files; one at a time.
	todayMu sync.Mutex

	// Last successful response per coordinate, valid until its refresh hint.
	snapMu sync.RWMutex
	snap   *snapshot
}

type snapshot struct {
	program  string
	semester int
	data     schedule.Data
	until    time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc Schedule, links Links) *Server {
	s := &Server{
		cfg:   cfg,
		svc:   svc,
		links: links,
		mux:   http.NewServeMux(),
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

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="timetable", charset="UTF-8"`)
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

// Serve listens on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/today", s.handleToday)
	s.mux.HandleFunc("/api/today.ics", s.handleTodayICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// todayResponse is the JSON response shape for /api/today.
type todayResponse struct {
	Program     string                         `json:"program"`
	Semester    int                            `json:"semester"`
	Week        int                            `json:"week"`
	Day         int                            `json:"day"`
	Events      model.Result[[]model.Event]    `json:"events"`
	Lecturers   model.Result[[]model.Lecturer] `json:"lecturers"`
	View        *view.View                     `json:"view,omitempty"`
	NextRefresh time.Time                      `json:"next_refresh"`
	WebLink     string                         `json:"web_link,omitempty"`
}

// Today loads today's data for program/semester, reusing the last
// successful result until the view can change. Used by the HTTP handlers
// and the serve command's prefetch job.
func (s *Server) Today(ctx context.Context, program string, semester int) schedule.Data {
	now := s.svc.Now()

	s.snapMu.RLock()
	snap := s.snap
	s.snapMu.RUnlock()
	if snap != nil && snap.program == program && snap.semester == semester && now.Before(snap.until) {
		return snap.data
	}

	s.todayMu.Lock()
	data := s.svc.Today(ctx, program, semester, s.cfg.Credentials)
	s.todayMu.Unlock()

	if data.Events.OK() && data.Lecturers.OK() {
		s.snapMu.Lock()
		s.snap = &snapshot{
			program:  program,
			semester: semester,
			data:     data,
			until:    refresh.Next(s.svc.Grid(), now, data.Context.Midnight, data.Context.NextMidnight),
		}
		s.snapMu.Unlock()
	}
	return data
}

// handleToday returns today's events, the lecturer directory, the current
// view and the next refresh hint.
//
// GET /api/today?program=bmm&semester=4&limit=4
func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	program, semester := s.coordinate(r)
	limit := parseIntDefault(r.URL.Query().Get("limit"), s.cfg.MaxEvents)

	data := s.Today(r.Context(), program, semester)
	tc := data.Context

	resp := todayResponse{
		Program:     program,
		Semester:    semester,
		Week:        tc.Week,
		Day:         tc.Day,
		Events:      data.Events,
		Lecturers:   data.Lecturers,
		NextRefresh: refresh.Next(s.svc.Grid(), s.svc.Now(), tc.Midnight, tc.NextMidnight),
	}
	if data.Events.OK() {
		v := view.Select(data.Events.Value, s.svc.Now(), tc.Midnight, limit)
		resp.View = &v
	}
	if s.links != nil {
		resp.WebLink = s.links.WebLink(program, semester, tc.Week)
	}

	appLog.Debug("api today request",
		"program", program,
		"semester", semester,
		"events_ok", data.Events.OK(),
		"lecturers_ok", data.Lecturers.OK(),
	)
	writeJSON(w, http.StatusOK, resp)
}

// handleTodayICS returns today's events as an iCalendar file.
func (s *Server) handleTodayICS(w http.ResponseWriter, r *http.Request) {
	program, semester := s.coordinate(r)
	data := s.Today(r.Context(), program, semester)
	if !data.Events.OK() {
		writeError(w, http.StatusBadGateway, data.Events.Err.Message)
		return
	}

	opts := ics.Options{
		Program:  program,
		Semester: semester,
		Week:     data.Context.Week,
		Midnight: data.Context.Midnight,
	}
	if s.links != nil {
		opts.Links = s.links
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := ics.Export(w, data.Events.Value, opts); err != nil {
		appLog.Error("failed to write ICS response", err)
	}
}

func (s *Server) coordinate(r *http.Request) (string, int) {
	q := r.URL.Query()
	program := q.Get("program")
	if program == "" {
		program = s.cfg.Program
	}
	semester := parseIntDefault(q.Get("semester"), s.cfg.Semester)
	if semester <= 0 {
		semester = s.cfg.Semester
	}
	return program, semester
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
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
