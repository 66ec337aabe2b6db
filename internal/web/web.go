package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"dashcal/internal/clock"
	"dashcal/internal/config"
	"dashcal/internal/coordinator"
	"dashcal/internal/geometry"
	appLog "dashcal/internal/log"
	"dashcal/internal/metrics"
	"dashcal/internal/model"
)

// Server exposes the coordinator's state and layout over HTTP.
type Server struct {
	coord   *coordinator.Coordinator
	metrics *metrics.Metrics
	clock   clock.Clock
	mux     *http.ServeMux

	// ConfigPath, if set, is where card updates from PUT /api/config are
	// saved.
	ConfigPath string

	cfgMu sync.Mutex
	cfg   *config.Config
}

// NewServer constructs a new Server. m may be nil, in which case /metrics
// answers 404.
func NewServer(cfg *config.Config, coord *coordinator.Coordinator, m *metrics.Metrics, c clock.Clock) *Server {
	if c == nil {
		c = clock.Real{}
	}
	s := &Server{
		cfg:     cfg,
		coord:   coord,
		metrics: m,
		clock:   c,
		mux:     http.NewServeMux(),
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

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials count as disabled.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
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
			w.Header().Set("WWW-Authenticate", `Basic realm="dashcal", charset="UTF-8"`)
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

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
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
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/window", s.handleWindow)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("POST /api/view", s.handleView)
	s.mux.HandleFunc("POST /api/navigate", s.handleNavigate)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/config", s.handleConfigGet)
	s.mux.HandleFunc("PUT /api/config", s.handleConfigPut)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleWindow returns the view, focus date, window and refresh schedule.
func (s *Server) handleWindow(w http.ResponseWriter, _ *http.Request) {
	st, err := s.coord.State()
	if err != nil {
		appLog.Error("api window failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events []model.Event `json:"events"`
	Failed []string      `json:"failed"`
	Window model.Window  `json:"window"`
}

// handleEvents returns the current canonical event list. It never fetches;
// the list is whatever the last applied refresh produced.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	st, err := s.coord.State()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Events: s.coord.Events(),
		Failed: s.coord.Failed(),
		Window: st.Window,
	})
}

// handleSnapshot returns the laid-out current view.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.coord.Snapshot(s.clock.Now())
	if err != nil {
		appLog.Error("api snapshot failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleView switches the view.
//
// POST /api/view?type=month|week|agenda
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	v := geometry.ViewType(r.URL.Query().Get("type"))
	if !v.Valid() {
		writeError(w, http.StatusBadRequest, "type must be month, week or agenda")
		return
	}
	if err := s.coord.SetView(r.Context(), v); err != nil {
		s.writeCoordError(w, "api view", err)
		return
	}
	s.handleWindow(w, r)
}

// handleNavigate pages or jumps the focus date.
//
// POST /api/navigate?dir=prev|next|today
// POST /api/navigate?date=2006-01-02
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	var err error
	if d := q.Get("date"); d != "" {
		s.cfgMu.Lock()
		tz := s.cfg.Timezone
		s.cfgMu.Unlock()
		loc := resolveLocationOrLocal(tz)
		day, perr := time.ParseInLocation("2006-01-02", d, loc)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		err = s.coord.SetFocus(ctx, day)
	} else {
		dir, ok := parseDirection(q.Get("dir"))
		if !ok {
			writeError(w, http.StatusBadRequest, "dir must be prev, next or today")
			return
		}
		err = s.coord.Navigate(ctx, dir)
	}
	if err != nil {
		s.writeCoordError(w, "api navigate", err)
		return
	}
	s.handleWindow(w, r)
}

type refreshResponse struct {
	Events int      `json:"events"`
	Failed []string `json:"failed"`
}

// handleRefresh refetches the current window now.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.coord.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, coordinator.ErrStopped) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		appLog.Error("api refresh failed", err, "failed", res.Failed)
		writeJSON(w, http.StatusBadGateway, struct {
			Error  string   `json:"error"`
			Failed []string `json:"failed"`
		}{err.Error(), res.Failed})
		return
	}
	failed := res.Failed
	if failed == nil {
		failed = []string{}
	}
	writeJSON(w, http.StatusOK, refreshResponse{Events: len(res.Events), Failed: failed})
}

// handleConfigGet returns the resolved card configuration in use.
func (s *Server) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Config())
}

// handleConfigPut replaces the card configuration. The body is a card in
// any accepted shape, legacy fields included. The change goes through the
// coordinator's SetConfig, so a new interval rebuilds the refresh timers
// and a color-only change recolors without refetching.
func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	var card config.Card
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&card); err != nil {
		writeError(w, http.StatusBadRequest, "invalid card: "+err.Error())
		return
	}
	if err := card.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.coord.SetConfig(r.Context(), config.Resolve(card))
	if errors.Is(err, coordinator.ErrStopped) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	// SetConfig applies the card even when the refetch after it fails.
	s.cfgMu.Lock()
	s.cfg.Card = card
	if s.ConfigPath != "" {
		if serr := s.cfg.Save(s.ConfigPath); serr != nil {
			appLog.Error("saving config failed", serr, "path", s.ConfigPath)
		}
	}
	s.cfgMu.Unlock()

	if err != nil {
		s.writeCoordError(w, "api config", err)
		return
	}
	s.handleWindow(w, r)
}

// writeCoordError maps coordinator errors onto statuses. A failed refetch
// after a move still leaves the move applied.
func (s *Server) writeCoordError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, coordinator.ErrStopped) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	appLog.Error(what+" failed", err)
	writeError(w, http.StatusBadGateway, err.Error())
}

func parseDirection(s string) (geometry.Direction, bool) {
	switch s {
	case "prev":
		return geometry.Prev, true
	case "next":
		return geometry.Next, true
	case "today", "":
		return geometry.Today, true
	}
	return 0, false
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
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
