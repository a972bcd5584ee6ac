// Package server exposes the scheduler over HTTP: run control, live settings,
// result lookups, the TSV export, run history and a WebSocket progress stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/config"
	"github.com/lawnchairsociety/combatsim/internal/database"
	"github.com/lawnchairsociety/combatsim/internal/export"
	"github.com/lawnchairsociety/combatsim/internal/gamedata"
	"github.com/lawnchairsociety/combatsim/internal/logger"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

// maxRequestBody caps JSON request bodies
const maxRequestBody = 1 << 16

// Runner is the part of the scheduler the API drives.
type Runner interface {
	EnqueueAndRun(scope simulation.Scope) ([]simulation.Notice, error)
	Cancel() error
	Result(kind string, id int) (*combat.Result, bool)
	Snapshot() *simulation.Table
	InProgress() bool
	QueueLength() int

	SetPlayer(p combat.Player) error
	SetOptions(o combat.Options) error
	SetFilters(f simulation.Filters) error
	Filters() simulation.Filters
	Reanalyze() error
}

// Server serves the API for one scheduler.
type Server struct {
	cfg         *config.Config
	data        *gamedata.Data
	runner      Runner
	valuator    Valuator
	db          *database.Database
	hub         *Hub
	connLimiter *ConnLimiter
	authLimiter *AuthRateLimiter
	httpServer  *http.Server

	// settingsMu guards the run input sections of cfg
	settingsMu sync.RWMutex

	mu           sync.Mutex
	shutdownOnce sync.Once
	StartTime    time.Time
}

// NewServer creates a server. Register Hub() as a scheduler listener to feed
// the progress stream.
func NewServer(cfg *config.Config, data *gamedata.Data, runner Runner) *Server {
	return &Server{
		cfg:         cfg,
		data:        data,
		runner:      runner,
		hub:         NewHub(),
		connLimiter: NewConnLimiter(cfg.API.Connections),
		authLimiter: NewAuthRateLimiter(cfg.API.RateLimit),
		StartTime:   time.Now(),
	}
}

// SetDatabase enables the history endpoints.
func (s *Server) SetDatabase(db *database.Database) {
	s.db = db
}

// Hub returns the progress stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/runs", s.requireToken(s.handleStartRun))
	mux.HandleFunc("POST /v1/runs/cancel", s.requireToken(s.handleCancelRun))
	mux.HandleFunc("GET /v1/results/{kind}/{id}", s.handleResult)
	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/settings", s.requireToken(s.handleUpdateSettings))
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("GET /v1/history/{key}", s.handleHistoryRun)
	mux.HandleFunc("GET /ws", s.handleWebSocketUpgrade)
	if s.cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return mux
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	logger.Info("API server listening", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, disconnects stream subscribers and
// waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpServer
		s.mu.Unlock()

		if srv != nil {
			err = srv.Shutdown(ctx)
		}
		s.hub.Close()
		s.authLimiter.Stop()
		logger.Info("API server shutdown complete")
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"in_progress":  s.runner.InProgress(),
		"queue_length": s.runner.QueueLength(),
		"subscribers":  s.hub.Count(),
		"uptime_s":     int64(time.Since(s.StartTime).Seconds()),
	})
}

type runRequest struct {
	Scope string `json:"scope"`
}

type runResponse struct {
	Scope   string              `json:"scope"`
	Notices []simulation.Notice `json:"notices"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	scope, err := simulation.ParseScope(req.Scope)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	notices, err := s.runner.EnqueueAndRun(scope)
	switch {
	case errors.Is(err, simulation.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, simulation.ErrUnknownScope):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, simulation.ErrSchedulerClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		logger.Error("Failed to start run", "scope", scope.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	for _, n := range notices {
		logger.Warning("Simulation notice", "scope", scope.String(), "message", n.Message)
	}
	s.hub.Notices(notices)
	logger.Info("Run requested", "scope", scope.String(), "client_ip", getRealIP(r))

	if notices == nil {
		notices = []simulation.Notice{}
	}
	writeJSON(w, http.StatusAccepted, runResponse{Scope: scope.String(), Notices: notices})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Cancel(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	logger.Info("Run cancel requested", "client_ip", getRealIP(r))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	name, ok := s.entityName(kind, id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown %s %d", kind, id))
		return
	}
	result, ok := s.runner.Result(kind, id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no result for %s %d", kind, id))
		return
	}
	writeJSON(w, http.StatusOK, export.NewView(kind, id, name, result))
}

// entityName resolves the display name of a monster, dungeon or slayer tier
func (s *Server) entityName(kind string, id int) (string, bool) {
	switch kind {
	case simulation.KindMonster:
		if m, ok := s.data.Monster(id); ok {
			return m.Name, true
		}
	case simulation.KindDungeon:
		if dg, ok := s.data.Dungeon(id); ok {
			return dg.Name, true
		}
	case simulation.KindSlayerTier:
		for _, tier := range s.data.SlayerTiers() {
			if tier.ID == id {
				return tier.Name, true
			}
		}
	}
	return "", false
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	table := s.runner.Snapshot()
	if table == nil {
		writeError(w, http.StatusServiceUnavailable, simulation.ErrSchedulerClosed.Error())
		return
	}

	// Buffer so a column error becomes a 400 instead of a truncated body
	var buf strings.Builder
	if err := export.WriteTSV(&buf, s.data, table, s.runner.Filters(), s.cfg.Export); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	w.Header().Set("ETag", strconv.Quote(s.Fingerprint()))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, buf.String())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		logger.Error("Failed to list run history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

type historyResult struct {
	Kind       string          `json:"kind"`
	EntityID   int             `json:"entity_id"`
	Name       string          `json:"name"`
	SimSuccess bool            `json:"sim_success"`
	Reason     string          `json:"reason,omitempty"`
	Metrics    json.RawMessage `json:"metrics"`
}

func (s *Server) handleHistoryRun(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	run, err := s.db.GetRun(r.PathValue("key"))
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		logger.Error("Failed to load run", "key", r.PathValue("key"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	rows, err := s.db.GetRunResults(run.ID)
	if err != nil {
		logger.Error("Failed to load run results", "key", run.Key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	results := make([]historyResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, historyResult{
			Kind:       row.Kind,
			EntityID:   row.EntityID,
			Name:       row.Name,
			SimSuccess: row.SimSuccess,
			Reason:     row.Reason,
			Metrics:    json.RawMessage(row.Metrics),
		})
	}

	writeJSON(w, http.StatusOK, struct {
		*database.Run
		Results []historyResult `json:"results"`
	}{run, results})
}

// handleWebSocketUpgrade subscribes a client to the progress stream.
func (s *Server) handleWebSocketUpgrade(w http.ResponseWriter, r *http.Request) {
	clientIP := getRealIP(r)

	release, ok := s.connLimiter.Acquire(clientIP)
	if !ok {
		logger.Warning("WebSocket connection rejected - limit exceeded",
			"remote_addr", r.RemoteAddr,
			"client_ip", clientIP)
		http.Error(w, "Too many connections. Please try again later.", http.StatusTooManyRequests)
		return
	}

	wsCfg := s.cfg.API.WebSocket
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := wsCfg.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("WebSocket connection rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("WebSocket upgrade failed", "error", err)
		release()
		return
	}

	logger.Info("Stream subscriber connected", "client_ip", clientIP)
	go func() {
		defer release()
		s.hub.Serve(conn, wsCfg.MaxMessageSize)
		logger.Info("Stream subscriber disconnected", "client_ip", clientIP)
	}()
}

// getRealIP prefers X-Forwarded-For, then X-Real-IP, then the remote address.
func getRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// "client, proxy1, proxy2"
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return extractIP(r.RemoteAddr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
