package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"poolguard/config"
	"poolguard/core/pool"
	"poolguard/core/saturation"
	"poolguard/core/store"
	"poolguard/core/utils"
	"poolguard/tasks"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var processStartedAt = time.Now().UTC()

type Server struct {
	cfg        *config.AppConfig
	router     chi.Router
	httpServer *http.Server
	logger     *utils.Logger
	db         *sql.DB
	journal    store.DumpReportStore
	pools      []*pool.Pool
	reporters  []*saturation.Reporter
	pruner     *tasks.RetentionPruner
}

func NewServer(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger, pools []*pool.Pool, reporters []*saturation.Reporter, pruner *tasks.RetentionPruner) *Server {
	s := &Server{
		cfg:       cfg,
		router:    chi.NewRouter(),
		logger:    logger,
		db:        db,
		pools:     pools,
		reporters: reporters,
		pruner:    pruner,
	}
	if db != nil {
		s.journal = store.NewDumpReportStore(db)
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.healthz)
	s.router.Get("/readyz", s.readyz)
	s.router.Method("GET", "/api/pools", s.requireMetricsAuth(http.HandlerFunc(s.listPools)))
	s.router.Method("GET", "/api/dumps", s.requireMetricsAuth(http.HandlerFunc(s.listDumps)))

	reg := prometheus.NewRegistry()
	_ = reg.Register(collectors.NewGoCollector())
	_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "poolguard_uptime_seconds",
		Help: "Process uptime in seconds.",
	}, func() float64 {
		return time.Since(processStartedAt).Seconds()
	}))
	reg.MustRegister(newPoolsMetricsCollector(s.pools))
	reg.MustRegister(newSaturationMetricsCollector(s.reporters, s.pruner))

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	s.router.Method("GET", "/metrics", s.requireMetricsAuth(handler))
}

func (s *Server) requireMetricsAuth(next http.Handler) http.Handler {
	if s == nil || s.cfg == nil {
		return next
	}
	token := strings.TrimSpace(s.cfg.Observability.MetricsToken)
	if token == "" {
		return next
	}
	expected := "Bearer " + token
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != expected {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	appEnv := ""
	if s != nil && s.cfg != nil {
		appEnv = s.cfg.AppEnv
	}
	writeJSONPlain(w, http.StatusOK, map[string]any{
		"ok":         true,
		"now":        time.Now().UTC().Format(time.RFC3339Nano),
		"uptime_sec": int64(time.Since(processStartedAt).Seconds()),
		"app_env":    appEnv,
		"pools":      len(s.pools),
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s == nil {
		writeJSONPlain(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	if s.db == nil {
		// Journal disabled: nothing else to wait for.
		writeJSONPlain(w, http.StatusOK, map[string]any{"ok": true, "journal": false})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		writeJSONPlain(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSONPlain(w, http.StatusOK, map[string]any{"ok": true, "journal": true})
}

func (s *Server) listPools(w http.ResponseWriter, r *http.Request) {
	type poolView struct {
		Label    string        `json:"label"`
		Snapshot pool.Snapshot `json:"snapshot"`
	}
	res := make([]poolView, 0, len(s.pools))
	for _, p := range s.pools {
		if p == nil {
			continue
		}
		res = append(res, poolView{Label: p.Label(), Snapshot: p.Snapshot()})
	}
	writeJSONPlain(w, http.StatusOK, res)
}

func (s *Server) listDumps(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSONPlain(w, http.StatusOK, []store.DumpReport{})
		return
	}
	limit := 100
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	recs, err := s.journal.ListRecent(r.Context(), limit)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("list dumps: %v", err)
		}
		writeJSONPlain(w, http.StatusInternalServerError, map[string]any{"error": "journal query failed"})
		return
	}
	if recs == nil {
		recs = []store.DumpReport{}
	}
	writeJSONPlain(w, http.StatusOK, recs)
}

func writeJSONPlain(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
