package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/RoeeEidan/Chain-Prices/internal/metrics"
	"github.com/RoeeEidan/Chain-Prices/internal/publish"
	"github.com/RoeeEidan/Chain-Prices/internal/repository"
	"github.com/RoeeEidan/Chain-Prices/internal/series"
	"github.com/RoeeEidan/Chain-Prices/internal/sparkline"
)

const (
	maxWindowDays = 90
	maxSamplePts  = 1000
)

var errBadParam = errors.New("bad parameter")

type ServerConfig struct {
	Port        int
	CORSOrigin  string
	DefaultDays int
	Precision   int
	Hub         *publish.Hub
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

type Server struct {
	store       repository.SeriesStore
	query       *series.Query
	hub         *publish.Hub
	metrics     *metrics.Metrics
	format      sparkline.Formatter
	defaultDays int
	now         func() time.Time
	httpServer  *http.Server
	log         *log.Entry
}

func NewServer(store repository.SeriesStore, query *series.Query, cfg ServerConfig) *Server {
	if cfg.DefaultDays <= 0 || cfg.DefaultDays > maxWindowDays {
		cfg.DefaultDays = 7
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		store:       store,
		query:       query,
		hub:         cfg.Hub,
		metrics:     cfg.Metrics,
		format:      sparkline.NewFormatter(cfg.Precision),
		defaultDays: cfg.DefaultDays,
		now:         cfg.Now,
		log:         log.WithField("component", "api"),
	}

	mux := http.NewServeMux()

	// Series routes
	mux.HandleFunc("GET /v1/series", s.handleSeries)
	mux.HandleFunc("GET /v1/series/{id}/sampled", s.handleSampled)
	mux.HandleFunc("GET /v1/assets", s.handleAssets)

	// Live stream
	if s.hub != nil {
		mux.Handle("GET /v1/stream", s.hub)
	}

	// Dashboard
	mux.HandleFunc("GET /{$}", s.handleDashboard)

	// Ops
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           corsMiddleware(mux, cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	s.log.Infof("REST API server started on http://localhost%s", s.httpServer.Addr)
	s.log.Infof("health check: http://localhost%s/health", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	closed := make(chan error, 1)
	go func() { closed <- s.Start() }()

	select {
	case err := <-closed:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

// --- middleware ---

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

// parseIntParam reads an integer query parameter within [lo, hi]. A missing
// value yields fallback; anything else out of range is an error.
func parseIntParam(r *http.Request, name string, fallback, lo, hi int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s must be an integer between %d and %d", errBadParam, name, lo, hi)
	}
	return n, nil
}

func (s *Server) parseDays(r *http.Request) (int, error) {
	return parseIntParam(r, "days", s.defaultDays, 1, maxWindowDays)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
