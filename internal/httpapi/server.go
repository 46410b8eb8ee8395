// Package httpapi serves the explorer, charting, intraday navigation and
// preference endpoints over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"intraview/internal/chart"
	"intraview/internal/market"
	"intraview/internal/prefs"
	"intraview/internal/query"
	"intraview/internal/store"
)

// QueryRunner runs explorer queries against data files.
type QueryRunner interface {
	Run(ctx context.Context, req query.Request) (*query.Result, error)
	Describe(ctx context.Context, path string) ([]query.Column, error)
}

// Config wires a Server to its dependencies. Nil dependencies disable the
// routes that need them (they answer 503).
type Config struct {
	Runner  QueryRunner
	Tree    *query.TreeCache
	History store.QueryHistory
	Catalog store.Catalog
	Bars    store.BarStore
	Ticks   store.TickStore
	Prefs   *prefs.Store

	AllowedOrigins []string
	MaxPoints      int
	Render         chart.RenderOptions
	Version        string
	Logger         *slog.Logger
}

// Server serves the intraview HTTP API.
type Server struct {
	cfg     Config
	session *market.Session
	log     *slog.Logger
}

// NewServer creates a new HTTP API server.
func NewServer(cfg Config) *Server {
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = chart.DefaultMaxPoints
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, session: market.NewNSESession(), log: log}
}

// Handler returns the routed API with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		s.requestLogger,
		middleware.Recoverer,
		corsMiddleware(s.cfg.AllowedOrigins),
	)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/files", s.handleFiles)
		r.Get("/files/schema", s.handleSchema)
		r.Post("/query", s.handleQuery)
		r.Get("/queries/recent", s.handleRecentQueries)

		r.Post("/chart", s.handleChart)
		r.Post("/chart/echarts", s.handleEChart)
		r.Post("/chart/render", s.handleRender)

		r.Get("/expiry-dates", s.handleExpiryDates)
		r.Get("/trading-dates/{expiry}", s.handleTradingDates)
		r.Get("/symbols/{date}", s.handleSymbols)
		r.Get("/ohlcv/{symbol}", s.handleOHLCV)
		r.Get("/tick/{symbol}", s.handleTicks)
		r.Get("/summary/{symbol}", s.handleSummary)
		r.Get("/series/{symbol}", s.handleSeries)

		r.Get("/prefs/recent/{kind}", s.handleGetRecent)
		r.Put("/prefs/recent/{kind}/{value}", s.handleTouchRecent)
		r.Delete("/prefs/recent/{kind}", s.handleClearRecent)
		r.Get("/prefs/values/{key}", s.handleGetValue)
		r.Put("/prefs/values/{key}", s.handleSetValue)
		r.Delete("/prefs/values/{key}", s.handleDeleteValue)
		r.Get("/prefs/events", s.handlePrefsEvents)
	})
	return r
}

// corsMiddleware allows the configured origins. "*" allows any origin but
// without credentials.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowed["*"] || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if allowed[origin] {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request through slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "intraview market data API",
		"version": s.cfg.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "intraview",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps err to a status code and writes it.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err,
			"request_id", middleware.GetReqID(r.Context()))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case chart.IsPrecondition(err),
		errors.Is(err, chart.ErrNotEnoughPoints),
		errors.Is(err, query.ErrOutsideDataDir),
		errors.Is(err, query.ErrUnsupportedFile),
		errors.Is(err, query.ErrInvalidQuery),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, query.ErrFileNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, query.ErrQueryTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("not configured")
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 32<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decoding body: %v", errBadRequest, err)
	}
	return nil
}

func errBadRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}
