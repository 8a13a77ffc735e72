// Package api exposes the HTTP interface for the manual finder service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/jobs"
	"github.com/ati-tools/manualfinder/internal/manual"
)

// Downloader fetches and validates a document by URL. Satisfied by
// resolver.Fetcher.
type Downloader interface {
	DownloadPDF(ctx context.Context, url string) ([]byte, bool)
}

// Scanner collects candidate document links from an HTML page. Satisfied by
// resolver.PageScanner.
type Scanner interface {
	Scan(ctx context.Context, pageURL, modelToken string) []string
}

// Config carries the server's HTTP-level settings.
type Config struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	SignedURLTTL   time.Duration
	MaxUploadBytes int64
}

// Server wires HTTP handlers to the stores and the job queue.
type Server struct {
	router     chi.Router
	projects   manual.ProjectStore
	items      manual.ItemStore
	cache      manual.CacheStore
	blob       manual.BlobStore
	parser     manual.ContractParser
	progress   *jobs.ProgressStore
	queue      *jobs.Queue
	runner     *jobs.Runner
	downloader Downloader
	scanner    Scanner
	idGen      manual.IDGenerator
	clock      manual.Clock
	cfg        Config
	logger     *zap.Logger
}

// Deps bundles the server's dependencies.
type Deps struct {
	Projects   manual.ProjectStore
	Items      manual.ItemStore
	Cache      manual.CacheStore
	Blob       manual.BlobStore
	Parser     manual.ContractParser
	Progress   *jobs.ProgressStore
	Queue      *jobs.Queue
	Runner     *jobs.Runner
	Downloader Downloader
	Scanner    Scanner
	IDGen      manual.IDGenerator
	Clock      manual.Clock
	Logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 24 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		projects:   deps.Projects,
		items:      deps.Items,
		cache:      deps.Cache,
		blob:       deps.Blob,
		parser:     deps.Parser,
		progress:   deps.Progress,
		queue:      deps.Queue,
		runner:     deps.Runner,
		downloader: deps.Downloader,
		scanner:    deps.Scanner,
		idGen:      deps.IDGen,
		clock:      deps.Clock,
		cfg:        cfg,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/projects", func(r chi.Router) {
			r.Post("/", s.createProject)
			r.Route("/{project_id}", func(r chi.Router) {
				r.Get("/progress", s.projectProgress)
				r.Post("/resolve", s.startResolve)
				r.Post("/archive", s.startArchive)
			})
		})
		r.Post("/items/{item_id}/retry", s.retryItem)
		r.Patch("/items/{item_id}", s.patchItem)
		r.Get("/products", s.listProducts)
		r.Route("/archives/{job_id}", func(r chi.Router) {
			r.Get("/progress", s.archiveProgress)
			r.Get("/file", s.archiveFile)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The cache store is the critical dependency; probe it with a lookup.
	if _, err := s.cache.List(r.Context(), "__readyz__"); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
