// Package server exposes the submission pipeline over HTTP and a gRPC health endpoint.
package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/photon-decode/internal/common"
	"github.com/joseph-ayodele/photon-decode/internal/contract"
)

// RouterConfig shapes the HTTP surface.
type RouterConfig struct {
	BasePath       string        // default "/api"
	RequestTimeout time.Duration // default 90s
	// StaticPrefix/StaticDir serve locally stored thumbnails; empty disables.
	StaticPrefix string
	StaticDir    string
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h *Handlers, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	base := "/" + strings.Trim(cfg.BasePath, "/")
	if base == "/" {
		base = "/api"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestContext)
	r.Use(accessLog(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", h.Health)

	if cfg.StaticPrefix != "" && cfg.StaticDir != "" {
		prefix := "/" + strings.Trim(cfg.StaticPrefix, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", staticFiles(cfg.StaticDir)))
	}

	r.Route(base, func(r chi.Router) {
		r.Use(apiVersion)
		r.Route("/submissions", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/upload", h.Upload)
			r.Get("/export.xlsx", h.Export)
			r.Get("/{id}", h.Get)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	return r
}

// requestContext copies chi's request id into the common context key.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(common.WithRequestID(r.Context(), id))
			w.Header().Set("X-Request-Id", id)
		}
		next.ServeHTTP(w, r)
	})
}

func apiVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-API-Version", contract.Version)
		next.ServeHTTP(w, r)
	})
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", common.RequestIDFromContext(r.Context()),
			)
		})
	}
}

// staticFiles serves files only; directory listings are 404.
func staticFiles(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		fs.ServeHTTP(w, r)
	})
}
