// Package server exposes the analysis pipeline over HTTP: a multipart upload
// endpoint, a health check, and a ZIP download of retained result bundles.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/poromet/poromet/internal/analysis"
)

// Options configure the HTTP layer.
type Options struct {
	// MaxUploadBytes caps the multipart request body.
	MaxUploadBytes int64

	// AllowedOrigins is the CORS allow-list for the browser frontend.
	AllowedOrigins []string

	// ResultCapacity bounds the number of retained results.
	ResultCapacity int
}

// Server routes analysis requests into the pipeline.
type Server struct {
	analyzer *analysis.Analyzer
	store    *ResultStore
	opts     Options
	log      *logrus.Logger
}

// New creates a Server around an Analyzer.
func New(analyzer *analysis.Analyzer, opts Options, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.ResultCapacity <= 0 {
		opts.ResultCapacity = 50
	}
	return &Server{
		analyzer: analyzer,
		store:    NewResultStore(opts.ResultCapacity),
		opts:     opts,
		log:      log,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()

	mux.Use(s.loggingMiddleware)
	if len(s.opts.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}))
	}

	mux.Get("/api/health", s.handleHealth)
	mux.Post("/api/analyze", s.wrap(s.handleAnalyze))
	mux.Get("/api/download/{id}", s.wrap(s.handleDownload))

	return mux
}

// ListenAndServe runs the server on the given port until the listener fails.
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", addr).Info("poromet API listening")
	return srv.ListenAndServe()
}

// responseWriter captures the status code and byte count for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.statusCode,
			"duration": time.Since(start).String(),
			"bytes":    wrapped.written,
			"ip":       r.RemoteAddr,
		}).Info("request")
	})
}
