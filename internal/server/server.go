// Package server exposes the registry files and run history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/idhash"
	"github.com/0xsequence/token-directory/internal/observability"
	"github.com/0xsequence/token-directory/internal/storage"
)

// Default limits.
const (
	DefaultRunLimit       = 20
	MaxRunLimit           = 500
	DefaultRequestTimeout = 15 * time.Second
	shutdownTimeout       = 10 * time.Second
)

// Files is the read side of the registry file store.
type Files interface {
	ReadFile(ctx context.Context, folder, file string) ([]byte, error)
	ReadIndex(ctx context.Context) (*domain.IndexDocument, []byte, error)
}

// Options configures a Server. Runs and Snapshots are optional.
type Options struct {
	Files          Files
	Runs           storage.RunStore
	Snapshots      storage.SnapshotStore
	Metrics        http.Handler
	RequestTimeout time.Duration
	Log            logrus.FieldLogger
}

// Server serves index.json, list files, run history and metrics.
type Server struct {
	opts Options
	log  logrus.FieldLogger
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Handler()
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{opts: opts, log: log.WithField("component", "server")}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", s.opts.Metrics)

	r.Get("/"+domain.IndexFileName, s.handleIndex)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleRuns)
		r.Get("/{id}", s.handleRun)
	})
	r.Get("/snapshots/{folder}/{file}", s.handleSnapshots)
	r.Get("/{folder}/{file}", s.handleFile)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.RecordServed(route, status)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	_, data, err := s.opts.Files.ReadIndex(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeFile(w, r, data)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	folder, file, ok := fileParams(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	data, err := s.opts.Files.ReadFile(r.Context(), folder, file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeFile(w, r, data)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.opts.Snapshots == nil {
		http.Error(w, "snapshot history not configured", http.StatusNotImplemented)
		return
	}
	folder, file, ok := fileParams(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	snaps, err := s.opts.Snapshots.GetByFile(r.Context(), folder, file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]snapshotView, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, newSnapshotView(snap))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		http.Error(w, "run history not configured", http.StatusNotImplemented)
		return
	}
	q := r.URL.Query()
	kind := domain.RunKind(q.Get("kind"))
	switch kind {
	case "":
		kind = domain.RunKindSync
	case domain.RunKindSync, domain.RunKindFeatured, domain.RunKindReindex, domain.RunKindExternal:
	default:
		http.Error(w, fmt.Sprintf("unknown run kind %q", kind), http.StatusBadRequest)
		return
	}
	limit := DefaultRunLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxRunLimit {
			http.Error(w, fmt.Sprintf("limit must be between 1 and %d", MaxRunLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.opts.Runs.ListByKind(r.Context(), kind, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]runView, 0, len(runs))
	for _, run := range runs {
		out = append(out, newRunView(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		http.Error(w, "run history not configured", http.StatusNotImplemented)
		return
	}
	run, err := s.opts.Runs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRunView(run))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case domain.IsStructural(err):
		s.log.WithError(err).Warn("malformed registry file")
		http.Error(w, "malformed registry file", http.StatusInternalServerError)
	default:
		s.log.WithError(err).Error("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// fileParams validates the folder and file URL parameters. Only plain
// .json names inside a folder are served.
func fileParams(r *http.Request) (string, string, bool) {
	folder := chi.URLParam(r, "folder")
	file := chi.URLParam(r, "file")
	for _, p := range []string{folder, file} {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			return "", "", false
		}
	}
	if path.Ext(file) != ".json" {
		return "", "", false
	}
	return folder, file, true
}

// writeFile serves registry bytes with a content-hash ETag.
func writeFile(w http.ResponseWriter, r *http.Request, data []byte) {
	etag := `"` + idhash.ContentHash(data) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=60")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
