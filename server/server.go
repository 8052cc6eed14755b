// Package server exposes reply runs and background jobs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdulmalikadeyemo/email-assistant/internal/logging"
	"github.com/abdulmalikadeyemo/email-assistant/jobs"
)

// Jobs is the job manager the handlers drive. *jobs.Manager satisfies it.
type Jobs interface {
	Run(ctx context.Context, req jobs.Request) (*jobs.Job, error)
	Submit(ctx context.Context, req jobs.Request) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, limit int) ([]*jobs.Job, error)
	Cancel(ctx context.Context, id string) error
}

// Options configures the handler.
type Options struct {
	// Graph returns the Mermaid rendering served at /v1/graph.
	Graph func() string

	// Gatherer backs /metrics. Nil leaves the route unregistered.
	Gatherer prometheus.Gatherer

	// Health reports readiness for /healthz. Nil always reports ok.
	Health func(ctx context.Context) error

	// MaxBodyBytes bounds request bodies. Zero means 1 MiB.
	MaxBodyBytes int64

	Logger *slog.Logger
}

// Server holds the handler dependencies.
type Server struct {
	jobs   Jobs
	opts   Options
	logger *slog.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(j Jobs, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	s := &Server{jobs: j, opts: opts, logger: logging.OrNop(opts.Logger)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/replies", s.createReply)
		r.Get("/graph", s.graph)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.createJob)
			r.Get("/", s.listJobs)
			r.Get("/{id}", s.getJob)
			r.Delete("/{id}", s.cancelJob)
		})
	})
	return r
}

// createReply handles POST /v1/replies. It blocks until the run ends and
// returns the job record, including the trace of a failed run.
func (s *Server) createReply(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job, err := s.jobs.Run(r.Context(), req)
	if job == nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, statusForJob(job), job)
}

// createJob handles POST /v1/jobs.
func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	list, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.jobs.Cancel(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

func (s *Server) graph(w http.ResponseWriter, r *http.Request) {
	if s.opts.Graph == nil {
		writeError(w, http.StatusNotFound, errors.New("graph rendering is not available"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.opts.Graph()))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func statusForJob(job *jobs.Job) int {
	switch job.Status {
	case jobs.StatusCompleted:
		return http.StatusOK
	case jobs.StatusCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrFinished):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case isRequestError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
