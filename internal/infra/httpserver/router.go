// Package httpserver exposes review sessions over HTTP.
package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/tracker"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/application/workflow"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/report"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/uploads"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/middleware"
)

// maxBodyBytes bounds JSON request bodies. Uploads carry metadata only.
const maxBodyBytes = 1 << 20

type Options struct {
	CORSOrigins []string
	// APIKeys maps client name to key; empty disables auth.
	APIKeys map[string]string
	// Limiter is optional.
	Limiter *middleware.RateLimiter
	Checks  map[string]middleware.HealthChecker
	// Ready backs /readyz; nil means always ready.
	Ready func() bool
}

type Router struct {
	sessions *workflow.Registry
	origins  []string
	log      logrus.FieldLogger
}

func NewRouter(sessions *workflow.Registry, opts Options, log logrus.FieldLogger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Router{sessions: sessions, origins: opts.CORSOrigins, log: log}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Logging(log))
	mux.Use(middleware.MetricsMiddleware)
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	if len(opts.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	}
	if opts.Limiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opts.Limiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checks))
	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.ReadinessHandler(opts.Ready))
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/sessions", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleCreateSession))
		rt.Route("/{sid}", func(rt chi.Router) {
			rt.Get("/", r.wrap(r.handleGetSession))
			rt.Delete("/", r.wrap(r.handleDeleteSession))

			rt.Post("/uploads", r.wrap(r.handleSubmit))
			rt.Get("/uploads", r.wrap(r.handleListUploads))
			rt.Get("/uploads/{id}", r.wrap(r.handleGetUpload))
			rt.Delete("/uploads/{id}", r.wrap(r.handleRemoveUpload))

			rt.Post("/analysis", r.wrap(r.handleStartAnalysis))
			rt.Get("/analysis", r.wrap(r.handleGetAnalysis))
			rt.Delete("/analysis", r.wrap(r.handleCancelAnalysis))
			rt.Post("/reset", r.wrap(r.handleReset))

			rt.Get("/dashboard", r.wrap(r.handleDashboard))
			rt.Post("/reports", r.wrap(r.handleGenerateReport))
			rt.Get("/reports", r.wrap(r.handleListReports))
			rt.Get("/reports/{rid}", r.wrap(r.handleGetReport))

			rt.Get("/watch", r.handleWatch)
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks errors caused by an unreadable request.
type badRequest struct{ err error }

func (e *badRequest) Error() string { return e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := statusFor(err)
			if status >= 500 {
				r.log.WithError(err).WithField("path", req.URL.Path).Error("request failed")
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
		}
	}
}

func statusFor(err error) int {
	var (
		bad     *badRequest
		invalid *analysis.ValidationError
		busy    *analysis.BusyError
		unknown *uploads.UnknownUnitError
		trans   *uploads.TransitionError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity
	case errors.As(err, &busy), errors.As(err, &trans):
		return http.StatusConflict
	case errors.As(err, &unknown),
		errors.Is(err, workflow.ErrUnknownSession),
		errors.Is(err, tracker.ErrClosed),
		errors.Is(err, workflow.ErrSessionClosed),
		errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrNotReady), errors.Is(err, workflow.ErrNoResult):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrReportsDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, workflow.ErrRegistryFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decode(req *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &badRequest{fmt.Errorf("invalid JSON body: %w", err)}
	}
	return nil
}

func (r *Router) session(req *http.Request) (*workflow.Session, error) {
	sid := chi.URLParam(req, "sid")
	if err := middleware.ValidateSessionID(sid); err != nil {
		return nil, err
	}
	return r.sessions.Get(sid)
}

type sessionView struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"created_at"`
	Ready     bool                 `json:"ready"`
	Uploads   []uploads.WorkUnit   `json:"uploads"`
	Run       analysis.RunSnapshot `json:"run"`
	// DroppedEvents counts watch deliveries lost to slow subscribers.
	DroppedEvents uint64 `json:"dropped_events"`
}

func viewOf(s *workflow.Session) sessionView {
	return sessionView{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		Ready:         s.Ready(),
		Uploads:       s.Uploads(),
		Run:           s.Run(),
		DroppedEvents: s.DroppedEvents(),
	}
}

// POST /v1/sessions
func (r *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) error {
	s, err := r.sessions.Create()
	if err != nil {
		return err
	}
	middleware.IncrementSessions()
	return writeJSON(w, http.StatusCreated, viewOf(s))
}

// GET /v1/sessions/{sid}
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, viewOf(s))
}

// DELETE /v1/sessions/{sid}
func (r *Router) handleDeleteSession(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	if err := r.sessions.Delete(s.ID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/sessions/{sid}/uploads
// Body: {"files": [{"name": "...", "size_bytes": 123, "media_type": "application/pdf"}]}
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	var body struct {
		Files []uploads.Metadata `json:"files"`
	}
	if err := decode(req, &body); err != nil {
		return err
	}
	if len(body.Files) == 0 {
		return &analysis.ValidationError{Field: "files", Reason: "at least one file is required"}
	}
	for i := range body.Files {
		body.Files[i].Name = middleware.SanitizeString(body.Files[i].Name)
		if err := middleware.ValidateStruct(body.Files[i]); err != nil {
			return err
		}
	}

	units := make([]uploads.WorkUnit, 0, len(body.Files))
	for _, meta := range body.Files {
		u, err := s.Submit(meta)
		if err != nil {
			return err
		}
		units = append(units, u)
	}
	return writeJSON(w, http.StatusAccepted, units)
}

// GET /v1/sessions/{sid}/uploads?status=completed
func (r *Router) handleListUploads(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	if req.URL.Query().Get("status") == string(uploads.StatusCompleted) {
		return writeJSON(w, http.StatusOK, s.CompletedUploads())
	}
	return writeJSON(w, http.StatusOK, s.Uploads())
}

// GET /v1/sessions/{sid}/uploads/{id}
func (r *Router) handleGetUpload(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	u, err := s.Upload(uploads.UnitID(chi.URLParam(req, "id")))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, u)
}

// DELETE /v1/sessions/{sid}/uploads/{id}
func (r *Router) handleRemoveUpload(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	if err := s.RemoveUpload(uploads.UnitID(chi.URLParam(req, "id"))); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/sessions/{sid}/analysis
// Starts the run and returns at once; follow it via GET or /watch.
func (r *Router) handleStartAnalysis(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	if _, err := s.StartAnalysis(); err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, s.Run())
}

type analysisView struct {
	Run    analysis.RunSnapshot `json:"run"`
	Result *analysis.Result     `json:"result,omitempty"`
}

// GET /v1/sessions/{sid}/analysis
func (r *Router) handleGetAnalysis(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	view := analysisView{Run: s.Run()}
	if res, err := s.Result(); err == nil {
		view.Result = &res
	}
	return writeJSON(w, http.StatusOK, view)
}

// DELETE /v1/sessions/{sid}/analysis
func (r *Router) handleCancelAnalysis(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	s.CancelAnalysis()
	return writeJSON(w, http.StatusOK, s.Run())
}

// POST /v1/sessions/{sid}/reset
func (r *Router) handleReset(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	if err := s.Reset(); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, viewOf(s))
}

// GET /v1/sessions/{sid}/dashboard
func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	dash, err := s.Dashboard()
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, dash)
}

// POST /v1/sessions/{sid}/reports
func (r *Router) handleGenerateReport(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	rep, err := s.GenerateReport(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, rep)
}

// GET /v1/sessions/{sid}/reports?limit=
func (r *Router) handleListReports(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	list, err := s.Reports(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/sessions/{sid}/reports/{rid}
func (r *Router) handleGetReport(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	rep, err := s.Report(req.Context(), report.ReportID(chi.URLParam(req, "rid")))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rep)
}
