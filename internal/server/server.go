// Package server exposes the assessment engine and learner history over HTTP.
//
// Routes:
//
//	POST /v1/assessments                 multipart: audio (WAV), text, learner_id?
//	GET  /v1/learners/{id}/attempts      ?limit=N
//	GET  /v1/learners/{id}/patterns      ?since=RFC3339
//	GET  /healthz, /readyz, /metrics
//
// Every route runs behind [observe.Middleware].
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/orato/internal/assess"
	"github.com/MrWong99/orato/internal/health"
	"github.com/MrWong99/orato/internal/history"
	"github.com/MrWong99/orato/internal/observe"
	"github.com/MrWong99/orato/internal/report"
	"github.com/MrWong99/orato/pkg/audio"
)

const (
	defaultMaxUpload = 32 << 20
	defaultLimit     = 20
	maxLimit         = 200
)

// Assessor scores one recording. *assess.Engine implements it.
type Assessor interface {
	Assess(ctx context.Context, passage string, clip *audio.Clip) (report.FinalReport, error)
}

// Server holds the HTTP handlers. Build it with [New] and mount [Server.Handler].
type Server struct {
	assessor Assessor
	history  history.Store
	health   *health.Handler
	metrics  *observe.Metrics
	metricsH http.Handler

	maxUpload      int64
	requestTimeout time.Duration
	now            func() time.Time
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts h on /healthz and /readyz.
func WithHealth(h *health.Handler) Option { return func(s *Server) { s.health = h } }

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithMetricsHandler replaces the /metrics handler (promhttp by default).
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metricsH = h } }

// WithMaxUploadBytes caps the size of an assessment upload.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithRequestTimeout bounds a single assessment. Zero means no extra bound.
func WithRequestTimeout(d time.Duration) Option { return func(s *Server) { s.requestTimeout = d } }

// WithClock overrides time.Now for history timestamps.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// New returns a server. store may be nil, in which case learner IDs are
// ignored and the history routes answer 404.
func New(a Assessor, store history.Store, opts ...Option) *Server {
	s := &Server{
		assessor:  a,
		history:   store,
		maxUpload: defaultMaxUpload,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsH == nil {
		s.metricsH = promhttp.Handler()
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/assessments", s.handleAssess)
	if s.history != nil {
		mux.HandleFunc("GET /v1/learners/{id}/attempts", s.handleAttempts)
		mux.HandleFunc("GET /v1/learners/{id}/patterns", s.handlePatterns)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	mux.Handle("GET /metrics", s.metricsH)
	return observe.Middleware(s.metrics)(mux)
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds %d bytes", s.maxUpload)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: %v", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	passage := r.FormValue("text")
	learnerID := r.FormValue("learner_id")

	f, hdr, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio file: %v", err)
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, "read audio: %v", err)
		return
	}
	clip, err := audio.Decode(hdr.Filename, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	rep, err := s.assessor.Assess(ctx, passage, clip)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			observe.Logger(ctx).Error("assessment failed", "err", err)
		}
		writeError(w, status, "%v", err)
		return
	}

	if learnerID != "" && s.history != nil {
		a := history.FromReport(learnerID, passage, rep, s.now())
		if err := s.history.Save(ctx, a); err != nil {
			observe.Logger(ctx).Warn("failed to save attempt", "learner_id", learnerID, "id", rep.ID, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer, got %q", v)
			return
		}
		limit = min(n, maxLimit)
	}

	attempts, err := s.history.Recent(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		observe.Logger(r.Context()).Error("history lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if attempts == nil {
		attempts = []history.Attempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp, got %q", v)
			return
		}
		since = t
	}

	patterns, err := s.history.Patterns(r.Context(), r.PathValue("id"), since)
	if err != nil {
		observe.Logger(r.Context()).Error("history lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if patterns == nil {
		patterns = []history.PatternCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, assess.ErrInvalidInput), errors.Is(err, audio.ErrNotWAV):
		return http.StatusBadRequest
	case errors.Is(err, assess.ErrNoSpeech):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; the status is never seen.
		return 499
	default:
		return http.StatusBadGateway
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorBody{Error: fmt.Sprintf(format, args...)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}
