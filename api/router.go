package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/c360/varmsg/errors"
	"github.com/c360/varmsg/health"
	"github.com/c360/varmsg/message"
	"github.com/c360/varmsg/metric"
)

// maxControlBody bounds PUT/POST bodies
const maxControlBody = 64

// Control requests are queued to the single scheduler loop
const (
	controlRate  = 20
	controlBurst = 10
)

// Controller is the part of the scheduler the API drives
type Controller interface {
	Definitions() []*message.Definition
	SetEnabled(ctx context.Context, prefix string, on bool) error
	Rescan(ctx context.Context, prefix string) error
}

// Handler serves the status and control endpoints
type Handler struct {
	ctrl    Controller
	monitor *health.Monitor
	logger  *slog.Logger
	timeout time.Duration
	limiter *rate.Limiter
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// PipelineName is the URL name of a prefix: outer slashes trimmed and
// inner slashes replaced by dots, so "/varmsg/gps" is "varmsg.gps"
func PipelineName(prefix string) string {
	return strings.ReplaceAll(strings.Trim(prefix, "/"), "/", ".")
}

// NewRouter builds the chi router. registry and monitor may be nil, which
// leaves /metrics unmounted and /healthz always healthy.
func NewRouter(ctrl Controller, registry *metric.MetricsRegistry, monitor *health.Monitor, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		ctrl:    ctrl,
		monitor: monitor,
		logger:  logger.With("component", "api"),
		timeout: 10 * time.Second,
		limiter: rate.NewLimiter(rate.Limit(controlRate), controlBurst),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))

	r.Get("/healthz", h.Health)
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", registry.Handler())
	}

	r.Route("/pipelines", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{name}", h.Get)
		r.With(h.limitControl).Put("/{name}/enable", h.Enable)
		r.With(h.limitControl).Post("/{name}/rescan", h.Rescan)
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("Request completed",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}

func (h *Handler) limitControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			h.sendError(w, r, http.StatusTooManyRequests,
				errors.WrapTransient(errors.ErrResourceExhausted, "Handler", "limitControl", "rate limit control request"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// List returns the status of every pipeline in load order
func (h *Handler) List(w http.ResponseWriter, _ *http.Request) {
	defs := h.ctrl.Definitions()
	out := make([]message.Status, len(defs))
	for i, d := range defs {
		out[i] = d.Status()
	}
	sendJSON(w, http.StatusOK, map[string]any{"data": out, "total": len(out)})
}

// Get returns one pipeline
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	d, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sendJSON(w, http.StatusOK, d.Status())
}

// Enable sets the enable flag from a body of true or false
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	d, ok := h.lookup(w, r)
	if !ok {
		return
	}

	on, err := readBool(r)
	if err != nil {
		h.sendError(w, r, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.ctrl.SetEnabled(ctx, d.Prefix, on); err != nil {
		h.sendError(w, r, statusFor(err), err)
		return
	}
	sendJSON(w, http.StatusOK, d.Status())
}

// Rescan rebuilds the caches of one pipeline. Partial list resolution
// still returns 200 with the error text alongside the new status.
func (h *Handler) Rescan(w http.ResponseWriter, r *http.Request) {
	d, ok := h.lookup(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	err := h.ctrl.Rescan(ctx, d.Prefix)
	switch {
	case err == nil:
		sendJSON(w, http.StatusOK, d.Status())
	case errors.Is(err, errors.ErrNotFound):
		sendJSON(w, http.StatusOK, map[string]any{"status": d.Status(), "warning": err.Error()})
	default:
		h.sendError(w, r, statusFor(err), err)
	}
}

// Health reports the aggregate process health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	if h.monitor == nil {
		sendJSON(w, http.StatusOK, health.NewHealthy("varmsg", "ok"))
		return
	}
	st := h.monitor.AggregateHealth("varmsg")
	sendJSON(w, st.HTTPCode(), st)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*message.Definition, bool) {
	raw := chi.URLParam(r, "name")
	name, err := url.PathUnescape(raw)
	if err != nil {
		name = raw
	}
	for _, d := range h.ctrl.Definitions() {
		if d.Prefix == name || PipelineName(d.Prefix) == name {
			return d, true
		}
	}
	h.sendError(w, r, http.StatusNotFound, errors.Wrap(errors.ErrNotFound, "Handler", "lookup", "find pipeline "+name))
	return nil, false
}

func readBool(r *http.Request) (bool, error) {
	var buf [maxControlBody + 1]byte
	n, _ := r.Body.Read(buf[:])
	if n > maxControlBody {
		return false, errors.WrapInvalid(errors.ErrTooLarge, "Handler", "Enable", "read body")
	}
	text := strings.TrimSpace(string(buf[:n]))

	var v bool
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}
	v, err := strconv.ParseBool(text)
	if err != nil {
		return false, errors.WrapInvalid(errors.ErrInvalidArgument, "Handler", "Enable", "parse body "+strconv.Quote(text))
	}
	return v, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotStarted), errors.Is(err, errors.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", r.URL.Path, "error", err)
	}
	sendJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Code:      errors.Code(err),
		RequestID: middleware.GetReqID(r.Context()),
	})
}
