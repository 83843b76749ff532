// Package web serves the plant wall's HTTP surface. Every read comes from
// the latest published status; no handler touches hardware or waits on the
// control loop.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sweeney/plant-wall/internal/metrics"
	"github.com/sweeney/plant-wall/internal/settings"
	"github.com/sweeney/plant-wall/internal/status"
)

// maxSettingsBody limits POST /settings bodies.
const maxSettingsBody = 64 << 10

// Controller queues operator requests for the control loop.
// control.Loop satisfies it.
type Controller interface {
	RequestReset()
	RequestSafeMode()
	RequestWatering()
}

// Info is static daemon configuration shown on the index page.
type Info struct {
	Broker       string
	HTTPAddr     string
	TickInterval time.Duration
}

// Options wires a Server to the rest of the daemon. Status is required.
type Options struct {
	Status  *status.Publisher
	Intake  *settings.Intake
	Control Controller
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Info    Info
}

// Server serves the status page and API over HTTP.
type Server struct {
	httpServer *http.Server
	status     *status.Publisher
	intake     *settings.Intake
	control    Controller
	metrics    *metrics.Metrics
	log        *zap.Logger
	info       Info
}

// New creates a Server listening on addr.
func New(addr string, opts Options) *Server {
	s := &Server{
		status:  opts.Status,
		intake:  opts.Intake,
		control: opts.Control,
		metrics: opts.Metrics,
		log:     opts.Logger,
		info:    opts.Info,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/status", s.handleStatus)
	r.Get("/index.json", s.handleStatus)
	r.Post("/settings", s.handleSettings)
	r.Post("/safe-mode/reset", s.handleReset)
	r.Post("/safe-mode/enter", s.handleEmergencyStop)
	r.Post("/watering", s.handleWatering)
	r.Get("/ws", s.handleWS)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)))
		})
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.status.Latest(), s.info); err != nil {
		s.log.Warn("render index", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.status.LatestJSON())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.intake == nil {
		writeJSON(w, http.StatusServiceUnavailable, response{Status: "error", Reason: "settings unavailable"})
		return
	}

	p, err := settings.DecodePatch(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	if err == nil {
		err = s.intake.Apply(p)
	}

	var ve *settings.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, response{Status: "success"})
	case errors.As(err, &ve):
		s.log.Info("settings rejected", zap.String("field", ve.Field), zap.String("reason", ve.Reason))
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Field: ve.Field, Reason: ve.Reason})
	default:
		s.log.Error("settings failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, response{Status: "error", Reason: "internal error"})
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.control == nil {
		writeJSON(w, http.StatusServiceUnavailable, response{Status: "error", Reason: "control unavailable"})
		return
	}
	if s.status.Latest().Mode != status.ModeSafe {
		writeJSON(w, http.StatusConflict, response{Status: "error", Reason: "not in safe mode"})
		return
	}
	s.control.RequestReset()
	s.log.Info("safe mode reset requested", zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, response{Status: "reset requested"})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	if s.control == nil {
		writeJSON(w, http.StatusServiceUnavailable, response{Status: "error", Reason: "control unavailable"})
		return
	}
	if s.status.Latest().Mode == status.ModeSafe {
		writeJSON(w, http.StatusConflict, response{Status: "error", Reason: "already in safe mode"})
		return
	}
	s.control.RequestSafeMode()
	s.log.Warn("emergency stop requested", zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, response{Status: "safe mode requested"})
}

// handleWatering queues a manual cycle. The loop re-checks the tank and
// interval guards, so 202 means accepted for consideration only.
func (s *Server) handleWatering(w http.ResponseWriter, r *http.Request) {
	if s.control == nil {
		writeJSON(w, http.StatusServiceUnavailable, response{Status: "error", Reason: "control unavailable"})
		return
	}
	latest := s.status.Latest()
	var conflict string
	switch {
	case latest.Mode == status.ModeSafe:
		conflict = "in safe mode"
	case !latest.HasReading:
		conflict = "no sensor reading yet"
	case latest.Pump == "watering":
		conflict = "already watering"
	}
	if conflict != "" {
		writeJSON(w, http.StatusConflict, response{Status: "error", Reason: conflict})
		return
	}
	s.control.RequestWatering()
	s.log.Info("manual watering requested", zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, response{Status: "watering requested"})
}
