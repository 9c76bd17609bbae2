package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"colorum/internal/auth"
	"colorum/internal/ingest"
	"colorum/internal/metrics"
	"colorum/internal/model"
	"colorum/internal/northbound"
	"colorum/internal/store"
)

// Server carries the dependencies of the HTTP surface: persisted state, the
// ingestion processors, the northbound session and the alert broker.
type Server struct {
	Store   store.Store
	Devices *ingest.DeviceProcessor
	Routes  *ingest.RouteReconciler
	Session *northbound.Session
	Broker  EventBroker
	Auth    *auth.Verifier
	GPXDir  string

	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewServer wires a Server. session may be nil when no northbound
// credentials are configured (ingestion then happens over HTTP only).
func NewServer(s store.Store, devices *ingest.DeviceProcessor, routes *ingest.RouteReconciler,
	session *northbound.Session, broker EventBroker, verifier *auth.Verifier,
	gpxDir string, ingestRPS float64, ingestBurst int, logger zerolog.Logger) *Server {
	return &Server{
		Store:   s,
		Devices: devices,
		Routes:  routes,
		Session: session,
		Broker:  broker,
		Auth:    verifier,
		GPXDir:  gpxDir,
		limiter: rate.NewLimiter(rate.Limit(ingestRPS), ingestBurst),
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// ColorumAlerts adapts the broker to the ingest.AlertPublisher interface.
type ColorumAlerts struct {
	Broker EventBroker
}

func (a ColorumAlerts) PublishColorumAlert(d model.Device) {
	evt := Event{Type: "device.colorum", Data: map[string]any{
		"gps_device_id":       d.ID,
		"last_location":       [2]float64{d.LastLocation.Lat, d.LastLocation.Lon},
		"associated_route":    d.AssociatedRoute,
		"distance_from_route": d.DistanceToRoute,
	}}
	a.Broker.Publish(TopicColorum, evt)
	if d.AssociatedRoute != "" {
		a.Broker.Publish("route:"+d.AssociatedRoute, evt)
	}
}

// allowIngest applies the shared ingestion rate limit.
func (s *Server) allowIngest(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter.Allow() {
		return true
	}
	writeProblem(w, http.StatusTooManyRequests, "Rate limited", "ingestion rate limit exceeded", r.URL.Path)
	return false
}

// requireAuth checks the bearer token on admin/query endpoints.
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required", r.URL.Path)
		return auth.Principal{}, false
	}
	p, err := s.Auth.Verify(strings.TrimPrefix(h, "Bearer "))
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return auth.Principal{}, false
	}
	return p, true
}

// LogMiddleware logs each request and records HTTP metrics.
func (s *Server) LogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		dur := time.Since(start)
		status := strconv.Itoa(sw.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
		s.logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", sw.status).Dur("duration", dur).Str("remote", r.RemoteAddr).Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
