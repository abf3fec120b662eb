package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Role and permission mutation decisions by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	moderationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_transitions_total",
			Help: "Organization request transitions by source, target and outcome.",
		},
		[]string{"from", "to", "outcome"},
	)

	initOnce sync.Once
)

// Init registers the service metrics in the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, authzDecisions, moderationTransitions)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Decision outcomes shared by the domain counters.
const (
	OutcomeOK          = "ok"
	OutcomeDenied      = "denied"
	OutcomeInvalid     = "invalid"
	OutcomeNotFound    = "not_found"
	OutcomePersistFail = "persist_failed"
)

// ObserveAuthzDecision counts one role or permission mutation attempt.
func ObserveAuthzDecision(operation, outcome string) {
	authzDecisions.WithLabelValues(operation, outcome).Inc()
}

// ObserveModeration counts one moderation transition attempt.
func ObserveModeration(from, to, outcome string) {
	moderationTransitions.WithLabelValues(from, to, outcome).Inc()
}

// Instrument records RPS, latency and in-flight requests per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

var staticRoutes = map[string]struct{}{
	"/v1/roles":                        {},
	"/v1/permissions":                  {},
	"/v1/organization-requests":        {},
	"/v1/organization-requests/counts": {},
	"/v1/directory":                    {},
	"/v1/moderation/events":            {},
}

var routePatterns = [][]string{
	{"v1", "users", ":id", "permissions"},
	{"v1", "users", ":id", "roles"},
	{"v1", "users", ":id", "roles", ":role"},
	{"v1", "users", ":id", "roles", ":role", "toggle"},
	{"v1", "users", ":id", "custom-permissions", ":perm"},
	{"v1", "users", ":id", "custom-permissions", ":perm", "toggle"},
	{"v1", "organization-requests", ":id"},
	{"v1", "organization-requests", ":id", "approve"},
	{"v1", "organization-requests", ":id", "reject"},
	{"v1", "organization-requests", ":id", "archive"},
}

// CanonicalPath collapses identifiers in known routes so metric labels stay
// bounded. Unknown shapes are returned unchanged.
func CanonicalPath(raw string) string {
	path, _, _ := strings.Cut(raw, "?")
	if path == "" {
		return "/"
	}
	if _, ok := staticRoutes[path]; ok {
		return path
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for _, pattern := range routePatterns {
		if matchRoute(pattern, segs) {
			return "/" + strings.Join(pattern, "/")
		}
	}
	return path
}

func matchRoute(pattern, segs []string) bool {
	if len(pattern) != len(segs) {
		return false
	}
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if p != segs[i] {
			return false
		}
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers behind Instrument flush.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
