// Package httpapi exposes the admin service over HTTP and a gRPC health
// endpoint.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"mototumen.org/internal/admin"
	"mototumen.org/internal/auth"
	"mototumen.org/internal/events"
	"mototumen.org/internal/obs"
)

const serviceName = "mototumen-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options tunes the middleware chain. Zero values take the defaults.
type Options struct {
	Version        string
	MaxBodyBytes   int64
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

// API is the HTTP layer.
type API struct {
	svc       *admin.Service
	signer    *auth.Signer
	hub       *events.Hub
	readiness readinessChecker
	opts      Options
}

// New builds the API. hub may be nil, in which case the event stream answers
// 503.
func New(svc *admin.Service, signer *auth.Signer, hub *events.Hub, rp readinessChecker, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 20
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 40
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	if rp == nil {
		rp = ReadyProbe{}
	}
	return &API{svc: svc, signer: signer, hub: hub, readiness: rp, opts: opts}
}

// Handler assembles the router and middleware chain.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog)
	r.Use(obs.Instrument)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	r.Use(func(next http.Handler) http.Handler {
		return RateLimit(next, a.opts.RateLimitBurst, a.opts.RateLimitRPS)
	})
	r.Use(func(next http.Handler) http.Handler {
		return MaxBodyBytes(next, a.opts.MaxBodyBytes)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(a.Authenticate)

		r.Get("/roles", a.listRoles)
		r.Get("/permissions", a.listPermissions)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/permissions", a.userPermissions)
			r.Put("/roles", a.saveRoles)
			r.Put("/roles/{roleID}", a.grantRole)
			r.Delete("/roles/{roleID}", a.revokeRole)
			r.Post("/roles/{roleID}/toggle", a.toggleRole)
			r.Put("/custom-permissions/{perm}", a.grantPermission)
			r.Delete("/custom-permissions/{perm}", a.revokePermission)
			r.Post("/custom-permissions/{perm}/toggle", a.togglePermission)
		})

		r.Route("/organization-requests", func(r chi.Router) {
			r.Get("/", a.listRequests)
			r.Post("/", a.submitRequest)
			r.Get("/counts", a.pendingCounts)
			r.Patch("/{requestID}", a.editRequest)
			r.Post("/{requestID}/approve", a.approveRequest)
			r.Post("/{requestID}/reject", a.rejectRequest)
			r.Post("/{requestID}/archive", a.archiveRequest)
		})

		r.Get("/directory", a.directory)
		r.Get("/moderation/events", a.Stream)
	})
	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readiness.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
