package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atinyakov/practiceserver/internal/middleware"
	"github.com/atinyakov/practiceserver/internal/service"
)

// Service names served by the dispatcher.
const (
	ServiceUsers     = "users"
	ServiceData      = "data"
	ServiceJSONStore = "jsonstore"
	ServiceUtil      = "util"
)

// IdentityService serves the users endpoints and authenticates tokens.
type IdentityService interface {
	AuthService
	middleware.Authenticator
}

// Deps are the services the router exposes.
type Deps struct {
	Auth        IdentityService
	Collections CollectionsService
	Documents   DocumentStore
	Toggles     *service.Toggles
	Logger      *zap.Logger
}

// NewRouter constructs the HTTP handler of the server.
//
// Middleware chain (applied in order):
//  1. CORS                 answers OPTIONS, sets Access-Control-Allow-Origin
//  2. RequestID
//  3. WithRequestLogging
//  4. Metrics
//  5. Throttle             random delay while the throttle toggle is on
//  6. Identity             X-Authorization and X-Admin
//  7. Serialize            one request at a time past this point
//
// Routes:
//
//	GET /metrics            prometheus exposition
//	*   /{service}/...      dispatcher (users, data, jsonstore, util)
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS)
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.WithRequestLogging(log))
	r.Use(middleware.Metrics)

	r.Handle("/metrics", promhttp.Handler())

	d := NewDispatcher(log)
	d.Mount(ServiceUsers, NewUsersService(deps.Auth))
	d.Mount(ServiceData, NewDataService(deps.Collections))
	if deps.Documents != nil {
		d.Mount(ServiceJSONStore, NewJSONStoreService(deps.Documents))
	}
	if deps.Toggles != nil {
		d.Mount(ServiceUtil, NewUtilService(deps.Toggles))
	}

	r.Group(func(r chi.Router) {
		if deps.Toggles != nil {
			r.Use(middleware.Throttle(deps.Toggles, service.ThrottleFlag))
		}
		r.Use(middleware.Identity(deps.Auth))
		r.Use(middleware.Serialize())
		r.Handle("/*", d)
	})

	return r
}
