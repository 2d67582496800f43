package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/tollgate/internal/auth"
	"github.com/BradenHooton/tollgate/internal/handlers"
	"github.com/BradenHooton/tollgate/internal/middleware"
	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Dependencies are the handlers and middleware the router is assembled from
type Dependencies struct {
	Logger       *slog.Logger
	TokenManager *auth.TokenManager
	Resolver     *auth.IdentityResolver
	Gate         func(http.Handler) http.Handler
	Denials      auth.DenialRecorder
	Metrics      http.Handler

	Health     *handlers.HealthHandler
	APIKeys    *handlers.APIKeyHandler
	KillSwitch *handlers.KillSwitchHandler
	Audit      *handlers.AuditHandler
	LoginGuard *handlers.LoginGuardHandler
}

// NewRouter builds the chi router. Principal claims are resolved before the
// gate so authenticated callers are rate limited by principal.
func NewRouter(deps Dependencies) chi.Router {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecureLogger(deps.Logger, deps.Resolver))
	router.Use(auth.OptionalAuth(deps.TokenManager))
	router.Use(deps.Gate)

	RegisterRoutes(router, deps)
	return router
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.Get("/health", deps.Health.Health)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Machine clients; the gate enforces the API key on this prefix
	router.Route("/internal", func(r chi.Router) {
		r.Get("/lockout", deps.LoginGuard.Lockout)
		r.Post("/login-attempts", deps.LoginGuard.RecordAttempt)
	})

	// Admin-only routes
	router.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(auth.RequireRole(models.RoleAdmin, deps.Denials, deps.Resolver, deps.Logger))

		r.Post("/api-keys", deps.APIKeys.CreateAPIKey)
		r.Get("/api-keys", deps.APIKeys.ListAPIKeys)
		r.Delete("/api-keys/{id}", deps.APIKeys.RevokeAPIKey)

		r.Get("/kill-switch", deps.KillSwitch.GetStatus)
		r.Put("/kill-switch", deps.KillSwitch.SetActive)
		r.Put("/kill-switch/flag", deps.KillSwitch.SetFlag)

		r.Get("/audit-events", deps.Audit.ListEvents)
	})
}
