package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/auth"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/authz"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/observability"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/platform/httpx"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/rbac"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/roles"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/users"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Tokens         *auth.TokenManager

	AuthHandler  *auth.Handler
	AuthzHandler *authz.Handler
	RBACHandler  *rbac.Handler
	UsersHandler *users.Handler
	JobHandler   *jobs.Handler
	Authorizer   *authz.Authorizer
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router with LMS defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Tokens:         params.Tokens,
		Metrics:        params.Metrics,
		CSRFExempt:     []string{"/auth/login"},
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Signed-in users land on their dashboard, everyone else on the login page.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		rec, err := users.LoadRecord(sess)
		if sess == nil || err != nil || rec == nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, roles.DashboardRoute(rec.Role), http.StatusSeeOther)
	})

	r.Get("/login", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"csrf_token": csrfToken,
			"next":       r.URL.Query().Get("next"),
			"flash":      flash,
		})
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.AuthzHandler != nil {
		r.Route("/api", params.AuthzHandler.MountRoutes)
		params.AuthzHandler.MountDashboards(r)
	}
	if params.RBACHandler != nil {
		r.Route("/rbac", params.RBACHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			if params.Authorizer != nil {
				r.Use(params.Authorizer.RequireRole(roles.Admin, roles.SuperAdmin))
			}
			params.JobHandler.MountRoutes(r)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
