package authz

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/platform/httpx"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/roles"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/users"
)

// Outcome is the result of a route decision.
type Outcome int

const (
	Allow Outcome = iota
	RedirectDashboard
	RedirectLogin
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectDashboard:
		return "redirect_dashboard"
	case RedirectLogin:
		return "redirect_login"
	default:
		return "denied"
	}
}

// Decision tells a route what to do with the current user.
type Decision struct {
	Outcome  Outcome
	Location string
	Message  string
}

// AccessDeniedMessage is flashed when a user is sent back to their dashboard.
const AccessDeniedMessage = "You do not have access to that page."

// Decide matches the user's effective role against allowed, ignoring case.
// Users who fail the match are sent to their own dashboard. When that
// dashboard is the requested path the decision is Denied so that the
// redirect cannot loop.
func (a *Authorizer) Decide(rec *users.Record, path string, allowed []string) Decision {
	if rec == nil || rec.Role.IsZero() {
		return Decision{Outcome: RedirectLogin, Location: loginLocation(path)}
	}
	effective := roles.EffectiveName(rec.Role)
	for _, name := range allowed {
		if roles.Equal(effective, name) {
			return Decision{Outcome: Allow}
		}
	}
	dashboard := roles.DashboardRoute(rec.Role)
	if samePath(dashboard, path) {
		return Decision{Outcome: Denied, Message: AccessDeniedMessage}
	}
	return Decision{Outcome: RedirectDashboard, Location: dashboard, Message: AccessDeniedMessage}
}

// RequireRole guards a route by effective role.
func (a *Authorizer) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			var rec *users.Record
			if sess != nil {
				var err error
				if rec, err = users.LoadRecord(sess); err != nil {
					a.logger.Error("authz: load user record", slog.Any("error", err))
					rec = nil
				}
			}
			decision := a.Decide(rec, r.URL.Path, allowed)
			a.record(GateRoute, decision.Outcome == Allow)
			switch decision.Outcome {
			case Allow:
				next.ServeHTTP(w, r)
			case RedirectLogin:
				http.Redirect(w, r, decision.Location, http.StatusSeeOther)
			case RedirectDashboard:
				if sess != nil {
					sess.AddFlash(shared.FlashMessage{Kind: "warning", Message: decision.Message})
				}
				http.Redirect(w, r, decision.Location, http.StatusSeeOther)
			default:
				httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Message)
			}
		})
	}
}

func loginLocation(path string) string {
	if path == "" || path == "/" {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(path)
}

func samePath(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
