package authz

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/platform/httpx"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
)

// RequirePermission rejects requests whose user lacks perm, checked against
// the inherited permission set.
func (a *Authorizer) RequirePermission(perm string) func(http.Handler) http.Handler {
	return a.RequireAll(perm)
}

// RequireAny passes requests whose user holds at least one of perms.
func (a *Authorizer) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return a.require(normalizePermissions(perms), false)
}

// RequireAll passes requests whose user holds every one of perms.
func (a *Authorizer) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return a.require(normalizePermissions(perms), true)
}

func (a *Authorizer) require(perms []string, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				if !all {
					a.record(GateMiddleware, false)
					httpx.Problem(w, http.StatusForbidden, "Forbidden", "no permission accepted")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				a.record(GateMiddleware, false)
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrUnauthenticated.Error())
				return
			}
			subject := strings.Join(perms, ",")
			allowed := a.decide(r.Context(), GateMiddleware, subject, func(ctx context.Context) (bool, error) {
				granted, super, err := a.inherited(ctx, sess)
				if err != nil {
					return false, err
				}
				if super {
					return true, nil
				}
				if all {
					return hasAll(granted, perms), nil
				}
				return hasAny(granted, perms), nil
			})
			if !allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission: "+subject)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(out, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func hasAny(granted, required []string) bool {
	for _, p := range required {
		if slices.Contains(granted, p) {
			return true
		}
	}
	return false
}

func hasAll(granted, required []string) bool {
	for _, p := range required {
		if !slices.Contains(granted, p) {
			return false
		}
	}
	return true
}
