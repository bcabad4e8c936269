package authz

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
)

// Gate serves child when the user holds every permission in perms and
// fallback otherwise. A nil fallback answers 204 with no body.
func (a *Authorizer) Gate(perms []string, child, fallback http.Handler) http.Handler {
	if fallback == nil {
		fallback = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			a.record(GateRender, false)
			fallback.ServeHTTP(w, r)
			return
		}
		allowed := a.decide(r.Context(), GateRender, fmt.Sprint(perms), func(ctx context.Context) (bool, error) {
			return a.checkAll(ctx, sess, perms)
		})
		if allowed {
			child.ServeHTTP(w, r)
			return
		}
		fallback.ServeHTTP(w, r)
	})
}
