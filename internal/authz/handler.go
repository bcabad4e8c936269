package authz

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/platform/httpx"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/roles"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/users"
)

// Handler exposes the authorizer to the client.
type Handler struct {
	logger *slog.Logger
	authz  *Authorizer
	sync   *users.Sync
	menu   []MenuItem
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, authz *Authorizer, sync *users.Sync) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, authz: authz, sync: sync, menu: DefaultMenu()}
}

// MountRoutes registers the permission endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/permissions/check", h.check)
	r.Get("/permissions/mine", h.mine)
	r.Post("/permissions/sync", h.syncPermissions)
	r.Get("/menu", h.menuItems)
}

// MountDashboards registers one dashboard per known role, each guarded by
// effective role.
func (h *Handler) MountDashboards(r chi.Router) {
	byPath := map[string][]string{}
	var order []string
	for _, name := range roles.Known() {
		path := roles.DashboardFor(name)
		if _, ok := byPath[path]; !ok {
			order = append(order, path)
		}
		byPath[path] = append(byPath[path], name)
	}
	for _, path := range order {
		r.With(h.authz.RequireRole(byPath[path]...)).Get(path, h.dashboard)
	}
}

type checkResponse struct {
	Permission string `json:"permission"`
	Mode       string `json:"mode"`
	Allowed    bool   `json:"allowed"`
}

type mineResponse struct {
	Role      string   `json:"role"`
	Direct    []string `json:"direct"`
	Inherited []string `json:"inherited"`
}

type dashboardResponse struct {
	Role      string               `json:"role"`
	Dashboard string               `json:"dashboard"`
	Menu      []MenuItem           `json:"menu"`
	Flash     *shared.FlashMessage `json:"flash,omitempty"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "name is required")
		return
	}
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = GateStored
	}
	resp := checkResponse{Permission: name, Mode: mode}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.JSON(w, http.StatusOK, resp)
		return
	}
	switch mode {
	case GateLocal:
		resp.Allowed = h.authz.Can(sess, name)
	case GateStored:
		resp.Allowed = h.authz.Check(r.Context(), sess, name)
	case GateInherited:
		resp.Allowed = h.authz.CheckInherited(r.Context(), sess, name)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "mode must be local, stored or inherited")
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) mine(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrUnauthenticated.Error())
		return
	}
	rec, err := users.LoadRecord(sess)
	if err != nil || rec == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrUnauthenticated.Error())
		return
	}
	resp := mineResponse{Role: roles.EffectiveName(rec.Role), Direct: rec.Permissions, Inherited: []string{}}
	if resp.Direct == nil {
		resp.Direct = []string{}
	}
	inherited, _, err := h.authz.inherited(r.Context(), sess)
	if err != nil {
		h.logger.Warn("inherited permissions", slog.Int64("user_id", rec.ID), slog.Any("error", err))
	} else if inherited != nil {
		resp.Inherited = inherited
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) syncPermissions(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrUnauthenticated.Error())
		return
	}
	perms, err := h.sync.SyncUserPermissions(r.Context(), sess)
	if err != nil {
		h.logger.Warn("permission sync", slog.String("session_id", sess.ID), slog.Any("error", err))
		httpx.JSON(w, http.StatusOK, map[string]any{"ok": false, "message": "permissions could not be synced", "permissions": []string{}})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true, "permissions": perms})
}

func (h *Handler) menuItems(w http.ResponseWriter, r *http.Request) {
	var rec *users.Record
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		rec, _ = users.LoadRecord(sess)
	}
	httpx.JSON(w, http.StatusOK, h.authz.FilterMenu(rec, h.menu))
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrUnauthenticated.Error())
		return
	}
	rec, err := users.LoadRecord(sess)
	if err != nil || rec == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrUnauthenticated.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, dashboardResponse{
		Role:      roles.EffectiveName(rec.Role),
		Dashboard: roles.DashboardRoute(rec.Role),
		Menu:      h.authz.FilterMenu(rec, h.menu),
		Flash:     sess.PopFlash(),
	})
}
