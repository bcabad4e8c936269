package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/platform/httpx"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/roles"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sync           *users.Sync
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	tokens         *TokenManager
	validator      *validator.Validate
	loginLimit     int
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sync *users.Sync, sessions *shared.SessionManager, csrf *shared.CSRFManager, tokens *TokenManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sync:           sync,
		sessionManager: sessions,
		csrfManager:    csrf,
		tokens:         tokens,
		validator:      validator.New(),
		loginLimit:     10,
	}
}

// WithLoginLimit sets the per-IP login attempts allowed per minute.
func (h *Handler) WithLoginLimit(n int) *Handler {
	if n > 0 {
		h.loginLimit = n
	}
	return h
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(h.loginLimit, time.Minute)).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/refresh", h.handleRefresh)
	r.Get("/session", h.handleSession)
	r.Put("/user", h.handleUpdateUser)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type updateUserRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"omitempty,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		httpx.JSON(w, http.StatusBadRequest, map[string]any{"title": "Validation Failed", "status": http.StatusBadRequest, "fields": fields})
		return
	}

	user, err := h.service.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}

	rec, err := h.sync.Login(r.Context(), sess, user.ID)
	if err != nil {
		h.logger.Error("login sync", slog.Int64("user_id", user.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not establish session")
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	csrfToken, err := h.csrfManager.Rotate(r.Context(), sess)
	if err != nil {
		h.logger.Warn("rotate csrf", slog.Any("error", err))
	}

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	view := h.view(sess, &rec)
	view.CSRFToken = csrfToken
	if err := h.attachToken(&view, user.ID, sess.ID); err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.logger.Info("user signed in", slog.Int64("user_id", user.ID), slog.String("role", roles.EffectiveName(rec.Role)))
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.sync.Logout(sess)
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, shared.Succeeded("signed out"))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.unauthenticated(w, r)
		return
	}
	rec, err := h.sync.Refresh(r.Context(), sess)
	if err != nil {
		h.logger.Warn("session refresh", slog.String("session_id", sess.ID), slog.Any("error", err))
		h.sessionManager.Destroy(sess)
		h.unauthenticated(w, r)
		return
	}
	view := h.view(sess, &rec)
	if userID, ok := sessionUserID(sess); ok {
		if err := h.attachToken(&view, userID, sess.ID); err != nil {
			h.logger.Error("issue token", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.JSON(w, http.StatusUnauthorized, SessionView{State: users.Unauthenticated.String()})
		return
	}
	rec, err := users.LoadRecord(sess)
	if err != nil {
		h.logger.Error("load user record", slog.Any("error", err))
	}
	if rec == nil {
		httpx.JSON(w, http.StatusUnauthorized, SessionView{State: users.State(sess).String()})
		return
	}
	httpx.JSON(w, http.StatusOK, h.view(sess, rec))
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	userID, ok := sessionUserID(sess)
	if !ok {
		h.unauthenticated(w, r)
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSON(w, http.StatusBadRequest, shared.Failed("malformed JSON body"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.JSON(w, http.StatusBadRequest, shared.Failed("email must be valid and password at least 8 characters"))
		return
	}
	result := h.service.UpdateUser(r.Context(), userID, req.Email, req.Password)
	if !result.OK {
		httpx.JSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	if req.Email != "" {
		if _, err := h.sync.Refresh(r.Context(), sess); err != nil {
			h.logger.Warn("refresh after profile update", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) view(sess *shared.Session, rec *users.Record) SessionView {
	return SessionView{
		User:      rec,
		State:     users.State(sess).String(),
		Dashboard: roles.DashboardRoute(rec.Role),
	}
}

func (h *Handler) attachToken(view *SessionView, userID int64, sessionID string) error {
	token, expires, err := h.tokens.Issue(userID, sessionID)
	if err != nil {
		return err
	}
	view.Token = token
	view.ExpiresAt = &expires
	return nil
}

func (h *Handler) unauthenticated(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Location", "/login")
	httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrSessionExpired.Error())
}

func sessionUserID(sess *shared.Session) (int64, bool) {
	if sess == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
