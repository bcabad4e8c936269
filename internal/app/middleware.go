package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/auth"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/observability"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/platform/httpx"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Tokens         *auth.TokenManager
	Metrics        *observability.Metrics
	// CSRFExempt lists request paths accepted without a CSRF token.
	CSRFExempt []string
}

type responseWriterWithCommit struct {
	http.ResponseWriter
	sess          *shared.Session
	manager       *shared.SessionManager
	ctx           context.Context
	req           *http.Request
	bearer        bool
	logger        *slog.Logger
	headerWritten bool
}

func (w *responseWriterWithCommit) WriteHeader(statusCode int) {
	if !w.headerWritten {
		w.headerWritten = true
		var err error
		if w.bearer {
			err = w.manager.Save(w.ctx, w.sess)
		} else {
			err = w.manager.Commit(w.ctx, w.ResponseWriter, w.req, w.sess)
		}
		if err != nil {
			w.logger.Error("commit session", slog.String("session_id", w.sess.ID), slog.Any("error", err))
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWithCommit) Write(data []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

// finish commits sessions of handlers that never wrote a response.
func (w *responseWriterWithCommit) finish() {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
}

// SessionMiddleware locates the request session by bearer token or cookie
// and persists it once the response starts.
func SessionMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, bearer, err := loadSession(ctx, cfg, r)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, shared.ErrSessionExpired) {
					w.Header().Set("Location", "/login")
					httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrSessionExpired.Error())
					return
				}
				cfg.Logger.Error("failed to load session", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx = shared.ContextWithSession(ctx, sess)
			if bearer {
				ctx = shared.ContextWithBearer(ctx)
			}

			wrapped := &responseWriterWithCommit{
				ResponseWriter: w,
				sess:           sess,
				manager:        cfg.SessionManager,
				ctx:            context.WithoutCancel(ctx),
				req:            r.WithContext(ctx),
				bearer:         bearer,
				logger:         cfg.Logger,
			}
			next.ServeHTTP(wrapped, r.WithContext(ctx))
			wrapped.finish()
		})
	}
}

func loadSession(ctx context.Context, cfg MiddlewareConfig, r *http.Request) (*shared.Session, bool, error) {
	raw, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok || cfg.Tokens == nil {
		sess, err := cfg.SessionManager.Load(ctx, r)
		return sess, false, err
	}
	claims, err := cfg.Tokens.Parse(raw)
	if err != nil {
		return nil, true, err
	}
	sess, err := cfg.SessionManager.LoadByID(ctx, claims.SessionID)
	if err != nil {
		return nil, true, err
	}
	userID, err := claims.UserID()
	if err != nil || sess.User() != strconv.FormatInt(userID, 10) {
		return nil, true, auth.ErrInvalidToken
	}
	return sess, true, nil
}

// CSRFMiddleware rejects unsafe cookie-session requests without a valid token.
func CSRFMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	exempt := make(map[string]struct{}, len(cfg.CSRFExempt))
	for _, p := range cfg.CSRFExempt {
		exempt[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := exempt[r.URL.Path]; ok || cfg.CSRFManager.Exempt(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}
			sess := shared.SessionFromContext(r.Context())
			if sess == nil {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", shared.ErrCSRFTokenMissing.Error())
				return
			}
			token := r.Header.Get(shared.CSRFHeader)
			if token == "" {
				token = r.PostFormValue(shared.CSRFFormField)
			}
			if err := cfg.CSRFManager.VerifyToken(r.Context(), sess, token); err != nil {
				cfg.Logger.Warn("csrf validation failed", slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MiddlewareStack installs the LMS middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
	}
	if !InTestMode() {
		middlewares = append(middlewares, httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}
	middlewares = append(middlewares,
		middleware.Timeout(timeout),
		SessionMiddleware(cfg),
		CSRFMiddleware(cfg),
	)
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}
