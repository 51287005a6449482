package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sakif/questlog/internal/apperror"
	"github.com/sakif/questlog/internal/auth"
	"github.com/sakif/questlog/internal/service"
)

const (
	stateCookie    = "oauth_state"
	verifierCookie = "oauth_verifier"
	returnCookie   = "oauth_return_to"

	// How long the browser has to finish the provider round trip.
	loginFlowTTL = 10 * time.Minute
)

// IdentityProvider is the OpenID Connect side of the login flow.
// *auth.OIDCProvider implements it.
type IdentityProvider interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*auth.Identity, error)
}

// AuthConfig holds the handler's deployment-specific settings.
type AuthConfig struct {
	Returns      ReturnPolicy
	CookieSecure bool // set Secure on cookies (HTTPS deployments)
}

// AuthHandler serves the login flow and the session endpoints:
//   - HandleLogin       → redirect to the provider with state + PKCE
//   - HandleCallback    → verify, upsert the user, open a session
//   - HandleCurrentUser → who is logged in (401 with empty body if nobody)
//   - HandleLogout      → revoke the session and expire the cookie
//   - HandleMe          → profile for RequireAuth-protected clients
type AuthHandler struct {
	provider IdentityProvider
	svc      *service.AuthService
	config   AuthConfig
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(
	provider IdentityProvider,
	authService *service.AuthService,
	config AuthConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		svc:      authService,
		config:   config,
		logger:   logger,
	}
}

// HandleLogin starts the authorization code flow.
//
// HTTP: GET /api/auth/oidc[?return_to=<url>]
//
// The state (CSRF check), the PKCE verifier and the validated return target
// ride along in short-lived HttpOnly cookies until the callback.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	returnTo := r.URL.Query().Get("return_to")
	if _, _, err := h.config.Returns.Resolve(returnTo); err != nil {
		writeError(w, err)
		return
	}

	state, err := auth.NewState()
	if err != nil {
		h.logger.Error("auth login: generating state", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	verifier := auth.NewVerifier()

	h.setFlowCookie(w, stateCookie, state)
	h.setFlowCookie(w, verifierCookie, verifier)
	if returnTo != "" {
		h.setFlowCookie(w, returnCookie, returnTo)
	}

	http.Redirect(w, r, h.provider.AuthCodeURL(state, verifier), http.StatusFound)
}

// HandleCallback completes the login.
//
// HTTP: GET /api/auth/oidc/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Check state against the cookie (CSRF)
//  2. Exchange the code with the PKCE verifier; verify the ID token
//  3. Upsert the user and open a session
//  4. Set the session cookie and redirect with oauth=1 so the client
//     re-checks its session
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	stateC, err := r.Cookie(stateCookie)
	if err != nil || stateC.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	if q.Get("state") != stateC.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, apperror.Forbidden("OAuth state does not match this browser"))
		return
	}

	var verifier, returnTo string
	if c, err := r.Cookie(verifierCookie); err == nil {
		verifier = c.Value
	}
	if c, err := r.Cookie(returnCookie); err == nil {
		returnTo = c.Value
	}
	h.clearFlowCookies(w)

	target, loopback, err := h.config.Returns.Resolve(returnTo)
	if err != nil {
		writeError(w, err)
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: provider returned error", slog.String("error", errParam))
		http.Redirect(w, r, withParams(target, url.Values{"auth": {"denied"}}), http.StatusSeeOther)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code, verifier)
	if err != nil {
		h.logger.Error("auth callback: code exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "authentication failed",
		})
		return
	}

	result, err := h.svc.LoginOrRegisterOIDC(r.Context(), identity)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.String("oidcID", identity.Key()),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.logger.Info("user authenticated",
		slog.String("userID", result.User.ID),
		slog.Bool("created", result.Created),
	)

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.Session.ExpiresAt,
		MaxAge:   int(time.Until(result.Session.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	params := url.Values{"oauth": {"1"}}
	if loopback {
		// A CLI listener cannot read our cookie; hand it the token directly.
		params.Set("session", result.Token)
	}
	http.Redirect(w, r, withParams(target, params), http.StatusSeeOther)
}

// HandleCurrentUser returns the logged-in user.
//
// HTTP: GET /api/auth/current_user
// Auth: OptionalAuth
//
// Anonymous callers get 401 with an empty body; clients treat any
// non-2xx as "not logged in".
func (h *AuthHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	user, err := h.svc.CurrentUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h.logger.Error("current_user: lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleLogout revokes the session and expires the cookie.
//
// HTTP: GET or POST /api/auth/logout
// Auth: OptionalAuth
//
// Logging out without a session still succeeds. The cookie is expired even
// if revoking the record fails, so the browser is logged out either way.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if sessionID, ok := auth.SessionIDFromContext(r.Context()); ok {
		if err := h.svc.Logout(r.Context(), sessionID); err != nil {
			h.logger.Error("logout: revoking session failed",
				slog.String("sessionID", sessionID),
				slog.String("error", err.Error()),
			)
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /api/me
// Auth: RequireAuth
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.svc.CurrentUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/api/auth",
		MaxAge:   int(loginFlowTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// The flow cookies are single-use.
func (h *AuthHandler) clearFlowCookies(w http.ResponseWriter) {
	for _, name := range []string{stateCookie, verifierCookie, returnCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/api/auth",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// withParams returns target with params merged into its query string.
func withParams(target *url.URL, params url.Values) string {
	u := *target
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}
