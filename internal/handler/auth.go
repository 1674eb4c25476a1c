package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sakif/opensource-hub/internal/service"
)

// RefreshCookieName is the HttpOnly cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

// AuthHandler manages the GitHub OAuth callback and the session endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGitHubCallback → complete the login, set the refresh cookie,
//     redirect to the frontend with the access token
//   - HandleRefresh        → trade the refresh cookie for a new token pair
//   - HandleLogout         → clear the refresh cookie
//
// The login itself starts in the frontend: it generates the state (redirect
// path + csrf UUID), keeps the csrf token, and sends the browser to GitHub.
// GitHub then calls us back with ?code&state.
type AuthHandler struct {
	auth          *service.AuthService
	frontendURL   string
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(
	auth *service.AuthService,
	frontendURL string,
	secureCookies bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:          auth,
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /github/callback?code=xxx&state=yyy
//
// On success the browser is redirected (302) to
//
//	{frontend}/auth/callback?token=<access>&oauthCsrf=<csrf>&redirectTo=<path>
//
// The frontend compares oauthCsrf with the token it stored before leaving
// for GitHub; on a mismatch it discards the token and calls POST /logout.
// Rejections are JSON errors (400) and set no cookie.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	res, err := h.auth.CompleteGitHubLogin(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setRefreshCookie(w, res.RefreshToken, h.auth.RefreshMaxAge())

	target := url.Values{}
	target.Set("token", res.AccessToken)
	target.Set("oauthCsrf", res.State.CSRFToken)
	target.Set("redirectTo", res.State.RedirectTo)

	http.Redirect(w, r, h.frontendURL+"/auth/callback?"+target.Encode(), http.StatusFound)
}

// HandleRefresh issues a new access token and rotates the refresh cookie.
//
// HTTP: PATCH /token/refresh
// Response: {"token": "<access>"}
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var refresh string
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		refresh = c.Value
	}

	session, err := h.auth.Refresh(refresh)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setRefreshCookie(w, session.RefreshToken, h.auth.RefreshMaxAge())
	writeJSON(w, http.StatusOK, map[string]string{"token": session.AccessToken})
}

// HandleLogout clears the refresh cookie.
//
// HTTP: POST /logout
//
// Tokens are stateless, so logging out only removes the cookie. An access
// token already handed out stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// setRefreshCookie writes the refresh token cookie.
//
//   - HttpOnly: JavaScript cannot read it (XSS)
//   - SameSite=Strict: never sent on cross-site requests (CSRF)
//   - Secure in production: HTTPS only
func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	h.setRefreshCookie(w, "", -1)
}
