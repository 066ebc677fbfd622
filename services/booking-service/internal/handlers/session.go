package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
)

const SessionCookie = "slotbook_admin"

type SessionHandler struct {
	sessions     *auth.Sessions
	creds        auth.Credentials
	logger       *slog.Logger
	secureCookie bool
}

func NewSessionHandler(sessions *auth.Sessions, creds auth.Credentials, logger *slog.Logger, secureCookie bool) *SessionHandler {
	return &SessionHandler{sessions: sessions, creds: creds, logger: logger, secureCookie: secureCookie}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	OK        bool   `json:"ok"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// Login answers POST /api/admin/login with a session token, both as a cookie
// and in the body.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if err := h.creds.Check(req.Username, req.Password); err != nil {
		h.logger.Warn("admin login rejected", "client_ip", httpx.ClientIP(r))
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "ユーザー名またはパスワードが違います。")
		return
	}

	token, exp, err := h.sessions.Issue(strings.TrimSpace(req.Username), auth.RoleAdmin)
	if err != nil {
		h.logger.Error("issue session failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "サーバーでエラーが発生しました。")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.WriteJSON(w, http.StatusOK, loginResponse{OK: true, Token: token, ExpiresAt: formatTime(exp)})
}

// Logout answers POST /api/admin/logout by expiring the cookie. Tokens are
// stateless and stay valid until they expire.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// RequireAdmin accepts a bearer token or the session cookie.
func (h *SessionHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "ログインしてください。")
			return
		}
		claims, err := h.sessions.Verify(token)
		if err != nil || claims.Role != auth.RoleAdmin {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "ログインしてください。")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
