// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/authgate/internal/auth"
	"github.com/hitoshi/authgate/internal/config"
	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 10 * time.Minute
)

// AuthService は認証ハンドラーが必要とするサービスインターフェース。
type AuthService interface {
	LoginURL(state string) string
	HandleCallback(ctx context.Context, req auth.CallbackRequest) (*model.Session, error)
	Logout(ctx context.Context, token string) error
}

// CookieCodec はセッションとCookie値の相互変換を行う。
type CookieCodec interface {
	Sign(session *model.Session) (string, error)
	Verify(value string) (string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie     config.CookiePolicy
	SuccessURL string
	FailureURL string
	LogoutURL  string
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthService
	cookies CookieCodec
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthService, cookies CookieCodec, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookies: cookies,
		config:  config,
	}
}

// ProfileResponse は GET /profile のレスポンス。
type ProfileResponse struct {
	ID          string `json:"id"`
	ProviderID  string `json:"providerId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl"`
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/login, GET /auth/google
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, h.stateCookie(state, int(oauthStateMaxAge/time.Second)))

	http.Redirect(w, r, h.service.LoginURL(state), http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/callback, GET /auth/google/callback
// 失敗時は理由によらず単一の失敗URLへリダイレクトし、セッションCookieは発行しない。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := auth.CallbackRequest{
		Code:          query.Get("code"),
		State:         query.Get("state"),
		ProviderError: query.Get("error"),
	}
	if c, err := r.Cookie(oauthStateCookie); err == nil {
		req.ExpectedState = c.Value
	}

	// stateは一度きり
	http.SetCookie(w, h.stateCookie("", -1))

	session, err := h.service.HandleCallback(r.Context(), req)
	if err != nil {
		http.Redirect(w, r, h.config.FailureURL, http.StatusFound)
		return
	}

	value, err := h.cookies.Sign(session)
	if err != nil {
		slog.Error("failed to sign session cookie", slog.String("error", err.Error()))
		if logoutErr := h.service.Logout(r.Context(), session.ID); logoutErr != nil {
			slog.Error("failed to discard unsigned session", slog.String("error", logoutErr.Error()))
		}
		http.Redirect(w, r, h.config.FailureURL, http.StatusFound)
		return
	}

	h.discardPreviousSession(r)

	http.SetCookie(w, h.config.Cookie.NewCookie(value))
	http.Redirect(w, r, h.config.SuccessURL, http.StatusFound)
}

// discardPreviousSession はログイン前に保持していたセッションを破棄する。
// 失敗してもログイン自体は成功として扱う。
func (h *AuthHandler) discardPreviousSession(r *http.Request) {
	token, ok := h.sessionToken(r)
	if !ok {
		return
	}
	if err := h.service.Logout(r.Context(), token); err != nil {
		slog.Warn("failed to discard previous session", slog.String("error", err.Error()))
	}
}

// Profile は現在のログインユーザー情報を返す。
// GET /profile（認証ガード配下）
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteUnauthorized(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ProfileResponse{
		ID:          user.ID,
		ProviderID:  user.ProviderID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		AvatarURL:   user.AvatarURL,
	}); err != nil {
		slog.Error("failed to encode profile", slog.String("error", err.Error()))
	}
}

// Logout はセッションを破棄してログアウトURLへリダイレクトする。
// GET /logout
// セッションの破棄に失敗した場合はリダイレクトせず500を返し、Cookieも残す。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := h.sessionToken(r); ok {
		if err := h.service.Logout(r.Context(), token); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewLogoutFailedError())
			return
		}
	}

	http.SetCookie(w, h.config.Cookie.ExpiredCookie())
	http.Redirect(w, r, h.config.LogoutURL, http.StatusFound)
}

// sessionToken は署名を検証済みのセッショントークンを返す。
func (h *AuthHandler) sessionToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(h.config.Cookie.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	token, err := h.cookies.Verify(cookie.Value)
	if err != nil {
		return "", false
	}
	return token, true
}

func (h *AuthHandler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
