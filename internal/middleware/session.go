// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authgate/internal/auth"
	"github.com/hitoshi/authgate/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// CookieVerifier は署名付きCookie値からセッショントークンを取り出す。
type CookieVerifier interface {
	Verify(value string) (string, error)
}

// Authenticator はセッショントークンからユーザーを解決する。
// auth.Serviceの部分集合として定義する。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// UnauthorizedRecorder は未認証アクセスを記録する。
type UnauthorizedRecorder interface {
	RecordUnauthorized()
}

// NewAuthMiddleware はセッションCookieを検証し、認証済みユーザーを
// リクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには 401 {"message":"Unauthorized"} を返し、リダイレクトはしない。
// ストア障害の場合は500を返す。
func NewAuthMiddleware(cookieName string, verifier CookieVerifier, authn Authenticator, recorder UnauthorizedRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			unauthorized := func(reason string) {
				slog.Debug("request rejected by auth guard",
					slog.String("reason", reason),
					slog.String("path", r.URL.Path),
				)
				recorder.RecordUnauthorized()
				WriteUnauthorized(w)
			}

			// 1. CookieからCookie値を取得
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				unauthorized("missing cookie")
				return
			}

			// 2. 署名を検証してセッショントークンを取り出す
			token, err := verifier.Verify(cookie.Value)
			if err != nil {
				unauthorized("invalid cookie")
				return
			}

			// 3. セッションからユーザーを解決
			user, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthorized) {
					unauthorized("no session")
					return
				}
				slog.Error("failed to authenticate request",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			setLogUserID(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ガードを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// ContextWithUser はコンテキストにユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
