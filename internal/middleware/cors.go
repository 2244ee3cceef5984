package middleware

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/rs/cors"

	"github.com/hitoshi/authgate/internal/model"
)

// NewCORSMiddleware は許可オリジンリストに対するCORSミドルウェアを返す。
// credentials送信と共存するため、ワイルドカード(*)は使用しない。
// リスト外のOriginヘッダーを持つリクエストはルーティング前に403で拒否する。
// Originヘッダーのないリクエスト（トップレベル遷移、ヘルスチェック）はそのまま通す。
// オリジンの比較は大文字小文字を区別しない。
func NewCORSMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	origins := make([]string, len(allowedOrigins))
	for i, o := range allowedOrigins {
		origins[i] = strings.ToLower(o)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	})

	return func(next http.Handler) http.Handler {
		corsHandler := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && !slices.Contains(origins, strings.ToLower(origin)) {
				slog.Warn("request from disallowed origin rejected",
					slog.String("origin", origin),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewOriginNotAllowedError())
				return
			}
			corsHandler.ServeHTTP(w, r)
		})
	}
}
