package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// HealthCheck はバックエンドの疎通を確認する関数。
type HealthCheck func(ctx context.Context) error

// HealthHandler は GET /health を処理する。
// すべてのチェックが成功すれば200、1つでも失敗すれば503を返す。
type HealthHandler struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checks map[string]HealthCheck, timeout time.Duration) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: timeout}
}

type healthResponse struct {
	Status string   `json:"status"`
	Failed []string `json:"failed,omitempty"`
}

// ServeHTTP はhttp.Handlerを実装する。
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var failed []string
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			slog.Warn("health check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)

	status := http.StatusOK
	body := healthResponse{Status: "ok"}
	if len(failed) > 0 {
		status = http.StatusServiceUnavailable
		body = healthResponse{Status: "unavailable", Failed: failed}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode health response", slog.String("error", err.Error()))
	}
}
