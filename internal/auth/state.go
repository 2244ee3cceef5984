package auth

import "log/slog"

// LoginState はログイン試行の状態を表す。
//
//	anonymous -> redirected_to_provider -> callback_pending -> authenticated
//	                                           |
//	                                           +-> anonymous（失敗時）
type LoginState string

const (
	StateAnonymous            LoginState = "anonymous"
	StateRedirectedToProvider LoginState = "redirected_to_provider"
	StateCallbackPending      LoginState = "callback_pending"
	StateAuthenticated        LoginState = "authenticated"
)

// transition は状態遷移をログとメトリクスに記録する。
func (s *Service) transition(from, to LoginState, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("from", string(from)), slog.String("to", string(to)))
	for _, a := range attrs {
		args = append(args, a)
	}
	slog.Info("login state transition", args...)
	s.metrics.RecordLoginTransition(string(from), string(to))
}
