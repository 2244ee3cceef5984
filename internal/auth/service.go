// Package auth はOAuthログインフロー、ユーザーの解決、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/model"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	ProviderTimeout time.Duration // 認可コード交換のタイムアウト
	StoreTimeout    time.Duration // ストア操作のタイムアウト
}

// CallbackRequest はIdPからのコールバックで受け取った値。
type CallbackRequest struct {
	Code          string // 認可コード
	State         string // クエリのstate
	ExpectedState string // ログイン開始時にCookieへ保存したstate
	ProviderError string // errorクエリ（同意拒否など）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider IdentityProvider
	resolver *Resolver
	sessions *SessionManager
	metrics  metrics.MetricsCollector
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	provider IdentityProvider,
	resolver *Resolver,
	sessions *SessionManager,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		provider: provider,
		resolver: resolver,
		sessions: sessions,
		metrics:  collector,
		config:   config,
	}
}

// LoginURL はIdPの認可URLを返す。
func (s *Service) LoginURL(state string) string {
	s.transition(StateAnonymous, StateRedirectedToProvider)
	return s.provider.AuthCodeURL(state)
}

// HandleCallback はIdPからのコールバックを処理し、セッションを発行する。
//
// 返すエラーは ErrProviderDenied、ErrProviderExchange、ErrResolutionFailed、
// ErrSessionFailed のいずれかをラップしている。詳細はサーバーログにのみ出力し、
// 呼び出し側はブラウザを失敗URLへリダイレクトするだけでよい。
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) (*model.Session, error) {
	s.transition(StateRedirectedToProvider, StateCallbackPending)

	if err := validateCallback(req); err != nil {
		return nil, s.fail(metrics.ResultProviderDenied, err)
	}

	profile, err := s.exchange(ctx, req.Code)
	if err != nil {
		if errors.Is(err, ErrProviderDenied) {
			return nil, s.fail(metrics.ResultProviderDenied, err)
		}
		return nil, s.fail(metrics.ResultProviderExchange, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	user, err := s.resolver.Resolve(storeCtx, profile)
	if err != nil {
		return nil, s.fail(metrics.ResultResolutionFailed, fmt.Errorf("%w: %w", ErrResolutionFailed, err))
	}

	session, err := s.sessions.Establish(storeCtx, user)
	if err != nil {
		return nil, s.fail(metrics.ResultSessionFailed, fmt.Errorf("%w: %w", ErrSessionFailed, err))
	}

	s.transition(StateCallbackPending, StateAuthenticated, slog.String("user_id", user.ID))
	s.metrics.RecordLoginAttempt(metrics.ResultSuccess)
	return session, nil
}

// validateCallback はIdPのエラー応答、stateの一致、認可コードの有無を検証する。
func validateCallback(req CallbackRequest) error {
	if req.ProviderError != "" {
		return fmt.Errorf("%w: %s", ErrProviderDenied, req.ProviderError)
	}
	if req.ExpectedState == "" || subtle.ConstantTimeCompare([]byte(req.State), []byte(req.ExpectedState)) != 1 {
		return fmt.Errorf("%w: state mismatch", ErrProviderDenied)
	}
	if req.Code == "" {
		return fmt.Errorf("%w: missing authorization code", ErrProviderDenied)
	}
	return nil
}

// exchange はタイムアウト付きで認可コードを交換する。
func (s *Service) exchange(ctx context.Context, code string) (*ProviderProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	defer cancel()

	start := time.Now()
	profile, err := s.provider.Exchange(ctx, code)
	s.metrics.RecordProviderExchange(time.Since(start))

	if err != nil {
		if errors.Is(err, ErrProviderDenied) || errors.Is(err, ErrProviderExchange) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrProviderExchange, err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: empty profile", ErrProviderExchange)
	}
	return profile, nil
}

// fail は失敗をログとメトリクスに記録し、errをそのまま返す。
func (s *Service) fail(result string, err error) error {
	slog.Warn("login failed",
		slog.String("result", result),
		slog.String("error", err.Error()),
	)
	s.metrics.RecordLoginAttempt(result)
	s.transition(StateCallbackPending, StateAnonymous)
	return err
}

// Authenticate はセッショントークンから現在のユーザーを返す。
// 有効なセッションがない場合は ErrUnauthorized を返す。
// ストアの障害はErrUnauthorized以外のエラーとして返す。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	user, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// Logout はセッションを破棄する。
// 破棄に失敗した場合は ErrSessionFailed をラップして返す。
func (s *Service) Logout(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	if err := s.sessions.Destroy(ctx, token); err != nil {
		s.metrics.RecordLogout(metrics.ResultFailure)
		return fmt.Errorf("%w: %w", ErrSessionFailed, err)
	}

	s.metrics.RecordLogout(metrics.ResultSuccess)
	slog.Info("user logged out")
	return nil
}
