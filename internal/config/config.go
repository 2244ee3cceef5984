package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// DeploymentMode はデプロイ環境を表す。Cookieのsecure/sameSiteはこの値から導出する。
type DeploymentMode string

const (
	ModeDevelopment DeploymentMode = "development"
	ModeProduction  DeploymentMode = "production"
)

// StoreBackend はユーザーストアの種類を表す。STORE_URLのスキームから決定する。
type StoreBackend string

const (
	StoreMongo    StoreBackend = "mongodb"
	StorePostgres StoreBackend = "postgres"
	StoreMemory   StoreBackend = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// リクエストハンドラー内で環境変数を直接参照してはならない。
type Config struct {
	// OAuth
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID" validate:"required"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET" validate:"required"`
	GoogleCallbackURL  string        `env:"GOOGLE_CALLBACK_URL" validate:"required,url"`
	ProviderTimeout    time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s" validate:"min=100ms"`

	// Session
	SessionSecret        string        `env:"SESSION_SECRET" validate:"required,min=16"`
	SessionMaxAge        time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h" validate:"min=1m"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1h" validate:"min=1m"`

	// Store
	StoreURL      string        `env:"STORE_URL" validate:"required"`
	StoreDatabase string        `env:"STORE_DATABASE" envDefault:"authgate" validate:"required"`
	RedisURL      string        `env:"REDIS_URL" validate:"omitempty,url"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"5s" validate:"min=100ms"`

	// Frontend
	AllowedOrigins     []string `env:"ALLOWED_ORIGINS" envSeparator:"," validate:"required,min=1,dive,url"`
	FrontendSuccessURL string   `env:"FRONTEND_SUCCESS_URL" validate:"required,url"`
	FrontendFailureURL string   `env:"FRONTEND_FAILURE_URL" validate:"required,url"`
	FrontendLogoutURL  string   `env:"FRONTEND_LOGOUT_URL" validate:"required,url"`

	// Server
	ServerPort     string         `env:"SERVER_PORT" envDefault:"5000" validate:"required,numeric"`
	DeploymentMode DeploymentMode `env:"DEPLOYMENT_MODE" envDefault:"development" validate:"oneof=development production"`
	CookieDomain   string         `env:"COOKIE_DOMAIN"`
	LogLevel       string         `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// 以下は読み込み後に導出する
	Store  StoreBackend
	Cookie CookiePolicy
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は未設定の変数名をまとめてエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = NormalizeOrigin(origin)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	backend, err := storeBackendFromURL(cfg.StoreURL)
	if err != nil {
		return nil, err
	}
	cfg.Store = backend

	cookie, err := DeriveCookiePolicy(cfg.DeploymentMode, cfg.GoogleCallbackURL, cfg.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	cookie.Domain = cfg.CookieDomain
	cookie.MaxAge = cfg.SessionMaxAge
	cfg.Cookie = cookie

	return cfg, nil
}

// validate はstructタグのルールで設定値を検証する。
// フィールド名はenvタグの環境変数名で報告する。
func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.Split(f.Tag.Get("env"), ",")[0]
		if name == "" {
			return f.Name
		}
		return name
	})

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}

	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return fmt.Errorf("invalid environment variables: %v", invalid)
}

// NormalizeOrigin はオリジンをブラウザが送るOriginヘッダーと同じ形にする。
// スキームとホストを小文字にし、末尾のスラッシュを除く。
// ホストを含まない値は検証で弾けるよう、空白と末尾スラッシュの除去だけ行って返す。
func NormalizeOrigin(raw string) string {
	origin := strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return origin
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// storeBackendFromURL はSTORE_URLのスキームからストア種別を判定する。
func storeBackendFromURL(raw string) (StoreBackend, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid STORE_URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "mongodb", "mongodb+srv":
		return StoreMongo, nil
	case "postgres", "postgresql":
		return StorePostgres, nil
	case "memory":
		return StoreMemory, nil
	default:
		return "", fmt.Errorf("unsupported STORE_URL scheme: %q", u.Scheme)
	}
}

// IsProduction は本番モードかどうかを返す。
func (c *Config) IsProduction() bool {
	return c.DeploymentMode == ModeProduction
}

// LogValue はslog.LogValuerを実装する。
// クライアントシークレット、セッションシークレット、接続文字列の認証情報は出力しない。
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("deployment_mode", string(c.DeploymentMode)),
		slog.String("store", string(c.Store)),
		slog.String("store_url", MaskURL(c.StoreURL)),
		slog.Bool("redis_sessions", c.RedisURL != ""),
		slog.String("callback_url", c.GoogleCallbackURL),
		slog.Any("allowed_origins", c.AllowedOrigins),
		slog.Duration("session_max_age", c.SessionMaxAge),
		slog.Bool("cookie_secure", c.Cookie.Secure),
		slog.String("cookie_same_site", sameSiteName(c.Cookie.SameSite)),
		slog.String("port", c.ServerPort),
	)
}

// MaskURL は接続URLに含まれるパスワードをマスクする。
// パースできない場合は全体を伏せる。
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "***"
	}
	return u.Redacted()
}
