// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン試行の結果ラベル
const (
	ResultSuccess          = "success"
	ResultProviderDenied   = "provider_denied"
	ResultProviderExchange = "provider_exchange_failed"
	ResultResolutionFailed = "resolution_failed"
	ResultSessionFailed    = "session_failed"
	ResultFailure          = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、認証ガード、セッション掃除ジョブから利用する。
type MetricsCollector interface {
	RecordLoginAttempt(result string)
	RecordLoginTransition(from, to string)
	RecordUserCreated()
	RecordLogout(result string)
	RecordUnauthorized()
	RecordProviderExchange(duration time.Duration)
	RecordSessionsSwept(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginAttempts    *prometheus.CounterVec
	loginTransitions *prometheus.CounterVec
	usersCreated     prometheus.Counter
	logouts          *prometheus.CounterVec
	unauthorized     prometheus.Counter
	providerExchange prometheus.Histogram
	sessionsSwept    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_login_attempts_total",
			Help: "コールバック処理の結果別件数",
		}, []string{"result"}),
		loginTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_login_transitions_total",
			Help: "ログイン状態の遷移件数",
		}, []string{"from", "to"}),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_users_created_total",
			Help: "初回ログインで作成されたユーザー数",
		}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_logout_total",
			Help: "ログアウトの結果別件数",
		}, []string{"result"}),
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_unauthorized_total",
			Help: "認証ガードで拒否されたリクエスト数",
		}),
		providerExchange: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authgate_provider_exchange_seconds",
			Help:    "IdPとの認可コード交換にかかった時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_sessions_swept_total",
			Help: "掃除ジョブで削除された期限切れセッション数",
		}),
	}

	reg.MustRegister(
		c.loginAttempts,
		c.loginTransitions,
		c.usersCreated,
		c.logouts,
		c.unauthorized,
		c.providerExchange,
		c.sessionsSwept,
	)

	return c
}

// RecordLoginAttempt はコールバック処理の結果を記録する。
func (c *Collector) RecordLoginAttempt(result string) {
	c.loginAttempts.WithLabelValues(result).Inc()
}

// RecordLoginTransition はログイン状態の遷移を記録する。
func (c *Collector) RecordLoginTransition(from, to string) {
	c.loginTransitions.WithLabelValues(from, to).Inc()
}

// RecordUserCreated はユーザー作成を記録する。
func (c *Collector) RecordUserCreated() {
	c.usersCreated.Inc()
}

// RecordLogout はログアウトの結果を記録する。
func (c *Collector) RecordLogout(result string) {
	c.logouts.WithLabelValues(result).Inc()
}

// RecordUnauthorized は認証ガードでの拒否を記録する。
func (c *Collector) RecordUnauthorized() {
	c.unauthorized.Inc()
}

// RecordProviderExchange は認可コード交換の所要時間を記録する。
func (c *Collector) RecordProviderExchange(duration time.Duration) {
	c.providerExchange.Observe(duration.Seconds())
}

// RecordSessionsSwept は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsSwept(count int64) {
	c.sessionsSwept.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
