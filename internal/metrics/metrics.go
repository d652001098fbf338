// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// トークン検証結果のラベル値
const (
	VerifyResultValid   = "valid"
	VerifyResultInvalid = "invalid"
	VerifyResultExpired = "expired"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordTokenIssued()
	RecordTokenVerification(result string)
	RecordLogin(outcome string)
	RecordEventLogFailure(stream string)
	RecordHTTPRequest(statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	tokensIssued     prometheus.Counter
	tokenVerify      *prometheus.CounterVec
	logins           *prometheus.CounterVec
	eventLogFailures *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	httpLatency      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oauthrelay_tokens_issued_total",
			Help: "発行したトークンの合計数",
		}),
		tokenVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauthrelay_token_verifications_total",
			Help: "結果別のトークン検証数",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauthrelay_logins_total",
			Help: "結果別のOAuthログイン数",
		}, []string{"outcome"}),
		eventLogFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauthrelay_event_log_write_failures_total",
			Help: "ストリーム別のイベントログ書き込み失敗数",
		}, []string{"stream"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauthrelay_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oauthrelay_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.tokensIssued,
		c.tokenVerify,
		c.logins,
		c.eventLogFailures,
		c.httpStatus,
		c.httpLatency,
	)

	return c
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued() {
	c.tokensIssued.Inc()
}

// RecordTokenVerification はトークン検証の結果を記録する。
func (c *Collector) RecordTokenVerification(result string) {
	c.tokenVerify.WithLabelValues(result).Inc()
}

// RecordLogin はOAuthログインの結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordEventLogFailure はイベントログの書き込み失敗を記録する。
func (c *Collector) RecordEventLogFailure(stream string) {
	c.eventLogFailures.WithLabelValues(stream).Inc()
}

// RecordHTTPRequest はHTTPステータスコードと処理時間を記録する。
func (c *Collector) RecordHTTPRequest(statusCode int, duration time.Duration) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordTokenIssued()                   {}
func (Nop) RecordTokenVerification(string)       {}
func (Nop) RecordLogin(string)                   {}
func (Nop) RecordEventLogFailure(string)         {}
func (Nop) RecordHTTPRequest(int, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
