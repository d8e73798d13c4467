/*
Package metrics Prometheus 指标

指标注册在默认 Registry 上，由 /metrics 暴露（仅本机访问）。
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	/* RateLimitDenied 被限流拒绝的请求 */
	RateLimitDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sas_rate_limit_denied_total",
		Help: "Requests denied by the per-endpoint rate limiter.",
	}, []string{"endpoint"})

	/* ResponseCache 响应缓存命中情况，result 为 hit / miss */
	ResponseCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sas_response_cache_total",
		Help: "Response cache lookups by endpoint and result.",
	}, []string{"endpoint", "result"})

	/* ProviderRequests 对认证提供方的调用，outcome 为 ok / rejected / error */
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sas_provider_requests_total",
		Help: "Outbound calls to the authentication provider.",
	}, []string{"action", "outcome"})

	/* ScanDuration 扫描耗时 */
	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sas_scan_duration_seconds",
		Help:    "Wall-clock duration of diagnostic scans.",
		Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 25, 60, 300},
	}, []string{"scan"})

	/* Events 生命周期事件 */
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sas_lifecycle_events_total",
		Help: "Lifecycle events received from the framework adapter.",
	}, []string{"event"})
)
