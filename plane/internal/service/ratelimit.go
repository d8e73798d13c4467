package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"time"

	"sashosting/plane/internal/db/cache"
	"sashosting/plane/internal/metrics"

	"go.uber.org/zap"
)

/* RateLimitWindow 固定窗口长度 */
const RateLimitWindow = 60 * time.Second

/*
RateDecision 限流判定结果
功能：Allowed 之外的字段用于输出 X-RateLimit-* 响应头
*/
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter int /* 秒，仅拒绝时有意义 */
}

/*
RateLimiter transient 计数限流器
功能：键为 md5(endpoint + "_" + fingerprint)。首次请求写入 1，之后每次放行写入 +1 并刷新 60 秒过期；
计数达到上限即拒绝。读取失败按“不存在”处理，即放行。
*/
type RateLimiter struct {
	store  cache.Store
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

/* NewRateLimiter 创建限流器 */
func NewRateLimiter(store cache.Store) *RateLimiter {
	return &RateLimiter{
		store:  store,
		window: RateLimitWindow,
		now:    time.Now,
		logger: zap.L().Named("rate-limit"),
	}
}

/* SetClock 替换时间源，供测试使用 */
func (r *RateLimiter) SetClock(now func() time.Time) {
	r.now = now
}

/* RateLimitKey 计数器的 transient 键 */
func RateLimitKey(endpoint, fingerprint string) string {
	sum := md5.Sum([]byte(endpoint + "_" + fingerprint))
	return "sas_api_rate_limit_" + hex.EncodeToString(sum[:])
}

/* Allow 判定一次请求 */
func (r *RateLimiter) Allow(ctx context.Context, endpoint, fingerprint string, max int) RateDecision {
	key := RateLimitKey(endpoint, fingerprint)
	d := RateDecision{Limit: max, Reset: r.now().Add(r.window)}

	requests := 0
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn("读取限流计数失败，按首次请求处理", zap.String("endpoint", endpoint), zap.Error(err))
		ok = false
	}
	if ok {
		requests, _ = strconv.Atoi(string(raw))
	}

	if ok && requests >= max {
		d.Remaining = 0
		d.RetryAfter = int(r.window / time.Second)
		metrics.RateLimitDenied.WithLabelValues(endpoint).Inc()
		return d
	}

	if err := r.store.Set(ctx, key, []byte(strconv.Itoa(requests+1)), r.window); err != nil {
		r.logger.Warn("写入限流计数失败", zap.String("endpoint", endpoint), zap.Error(err))
	}
	d.Allowed = true
	d.Remaining = max - requests - 1
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d
}
