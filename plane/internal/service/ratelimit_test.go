package service

import (
	"context"
	"testing"
	"time"

	"sashosting/plane/internal/db/cache"
)

func TestRateLimiter_NthAllowedNPlusOneDenied(t *testing.T) {
	store := cache.NewMemoryStore()
	rl := NewRateLimiter(store)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		d := rl.Allow(ctx, "unused_js", "203.0.113.9_abc", 10)
		if !d.Allowed {
			t.Fatalf("第 %d 次请求应放行", i)
		}
		if d.Remaining != 10-i {
			t.Fatalf("第 %d 次请求 Remaining 应为 %d, got %d", i, 10-i, d.Remaining)
		}
	}

	d := rl.Allow(ctx, "unused_js", "203.0.113.9_abc", 10)
	if d.Allowed {
		t.Fatal("第 11 次请求应被拒绝")
	}
	if d.RetryAfter != 60 || d.Remaining != 0 {
		t.Fatalf("拒绝时 RetryAfter=60 Remaining=0, got %d %d", d.RetryAfter, d.Remaining)
	}

	/* 不同端点、不同指纹互不影响 */
	if !rl.Allow(ctx, "plugin_list", "203.0.113.9_abc", 10).Allowed {
		t.Fatal("其他端点不应受影响")
	}
	if !rl.Allow(ctx, "unused_js", "198.51.100.1_abc", 10).Allowed {
		t.Fatal("其他客户端不应受影响")
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	store := cache.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store.SetClock(clock)
	rl := NewRateLimiter(store)
	rl.SetClock(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rl.Allow(ctx, "core_list", "fp", 3)
	}
	if rl.Allow(ctx, "core_list", "fp", 3).Allowed {
		t.Fatal("超过上限应被拒绝")
	}

	now = now.Add(61 * time.Second)
	d := rl.Allow(ctx, "core_list", "fp", 3)
	if !d.Allowed || d.Remaining != 2 {
		t.Fatalf("窗口过期后应重新计数, got allowed=%v remaining=%d", d.Allowed, d.Remaining)
	}
	if !d.Reset.Equal(now.Add(60 * time.Second)) {
		t.Fatalf("Reset 应为当前时间 +60s, got %v", d.Reset)
	}
}

func TestRateLimitKey(t *testing.T) {
	a := RateLimitKey("pages_list", "1.2.3.4")
	b := RateLimitKey("pages_list", "1.2.3.4")
	c := RateLimitKey("posts_list", "1.2.3.4")
	if a != b || a == c {
		t.Fatal("键应由端点与指纹确定")
	}
	if len(a) != len("sas_api_rate_limit_")+32 {
		t.Fatalf("键格式异常: %s", a)
	}
}
