package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "site1:"), mr
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("未命中应返回 ok=false err=nil, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "sas_api_pages_list_a", []byte("A"), time.Minute); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	_ = s.Set(ctx, "sas_api_pages_list_b", []byte("B"), time.Minute)
	_ = s.Set(ctx, "sas_api_plugin_list", []byte("P"), time.Minute)

	v, ok, err := s.Get(ctx, "sas_api_pages_list_a")
	if err != nil || !ok || string(v) != "A" {
		t.Fatalf("读取失败: v=%q ok=%v err=%v", v, ok, err)
	}

	n, err := s.DeletePrefix(ctx, "sas_api_pages_list_")
	if err != nil {
		t.Fatalf("前缀删除失败: %v", err)
	}
	if n != 2 {
		t.Fatalf("应删除 2 个键, got %d", n)
	}
	if _, ok, _ := s.Get(ctx, "sas_api_plugin_list"); !ok {
		t.Fatal("不匹配前缀的键不应被删除")
	}

	if err := s.Delete(ctx, "sas_api_plugin_list"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "sas_api_plugin_list"); ok {
		t.Fatal("删除后仍可读取")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	s, _ := newRedisStore(t)
	exerciseStore(t, s)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("v"), 60*time.Second)
	_ = s.Set(ctx, "forever", []byte("v"), 0)

	now = now.Add(59 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("未到期的键应可读取")
	}

	now = now.Add(time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("到期的键不应再返回")
	}
	if _, ok, _ := s.Get(ctx, "forever"); !ok {
		t.Fatal("ttl=0 的键不应过期")
	}
	if s.Len() != 1 {
		t.Fatalf("Len 应为 1, got %d", s.Len())
	}
}

func TestRedisStoreExpiryAndPrefix(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	_ = s.Set(ctx, "sas_js_scan_x", []byte("{}"), time.Hour)
	if !mr.Exists("site1:sas_js_scan_x") {
		t.Fatal("键应带有站点前缀")
	}

	mr.FastForward(time.Hour)
	if _, ok, _ := s.Get(ctx, "sas_js_scan_x"); ok {
		t.Fatal("过期后不应命中")
	}
}
