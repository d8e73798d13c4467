/*
Package cache transient 存储

带过期时间的键值存储，承载响应缓存、限流计数与后台扫描状态。
配置了 Redis 时使用 RedisStore，否则回退到进程内的 MemoryStore。
*/
package cache

import (
	"context"
	"time"
)

/*
Store transient 存储接口
功能：Get 未命中时返回 ok=false 且 err=nil；ttl<=0 表示不过期。
*/
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	/* DeletePrefix 删除所有以 prefix 开头的键，返回删除数量 */
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}
