package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

/*
RedisConfig Redis 连接配置
功能：transient 存储与限流计数共享同一连接
*/
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

/*
RedisClient Redis 客户端封装
功能：持有 go-redis 客户端，负责建连时的探活和关闭
*/
type RedisClient struct {
	client *redis.Client
}

/*
NewRedisClient 创建 Redis 客户端
功能：地址为空时返回 nil, nil（Redis 为可选组件）；Ping 失败返回错误。
*/
func NewRedisClient(cfg *RedisConfig) (*RedisClient, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, nil
	}

	dial, read, write := cfg.DialTimeout, cfg.ReadTimeout, cfg.WriteTimeout
	if dial == 0 {
		dial = 5 * time.Second
	}
	if read == 0 {
		read = 3 * time.Second
	}
	if write == 0 {
		write = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  dial,
		ReadTimeout:  read,
		WriteTimeout: write,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dial)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis 连接失败 [%s]: %w", cfg.Addr, err)
	}

	log.Printf("✓ Redis 连接成功 [%s]", cfg.Addr)
	return &RedisClient{client: client}, nil
}

/* Client 底层 go-redis 客户端 */
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

/* IsAvailable 通过 Ping 检测连接状态 */
func (r *RedisClient) IsAvailable(ctx context.Context) bool {
	if r == nil || r.client == nil {
		return false
	}
	return r.client.Ping(ctx).Err() == nil
}

/* Close 关闭连接 */
func (r *RedisClient) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
