package db

import (
	"fmt"
	"log"

	"sashosting/plane/internal/db/cache"
	"sashosting/plane/internal/db/database"

	"gorm.io/gorm"
)

/*
Manager 数据库管理器
功能：统一管理 GORM 数据库连接与 transient 存储。
未配置 Redis 或连接失败时 transient 回退到进程内存。
*/
type Manager struct {
	GormDB     *gorm.DB    /* GORM 统一数据库 */
	Transients cache.Store /* transient 存储 */

	redis       *database.RedisClient
	stopJanitor func()
}

/*
Config 数据库配置
功能：支持多数据库类型（SQLite/MySQL/PostgreSQL）+ 可选 Redis
*/
type Config struct {
	DBType string

	SQLitePath string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBCharset  string

	MaxOpenConns int
	MaxIdleConns int

	DBLogLevel string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMinIdleConns int
	RedisMaxRetries   int
	RedisKeyPrefix    string
}

/*
NewManager 创建数据库管理器
功能：初始化 GORM 数据库并执行 AutoMigrate，随后选择 transient 后端
*/
func NewManager(cfg *Config) (*Manager, error) {
	manager := &Manager{}

	dbType := cfg.DBType
	if dbType == "" {
		dbType = "sqlite"
	}

	gormCfg := database.DefaultConfig()
	gormCfg.Type = database.DBType(dbType)
	gormCfg.Host = cfg.DBHost
	gormCfg.Port = cfg.DBPort
	gormCfg.User = cfg.DBUser
	gormCfg.Password = cfg.DBPassword
	gormCfg.DBName = cfg.DBName
	gormCfg.SQLitePath = cfg.SQLitePath
	if cfg.DBSSLMode != "" {
		gormCfg.SSLMode = cfg.DBSSLMode
	}
	if cfg.DBCharset != "" {
		gormCfg.Charset = cfg.DBCharset
	}
	if cfg.MaxOpenConns > 0 {
		gormCfg.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		gormCfg.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.DBLogLevel != "" {
		gormCfg.LogLevel = cfg.DBLogLevel
	}

	gormDB, err := database.NewDatabase(gormCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化 GORM 数据库失败: %w", err)
	}
	manager.GormDB = gormDB

	if err := database.AutoMigrate(gormDB); err != nil {
		return nil, fmt.Errorf("数据库自动迁移失败: %w", err)
	}

	if cfg.RedisAddr != "" {
		rc, err := database.NewRedisClient(&database.RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			MinIdleConns: cfg.RedisMinIdleConns,
			MaxRetries:   cfg.RedisMaxRetries,
		})
		if err != nil {
			log.Printf("⚠ Redis 连接失败: %v（继续运行，transient 使用内存）", err)
		} else {
			manager.redis = rc
			manager.Transients = cache.NewRedisStore(rc.Client(), cfg.RedisKeyPrefix)
		}
	}

	if manager.Transients == nil {
		mem := cache.NewMemoryStore()
		manager.stopJanitor = mem.StartJanitor(cacheJanitorInterval)
		manager.Transients = mem
	}

	return manager, nil
}

/*
NewManagerWithDB 使用现成的连接构建管理器
功能：测试中传入内存 SQLite，transient 使用内存存储
*/
func NewManagerWithDB(gormDB *gorm.DB, store cache.Store) *Manager {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &Manager{GormDB: gormDB, Transients: store}
}

/* Close 关闭所有连接 */
func (m *Manager) Close() error {
	var errs []error

	if m.stopJanitor != nil {
		m.stopJanitor()
	}

	if m.GormDB != nil {
		if sqlDB, err := m.GormDB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("GORM 关闭失败: %w", err))
			}
		}
	}

	if err := m.redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("Redis 关闭失败: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("关闭数据库错误: %v", errs)
	}
	return nil
}

/* HasRedis transient 是否由 Redis 承载 */
func (m *Manager) HasRedis() bool {
	return m.redis != nil
}
