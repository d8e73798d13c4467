package service

import (
	"sync/atomic"
	"testing"
	"time"

	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db/cache"
	"sashosting/plane/internal/db/dao"
	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/site"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

/*
testEnv 服务层测试环境
功能：内存 SQLite + 内存 transient，queries 统计实际发出的查询次数
*/
type testEnv struct {
	cfg     *config.Config
	db      *gorm.DB
	dao     *dao.DAO
	site    *site.Site
	store   *cache.MemoryStore
	cache   *ResponseCache
	queries *atomic.Int64
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}
	/* 内存库每个连接相互独立，限制为单连接 */
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.AuditLog{}, &models.Plugin{}, &models.Theme{},
		&models.Script{}, &models.Option{}, &models.Post{}, &models.Term{},
	); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}

	var queries atomic.Int64
	if err := db.Callback().Query().After("gorm:query").Register("test:count", func(*gorm.DB) {
		queries.Add(1)
	}); err != nil {
		t.Fatalf("注册查询计数失败: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Site.URL = "https://example.com"
	cfg.Site.Name = "Example"

	d := dao.New(db)
	store := cache.NewMemoryStore()
	return &testEnv{
		cfg:     cfg,
		db:      db,
		dao:     d,
		site:    site.New(cfg, d),
		store:   store,
		cache:   NewResponseCache(store),
		queries: &queries,
	}
}

func (e *testEnv) mustCreate(t *testing.T, v any) {
	t.Helper()
	if err := e.db.Create(v).Error; err != nil {
		t.Fatalf("写入测试数据失败: %v", err)
	}
}

func (e *testEnv) publish(t *testing.T, postType, title, slug string, published time.Time) *models.Post {
	t.Helper()
	p := &models.Post{
		Type:        postType,
		Status:      models.PostStatusPublish,
		Title:       title,
		Slug:        slug,
		PublishedAt: published,
		ModifiedAt:  published,
	}
	e.mustCreate(t, p)
	return p
}
