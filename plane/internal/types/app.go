package types

import (
	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db"
	"sashosting/plane/internal/db/dao"
	"sashosting/plane/internal/service"
	"sashosting/plane/internal/site"
	"sashosting/plane/internal/sso"
)

/*
App 应用实例
功能：显式持有配置、数据库与各业务服务，由路由注入每个 handler，
不依赖任何进程级单例
*/
type App struct {
	Config *config.Config
	DB     *db.Manager
	DAO    *dao.DAO /* GORM 统一数据访问层 */
	Site   *site.Site
	Caps   site.Capabilities

	Events    *service.EventBus
	Responses *service.ResponseCache
	Limiter   *service.RateLimiter
	Users     *service.UserService
	Sessions  *service.SessionManager
	Hardening *service.HardeningService
	Inventory *service.InventoryService
	Content   *service.ContentService
	Scheduler *service.ScanScheduler
	JSScanner *service.JSScanner
	Divi      *service.DiviService

	Provider *sso.Provider
	Bridge   *sso.Bridge
}

/*
NewApp 创建新的应用实例
功能：按依赖顺序组装服务，并登记缓存失效与配置重载回调。
会话密钥需在启动阶段调用 Sessions.Start 后才可签发会话。
*/
func NewApp(cfg *config.Config, dbManager *db.Manager) *App {
	d := dao.New(dbManager.GormDB)
	s := site.New(cfg, d)
	caps := site.NewRegistry(d)
	events := service.NewEventBus()
	store := dbManager.Transients

	responses := service.NewResponseCache(store)
	service.RegisterInvalidation(events, responses)

	users := service.NewUserService(d)
	sessions := service.NewSessionManager(store, cfg.Auth)
	scheduler := service.NewScanScheduler(store, s, cfg.Scan)
	provider := sso.NewProvider()

	return &App{
		Config:    cfg,
		DB:        dbManager,
		DAO:       d,
		Site:      s,
		Caps:      caps,
		Events:    events,
		Responses: responses,
		Limiter:   service.NewRateLimiter(store),
		Users:     users,
		Sessions:  sessions,
		Hardening: service.NewHardeningService(s, cfg.Hardening, events),
		Inventory: service.NewInventoryService(s, responses),
		Content:   service.NewContentService(s, responses),
		Scheduler: scheduler,
		JSScanner: service.NewJSScanner(s, caps, cfg.Scan, scheduler),
		Divi:      service.NewDiviService(s, caps),
		Provider:  provider,
		Bridge:    sso.NewBridge(s, cfg.SSO, users, sessions, provider, events),
	}
}
