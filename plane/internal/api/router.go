package api

import (
	"net/http"
	"strings"

	"sashosting/plane/internal/api/handler/report"
	"sashosting/plane/internal/api/handler/security"
	"sashosting/plane/internal/api/handler/system"
	"sashosting/plane/internal/api/middleware"
	"sashosting/plane/internal/api/response"
	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db"
	"sashosting/plane/internal/types"
	"sashosting/plane/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

/* NewApp 创建应用实例 */
func NewApp(cfg *config.Config, dbManager *db.Manager) *types.App {
	return types.NewApp(cfg, dbManager)
}

/* restPath 拼接 REST 路径：{prefix}/{namespace}/{route} */
func restPath(prefix, namespace, route string) string {
	return strings.TrimRight(prefix, "/") + "/" + strings.Trim(namespace, "/") + "/" + strings.Trim(route, "/")
}

/*
SetupRouter 设置路由
功能：显式登记每条路由与其限流预算。SSO 令牌拦截挂在全局，
任何路径携带 sas_sso_token 都会在到达 handler 前处理完毕。
*/
func SetupRouter(app *types.App, wsServer *ws.Server) *gin.Engine {
	cfg := app.Config
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	/* 全局中间件（顺序敏感：Recovery 最外层捕获所有 panic） */
	router.Use(middleware.Recovery())
	router.Use(middleware.SecurityHeaders(cfg.Server.RESTPrefix))
	router.Use(middleware.BodyLimit(2 << 20))
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Session(app.Sessions))
	router.Use(middleware.SSOIntercept(app.Bridge))

	router.NoRoute(func(c *gin.Context) {
		response.GinNotFound(c, "rest_no_route", "No route was found matching the URL and request method.")
	})

	/* 健康检查 */
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"redis":    app.DB.HasRedis(),
			"site_url": app.Site.URL(),
		})
	})

	/* Prometheus 指标端点（仅限本地访问） */
	router.GET("/metrics", middleware.LocalOnly(), gin.WrapH(promhttp.Handler()))

	limit := func(endpoint string, max int) gin.HandlerFunc {
		return middleware.RateLimit(app.Limiter, endpoint, max)
	}
	defaultLimit := cfg.REST.DefaultRateLimit
	scanLimit := cfg.REST.ScanRateLimit

	/* 远程管理 REST 接口 */
	{
		ns := cfg.REST.Namespace
		p := func(route string) string {
			return restPath(cfg.Server.RESTPrefix, ns, route) + "/"
		}
		noSlash := func(route string) string {
			return restPath(cfg.Server.RESTPrefix, ns, route)
		}

		adminHandler := security.NewAdminHandler(app)
		router.POST(p(cfg.REST.AdminRoute), adminHandler.RequireAdminToken(), adminHandler.Create)

		inventoryHandler := report.NewInventoryHandler(app)
		router.GET(p("plugin/list"), limit("plugin_list", defaultLimit), inventoryHandler.Plugins)
		router.GET(p("theme/list"), limit("theme_list", defaultLimit), inventoryHandler.Themes)
		router.GET(p("core/list"), limit("core_list", defaultLimit), inventoryHandler.Core)
		router.GET(p("site-health/status"), limit("site_health", defaultLimit), inventoryHandler.SiteHealth)

		contentHandler := report.NewContentHandler(app)
		router.GET(p("pages/list"), limit("pages_list", defaultLimit), contentHandler.Pages)
		router.GET(p("posts/list"), limit("posts_list", defaultLimit), contentHandler.Posts)

		scanHandler := report.NewScanHandler(app)
		router.GET(noSlash("performance/unused-js"), limit("unused_js", scanLimit), scanHandler.UnusedJS)
		router.GET(noSlash("performance/scan-status/:scan_id"), limit("scan_status", defaultLimit), scanHandler.ScanStatus)
		router.GET(noSlash("divi/supreme-modules"), scanHandler.DiviSupremeModules)
		router.GET(noSlash("divi/scan-disabled-elements"), scanHandler.DiviDisabledElements)

		if cfg.REST.EnableLegacyAdminRoute {
			legacy := restPath(cfg.Server.RESTPrefix, cfg.REST.LegacyNamespace, cfg.REST.LegacyRoute) + "/"
			zap.L().Warn("⚠ 已注册无鉴权的遗留管理员创建路由，任何人都可创建管理员账户",
				zap.String("path", legacy))
			router.POST(legacy, adminHandler.CreateLegacy)
		}
	}

	/* 单点登录 */
	ssoHandler := security.NewSSOHandler(app)
	router.GET("/sso/logout", ssoHandler.Logout)
	router.POST("/sso/logout", ssoHandler.Logout)
	router.GET("/sso/button", ssoHandler.Button)

	/* 后台扫描状态推送 */
	if wsServer != nil {
		router.GET("/ws/scan/:scan_id", wsServer.HandleScanStatus)
	}

	/* 框架适配层专用入口（仅限本地访问） */
	internal := router.Group("/internal")
	internal.Use(middleware.LocalOnly())
	{
		hooksHandler := system.NewHooksHandler(app)
		hooks := internal.Group("/hooks")
		hooks.Use(middleware.HookSecret(cfg.Hooks.Secret))
		hooks.GET("", hooksHandler.Handlers)
		hooks.POST("/:event", hooksHandler.Dispatch)

		hardeningHandler := system.NewHardeningHandler(app)
		hardening := internal.Group("/hardening")
		hardening.POST("/plugins/enforce", hardeningHandler.EnforcePlugins)
		hardening.POST("/plugins/filter", hardeningHandler.AllPlugins)
		hardening.POST("/plugins/action-links", hardeningHandler.PluginActionLinks)
		hardening.POST("/menu", hardeningHandler.Menu)
		hardening.POST("/admin-bar", hardeningHandler.AdminBar)
		hardening.POST("/capabilities", hardeningHandler.Capabilities)
		hardening.POST("/upload/limit", hardeningHandler.UploadLimit)
		hardening.POST("/upload/prefilter", hardeningHandler.UploadPrefilter)

		brandingHandler := system.NewBrandingHandler(app)
		branding := internal.Group("/branding")
		branding.GET("/admin-head", brandingHandler.AdminHead)
		branding.GET("/admin-footer", brandingHandler.AdminFooter)
		branding.GET("/footer", brandingHandler.Footer)

		ssoInternal := internal.Group("/sso")
		ssoInternal.GET("/notice", ssoHandler.Notice)
		ssoInternal.GET("/config", ssoHandler.GetConfig)
		ssoInternal.POST("/config", ssoHandler.SetConfig)
		ssoInternal.POST("/config/reset", ssoHandler.ResetConfig)
	}

	return router
}
