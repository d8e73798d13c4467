package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sashosting/plane/internal/api"
	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db"
	"sashosting/plane/internal/pkg/initializer"
	"sashosting/plane/internal/pkg/logger"
	"sashosting/plane/internal/server"
	"sashosting/plane/internal/service"
	"sashosting/plane/internal/ws"

	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "./config.yaml", "配置文件路径")
	port       = flag.Int("port", 0, "覆盖服务器端口")
)

/*
main 程序入口
启动流程：
 1. 初始化引导日志 → 检测首次运行 → 创建目录/配置/证书
 2. 加载配置文件 → 用配置重新初始化日志
 3. 初始化数据库（SQLite/MySQL/Postgres + 可选 Redis）
 4. 组装服务：会话密钥、SSO 桥接、扫描调度器、配置热更新
 5. 组装路由 → 启动 HTTP/2（+ 可选 HTTP/3）服务器
 6. 等待 SIGINT/SIGTERM → 优雅关闭（等待在途回报与后台扫描）
*/
func main() {
	startupBegin := time.Now()
	flag.Parse()

	/* 阶段 1：引导日志（配置加载前使用临时 console 日志） */
	if err := logger.Init(&logger.Config{
		Level:  "info",
		Format: "console",
	}); err != nil {
		log.Fatalf("初始化日志系统失败: %v", err)
	}
	defer logger.Sync()

	/* 阶段 2：首次运行检测与初始化 */
	isFirstRun := initializer.IsFirstRun(*configPath)
	if err := initializer.InitDirectories(); err != nil {
		logger.Fatal("初始化目录失败", zap.Error(err))
	}
	if isFirstRun {
		initializer.PrintWelcome()
		if err := initializer.InitConfig(*configPath); err != nil {
			logger.Fatal("初始化配置失败", zap.Error(err))
		}
		if err := initializer.InitCertificates("./certs"); err != nil {
			logger.Fatal("初始化证书失败", zap.Error(err))
		}
	} else {
		printBanner()
	}

	/* 阶段 3：加载配置 → 用配置重新初始化日志系统 */
	cfg := config.LoadConfigOrDefault(*configPath)
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logger.Fatal("重新初始化日志系统失败", zap.Error(err))
	}

	/* 阶段 4：初始化数据库（必须串行，后续服务依赖它） */
	dbStart := time.Now()
	dbManager, err := db.NewManager(&db.Config{
		DBType:            cfg.Database.Type,
		SQLitePath:        cfg.Database.SQLitePath,
		DBHost:            cfg.Database.Host,
		DBPort:            cfg.Database.Port,
		DBUser:            cfg.Database.User,
		DBPassword:        cfg.Database.Password,
		DBName:            cfg.Database.DBName,
		DBSSLMode:         cfg.Database.SSLMode,
		DBCharset:         cfg.Database.Charset,
		MaxOpenConns:      cfg.Database.MaxOpenConns,
		MaxIdleConns:      cfg.Database.MaxIdleConns,
		DBLogLevel:        cfg.Database.LogLevel,
		RedisAddr:         cfg.Redis.Addr,
		RedisPassword:     cfg.Redis.Password,
		RedisDB:           cfg.Redis.DB,
		RedisPoolSize:     cfg.Redis.PoolSize,
		RedisMinIdleConns: cfg.Redis.MinIdleConns,
		RedisMaxRetries:   cfg.Redis.MaxRetries,
		RedisKeyPrefix:    cfg.Redis.KeyPrefix,
	})
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer dbManager.Close()
	logger.Info("✓ 数据库初始化完成",
		zap.Duration("耗时", time.Since(dbStart)),
		zap.Bool("redis", dbManager.HasRedis()))

	/* 阶段 5：组装服务 */
	app := api.NewApp(cfg, dbManager)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := initializer.InitAdmin(bootCtx, app.DAO, "admin@"+app.Site.Host()); err != nil {
		logger.Fatal("初始化管理员失败", zap.Error(err))
	}
	if err := app.Sessions.Start(bootCtx); err != nil {
		logger.Fatal("初始化会话密钥失败", zap.Error(err))
	}
	bootCancel()

	/* 配置热更新：加固与 SSO 参数通过 config.reloaded 事件下发 */
	if fileExists(*configPath) {
		watcher, err := config.WatchFile(*configPath, func(next *config.Config) {
			app.Events.Publish(context.Background(), service.Event{
				Name: service.EventConfigReloaded,
				Data: map[string]any{"config": next},
			})
		})
		if err != nil {
			logger.Warn("配置文件监听启动失败，热更新不可用", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	wsServer := ws.NewServer(app.Scheduler, cfg.Server.WSMaxConnections)

	/* 阶段 6：组装路由 + 启动 HTTP 服务器 */
	router := api.SetupRouter(app, wsServer)
	http2Addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled && cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		tlsConfig = createTLSConfig(cfg)
	}

	var handler http.Handler = router
	var http3Server *server.HTTP3Server
	if cfg.Server.EnableHTTP3 && tlsConfig != nil {
		http3Addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTP3Port)
		http3Server = server.NewHTTP3Server(http3Addr, router, tlsConfig)
		handler = http3Server.AltSvc(router)
		go func() {
			logger.Info("✓ HTTP/3 (QUIC) 服务器启动", zap.String("addr", http3Addr))
			if err := http3Server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP/3 服务器错误", zap.Error(err))
			}
		}()
	} else if cfg.Server.EnableHTTP3 {
		logger.Warn("HTTP/3 已启用但 TLS 未配置，跳过 HTTP/3 服务器")
	}

	http2Server := server.NewHTTP2Server(
		http2Addr, handler, tlsConfig,
		time.Duration(cfg.Server.ReadTimeout)*time.Second,
		time.Duration(cfg.Server.WriteTimeout)*time.Second,
	)
	go func() {
		var err error
		if tlsConfig != nil {
			logger.Info("✓ HTTPS 服务器启动", zap.String("addr", http2Addr))
			err = http2Server.Start(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			logger.Info("✓ HTTP 服务器启动", zap.String("addr", http2Addr))
			err = http2Server.StartInsecure()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器异常退出", zap.Error(err))
		}
	}()

	logger.Info("✓ SAS Hosting 控制服务启动完成",
		zap.Duration("总耗时", time.Since(startupBegin)),
		zap.String("监听地址", http2Addr),
		zap.String("站点", app.Site.URL()))

	/* 阶段 7：等待退出信号 → 优雅关闭 */
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，正在优雅关闭...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := http2Server.Shutdown(ctx); err != nil {
		logger.Error("关闭 HTTP/2 服务器失败", zap.Error(err))
	}
	if http3Server != nil {
		if err := http3Server.Shutdown(ctx); err != nil {
			logger.Error("关闭 HTTP/3 服务器失败", zap.Error(err))
		}
	}
	if err := app.Scheduler.Stop(ctx); err != nil {
		logger.Warn("等待后台扫描结束超时", zap.Error(err))
	}
	if err := app.Provider.Wait(ctx); err != nil {
		logger.Warn("等待提供方回报结束超时", zap.Error(err))
	}

	logger.Info("✓ 所有服务器已停止")
}

/* createTLSConfig 构造 TLS 配置，min_version 支持 "TLS 1.2" / "TLS 1.3" */
func createTLSConfig(cfg *config.Config) *tls.Config {
	minVersion := uint16(tls.VersionTLS12)
	if cfg.TLS.MinVersion == "TLS 1.3" || cfg.TLS.MinVersion == "1.3" {
		minVersion = tls.VersionTLS13
	}
	tc := &tls.Config{MinVersion: minVersion}
	if cfg.TLS.EnableALPN {
		tc.NextProtos = []string{"h2", "http/1.1"}
	}
	return tc
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════╗
║                                                       ║
║   ███████╗ █████╗ ███████╗                            ║
║   ██╔════╝██╔══██╗██╔════╝                            ║
║   ███████╗███████║███████╗                            ║
║   ╚════██║██╔══██║╚════██║                            ║
║   ███████║██║  ██║███████║                            ║
║   ╚══════╝╚═╝  ╚═╝╚══════╝                            ║
║                                                       ║
║              SAS Hosting Control Service              ║
║                                                       ║
╚═══════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
}
