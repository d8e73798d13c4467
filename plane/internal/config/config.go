package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	TLS       TLSConfig       `yaml:"tls"`
	Log       LogConfig       `yaml:"log"`
	Site      SiteConfig      `yaml:"site"`
	SSO       SSOConfig       `yaml:"sso"`
	REST      RESTConfig      `yaml:"rest"`
	Hardening HardeningConfig `yaml:"hardening"`
	Hooks     HooksConfig     `yaml:"hooks"`
	Scan      ScanConfig      `yaml:"scan"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	HTTP3Port    int    `yaml:"http3_port"`   // HTTP/3 (QUIC) 端口
	Mode         string `yaml:"mode"`         // debug, release
	EnableHTTP3  bool   `yaml:"enable_http3"` // 启用 HTTP/3
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`

	/* REST 路由前缀，与 CMS 的 /wp-json 保持一致 */
	RESTPrefix string `yaml:"rest_prefix"`

	/* CORS 跨域配置 */
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	/* 扫描状态 WebSocket 最大连接数，0 表示不限制 */
	WSMaxConnections int `yaml:"ws_max_connections"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type     string `yaml:"type"`     // 数据库类型: sqlite, mysql, postgres
	Host     string `yaml:"host"`     // 数据库主机
	Port     int    `yaml:"port"`     // 数据库端口
	User     string `yaml:"user"`     // 数据库用户名
	Password string `yaml:"password"` // 数据库密码
	DBName   string `yaml:"db_name"`  // 数据库名称
	SSLMode  string `yaml:"ssl_mode"` // SSL模式 (postgres)
	Charset  string `yaml:"charset"`  // 字符集 (mysql)

	SQLitePath string `yaml:"sqlite_path"`

	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`

	LogLevel string `yaml:"log_level"` // silent, error, warn, info
}

// RedisConfig Redis配置，地址为空时 transient 回退到进程内存
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
	MaxRetries   int    `yaml:"max_retries"`
	KeyPrefix    string `yaml:"key_prefix"`
}

// AuthConfig 会话配置
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	JWTExpiration int    `yaml:"jwt_expiration"` // 单位：小时
	CookieName    string `yaml:"cookie_name"`
}

// TLSConfig TLS配置
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // TLS 1.2, TLS 1.3
	EnableALPN bool   `yaml:"enable_alpn"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

/*
SiteConfig 站点配置
功能：描述被托管站点本身。URL 决定 SSO 环境判定，RootPath 用于读取脚本文件大小，
Debug 对应 CMS 的调试开关。
*/
type SiteConfig struct {
	URL       string `yaml:"url"`
	HomeURL   string `yaml:"home_url"` // 为空时与 url 相同
	Name      string `yaml:"name"`
	RootPath  string `yaml:"root_path"`
	AdminPath string `yaml:"admin_path"`
	LoginPath string `yaml:"login_path"`
	Debug     bool   `yaml:"debug"`
	Timezone  string `yaml:"timezone"`
}

/*
SSOConfig 外部认证提供方配置
ProviderURL 非空时强制覆盖环境推导出的地址
*/
type SSOConfig struct {
	ProviderURL           string `yaml:"provider_url"`
	ProductionProviderURL string `yaml:"production_provider_url"`
	LocalProviderURL      string `yaml:"local_provider_url"`
	ValidateTimeout       int    `yaml:"validate_timeout"` // 秒
	NotifyTimeout         int    `yaml:"notify_timeout"`   // 秒
}

/*
RESTConfig 远程管理接口配置
EnableLegacyAdminRoute 控制历史遗留的无鉴权管理员创建路由，默认关闭
*/
type RESTConfig struct {
	Namespace              string `yaml:"namespace"`
	AdminRoute             string `yaml:"admin_route"`
	LegacyNamespace        string `yaml:"legacy_namespace"`
	LegacyRoute            string `yaml:"legacy_route"`
	EnableLegacyAdminRoute bool   `yaml:"enable_legacy_admin_route"`
	AdminTokenTimeout      int    `yaml:"admin_token_timeout"` // 秒
	DefaultRateLimit       int    `yaml:"default_rate_limit"`  // 每分钟
	ScanRateLimit          int    `yaml:"scan_rate_limit"`     // 每分钟
}

// HardeningConfig 后台加固配置
type HardeningConfig struct {
	AllowedUsers        []string            `yaml:"allowed_users"`
	RestrictedPlugins   []string            `yaml:"restricted_plugins"`
	RestrictedMenus     []string            `yaml:"restricted_menus"`
	PluginExemptions    map[string][]string `yaml:"plugin_exemptions"` // host → 豁免插件
	UploadExemptDomains []string            `yaml:"upload_exempt_domains"`
	ProtectedPlugin     string              `yaml:"protected_plugin"`
	BrandName           string              `yaml:"brand_name"`
	BrandLogo           string              `yaml:"brand_logo"`
	VendorName          string              `yaml:"vendor_name"`
	VendorMenuSlug      string              `yaml:"vendor_menu_slug"`
	VendorTopbarNode    string              `yaml:"vendor_topbar_node"`
}

// HooksConfig 生命周期回调入口配置
type HooksConfig struct {
	Secret string `yaml:"secret"` // 非空时要求 X-Hook-Secret 头
}

// ScanConfig 全站扫描配置
type ScanConfig struct {
	SyncBudget     int `yaml:"sync_budget"`     // 同步扫描墙钟上限（秒）
	DeferThreshold int `yaml:"defer_threshold"` // 超过该页数转入后台
	DeferDelay     int `yaml:"defer_delay"`     // 后台任务延迟（秒）
	StatusTTL      int `yaml:"status_ttl"`      // 扫描状态保留（秒）
	MaxErrors      int `yaml:"max_errors"`
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	/* 以默认值为底，文件中缺省的字段保持默认 */
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.warnInsecureDefaults()
	return config, nil
}

/*
warnInsecureDefaults 检查生产环境下是否使用了不安全的默认值
功能：release 模式下对默认会话密钥、空回调密钥、开启的遗留路由等输出警告。
*/
func (c *Config) warnInsecureDefaults() {
	if c.REST.EnableLegacyAdminRoute {
		fmt.Println("[SECURITY WARNING] 已启用无鉴权的遗留管理员创建路由 rest.enable_legacy_admin_route，任何人都可创建管理员账户")
	}

	if c.Server.Mode != "release" {
		return
	}

	if c.Auth.JWTSecret == "change-this-secret-in-production" || len(c.Auth.JWTSecret) < 16 {
		fmt.Println("[SECURITY WARNING] 生产环境使用了默认或过短的会话密钥，请立即修改 auth.jwt_secret")
	}
	if c.Hooks.Secret == "" {
		fmt.Println("[SECURITY WARNING] 生命周期回调密钥为空，请配置 hooks.secret")
	}
	for _, o := range c.Server.CORSAllowedOrigins {
		if o == "*" {
			fmt.Println("[SECURITY WARNING] 生产环境 CORS 允许所有来源（*），请配置具体域名白名单 server.cors_allowed_origins")
			break
		}
	}
}

// LoadConfigOrDefault 加载配置或使用默认值
func LoadConfigOrDefault(path string) *Config {
	if path == "" {
		return DefaultConfig()
	}

	config, err := LoadConfig(path)
	if err != nil {
		fmt.Printf("Failed to load config: %v, using defaults\n", err)
		return DefaultConfig()
	}

	return config
}

/*
SiteHomeURL 返回首页地址
功能：home_url 未配置时回退到站点地址，去除末尾斜杠
*/
func (c *Config) SiteHomeURL() string {
	if c.Site.HomeURL != "" {
		return strings.TrimRight(c.Site.HomeURL, "/")
	}
	return strings.TrimRight(c.Site.URL, "/")
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			HTTP3Port:          8443,
			Mode:               "debug",
			EnableHTTP3:        false,
			ReadTimeout:        30,
			WriteTimeout:       60, /* 同步全站扫描最长 25 秒，留出余量 */
			RESTPrefix:         "/wp-json",
			CORSAllowedOrigins: []string{"*"},
			WSMaxConnections:   200,
		},
		Database: DatabaseConfig{
			Type:         "sqlite",
			SQLitePath:   "./data/sashosting.db",
			Host:         "localhost",
			Port:         3306,
			User:         "root",
			DBName:       "sashosting",
			SSLMode:      "disable",
			Charset:      "utf8mb4",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			LogLevel:     "warn",
		},
		Redis: RedisConfig{
			Addr:         "",
			PoolSize:     10,
			MinIdleConns: 3,
			MaxRetries:   3,
			KeyPrefix:    "",
		},
		Auth: AuthConfig{
			JWTSecret:     "change-this-secret-in-production",
			JWTExpiration: 336, /* 14 天，对应“记住我”会话 */
			CookieName:    "sas_session",
		},
		TLS: TLSConfig{
			Enabled:    false,
			MinVersion: "TLS 1.3",
			EnableALPN: true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "./logs/sashosting.log",
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Site: SiteConfig{
			URL:       "http://localhost:8080",
			Name:      "SAS Hosting Site",
			RootPath:  "",
			AdminPath: "/wp-admin/",
			LoginPath: "/wp-login.php",
			Debug:     false,
			Timezone:  "UTC",
		},
		SSO: SSOConfig{
			ProviderURL:           "",
			ProductionProviderURL: "https://annotation.sitesatscale.com",
			LocalProviderURL:      "http://localhost:8000",
			ValidateTimeout:       15,
			NotifyTimeout:         5,
		},
		REST: RESTConfig{
			Namespace:              "sas-hosting/v1",
			AdminRoute:             "tRpgexfNDptNgQEs",
			LegacyNamespace:        "custom/v1",
			LegacyRoute:            "tRpgexfNDptNgQEs",
			EnableLegacyAdminRoute: false,
			AdminTokenTimeout:      10,
			DefaultRateLimit:       30,
			ScanRateLimit:          10,
		},
		Hardening: HardeningConfig{
			AllowedUsers: []string{
				"amazonteam@sitesatscale.com", "sitesatscale", "sas_aws",
				"sas_dev", "sas_tech", "sas_seo", "Sites at Scale",
			},
			RestrictedPlugins:   DefaultRestrictedPlugins(),
			RestrictedMenus:     DefaultRestrictedMenus(),
			PluginExemptions:    map[string][]string{},
			UploadExemptDomains: []string{"www.rivercitycc.com.au"},
			ProtectedPlugin:     "sas_hosting_renamer/sas-hosting-renamer.php",
			BrandName:           "SAS Hosting",
			BrandLogo:           "/wp-content/uploads/2024/08/sas-2024.png",
			VendorName:          "Staq Hosting",
			VendorMenuSlug:      "wpstaq-main.php",
			VendorTopbarNode:    "wp-admin-bar-wpstaq-topbar",
		},
		Scan: ScanConfig{
			SyncBudget:     25,
			DeferThreshold: 20,
			DeferDelay:     5,
			StatusTTL:      3600,
			MaxErrors:      10,
		},
	}
}

/* DefaultRestrictedPlugins 非白名单运维人员不可启用的备份/迁移类插件 */
func DefaultRestrictedPlugins() []string {
	return []string{
		"duplicator/duplicator.php",
		"all-in-one-wp-migration/all-in-one-wp-migration.php",
		"migrate-guru/migrateguru.php",
		"updraftplus/updraftplus.php",
		"backupbuddy/backupbuddy.php",
		"backwpup/backwpup.php",
		"vaultpress/vaultpress.php",
		"blogvault/backup.php",
		"wpvivid/wpvivid.php",
		"user-switching/user-switching.php",
		"wp-migrate-db-pro/wp-migrate-db-pro.php",
		"worker/init.php",
		"wp-migrate-db-pro-compatibility-checker/wp-migrate-db-pro-compatibility-checker.php",
		"wpengine-migration/wpengine-migration.php",
		"duplicator-pro/duplicator-pro.php",
		"wp-clone/wp-clone.php",
		"xcloner-backup-and-restore/xcloner.php",
		"backup-backup/backup-backup.php",
		"backup/backup.php",
		"wp-database-backup/wp-database-backup.php",
		"wp-backup-bank/backup-bank.php",
		"backup-guard/backup-guard.php",
		"wp-migration-duplicator/wp-migration-duplicator.php",
		"migrate-anywhere/migrate-anywhere.php",
		"backup-wd/backup-wd.php",
		"jetbackup/jetbackup.php",
		"siteground-migrator/siteground-migrator.php",
	}
}

/* DefaultRestrictedMenus 需要对非白名单运维人员隐藏的后台菜单 slug */
func DefaultRestrictedMenus() []string {
	return []string{
		"duplicator", "ai1wm_export", "migrate-guru", "updraftplus", "backupbuddy",
		"backwpup", "vaultpress", "blogvault", "wpvivid", "user-switching",
		"duplicator-pro", "wp-clone", "xcloner-backup-and-restore", "backup-backup",
		"wp-database-backup", "backup-guard", "wp-migration-duplicator", "migrate-anywhere",
		"backup-wd", "wp-backup-bank", "wpengine-migration", "jetbackup", "siteground-migrator",
	}
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	/* 0600：仅所有者可读写，配置文件含会话密钥 */
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
