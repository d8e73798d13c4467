package service

import (
	"context"

	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/site"

	"go.uber.org/zap"
)

/* PluginEntry 插件列表项 */
type PluginEntry struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

/* ThemeEntry 主题列表项，仅子主题带 parent */
type ThemeEntry struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Type    string `json:"type"`
	Parent  string `json:"parent,omitempty"`
}

/* CoreInfo 核心与运行环境信息 */
type CoreInfo struct {
	WordPressVersion string         `json:"wordpress_version"`
	PHPVersion       string         `json:"php_version"`
	MySQLVersion     string         `json:"mysql_version"`
	ServerSoftware   string         `json:"server_software"`
	MaxUploadSize    string         `json:"max_upload_size"`
	MaxPostSize      string         `json:"max_post_size"`
	MemoryLimit      string         `json:"memory_limit"`
	MaxExecutionTime string         `json:"max_execution_time"`
	UploadDirectory  string         `json:"upload_directory"`
	SiteURL          string         `json:"site_url"`
	HomeURL          string         `json:"home_url"`
	Timezone         string         `json:"timezone"`
	DebugMode        string         `json:"debug_mode"`
	Host             site.HostFacts `json:"host"`
}

/*
InventoryService 站点清单接口
功能：插件、主题、核心信息、站点健康，均经响应缓存
*/
type InventoryService struct {
	site   *site.Site
	cache  *ResponseCache
	logger *zap.Logger
}

/* NewInventoryService 创建清单服务 */
func NewInventoryService(s *site.Site, rc *ResponseCache) *InventoryService {
	return &InventoryService{
		site:   s,
		cache:  rc,
		logger: zap.L().Named("inventory"),
	}
}

func activeStatus(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

/* PluginList 插件名 → {status, version} */
func (s *InventoryService) PluginList(ctx context.Context) ([]byte, error) {
	return s.cache.Remember(ctx, "plugin_list", KeyPluginList, TTLInventory, func(ctx context.Context) (any, error) {
		plugins, err := s.site.DAO().WithContext(ctx).ListPlugins()
		if err != nil {
			return nil, err
		}
		out := NewOrderedMap()
		for _, p := range plugins {
			out.Set(p.Name, PluginEntry{Status: activeStatus(p.Active), Version: p.Version})
		}
		return out, nil
	})
}

/* ThemeList 主题名 → {status, version, type, parent} */
func (s *InventoryService) ThemeList(ctx context.Context) ([]byte, error) {
	return s.cache.Remember(ctx, "theme_list", KeyThemeList, TTLInventory, func(ctx context.Context) (any, error) {
		themes, err := s.site.DAO().WithContext(ctx).ListThemes()
		if err != nil {
			return nil, err
		}
		bySlug := make(map[string]*models.Theme, len(themes))
		for i := range themes {
			bySlug[themes[i].Slug] = &themes[i]
		}

		out := NewOrderedMap()
		for i := range themes {
			t := &themes[i]
			entry := ThemeEntry{Status: activeStatus(t.Active), Version: t.Version, Type: "parent"}
			if t.IsChild() {
				entry.Type = "child"
				if parent, ok := bySlug[t.Template]; ok {
					entry.Parent = parent.Name
				}
			}
			out.Set(t.Name, entry)
		}
		return out, nil
	})
}

/* CoreList 核心版本与运行环境 */
func (s *InventoryService) CoreList(ctx context.Context) ([]byte, error) {
	return s.cache.Remember(ctx, "core_list", KeyCoreList, TTLInventory, func(ctx context.Context) (any, error) {
		f, err := s.site.PlatformFacts(ctx)
		if err != nil {
			return nil, err
		}
		debug := "disabled"
		if s.site.Debug() {
			debug = "enabled"
		}
		return CoreInfo{
			WordPressVersion: f.WPVersion,
			PHPVersion:       f.PHPVersion,
			MySQLVersion:     f.MySQLVersion,
			ServerSoftware:   f.ServerSoftware,
			MaxUploadSize:    site.FormatSize(f.UploadMaxBytes),
			MaxPostSize:      f.PostMaxSize,
			MemoryLimit:      f.MemoryLimit,
			MaxExecutionTime: f.MaxExecutionTime,
			UploadDirectory:  f.UploadDir,
			SiteURL:          s.site.URL(),
			HomeURL:          s.site.HomeURL(),
			Timezone:         s.site.Timezone(),
			DebugMode:        debug,
			Host:             site.HostFactsNow(ctx),
		}, nil
	})
}

/* SiteHealth 站点健康汇总 */
func (s *InventoryService) SiteHealth(ctx context.Context) ([]byte, error) {
	return s.cache.Remember(ctx, "site_health", KeySiteHealth, TTLSiteHealth, func(ctx context.Context) (any, error) {
		in, err := s.healthInput(ctx)
		if err != nil {
			return nil, err
		}
		return EvaluateHealth(in), nil
	})
}

func (s *InventoryService) healthInput(ctx context.Context) (*HealthInput, error) {
	d := s.site.DAO().WithContext(ctx)
	f, err := s.site.PlatformFacts(ctx)
	if err != nil {
		return nil, err
	}
	installed, err := d.ThemesInstalled(DefaultThemes)
	if err != nil {
		return nil, err
	}
	pluginUpdates, err := d.CountPluginUpdates()
	if err != nil {
		return nil, err
	}
	themeUpdates, err := d.CountThemeUpdates()
	if err != nil {
		return nil, err
	}
	return &HealthInput{
		WPVersion:       f.WPVersion,
		CoreUpdate:      f.CoreUpdate,
		HasDefaultTheme: len(installed) > 0,
		PHPExtensions:   f.PHPExtensions,
		PluginUpdates:   int(pluginUpdates),
		ThemeUpdates:    int(themeUpdates),
		PHPVersion:      f.PHPVersion,
	}, nil
}
