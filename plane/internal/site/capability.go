package site

import (
	"context"
	"strings"
	"sync"

	"sashosting/plane/internal/db/dao"
)

/* Capability 宿主能力名 */
type Capability string

const (
	CapDiviBuilder Capability = "divi_builder"
	CapDiviSupreme Capability = "divi_supreme"
	CapWooCommerce Capability = "woocommerce"

	/* capPluginPrefix 后接插件主文件路径，如 plugin:akismet/akismet.php */
	capPluginPrefix = "plugin:"
)

/* PluginCapability 任意插件启用状态的能力名 */
func PluginCapability(file string) Capability {
	return Capability(capPluginPrefix + file)
}

/* DiviSupremePlugins Divi Supreme 的各发行版主文件 */
var DiviSupremePlugins = []string{
	"supreme-modules-pro-for-divi/supreme-modules-pro-for-divi.php",
	"supreme-modules-for-divi/supreme-modules-for-divi.php",
	"divi-supreme/divi-supreme.php",
	"divi-supreme-pro/divi-supreme-pro.php",
}

/*
Capabilities 能力注册表接口
功能：宿主显式声明可用的第三方能力，调用方不再探测类名或常量
*/
type Capabilities interface {
	Has(ctx context.Context, c Capability) (bool, error)
}

/* Detector 单项能力的判定函数 */
type Detector func(ctx context.Context, d *dao.DAO) (bool, error)

/*
Registry 基于站点清单的能力注册表
功能：内置 Divi、WooCommerce、Divi Supreme 判定，可通过 Register 扩展或覆盖
*/
type Registry struct {
	dao       *dao.DAO
	mu        sync.RWMutex
	detectors map[Capability]Detector
}

/* NewRegistry 创建能力注册表 */
func NewRegistry(d *dao.DAO) *Registry {
	r := &Registry{dao: d, detectors: make(map[Capability]Detector)}
	r.Register(CapDiviBuilder, detectDivi)
	r.Register(CapWooCommerce, pluginsActive("woocommerce/woocommerce.php"))
	r.Register(CapDiviSupreme, pluginsActive(DiviSupremePlugins...))
	return r
}

/* Register 注册或覆盖能力判定 */
func (r *Registry) Register(c Capability, fn Detector) {
	r.mu.Lock()
	r.detectors[c] = fn
	r.mu.Unlock()
}

/* Has 判断能力是否可用；未注册的能力视为不可用 */
func (r *Registry) Has(ctx context.Context, c Capability) (bool, error) {
	if file, ok := strings.CutPrefix(string(c), capPluginPrefix); ok {
		return pluginsActive(file)(ctx, r.dao)
	}
	r.mu.RLock()
	fn, ok := r.detectors[c]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return fn(ctx, r.dao)
}

func pluginsActive(files ...string) Detector {
	return func(ctx context.Context, d *dao.DAO) (bool, error) {
		return d.WithContext(ctx).AnyPluginActive(files...)
	}
}

/* detectDivi Divi/Extra 主题（含以其为父主题的子主题）或 Divi Builder 插件 */
func detectDivi(ctx context.Context, d *dao.DAO) (bool, error) {
	d = d.WithContext(ctx)
	theme, err := d.GetActiveTheme()
	if err != nil {
		return false, err
	}
	if theme != nil {
		for _, slug := range []string{theme.Slug, theme.Template} {
			if strings.EqualFold(slug, "Divi") || strings.EqualFold(slug, "Extra") {
				return true, nil
			}
		}
	}
	return d.AnyPluginActive("divi-builder/divi-builder.php")
}

/*
Static 固定能力集合
功能：测试或无数据库的部署中直接声明能力
*/
type Static map[Capability]bool

func (s Static) Has(_ context.Context, c Capability) (bool, error) {
	return s[c], nil
}
