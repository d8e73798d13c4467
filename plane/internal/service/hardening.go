package service

import (
	"bytes"
	"context"
	"html/template"
	"regexp"
	"slices"
	"strings"
	"sync"

	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/site"

	"go.uber.org/zap"
)

/* 上传大小限制 */
const (
	imageUploadLimit = 1 << 20
	mediaUploadLimit = 10 << 20
)

/* uploadRule 某类文件的上传上限 */
type uploadRule struct {
	size    int64
	message string
	types   []string
}

var uploadRules = []uploadRule{
	{imageUploadLimit, "Image files must be smaller than 1MB.", []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp"}},
	{mediaUploadLimit, "PDF files must be smaller than 10MB.", []string{"application/pdf"}},
	{mediaUploadLimit, "Video files must be smaller than 10MB.", []string{"video/mp4", "video/mpeg", "video/quicktime", "video/webm"}},
	{mediaUploadLimit, "Audio files must be smaller than 10MB.", []string{"audio/mpeg", "audio/wav", "audio/ogg", "audio/mp3", "audio/aac"}},
}

/* Operator 发起后台请求的运维人员 */
type Operator struct {
	Login string `json:"login"`
	Email string `json:"email"`
}

/* MenuItem 后台菜单项 */
type MenuItem struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

/* AdminBarNode 顶部工具栏节点 */
type AdminBarNode struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

/* UploadFile 上传预检的文件描述，Error 非空表示拒绝 */
type UploadFile struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Size  int64  `json:"size"`
	Error string `json:"error,omitempty"`
}

/* PluginRestriction 插件限制的执行结果 */
type PluginRestriction struct {
	Allowed     bool     `json:"allowed"`
	Deactivated []string `json:"deactivated"`
	HiddenMenus []string `json:"hidden_menus"`
}

/*
HardeningService 后台加固
功能：限制备份/迁移插件、移除插件编辑权限、按 MIME 限制上传大小、隐藏自身插件条目与品牌替换。
配置可热更新。
*/
type HardeningService struct {
	site   *site.Site
	events *EventBus
	logger *zap.Logger

	mu  sync.RWMutex
	cfg config.HardeningConfig
}

/* NewHardeningService 创建加固服务 */
func NewHardeningService(s *site.Site, cfg config.HardeningConfig, events *EventBus) *HardeningService {
	h := &HardeningService{
		site:   s,
		events: events,
		cfg:    cfg,
		logger: zap.L().Named("hardening"),
	}
	if events != nil {
		events.On(EventConfigReloaded, "hardening.reload", func(_ context.Context, ev Event) {
			if c, ok := ev.Data["config"].(*config.Config); ok {
				h.Reload(c.Hardening)
			}
		})
	}
	return h
}

/* Reload 替换加固配置 */
func (h *HardeningService) Reload(cfg config.HardeningConfig) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	h.logger.Info("✓ 加固配置已更新", zap.Int("restricted_plugins", len(cfg.RestrictedPlugins)))
}

func (h *HardeningService) config() config.HardeningConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

/* IsAllowed 运维人员是否在白名单中（登录名或邮箱） */
func (h *HardeningService) IsAllowed(op Operator) bool {
	for _, u := range h.config().AllowedUsers {
		if (op.Login != "" && u == op.Login) || (op.Email != "" && strings.EqualFold(u, op.Email)) {
			return true
		}
	}
	return false
}

/* exemptPlugins 当前站点主机名豁免的插件 */
func (h *HardeningService) exemptPlugins(cfg config.HardeningConfig) []string {
	return cfg.PluginExemptions[h.site.HomeHost()]
}

func pluginDir(file string) string {
	return (&models.Plugin{File: file}).Slug()
}

/*
EnforcePluginRestrictions 对非白名单运维人员停用受限插件并隐藏其菜单
功能：当前主机名的豁免插件不受影响；每个被停用的插件都会发布 deactivated_plugin 事件并写审计日志
*/
func (h *HardeningService) EnforcePluginRestrictions(ctx context.Context, op Operator) (*PluginRestriction, error) {
	res := &PluginRestriction{Deactivated: []string{}, HiddenMenus: []string{}}
	if h.IsAllowed(op) {
		res.Allowed = true
		return res, nil
	}

	cfg := h.config()
	exempt := h.exemptPlugins(cfg)
	exemptDirs := make(map[string]bool, len(exempt))
	for _, f := range exempt {
		exemptDirs[pluginDir(f)] = true
	}

	restricted := make([]string, 0, len(cfg.RestrictedPlugins))
	for _, f := range cfg.RestrictedPlugins {
		if !slices.Contains(exempt, f) {
			restricted = append(restricted, f)
		}
	}
	for _, slug := range cfg.RestrictedMenus {
		if !exemptDirs[slug] {
			res.HiddenMenus = append(res.HiddenMenus, slug)
		}
	}

	d := h.site.DAO().WithContext(ctx)
	active, err := d.ActivePluginFiles(restricted)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return res, nil
	}
	if _, err := d.SetPluginsActive(active, false); err != nil {
		return nil, err
	}
	res.Deactivated = active

	for _, f := range active {
		if err := d.CreateAuditLog(&models.AuditLog{
			Action:   "restricted_plugin_deactivated",
			Resource: "plugin",
			Detail:   f,
		}); err != nil {
			h.logger.Warn("写入审计日志失败", zap.String("plugin", f), zap.Error(err))
		}
		if h.events != nil {
			h.events.Publish(ctx, Event{Name: EventPluginDeactivated, Data: map[string]any{"plugin": f}})
		}
	}
	h.logger.Info("已停用受限插件", zap.String("operator", op.Login), zap.Strings("plugins", active))
	return res, nil
}

/*
FilterMenu 过滤后台菜单
功能：供应商菜单项改名为品牌名；非白名单运维人员看不到受限菜单
*/
func (h *HardeningService) FilterMenu(op Operator, items []MenuItem) []MenuItem {
	cfg := h.config()
	hidden := make(map[string]bool)
	if !h.IsAllowed(op) {
		exemptDirs := make(map[string]bool)
		for _, f := range h.exemptPlugins(cfg) {
			exemptDirs[pluginDir(f)] = true
		}
		for _, slug := range cfg.RestrictedMenus {
			if !exemptDirs[slug] {
				hidden[slug] = true
			}
		}
	}

	out := make([]MenuItem, 0, len(items))
	for _, it := range items {
		if hidden[it.Slug] {
			continue
		}
		if it.Slug == cfg.VendorMenuSlug {
			it.Title = cfg.BrandName
		} else if cfg.VendorName != "" {
			it.Title = strings.ReplaceAll(it.Title, cfg.VendorName, cfg.BrandName)
		}
		out = append(out, it)
	}
	return out
}

/* RebrandAdminBar 供应商顶部节点改为品牌名 */
func (h *HardeningService) RebrandAdminBar(nodes []AdminBarNode) []AdminBarNode {
	cfg := h.config()
	out := make([]AdminBarNode, len(nodes))
	for i, n := range nodes {
		if n.ID == cfg.VendorTopbarNode {
			n.Title = cfg.BrandName
		}
		out[i] = n
	}
	return out
}

/* FilterCapabilities 非白名单运维人员移除 edit_plugins */
func (h *HardeningService) FilterCapabilities(op Operator, caps map[string]bool) map[string]bool {
	out := make(map[string]bool, len(caps))
	for k, v := range caps {
		out[k] = v
	}
	if !h.IsAllowed(op) {
		delete(out, "edit_plugins")
	}
	return out
}

/* PluginActionLinks 非白名单运维人员不能停用或删除本插件 */
func (h *HardeningService) PluginActionLinks(op Operator, pluginFile string, actions map[string]string) map[string]string {
	out := make(map[string]string, len(actions))
	for k, v := range actions {
		out[k] = v
	}
	if pluginFile == h.config().ProtectedPlugin && !h.IsAllowed(op) {
		delete(out, "deactivate")
		delete(out, "delete")
	}
	return out
}

/* HidePlugin 从插件列表中移除本插件 */
func HidePlugin[V any](protected string, plugins map[string]V) map[string]V {
	out := make(map[string]V, len(plugins))
	for k, v := range plugins {
		if k != protected {
			out[k] = v
		}
	}
	return out
}

/* FilterAllPlugins 从插件列表中移除本插件 */
func (h *HardeningService) FilterAllPlugins(plugins map[string]any) map[string]any {
	return HidePlugin(h.config().ProtectedPlugin, plugins)
}

func (h *HardeningService) uploadExempt(cfg config.HardeningConfig) bool {
	return slices.Contains(cfg.UploadExemptDomains, h.site.HomeHost())
}

/*
UploadSizeLimit 按 MIME 类型给出上传上限
功能：豁免域名、未知类型或类型为空时返回 current
*/
func (h *HardeningService) UploadSizeLimit(fileType string, current int64) int64 {
	if h.uploadExempt(h.config()) || fileType == "" {
		return current
	}
	fileType = strings.ToLower(fileType)
	for _, r := range uploadRules {
		if slices.Contains(r.types, fileType) {
			return r.size
		}
	}
	return current
}

/* UploadPrefilter 超过上限的文件写入错误信息 */
func (h *HardeningService) UploadPrefilter(f UploadFile) UploadFile {
	if h.uploadExempt(h.config()) || f.Type == "" {
		return f
	}
	fileType := strings.ToLower(f.Type)
	for _, r := range uploadRules {
		if slices.Contains(r.types, fileType) && f.Size > r.size {
			f.Error = r.message
			break
		}
	}
	return f
}

/* ==================== 品牌 ==================== */

var (
	adminHeadTmpl = template.Must(template.New("admin_head").Parse(`<style>
    .wpstaq-page .wpstaq-logo img{
        visibility: hidden;
    }
    .toplevel_page_wpstaq-main > div.wp-menu-image::before {
        background: url("{{.Logo}}") no-repeat center center;
        background-size: contain;
    }
    #adminmenu .toplevel_page_wpstaq-main .wp-menu-image:before {
        display: none !important;
    }
</style>`))

	adminFooterTmpl = template.Must(template.New("admin_footer").Parse(`<script type="text/javascript">
    document.addEventListener("DOMContentLoaded", function() {
        var brand = {{.Brand}};
        var vendor = new RegExp({{.Vendor}}, "g");
        var topBarNode = document.querySelector("#" + {{.TopbarNode}} + " .ab-item");
        if (topBarNode) {
            topBarNode.textContent = brand;
        }
        document.querySelectorAll(".wpstaq-notice.notice.notice-info.is-dismissible, .wpstaq-notice.notice.notice-warning.is-dismissible").forEach(function(notice) {
            notice.textContent = notice.innerText.replace(vendor, brand);
        });
    });
</script>`))

	frontFooterTmpl = template.Must(template.New("front_footer").Parse(`<script type="text/javascript">
    document.addEventListener("DOMContentLoaded", function() {
        var topBarNode = document.querySelector("#" + {{.TopbarNode}} + " .ab-item");
        if (topBarNode) {
            topBarNode.textContent = {{.Brand}};
        }
    });
</script>`))

	yearTmpl = template.Must(template.New("year").Parse(`<script type="text/javascript">
    var fullYear = new Date().getFullYear();
    document.querySelectorAll(".current--year").forEach(function(element) {
        element.textContent = fullYear;
    });
</script>`))
)

type brandData struct {
	Brand      string
	Vendor     string
	Logo       string
	TopbarNode string
}

func (h *HardeningService) brand() brandData {
	cfg := h.config()
	return brandData{
		Brand:      cfg.BrandName,
		Vendor:     regexp.QuoteMeta(cfg.VendorName),
		Logo:       cfg.BrandLogo,
		TopbarNode: cfg.VendorTopbarNode,
	}
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

/* AdminHeadCSS 后台头部品牌样式 */
func (h *HardeningService) AdminHeadCSS() (string, error) {
	return render(adminHeadTmpl, h.brand())
}

/* AdminFooterJS 后台底部脚本：工具栏改名、替换供应商通知中的名称、年份 */
func (h *HardeningService) AdminFooterJS() (string, error) {
	js, err := render(adminFooterTmpl, h.brand())
	if err != nil {
		return "", err
	}
	year, err := render(yearTmpl, nil)
	if err != nil {
		return "", err
	}
	return js + "\n" + year, nil
}

/* FrontendFooterJS 前台底部脚本：工具栏改名、年份 */
func (h *HardeningService) FrontendFooterJS() (string, error) {
	js, err := render(frontFooterTmpl, h.brand())
	if err != nil {
		return "", err
	}
	year, err := render(yearTmpl, nil)
	if err != nil {
		return "", err
	}
	return js + "\n" + year, nil
}
