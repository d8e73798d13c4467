package system

import (
	"net/http"

	"sashosting/plane/internal/api/response"
	"sashosting/plane/internal/service"
	"sashosting/plane/internal/types"

	"github.com/gin-gonic/gin"
)

/*
HardeningHandler 后台加固过滤器
功能：适配层在渲染后台页面前把菜单、权限、插件列表等交给本服务过滤
*/
type HardeningHandler struct {
	app *types.App
}

/* NewHardeningHandler 创建加固处理器 */
func NewHardeningHandler(app *types.App) *HardeningHandler {
	return &HardeningHandler{app: app}
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		response.GinBadRequest(c, "invalid_body", "Invalid request body.")
		return false
	}
	return true
}

// EnforcePlugins 对非白名单运维人员停用受限插件
func (h *HardeningHandler) EnforcePlugins(c *gin.Context) {
	var req struct {
		Operator service.Operator `json:"operator"`
	}
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.app.Hardening.EnforcePluginRestrictions(c.Request.Context(), req.Operator)
	if err != nil {
		response.GinInternalError(c, "hardening_error", "Could not enforce plugin restrictions.", err)
		return
	}
	response.GinSuccess(c, out)
}

// Menu 过滤并改名后台菜单
func (h *HardeningHandler) Menu(c *gin.Context) {
	var req struct {
		Operator service.Operator   `json:"operator"`
		Items    []service.MenuItem `json:"items"`
	}
	if !bindJSON(c, &req) {
		return
	}
	response.GinSuccess(c, gin.H{"items": h.app.Hardening.FilterMenu(req.Operator, req.Items)})
}

// AdminBar 改名顶部工具栏节点
func (h *HardeningHandler) AdminBar(c *gin.Context) {
	var req struct {
		Nodes []service.AdminBarNode `json:"nodes"`
	}
	if !bindJSON(c, &req) {
		return
	}
	response.GinSuccess(c, gin.H{"nodes": h.app.Hardening.RebrandAdminBar(req.Nodes)})
}

// Capabilities 移除插件编辑权限
func (h *HardeningHandler) Capabilities(c *gin.Context) {
	var req struct {
		Operator     service.Operator `json:"operator"`
		Capabilities map[string]bool  `json:"capabilities"`
	}
	if !bindJSON(c, &req) {
		return
	}
	response.GinSuccess(c, gin.H{"capabilities": h.app.Hardening.FilterCapabilities(req.Operator, req.Capabilities)})
}

// PluginActionLinks 移除自身插件的停用与删除链接
func (h *HardeningHandler) PluginActionLinks(c *gin.Context) {
	var req struct {
		Operator   service.Operator  `json:"operator"`
		PluginFile string            `json:"plugin_file"`
		Actions    map[string]string `json:"actions"`
	}
	if !bindJSON(c, &req) {
		return
	}
	response.GinSuccess(c, gin.H{"actions": h.app.Hardening.PluginActionLinks(req.Operator, req.PluginFile, req.Actions)})
}

// AllPlugins 从插件列表中隐藏自身
func (h *HardeningHandler) AllPlugins(c *gin.Context) {
	var req struct {
		Plugins map[string]any `json:"plugins"`
	}
	if !bindJSON(c, &req) {
		return
	}
	response.GinSuccess(c, gin.H{"plugins": h.app.Hardening.FilterAllPlugins(req.Plugins)})
}

// UploadLimit 按 MIME 类型给出上传上限
func (h *HardeningHandler) UploadLimit(c *gin.Context) {
	var req struct {
		Type    string `json:"type"`
		Current int64  `json:"current"`
	}
	if !bindJSON(c, &req) {
		return
	}
	response.GinSuccess(c, gin.H{"limit": h.app.Hardening.UploadSizeLimit(req.Type, req.Current)})
}

// UploadPrefilter 上传预检，超限时 error 非空
func (h *HardeningHandler) UploadPrefilter(c *gin.Context) {
	var f service.UploadFile
	if !bindJSON(c, &f) {
		return
	}
	response.GinSuccess(c, h.app.Hardening.UploadPrefilter(f))
}

/* BrandingHandler 品牌替换片段 */
type BrandingHandler struct {
	app *types.App
}

/* NewBrandingHandler 创建品牌片段处理器 */
func NewBrandingHandler(app *types.App) *BrandingHandler {
	return &BrandingHandler{app: app}
}

func snippet(c *gin.Context, contentType string, render func() (string, error)) {
	out, err := render()
	if err != nil {
		response.GinInternalError(c, "branding_error", "Could not render branding snippet.", err)
		return
	}
	c.Data(http.StatusOK, contentType, []byte(out))
}

// AdminHead 后台头部样式
func (h *BrandingHandler) AdminHead(c *gin.Context) {
	snippet(c, "text/html; charset=UTF-8", h.app.Hardening.AdminHeadCSS)
}

// AdminFooter 后台底部脚本
func (h *BrandingHandler) AdminFooter(c *gin.Context) {
	snippet(c, "text/html; charset=UTF-8", h.app.Hardening.AdminFooterJS)
}

// Footer 前台底部脚本
func (h *BrandingHandler) Footer(c *gin.Context) {
	snippet(c, "text/html; charset=UTF-8", h.app.Hardening.FrontendFooterJS)
}
