package report

import (
	"strconv"

	"sashosting/plane/internal/api/response"
	"sashosting/plane/internal/service"
	"sashosting/plane/internal/types"

	"github.com/gin-gonic/gin"
)

/* InventoryHandler 插件、主题、核心与健康状况 */
type InventoryHandler struct {
	app *types.App
}

/* NewInventoryHandler 创建清单处理器 */
func NewInventoryHandler(app *types.App) *InventoryHandler {
	return &InventoryHandler{app: app}
}

func writeCached(c *gin.Context, body []byte, err error) {
	if err != nil {
		response.FromError(c, err, "internal_error", "An internal error occurred.")
		return
	}
	response.GinRaw(c, body)
}

// Plugins 插件列表
func (h *InventoryHandler) Plugins(c *gin.Context) {
	body, err := h.app.Inventory.PluginList(c.Request.Context())
	writeCached(c, body, err)
}

// Themes 主题列表
func (h *InventoryHandler) Themes(c *gin.Context) {
	body, err := h.app.Inventory.ThemeList(c.Request.Context())
	writeCached(c, body, err)
}

// Core 核心版本与运行环境
func (h *InventoryHandler) Core(c *gin.Context) {
	body, err := h.app.Inventory.CoreList(c.Request.Context())
	writeCached(c, body, err)
}

// SiteHealth 站点健康汇总
func (h *InventoryHandler) SiteHealth(c *gin.Context) {
	body, err := h.app.Inventory.SiteHealth(c.Request.Context())
	writeCached(c, body, err)
}

/* ContentHandler 页面与文章列表 */
type ContentHandler struct {
	app *types.App
}

/* NewContentHandler 创建内容列表处理器 */
func NewContentHandler(app *types.App) *ContentHandler {
	return &ContentHandler{app: app}
}

/* absint 非负整数参数，无法解析时为 def */
func absint(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	if n < 0 {
		n = -n
	}
	return n
}

func (h *ContentHandler) list(c *gin.Context, kind service.ContentKind) {
	q := service.ContentQuery{
		ID:      uint(absint(c, "id", 0)),
		Page:    absint(c, "page", 1),
		PerPage: absint(c, "per_page", service.DefaultPerPage),
	}
	body, err := h.app.Content.List(c.Request.Context(), kind, q)
	writeCached(c, body, err)
}

// Pages 页面列表，id 非空时返回单个页面
func (h *ContentHandler) Pages(c *gin.Context) {
	h.list(c, service.PagesKind)
}

// Posts 文章列表，id 非空时返回单篇文章
func (h *ContentHandler) Posts(c *gin.Context) {
	h.list(c, service.PostsKind)
}
