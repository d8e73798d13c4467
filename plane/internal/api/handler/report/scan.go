package report

import (
	"net/http"
	"strconv"
	"strings"

	"sashosting/plane/internal/api/response"
	"sashosting/plane/internal/service"
	"sashosting/plane/internal/types"

	"github.com/gin-gonic/gin"
)

var (
	jsScanTypes   = map[string]bool{service.ScanQuick: true, service.ScanCurrent: true, service.ScanKeyPages: true, service.ScanFull: true}
	diviScanTypes = map[string]bool{service.DiviScanQuick: true, service.DiviScanFull: true, service.DiviScanSingle: true}
)

func invalidParam(c *gin.Context, name string) {
	response.GinBadRequest(c, "rest_invalid_param", "Invalid parameter(s): "+name)
}

/* ScanHandler 诊断扫描：未使用脚本与 Divi */
type ScanHandler struct {
	app *types.App
}

/* NewScanHandler 创建扫描处理器 */
func NewScanHandler(app *types.App) *ScanHandler {
	return &ScanHandler{app: app}
}

/*
UnusedJS 未使用脚本扫描
参数：scan_type ∈ {quick,current,key_pages,full}，max_pages 1..200（默认 50），current_url
*/
func (h *ScanHandler) UnusedJS(c *gin.Context) {
	scanType := strings.TrimSpace(c.DefaultQuery("scan_type", service.ScanQuick))
	if !jsScanTypes[scanType] {
		invalidParam(c, "scan_type")
		return
	}
	maxPages := service.DefaultMaxPages
	if raw := c.Query("max_pages"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > service.MaxPagesLimit {
			invalidParam(c, "max_pages")
			return
		}
		maxPages = n
	}

	result, err := h.app.JSScanner.Scan(c.Request.Context(), service.JSScanRequest{
		ScanType:   scanType,
		CurrentURL: strings.TrimSpace(c.Query("current_url")),
		MaxPages:   maxPages,
	})
	if err != nil {
		response.FromError(c, err, "js_scan_error", "An error occurred while scanning scripts.")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ScanStatus 后台全站扫描状态
func (h *ScanHandler) ScanStatus(c *gin.Context) {
	status, err := h.app.Scheduler.Status(c.Request.Context(), c.Param("scan_id"))
	if err != nil {
		response.FromError(c, err, "scan_error", "Could not read scan status.")
		return
	}
	c.JSON(http.StatusOK, status)
}

// DiviSupremeModules Divi Supreme 模块报告
func (h *ScanHandler) DiviSupremeModules(c *gin.Context) {
	report, err := h.app.Divi.SupremeModules(c.Request.Context())
	if err != nil {
		response.FromError(c, err, "divi_supreme_error", "An error occurred while checking Divi Supreme modules.")
		return
	}
	c.JSON(http.StatusOK, report)
}

/*
DiviDisabledElements 被禁用的 Divi 元素
参数：scan_type ∈ {quick,full,single}，page_id
*/
func (h *ScanHandler) DiviDisabledElements(c *gin.Context) {
	scanType := strings.TrimSpace(c.DefaultQuery("scan_type", service.ScanQuick))
	if !diviScanTypes[scanType] {
		invalidParam(c, "scan_type")
		return
	}
	pageID := absint(c, "page_id", 0)

	out, err := h.app.Divi.ScanDisabledElements(c.Request.Context(), scanType, uint(pageID))
	if err != nil {
		response.FromError(c, err, "scan_error", "An error occurred while scanning for disabled elements.")
		return
	}
	c.JSON(http.StatusOK, out)
}
