package system

import (
	"sashosting/plane/internal/api/response"
	"sashosting/plane/internal/metrics"
	"sashosting/plane/internal/service"
	"sashosting/plane/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/* HooksHandler 框架适配层的生命周期事件入口 */
type HooksHandler struct {
	app    *types.App
	logger *zap.Logger
}

/* NewHooksHandler 创建事件入口处理器 */
func NewHooksHandler(app *types.App) *HooksHandler {
	return &HooksHandler{app: app, logger: zap.L().Named("hooks")}
}

/*
Dispatch 接收一个生命周期事件并同步分发
功能：请求体为事件数据（可为空）。config.reloaded 只由进程内部发布，不接受外部投递
*/
func (h *HooksHandler) Dispatch(c *gin.Context) {
	name := c.Param("event")
	if !service.KnownEvents[name] || name == service.EventConfigReloaded {
		response.GinBadRequest(c, "unknown_event", "Unknown lifecycle event.")
		return
	}

	data := map[string]any{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&data); err != nil {
			response.GinBadRequest(c, "invalid_body", "Invalid request body.")
			return
		}
	}

	n := h.app.Events.Publish(c.Request.Context(), service.Event{Name: name, Data: data})
	metrics.Events.WithLabelValues(name).Inc()
	h.logger.Debug("生命周期事件已分发", zap.String("event", name), zap.Int("handlers", n))
	response.GinSuccess(c, gin.H{"event": name, "handlers": n})
}

// Handlers 已登记的回调名
func (h *HooksHandler) Handlers(c *gin.Context) {
	out := make(map[string][]string, len(service.KnownEvents))
	for name := range service.KnownEvents {
		out[name] = h.app.Events.Handlers(name)
	}
	response.GinSuccess(c, out)
}
