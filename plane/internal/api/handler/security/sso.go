package security

import (
	"net/http"
	"strings"

	"sashosting/plane/internal/api/middleware"
	"sashosting/plane/internal/api/response"
	"sashosting/plane/internal/service"
	"sashosting/plane/internal/sso"
	"sashosting/plane/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/* SSOHandler 单点登录相关端点 */
type SSOHandler struct {
	app    *types.App
	logger *zap.Logger
}

/* NewSSOHandler 创建单点登录处理器 */
func NewSSOHandler(app *types.App) *SSOHandler {
	return &SSOHandler{app: app, logger: zap.L().Named("sso-handler")}
}

/*
Logout 结束会话
功能：发布 logout 事件（SSO 账户会回报提供方），清除会话 Cookie。
GET 跳转到登录页，POST 返回 JSON
*/
func (h *SSOHandler) Logout(c *gin.Context) {
	if userID := middleware.GetUserID(c); userID != "" {
		h.app.Events.Publish(c.Request.Context(), service.Event{
			Name: service.EventLogout,
			Data: map[string]any{"user_id": userID},
		})
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.app.Sessions.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	if c.Request.Method == http.MethodGet {
		c.Redirect(http.StatusFound, h.app.Site.LoginURL()+"?loggedout=true")
		return
	}
	response.GinSuccess(c, gin.H{"success": true})
}

/* Button 登录按钮 HTML 片段，参数 text / redirect / class */
func (h *SSOHandler) Button(c *gin.Context) {
	r, err := h.app.Bridge.Resolver(c.Request.Context())
	if err != nil {
		response.GinInternalError(c, "sso_config_error", "Could not load SSO configuration.", err)
		return
	}
	html, err := r.Button(sso.ButtonOptions{
		Text:     service.SanitizeText(c.Query("text")),
		Redirect: strings.TrimSpace(c.Query("redirect")),
		Class:    service.SanitizeText(c.Query("class")),
	})
	if err != nil {
		response.GinInternalError(c, "sso_button_error", "Could not render SSO button.", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=UTF-8", []byte(html))
}

/* Notice 本地环境提示，生产环境返回 204 */
func (h *SSOHandler) Notice(c *gin.Context) {
	r, err := h.app.Bridge.Resolver(c.Request.Context())
	if err != nil {
		response.GinInternalError(c, "sso_config_error", "Could not load SSO configuration.", err)
		return
	}
	html, err := r.EnvironmentNotice()
	if err != nil {
		response.GinInternalError(c, "sso_notice_error", "Could not render notice.", err)
		return
	}
	if html == "" {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=UTF-8", []byte(html))
}

/* GetConfig 当前生效的 SSO 设置 */
func (h *SSOHandler) GetConfig(c *gin.Context) {
	r, err := h.app.Bridge.Resolver(c.Request.Context())
	if err != nil {
		response.GinInternalError(c, "sso_config_error", "Could not load SSO configuration.", err)
		return
	}
	response.GinSuccess(c, r.All())
}

/* SetConfigRequest 单项设置 */
type SetConfigRequest struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

/* SetConfig 写入单项覆盖设置，返回合并后的全部设置 */
func (h *SSOHandler) SetConfig(c *gin.Context) {
	var req SetConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "invalid_body", "Invalid request body.")
		return
	}
	key := service.SanitizeText(req.Key)
	if key == "" {
		response.GinBadRequest(c, "missing_key", "Setting key is required.")
		return
	}
	ctx := c.Request.Context()
	r, err := h.app.Bridge.Resolver(ctx)
	if err != nil {
		response.GinInternalError(c, "sso_config_error", "Could not load SSO configuration.", err)
		return
	}
	if err := r.Set(ctx, key, req.Value); err != nil {
		response.GinInternalError(c, "sso_config_error", "Could not save SSO configuration.", err)
		return
	}
	h.logger.Info("✓ SSO 设置已更新", zap.String("key", key))
	response.GinSuccess(c, r.All())
}

/* ResetConfig 删除全部覆盖设置 */
func (h *SSOHandler) ResetConfig(c *gin.Context) {
	ctx := c.Request.Context()
	r, err := h.app.Bridge.Resolver(ctx)
	if err != nil {
		response.GinInternalError(c, "sso_config_error", "Could not load SSO configuration.", err)
		return
	}
	if err := r.Reset(ctx); err != nil {
		response.GinInternalError(c, "sso_config_error", "Could not reset SSO configuration.", err)
		return
	}
	h.logger.Info("✓ SSO 设置已恢复默认")
	response.GinSuccess(c, r.All())
}
