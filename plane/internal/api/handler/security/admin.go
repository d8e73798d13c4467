package security

import (
	"errors"
	"net"
	"net/http"
	"time"

	"sashosting/plane/internal/api/response"
	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/service"
	"sashosting/plane/internal/sso"
	"sashosting/plane/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

/* CreateAdminRequest 管理员创建请求体 */
type CreateAdminRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	AuthToken string `json:"auth_token"`
}

/* AdminHandler 远程管理员创建 */
type AdminHandler struct {
	app    *types.App
	logger *zap.Logger
}

/* NewAdminHandler 创建管理员创建处理器 */
func NewAdminHandler(app *types.App) *AdminHandler {
	return &AdminHandler{app: app, logger: zap.L().Named("admin-create")}
}

/* bind 读取并缓存请求体，权限校验与 handler 各读一次 */
func bind(c *gin.Context) CreateAdminRequest {
	var req CreateAdminRequest
	_ = c.ShouldBindBodyWith(&req, binding.JSON)
	return req
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

/*
RequireAdminToken 权限校验中间件
功能：auth_token 交由提供方校验（附带调用方 IP、UA 与站点域名），任何失败返回 401，
不进入 handler
*/
func (h *AdminHandler) RequireAdminToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := bind(c)
		token := service.SanitizeText(req.AuthToken)
		if token == "" {
			response.GinUnauthorized(c, "rest_forbidden", "Sorry, you are not allowed to do that.")
			return
		}

		r, err := h.app.Bridge.Resolver(c.Request.Context())
		if err != nil {
			h.logger.Error("加载 SSO 配置失败", zap.Error(err))
			response.GinUnauthorized(c, "rest_forbidden", "Sorry, you are not allowed to do that.")
			return
		}
		timeout := time.Duration(h.app.Config.REST.AdminTokenTimeout) * time.Second
		ok := h.app.Provider.ValidateAdminToken(c.Request.Context(), r, timeout, sso.AdminTokenRequest{
			Token:     token,
			Domain:    h.app.Site.Host(),
			IP:        remoteAddr(c.Request),
			UserAgent: c.Request.UserAgent(),
		})
		if !ok {
			response.GinUnauthorized(c, "rest_forbidden", "Sorry, you are not allowed to do that.")
			return
		}
		c.Next()
	}
}

/*
Create 创建管理员账户
功能：四个字段均不能为空；登录名或邮箱已存在时拒绝。成功后写审计日志并向提供方回报
*/
func (h *AdminHandler) Create(c *gin.Context) {
	req := bind(c)
	username := service.SanitizeText(req.Username)
	email := service.SanitizeEmail(req.Email)
	token := service.SanitizeText(req.AuthToken)
	if username == "" || email == "" || req.Password == "" || token == "" {
		response.GinBadRequest(c, "missing_fields", "Missing required fields.")
		return
	}

	ctx := c.Request.Context()
	user, err := h.app.Users.CreateAdministrator(ctx, username, email, req.Password)
	if errors.Is(err, service.ErrUserExists) {
		response.GinBadRequest(c, "user_exists", "User already exists.")
		return
	}
	if err != nil {
		response.GinInternalError(c, "user_creation_failed", "Failed to create user.", err)
		return
	}

	h.app.Users.Audit(ctx, &models.AuditLog{
		UserID:   user.ID,
		Action:   "admin_user_created",
		Resource: "user",
		Detail:   username,
		IP:       remoteAddr(c.Request),
		UA:       c.Request.UserAgent(),
	})

	if r, err := h.app.Bridge.Resolver(ctx); err == nil {
		_ = h.app.Provider.Notify(sso.ActionLogAction, r.SSLVerify(), r.LogActionEndpoint(), r.NotifyTimeout(), map[string]any{
			"token":     token,
			"action":    "admin_user_created",
			"domain":    h.app.Site.Host(),
			"username":  username,
			"timestamp": h.app.Site.Now().Format(service.DateLayout),
		})
	}

	h.logger.Info("✓ 已创建管理员账户", zap.String("login", username), zap.String("id", user.ID))
	response.GinSuccess(c, gin.H{
		"success": true,
		"user_id": user.ID,
		"message": "Administrator user created successfully.",
	})
}

/*
CreateLegacy 历史遗留的管理员创建入口
功能：不做任何令牌校验。仅在 rest.enable_legacy_admin_route 开启时注册，
每次调用都会写警告日志与审计日志
*/
func (h *AdminHandler) CreateLegacy(c *gin.Context) {
	var req CreateAdminRequest
	_ = c.ShouldBindJSON(&req)
	username := service.SanitizeText(req.Username)
	email := service.SanitizeEmail(req.Email)

	h.logger.Warn("遗留管理员创建路由被调用",
		zap.String("ip", remoteAddr(c.Request)),
		zap.String("ua", c.Request.UserAgent()))

	if username == "" || email == "" || req.Password == "" {
		response.GinBadRequest(c, "missing_fields", "Missing Fields.")
		return
	}

	ctx := c.Request.Context()
	user, err := h.app.Users.CreateAdministrator(ctx, username, email, req.Password)
	if errors.Is(err, service.ErrUserExists) {
		response.GinBadRequest(c, "user_exists", "Some Fields already exists.")
		return
	}
	if err != nil {
		response.GinInternalError(c, "user_creation_failed", "Failed", err)
		return
	}

	h.app.Users.Audit(ctx, &models.AuditLog{
		UserID:   user.ID,
		Action:   "legacy_admin_user_created",
		Resource: "user",
		Detail:   username,
		IP:       remoteAddr(c.Request),
		UA:       c.Request.UserAgent(),
	})
	response.GinSuccess(c, gin.H{
		"success": true,
		"user_id": user.ID,
	})
}
