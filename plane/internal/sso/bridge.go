package sso

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/service"
	"sashosting/plane/internal/site"

	"go.uber.org/zap"
)

/* State 单点登录状态 */
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateTokenPresented  State = "token_presented"
	StateValidating      State = "validating"
	StateAuthenticated   State = "authenticated"
	StateRejected        State = "rejected"
)

/* 入口查询参数 */
const (
	ParamToken      = "sas_sso_token"
	ParamTokenAlias = "sas-sso-token"
	ParamRedirectTo = "redirect_to"
	ParamRedirect   = "redirect"
	ParamForceLogin = "force_login"
)

/*
Request 一次单点登录请求
功能：SessionUserID 为访问者已有会话对应的账户，为空表示未登录
*/
type Request struct {
	Token         string
	TokenPresent  bool
	RedirectTo    string
	Redirect      string
	ForceLogin    bool
	SessionUserID string
}

/* RequestFromQuery 从查询参数构造请求，下划线参数优先 */
func RequestFromQuery(q url.Values) Request {
	req := Request{
		RedirectTo: q.Get(ParamRedirectTo),
		Redirect:   q.Get(ParamRedirect),
		ForceLogin: q.Has(ParamForceLogin),
	}
	switch {
	case q.Has(ParamToken):
		req.TokenPresent = true
		req.Token = q.Get(ParamToken)
	case q.Has(ParamTokenAlias):
		req.TokenPresent = true
		req.Token = q.Get(ParamTokenAlias)
	}
	return req
}

/*
Outcome 状态机终态
功能：Page 为需要渲染的 HTML，为空时直接按 RedirectURL 跳转；
Session 非空时需要下发会话 Cookie
*/
type Outcome struct {
	State       State
	Status      int
	RedirectURL string
	Page        []byte
	Session     string
	User        *models.User
	Err         *service.APIError
}

/*
Bridge 单点登录桥接
功能：Unauthenticated → TokenPresented → Validating → Authenticated | Rejected。
每次请求按当前配置重新构造 Resolver；登出时对 SSO 账户回报提供方。
*/
type Bridge struct {
	site     *site.Site
	users    *service.UserService
	sessions *service.SessionManager
	provider *Provider
	logger   *zap.Logger

	mu  sync.RWMutex
	cfg config.SSOConfig
}

/* NewBridge 创建桥接，并登记登出与配置重载回调 */
func NewBridge(s *site.Site, cfg config.SSOConfig, users *service.UserService, sessions *service.SessionManager, provider *Provider, events *service.EventBus) *Bridge {
	b := &Bridge{
		site:     s,
		users:    users,
		sessions: sessions,
		provider: provider,
		cfg:      cfg,
		logger:   zap.L().Named("sso-bridge"),
	}
	if events != nil {
		events.On(service.EventLogout, "sso.logout", func(ctx context.Context, ev service.Event) {
			if id, ok := ev.Data["user_id"].(string); ok && id != "" {
				b.Logout(ctx, id)
			}
		})
		events.On(service.EventConfigReloaded, "sso.reload", func(_ context.Context, ev service.Event) {
			if c, ok := ev.Data["config"].(*config.Config); ok {
				b.mu.Lock()
				b.cfg = c.SSO
				b.mu.Unlock()
			}
		})
	}
	return b
}

/* Resolver 按当前配置构造 SSO 配置 */
func (b *Bridge) Resolver(ctx context.Context) (*Resolver, error) {
	b.mu.RLock()
	cfg := b.cfg
	b.mu.RUnlock()
	return Load(ctx, cfg, b.site)
}

/* Provider 提供方客户端 */
func (b *Bridge) Provider() *Provider { return b.provider }

/*
safeRedirect 只允许站内跳转
功能：相对路径或主机名与站点一致的绝对地址原样返回，其余回退到后台首页
*/
func (b *Bridge) safeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return b.site.AdminURL()
	}
	u, err := url.Parse(target)
	if err != nil {
		return b.site.AdminURL()
	}
	if u.Scheme == "" && u.Host == "" && strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		return target
	}
	if (u.Scheme == "http" || u.Scheme == "https") && (u.Hostname() == b.site.Host() || u.Hostname() == b.site.HomeHost()) {
		return target
	}
	return b.site.AdminURL()
}

func (b *Bridge) reject(ae *service.APIError) *Outcome {
	page, err := RenderErrorPage(ErrorPage{
		SiteName: b.site.Name(),
		Message:  ae.Message,
		LoginURL: b.site.LoginURL(),
		HomeURL:  b.site.HomeURL(),
	})
	if err != nil {
		b.logger.Error("渲染失败页出错", zap.Error(err))
	}
	return &Outcome{State: StateRejected, Status: ae.Status, Page: page, Err: ae}
}

/*
Handle 执行一次单点登录
功能：已登录且未要求强制登录时直接跳转，不联系提供方；
否则校验令牌、解析或创建本地账户、签发会话并渲染成功页
*/
func (b *Bridge) Handle(ctx context.Context, req Request) *Outcome {
	if !req.TokenPresent {
		return &Outcome{State: StateUnauthenticated}
	}

	if req.SessionUserID != "" && !req.ForceLogin {
		target := req.RedirectTo
		if target == "" {
			target = req.Redirect
		}
		return &Outcome{State: StateAuthenticated, Status: http.StatusFound, RedirectURL: b.safeRedirect(target)}
	}

	/* TokenPresented */
	token := service.SanitizeText(req.Token)
	if token == "" {
		return b.reject(service.NewAPIError(http.StatusBadRequest, "missing_token", "Invalid authentication token."))
	}

	r, err := b.Resolver(ctx)
	if err != nil {
		b.logger.Error("加载 SSO 配置失败", zap.Error(err))
		return b.reject(service.NewAPIError(http.StatusInternalServerError, "sso_failed", "Could not connect to authentication provider."))
	}

	/* Validating */
	r.Debug("开始校验令牌", zap.String("endpoint", r.ValidationEndpoint()))
	pu, err := b.provider.ValidateSSOToken(ctx, r, token, b.site.URL())
	if err != nil {
		ae, ok := service.AsAPIError(err)
		if !ok {
			ae = service.NewAPIError(http.StatusBadGateway, "sso_failed", "Could not connect to authentication provider.")
		}
		return b.reject(ae)
	}

	email := service.SanitizeEmail(pu.Email)
	username := service.SanitizeText(pu.Username)
	role := service.SanitizeText(pu.Role)
	if email == "" {
		return b.reject(service.NewAPIError(http.StatusBadGateway, "invalid_user_data", "Invalid user data received from authentication provider."))
	}

	user, ae := b.resolveUser(ctx, r, email, username, role)
	if ae != nil {
		return b.reject(ae)
	}

	session, err := b.sessions.Issue(user)
	if err != nil {
		b.logger.Error("签发会话失败", zap.String("user", user.ID), zap.Error(err))
		return b.reject(service.NewAPIError(http.StatusInternalServerError, "session_failed", "Could not establish a session."))
	}
	if err := b.users.TouchSSOLogin(ctx, user.ID, b.site.Now()); err != nil {
		b.logger.Warn("记录 SSO 登录时间失败", zap.String("user", user.ID), zap.Error(err))
	}
	_ = b.provider.Notify(ActionLogLogin, r.SSLVerify(), r.LoginLogEndpoint(), r.NotifyTimeout(), map[string]any{
		"site":       b.site.URL(),
		"email":      user.Email,
		"wp_user_id": user.ID,
	})

	target := b.safeRedirect(req.RedirectTo)
	page, err := RenderSuccessPage(SuccessPage{
		SiteName:    b.site.Name(),
		Username:    user.Login,
		RedirectURL: target,
	})
	if err != nil {
		b.logger.Error("渲染成功页出错", zap.Error(err))
	}
	b.logger.Info("✓ SSO 登录成功", zap.String("user", user.Login), zap.String("role", string(user.Role)))
	return &Outcome{
		State:       StateAuthenticated,
		Status:      http.StatusOK,
		RedirectURL: target,
		Page:        page,
		Session:     session,
		User:        user,
	}
}

/*
resolveUser 按优先级解析本地账户
功能：角色约定登录名 → 提供的登录名 → 邮箱；都不存在且提供了登录名时自动创建
*/
func (b *Bridge) resolveUser(ctx context.Context, r *Resolver, email, username, role string) (*models.User, *service.APIError) {
	lookupFailed := service.NewAPIError(http.StatusInternalServerError, "user_lookup_failed", "Could not look up the user account.")

	if role != "" {
		if mapped := r.UsernameForRole(role); mapped != "" {
			u, err := b.users.ByLogin(ctx, mapped)
			if err != nil {
				b.logger.Error("按角色登录名查找账户失败", zap.Error(err))
				return nil, lookupFailed
			}
			if u != nil {
				return u, nil
			}
		}
	}
	u, err := b.users.ByLogin(ctx, username)
	if err != nil {
		b.logger.Error("按登录名查找账户失败", zap.Error(err))
		return nil, lookupFailed
	}
	if u != nil {
		return u, nil
	}
	if u, err = b.users.ByEmail(ctx, email); err != nil {
		b.logger.Error("按邮箱查找账户失败", zap.Error(err))
		return nil, lookupFailed
	}
	if u != nil {
		return u, nil
	}

	if username != "" && r.AutoCreateUsers() {
		password, err := service.GeneratePassword(32)
		if err != nil {
			return nil, service.NewAPIError(http.StatusInternalServerError, "user_creation_failed", "Failed to create user account.")
		}
		localRole := models.UserRole(r.MapRole(role))
		if !models.ValidRole(string(localRole)) {
			localRole = models.RoleSubscriber
		}
		u, err := b.users.Create(ctx, service.NewUser{
			Login:    username,
			Email:    email,
			Password: password,
			Role:     localRole,
			SSOUser:  true,
		})
		if err != nil {
			b.logger.Error("自动创建账户失败", zap.String("login", username), zap.Error(err))
			return nil, service.NewAPIError(http.StatusInternalServerError, "user_creation_failed", "Failed to create user account.")
		}
		r.Debug("已自动创建账户", zap.String("login", username), zap.String("role", string(localRole)))
		return u, nil
	}

	return nil, service.NewAPIError(http.StatusForbidden, "user_not_found", "User account not found on this WordPress site.")
}

/* Logout 账户为 SSO 账户时回报提供方 */
func (b *Bridge) Logout(ctx context.Context, userID string) {
	user, err := b.users.ByID(ctx, userID)
	if err != nil || user == nil || !user.SSOUser {
		return
	}
	r, err := b.Resolver(ctx)
	if err != nil {
		b.logger.Warn("加载 SSO 配置失败，跳过登出回报", zap.Error(err))
		return
	}
	_ = b.provider.Notify(ActionLogLogout, r.SSLVerify(), r.LogoutLogEndpoint(), r.NotifyTimeout(), map[string]any{
		"site":  b.site.URL(),
		"email": user.Email,
	})
}

/* SessionExpiry 会话 Cookie 过期时间 */
func (b *Bridge) SessionExpiry() time.Time {
	return time.Now().Add(b.sessions.Lifetime())
}

/* SessionCookieName 会话 Cookie 名 */
func (b *Bridge) SessionCookieName() string {
	return b.sessions.CookieName()
}
