package sso

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"sashosting/plane/internal/metrics"
	"sashosting/plane/internal/service"

	"go.uber.org/zap"
)

/* 调用标签，用于指标与日志 */
const (
	ActionValidateSSO   = "validate_sso_token"
	ActionValidateAdmin = "validate_admin_token"
	ActionLogLogin      = "log_login"
	ActionLogLogout     = "log_logout"
	ActionLogAction     = "log_action"
)

/* maxProviderBody 提供方响应体上限 */
const maxProviderBody = 1 << 20

/* ProviderUser 提供方返回的用户信息 */
type ProviderUser struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

/*
Provider 认证提供方客户端
功能：同步校验调用与不等待结果的回报调用。回报调用在后台协程中执行，
结果只计入指标和日志，Wait 用于关闭时等待在途回报。
*/
type Provider struct {
	verified   *http.Client
	unverified *http.Client
	logger     *zap.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

/* NewProvider 创建提供方客户端 */
func NewProvider() *Provider {
	insecure := http.DefaultTransport.(*http.Transport).Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // 仅本地环境关闭证书校验
	return &Provider{
		verified:   &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		unverified: &http.Client{Transport: insecure},
		logger:     zap.L().Named("sso-provider"),
	}
}

func (p *Provider) client(verify bool) *http.Client {
	if verify {
		return p.verified
	}
	return p.unverified
}

/* providerResponse 提供方响应 */
type providerResponse struct {
	status int
	data   map[string]any
}

func (r *providerResponse) valid() bool {
	v, ok := r.data["valid"].(bool)
	return ok && v
}

func (r *providerResponse) message() string {
	if m, ok := r.data["message"].(string); ok {
		return m
	}
	return ""
}

func (p *Provider) post(ctx context.Context, verify bool, url string, timeout time.Duration, payload any) (*providerResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client(verify).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return nil, err
	}
	out := &providerResponse{status: resp.StatusCode, data: map[string]any{}}
	/* 非 JSON 响应按空对象处理 */
	_ = json.Unmarshal(raw, &out.data)
	return out, nil
}

/*
ValidateSSOToken 校验单点登录令牌
功能：连接失败、非 200、valid 不为 true 时返回对应的 APIError；
成功时返回响应中的 user 对象
*/
func (p *Provider) ValidateSSOToken(ctx context.Context, r *Resolver, token, siteURL string) (*ProviderUser, error) {
	resp, err := p.post(ctx, r.SSLVerify(), r.ValidationEndpoint(), r.validateTimeout(), map[string]any{
		"token": token,
		"site":  siteURL,
	})
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(ActionValidateSSO, "error").Inc()
		p.logger.Warn("连接认证提供方失败", zap.String("endpoint", r.ValidationEndpoint()), zap.Error(err))
		return nil, service.NewAPIError(http.StatusBadGateway, "sso_failed", "Could not connect to authentication provider.")
	}
	if resp.status != http.StatusOK {
		metrics.ProviderRequests.WithLabelValues(ActionValidateSSO, "rejected").Inc()
		msg := resp.message()
		if msg == "" {
			msg = "Token validation failed"
		}
		r.Debug("令牌校验被拒绝", zap.Int("status", resp.status), zap.String("message", msg))
		return nil, service.NewAPIError(http.StatusUnauthorized, "invalid_token", msg)
	}
	if !resp.valid() {
		metrics.ProviderRequests.WithLabelValues(ActionValidateSSO, "rejected").Inc()
		return nil, service.NewAPIError(http.StatusUnauthorized, "token_invalid", "Authentication token is invalid or expired.")
	}
	metrics.ProviderRequests.WithLabelValues(ActionValidateSSO, "ok").Inc()

	user := &ProviderUser{}
	if u, ok := resp.data["user"].(map[string]any); ok {
		user.Email, _ = u["email"].(string)
		user.Username, _ = u["username"].(string)
		user.Role, _ = u["role"].(string)
	}
	return user, nil
}

/* AdminTokenRequest 管理员创建令牌校验参数 */
type AdminTokenRequest struct {
	Token     string
	Domain    string
	IP        string
	UserAgent string
}

/*
ValidateAdminToken 校验管理员创建令牌
功能：任何失败都视为无权限，原因只写日志
*/
func (p *Provider) ValidateAdminToken(ctx context.Context, r *Resolver, timeout time.Duration, req AdminTokenRequest) bool {
	if req.Token == "" {
		return false
	}
	resp, err := p.post(ctx, r.SSLVerify(), r.AdminTokenEndpoint(), timeout, map[string]any{
		"token":      req.Token,
		"domain":     req.Domain,
		"action":     "create_admin_user",
		"ip":         req.IP,
		"user_agent": req.UserAgent,
	})
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(ActionValidateAdmin, "error").Inc()
		p.logger.Error("管理员令牌校验失败", zap.Error(err))
		return false
	}
	if resp.status != http.StatusOK {
		metrics.ProviderRequests.WithLabelValues(ActionValidateAdmin, "rejected").Inc()
		p.logger.Warn("管理员令牌校验返回非 200", zap.Int("status", resp.status))
		return false
	}
	if !resp.valid() {
		metrics.ProviderRequests.WithLabelValues(ActionValidateAdmin, "rejected").Inc()
		p.logger.Warn("无效的管理员令牌", zap.String("ip", req.IP))
		return false
	}
	metrics.ProviderRequests.WithLabelValues(ActionValidateAdmin, "ok").Inc()
	return true
}

/* ErrProviderStopped 客户端已关闭，不再接受回报 */
var ErrProviderStopped = errors.New("provider client stopped")

/*
Notify 后台回报
功能：不等待响应、不重试，失败只计入指标。调用方的 ctx 取消不影响回报。
*/
func (p *Provider) Notify(action string, verify bool, url string, timeout time.Duration, payload any) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrProviderStopped
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		resp, err := p.post(context.Background(), verify, url, timeout, payload)
		switch {
		case err != nil:
			metrics.ProviderRequests.WithLabelValues(action, "error").Inc()
			p.logger.Debug("回报失败", zap.String("action", action), zap.Error(err))
		case resp.status >= 300:
			metrics.ProviderRequests.WithLabelValues(action, "rejected").Inc()
		default:
			metrics.ProviderRequests.WithLabelValues(action, "ok").Inc()
		}
	}()
	return nil
}

/* Wait 停止接受回报并等待在途回报结束 */
func (p *Provider) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
