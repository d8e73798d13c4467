/*
Package sso 单点登录桥接

Resolver 按站点状态推导环境与提供方地址，Provider 负责与提供方通信，
Bridge 实现一次性令牌换取本地会话的状态机。
*/
package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"maps"
	"strconv"
	"strings"
	"time"

	"sashosting/plane/internal/config"
	"sashosting/plane/internal/site"

	"go.uber.org/zap"
)

/* OptionSSOConfig 持久化覆盖项所在的站点选项 */
const OptionSSOConfig = "sas_sso_config"

/* mockScript 本地模拟提供方脚本名，出现在提供方地址中时改用 ?endpoint= 形式 */
const mockScript = "test-sso-mock.php"

/* 环境 */
const (
	EnvLocal      = "local"
	EnvProduction = "production"
)

/* 设置项 */
const (
	KeyEnvironment       = "environment"
	KeyProviderURL       = "provider_url"
	KeyTokenLifetime     = "token_lifetime"
	KeyRateLimitLogin    = "rate_limit_login"
	KeyRateLimitValidate = "rate_limit_validate"
	KeyAutoCreateUsers   = "auto_create_users"
	KeyDefaultRole       = "default_role"
	KeyDebugMode         = "debug_mode"
	KeySSLVerify         = "ssl_verify"
	KeyRoleMapping       = "role_mapping"
	KeyUsernameMapping   = "username_mapping"
)

/* localIndicators 站点地址中出现即视为本地开发环境 */
var localIndicators = []string{
	"localhost",
	".local",
	"127.0.0.1",
	"::1",
	".test",
	".dev",
	"192.168.",
	"10.0.",
}

/* 提供方各接口路径与本地模拟时的 endpoint 名 */
type endpoint struct {
	path string
	mock string
}

var (
	endpointValidateSSO   = endpoint{"/api/wordpress/auth/validate-token", "validate-sso-token"}
	endpointLoginLog      = endpoint{"/api/wordpress/auth/log-login", "log-sso-login"}
	endpointLogoutLog     = endpoint{"/api/wordpress/auth/log-logout", "log-sso-logout"}
	endpointValidateAdmin = endpoint{"/api/wordpress/auth/validate-token", "validate-token"}
	endpointLogAction     = endpoint{"/api/wordpress/auth/log-action", "log-action"}
)

/*
Resolver SSO 配置
功能：默认值与持久化覆盖项合并后的扁平键值表。每个请求按当前配置、站点地址与覆盖项重新构造，
不存在进程级单例。
*/
type Resolver struct {
	cfg      config.SSOConfig
	site     *site.Site
	settings map[string]any
	logger   *zap.Logger
}

/*
IsLocalEnvironment 判断站点是否处于本地开发环境
功能：站点地址包含任一本地标识（区分大小写的子串匹配），或开启了调试开关
*/
func IsLocalEnvironment(siteURL string, debug bool) bool {
	for _, ind := range localIndicators {
		if strings.Contains(siteURL, ind) {
			return true
		}
	}
	return debug
}

/*
ProviderURL 推导提供方地址
功能：显式覆盖优先；否则本地环境使用本地地址，生产环境使用生产地址
*/
func ProviderURL(cfg config.SSOConfig, local bool) string {
	switch {
	case cfg.ProviderURL != "":
		return cfg.ProviderURL
	case local:
		return cfg.LocalProviderURL
	default:
		return cfg.ProductionProviderURL
	}
}

/* Defaults 默认设置 */
func Defaults(cfg config.SSOConfig, siteURL string, debug bool) map[string]any {
	local := IsLocalEnvironment(siteURL, debug)
	env := EnvProduction
	if local {
		env = EnvLocal
	}
	return map[string]any{
		KeyEnvironment:       env,
		KeyProviderURL:       ProviderURL(cfg, local),
		KeyTokenLifetime:     300,
		KeyRateLimitLogin:    10,
		KeyRateLimitValidate: 20,
		KeyAutoCreateUsers:   true,
		KeyDefaultRole:       "subscriber",
		KeyDebugMode:         local,
		KeySSLVerify:         !local,
		KeyRoleMapping: map[string]any{
			"dev":         "administrator",
			"server":      "administrator",
			"editor":      "editor",
			"author":      "author",
			"contributor": "contributor",
			"subscriber":  "subscriber",
		},
		KeyUsernameMapping: map[string]any{
			"dev":    "sas_dev",
			"server": "sas_server",
			"tech":   "sas_tech",
			"seo":    "sas_seo",
		},
	}
}

/*
Load 构造配置
功能：读取覆盖项并整体覆盖同名默认值（浅合并）。覆盖项损坏时记录警告并只使用默认值。
*/
func Load(ctx context.Context, cfg config.SSOConfig, s *site.Site) (*Resolver, error) {
	r := &Resolver{
		cfg:      cfg,
		site:     s,
		settings: Defaults(cfg, s.URL(), s.Debug()),
		logger:   zap.L().Named("sso"),
	}
	overrides, err := r.overrides(ctx)
	if err != nil {
		return nil, err
	}
	maps.Copy(r.settings, overrides)
	return r, nil
}

func (r *Resolver) overrides(ctx context.Context) (map[string]any, error) {
	raw, ok, err := r.site.DAO().WithContext(ctx).GetOption(OptionSSOConfig)
	if err != nil {
		return nil, fmt.Errorf("读取 SSO 覆盖配置失败: %w", err)
	}
	out := map[string]any{}
	if !ok || raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		r.logger.Warn("SSO 覆盖配置损坏，已忽略", zap.Error(err))
		return map[string]any{}, nil
	}
	return out, nil
}

/* Get 读取设置，不存在时返回 def */
func (r *Resolver) Get(key string, def any) any {
	if v, ok := r.settings[key]; ok && v != nil {
		return v
	}
	return def
}

/* All 全部设置的副本 */
func (r *Resolver) All() map[string]any {
	return maps.Clone(r.settings)
}

/*
Set 写入设置
功能：读取整份覆盖项、合并后整体写回。并发写入时后写者覆盖。
*/
func (r *Resolver) Set(ctx context.Context, key string, value any) error {
	overrides, err := r.overrides(ctx)
	if err != nil {
		return err
	}
	overrides[key] = value
	raw, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("序列化 SSO 覆盖配置失败: %w", err)
	}
	if err := r.site.DAO().WithContext(ctx).SetOption(OptionSSOConfig, string(raw)); err != nil {
		return fmt.Errorf("保存 SSO 覆盖配置失败: %w", err)
	}
	r.settings[key] = value
	return nil
}

/* Reset 删除覆盖项，恢复默认值 */
func (r *Resolver) Reset(ctx context.Context) error {
	if err := r.site.DAO().WithContext(ctx).DeleteOption(OptionSSOConfig); err != nil {
		return fmt.Errorf("删除 SSO 覆盖配置失败: %w", err)
	}
	r.settings = Defaults(r.cfg, r.site.URL(), r.site.Debug())
	return nil
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

func (r *Resolver) validateTimeout() time.Duration { return seconds(r.cfg.ValidateTimeout, 15) }

/* NotifyTimeout 回报调用超时 */
func (r *Resolver) NotifyTimeout() time.Duration { return seconds(r.cfg.NotifyTimeout, 5) }

/* ==================== 类型化读取 ==================== */

func (r *Resolver) String(key, def string) string {
	switch v := r.Get(key, def).(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (r *Resolver) Bool(key string, def bool) bool {
	switch v := r.Get(key, def).(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return v != "" && v != "0"
		}
		return b
	default:
		return def
	}
}

func (r *Resolver) Int(key string, def int) int {
	switch v := r.Get(key, def).(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (r *Resolver) mapping(key string) map[string]string {
	out := map[string]string{}
	switch m := r.Get(key, nil).(type) {
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		maps.Copy(out, m)
	}
	return out
}

/* Environment local 或 production */
func (r *Resolver) Environment() string { return r.String(KeyEnvironment, EnvProduction) }

/* IsLocal 是否本地环境 */
func (r *Resolver) IsLocal() bool { return r.Environment() == EnvLocal }

/* ProviderBase 提供方地址 */
func (r *Resolver) ProviderBase() string { return strings.TrimRight(r.String(KeyProviderURL, ""), "/") }

/* DebugMode 是否输出调试日志 */
func (r *Resolver) DebugMode() bool { return r.Bool(KeyDebugMode, false) }

/* SSLVerify 是否校验提供方证书 */
func (r *Resolver) SSLVerify() bool { return r.Bool(KeySSLVerify, true) }

/* AutoCreateUsers 找不到账户时是否自动创建 */
func (r *Resolver) AutoCreateUsers() bool { return r.Bool(KeyAutoCreateUsers, true) }

/* TokenLifetime 令牌有效期（秒），仅作展示，本地不校验 */
func (r *Resolver) TokenLifetime() int { return r.Int(KeyTokenLifetime, 300) }

/* MapRole 外部角色映射为本地角色，未映射时使用默认角色 */
func (r *Resolver) MapRole(externalRole string) string {
	if role, ok := r.mapping(KeyRoleMapping)[strings.ToLower(externalRole)]; ok {
		return role
	}
	return r.String(KeyDefaultRole, "subscriber")
}

/* UsernameForRole 外部角色约定的本地登录名，未映射时返回空串 */
func (r *Resolver) UsernameForRole(externalRole string) string {
	return r.mapping(KeyUsernameMapping)[strings.ToLower(externalRole)]
}

func (r *Resolver) endpoint(e endpoint) string {
	base := r.ProviderBase()
	if strings.Contains(base, mockScript) {
		return base + "?endpoint=" + e.mock
	}
	return base + e.path
}

/* ValidationEndpoint 单点登录令牌校验地址 */
func (r *Resolver) ValidationEndpoint() string { return r.endpoint(endpointValidateSSO) }

/* LoginLogEndpoint 登录回报地址 */
func (r *Resolver) LoginLogEndpoint() string { return r.endpoint(endpointLoginLog) }

/* LogoutLogEndpoint 登出回报地址 */
func (r *Resolver) LogoutLogEndpoint() string { return r.endpoint(endpointLogoutLog) }

/* AdminTokenEndpoint 管理员创建令牌校验地址 */
func (r *Resolver) AdminTokenEndpoint() string { return r.endpoint(endpointValidateAdmin) }

/* LogActionEndpoint 操作审计回报地址 */
func (r *Resolver) LogActionEndpoint() string { return r.endpoint(endpointLogAction) }

/* Debug 调试模式下输出日志 */
func (r *Resolver) Debug(msg string, fields ...zap.Field) {
	if !r.DebugMode() {
		return
	}
	r.logger.Debug("[SAS SSO Debug] "+msg, fields...)
}

var noticeTmpl = template.Must(template.New("notice").Parse(`<div class="notice notice-info is-dismissible">
    <p>
        <strong>SAS SSO:</strong> Running in LOCAL mode.
        Provider URL: <code>{{.}}</code>
    </p>
</div>`))

/* EnvironmentNotice 本地环境下给管理员的提示，生产环境返回空串 */
func (r *Resolver) EnvironmentNotice() (template.HTML, error) {
	if !r.IsLocal() {
		return "", nil
	}
	var b strings.Builder
	if err := noticeTmpl.Execute(&b, r.String(KeyProviderURL, "")); err != nil {
		return "", err
	}
	return template.HTML(b.String()), nil
}
