package sso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db/cache"
	"sashosting/plane/internal/db/dao"
	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/service"
	"sashosting/plane/internal/site"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

/* fakeProvider 记录收到的调用，按 validate 回调生成校验响应 */
type fakeProvider struct {
	mu       sync.Mutex
	calls    map[string][]map[string]any
	validate func(body map[string]any) (int, any)
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	path := r.URL.Path
	if ep := r.URL.Query().Get("endpoint"); ep != "" {
		path = ep
	}
	f.mu.Lock()
	f.calls[path] = append(f.calls[path], body)
	f.mu.Unlock()

	status, resp := http.StatusOK, any(map[string]any{"ok": true})
	if strings.HasSuffix(path, "validate-token") || path == "validate-sso-token" {
		status, resp = f.validate(body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeProvider) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[path])
}

type testEnv struct {
	cfg      *config.Config
	dao      *dao.DAO
	site     *site.Site
	users    *service.UserService
	sessions *service.SessionManager
	provider *Provider
	events   *service.EventBus
	bridge   *Bridge
	fake     *fakeProvider
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("创建测试数据库失败: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&models.User{}, &models.AuditLog{}, &models.Option{}); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}

	fake := &fakeProvider{
		calls: map[string][]map[string]any{},
		validate: func(map[string]any) (int, any) {
			return http.StatusOK, map[string]any{"valid": false}
		},
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Site.URL = "https://example.com"
	cfg.Site.Name = "Example"
	cfg.SSO.ProviderURL = srv.URL

	d := dao.New(db)
	s := site.New(cfg, d)
	sessions := service.NewSessionManager(cache.NewMemoryStore(), cfg.Auth)
	if err := sessions.Start(context.Background()); err != nil {
		t.Fatalf("初始化会话失败: %v", err)
	}
	users := service.NewUserService(d)
	provider := NewProvider()
	events := service.NewEventBus()
	return &testEnv{
		cfg:      cfg,
		dao:      d,
		site:     s,
		users:    users,
		sessions: sessions,
		provider: provider,
		events:   events,
		bridge:   NewBridge(s, cfg.SSO, users, sessions, provider, events),
		fake:     fake,
	}
}

/* flush 等待后台回报结束 */
func (e *testEnv) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.provider.Wait(ctx); err != nil {
		t.Fatalf("等待回报超时: %v", err)
	}
}

func validUser(email, username, role string) func(map[string]any) (int, any) {
	return func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"valid": true,
			"user":  map[string]any{"email": email, "username": username, "role": role},
		}
	}
}

func TestIsLocalEnvironment(t *testing.T) {
	cases := []struct {
		url   string
		debug bool
		want  bool
	}{
		{"http://localhost:8080", false, true},
		{"https://shop.test", false, true},
		{"http://192.168.1.20", false, true},
		{"https://example.com", false, false},
		{"https://example.com", true, true},
		{"https://LOCALHOST", false, false},
	}
	for _, c := range cases {
		if got := IsLocalEnvironment(c.url, c.debug); got != c.want {
			t.Errorf("IsLocalEnvironment(%q, %v) = %v, want %v", c.url, c.debug, got, c.want)
		}
	}
}

func TestResolverSettings(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	cfg := env.cfg.SSO
	cfg.ProviderURL = ""

	r, err := Load(ctx, cfg, env.site)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if r.Environment() != EnvProduction || r.ProviderBase() != "https://annotation.sitesatscale.com" || !r.SSLVerify() || r.DebugMode() {
		t.Errorf("生产环境默认值错误: %v", r.All())
	}
	if r.ValidationEndpoint() != "https://annotation.sitesatscale.com/api/wordpress/auth/validate-token" {
		t.Errorf("校验地址错误: %s", r.ValidationEndpoint())
	}
	if r.MapRole("DEV") != "administrator" || r.MapRole("unknown") != "subscriber" {
		t.Error("角色映射错误")
	}
	if r.UsernameForRole("Seo") != "sas_seo" || r.UsernameForRole("editor") != "" {
		t.Error("登录名映射错误")
	}
	if r.TokenLifetime() != 300 {
		t.Errorf("令牌有效期默认值错误: %d", r.TokenLifetime())
	}

	if err := r.Set(ctx, KeyDefaultRole, "author"); err != nil {
		t.Fatalf("写入设置失败: %v", err)
	}
	if err := r.Set(ctx, KeyProviderURL, "https://example.com/test-sso-mock.php"); err != nil {
		t.Fatalf("写入设置失败: %v", err)
	}

	r2, _ := Load(ctx, cfg, env.site)
	if r2.MapRole("unknown") != "author" {
		t.Errorf("覆盖项未生效: %v", r2.All())
	}
	for got, want := range map[string]string{
		r2.ValidationEndpoint(): "https://example.com/test-sso-mock.php?endpoint=validate-sso-token",
		r2.LoginLogEndpoint():   "https://example.com/test-sso-mock.php?endpoint=log-sso-login",
		r2.LogoutLogEndpoint():  "https://example.com/test-sso-mock.php?endpoint=log-sso-logout",
		r2.AdminTokenEndpoint(): "https://example.com/test-sso-mock.php?endpoint=validate-token",
		r2.LogActionEndpoint():  "https://example.com/test-sso-mock.php?endpoint=log-action",
	} {
		if got != want {
			t.Errorf("模拟地址错误: got %s, want %s", got, want)
		}
	}

	raw, _, _ := env.dao.GetOption(OptionSSOConfig)
	var stored map[string]any
	if err := json.Unmarshal([]byte(raw), &stored); err != nil || len(stored) != 2 {
		t.Errorf("覆盖项应整体写回: %s", raw)
	}

	if err := r2.Reset(ctx); err != nil {
		t.Fatalf("重置失败: %v", err)
	}
	r3, _ := Load(ctx, cfg, env.site)
	if r3.MapRole("unknown") != "subscriber" || r2.MapRole("unknown") != "subscriber" {
		t.Error("重置后应恢复默认值")
	}
}

func TestLocalResolverAndNotice(t *testing.T) {
	env := setupTestEnv(t)
	env.cfg.Site.URL = "http://shop.local"
	s := site.New(env.cfg, env.dao)
	cfg := env.cfg.SSO
	cfg.ProviderURL = ""

	r, err := Load(context.Background(), cfg, s)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if !r.IsLocal() || r.SSLVerify() || !r.DebugMode() || r.ProviderBase() != "http://localhost:8000" {
		t.Errorf("本地环境默认值错误: %v", r.All())
	}
	notice, err := r.EnvironmentNotice()
	if err != nil || !strings.Contains(string(notice), "Running in LOCAL mode") || !strings.Contains(string(notice), "http://localhost:8000") {
		t.Errorf("环境提示错误: %s, %v", notice, err)
	}

	prod, _ := Load(context.Background(), cfg, env.site)
	if n, _ := prod.EnvironmentNotice(); n != "" {
		t.Errorf("生产环境不应输出提示: %s", n)
	}
}

func TestButton(t *testing.T) {
	env := setupTestEnv(t)
	r, _ := env.bridge.Resolver(context.Background())

	html, err := r.Button(ButtonOptions{Text: "<b>Go</b>"})
	if err != nil {
		t.Fatalf("渲染按钮失败: %v", err)
	}
	s := string(html)
	if !strings.Contains(s, `class="sas-sso-button"`) || !strings.Contains(s, `rel="nofollow"`) {
		t.Errorf("按钮属性错误: %s", s)
	}
	if !strings.Contains(s, "&lt;b&gt;Go&lt;/b&gt;") {
		t.Errorf("按钮文本应被转义: %s", s)
	}
	if !strings.Contains(s, "/generate-sso-token?site=https%3A%2F%2Fexample.com&amp;redirect_to=https%3A%2F%2Fexample.com%2Fwp-admin%2F") {
		t.Errorf("按钮地址错误: %s", s)
	}
}

func TestBridgeRejectsInvalidToken(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	out := env.bridge.Handle(ctx, Request{TokenPresent: true, Token: "  "})
	if out.State != StateRejected || out.Err.Code != "missing_token" {
		t.Errorf("空令牌应拒绝: %+v", out)
	}
	if env.fake.count("/api/wordpress/auth/validate-token") != 0 {
		t.Error("空令牌不应联系提供方")
	}

	out = env.bridge.Handle(ctx, Request{TokenPresent: true, Token: "abc"})
	if out.State != StateRejected || out.Session != "" || out.Err.Code != "token_invalid" {
		t.Errorf("valid=false 不应建立会话: %+v", out)
	}
	if !strings.Contains(string(out.Page), "Authentication token is invalid or expired.") {
		t.Errorf("失败页应包含提示: %s", out.Page)
	}

	env.fake.validate = func(map[string]any) (int, any) {
		return http.StatusForbidden, map[string]any{"message": "<script>x</script> expired"}
	}
	out = env.bridge.Handle(ctx, Request{TokenPresent: true, Token: "abc"})
	if out.Err == nil || out.Err.Code != "invalid_token" {
		t.Fatalf("非 200 应拒绝: %+v", out)
	}
	if strings.Contains(string(out.Page), "<script>x</script>") || !strings.Contains(string(out.Page), "&lt;script&gt;") {
		t.Error("提供方消息应被转义")
	}

	env.fake.validate = validUser("", "someone", "editor")
	out = env.bridge.Handle(ctx, Request{TokenPresent: true, Token: "abc"})
	if out.Err == nil || out.Err.Code != "invalid_user_data" {
		t.Errorf("缺少邮箱应拒绝: %+v", out)
	}
	if n, _ := env.dao.CountUsers(); n != 0 {
		t.Errorf("失败时不应创建账户, got %d", n)
	}
}

func TestBridgeResolvesExistingAccount(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	editor, _ := env.users.Create(ctx, service.NewUser{Login: "jane", Email: "jane@example.com", Password: "x", Role: models.RoleEditor})
	dev, _ := env.users.Create(ctx, service.NewUser{Login: "sas_dev", Email: "dev@example.com", Password: "x", Role: models.RoleAdministrator})

	env.fake.validate = validUser("jane@elsewhere.com", "jane", "editor")
	out := env.bridge.Handle(ctx, Request{TokenPresent: true, Token: "tok", RedirectTo: "/wp-admin/edit.php"})
	if out.State != StateAuthenticated || out.User.ID != editor.ID {
		t.Fatalf("应解析到已有账户: %+v", out)
	}
	if out.RedirectURL != "/wp-admin/edit.php" || out.Session == "" {
		t.Errorf("跳转或会话错误: %+v", out)
	}
	if claims, err := env.sessions.Parse(out.Session); err != nil || claims.UserID != editor.ID {
		t.Errorf("会话令牌错误: %+v, %v", claims, err)
	}
	if !strings.Contains(string(out.Page), `content="2;url=/wp-admin/edit.php"`) || !strings.Contains(string(out.Page), "Welcome back, jane!") {
		t.Errorf("成功页错误: %s", out.Page)
	}
	if n, _ := env.dao.CountUsers(); n != 2 {
		t.Errorf("不应创建重复账户, got %d", n)
	}

	/* 角色约定登录名优先于提供的登录名 */
	env.fake.validate = validUser("x@example.com", "jane", "DEV")
	out = env.bridge.Handle(ctx, Request{TokenPresent: true, Token: "tok", RedirectTo: "https://evil.example.net/"})
	if out.User == nil || out.User.ID != dev.ID {
		t.Errorf("应按角色映射解析到 sas_dev: %+v", out.User)
	}
	if out.RedirectURL != "https://example.com/wp-admin/" {
		t.Errorf("站外跳转应回退到后台首页: %s", out.RedirectURL)
	}

	env.flush(t)
	if env.fake.count("/api/wordpress/auth/log-login") != 2 {
		t.Errorf("每次登录都应回报, got %d", env.fake.count("/api/wordpress/auth/log-login"))
	}
	u, _ := env.users.ByID(ctx, editor.ID)
	if u.LastSSOLogin == nil {
		t.Error("应记录最近登录时间")
	}
}

func TestBridgeProvisionsAccount(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.fake.validate = validUser("new@example.com", "newbie", "author")
	out := env.bridge.Handle(ctx, Request{TokenPresent: true, Token: "tok"})
	if out.State != StateAuthenticated || out.User == nil {
		t.Fatalf("应自动创建账户: %+v", out)
	}
	if out.User.Role != models.RoleAuthor || !out.User.SSOUser || out.User.Login != "newbie" {
		t.Errorf("新账户字段错误: %+v", out.User)
	}

	env.fake.validate = validUser("nobody@example.com", "", "editor")
	out = env.bridge.Handle(ctx, Request{TokenPresent: true, Token: "tok"})
	if out.Err == nil || out.Err.Code != "user_not_found" {
		t.Errorf("没有登录名时不应创建账户: %+v", out)
	}

	r, _ := env.bridge.Resolver(ctx)
	if err := r.Set(ctx, KeyAutoCreateUsers, false); err != nil {
		t.Fatalf("写入设置失败: %v", err)
	}
	env.fake.validate = validUser("other@example.com", "other", "editor")
	out = env.bridge.Handle(ctx, Request{TokenPresent: true, Token: "tok"})
	if out.Err == nil || out.Err.Code != "user_not_found" {
		t.Errorf("关闭自动创建后应拒绝: %+v", out)
	}
}

func TestBridgeExistingSessionAndLogout(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.fake.validate = validUser("new@example.com", "newbie", "author")

	out := env.bridge.Handle(ctx, Request{TokenPresent: true, Token: "tok", SessionUserID: "u-1", Redirect: "/shop/"})
	if out.State != StateAuthenticated || out.RedirectURL != "/shop/" || out.Page != nil {
		t.Errorf("已登录时应直接跳转: %+v", out)
	}
	if env.fake.count("/api/wordpress/auth/validate-token") != 0 {
		t.Error("已登录时不应联系提供方")
	}

	out = env.bridge.Handle(ctx, Request{TokenPresent: true, Token: "tok", SessionUserID: "u-1", ForceLogin: true})
	if out.User == nil || env.fake.count("/api/wordpress/auth/validate-token") != 1 {
		t.Fatalf("force_login 应重新校验: %+v", out)
	}

	plain, _ := env.users.Create(ctx, service.NewUser{Login: "local", Email: "local@example.com", Password: "x"})
	env.events.Publish(ctx, service.Event{Name: service.EventLogout, Data: map[string]any{"user_id": plain.ID}})
	env.events.Publish(ctx, service.Event{Name: service.EventLogout, Data: map[string]any{"user_id": out.User.ID}})
	env.flush(t)
	if n := env.fake.count("/api/wordpress/auth/log-logout"); n != 1 {
		t.Errorf("只有 SSO 账户登出时回报, got %d", n)
	}
	if err := env.provider.Notify(ActionLogLogout, true, "http://127.0.0.1:1", time.Second, nil); err != ErrProviderStopped {
		t.Errorf("停止后不应接受回报, got %v", err)
	}
}

func TestRequestFromQuery(t *testing.T) {
	req := RequestFromQuery(map[string][]string{"sas-sso-token": {"abc"}, "force_login": {""}})
	if !req.TokenPresent || req.Token != "abc" || !req.ForceLogin {
		t.Errorf("别名参数解析错误: %+v", req)
	}
	if req := RequestFromQuery(map[string][]string{"redirect_to": {"/x"}}); req.TokenPresent {
		t.Errorf("无令牌参数时不应进入流程: %+v", req)
	}
}
