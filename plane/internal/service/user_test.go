package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sashosting/plane/internal/db/models"
)

func TestUserServiceCreate(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewUserService(env.dao)
	ctx := context.Background()

	user, err := svc.CreateAdministrator(ctx, "ops", "ops@example.com", "S3cret!pass")
	if err != nil {
		t.Fatalf("创建管理员失败: %v", err)
	}
	if user.Role != models.RoleAdministrator || user.ID == "" {
		t.Errorf("管理员字段错误: %+v", user)
	}
	if user.Password == "S3cret!pass" || !CheckPassword(user.Password, "S3cret!pass") {
		t.Error("密码应以 bcrypt 存储")
	}

	for _, req := range []NewUser{
		{Login: "ops", Email: "other@example.com", Password: "x"},
		{Login: "other", Email: "ops@example.com", Password: "x"},
	} {
		if _, err := svc.Create(ctx, req); !errors.Is(err, ErrUserExists) {
			t.Errorf("重复账户应返回 ErrUserExists, got %v", err)
		}
	}
	if n, _ := env.dao.CountUsers(); n != 1 {
		t.Errorf("重复创建不应写入账户, got %d", n)
	}

	sso, err := svc.Create(ctx, NewUser{Login: "writer", Email: "writer@example.com", Password: "x", SSOUser: true})
	if err != nil || sso.Role != models.RoleSubscriber || !sso.SSOUser {
		t.Errorf("默认角色或 SSO 标记错误: %+v, %v", sso, err)
	}

	found, _ := svc.ByEmail(ctx, "writer@example.com")
	if found == nil || found.ID != sso.ID {
		t.Errorf("按邮箱查找错误: %+v", found)
	}
	if u, err := svc.ByLogin(ctx, ""); u != nil || err != nil {
		t.Errorf("空登录名应返回 nil: %+v, %v", u, err)
	}
}

func TestSanitizeHelpers(t *testing.T) {
	if got := SanitizeEmail("  a.b@example.com "); got != "a.b@example.com" {
		t.Errorf("SanitizeEmail 错误: %q", got)
	}
	if got := SanitizeEmail("not-an-email"); got != "" {
		t.Errorf("无效邮箱应为空, got %q", got)
	}
	if got := SanitizeText(" <b>tok</b>en\n "); got != "token" {
		t.Errorf("SanitizeText 错误: %q", got)
	}

	pw, err := GeneratePassword(32)
	if err != nil || len(pw) != 32 {
		t.Fatalf("生成密码失败: %q, %v", pw, err)
	}
	if strings.ContainsAny(pw, "\n\t") {
		t.Errorf("密码包含非法字符: %q", pw)
	}
}
