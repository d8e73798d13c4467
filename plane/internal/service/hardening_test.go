package service

import (
	"context"
	"slices"
	"strings"
	"testing"

	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db/models"
)

func TestHardeningAllowList(t *testing.T) {
	env := setupTestEnv(t)
	h := NewHardeningService(env.site, env.cfg.Hardening, nil)

	cases := []struct {
		op   Operator
		want bool
	}{
		{Operator{Login: "sas_dev"}, true},
		{Operator{Login: "someone", Email: "AmazonTeam@sitesatscale.com"}, true},
		{Operator{Login: "editor", Email: "editor@example.com"}, false},
		{Operator{}, false},
	}
	for _, c := range cases {
		if got := h.IsAllowed(c.op); got != c.want {
			t.Errorf("IsAllowed(%+v) = %v, want %v", c.op, got, c.want)
		}
	}
}

func TestEnforcePluginRestrictions(t *testing.T) {
	env := setupTestEnv(t)
	env.mustCreate(t, &models.Plugin{File: "updraftplus/updraftplus.php", Name: "UpdraftPlus", Active: true})
	env.mustCreate(t, &models.Plugin{File: "duplicator/duplicator.php", Name: "Duplicator", Active: true})
	env.mustCreate(t, &models.Plugin{File: "akismet/akismet.php", Name: "Akismet", Active: true})

	cfg := env.cfg.Hardening
	cfg.PluginExemptions = map[string][]string{"example.com": {"updraftplus/updraftplus.php"}}
	bus := NewEventBus()
	var deactivated []string
	bus.On(EventPluginDeactivated, "test", func(_ context.Context, ev Event) {
		deactivated = append(deactivated, ev.Data["plugin"].(string))
	})
	h := NewHardeningService(env.site, cfg, bus)
	ctx := context.Background()

	res, err := h.EnforcePluginRestrictions(ctx, Operator{Login: "sas_dev"})
	if err != nil || !res.Allowed || len(res.Deactivated) != 0 {
		t.Fatalf("白名单用户不应停用插件: %+v, %v", res, err)
	}

	res, err = h.EnforcePluginRestrictions(ctx, Operator{Login: "editor"})
	if err != nil {
		t.Fatalf("执行限制失败: %v", err)
	}
	if len(res.Deactivated) != 1 || res.Deactivated[0] != "duplicator/duplicator.php" {
		t.Errorf("停用列表错误: %v", res.Deactivated)
	}
	if slices.Contains(res.HiddenMenus, "updraftplus") || !slices.Contains(res.HiddenMenus, "duplicator") {
		t.Errorf("隐藏菜单错误: %v", res.HiddenMenus)
	}
	if len(deactivated) != 1 {
		t.Errorf("应发布 1 个停用事件, got %v", deactivated)
	}

	for file, want := range map[string]bool{
		"updraftplus/updraftplus.php": true,
		"duplicator/duplicator.php":   false,
		"akismet/akismet.php":         true,
	} {
		p, _ := env.dao.GetPlugin(file)
		if p == nil || p.Active != want {
			t.Errorf("%s 启用状态错误: %+v", file, p)
		}
	}
	logs, _ := env.dao.ListAuditLogs("restricted_plugin_deactivated", 10)
	if len(logs) != 1 || logs[0].Detail != "duplicator/duplicator.php" {
		t.Errorf("审计日志错误: %+v", logs)
	}

	res, _ = h.EnforcePluginRestrictions(ctx, Operator{Login: "editor"})
	if len(res.Deactivated) != 0 {
		t.Errorf("重复执行不应再停用: %v", res.Deactivated)
	}
}

func TestHardeningMenuAndLinks(t *testing.T) {
	env := setupTestEnv(t)
	h := NewHardeningService(env.site, env.cfg.Hardening, nil)
	items := []MenuItem{
		{Title: "Dashboard", Slug: "index.php"},
		{Title: "Staq", Slug: "wpstaq-main.php"},
		{Title: "Duplicator", Slug: "duplicator"},
	}

	got := h.FilterMenu(Operator{Login: "editor"}, items)
	if len(got) != 2 || got[1].Title != "SAS Hosting" {
		t.Errorf("非白名单菜单错误: %+v", got)
	}
	if got := h.FilterMenu(Operator{Login: "sas_dev"}, items); len(got) != 3 {
		t.Errorf("白名单用户应看到全部菜单: %+v", got)
	}

	nodes := h.RebrandAdminBar([]AdminBarNode{{ID: "wp-admin-bar-wpstaq-topbar", Title: "Staq Hosting"}, {ID: "wp-logo", Title: "WordPress"}})
	if nodes[0].Title != "SAS Hosting" || nodes[1].Title != "WordPress" {
		t.Errorf("工具栏改名错误: %+v", nodes)
	}

	caps := h.FilterCapabilities(Operator{Login: "editor"}, map[string]bool{"edit_plugins": true, "edit_posts": true})
	if caps["edit_plugins"] || !caps["edit_posts"] {
		t.Errorf("权限过滤错误: %v", caps)
	}

	protected := env.cfg.Hardening.ProtectedPlugin
	actions := map[string]string{"deactivate": "x", "delete": "y", "settings": "z"}
	if out := h.PluginActionLinks(Operator{Login: "editor"}, protected, actions); len(out) != 1 {
		t.Errorf("受保护插件操作链接错误: %v", out)
	}
	if out := h.PluginActionLinks(Operator{Login: "sas_dev"}, protected, actions); len(out) != 3 {
		t.Errorf("白名单用户应保留操作链接: %v", out)
	}
	if out := h.PluginActionLinks(Operator{Login: "editor"}, "akismet/akismet.php", actions); len(out) != 3 {
		t.Errorf("其它插件不应受影响: %v", out)
	}

	all := h.FilterAllPlugins(map[string]any{protected: 1, "akismet/akismet.php": 2})
	if _, ok := all[protected]; ok || len(all) != 1 {
		t.Errorf("插件列表应隐藏自身: %v", all)
	}
}

func TestUploadLimits(t *testing.T) {
	env := setupTestEnv(t)
	h := NewHardeningService(env.site, env.cfg.Hardening, nil)
	const current = 64 << 20

	for typ, want := range map[string]int64{
		"image/jpeg":      1 << 20,
		"application/pdf": 10 << 20,
		"video/webm":      10 << 20,
		"audio/aac":       10 << 20,
		"text/plain":      current,
		"":                current,
	} {
		if got := h.UploadSizeLimit(typ, current); got != want {
			t.Errorf("UploadSizeLimit(%q) = %d, want %d", typ, got, want)
		}
	}

	f := h.UploadPrefilter(UploadFile{Name: "a.png", Type: "image/png", Size: 2 << 20})
	if f.Error != "Image files must be smaller than 1MB." {
		t.Errorf("超限图片应被拒绝: %+v", f)
	}
	if f := h.UploadPrefilter(UploadFile{Name: "a.pdf", Type: "application/pdf", Size: 2 << 20}); f.Error != "" {
		t.Errorf("未超限 PDF 不应被拒绝: %+v", f)
	}

	cfg := env.cfg.Hardening
	cfg.UploadExemptDomains = []string{"example.com"}
	h.Reload(cfg)
	if got := h.UploadSizeLimit("image/jpeg", current); got != current {
		t.Errorf("豁免域名不应限制上传, got %d", got)
	}
}

func TestHardeningReloadAndBranding(t *testing.T) {
	env := setupTestEnv(t)
	bus := NewEventBus()
	h := NewHardeningService(env.site, env.cfg.Hardening, bus)

	css, err := h.AdminHeadCSS()
	if err != nil || !strings.Contains(css, "sas-2024.png") || !strings.Contains(css, "visibility: hidden") {
		t.Errorf("后台样式错误: %s, %v", css, err)
	}
	js, err := h.AdminFooterJS()
	if err != nil || !strings.Contains(js, `"SAS Hosting"`) || !strings.Contains(js, ".current--year") {
		t.Errorf("后台脚本错误: %s, %v", js, err)
	}

	next := config.DefaultConfig()
	next.Hardening.BrandName = "Acme Hosting"
	bus.Publish(context.Background(), Event{Name: EventConfigReloaded, Data: map[string]any{"config": next}})

	js, err = h.FrontendFooterJS()
	if err != nil || !strings.Contains(js, `"Acme Hosting"`) {
		t.Errorf("重载后品牌名未更新: %s, %v", js, err)
	}
}
