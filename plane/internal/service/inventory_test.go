package service

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/site"
)

func TestInventory_PluginListCacheAndInvalidation(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewInventoryService(env.site, env.cache)
	bus := NewEventBus()
	RegisterInvalidation(bus, env.cache)
	ctx := context.Background()

	env.mustCreate(t, &models.Plugin{File: "akismet/akismet.php", Name: "Akismet", Version: "5.3"})
	env.mustCreate(t, &models.Plugin{File: "hello/hello.php", Name: "Hello Dolly", Version: "1.7.2", Active: true})

	first, err := svc.PluginList(ctx)
	if err != nil {
		t.Fatalf("读取插件列表失败: %v", err)
	}
	want := `{"Akismet":{"status":"inactive","version":"5.3"},"Hello Dolly":{"status":"active","version":"1.7.2"}}`
	if string(first) != want {
		t.Fatalf("插件列表不符:\n got %s\nwant %s", first, want)
	}

	/* 数据变化但未触发事件：仍返回缓存 */
	if _, err := env.dao.SetPluginsActive([]string{"akismet/akismet.php"}, true); err != nil {
		t.Fatalf("启用插件失败: %v", err)
	}
	before := env.queries.Load()
	cached, _ := svc.PluginList(ctx)
	if !bytes.Equal(first, cached) || env.queries.Load() != before {
		t.Fatal("未触发事件前应命中缓存且不查库")
	}

	bus.Publish(ctx, Event{Name: EventPluginActivated, Data: map[string]any{"plugin": "akismet/akismet.php"}})
	fresh, _ := svc.PluginList(ctx)
	if bytes.Equal(first, fresh) {
		t.Fatal("插件启用事件后不应返回旧数据")
	}
	if !bytes.Contains(fresh, []byte(`"Akismet":{"status":"active"`)) {
		t.Fatalf("刷新后的列表应反映启用状态: %s", fresh)
	}
}

func TestInventory_ThemeListChildParent(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewInventoryService(env.site, env.cache)

	env.mustCreate(t, &models.Theme{Slug: "Divi", Name: "Divi", Version: "4.25", Template: "Divi"})
	env.mustCreate(t, &models.Theme{Slug: "divi-child", Name: "Divi Child", Version: "1.0", Template: "Divi", Active: true})

	body, err := svc.ThemeList(context.Background())
	if err != nil {
		t.Fatalf("读取主题列表失败: %v", err)
	}
	var got map[string]ThemeEntry
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if got["Divi"].Type != "parent" || got["Divi"].Parent != "" {
		t.Fatalf("Divi 应为父主题: %+v", got["Divi"])
	}
	child := got["Divi Child"]
	if child.Type != "child" || child.Parent != "Divi" || child.Status != "active" {
		t.Fatalf("子主题信息不符: %+v", child)
	}
	if bytes.Contains(body, []byte(`"Divi":{"status":"inactive","version":"4.25","type":"parent","parent"`)) {
		t.Fatal("父主题不应输出 parent 字段")
	}
}

func TestInventory_CoreListFromOptions(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewInventoryService(env.site, env.cache)
	_ = env.dao.SetOption(site.OptionWPVersion, "6.5.2")
	_ = env.dao.SetOption(site.OptionPHPVersion, "8.2.10")
	_ = env.dao.SetOption(site.OptionUploadMax, "2097152")
	_ = env.dao.SetOption(site.OptionMemoryLimit, "256M")

	body, err := svc.CoreList(context.Background())
	if err != nil {
		t.Fatalf("读取核心信息失败: %v", err)
	}
	var info CoreInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if info.WordPressVersion != "6.5.2" || info.PHPVersion != "8.2.10" || info.MemoryLimit != "256M" {
		t.Fatalf("版本信息不符: %+v", info)
	}
	if info.MaxUploadSize != "2.0 MB" {
		t.Fatalf("上传上限格式应为 2.0 MB, got %s", info.MaxUploadSize)
	}
	if info.ServerSoftware != "Unknown" || info.DebugMode != "disabled" {
		t.Fatalf("缺省值不符: %+v", info)
	}
	if info.MySQLVersion == "" {
		t.Fatal("未配置数据库版本时应查询数据库")
	}
	if info.SiteURL != "https://example.com" {
		t.Fatalf("site_url 不符: %s", info.SiteURL)
	}
}
