package service

import (
	"context"
	"testing"
	"time"

	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/site"
)

func TestSupremeModulesNotDetected(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewDiviService(env.site, site.Static{})

	report, err := svc.SupremeModules(context.Background())
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if report.Message != "Divi Supreme plugin is not detected on this site." || len(report.ActiveModules) != 0 || report.Status != "" {
		t.Errorf("未安装时报告错误: %+v", report)
	}
}

func TestSupremeModulesConfigured(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewDiviService(env.site, site.Static{site.CapDiviSupreme: true})
	ctx := context.Background()

	report, err := svc.SupremeModules(ctx)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if report.Status != "not_configured" || report.Note == "" {
		t.Errorf("设置未保存时应为 not_configured: %+v", report)
	}

	if err := env.dao.SetOption(OptionDiviSupremeModules, `{"AdvancedTabs":"on","Lottie":"off","InlineSvg":"on"}`); err != nil {
		t.Fatalf("写入设置失败: %v", err)
	}
	report, err = svc.SupremeModules(ctx)
	if err != nil {
		t.Fatalf("检查失败: %v", err)
	}
	if report.Status != "configured" || report.Message != "2 active Divi Supreme modules found." {
		t.Errorf("报告错误: %+v", report)
	}
	want := []SupremeModule{
		{Name: "Divi Advanced Tabs", Key: "dsm_advanced_tabs"},
		{Name: "Divi Inline Svg", Key: "dsm_inline_svg"},
	}
	if len(report.ActiveModules) != len(want) {
		t.Fatalf("启用模块数量错误: %+v", report.ActiveModules)
	}
	for i := range want {
		if report.ActiveModules[i] != want[i] {
			t.Errorf("第 %d 个模块错误: got %+v, want %+v", i, report.ActiveModules[i], want[i])
		}
	}

	if err := env.dao.SetOption(OptionDiviSupremeModules, `{"AdvancedTabs":"off"}`); err != nil {
		t.Fatalf("写入设置失败: %v", err)
	}
	report, _ = svc.SupremeModules(ctx)
	if report.Message != "No active Divi Supreme modules found. All modules are currently disabled." {
		t.Errorf("全部关闭时消息错误: %q", report.Message)
	}
}

func TestSupremeModuleHelpers(t *testing.T) {
	if got := settingsKey("dsm_contact_form_7"); got != "ContactForm7" {
		t.Errorf("settingsKey 错误: %q", got)
	}
	if got := splitCamel("BeforeAfterImage", "_"); got != "Before_After_Image" {
		t.Errorf("splitCamel 错误: %q", got)
	}
	if n := len(supremeModuleList(nil)); n != 55 {
		t.Errorf("内置模块列表应有 55 项, got %d", n)
	}
	if decodeModuleSettings(`["AdvancedTabs"]`) != nil || decodeModuleSettings(`not json`) != nil {
		t.Error("非对象设置应视为空")
	}
}

func TestFindDisabledElements(t *testing.T) {
	content := `[et_pb_section disabled_on="on|on|on"][et_pb_row disabled="on"][et_pb_column type="4_4"]` +
		`[et_pb_text disabled="on"]hi[/et_pb_text][et_pb_fullwidth_header disabled_on="on|on|on"][/et_pb_fullwidth_header]` +
		`[et_pb_row_inner disabled="on"][/et_pb_row_inner][et_pb_image src="x"][/et_pb_image]` +
		`[/et_pb_column][/et_pb_row][/et_pb_section]`

	got := findDisabledElements(content)
	want := []DisabledElement{
		{Type: "section", Element: "Section", Status: "disabled"},
		{Type: "row", Element: "Row", Status: "disabled"},
		{Type: "row", Element: "Row", Status: "disabled"},
		{Type: "module", Element: "Text", Status: "disabled"},
		{Type: "module", Element: "Fullwidth Header", Status: "disabled"},
	}
	if len(got) != len(want) {
		t.Fatalf("禁用元素数量错误: got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("第 %d 个元素错误: got %+v, want %+v", i, got[i], want[i])
		}
	}
	if findDisabledElements("plain content") != nil {
		t.Error("无 Divi 短代码的内容应跳过")
	}
}

func TestScanDisabledElements(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	out, err := NewDiviService(env.site, site.Static{}).ScanDisabledElements(ctx, DiviScanQuick, 0)
	if err != nil {
		t.Fatalf("扫描失败: %v", err)
	}
	if r, ok := out.(*BuilderInactiveReport); !ok || r.Message != "Divi Builder is not active on this site." {
		t.Errorf("未启用 Divi 时结果错误: %+v", out)
	}

	svc := NewDiviService(env.site, site.Static{site.CapDiviBuilder: true})
	page := env.publish(t, models.PostTypePage, "Landing", "landing", time.Now())
	env.db.Model(page).Update("content", `[et_pb_section disabled="on"][/et_pb_section]`)
	post := env.publish(t, models.PostTypePost, "News", "news", time.Now())
	env.db.Model(post).Update("content", `[et_pb_section][et_pb_text disabled="on"][/et_pb_text][et_pb_blurb disabled="on"][/et_pb_blurb][/et_pb_section]`)
	env.publish(t, models.PostTypePage, "Plain", "plain", time.Now())
	product := &models.Post{Type: models.PostTypeProduct, Status: models.PostStatusPublish, Title: "Mug", Slug: "mug",
		Content: `[et_pb_section disabled="on"]`, PublishedAt: time.Now(), ModifiedAt: time.Now()}
	env.mustCreate(t, product)

	out, err = svc.ScanDisabledElements(ctx, DiviScanFull, 0)
	if err != nil {
		t.Fatalf("扫描失败: %v", err)
	}
	r := out.(*DisabledScanReport)
	if r.PagesScanned != 3 || r.PagesWithDisabledElements != 2 || r.TotalDisabledElements != 3 {
		t.Errorf("统计错误: %+v", r)
	}
	if r.Message != "Found 3 disabled elements across 2 pages." {
		t.Errorf("消息错误: %q", r.Message)
	}
	if v, _ := r.Summary.Get("module"); v != 2 {
		t.Errorf("模块计数错误: %v", v)
	}

	out, _ = svc.ScanDisabledElements(ctx, DiviScanSingle, product.ID)
	if r := out.(*DisabledScanReport); r.PagesScanned != 0 || r.Message != "No disabled sections, rows, or modules found." {
		t.Errorf("single 扫描非页面条目应为空: %+v", r)
	}
	out, _ = svc.ScanDisabledElements(ctx, DiviScanSingle, page.ID)
	if r := out.(*DisabledScanReport); r.PagesScanned != 1 || r.TotalDisabledElements != 1 || r.Details[0].PageURL != "https://example.com/landing/" {
		t.Errorf("single 扫描结果错误: %+v", r)
	}
}
