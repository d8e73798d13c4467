package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/site"
)

/* pointSiteAt 让测试站点地址指向 httptest 服务器 */
func (e *testEnv) pointSiteAt(url string) {
	e.cfg.Site.URL = url
	e.cfg.Site.HomeURL = ""
	e.site = site.New(e.cfg, e.dao)
}

func (e *testEnv) scanner(caps site.Capabilities) *JSScanner {
	return NewJSScanner(e.site, caps, e.cfg.Scan, nil)
}

func TestParseScriptSources(t *testing.T) {
	doc := `<html><head>
<script src="/a.js"></script>
<script type="text/javascript" src='https://cdn.example.org/b.js?ver=1'></script>
<script>var inline = 1;</script>
<script src="data:text/javascript,alert(1)"></script>
<SCRIPT SRC="/a.js"></SCRIPT>
<script src=""></script>
</head></html>`

	got := parseScriptSources(doc)
	want := []string{"/a.js", "https://cdn.example.org/b.js?ver=1"}
	if len(got) != len(want) {
		t.Fatalf("脚本数量错误: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("第 %d 个脚本错误: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeAndMatch(t *testing.T) {
	host := "example.com"
	cases := map[string]string{
		"https://example.com/wp-includes/js/jquery.js?ver=3.7": "wp-includes/js/jquery.js",
		"/wp-content/plugins/foo/app.js":                        "wp-content/plugins/foo/app.js",
		"http://cdn.example.org/lib.js":                         "cdn.example.org/lib.js",
		"//example.com/x.js":                                    "x.js",
	}
	for in, want := range cases {
		if got := normalizeScriptURL(host, in); got != want {
			t.Errorf("normalizeScriptURL(%q) = %q, want %q", in, got, want)
		}
	}

	if !urlsMatch("wp-includes/js/jquery.js", "wp-includes/js/jquery.js") {
		t.Error("相同地址应匹配")
	}
	if !urlsMatch("wp-content/plugins/foo/app.min.js", "foo/app.min.js") {
		t.Error("子串应匹配")
	}
	if urlsMatch("", "wp-includes/js/jquery.js") {
		t.Error("空地址不应匹配任意地址")
	}
}

func TestScriptClassification(t *testing.T) {
	types := map[string]string{
		"/wp-includes/js/jquery/jquery.min.js":           "jquery",
		"/wp-includes/js/wp-embed.min.js":                "wordpress-core",
		"/wp-content/plugins/foo/app.js":                 "plugin",
		"/wp-content/themes/Divi/js/scripts.js":          "theme",
		"https://ajax.googleapis.com/ajax/libs/x.js":     "external-google",
		"https://cdnjs.cloudflare.com/ajax/libs/y.js":    "external-cdn",
		"//unpkg.com/z.js":                               "external-other",
		"/custom/local.js":                               "local",
	}
	for u, want := range types {
		if got := scriptType(u); got != want {
			t.Errorf("scriptType(%q) = %q, want %q", u, got, want)
		}
	}

	locations := map[string]string{
		"/wp-admin/js/common.js":                "admin",
		"/wp-includes/js/wp-embed.min.js":       "core",
		"/wp-content/plugins/foo/app.js":        "plugin:foo",
		"/wp-content/themes/Divi/js/scripts.js": "theme:Divi",
		"https://cdn.example.org/lib.js":        "other",
	}
	for u, want := range locations {
		if got := scriptLocation(u); got != want {
			t.Errorf("scriptLocation(%q) = %q, want %q", u, got, want)
		}
	}
}

func TestQuickScan(t *testing.T) {
	env := setupTestEnv(t)

	root := t.TempDir()
	file := filepath.Join(root, "wp-content", "plugins", "foo", "app.js")
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.WriteFile(file, make([]byte, 2048), 0644); err != nil {
		t.Fatalf("写入脚本文件失败: %v", err)
	}
	env.cfg.Site.RootPath = root
	env.site = site.New(env.cfg, env.dao)

	env.mustCreate(t, &models.Script{Handle: "foo-app", Src: "/wp-content/plugins/foo/app.js", Version: "1.0", Enqueued: true})
	env.mustCreate(t, &models.Script{Handle: "bar", Src: "https://example.com/wp-content/plugins/bar/bar.js"})
	env.mustCreate(t, &models.Script{Handle: "inline-only"})

	out, err := env.scanner(site.Static{}).Scan(context.Background(), JSScanRequest{ScanType: ScanQuick})
	if err != nil {
		t.Fatalf("quick 扫描失败: %v", err)
	}
	res := out.(*QuickScanResult)

	if res.Summary.TotalRegistered != 3 || res.Summary.Enqueued != 1 || res.Summary.NotEnqueued != 1 {
		t.Errorf("统计错误: %+v", res.Summary)
	}
	if len(res.Scripts.DefinitelyUsed) != 1 || res.Scripts.DefinitelyUsed[0].Handle != "foo-app" {
		t.Fatalf("definitely_used 错误: %+v", res.Scripts.DefinitelyUsed)
	}
	used := res.Scripts.DefinitelyUsed[0]
	if used.SizeBytes != 2048 || used.Size != "2.0 KB" {
		t.Errorf("脚本大小错误: %d %q", used.SizeBytes, used.Size)
	}
	if used.Location != "plugin:foo" || used.Type != "plugin" {
		t.Errorf("脚本分类错误: %s %s", used.Type, used.Location)
	}
	if res.Summary.TotalSizeFormatted != "2.0 KB" {
		t.Errorf("total_size_formatted 错误: %q", res.Summary.TotalSizeFormatted)
	}
	if res.ScanMetadata.ExecutionTime == "" || res.ScanMetadata.Method != "registry_only" {
		t.Errorf("元信息错误: %+v", res.ScanMetadata)
	}
}

func TestCurrentScan(t *testing.T) {
	env := setupTestEnv(t)

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing/" {
			http.NotFound(w, r)
			return
		}
		if ua := r.Header.Get("User-Agent"); ua != "SAS Hosting Scanner/1.0" {
			t.Errorf("User-Agent 错误: %q", ua)
		}
		fmt.Fprintf(w, `<html><head>
<script src="%s/wp-includes/js/jquery/jquery.js?ver=3.7"></script>
<script src="https://cdn.example.org/lib.js"></script>
</head><body></body></html>`, srv.URL)
	}))
	defer srv.Close()
	env.pointSiteAt(srv.URL)

	env.mustCreate(t, &models.Script{Handle: "jquery-core", Src: srv.URL + "/wp-includes/js/jquery/jquery.js", Enqueued: true})
	env.mustCreate(t, &models.Script{Handle: "foo", Src: "/wp-content/plugins/foo/unused.js"})

	sc := env.scanner(site.Static{})
	out, err := sc.Scan(context.Background(), JSScanRequest{ScanType: ScanCurrent, CurrentURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("current 扫描失败: %v", err)
	}
	res := out.(*CurrentScanResult)

	if res.Summary.ScriptsInPage != 2 || res.Summary.ScriptsInRegistry != 2 {
		t.Errorf("统计错误: %+v", res.Summary)
	}
	if len(res.Scripts.UsedOnPage) != 1 || res.Scripts.UsedOnPage[0].Handle != "jquery-core" || !res.Scripts.UsedOnPage[0].FoundOnPage {
		t.Errorf("used_on_page 错误: %+v", res.Scripts.UsedOnPage)
	}
	if len(res.Scripts.UnusedFromRegistry) != 1 || res.Scripts.UnusedFromRegistry[0].Handle != "foo" {
		t.Errorf("unused_from_registry 错误: %+v", res.Scripts.UnusedFromRegistry)
	}
	if len(res.Scripts.External) != 1 || res.Scripts.External[0].URL != "https://cdn.example.org/lib.js" {
		t.Errorf("external 错误: %+v", res.Scripts.External)
	}
	for _, u := range res.Scripts.UnusedFromRegistry {
		for _, p := range res.Scripts.UsedOnPage {
			if u.Handle == p.Handle {
				t.Errorf("脚本 %s 同时出现在已用与未用列表", u.Handle)
			}
		}
	}

	_, err = sc.Scan(context.Background(), JSScanRequest{ScanType: ScanCurrent})
	if ae, ok := AsAPIError(err); !ok || ae.Code != "missing_url" || ae.Status != http.StatusBadRequest {
		t.Errorf("缺少 current_url 应返回 missing_url 400, got %v", err)
	}

	_, err = sc.Scan(context.Background(), JSScanRequest{ScanType: ScanCurrent, CurrentURL: srv.URL + "/missing/"})
	if ae, ok := AsAPIError(err); !ok || ae.Code != "http_error" || ae.Message != "HTTP 404 error when fetching page" {
		t.Errorf("404 页面应返回 http_error, got %v", err)
	}
}

/* keyPagesSite 首页只加载 jquery，文章页加载 jquery 与 foo */
func keyPagesSite(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprintf(w, `<script src="%s/wp-includes/js/jquery/jquery.js"></script>`, srv.URL)
		case "/hello/":
			fmt.Fprintf(w, `<script src="%s/wp-includes/js/jquery/jquery.js"></script>
<script src="/wp-content/plugins/foo/foo.js?ver=2"></script>`, srv.URL)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestKeyPagesScan(t *testing.T) {
	env := setupTestEnv(t)
	srv := keyPagesSite(t)
	env.pointSiteAt(srv.URL)

	env.publish(t, models.PostTypePost, "Hello", "hello", time.Now())
	env.mustCreate(t, &models.Script{Handle: "jquery-core", Src: "/wp-includes/js/jquery/jquery.js"})
	env.mustCreate(t, &models.Script{Handle: "foo", Src: "/wp-content/plugins/foo/foo.js"})
	env.mustCreate(t, &models.Script{Handle: "never", Src: "/wp-content/plugins/never/never.js"})

	out, err := env.scanner(site.Static{}).Scan(context.Background(), JSScanRequest{ScanType: ScanKeyPages})
	if err != nil {
		t.Fatalf("key_pages 扫描失败: %v", err)
	}
	res := out.(*KeyPagesScanResult)

	if res.ScanMetadata.PagesAnalyzed != 2 {
		t.Fatalf("应分析 2 个页面, got %d", res.ScanMetadata.PagesAnalyzed)
	}
	if keys := res.PagesScanned.Keys(); len(keys) != 2 || keys[0] != "homepage" || keys[1] != "post_1" {
		t.Errorf("pages_scanned 键错误: %v", keys)
	}

	if len(res.AggregatedData.NeverUsed) != 1 {
		t.Fatalf("never_used 应只有 1 项: %+v", res.AggregatedData.NeverUsed)
	}
	never := res.AggregatedData.NeverUsed[0]
	if never.Handle != "never" || never.UsagePercentage != 0 || never.PagesFoundOn != "0/2" {
		t.Errorf("never_used 项错误: %+v", never)
	}
	if len(res.AggregatedData.AlwaysUsed) != 1 || res.AggregatedData.AlwaysUsed[0].Handle != "jquery-core" {
		t.Errorf("always_used 错误: %+v", res.AggregatedData.AlwaysUsed)
	}
	sometimes := res.AggregatedData.UsageFrequency.SometimesUsed
	if len(sometimes) != 1 || sometimes[0].Handle != "foo" || sometimes[0].UsagePercentage != 50 {
		t.Errorf("sometimes_used 错误: %+v", sometimes)
	}
	if res.Summary.DefinitelyUnused != 1 || res.Summary.TotalUniqueScripts != 3 {
		t.Errorf("统计错误: %+v", res.Summary)
	}
	if len(res.Recommendations) != 1 || res.Recommendations[0].Scripts[0] != "never" {
		t.Errorf("建议错误: %+v", res.Recommendations)
	}
}

func TestFullScan(t *testing.T) {
	env := setupTestEnv(t)
	srv := keyPagesSite(t)
	env.pointSiteAt(srv.URL)

	env.publish(t, models.PostTypePost, "Hello", "hello", time.Now())
	env.publish(t, models.PostTypePage, "Gone", "gone", time.Now().Add(-time.Hour))
	env.mustCreate(t, &models.Script{Handle: "jquery-core", Src: "/wp-includes/js/jquery/jquery.js"})
	env.mustCreate(t, &models.Script{Handle: "never", Src: "/wp-content/plugins/never/never.js"})

	res, err := env.scanner(site.Static{}).ScanFull(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("全站扫描失败: %v", err)
	}

	/* 首页、两篇内容、归档页（首页加斜杠） */
	if res.Summary.TotalURLsFound != 4 {
		t.Errorf("地址数量错误: %d", res.Summary.TotalURLsFound)
	}
	if len(res.Errors) != 1 || res.Errors[0].Error != "HTTP 404 error" {
		t.Errorf("错误记录不符: %+v", res.Errors)
	}
	if res.Summary.UniqueScripts != 2 || res.Summary.DefinitelyUnused != 1 {
		t.Errorf("统计错误: %+v", res.Summary)
	}
	if res.Summary.OptimizationScore != 50 {
		t.Errorf("优化得分应为 50, got %d", res.Summary.OptimizationScore)
	}
	if len(res.UnusedScripts) != 1 || res.UnusedScripts[0].Handle != "never" || res.UnusedScripts[0].Confidence != "high" {
		t.Errorf("unused_scripts 错误: %+v", res.UnusedScripts)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if _, ok := decoded["script_coverage"].(map[string]any); !ok {
		t.Errorf("script_coverage 应为对象: %s", raw)
	}
}

func TestOptimizationScore(t *testing.T) {
	cases := []struct{ unique, unused, want int }{
		{0, 3, 0},
		{10, 0, 100},
		{10, 4, 60},
		{3, 1, 67},
	}
	for _, c := range cases {
		if got := optimizationScore(c.unique, c.unused); got != c.want {
			t.Errorf("optimizationScore(%d, %d) = %d, want %d", c.unique, c.unused, got, c.want)
		}
	}
}
