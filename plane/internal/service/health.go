package service

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/mod/semver"
)

/* DefaultThemes 视为默认主题的 slug */
var DefaultThemes = []string{
	"twentytwentyfour", "twentytwentythree", "twentytwentytwo",
	"twentytwentyone", "twentytwenty", "twentynineteen",
}

/* RecommendedPHPModules 推荐安装的 PHP 扩展 */
var RecommendedPHPModules = []string{
	"curl", "dom", "exif", "fileinfo", "hash", "json", "mbstring",
	"mysqli", "openssl", "pcre", "imagick", "xml", "zip",
}

/* 检查结果状态 */
const (
	HealthCritical    = "critical"
	HealthRecommended = "recommended"
	HealthGood        = "good"
)

/* HealthBadge 检查项分类标签 */
type HealthBadge struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

/* HealthItem 单项检查结果；good 项不带 badge 与 description */
type HealthItem struct {
	Label       string       `json:"label"`
	Status      string       `json:"status"`
	Badge       *HealthBadge `json:"badge,omitempty"`
	Description string       `json:"description,omitempty"`
	Test        string       `json:"test"`
}

/* HealthReport 站点健康汇总 */
type HealthReport struct {
	Status            string       `json:"status"`
	CriticalIssues    int          `json:"critical_issues"`
	RecommendedIssues int          `json:"recommended_issues"`
	GoodItems         int          `json:"good_items"`
	TotalTests        int          `json:"total_tests"`
	HealthScore       int          `json:"health_score"`
	Critical          []HealthItem `json:"critical"`
	Recommended       []HealthItem `json:"recommended"`
	Good              []HealthItem `json:"good"`
}

/* HealthInput 健康检查所需的站点状态 */
type HealthInput struct {
	WPVersion       string
	CoreUpdate      string
	HasDefaultTheme bool
	PHPExtensions   []string
	PluginUpdates   int
	ThemeUpdates    int
	PHPVersion      string
}

var (
	badgePerformance = &HealthBadge{Label: "Performance", Color: "blue"}
	badgeSecurity    = &HealthBadge{Label: "Security", Color: "blue"}
	badgeSecurityRed = &HealthBadge{Label: "Security", Color: "red"}
)

/*
canonicalVersion 将平台版本号转为 semver 形式
示例：8.1.2-1ubuntu → v8.1.2，6.5 → v6.5
*/
func canonicalVersion(v string) string {
	end := 0
	for end < len(v) && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	core := strings.Trim(v[:end], ".")
	if core == "" {
		return ""
	}
	parts := strings.Split(core, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return "v" + strings.Join(parts, ".")
}

/* versionLess a < b；无法解析的版本视为不小于 */
func versionLess(a, b string) bool {
	ca, cb := canonicalVersion(a), canonicalVersion(b)
	if !semver.IsValid(ca) || !semver.IsValid(cb) {
		return false
	}
	return semver.Compare(ca, cb) < 0
}

/*
EvaluateHealth 计算站点健康
功能：health_score = round(good / total × 100)；存在 critical 则整体为 critical，
否则存在 recommended 则为 recommended，否则为 good
*/
func EvaluateHealth(in *HealthInput) *HealthReport {
	r := &HealthReport{
		Critical:    []HealthItem{},
		Recommended: []HealthItem{},
		Good:        []HealthItem{},
	}
	add := func(item HealthItem) {
		switch item.Status {
		case HealthCritical:
			r.Critical = append(r.Critical, item)
		case HealthRecommended:
			r.Recommended = append(r.Recommended, item)
		default:
			r.Good = append(r.Good, item)
		}
	}

	/* 核心版本 */
	if in.CoreUpdate != "" && (in.WPVersion == "" || versionLess(in.WPVersion, in.CoreUpdate)) {
		add(HealthItem{
			Label:       "WordPress update available (" + in.CoreUpdate + ")",
			Status:      HealthRecommended,
			Badge:       badgePerformance,
			Description: "An update to WordPress is available.",
			Test:        "wordpress_version",
		})
	} else {
		add(HealthItem{Label: "Your WordPress is up to date", Status: HealthGood, Test: "wordpress_version"})
	}

	/* 默认主题 */
	if !in.HasDefaultTheme {
		add(HealthItem{
			Label:       "Have a default theme available",
			Status:      HealthRecommended,
			Badge:       badgeSecurity,
			Description: "Your site does not have any default theme. Default themes are used by WordPress automatically in case of errors with your normal theme.",
			Test:        "default_theme",
		})
	} else {
		add(HealthItem{Label: "A default theme is available", Status: HealthGood, Test: "default_theme"})
	}

	/* PHP 扩展 */
	loaded := make(map[string]bool, len(in.PHPExtensions))
	for _, e := range in.PHPExtensions {
		loaded[strings.ToLower(e)] = true
	}
	var missing []string
	for _, m := range RecommendedPHPModules {
		if !loaded[m] {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		add(HealthItem{
			Label:       "One or more recommended modules are missing",
			Status:      HealthRecommended,
			Badge:       badgePerformance,
			Description: "The following PHP modules are recommended but not installed: " + strings.Join(missing, ", "),
			Test:        "php_modules",
		})
	} else {
		add(HealthItem{Label: "All recommended PHP modules are installed", Status: HealthGood, Test: "php_modules"})
	}

	/* 插件与主题更新 */
	if in.PluginUpdates > 0 {
		add(HealthItem{
			Label:       fmt.Sprintf("%d plugin update(s) available", in.PluginUpdates),
			Status:      HealthRecommended,
			Badge:       badgeSecurity,
			Description: "Keeping plugins up to date is important for security and performance.",
			Test:        "plugin_updates",
		})
	} else {
		add(HealthItem{Label: "All plugins are up to date", Status: HealthGood, Test: "plugin_updates"})
	}
	if in.ThemeUpdates > 0 {
		add(HealthItem{
			Label:       fmt.Sprintf("%d theme update(s) available", in.ThemeUpdates),
			Status:      HealthRecommended,
			Badge:       badgeSecurity,
			Description: "Keeping themes up to date is important for security and performance.",
			Test:        "theme_updates",
		})
	} else {
		add(HealthItem{Label: "All themes are up to date", Status: HealthGood, Test: "theme_updates"})
	}

	/* PHP 版本 */
	switch {
	case in.PHPVersion == "":
		add(HealthItem{
			Label:       "PHP version could not be determined",
			Status:      HealthRecommended,
			Badge:       badgePerformance,
			Description: "The platform did not report its PHP version.",
			Test:        "php_version",
		})
	case versionLess(in.PHPVersion, "7.4"):
		add(HealthItem{
			Label:       "PHP version is outdated",
			Status:      HealthCritical,
			Badge:       badgeSecurityRed,
			Description: "Your PHP version (" + in.PHPVersion + ") is outdated and no longer receives security updates.",
			Test:        "php_version",
		})
	case versionLess(in.PHPVersion, "8.0"):
		add(HealthItem{
			Label:       "PHP version should be updated",
			Status:      HealthRecommended,
			Badge:       badgePerformance,
			Description: "Your PHP version (" + in.PHPVersion + ") works but upgrading to PHP 8.0 or newer is recommended.",
			Test:        "php_version",
		})
	default:
		add(HealthItem{Label: "PHP version is up to date", Status: HealthGood, Test: "php_version"})
	}

	r.CriticalIssues = len(r.Critical)
	r.RecommendedIssues = len(r.Recommended)
	r.GoodItems = len(r.Good)
	r.TotalTests = r.CriticalIssues + r.RecommendedIssues + r.GoodItems
	if r.TotalTests > 0 {
		r.HealthScore = int(math.Round(float64(r.GoodItems) / float64(r.TotalTests) * 100))
	}

	switch {
	case r.CriticalIssues > 0:
		r.Status = HealthCritical
	case r.RecommendedIssues > 0:
		r.Status = HealthRecommended
	default:
		r.Status = HealthGood
	}
	return r
}
