package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/metrics"
	"sashosting/plane/internal/site"

	"go.uber.org/zap"
)

/* OptionDiviSupremeModules Divi Supreme 模块开关（CamelCase 键 → "on"/"off"） */
const OptionDiviSupremeModules = "dsm_modules"

/* 禁用元素扫描类型 */
const (
	DiviScanQuick  = "quick"
	DiviScanFull   = "full"
	DiviScanSingle = "single"

	diviQuickLimit = 10
)

/* SupremeModule 已启用的 Divi Supreme 模块 */
type SupremeModule struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

/* SupremeModulesReport Divi Supreme 模块报告 */
type SupremeModulesReport struct {
	Status        string          `json:"status,omitempty"`
	Message       string          `json:"message"`
	ActiveModules []SupremeModule `json:"active_modules"`
	Note          string          `json:"note,omitempty"`
}

/* DisabledElement 被禁用的 Divi 元素 */
type DisabledElement struct {
	Type    string `json:"type"`
	Element string `json:"element"`
	Status  string `json:"status"`
}

/* DisabledPage 含禁用元素的页面 */
type DisabledPage struct {
	PageID           uint              `json:"page_id"`
	PageTitle        string            `json:"page_title"`
	PageURL          string            `json:"page_url"`
	DisabledElements []DisabledElement `json:"disabled_elements"`
	TotalDisabled    int               `json:"total_disabled"`
}

/* DisabledScanReport 禁用元素扫描结果 */
type DisabledScanReport struct {
	ScanType                  string         `json:"scan_type"`
	PagesScanned              int            `json:"pages_scanned"`
	PagesWithDisabledElements int            `json:"pages_with_disabled_elements"`
	TotalDisabledElements     int            `json:"total_disabled_elements"`
	Summary                   *OrderedMap    `json:"summary"`
	Details                   []DisabledPage `json:"details"`
	Message                   string         `json:"message"`
}

/* BuilderInactiveReport 站点未启用 Divi Builder */
type BuilderInactiveReport struct {
	Message               string `json:"message"`
	PagesScanned          int    `json:"pages_scanned"`
	DisabledElementsFound []any  `json:"disabled_elements_found"`
}

var diviTagRe = regexp.MustCompile(`\[et_pb_([a-z_]+)[^\]]*\]`)

/*
DiviService Divi 相关诊断
功能：Divi Supreme 模块启用情况，以及页面短代码中被禁用的区块、行、列与模块
*/
type DiviService struct {
	site   *site.Site
	caps   site.Capabilities
	logger *zap.Logger
}

/* NewDiviService 创建 Divi 诊断服务 */
func NewDiviService(s *site.Site, caps site.Capabilities) *DiviService {
	return &DiviService{site: s, caps: caps, logger: zap.L().Named("divi")}
}

/* ==================== Divi Supreme ==================== */

/*
SupremeModules 列出已启用的 Divi Supreme 模块
功能：插件未启用时返回提示；设置从未保存时状态为 not_configured
*/
func (s *DiviService) SupremeModules(ctx context.Context) (*SupremeModulesReport, error) {
	report, err := s.supremeModules(ctx)
	if err != nil {
		s.logger.Error("检查 Divi Supreme 模块失败", zap.Error(err))
		return nil, NewAPIError(http.StatusInternalServerError, "divi_supreme_error", "An error occurred while checking Divi Supreme modules.")
	}
	return report, nil
}

func (s *DiviService) supremeModules(ctx context.Context) (*SupremeModulesReport, error) {
	ok, err := s.caps.Has(ctx, site.CapDiviSupreme)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &SupremeModulesReport{
			Message:       "Divi Supreme plugin is not detected on this site.",
			ActiveModules: []SupremeModule{},
		}, nil
	}

	raw, exists, err := s.site.DAO().WithContext(ctx).GetOption(OptionDiviSupremeModules)
	if err != nil {
		return nil, err
	}
	var settings []settingEntry
	if exists {
		settings = decodeModuleSettings(raw)
	}
	if len(settings) == 0 {
		return &SupremeModulesReport{
			Status:        "not_configured",
			Message:       "Divi Supreme settings have not been saved yet. Module status may not be accurate.",
			ActiveModules: []SupremeModule{},
			Note:          "Please save the Divi Supreme module settings at least once to get accurate results.",
		}, nil
	}

	enabled := make(map[string]bool, len(settings))
	for _, e := range settings {
		enabled[e.key] = e.on
	}

	active := []SupremeModule{}
	for _, m := range supremeModuleList(settings) {
		if enabled[settingsKey(m.Key)] {
			active = append(active, m)
		}
	}

	report := &SupremeModulesReport{Status: "configured", ActiveModules: active}
	switch n := len(active); n {
	case 0:
		report.Message = "No active Divi Supreme modules found. All modules are currently disabled."
	case 1:
		report.Message = "1 active Divi Supreme module found."
	default:
		report.Message = fmt.Sprintf("%d active Divi Supreme modules found.", n)
	}
	return report, nil
}

/* settingEntry 模块设置项，保持存储顺序 */
type settingEntry struct {
	key string
	on  bool
}

/* decodeModuleSettings 按键顺序解析模块设置，非对象或解析失败视为空 */
func decodeModuleSettings(raw string) []settingEntry {
	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}
	var out []settingEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := tok.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil
		}
		out = append(out, settingEntry{key: key, on: bytes.Equal(bytes.TrimSpace(v), []byte(`"on"`))})
	}
	return out
}

/*
supremeModuleList 候选模块
功能：优先使用设置中出现的模块（AdvancedTabs → dsm_advanced_tabs / Divi Advanced Tabs），否则为内置列表
*/
func supremeModuleList(settings []settingEntry) []SupremeModule {
	if len(settings) == 0 {
		return append([]SupremeModule(nil), builtinSupremeModules...)
	}
	out := make([]SupremeModule, 0, len(settings))
	seen := make(map[string]bool)
	for _, e := range settings {
		if e.key == "" {
			continue
		}
		key := sanitizeKey("dsm_" + strings.ToLower(splitCamel(e.key, "_")))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, SupremeModule{Key: key, Name: "Divi " + splitCamel(e.key, " ")})
	}
	return out
}

/* splitCamel 在非首字母的大写字母前插入分隔符 */
func splitCamel(s, sep string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteString(sep)
		}
		b.WriteRune(r)
	}
	return b.String()
}

/* settingsKey dsm_advanced_tabs → AdvancedTabs */
func settingsKey(moduleKey string) string {
	parts := strings.Split(strings.TrimPrefix(moduleKey, "dsm_"), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}

/* sanitizeKey 仅保留小写字母、数字、下划线与连字符 */
func sanitizeKey(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return -1
	}, s)
}

/* ==================== 禁用元素扫描 ==================== */

/*
ScanDisabledElements 扫描被禁用的 Divi 元素
功能：quick 为最近修改的 10 个已发布页面/文章，full 为全部已发布，single 为指定条目（须为页面或文章）
*/
func (s *DiviService) ScanDisabledElements(ctx context.Context, scanType string, pageID uint) (any, error) {
	start := time.Now()
	out, err := s.scanDisabled(ctx, scanType, pageID)
	if err != nil {
		s.logger.Error("Divi 禁用元素扫描失败", zap.String("scan_type", scanType), zap.Error(err))
		return nil, NewAPIError(http.StatusInternalServerError, "scan_error", "An error occurred while scanning for disabled elements.")
	}
	metrics.ScanDuration.WithLabelValues("divi_" + scanType).Observe(time.Since(start).Seconds())
	return out, nil
}

func (s *DiviService) scanDisabled(ctx context.Context, scanType string, pageID uint) (any, error) {
	ok, err := s.caps.Has(ctx, site.CapDiviBuilder)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &BuilderInactiveReport{
			Message:               "Divi Builder is not active on this site.",
			DisabledElementsFound: []any{},
		}, nil
	}
	if scanType == "" {
		scanType = DiviScanQuick
	}

	pages, err := s.pagesToScan(ctx, scanType, pageID)
	if err != nil {
		return nil, err
	}

	report := &DisabledScanReport{
		ScanType:     scanType,
		PagesScanned: len(pages),
		Summary:      NewOrderedMap(),
		Details:      []DisabledPage{},
	}
	counts := make(map[string]int)
	var order []string

	for i := range pages {
		p := &pages[i]
		elements := findDisabledElements(p.Content)
		if len(elements) == 0 {
			continue
		}
		report.Details = append(report.Details, DisabledPage{
			PageID:           p.ID,
			PageTitle:        p.Title,
			PageURL:          s.site.Permalink(p),
			DisabledElements: elements,
			TotalDisabled:    len(elements),
		})
		report.TotalDisabledElements += len(elements)
		for _, el := range elements {
			if counts[el.Type] == 0 {
				order = append(order, el.Type)
			}
			counts[el.Type]++
		}
	}
	for _, t := range order {
		report.Summary.Set(t, counts[t])
	}
	report.PagesWithDisabledElements = len(report.Details)

	if report.TotalDisabledElements == 0 {
		report.Message = "No disabled sections, rows, or modules found."
	} else {
		report.Message = fmt.Sprintf("Found %d disabled element%s across %d page%s.",
			report.TotalDisabledElements, plural(report.TotalDisabledElements),
			report.PagesWithDisabledElements, plural(report.PagesWithDisabledElements))
	}
	return report, nil
}

func (s *DiviService) pagesToScan(ctx context.Context, scanType string, pageID uint) ([]models.Post, error) {
	d := s.site.DAO().WithContext(ctx)
	types := []string{models.PostTypePage, models.PostTypePost}

	switch scanType {
	case DiviScanSingle:
		if pageID == 0 {
			return nil, nil
		}
		p, err := d.GetPost(pageID)
		if err != nil {
			return nil, err
		}
		if p == nil || (p.Type != models.PostTypePage && p.Type != models.PostTypePost) {
			return nil, nil
		}
		return []models.Post{*p}, nil
	case DiviScanFull:
		return d.RecentPublished(types, "modified_at DESC", 0)
	default:
		return d.RecentPublished(types, "modified_at DESC", diviQuickLimit)
	}
}

/*
findDisabledElements 找出内容中被禁用的元素
功能：按区块、行、列、模块的顺序输出；row_inner、column_inner 分别归入行与列
*/
func findDisabledElements(content string) []DisabledElement {
	if !strings.Contains(content, "[et_pb_") {
		return nil
	}
	var sections, rows, columns, modules []DisabledElement
	for _, m := range diviTagRe.FindAllStringSubmatch(content, -1) {
		tag, name := m[0], m[1]
		if !strings.Contains(tag, `disabled="on"`) && !strings.Contains(tag, `disabled_on="on|on|on"`) {
			continue
		}
		switch {
		case strings.HasPrefix(name, "section"):
			sections = append(sections, DisabledElement{Type: "section", Element: "Section", Status: "disabled"})
		case strings.HasPrefix(name, "row"):
			rows = append(rows, DisabledElement{Type: "row", Element: "Row", Status: "disabled"})
		case strings.HasPrefix(name, "column"):
			columns = append(columns, DisabledElement{Type: "column", Element: "Column", Status: "disabled"})
		default:
			modules = append(modules, DisabledElement{Type: "module", Element: titleWords(name), Status: "disabled"})
		}
	}
	out := append(sections, rows...)
	out = append(out, columns...)
	return append(out, modules...)
}

/* titleWords fullwidth_header → Fullwidth Header */
func titleWords(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

/* builtinSupremeModules 设置为空时使用的模块列表 */
var builtinSupremeModules = []SupremeModule{
	{Key: "dsm_advanced_tabs", Name: "Divi Advanced Tabs"},
	{Key: "dsm_animated_gradient_text", Name: "Divi Animated Gradient Text"},
	{Key: "dsm_badges", Name: "Divi Text Badges"},
	{Key: "dsm_before_after_image", Name: "Divi Before After Image"},
	{Key: "dsm_blob_image", Name: "Divi Blob Image"},
	{Key: "dsm_block_reveal_image", Name: "Divi Block Reveal Image"},
	{Key: "dsm_block_reveal_text", Name: "Divi Block Reveal Text"},
	{Key: "dsm_breadcrumbs", Name: "Divi Breadcrumbs"},
	{Key: "dsm_business_hours", Name: "Divi Business Hours"},
	{Key: "dsm_button", Name: "Divi Button"},
	{Key: "dsm_buttons", Name: "Divi Buttons"},
	{Key: "dsm_card", Name: "Divi Card"},
	{Key: "dsm_card_carousel", Name: "Divi Card Carousel"},
	{Key: "dsm_contact_form_7", Name: "Divi Contact Form 7"},
	{Key: "dsm_contact_form", Name: "Divi Contact Form"},
	{Key: "dsm_content_timeline", Name: "Divi Content Timeline"},
	{Key: "dsm_content_toggle", Name: "Divi Content Toggle"},
	{Key: "dsm_dual_heading", Name: "Divi Dual Heading"},
	{Key: "dsm_embed_google_map", Name: "Divi Embed Google Map"},
	{Key: "dsm_facebook_comments", Name: "Divi Facebook Comments"},
	{Key: "dsm_facebook_embedded_comments", Name: "Divi Facebook Embedded Comments"},
	{Key: "dsm_facebook_embedded_posts", Name: "Divi Facebook Embedded Posts"},
	{Key: "dsm_facebook_embedded_video", Name: "Divi Facebook Embedded Video"},
	{Key: "dsm_facebook_feed", Name: "Divi Facebook Feed"},
	{Key: "dsm_facebook_like_button", Name: "Divi Facebook Like Button"},
	{Key: "dsm_facebook_page", Name: "Divi Facebook Page"},
	{Key: "dsm_facebook_share", Name: "Divi Facebook Share Button"},
	{Key: "dsm_flipbox", Name: "Divi Flipbox"},
	{Key: "dsm_floating_multi_images", Name: "Divi Floating Multi Images"},
	{Key: "dsm_glitch_text", Name: "Divi Glitch Text"},
	{Key: "dsm_gradient_text", Name: "Divi Gradient Text"},
	{Key: "dsm_icon_divider", Name: "Divi Icon Divider"},
	{Key: "dsm_icon_list", Name: "Divi Icon List"},
	{Key: "dsm_image_accordion", Name: "Divi Image Accordion"},
	{Key: "dsm_image_carousel", Name: "Divi Image Carousel"},
	{Key: "dsm_image_hotspots", Name: "Divi Image Hotspots"},
	{Key: "dsm_image_hover_reveal", Name: "Divi Image Hover Reveal"},
	{Key: "dsm_inline_svg", Name: "Divi Inline SVG"},
	{Key: "dsm_lottie", Name: "Divi Lottie"},
	{Key: "dsm_mask_text", Name: "Divi Mask Text"},
	{Key: "dsm_menu", Name: "Divi Menu"},
	{Key: "dsm_perspective_text", Name: "Divi Perspective Text"},
	{Key: "dsm_popup", Name: "Divi Popup"},
	{Key: "dsm_price_list", Name: "Divi Price List"},
	{Key: "dsm_scroll_image", Name: "Divi Scroll Image"},
	{Key: "dsm_shapes", Name: "Divi Shapes"},
	{Key: "dsm_star_rating", Name: "Divi Star Rating"},
	{Key: "dsm_step_flow", Name: "Divi Step Flow"},
	{Key: "dsm_text_divider", Name: "Divi Text Divider"},
	{Key: "dsm_text_notation", Name: "Divi Text Notation"},
	{Key: "dsm_tilt_image", Name: "Divi Tilt Image"},
	{Key: "dsm_twitter_embedded_timeline", Name: "Divi Twitter Embedded Timeline"},
	{Key: "dsm_twitter_embedded_tweet", Name: "Divi Twitter Embedded Tweet"},
	{Key: "dsm_twitter_follow_button", Name: "Divi Twitter Follow Button"},
	{Key: "dsm_typing_effect", Name: "Divi Typing Effect"},
}
