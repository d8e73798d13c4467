package service

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/metrics"
	"sashosting/plane/internal/site"

	"go.uber.org/zap"
)

/* 扫描类型 */
const (
	ScanQuick    = "quick"
	ScanCurrent  = "current"
	ScanKeyPages = "key_pages"
	ScanFull     = "full"
)

/* 全站扫描页数范围 */
const (
	DefaultMaxPages = 50
	MaxPagesLimit   = 200
	maxScanErrors   = 10
	oneMegabyte     = 1 << 20
)

/* JSScanRequest 扫描参数 */
type JSScanRequest struct {
	ScanType   string
	CurrentURL string
	MaxPages   int
}

/* ScanMetadata 扫描元信息 */
type ScanMetadata struct {
	ScanType      string `json:"scan_type"`
	Timestamp     string `json:"timestamp"`
	PagesAnalyzed int    `json:"pages_analyzed"`
	URLScanned    string `json:"url_scanned,omitempty"`
	MaxPages      int    `json:"max_pages,omitempty"`
	Method        string `json:"method"`
	StoppedReason string `json:"stopped_reason,omitempty"`
	ExecutionTime string `json:"execution_time,omitempty"`
}

/* Recommendation 优化建议 */
type Recommendation struct {
	Type     string   `json:"type"`
	Priority string   `json:"priority"`
	Message  string   `json:"message"`
	Action   string   `json:"action"`
	Scripts  []string `json:"scripts,omitempty"`
}

/* JSScanResult 各类扫描结果的公共部分 */
type JSScanResult interface {
	Metadata() *ScanMetadata
}

/* ==================== quick ==================== */

type QuickSummary struct {
	TotalRegistered    int    `json:"total_registered"`
	Enqueued           int    `json:"enqueued"`
	NotEnqueued        int    `json:"not_enqueued"`
	TotalSize          int64  `json:"total_size"`
	TotalSizeFormatted string `json:"total_size_formatted"`
}

type QuickScripts struct {
	PotentiallyUnused []ScriptInfo `json:"potentially_unused"`
	DefinitelyUsed    []ScriptInfo `json:"definitely_used"`
}

type QuickScanResult struct {
	ScanMetadata    ScanMetadata     `json:"scan_metadata"`
	Summary         QuickSummary     `json:"summary"`
	Scripts         QuickScripts     `json:"scripts"`
	Recommendations []Recommendation `json:"recommendations"`
}

func (r *QuickScanResult) Metadata() *ScanMetadata { return &r.ScanMetadata }

/* ==================== current ==================== */

type CurrentSummary struct {
	ScriptsInPage     int `json:"scripts_in_page"`
	ScriptsInRegistry int `json:"scripts_in_registry"`
	UnusedInRegistry  int `json:"unused_in_registry"`
	ExternalScripts   int `json:"external_scripts"`
}

/* PageScript 在页面中找到的注册脚本 */
type PageScript struct {
	ScriptInfo
	FoundOnPage bool `json:"found_on_page"`
}

/* ExternalScript 页面中未注册的脚本 */
type ExternalScript struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type CurrentScripts struct {
	UsedOnPage         []PageScript     `json:"used_on_page"`
	UnusedFromRegistry []ScriptInfo     `json:"unused_from_registry"`
	External           []ExternalScript `json:"external"`
}

type CurrentScanResult struct {
	ScanMetadata    ScanMetadata     `json:"scan_metadata"`
	Summary         CurrentSummary   `json:"summary"`
	Scripts         CurrentScripts   `json:"scripts"`
	Recommendations []Recommendation `json:"recommendations"`
}

func (r *CurrentScanResult) Metadata() *ScanMetadata { return &r.ScanMetadata }

/* ==================== key_pages ==================== */

/* PageVisit 单个关键页面的抓取记录 */
type PageVisit struct {
	URL          string  `json:"url"`
	ScriptsFound int     `json:"scripts_found"`
	ScanTime     float64 `json:"scan_time"`
}

/* UsageScript 带使用频率的脚本描述 */
type UsageScript struct {
	ScriptInfo
	UsageCount      int     `json:"usage_count"`
	UsagePercentage float64 `json:"usage_percentage"`
	PagesFoundOn    string  `json:"pages_found_on"`
}

type UsageFrequency struct {
	RarelyUsed    []UsageScript `json:"rarely_used,omitempty"`
	SometimesUsed []UsageScript `json:"sometimes_used,omitempty"`
}

type AggregatedUsage struct {
	AllScripts     []UsageScript  `json:"all_scripts"`
	UsageFrequency UsageFrequency `json:"usage_frequency"`
	NeverUsed      []UsageScript  `json:"never_used"`
	AlwaysUsed     []UsageScript  `json:"always_used"`
}

type KeyPagesSummary struct {
	TotalUniqueScripts        int    `json:"total_unique_scripts"`
	DefinitelyUnused          int    `json:"definitely_unused"`
	PossiblyUnused            int    `json:"possibly_unused"`
	PotentialSavings          int64  `json:"potential_savings"`
	PotentialSavingsFormatted string `json:"potential_savings_formatted"`
}

type KeyPagesScanResult struct {
	ScanMetadata    ScanMetadata     `json:"scan_metadata"`
	PagesScanned    *OrderedMap      `json:"pages_scanned"`
	AggregatedData  AggregatedUsage  `json:"aggregated_data"`
	Summary         KeyPagesSummary  `json:"summary"`
	Recommendations []Recommendation `json:"recommendations"`
}

func (r *KeyPagesScanResult) Metadata() *ScanMetadata { return &r.ScanMetadata }

/* ==================== full ==================== */

type FullSummary struct {
	TotalURLsFound    int `json:"total_urls_found"`
	PagesScanned      int `json:"pages_scanned"`
	UniqueScripts     int `json:"unique_scripts"`
	DefinitelyUnused  int `json:"definitely_unused"`
	OptimizationScore int `json:"optimization_score"`
}

/* UnusedScript 全站均未出现的注册脚本 */
type UnusedScript struct {
	ScriptInfo
	Confidence string `json:"confidence"`
}

/* ScriptCoverage 全站扫描中某脚本出现的页面 */
type ScriptCoverage struct {
	URL   string   `json:"url"`
	Pages []string `json:"pages"`
	Count int      `json:"count"`
}

/* ScanError 单页抓取失败记录 */
type ScanError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type FullScanResult struct {
	ScanMetadata    ScanMetadata     `json:"scan_metadata"`
	Summary         FullSummary      `json:"summary"`
	UnusedScripts   []UnusedScript   `json:"unused_scripts"`
	ScriptCoverage  *OrderedMap      `json:"script_coverage"`
	Recommendations []Recommendation `json:"recommendations"`
	Errors          []ScanError      `json:"errors"`
}

func (r *FullScanResult) Metadata() *ScanMetadata { return &r.ScanMetadata }

/* ScheduledScan 转入后台执行的全站扫描 */
type ScheduledScan struct {
	ScanID         string `json:"scan_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	CheckStatusURL string `json:"check_status_url"`
}

/* ==================== 扫描器 ==================== */

/*
JSScanner 未使用脚本扫描器
功能：比对脚本注册表与实际页面中出现的脚本。quick 只看注册表，current 抓取单页，
key_pages 抓取首页、文章页等关键页面统计使用频率，full 抓取全站（页数超过阈值时转入后台）。
*/
type JSScanner struct {
	site      *site.Site
	caps      site.Capabilities
	cfg       config.ScanConfig
	current   *pageFetcher
	crawler   *pageFetcher
	scheduler *ScanScheduler
	logger    *zap.Logger
}

/* NewJSScanner 创建扫描器，scheduler 为 nil 时全站扫描始终同步执行 */
func NewJSScanner(s *site.Site, caps site.Capabilities, cfg config.ScanConfig, scheduler *ScanScheduler) *JSScanner {
	sc := &JSScanner{
		site:      s,
		caps:      caps,
		cfg:       cfg,
		current:   newPageFetcher(currentFetchTimeout, scannerUserAgent),
		crawler:   newPageFetcher(crawlFetchTimeout, crawlerUserAgent),
		scheduler: scheduler,
		logger:    zap.L().Named("js-scan"),
	}
	if scheduler != nil {
		scheduler.SetJob(func(ctx context.Context, maxPages int) (any, error) {
			return sc.ScanFull(ctx, maxPages, 0)
		})
	}
	return sc
}

/*
Scan 执行扫描
功能：返回值为各类型结果或 *ScheduledScan；同步结果附带 execution_time
*/
func (s *JSScanner) Scan(ctx context.Context, req JSScanRequest) (any, error) {
	start := time.Now()
	scanType := req.ScanType
	if scanType == "" {
		scanType = ScanQuick
	}

	var (
		result JSScanResult
		err    error
	)
	switch scanType {
	case ScanCurrent:
		if req.CurrentURL == "" {
			return nil, NewAPIError(http.StatusBadRequest, "missing_url", "Current URL is required for current page scan")
		}
		result, err = s.scanCurrent(ctx, req.CurrentURL)
	case ScanKeyPages:
		result, err = s.scanKeyPages(ctx)
	case ScanFull:
		maxPages := req.MaxPages
		if maxPages <= 0 {
			maxPages = DefaultMaxPages
		}
		if s.scheduler != nil && maxPages > s.cfg.DeferThreshold {
			return s.scheduler.Schedule(ctx, maxPages)
		}
		result, err = s.ScanFull(ctx, maxPages, s.syncBudget())
	default:
		scanType = ScanQuick
		result, err = s.scanQuick(ctx)
	}
	if err != nil {
		if _, ok := AsAPIError(err); ok {
			return nil, err
		}
		s.logger.Error("脚本扫描失败", zap.String("scan_type", scanType), zap.Error(err))
		return nil, NewAPIError(http.StatusInternalServerError, "scan_error", "Script scan failed")
	}

	elapsed := time.Since(start)
	metrics.ScanDuration.WithLabelValues("js_" + scanType).Observe(elapsed.Seconds())
	result.Metadata().ExecutionTime = formatSeconds(elapsed)
	return result, nil
}

func (s *JSScanner) syncBudget() time.Duration {
	if s.cfg.SyncBudget <= 0 {
		return 0
	}
	return time.Duration(s.cfg.SyncBudget) * time.Second
}

func (s *JSScanner) metadata(scanType, method string) ScanMetadata {
	return ScanMetadata{
		ScanType:  scanType,
		Timestamp: s.site.Now().Format(DateLayout),
		Method:    method,
	}
}

func (s *JSScanner) siteHost() string {
	u, err := url.Parse(s.site.URL())
	if err != nil {
		return ""
	}
	return u.Host
}

func (s *JSScanner) scripts(ctx context.Context) ([]models.Script, error) {
	return s.site.DAO().WithContext(ctx).ListScripts()
}

/* scanQuick 仅依据注册表：已排队视为使用，其余可能未使用 */
func (s *JSScanner) scanQuick(ctx context.Context) (*QuickScanResult, error) {
	res := &QuickScanResult{
		ScanMetadata: s.metadata(ScanQuick, "registry_only"),
		Scripts: QuickScripts{
			PotentiallyUnused: []ScriptInfo{},
			DefinitelyUsed:    []ScriptInfo{},
		},
		Recommendations: []Recommendation{},
	}

	scripts, err := s.scripts(ctx)
	if err != nil {
		return nil, err
	}
	res.Summary.TotalRegistered = len(scripts)

	for i := range scripts {
		sc := &scripts[i]
		if sc.Src == "" {
			continue
		}
		info := scriptInfo(s.site, sc)
		if sc.Enqueued {
			res.Summary.Enqueued++
			res.Scripts.DefinitelyUsed = append(res.Scripts.DefinitelyUsed, info)
		} else {
			res.Summary.NotEnqueued++
			res.Scripts.PotentiallyUnused = append(res.Scripts.PotentiallyUnused, info)
		}
		res.Summary.TotalSize += info.SizeBytes
	}

	if res.Summary.NotEnqueued > 5 {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Type:     "optimization",
			Priority: "medium",
			Message:  fmt.Sprintf("%d scripts are registered but not enqueued. Consider removing unused registrations.", res.Summary.NotEnqueued),
			Action:   "Run key_pages scan for more accurate analysis",
		})
	}
	if res.Summary.TotalSize > oneMegabyte {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Type:     "performance",
			Priority: "high",
			Message:  fmt.Sprintf("Total JavaScript size is %s. Consider optimization.", site.FormatSize(res.Summary.TotalSize)),
			Action:   "Review large scripts and implement code splitting",
		})
	}
	res.Summary.TotalSizeFormatted = site.FormatSize(res.Summary.TotalSize)
	return res, nil
}

/* scanCurrent 抓取单页，比对页面脚本与注册表 */
func (s *JSScanner) scanCurrent(ctx context.Context, pageURL string) (*CurrentScanResult, error) {
	res := &CurrentScanResult{
		ScanMetadata: s.metadata(ScanCurrent, "page_analysis"),
		Scripts: CurrentScripts{
			UsedOnPage:         []PageScript{},
			UnusedFromRegistry: []ScriptInfo{},
			External:           []ExternalScript{},
		},
		Recommendations: []Recommendation{},
	}
	res.ScanMetadata.PagesAnalyzed = 1
	res.ScanMetadata.URLScanned = pageURL

	code, body, err := s.current.fetch(ctx, pageURL)
	if err != nil {
		return nil, NewAPIError(http.StatusInternalServerError, "fetch_error", "Failed to fetch page: "+err.Error())
	}
	if code != http.StatusOK && code != http.StatusMovedPermanently && code != http.StatusFound {
		return nil, NewAPIError(http.StatusInternalServerError, "http_error", fmt.Sprintf("HTTP %d error when fetching page", code))
	}
	if body == "" {
		return nil, NewAPIError(http.StatusInternalServerError, "empty_response", "Page returned empty content")
	}

	pageScripts := parseScriptSources(body)
	res.Summary.ScriptsInPage = len(pageScripts)

	scripts, err := s.scripts(ctx)
	if err != nil {
		return nil, err
	}
	host := s.siteHost()
	reg := indexRegistry(host, scripts)
	res.Summary.ScriptsInRegistry = len(reg.keys)

	normalized := make([]string, len(pageScripts))
	for i, u := range pageScripts {
		normalized[i] = normalizeScriptURL(host, u)
	}

	for i, u := range pageScripts {
		found := false
		for _, key := range reg.keys {
			if urlsMatch(normalized[i], key) {
				res.Scripts.UsedOnPage = append(res.Scripts.UsedOnPage, PageScript{
					ScriptInfo:  scriptInfo(s.site, reg.scripts[key]),
					FoundOnPage: true,
				})
				found = true
				break
			}
		}
		if !found {
			res.Scripts.External = append(res.Scripts.External, ExternalScript{URL: u, Type: scriptType(u)})
			res.Summary.ExternalScripts++
		}
	}

	for _, key := range reg.keys {
		found := false
		for _, n := range normalized {
			if urlsMatch(n, key) {
				found = true
				break
			}
		}
		if !found {
			res.Scripts.UnusedFromRegistry = append(res.Scripts.UnusedFromRegistry, scriptInfo(s.site, reg.scripts[key]))
			res.Summary.UnusedInRegistry++
		}
	}

	if res.Summary.UnusedInRegistry > 0 {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Type:     "cleanup",
			Priority: "low",
			Message:  fmt.Sprintf("%d registered scripts not used on this page", res.Summary.UnusedInRegistry),
			Action:   "These may be used on other pages - run key_pages scan to verify",
		})
	}
	if res.Summary.ExternalScripts > 10 {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Type:     "performance",
			Priority: "medium",
			Message:  fmt.Sprintf("%d external scripts detected", res.Summary.ExternalScripts),
			Action:   "Consider hosting critical scripts locally",
		})
	}
	return res, nil
}

/* scanKeyPages 抓取关键页面并按出现比例分档 */
func (s *JSScanner) scanKeyPages(ctx context.Context) (*KeyPagesScanResult, error) {
	res := &KeyPagesScanResult{
		ScanMetadata: s.metadata(ScanKeyPages, "multi_page_analysis"),
		PagesScanned: NewOrderedMap(),
		AggregatedData: AggregatedUsage{
			AllScripts: []UsageScript{},
			NeverUsed:  []UsageScript{},
			AlwaysUsed: []UsageScript{},
		},
		Recommendations: []Recommendation{},
	}

	pages, err := s.keyPages(ctx)
	if err != nil {
		return nil, err
	}
	if pages.Len() == 0 {
		return nil, NewAPIError(http.StatusInternalServerError, "no_pages", "No pages found to scan")
	}

	host := s.siteHost()
	usage := make(map[string]int)
	for _, pageType := range pages.Keys() {
		v, _ := pages.Get(pageType)
		pageURL := v.(string)
		ps, err := s.crawler.scanPage(ctx, pageURL)
		if err != nil {
			s.logger.Debug("关键页面抓取失败", zap.String("page", pageType), zap.String("url", pageURL), zap.Error(err))
			continue
		}
		res.PagesScanned.Set(pageType, PageVisit{URL: pageURL, ScriptsFound: len(ps.scripts), ScanTime: ps.scanTime})
		for _, u := range ps.scripts {
			usage[normalizeScriptURL(host, u)]++
		}
		res.ScanMetadata.PagesAnalyzed++
	}

	scripts, err := s.scripts(ctx)
	if err != nil {
		return nil, err
	}
	reg := indexRegistry(host, scripts)
	analyzed := res.ScanMetadata.PagesAnalyzed

	for _, key := range reg.keys {
		count := usage[key]
		pct := 0.0
		if analyzed > 0 {
			pct = round(float64(count)/float64(analyzed)*100, 1)
		}
		us := UsageScript{
			ScriptInfo:      scriptInfo(s.site, reg.scripts[key]),
			UsageCount:      count,
			UsagePercentage: pct,
			PagesFoundOn:    fmt.Sprintf("%d/%d", count, analyzed),
		}
		res.AggregatedData.AllScripts = append(res.AggregatedData.AllScripts, us)

		switch {
		case count == 0:
			res.AggregatedData.NeverUsed = append(res.AggregatedData.NeverUsed, us)
			res.Summary.DefinitelyUnused++
			res.Summary.PotentialSavings += us.SizeBytes
		case pct < 30:
			res.AggregatedData.UsageFrequency.RarelyUsed = append(res.AggregatedData.UsageFrequency.RarelyUsed, us)
			res.Summary.PossiblyUnused++
		case pct >= 80:
			res.AggregatedData.AlwaysUsed = append(res.AggregatedData.AlwaysUsed, us)
		default:
			res.AggregatedData.UsageFrequency.SometimesUsed = append(res.AggregatedData.UsageFrequency.SometimesUsed, us)
		}
	}

	res.Summary.TotalUniqueScripts = len(reg.keys)
	res.Summary.PotentialSavingsFormatted = site.FormatSize(res.Summary.PotentialSavings)

	if res.Summary.DefinitelyUnused > 0 {
		handles := make([]string, 0, 5)
		for _, us := range res.AggregatedData.NeverUsed {
			if len(handles) == 5 {
				break
			}
			handles = append(handles, us.Handle)
		}
		res.Recommendations = append(res.Recommendations, Recommendation{
			Type:     "cleanup",
			Priority: "high",
			Message: fmt.Sprintf("%d scripts never used across key pages (%s potential savings)",
				res.Summary.DefinitelyUnused, res.Summary.PotentialSavingsFormatted),
			Action:  "Safe to dequeue these scripts",
			Scripts: handles,
		})
	}
	if n := len(res.AggregatedData.UsageFrequency.RarelyUsed); n > 0 {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Type:     "optimization",
			Priority: "medium",
			Message:  fmt.Sprintf("%d scripts rarely used (less than 30%% of pages)", n),
			Action:   "Consider conditional loading for these scripts",
		})
	}
	return res, nil
}

/*
keyPages 关键页面：首页、文章页、最近 2 篇文章、最近修改的 3 个页面、商店页
功能：键为页面类别，地址为空或重复者跳过
*/
func (s *JSScanner) keyPages(ctx context.Context) (*OrderedMap, error) {
	d := s.site.DAO().WithContext(ctx)
	pages := NewOrderedMap()
	seen := make(map[string]bool)
	add := func(kind, u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		pages.Set(kind, u)
	}

	add("homepage", s.site.HomeURL())

	blogID, err := s.site.OptionID(site.OptionPageForPosts)
	if err != nil {
		return nil, err
	}
	if blogID != 0 {
		if p, err := d.GetPost(blogID); err != nil {
			return nil, err
		} else if p != nil {
			add("blog", s.site.Permalink(p))
		}
	}

	posts, err := d.RecentPublished([]string{models.PostTypePost}, "published_at DESC", 2)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		add(fmt.Sprintf("post_%d", i+1), s.site.Permalink(&posts[i]))
	}

	sample, err := d.RecentPublished([]string{models.PostTypePage}, "modified_at DESC", 3)
	if err != nil {
		return nil, err
	}
	for i := range sample {
		add(fmt.Sprintf("page_%d", i+1), s.site.Permalink(&sample[i]))
	}

	if ok, err := s.caps.Has(ctx, site.CapWooCommerce); err != nil {
		return nil, err
	} else if ok {
		shopID, err := s.site.OptionID(site.OptionShopPage)
		if err != nil {
			return nil, err
		}
		if shopID > 0 {
			if p, err := d.GetPost(shopID); err != nil {
				return nil, err
			} else if p != nil {
				add("shop", s.site.Permalink(p))
			}
		}
	}
	return pages, nil
}

/*
ScanFull 全站扫描
功能：budget 大于 0 时超过预算即停止抓取（stopped_reason = timeout_prevention）；
后台任务以 budget = 0 调用
*/
func (s *JSScanner) ScanFull(ctx context.Context, maxPages int, budget time.Duration) (*FullScanResult, error) {
	start := time.Now()
	res := &FullScanResult{
		ScanMetadata:    s.metadata(ScanFull, "full_site_crawl"),
		UnusedScripts:   []UnusedScript{},
		ScriptCoverage:  NewOrderedMap(),
		Recommendations: []Recommendation{},
		Errors:          []ScanError{},
	}
	res.ScanMetadata.MaxPages = maxPages

	urls, err := s.siteURLs(ctx, maxPages)
	if err != nil {
		return nil, err
	}
	res.Summary.TotalURLsFound = len(urls)
	if len(urls) == 0 {
		return nil, NewAPIError(http.StatusInternalServerError, "no_urls", "No URLs found to scan")
	}
	if len(urls) > maxPages {
		urls = urls[:maxPages]
	}

	host := s.siteHost()
	var scanErrors []ScanError
	for _, pageURL := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ps, err := s.crawler.scanPage(ctx, pageURL)
		if err != nil {
			scanErrors = append(scanErrors, ScanError{URL: pageURL, Error: err.Error()})
		} else {
			res.Summary.PagesScanned++
			for _, u := range ps.scripts {
				key := normalizeScriptURL(host, u)
				v, ok := res.ScriptCoverage.Get(key)
				cov, _ := v.(*ScriptCoverage)
				if !ok {
					cov = &ScriptCoverage{URL: u, Pages: []string{}}
					res.ScriptCoverage.Set(key, cov)
				}
				cov.Pages = append(cov.Pages, pageURL)
				cov.Count++
			}
		}
		if budget > 0 && time.Since(start) > budget {
			res.ScanMetadata.StoppedReason = "timeout_prevention"
			break
		}
	}
	res.ScanMetadata.PagesAnalyzed = res.Summary.PagesScanned

	scripts, err := s.scripts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range scripts {
		sc := &scripts[i]
		if sc.Src == "" {
			continue
		}
		key := normalizeScriptURL(host, sc.Src)
		used := false
		for _, usedKey := range res.ScriptCoverage.Keys() {
			if urlsMatch(key, usedKey) {
				used = true
				break
			}
		}
		if !used {
			res.UnusedScripts = append(res.UnusedScripts, UnusedScript{ScriptInfo: scriptInfo(s.site, sc), Confidence: "high"})
			res.Summary.DefinitelyUnused++
		}
	}

	res.Summary.UniqueScripts = res.ScriptCoverage.Len()
	maxErrors := s.cfg.MaxErrors
	if maxErrors <= 0 {
		maxErrors = maxScanErrors
	}
	if len(scanErrors) > maxErrors {
		scanErrors = scanErrors[:maxErrors]
	}
	if scanErrors != nil {
		res.Errors = scanErrors
	}
	res.Summary.OptimizationScore = optimizationScore(res.Summary.UniqueScripts, res.Summary.DefinitelyUnused)

	if res.Summary.OptimizationScore < 70 {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Type:     "critical",
			Priority: "high",
			Message:  fmt.Sprintf("Optimization score: %d%% - Significant improvements possible", res.Summary.OptimizationScore),
			Action:   "Review and remove unused scripts",
		})
	}
	if len(res.Errors) > 5 {
		res.Recommendations = append(res.Recommendations, Recommendation{
			Type:     "warning",
			Priority: "medium",
			Message:  fmt.Sprintf("%d pages had scan errors", len(res.Errors)),
			Action:   "Some pages may be inaccessible or have issues",
		})
	}
	return res, nil
}

/*
optimizationScore round((unique − unused) / unique × 100)，unique 为 0 时为 0；
unused 可能多于 unique（注册而未出现的脚本不计入 unique），结果可能为负
*/
func optimizationScore(unique, unused int) int {
	if unique <= 0 {
		return 0
	}
	return int(math.Round(float64(unique-unused) / float64(unique) * 100))
}

/*
siteURLs 全站扫描的地址列表
功能：首页、最多 min(limit/2, 100) 篇已发布文章与页面、文章归档页、最多 10 个分类归档，去重
*/
func (s *JSScanner) siteURLs(ctx context.Context, limit int) ([]string, error) {
	d := s.site.DAO().WithContext(ctx)
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	add(s.site.HomeURL())

	n := limit / 2
	if n > 100 {
		n = 100
	}
	if n > 0 {
		posts, err := d.RecentPublished([]string{models.PostTypePost, models.PostTypePage}, "published_at DESC", n)
		if err != nil {
			return nil, err
		}
		for i := range posts {
			add(s.site.Permalink(&posts[i]))
		}
	}

	archive, err := s.site.PostsArchiveLink()
	if err != nil {
		return nil, err
	}
	add(archive)

	categories, err := d.ListTerms(models.TaxonomyCategory, 10)
	if err != nil {
		return nil, err
	}
	for i := range categories {
		add(s.site.TermLink(&categories[i]))
	}
	return urls, nil
}

/* formatSeconds 秒数保留 3 位小数并加 s 后缀，如 "0.125s" */
func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%gs", round(d.Seconds(), 3))
}
