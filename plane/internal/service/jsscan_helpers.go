package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/site"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

/* 页面抓取参数 */
const (
	scannerUserAgent    = "SAS Hosting Scanner/1.0"
	crawlerUserAgent    = "SAS JS Scanner/1.0"
	currentFetchTimeout = 10 * time.Second
	crawlFetchTimeout   = 5 * time.Second
	maxRedirects        = 5
	maxPageBytes        = 8 << 20
)

var (
	schemeRe    = regexp.MustCompile(`^(https?:)?//`)
	pluginDirRe = regexp.MustCompile(`wp-content/plugins/([^/]+)`)
	themeDirRe  = regexp.MustCompile(`wp-content/themes/([^/]+)`)
)

/* errTooManyRedirects 超过重定向上限 */
var errTooManyRedirects = errors.New("too many redirects")

/*
pageFetcher 页面抓取器
功能：GET 页面并返回状态码与正文，跟随最多 5 次重定向
*/
type pageFetcher struct {
	client    *http.Client
	userAgent string
}

func newPageFetcher(timeout time.Duration, userAgent string) *pageFetcher {
	return &pageFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}
				return nil
			},
		},
		userAgent: userAgent,
	}
}

func (f *pageFetcher) fetch(ctx context.Context, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}

/* pageScan 单页抓取结果 */
type pageScan struct {
	scripts  []string
	scanTime float64
}

/* scanPage 抓取页面并提取脚本，仅接受 200 */
func (f *pageFetcher) scanPage(ctx context.Context, url string) (*pageScan, error) {
	start := time.Now()
	code, body, err := f.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d error", code)
	}
	return &pageScan{
		scripts:  parseScriptSources(body),
		scanTime: round(time.Since(start).Seconds(), 3),
	}, nil
}

/*
parseScriptSources 提取页面中带 src 的 script 标签地址
功能：跳过空地址与 data: 地址，按首次出现顺序去重
*/
func parseScriptSources(doc string) []string {
	var (
		out  []string
		seen = make(map[string]bool)
		z    = html.NewTokenizer(strings.NewReader(doc))
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return out
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.DataAtom != atom.Script {
			continue
		}
		for _, a := range tok.Attr {
			if a.Key != "src" {
				continue
			}
			src := strings.TrimSpace(a.Val)
			if src == "" || strings.HasPrefix(src, "data:") || seen[src] {
				break
			}
			seen[src] = true
			out = append(out, src)
			break
		}
	}
}

/*
normalizeScriptURL 归一化脚本地址用于比对
功能：去掉协议与本站主机名、查询串及首尾斜杠
*/
func normalizeScriptURL(siteHost, u string) string {
	u = schemeRe.ReplaceAllString(u, "")
	if siteHost != "" {
		u = strings.TrimPrefix(u, siteHost)
	}
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return strings.Trim(u, "/")
}

/* urlsMatch 相等或互为子串即视为同一脚本；空串只与空串匹配 */
func urlsMatch(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

/* scriptType 脚本来源分类 */
func scriptType(u string) string {
	switch {
	case strings.Contains(u, "jquery"):
		return "jquery"
	case strings.Contains(u, "wp-includes"):
		return "wordpress-core"
	case strings.Contains(u, "wp-content/plugins"):
		return "plugin"
	case strings.Contains(u, "wp-content/themes"):
		return "theme"
	case strings.Contains(u, "googleapis.com"):
		return "external-google"
	case strings.Contains(u, "cdnjs.cloudflare.com"):
		return "external-cdn"
	case schemeRe.MatchString(u):
		return "external-other"
	default:
		return "local"
	}
}

/* scriptLocation 脚本所属位置：admin、core、plugin:<slug>、theme:<slug>、other */
func scriptLocation(u string) string {
	switch {
	case strings.Contains(u, "wp-admin"):
		return "admin"
	case strings.Contains(u, "wp-includes"):
		return "core"
	case strings.Contains(u, "wp-content/plugins"):
		return "plugin:" + firstGroup(pluginDirRe, u)
	case strings.Contains(u, "wp-content/themes"):
		return "theme:" + firstGroup(themeDirRe, u)
	default:
		return "other"
	}
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return "unknown"
}

/* ScriptInfo 注册脚本的描述 */
type ScriptInfo struct {
	Handle       string   `json:"handle"`
	URL          string   `json:"url"`
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies"`
	Size         string   `json:"size"`
	SizeBytes    int64    `json:"size_bytes"`
	Type         string   `json:"type"`
	Location     string   `json:"location"`
}

/* scriptInfo 组装脚本描述，可定位到磁盘文件时读取大小 */
func scriptInfo(s *site.Site, sc *models.Script) ScriptInfo {
	var size int64
	if path := s.ScriptPath(sc.Src); path != "" {
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			size = fi.Size()
		}
	}
	version := sc.Version
	if version == "" {
		version = "none"
	}
	deps := sc.Deps
	if deps == nil {
		deps = []string{}
	}
	return ScriptInfo{
		Handle:       sc.Handle,
		URL:          sc.Src,
		Version:      version,
		Dependencies: deps,
		Size:         site.FormatSize(size),
		SizeBytes:    size,
		Type:         scriptType(sc.Src),
		Location:     scriptLocation(sc.Src),
	}
}

/*
registryIndex 按归一化地址索引的注册脚本
功能：地址重复时后注册者覆盖前者，位置保持首次出现处
*/
type registryIndex struct {
	keys    []string
	scripts map[string]*models.Script
}

func indexRegistry(siteHost string, scripts []models.Script) *registryIndex {
	idx := &registryIndex{scripts: make(map[string]*models.Script)}
	for i := range scripts {
		if scripts[i].Src == "" {
			continue
		}
		key := normalizeScriptURL(siteHost, scripts[i].Src)
		if _, ok := idx.scripts[key]; !ok {
			idx.keys = append(idx.keys, key)
		}
		idx.scripts[key] = &scripts[i]
	}
	return idx
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
