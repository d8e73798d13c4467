/*
Package site 被托管站点的宿主抽象

提供站点地址、固定链接、脚本文件定位等与宿主平台相关的推导，
以及能力注册表 Capabilities。
*/
package site

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db/dao"
	"sashosting/plane/internal/db/models"

	"github.com/dustin/go-humanize"
)

/* 站点选项名 */
const (
	OptionPageForPosts   = "page_for_posts"
	OptionShopPage       = "woocommerce_shop_page_id"
	OptionWPVersion      = "wp_version"
	OptionCoreUpdate     = "core_update_version"
	OptionPHPVersion     = "php_version"
	OptionMySQLVersion   = "mysql_version"
	OptionServerSoftware = "server_software"
	OptionPHPExtensions  = "php_extensions"
	OptionUploadMax      = "upload_max_filesize"
	OptionPostMax        = "post_max_size"
	OptionMemoryLimit    = "memory_limit"
	OptionMaxExecTime    = "max_execution_time"
	OptionUploadDir      = "upload_dir"
)

/*
Site 站点
功能：由配置与 DAO 构造，不持有全局状态
*/
type Site struct {
	cfg        config.SiteConfig
	url        string
	home       string
	restPrefix string
	dao        *dao.DAO
}

/* New 创建站点实例 */
func New(cfg *config.Config, d *dao.DAO) *Site {
	return &Site{
		cfg:        cfg.Site,
		url:        strings.TrimRight(cfg.Site.URL, "/"),
		home:       cfg.SiteHomeURL(),
		restPrefix: "/" + strings.Trim(cfg.Server.RESTPrefix, "/"),
		dao:        d,
	}
}

/* URL 站点地址（无末尾斜杠） */
func (s *Site) URL() string { return s.url }

/* HomeURL 首页地址（无末尾斜杠） */
func (s *Site) HomeURL() string { return s.home }

/* Name 站点名称 */
func (s *Site) Name() string { return s.cfg.Name }

/* Debug 平台调试开关 */
func (s *Site) Debug() bool { return s.cfg.Debug }

/* Timezone 站点时区 */
func (s *Site) Timezone() string { return s.cfg.Timezone }

/* Now 站点时区下的当前时间，时区无效时使用 UTC */
func (s *Site) Now() time.Time {
	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc)
}

/* RootPath 站点文件根目录 */
func (s *Site) RootPath() string { return s.cfg.RootPath }

/* DAO 数据访问对象 */
func (s *Site) DAO() *dao.DAO { return s.dao }

/* Host 站点地址的主机名 */
func (s *Site) Host() string {
	return hostOf(s.url)
}

/* HomeHost 首页地址的主机名 */
func (s *Site) HomeHost() string {
	return hostOf(s.home)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

/* AdminURL 后台首页 */
func (s *Site) AdminURL() string {
	return s.url + "/" + strings.TrimLeft(s.cfg.AdminPath, "/")
}

/* LoginURL 登录页 */
func (s *Site) LoginURL() string {
	return s.url + "/" + strings.TrimLeft(s.cfg.LoginPath, "/")
}

/* RESTURL REST 路由的完整地址 */
func (s *Site) RESTURL(route string) string {
	return s.url + s.restPrefix + "/" + strings.TrimLeft(route, "/")
}

/*
Permalink 内容条目的固定链接
功能：页面与文章使用 /slug/，商品使用 /product/slug/，缺少 slug 时回退到 ?p=id
*/
func (s *Site) Permalink(p *models.Post) string {
	if p.Slug == "" {
		return fmt.Sprintf("%s/?p=%d", s.home, p.ID)
	}
	switch p.Type {
	case models.PostTypeProduct:
		return s.home + "/product/" + p.Slug + "/"
	default:
		return s.home + "/" + p.Slug + "/"
	}
}

/* TermLink 分类项归档页 */
func (s *Site) TermLink(t *models.Term) string {
	base := "category"
	if t.Taxonomy == models.TaxonomyTag {
		base = "tag"
	}
	return s.home + "/" + base + "/" + t.Slug + "/"
}

/*
PostsArchiveLink 文章归档页
功能：设置了独立文章页时返回该页链接，否则为首页
*/
func (s *Site) PostsArchiveLink() (string, error) {
	id, err := s.OptionID(OptionPageForPosts)
	if err != nil || id == 0 {
		return s.home + "/", err
	}
	p, err := s.dao.GetPost(id)
	if err != nil {
		return "", err
	}
	if p == nil {
		return s.home + "/", nil
	}
	return s.Permalink(p), nil
}

/* OptionID 读取整数型选项，不存在或非法时为 0 */
func (s *Site) OptionID(name string) (uint, error) {
	v, ok, err := s.dao.GetOption(name)
	if err != nil || !ok {
		return 0, err
	}
	var id uint
	if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &id); err != nil {
		return 0, nil
	}
	return id, nil
}

/*
ScriptPath 将脚本地址映射为磁盘路径
功能：仅处理本站地址与站内相对路径，外部地址返回空串
*/
func (s *Site) ScriptPath(src string) string {
	if s.cfg.RootPath == "" || src == "" {
		return ""
	}
	var rel string
	switch {
	case strings.HasPrefix(src, s.url+"/"):
		rel = strings.TrimPrefix(src, s.url)
	case strings.HasPrefix(src, "/") && !strings.HasPrefix(src, "//"):
		rel = src
	default:
		return ""
	}
	if i := strings.IndexAny(rel, "?#"); i >= 0 {
		rel = rel[:i]
	}
	clean := filepath.Clean("/" + rel)
	return filepath.Join(s.cfg.RootPath, filepath.FromSlash(clean))
}

/*
FormatSize 以 1024 为进制格式化字节数
示例：2097152 → "2.0 MB"
*/
func FormatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return strings.Replace(humanize.IBytes(uint64(n)), "iB", "B", 1)
}
