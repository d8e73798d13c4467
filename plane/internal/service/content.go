package service

import (
	"context"
	"net/http"

	"sashosting/plane/internal/db/dao"
	"sashosting/plane/internal/db/models"
	"sashosting/plane/internal/site"

	"go.uber.org/zap"
)

/* DateLayout 列表中的日期格式 */
const DateLayout = "2006-01-02 15:04:05"

/* 分页参数 */
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

/*
ContentKind 可列出的内容类型
功能：页面按标题升序，文章按发布时间倒序且附带分类与标签
*/
type ContentKind struct {
	Endpoint    string
	PostType    string
	ListField   string
	CachePrefix string
	Order       string
	WithTerms   bool
	NotFound    *APIError
}

var (
	PagesKind = ContentKind{
		Endpoint:    "pages_list",
		PostType:    models.PostTypePage,
		ListField:   "pages",
		CachePrefix: PrefixPagesList,
		Order:       "title ASC",
		NotFound:    NewAPIError(http.StatusNotFound, "page_not_found", "Page not found"),
	}
	PostsKind = ContentKind{
		Endpoint:    "posts_list",
		PostType:    models.PostTypePost,
		ListField:   "posts",
		CachePrefix: PrefixPostsList,
		Order:       "published_at DESC",
		WithTerms:   true,
		NotFound:    NewAPIError(http.StatusNotFound, "post_not_found", "Post not found"),
	}
)

/* ContentQuery 列表查询参数 */
type ContentQuery struct {
	ID      uint
	Page    int
	PerPage int
}

/* Normalize 补齐默认值并限制 per_page ≤ 100 */
func (q ContentQuery) Normalize() ContentQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return q
}

/* ContentItem 列表项 */
type ContentItem struct {
	ID               uint      `json:"id"`
	Title            string    `json:"title"`
	FeaturedImage    bool      `json:"featured_image"`
	FeaturedImageURL *string   `json:"featured_image_url"`
	Status           string    `json:"status"`
	Date             string    `json:"date"`
	Modified         string    `json:"modified"`
	URL              string    `json:"url"`
	Categories       *[]string `json:"categories,omitempty"`
	Tags             *[]string `json:"tags,omitempty"`
}

/*
ContentService 页面与文章列表
*/
type ContentService struct {
	site   *site.Site
	cache  *ResponseCache
	logger *zap.Logger
}

/* NewContentService 创建内容列表服务 */
func NewContentService(s *site.Site, rc *ResponseCache) *ContentService {
	return &ContentService{site: s, cache: rc, logger: zap.L().Named("content")}
}

/*
List 列出内容或按 ID 返回单条
功能：缓存键为 前缀 + md5([id, page, per_page])；单条查询在 ID 不存在或类型不符时返回 404，且不写缓存
*/
func (s *ContentService) List(ctx context.Context, kind ContentKind, q ContentQuery) ([]byte, error) {
	q = q.Normalize()
	key := ParamKey(kind.CachePrefix, q.ID, q.Page, q.PerPage)

	return s.cache.Remember(ctx, kind.Endpoint, key, TTLContentListings, func(ctx context.Context) (any, error) {
		d := s.site.DAO().WithContext(ctx)
		if q.ID != 0 {
			return s.single(d, kind, q.ID)
		}
		return s.page(d, kind, q)
	})
}

func (s *ContentService) single(d *dao.DAO, kind ContentKind, id uint) (any, error) {
	p, err := d.GetPost(id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Type != kind.PostType {
		return nil, kind.NotFound
	}
	out := NewOrderedMap()
	out.Set(p.Title, s.item(kind, p))
	return out, nil
}

func (s *ContentService) page(d *dao.DAO, kind ContentKind, q ContentQuery) (any, error) {
	posts, total, err := d.ListPublished(kind.PostType, kind.Order, q.PerPage, (q.Page-1)*q.PerPage)
	if err != nil {
		return nil, err
	}
	list := NewOrderedMap()
	for i := range posts {
		list.Set(posts[i].Title, s.item(kind, &posts[i]))
	}

	totalPages := int((total + int64(q.PerPage) - 1) / int64(q.PerPage))
	out := NewOrderedMap()
	out.Set("total", total)
	out.Set("per_page", q.PerPage)
	out.Set("current_page", q.Page)
	out.Set("total_pages", totalPages)
	out.Set(kind.ListField, list)
	return out, nil
}

func (s *ContentService) item(kind ContentKind, p *models.Post) ContentItem {
	it := ContentItem{
		ID:       p.ID,
		Title:    p.Title,
		Status:   p.Status,
		Date:     p.PublishedAt.Format(DateLayout),
		Modified: p.ModifiedAt.Format(DateLayout),
		URL:      s.site.Permalink(p),
	}
	if p.FeaturedImageURL != "" {
		u := p.FeaturedImageURL
		it.FeaturedImage = true
		it.FeaturedImageURL = &u
	}
	if kind.WithTerms {
		categories, tags := []string{}, []string{}
		for _, t := range p.Terms {
			switch t.Taxonomy {
			case models.TaxonomyCategory:
				categories = append(categories, t.Name)
			case models.TaxonomyTag:
				tags = append(tags, t.Name)
			}
		}
		it.Categories, it.Tags = &categories, &tags
	}
	return it
}
