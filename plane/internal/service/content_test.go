package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"sashosting/plane/internal/db/models"
)

func TestContentService_PageNotFound(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewContentService(env.site, env.cache)
	ctx := context.Background()

	_, err := svc.List(ctx, PagesKind, ContentQuery{ID: 42})
	ae, ok := AsAPIError(err)
	if !ok || ae.Code != "page_not_found" || ae.Status != http.StatusNotFound {
		t.Fatalf("不存在的页面应返回 404 page_not_found, got %v", err)
	}

	/* 类型不符同样视为不存在 */
	post := env.publish(t, models.PostTypePost, "Hello", "hello", time.Now())
	_, err = svc.List(ctx, PagesKind, ContentQuery{ID: post.ID})
	if ae, ok := AsAPIError(err); !ok || ae.Code != "page_not_found" {
		t.Fatalf("文章 ID 查询页面应返回 page_not_found, got %v", err)
	}
	_, err = svc.List(ctx, PostsKind, ContentQuery{ID: 9999})
	if ae, ok := AsAPIError(err); !ok || ae.Code != "post_not_found" {
		t.Fatalf("不存在的文章应返回 post_not_found, got %v", err)
	}

	if env.store.Len() != 0 {
		t.Fatal("404 结果不应写入缓存")
	}
}

func TestContentService_PerPageClamp(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewContentService(env.site, env.cache)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		env.publish(t, models.PostTypePage, fmt.Sprintf("Page %03d", i), fmt.Sprintf("page-%03d", i), base)
	}

	body, err := svc.List(context.Background(), PagesKind, ContentQuery{Page: 1, PerPage: 150})
	if err != nil {
		t.Fatalf("列表查询失败: %v", err)
	}
	var resp struct {
		Total      int                        `json:"total"`
		PerPage    int                        `json:"per_page"`
		TotalPages int                        `json:"total_pages"`
		Pages      map[string]json.RawMessage `json:"pages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.PerPage != 100 || len(resp.Pages) != 100 {
		t.Fatalf("per_page 应被限制为 100, got per_page=%d items=%d", resp.PerPage, len(resp.Pages))
	}
	if resp.Total != 120 || resp.TotalPages != 2 {
		t.Fatalf("分页信息错误: total=%d total_pages=%d", resp.Total, resp.TotalPages)
	}
}

func TestContentService_OrderAndShape(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewContentService(env.site, env.cache)

	old := env.publish(t, models.PostTypePost, "Older", "older", time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	env.publish(t, models.PostTypePost, "Newer", "newer", time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC))
	cat := &models.Term{Taxonomy: models.TaxonomyCategory, Name: "News", Slug: "news"}
	env.mustCreate(t, cat)
	if err := env.db.Model(old).Association("Terms").Append(cat); err != nil {
		t.Fatalf("关联分类失败: %v", err)
	}

	body, err := svc.List(context.Background(), PostsKind, ContentQuery{})
	if err != nil {
		t.Fatalf("列表查询失败: %v", err)
	}
	if i, j := bytes.Index(body, []byte(`"Newer"`)), bytes.Index(body, []byte(`"Older"`)); i < 0 || j < 0 || i > j {
		t.Fatalf("文章应按发布时间倒序: %s", body)
	}
	for _, want := range []string{
		`"date":"2025-05-01 09:30:00"`,
		`"url":"https://example.com/newer/"`,
		`"featured_image":false,"featured_image_url":null`,
		`"categories":["News"],"tags":[]`,
		`"per_page":20,"current_page":1`,
	} {
		if !bytes.Contains(body, []byte(want)) {
			t.Errorf("响应缺少 %s: %s", want, body)
		}
	}
}

func TestContentService_CacheIdempotence(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewContentService(env.site, env.cache)
	env.publish(t, models.PostTypePage, "About", "about", time.Now())
	ctx := context.Background()

	first, err := svc.List(ctx, PagesKind, ContentQuery{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("首次查询失败: %v", err)
	}
	afterFirst := env.queries.Load()

	second, err := svc.List(ctx, PagesKind, ContentQuery{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("二次查询失败: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("缓存期内两次读取应逐字节一致")
	}
	if env.queries.Load() != afterFirst {
		t.Fatal("命中缓存时不应再查询数据库")
	}

	/* save_post 后缓存失效 */
	bus := NewEventBus()
	RegisterInvalidation(bus, env.cache)
	env.publish(t, models.PostTypePage, "Contact", "contact", time.Now())
	bus.Publish(ctx, Event{Name: EventPostSaved})

	third, err := svc.List(ctx, PagesKind, ContentQuery{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("失效后查询失败: %v", err)
	}
	if bytes.Equal(first, third) || !bytes.Contains(third, []byte(`"Contact"`)) {
		t.Fatalf("save_post 后不应返回旧数据: %s", third)
	}
}
