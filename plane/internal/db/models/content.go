package models

import (
	"time"
)

/* 内容类型与状态 */
const (
	PostTypePage    = "page"
	PostTypePost    = "post"
	PostTypeProduct = "product"

	PostStatusPublish = "publish"
	PostStatusDraft   = "draft"

	TaxonomyCategory = "category"
	TaxonomyTag      = "post_tag"
)

/*
Post 内容条目
功能：页面、文章、商品共用一张表，以 Type 区分。
ID 为自增整数，与外部接口中的 id 参数一致。
*/
type Post struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Type             string    `gorm:"type:varchar(32);index;not null" json:"type"`
	Status           string    `gorm:"type:varchar(20);index;not null;default:'draft'" json:"status"`
	Title            string    `gorm:"type:varchar(512)" json:"title"`
	Slug             string    `gorm:"type:varchar(200);index" json:"slug"`
	Content          string    `gorm:"type:longtext" json:"content"`
	FeaturedImageURL string    `gorm:"type:varchar(1024)" json:"featured_image_url"`
	AuthorID         string    `gorm:"type:varchar(36);index" json:"author_id"`
	PublishedAt      time.Time `gorm:"index" json:"date"`
	ModifiedAt       time.Time `gorm:"index" json:"modified"`

	Terms []Term `gorm:"many2many:post_terms;" json:"terms,omitempty"`
}

func (Post) TableName() string {
	return "posts"
}

/*
Term 分类项
功能：分类目录与标签，以 Taxonomy 区分
*/
type Term struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Taxonomy string `gorm:"type:varchar(32);index;not null" json:"taxonomy"`
	Name     string `gorm:"type:varchar(200);not null" json:"name"`
	Slug     string `gorm:"type:varchar(200);index" json:"slug"`
}

func (Term) TableName() string {
	return "terms"
}
