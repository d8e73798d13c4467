package dao

import (
	"sashosting/plane/internal/db/models"

	"gorm.io/gorm"
)

/* ==================== 内容 ==================== */

/*
GetPost 根据ID获取内容条目（含分类项）
*/
func (d *DAO) GetPost(id uint) (*models.Post, error) {
	var p models.Post
	if err := d.DB.Preload("Terms").First(&p, id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

/*
ListPublished 分页列出已发布内容
功能：返回当前页条目与符合条件的总数；order 为 GORM 排序子句
*/
func (d *DAO) ListPublished(postType, order string, limit, offset int) ([]models.Post, int64, error) {
	var (
		posts []models.Post
		total int64
	)
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Where("type = ? AND status = ?", postType, models.PostStatusPublish)
	}
	if err := d.DB.Model(&models.Post{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := d.DB.Scopes(scope).Preload("Terms").Order(order).Limit(limit).Offset(offset).Find(&posts).Error
	return posts, total, err
}

/*
RecentPublished 按指定顺序取若干已发布条目（多类型）
*/
func (d *DAO) RecentPublished(types []string, order string, limit int) ([]models.Post, error) {
	var posts []models.Post
	q := d.DB.Where("type IN ? AND status = ?", types, models.PostStatusPublish).Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&posts).Error
	return posts, err
}

/*
ListTerms 列出某分类法下的分类项
*/
func (d *DAO) ListTerms(taxonomy string, limit int) ([]models.Term, error) {
	var terms []models.Term
	q := d.DB.Where("taxonomy = ?", taxonomy).Order("name ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&terms).Error
	return terms, err
}

/*
CreatePost 创建内容条目
*/
func (d *DAO) CreatePost(p *models.Post) error {
	return d.DB.Create(p).Error
}
