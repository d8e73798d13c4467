package dao

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

/*
DAO 统一 GORM 数据访问对象
功能：所有 handler 与 service 通过 app.DAO 访问数据库。
未找到记录时方法返回 nil, nil。
*/
type DAO struct {
	DB     *gorm.DB
	logger *zap.Logger
}

/*
New 创建 DAO 实例
*/
func New(db *gorm.DB) *DAO {
	return &DAO{
		DB:     db,
		logger: zap.L().Named("dao"),
	}
}

/*
WithContext 返回绑定请求上下文的 DAO
功能：请求取消或超时时底层查询随之中止
*/
func (d *DAO) WithContext(ctx context.Context) *DAO {
	return &DAO{DB: d.DB.WithContext(ctx), logger: d.logger}
}

/*
Transaction 在事务中执行多个数据库操作
功能：fn 返回错误时回滚，否则提交。fn 内通过 txDAO 执行的操作共享同一事务。
*/
func (d *DAO) Transaction(fn func(txDAO *DAO) error) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		return fn(&DAO{DB: tx, logger: d.logger})
	})
}

/*
SanitizePagination 校正分页参数
功能：limit 范围 [1, maxLimit]，offset 最小为 0
*/
func SanitizePagination(limit, offset, maxLimit int) (int, int) {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	if limit <= 0 {
		limit = 10
	} else if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
