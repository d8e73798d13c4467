package dao

import (
	"sashosting/plane/internal/db/models"
)

/*
CreateAuditLog 创建审计日志
*/
func (d *DAO) CreateAuditLog(log *models.AuditLog) error {
	return d.DB.Create(log).Error
}

/*
ListAuditLogs 按动作查询最近的审计日志
*/
func (d *DAO) ListAuditLogs(action string, limit int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	q := d.DB.Order("created_at DESC")
	if action != "" {
		q = q.Where("action = ?", action)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&logs).Error
	return logs, err
}
