package models

import (
	"time"
)

/*
Option 站点选项
功能：键值形式的站点设置，例如 sas_sso_config、dsm_modules、page_for_posts。
Value 为原始字符串，结构化的值以 JSON 存放。
*/
type Option struct {
	Name      string    `gorm:"type:varchar(191);primaryKey" json:"name"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Option) TableName() string {
	return "options"
}

/*
AuditLog 审计日志
功能：记录远程创建管理员、插件拦截等关键操作
*/
type AuditLog struct {
	BaseModel
	UserID   string `gorm:"type:varchar(36);index" json:"user_id"`
	Action   string `gorm:"type:varchar(64);index;not null" json:"action"`
	Resource string `gorm:"type:varchar(64);index" json:"resource"`
	Detail   string `gorm:"type:text" json:"detail"`
	IP       string `gorm:"type:varchar(64)" json:"ip"`
	UA       string `gorm:"type:varchar(512)" json:"ua"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
