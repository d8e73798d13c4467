package models

import (
	"time"
)

/*
Plugin 已安装插件
功能：File 为插件主文件相对路径（目录/文件.php），也是插件的唯一标识。
UpdateVersion 非空表示有可用更新。
*/
type Plugin struct {
	File          string    `gorm:"type:varchar(191);primaryKey" json:"file"`
	Name          string    `gorm:"type:varchar(191);not null" json:"name"`
	Version       string    `gorm:"type:varchar(32)" json:"version"`
	Active        bool      `gorm:"default:false;not null;index" json:"active"`
	UpdateVersion string    `gorm:"type:varchar(32)" json:"update_version,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Plugin) TableName() string {
	return "plugins"
}

/* Slug 插件目录名 */
func (p *Plugin) Slug() string {
	for i := 0; i < len(p.File); i++ {
		if p.File[i] == '/' {
			return p.File[:i]
		}
	}
	return p.File
}

/*
Theme 已安装主题
功能：Template 为父主题 slug；与 Slug 不同且非空时为子主题
*/
type Theme struct {
	Slug          string    `gorm:"type:varchar(191);primaryKey" json:"slug"`
	Name          string    `gorm:"type:varchar(191);not null" json:"name"`
	Version       string    `gorm:"type:varchar(32)" json:"version"`
	Template      string    `gorm:"type:varchar(191)" json:"template"`
	Active        bool      `gorm:"default:false;not null" json:"active"`
	UpdateVersion string    `gorm:"type:varchar(32)" json:"update_version,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Theme) TableName() string {
	return "themes"
}

/* IsChild 是否为子主题 */
func (t *Theme) IsChild() bool {
	return t.Template != "" && t.Template != t.Slug
}

/*
Script 已注册的前端脚本
功能：对应脚本注册表中的一项。Enqueued 表示在当前请求中被排队输出。
*/
type Script struct {
	Handle    string    `gorm:"type:varchar(191);primaryKey" json:"handle"`
	Src       string    `gorm:"type:varchar(1024)" json:"src"`
	Version   string    `gorm:"type:varchar(64)" json:"version"`
	Deps      []string  `gorm:"serializer:json;type:text" json:"deps"`
	Enqueued  bool      `gorm:"default:false;not null" json:"enqueued"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Script) TableName() string {
	return "scripts"
}
