package dao

import (
	"sashosting/plane/internal/db/models"

	"gorm.io/gorm/clause"
)

/* ==================== 插件 ==================== */

/*
ListPlugins 列出全部已安装插件，按名称排序
*/
func (d *DAO) ListPlugins() ([]models.Plugin, error) {
	var plugins []models.Plugin
	err := d.DB.Order("name ASC").Find(&plugins).Error
	return plugins, err
}

/*
GetPlugin 根据主文件路径获取插件
*/
func (d *DAO) GetPlugin(file string) (*models.Plugin, error) {
	var p models.Plugin
	if err := d.DB.First(&p, "file = ?", file).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

/*
AnyPluginActive 给定文件中是否有任意一个处于启用状态
*/
func (d *DAO) AnyPluginActive(files ...string) (bool, error) {
	if len(files) == 0 {
		return false, nil
	}
	var count int64
	err := d.DB.Model(&models.Plugin{}).
		Where("file IN ? AND active = ?", files, true).
		Count(&count).Error
	return count > 0, err
}

/*
SetPluginsActive 批量修改插件启用状态，返回受影响的行数
*/
func (d *DAO) SetPluginsActive(files []string, active bool) (int64, error) {
	if len(files) == 0 {
		return 0, nil
	}
	res := d.DB.Model(&models.Plugin{}).
		Where("file IN ? AND active <> ?", files, active).
		Update("active", active)
	return res.RowsAffected, res.Error
}

/*
ActivePluginFiles 返回 files 中处于启用状态的插件
*/
func (d *DAO) ActivePluginFiles(files []string) ([]string, error) {
	var out []string
	if len(files) == 0 {
		return out, nil
	}
	err := d.DB.Model(&models.Plugin{}).
		Where("file IN ? AND active = ?", files, true).
		Order("file ASC").
		Pluck("file", &out).Error
	return out, err
}

/*
UpsertPlugin 创建或更新插件记录
*/
func (d *DAO) UpsertPlugin(p *models.Plugin) error {
	return d.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "version", "active", "update_version", "updated_at"}),
	}).Create(p).Error
}

/*
CountPluginUpdates 有可用更新的插件数
*/
func (d *DAO) CountPluginUpdates() (int64, error) {
	var count int64
	err := d.DB.Model(&models.Plugin{}).Where("update_version <> ''").Count(&count).Error
	return count, err
}

/* ==================== 主题 ==================== */

/*
ListThemes 列出全部已安装主题
*/
func (d *DAO) ListThemes() ([]models.Theme, error) {
	var themes []models.Theme
	err := d.DB.Order("name ASC").Find(&themes).Error
	return themes, err
}

/*
GetTheme 根据 slug 获取主题
*/
func (d *DAO) GetTheme(slug string) (*models.Theme, error) {
	var t models.Theme
	if err := d.DB.First(&t, "slug = ?", slug).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

/*
GetActiveTheme 当前启用的主题
*/
func (d *DAO) GetActiveTheme() (*models.Theme, error) {
	var t models.Theme
	if err := d.DB.Where("active = ?", true).First(&t).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

/*
ThemesInstalled 给定 slug 中已安装的那些
*/
func (d *DAO) ThemesInstalled(slugs []string) ([]string, error) {
	var found []string
	err := d.DB.Model(&models.Theme{}).Where("slug IN ?", slugs).Pluck("slug", &found).Error
	return found, err
}

/*
UpsertTheme 创建或更新主题记录
*/
func (d *DAO) UpsertTheme(t *models.Theme) error {
	return d.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "version", "template", "active", "update_version", "updated_at"}),
	}).Create(t).Error
}

/*
CountThemeUpdates 有可用更新的主题数
*/
func (d *DAO) CountThemeUpdates() (int64, error) {
	var count int64
	err := d.DB.Model(&models.Theme{}).Where("update_version <> ''").Count(&count).Error
	return count, err
}

/* ==================== 脚本注册表 ==================== */

/*
ListScripts 列出全部已注册脚本
*/
func (d *DAO) ListScripts() ([]models.Script, error) {
	var scripts []models.Script
	err := d.DB.Order("handle ASC").Find(&scripts).Error
	return scripts, err
}

/*
UpsertScript 创建或更新脚本注册
*/
func (d *DAO) UpsertScript(s *models.Script) error {
	return d.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "handle"}},
		DoUpdates: clause.AssignmentColumns([]string{"src", "version", "deps", "enqueued", "updated_at"}),
	}).Create(s).Error
}
