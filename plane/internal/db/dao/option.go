package dao

import (
	"sashosting/plane/internal/db/models"

	"gorm.io/gorm/clause"
)

/* ==================== 站点选项 ==================== */

/*
GetOption 读取选项，不存在时 ok=false
*/
func (d *DAO) GetOption(name string) (string, bool, error) {
	var opt models.Option
	if err := d.DB.First(&opt, "name = ?", name).Error; err != nil {
		if notFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return opt.Value, true, nil
}

/*
SetOption 写入选项（存在则覆盖）
*/
func (d *DAO) SetOption(name, value string) error {
	return d.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.Option{Name: name, Value: value}).Error
}

/*
DeleteOption 删除选项
*/
func (d *DAO) DeleteOption(name string) error {
	return d.DB.Where("name = ?", name).Delete(&models.Option{}).Error
}
