package dao

import (
	"time"

	"sashosting/plane/internal/db/models"
)

/* ==================== 用户 ==================== */

/*
GetUser 根据ID获取用户
*/
func (d *DAO) GetUser(id string) (*models.User, error) {
	var user models.User
	if err := d.DB.First(&user, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

/*
GetUserByLogin 根据登录名获取用户
*/
func (d *DAO) GetUserByLogin(login string) (*models.User, error) {
	var user models.User
	if err := d.DB.Where("login = ?", login).First(&user).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

/*
GetUserByEmail 根据邮箱获取用户
*/
func (d *DAO) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := d.DB.Where("email = ?", email).First(&user).Error; err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

/*
LoginOrEmailExists 登录名或邮箱是否已被占用
*/
func (d *DAO) LoginOrEmailExists(login, email string) (bool, error) {
	var count int64
	err := d.DB.Model(&models.User{}).
		Where("login = ? OR email = ?", login, email).
		Count(&count).Error
	return count > 0, err
}

/*
CreateUser 创建用户
*/
func (d *DAO) CreateUser(user *models.User) error {
	return d.DB.Create(user).Error
}

/*
TouchSSOLogin 记录最近一次单点登录时间
*/
func (d *DAO) TouchSSOLogin(userID string, at time.Time) error {
	return d.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_sso_login", at).Error
}

/*
CountUsers 用户总数
*/
func (d *DAO) CountUsers() (int64, error) {
	var count int64
	err := d.DB.Model(&models.User{}).Count(&count).Error
	return count, err
}
