package models

import (
	"time"
)

/*
UserRole 站点用户角色
功能：与 CMS 的内置角色一一对应
*/
type UserRole string

const (
	RoleAdministrator UserRole = "administrator"
	RoleEditor        UserRole = "editor"
	RoleAuthor        UserRole = "author"
	RoleContributor   UserRole = "contributor"
	RoleSubscriber    UserRole = "subscriber"
)

/* ValidRole 判断角色名是否为已知角色 */
func ValidRole(r string) bool {
	switch UserRole(r) {
	case RoleAdministrator, RoleEditor, RoleAuthor, RoleContributor, RoleSubscriber:
		return true
	}
	return false
}

/*
User 站点用户
功能：本地账户。SSOUser 标记由单点登录自动创建的账户，登出时据此决定是否回报提供方。
*/
type User struct {
	BaseModel
	Login        string     `gorm:"type:varchar(60);uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"email"`
	Password     string     `gorm:"type:varchar(256);not null" json:"-"`
	DisplayName  string     `gorm:"type:varchar(250)" json:"display_name"`
	Role         UserRole   `gorm:"type:varchar(32);default:'subscriber';not null" json:"role"`
	SSOUser      bool       `gorm:"default:false;not null" json:"sso_user"`
	LastSSOLogin *time.Time `json:"last_sso_login,omitempty"`
}

func (User) TableName() string {
	return "users"
}
