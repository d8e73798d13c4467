package middleware

import (
	"github.com/gin-gonic/gin"
)

/* 上下文键 */
const (
	ctxUserID   = "user_id"
	ctxUsername = "username"
	ctxRole     = "role"
)

/*
以下辅助函数从 Gin Context 中安全提取会话中间件注入的用户信息。
不存在或类型不匹配时返回零值。
*/

/* GetUserID 从上下文安全提取用户 ID，未登录时为空 */
func GetUserID(c *gin.Context) string {
	v, _ := c.Get(ctxUserID)
	s, _ := v.(string)
	return s
}

/* GetUsername 从上下文安全提取登录名 */
func GetUsername(c *gin.Context) string {
	v, _ := c.Get(ctxUsername)
	s, _ := v.(string)
	return s
}

/* GetRole 从上下文安全提取角色 */
func GetRole(c *gin.Context) string {
	v, _ := c.Get(ctxRole)
	s, _ := v.(string)
	return s
}
