package middleware

import (
	"sashosting/plane/internal/service"

	"github.com/gin-gonic/gin"
)

/*
Session 会话中间件
功能：解析会话 Cookie，有效时写入 user_id / username / role。
无 Cookie 或解析失败时按未登录继续处理，不拒绝请求。
*/
func Session(sessions *service.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(sessions.CookieName())
		if err == nil && token != "" {
			if claims, err := sessions.Parse(token); err == nil {
				c.Set(ctxUserID, claims.UserID)
				c.Set(ctxUsername, claims.Username)
				c.Set(ctxRole, claims.Role)
			}
		}
		c.Next()
	}
}
