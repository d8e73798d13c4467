package middleware

import (
	"net/http"
	"strings"

	"sashosting/plane/internal/sso"

	"github.com/gin-gonic/gin"
)

/*
SSOIntercept 单点登录入口
功能：任何携带 sas_sso_token / sas-sso-token 的请求在此处理并终止；
成功时下发会话 Cookie 并渲染跳转页，失败时渲染错误页，已登录时直接 302。
必须挂在 Session 之后。
*/
func SSOIntercept(bridge *sso.Bridge) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := sso.RequestFromQuery(c.Request.URL.Query())
		if !req.TokenPresent {
			c.Next()
			return
		}
		req.SessionUserID = GetUserID(c)

		out := bridge.Handle(c.Request.Context(), req)
		if out.Session != "" {
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     bridge.SessionCookieName(),
				Value:    out.Session,
				Path:     "/",
				Expires:  bridge.SessionExpiry(),
				HttpOnly: true,
				Secure:   c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https"),
				SameSite: http.SameSiteLaxMode,
			})
		}
		switch {
		case out.Page != nil:
		case out.RedirectURL != "":
			c.Redirect(out.Status, out.RedirectURL)
			c.Abort()
			return
		default:
			c.AbortWithStatus(out.Status)
			return
		}
		c.Data(out.Status, "text/html; charset=UTF-8", out.Page)
		c.Abort()
	}
}
