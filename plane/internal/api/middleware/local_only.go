package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"

	"sashosting/plane/internal/api/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
LocalOnly 本地访问限制中间件
功能：仅允许回环地址访问，用于 /metrics 与 /internal 下的运维和回调端点。
只看连接地址，不信任代理头。
*/
func LocalOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			zap.L().Warn("拒绝非本地访问", zap.String("path", c.Request.URL.Path), zap.String("remote", host))
			response.GinForbidden(c, "local_only", "This endpoint is only available locally.")
			return
		}
		c.Next()
	}
}

/*
HookSecret 回调密钥校验
功能：secret 非空时要求 X-Hook-Secret 头与之相同
*/
func HookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Hook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.GinError(c, http.StatusUnauthorized, "invalid_hook_secret", "Invalid hook secret.")
			return
		}
		c.Next()
	}
}
