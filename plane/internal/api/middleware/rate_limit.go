package middleware

import (
	"crypto/md5"
	"encoding/hex"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"sashosting/plane/internal/api/response"
	"sashosting/plane/internal/service"

	"github.com/gin-gonic/gin"
)

/* clientIPHeaders 客户端地址来源，按可信度排列 */
var clientIPHeaders = []string{
	"X-Real-IP",
	"X-Forwarded-For",
	"Client-IP",
	"X-Client-IP",
	"X-Cluster-Client-IP",
}

/* publicIP 是否为可路由的公网地址（排除私有、回环、链路本地与保留段） */
func publicIP(raw string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() || addr.IsUnspecified() || addr.IsInterfaceLocalMulticast() {
		return false
	}
	if addr.Is4() {
		for _, p := range reservedV4 {
			if p.Contains(addr) {
				return false
			}
		}
	}
	return true
}

var reservedV4 = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

/*
ClientIP 客户端地址
功能：依次取代理头中第一个公网地址（X-Forwarded-For 取首段）；
都不可用时回退到连接地址，连接地址也没有时用 UA、语言与端口的摘要区分客户端
*/
func ClientIP(r *http.Request) string {
	for _, h := range clientIPHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		v = strings.TrimSpace(v)
		if publicIP(v) {
			return v
		}
	}

	host, port, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if publicIP(host) {
		return host
	}
	if host != "" {
		return host
	}
	sum := md5.Sum([]byte(r.UserAgent() + r.Header.Get("Accept-Language") + port))
	return "unknown_" + hex.EncodeToString(sum[:])
}

/* Fingerprint 限流指纹：客户端地址加请求路径摘要，同一客户端按路由分别计数 */
func Fingerprint(r *http.Request) string {
	sum := md5.Sum([]byte(r.RequestURI))
	return ClientIP(r) + "_" + hex.EncodeToString(sum[:])
}

/*
RateLimit 返回限流中间件
功能：每个 endpoint 每分钟最多 max 次。放行时输出 X-RateLimit-*，
超限返回 429 并带 Retry-After
*/
func RateLimit(limiter *service.RateLimiter, endpoint string, max int) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := limiter.Allow(c.Request.Context(), endpoint, Fingerprint(c.Request), max)

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(d.RetryAfter))
			response.GinTooManyRequests(c, "rate_limit_exceeded", "Rate limit exceeded. Please try again later.")
			return
		}
		c.Next()
	}
}
