/*
Package server HTTP 服务器封装

HTTP/2：启用 TLS 时经 ALPN 协商 h2，未启用时以 h2c 明文提供 HTTP/2；
HTTP/3：基于 quic-go，必须配置 TLS。
*/
package server

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

/* HTTP2Server HTTP/1.1 + HTTP/2 服务器 */
type HTTP2Server struct {
	server *http.Server
}

/*
NewHTTP2Server 创建服务器
tlsConfig 为 nil 时使用 h2c 明文 HTTP/2
*/
func NewHTTP2Server(addr string, handler http.Handler, tlsConfig *tls.Config, readTimeout, writeTimeout time.Duration) *HTTP2Server {
	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          2 * time.Minute,
	}

	srv := &http.Server{
		Addr:              addr,
		TLSConfig:         tlsConfig,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}
	if tlsConfig == nil {
		srv.Handler = h2c.NewHandler(handler, h2s)
	} else {
		srv.Handler = handler
		_ = http2.ConfigureServer(srv, h2s)
	}
	return &HTTP2Server{server: srv}
}

/* Start 以 TLS 启动 */
func (s *HTTP2Server) Start(certFile, keyFile string) error {
	return s.server.ListenAndServeTLS(certFile, keyFile)
}

/* StartInsecure 以明文（h2c）启动 */
func (s *HTTP2Server) StartInsecure() error {
	return s.server.ListenAndServe()
}

/* Shutdown 优雅关闭，等待在途请求结束 */
func (s *HTTP2Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
