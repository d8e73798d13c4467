package server

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/quic-go/quic-go/http3"
)

/* HTTP3Server QUIC 上的 HTTP/3 服务器 */
type HTTP3Server struct {
	server *http3.Server
}

/* NewHTTP3Server 创建服务器，tlsConfig 不能为空 */
func NewHTTP3Server(addr string, handler http.Handler, tlsConfig *tls.Config) *HTTP3Server {
	return &HTTP3Server{
		server: &http3.Server{
			Addr:      addr,
			Handler:   handler,
			TLSConfig: http3.ConfigureTLSConfig(tlsConfig),
		},
	}
}

/* Start 启动监听 */
func (s *HTTP3Server) Start() error {
	return s.server.ListenAndServe()
}

/* Shutdown 关闭服务器 */
func (s *HTTP3Server) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.server.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

/*
AltSvc 在 HTTP/2 响应中通告 HTTP/3 端点
功能：客户端据此在后续请求中切换到 QUIC
*/
func (s *HTTP3Server) AltSvc(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.server.SetQUICHeaders(w.Header())
		next.ServeHTTP(w, r)
	})
}
