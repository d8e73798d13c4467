package ws

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"sashosting/plane/internal/api/response"
	"sashosting/plane/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = time.Second
	writeWait           = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		/* 浏览器连接已由 CORS 中间件校验 Origin */
		return true
	},
}

/* StatusSource 扫描状态来源 */
type StatusSource interface {
	Status(ctx context.Context, scanID string) (*service.ScanStatus, error)
}

/*
Server 后台扫描状态推送
功能：连接建立后按固定间隔读取扫描状态并推送，状态变化才发送；
扫描结束（completed / failed）后发送最终状态并关闭连接
*/
type Server struct {
	source         StatusSource
	maxConnections int
	active         atomic.Int64
	interval       time.Duration
	logger         *zap.Logger
}

/*
NewServer 创建推送服务
maxConnections 为 0 表示不限制
*/
func NewServer(source StatusSource, maxConnections int) *Server {
	return &Server{
		source:         source,
		maxConnections: maxConnections,
		interval:       defaultPollInterval,
		logger:         zap.L().Named("ws"),
	}
}

/* SetInterval 调整轮询间隔，供测试使用 */
func (s *Server) SetInterval(d time.Duration) {
	s.interval = d
}

/* ActiveConnections 当前连接数 */
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

func (s *Server) atCapacity() bool {
	return s.maxConnections > 0 && s.active.Load() >= int64(s.maxConnections)
}

/*
HandleScanStatus WebSocket 处理函数
功能：扫描 ID 无效或已过期时在升级前返回 404
*/
func (s *Server) HandleScanStatus(c *gin.Context) {
	scanID := c.Param("scan_id")
	status, err := s.source.Status(c.Request.Context(), scanID)
	if err != nil {
		response.FromError(c, err, "scan_error", "Could not read scan status.")
		return
	}

	/* 检查连接数限制，防止资源耗尽 */
	if s.atCapacity() {
		s.logger.Warn("WebSocket 连接数已达上限，拒绝新连接", zap.Int("max", s.maxConnections))
		response.GinError(c, http.StatusServiceUnavailable, "too_many_connections", "Too many connections.")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("WebSocket 升级失败", zap.Error(err))
		return
	}
	s.active.Add(1)
	defer s.active.Add(-1)
	defer conn.Close()

	s.stream(conn, scanID, status)
}

func (s *Server) stream(conn *websocket.Conn, scanID string, status *service.ScanStatus) {
	/* 读循环只用于感知客户端断开 */
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := ""
	for {
		if status.Status != last || status.Done() {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(status); err != nil {
				s.logger.Debug("推送扫描状态失败", zap.String("scan_id", scanID), zap.Error(err))
				return
			}
			last = status.Status
		}
		if status.Done() {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan finished"),
				time.Now().Add(writeWait))
			return
		}

		select {
		case <-closed:
			return
		case <-ticker.C:
		}

		next, err := s.source.Status(context.Background(), scanID)
		if err != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "scan status unavailable"),
				time.Now().Add(writeWait))
			return
		}
		status = next
	}
}
