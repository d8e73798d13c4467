package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sashosting/plane/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

/* fakeSource 前两次读取返回 pending，之后返回 completed */
type fakeSource struct {
	mu    sync.Mutex
	reads int
}

func (f *fakeSource) Status(_ context.Context, scanID string) (*service.ScanStatus, error) {
	if scanID != "scan_abcdefghijkl" {
		return nil, service.NewAPIError(http.StatusNotFound, "scan_not_found", "Scan not found or expired")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.reads <= 2 {
		return &service.ScanStatus{Status: service.ScanStatusPending, MaxPages: 50}, nil
	}
	return &service.ScanStatus{Status: service.ScanStatusCompleted, Results: []byte(`{"ok":true}`)}, nil
}

func newTestServer(t *testing.T, max int) (*Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := NewServer(&fakeSource{}, max)
	s.SetInterval(10 * time.Millisecond)
	r := gin.New()
	r.GET("/ws/scan/:scan_id", s.HandleScanStatus)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return s, srv
}

func wsURL(srv *httptest.Server, id string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/scan/" + id
}

func TestHandleScanStatusStreamsUntilDone(t *testing.T) {
	_, srv := newTestServer(t, 0)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "scan_abcdefghijkl"), nil)
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var got []string
	for {
		var st service.ScanStatus
		if err := conn.ReadJSON(&st); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("读取状态失败: %v", err)
			}
			break
		}
		got = append(got, st.Status)
	}

	if len(got) != 2 || got[0] != service.ScanStatusPending || got[1] != service.ScanStatusCompleted {
		t.Errorf("状态变化才推送，期望 [pending completed]，实际 %v", got)
	}
}

func TestHandleScanStatusUnknownScan(t *testing.T) {
	_, srv := newTestServer(t, 0)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "scan_nope"), nil)
	if err == nil {
		t.Fatal("未知扫描不应升级连接")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("未知扫描应返回 404")
	}
}

func TestHandleScanStatusCapacity(t *testing.T) {
	s, srv := newTestServer(t, 1)
	s.active.Store(1)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "scan_abcdefghijkl"), nil)
	if err == nil {
		t.Fatal("超出连接上限不应升级")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("超出连接上限应返回 503")
	}
}
