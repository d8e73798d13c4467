package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"regexp"
	"sync"
	"time"

	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db/cache"
	"sashosting/plane/internal/metrics"
	"sashosting/plane/internal/site"

	"go.uber.org/zap"
)

/* 后台扫描状态 */
const (
	ScanStatusPending   = "pending"
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"

	scanStatusPrefix = "sas_js_scan_"
)

var scanIDRe = regexp.MustCompile(`^scan_[A-Za-z0-9]{12}$`)

/* ErrSchedulerStopped 调度器已停止，不再接受任务 */
var ErrSchedulerStopped = errors.New("scan scheduler stopped")

/* ScanStatus 后台扫描状态，保存在 transient 中 */
type ScanStatus struct {
	Status      string          `json:"status"`
	MaxPages    int             `json:"max_pages,omitempty"`
	StartedAt   string          `json:"started_at,omitempty"`
	CompletedAt string          `json:"completed_at,omitempty"`
	Results     json.RawMessage `json:"results,omitempty"`
	Error       string          `json:"error,omitempty"`
}

/* Done 扫描是否已结束 */
func (s *ScanStatus) Done() bool {
	return s.Status == ScanStatusCompleted || s.Status == ScanStatusFailed
}

/* ScanJob 后台执行的扫描 */
type ScanJob func(ctx context.Context, maxPages int) (any, error)

/*
ScanScheduler 后台扫描调度器
功能：登记扫描后延迟执行，状态写入 transient（sas_js_scan_<id>），保留 status_ttl 秒。
Stop 会取消未开始的任务并等待执行中的任务退出。
*/
type ScanScheduler struct {
	store  cache.Store
	site   *site.Site
	delay  time.Duration
	ttl    time.Duration
	job    ScanJob
	logger *zap.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

/* NewScanScheduler 创建调度器 */
func NewScanScheduler(store cache.Store, s *site.Site, cfg config.ScanConfig) *ScanScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	delay := time.Duration(cfg.DeferDelay) * time.Second
	if delay < 0 {
		delay = 0
	}
	ttl := time.Duration(cfg.StatusTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ScanScheduler{
		store:  store,
		site:   s,
		delay:  delay,
		ttl:    ttl,
		logger: zap.L().Named("scan-scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

/* SetJob 设置后台任务 */
func (s *ScanScheduler) SetJob(job ScanJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job = job
}

/* ScanStatusKey 扫描状态的 transient 键 */
func ScanStatusKey(scanID string) string {
	return scanStatusPrefix + scanID
}

/* Schedule 登记一次全站扫描 */
func (s *ScanScheduler) Schedule(ctx context.Context, maxPages int) (*ScheduledScan, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrSchedulerStopped
	}
	if s.job == nil {
		s.mu.Unlock()
		return nil, errors.New("scan job not configured")
	}
	job := s.job
	s.wg.Add(1)
	s.mu.Unlock()

	id, err := randomAlnum(12)
	if err != nil {
		s.wg.Done()
		return nil, err
	}
	scanID := "scan_" + id

	status := &ScanStatus{
		Status:    ScanStatusPending,
		MaxPages:  maxPages,
		StartedAt: s.site.Now().Format(DateLayout),
	}
	if err := s.save(ctx, scanID, status); err != nil {
		s.wg.Done()
		return nil, err
	}

	go s.run(scanID, status, job)

	s.logger.Info("全站扫描已排入后台", zap.String("scan_id", scanID), zap.Int("max_pages", maxPages))
	return &ScheduledScan{
		ScanID:         scanID,
		Status:         "scheduled",
		Message:        "Full site scan has been scheduled. Check back in a few minutes.",
		CheckStatusURL: s.site.RESTURL("sas-hosting/v1/performance/scan-status/" + scanID),
	}, nil
}

func (s *ScanScheduler) run(scanID string, status *ScanStatus, job ScanJob) {
	defer s.wg.Done()

	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.ctx.Done():
		status.Status = ScanStatusFailed
		status.Error = "scan cancelled"
		s.saveDetached(scanID, status)
		return
	}

	status.Status = ScanStatusRunning
	s.saveDetached(scanID, status)

	start := time.Now()
	result, err := s.execute(job, status.MaxPages)
	metrics.ScanDuration.WithLabelValues("js_full_deferred").Observe(time.Since(start).Seconds())

	status.CompletedAt = s.site.Now().Format(DateLayout)
	if err == nil {
		var raw []byte
		raw, err = marshalNoEscape(result)
		status.Results = raw
	}
	if err != nil {
		s.logger.Error("后台扫描失败", zap.String("scan_id", scanID), zap.Error(err))
		status.Status = ScanStatusFailed
		status.Results = nil
		status.Error = "Scan failed"
		if ae, ok := AsAPIError(err); ok {
			status.Error = ae.Message
		}
	} else {
		status.Status = ScanStatusCompleted
		s.logger.Info("✓ 后台扫描完成", zap.String("scan_id", scanID), zap.Duration("elapsed", time.Since(start)))
	}
	s.saveDetached(scanID, status)
}

/* execute 执行任务并恢复 panic */
func (s *ScanScheduler) execute(job ScanJob, maxPages int) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("scan panic: %v", rec)
		}
	}()
	return job(s.ctx, maxPages)
}

func (s *ScanScheduler) save(ctx context.Context, scanID string, status *ScanStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, ScanStatusKey(scanID), raw, s.ttl)
}

/* saveDetached 后台写状态，不受调度器取消影响 */
func (s *ScanScheduler) saveDetached(scanID string, status *ScanStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.save(ctx, scanID, status); err != nil {
		s.logger.Warn("写入扫描状态失败", zap.String("scan_id", scanID), zap.Error(err))
	}
}

/*
Status 读取扫描状态
功能：ID 格式不符或状态已过期时返回 scan_not_found
*/
func (s *ScanScheduler) Status(ctx context.Context, scanID string) (*ScanStatus, error) {
	notFound := NewAPIError(http.StatusNotFound, "scan_not_found", "Scan not found or expired")
	if !scanIDRe.MatchString(scanID) {
		return nil, notFound
	}
	raw, ok, err := s.store.Get(ctx, ScanStatusKey(scanID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound
	}
	var status ScanStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

/* Stop 停止调度器并等待后台任务退出，ctx 到期时提前返回 */
func (s *ScanScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const alnum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

/* randomAlnum 生成指定长度的字母数字随机串 */
func randomAlnum(n int) (string, error) {
	return randomFrom(alnum, n)
}

func randomFrom(alphabet string, n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[v.Int64()]
	}
	return string(b), nil
}
