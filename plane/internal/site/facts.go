package site

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

/*
PlatformFacts 平台版本与运行限制
功能：由宿主适配层写入站点选项；MySQL 版本缺省时直接查询数据库
*/
type PlatformFacts struct {
	WPVersion        string
	CoreUpdate       string /* 非空表示核心有可用更新 */
	PHPVersion       string
	MySQLVersion     string
	ServerSoftware   string
	PHPExtensions    []string
	UploadMaxBytes   int64
	PostMaxSize      string
	MemoryLimit      string
	MaxExecutionTime string
	UploadDir        string
}

/* HostFacts 服务所在主机信息 */
type HostFacts struct {
	OS                string  `json:"os"`
	Platform          string  `json:"platform"`
	PlatformVersion   string  `json:"platform_version"`
	KernelArch        string  `json:"kernel_arch"`
	UptimeSeconds     uint64  `json:"uptime_seconds"`
	MemoryTotal       string  `json:"memory_total"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}

/* PlatformFacts 读取平台信息 */
func (s *Site) PlatformFacts(ctx context.Context) (*PlatformFacts, error) {
	d := s.dao.WithContext(ctx)
	get := func(name string) (string, error) {
		v, _, err := d.GetOption(name)
		return strings.TrimSpace(v), err
	}

	f := &PlatformFacts{}
	var err error
	fields := []struct {
		name string
		dst  *string
	}{
		{OptionWPVersion, &f.WPVersion},
		{OptionCoreUpdate, &f.CoreUpdate},
		{OptionPHPVersion, &f.PHPVersion},
		{OptionMySQLVersion, &f.MySQLVersion},
		{OptionServerSoftware, &f.ServerSoftware},
		{OptionPostMax, &f.PostMaxSize},
		{OptionMemoryLimit, &f.MemoryLimit},
		{OptionMaxExecTime, &f.MaxExecutionTime},
		{OptionUploadDir, &f.UploadDir},
	}
	for _, fd := range fields {
		if *fd.dst, err = get(fd.name); err != nil {
			return nil, err
		}
	}

	ext, err := get(OptionPHPExtensions)
	if err != nil {
		return nil, err
	}
	for _, e := range strings.Split(ext, ",") {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			f.PHPExtensions = append(f.PHPExtensions, e)
		}
	}

	upload, err := get(OptionUploadMax)
	if err != nil {
		return nil, err
	}
	f.UploadMaxBytes, _ = strconv.ParseInt(upload, 10, 64)

	if f.MySQLVersion == "" {
		f.MySQLVersion = s.databaseVersion(ctx)
	}
	if f.ServerSoftware == "" {
		f.ServerSoftware = "Unknown"
	}
	return f, nil
}

/* databaseVersion 查询数据库版本，失败时返回空串 */
func (s *Site) databaseVersion(ctx context.Context) string {
	db := s.dao.DB.WithContext(ctx)
	var query string
	switch db.Dialector.Name() {
	case "sqlite":
		query = "SELECT sqlite_version()"
	case "postgres":
		query = "SHOW server_version"
	default:
		query = "SELECT VERSION()"
	}
	var v string
	if err := db.Raw(query).Scan(&v).Error; err != nil {
		zap.L().Named("site").Debug("查询数据库版本失败", zap.Error(err))
		return ""
	}
	return v
}

/*
HostFactsNow 采集主机信息
功能：gopsutil 采集失败的字段保持零值，不影响接口返回
*/
func HostFactsNow(ctx context.Context) HostFacts {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var hf HostFacts
	if info, err := host.InfoWithContext(ctx); err == nil {
		hf.OS = info.OS
		hf.Platform = info.Platform
		hf.PlatformVersion = info.PlatformVersion
		hf.KernelArch = info.KernelArch
		hf.UptimeSeconds = info.Uptime
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		hf.MemoryTotal = FormatSize(int64(vm.Total))
		hf.MemoryUsedPercent = float64(int(vm.UsedPercent*10+0.5)) / 10
	}
	return hf
}
