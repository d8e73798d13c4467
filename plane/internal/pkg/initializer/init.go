package initializer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db/dao"
	"sashosting/plane/internal/pkg/logger"
	"sashosting/plane/internal/service"

	"go.uber.org/zap"
)

// IsFirstRun 检查是否首次运行
func IsFirstRun(configPath string) bool {
	_, err := os.Stat(configPath)
	return os.IsNotExist(err)
}

/*
InitConfig 初始化配置文件
功能：写入默认配置，并为会话与生命周期回调生成随机密钥
*/
func InitConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	cfg := config.DefaultConfig()
	cfg.Auth.JWTSecret = generateRandomSecret(32)
	cfg.Hooks.Secret = generateRandomSecret(24)

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("保存配置文件失败: %w", err)
	}

	logger.Info("✓ 配置文件已生成", zap.String("path", configPath))
	return nil
}

// InitDirectories 初始化必要的目录
func InitDirectories() error {
	dirs := []string{
		"./data",
		"./logs",
		"./certs",
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}

	return nil
}

/* generateRandomSecret 生成 n 字节随机密钥的十六进制串 */
func generateRandomSecret(n int) string {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("sashosting-fallback-%d-%d", os.Getpid(), os.Getppid())
	}
	return hex.EncodeToString(bytes)
}

/*
InitAdmin 初始化默认管理员
功能：站点尚无任何账户时创建 administrator，并在控制台打印凭据。
账户已存在时跳过。
*/
func InitAdmin(ctx context.Context, d *dao.DAO, email string) error {
	count, err := d.WithContext(ctx).CountUsers()
	if err != nil {
		return fmt.Errorf("查询用户数量失败: %w", err)
	}
	if count > 0 {
		return nil
	}

	password, err := service.GeneratePassword(20)
	if err != nil {
		return fmt.Errorf("生成随机密码失败: %w", err)
	}
	if _, err := service.NewUserService(d).CreateAdministrator(ctx, "admin", email, password); err != nil {
		return fmt.Errorf("创建管理员失败: %w", err)
	}

	fmt.Println("")
	fmt.Println("╔══════════════════════════════════════════════════╗")
	fmt.Println("║           默认管理员账户已创建                   ║")
	fmt.Println("╠══════════════════════════════════════════════════╣")
	fmt.Printf("║  用户名: %-39s║\n", "admin")
	fmt.Printf("║  密  码: %-39s║\n", password)
	fmt.Println("╠══════════════════════════════════════════════════╣")
	fmt.Println("║  ⚠ 请登录后立即修改密码！                       ║")
	fmt.Println("╚══════════════════════════════════════════════════╝")
	fmt.Println("")

	logger.Info("✓ 默认管理员已创建", zap.String("username", "admin"))
	return nil
}

// PrintWelcome 打印欢迎信息
func PrintWelcome() {
	fmt.Println(`
╔═══════════════════════════════════════════════════════╗
║                                                       ║
║              SAS Hosting Control Service              ║
║                                                       ║
║   首次启动：正在生成配置文件与自签名证书              ║
║                                                       ║
╚═══════════════════════════════════════════════════════╝`)
}
