package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"sashosting/plane/internal/config"
	"sashosting/plane/internal/db/cache"
	"sashosting/plane/internal/db/models"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	// 会话签名密钥在 transient 存储中的键名
	SessionSecretKey = "system:session:secret"
	// 会话签名密钥长度（64字节 = 512位）
	SessionSecretLength = 64
	// 配置文件中的占位密钥，遇到时改用存储中的随机密钥
	placeholderSecret = "change-this-secret-in-production"
)

/* ErrInvalidSession 会话令牌无效或已过期 */
var ErrInvalidSession = errors.New("invalid or expired session")

/* SessionClaims 会话令牌内容 */
type SessionClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

/*
SessionManager 会话管理器
功能：签发与校验 HMAC-SHA256 会话令牌（以 Cookie 下发）。
配置中的密钥为占位值或过短时，从 transient 存储加载随机密钥，不存在则生成并写回，
多实例共享同一存储时会话互通。
*/
type SessionManager struct {
	store      cache.Store
	cookieName string
	lifetime   time.Duration
	logger     *zap.Logger

	mu     sync.RWMutex
	secret []byte
}

/* NewSessionManager 创建会话管理器 */
func NewSessionManager(store cache.Store, cfg config.AuthConfig) *SessionManager {
	lifetime := time.Duration(cfg.JWTExpiration) * time.Hour
	if lifetime <= 0 {
		lifetime = 14 * 24 * time.Hour
	}
	name := cfg.CookieName
	if name == "" {
		name = "sas_session"
	}
	m := &SessionManager{
		store:      store,
		cookieName: name,
		lifetime:   lifetime,
		logger:     zap.L().Named("session"),
	}
	if cfg.JWTSecret != placeholderSecret && len(cfg.JWTSecret) >= 16 {
		m.secret = []byte(cfg.JWTSecret)
	}
	return m
}

/* Start 确定签名密钥 */
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.RLock()
	ready := m.secret != nil
	m.mu.RUnlock()
	if ready {
		return nil
	}

	secret, err := m.loadOrGenerateSecret(ctx)
	if err != nil {
		return fmt.Errorf("初始化会话密钥失败: %w", err)
	}
	m.mu.Lock()
	m.secret = []byte(secret)
	m.mu.Unlock()
	return nil
}

func (m *SessionManager) loadOrGenerateSecret(ctx context.Context) (string, error) {
	raw, ok, err := m.store.Get(ctx, SessionSecretKey)
	if err == nil && ok && len(raw) > 0 {
		m.logger.Info("✓ 从存储加载会话密钥")
		return string(raw), nil
	}

	buf := make([]byte, SessionSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成随机密钥失败: %w", err)
	}
	secret := hex.EncodeToString(buf)

	/* 永久保存（不设置过期时间） */
	if err := m.store.Set(ctx, SessionSecretKey, []byte(secret), 0); err != nil {
		m.logger.Warn("保存会话密钥失败（将仅使用内存密钥）", zap.Error(err))
	}
	return secret, nil
}

func (m *SessionManager) key() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.secret
}

/* CookieName 会话 Cookie 名 */
func (m *SessionManager) CookieName() string { return m.cookieName }

/* Lifetime 会话有效期 */
func (m *SessionManager) Lifetime() time.Duration { return m.lifetime }

/* Issue 为账户签发会话令牌 */
func (m *SessionManager) Issue(user *models.User) (string, error) {
	key := m.key()
	if key == nil {
		return "", errors.New("会话密钥未初始化")
	}
	now := time.Now()
	claims := SessionClaims{
		UserID:   user.ID,
		Username: user.Login,
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("签名会话令牌失败: %w", err)
	}
	return signed, nil
}

/* Parse 校验会话令牌 */
func (m *SessionManager) Parse(token string) (*SessionClaims, error) {
	key := m.key()
	if key == nil || token == "" {
		return nil, ErrInvalidSession
	}
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("不支持的签名方法: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
