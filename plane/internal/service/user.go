package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"sashosting/plane/internal/db/dao"
	"sashosting/plane/internal/db/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

/* ErrUserExists 登录名或邮箱已被占用 */
var ErrUserExists = errors.New("user already exists")

/*
bcryptCost bcrypt 哈希成本因子
OWASP 推荐生产环境至少 12
*/
const bcryptCost = 12

/* 随机密码字符集，与 CMS 生成强密码时使用的字符一致 */
const (
	passwordChars        = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	passwordSpecialChars = "!@#$%^&*()"
	passwordExtraChars   = "-_ []{}<>~`+=,.;:/?|"
)

/*
HashPassword 使用 bcrypt 对密码进行哈希
*/
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("密码加密失败: %w", err)
	}
	return string(hashed), nil
}

/*
CheckPassword 验证密码是否匹配
*/
func CheckPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

/* GeneratePassword 生成包含特殊字符的随机密码 */
func GeneratePassword(n int) (string, error) {
	return randomFrom(passwordChars+passwordSpecialChars+passwordExtraChars, n)
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-']+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

/* SanitizeEmail 去除首尾空白，格式无效时返回空串 */
func SanitizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if !emailRegex.MatchString(email) {
		return ""
	}
	return email
}

/* SanitizeText 去除标签、换行与首尾空白 */
func SanitizeText(s string) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

/* NewUser 创建账户的参数 */
type NewUser struct {
	Login    string
	Email    string
	Password string
	Role     models.UserRole
	SSOUser  bool
}

/*
UserService 站点账户服务
功能：账户查找与创建。管理员创建与单点登录自动建号共用同一入口。
*/
type UserService struct {
	dao    *dao.DAO
	logger *zap.Logger
}

/* NewUserService 创建账户服务 */
func NewUserService(d *dao.DAO) *UserService {
	return &UserService{
		dao:    d,
		logger: zap.L().Named("user-service"),
	}
}

/*
Create 创建账户
功能：登录名或邮箱已存在时返回 ErrUserExists；密码以 bcrypt 存储
*/
func (s *UserService) Create(ctx context.Context, req NewUser) (*models.User, error) {
	d := s.dao.WithContext(ctx)
	exists, err := d.LoginOrEmailExists(req.Login, req.Email)
	if err != nil {
		return nil, fmt.Errorf("检查账户失败: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	hashed, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = models.RoleSubscriber
	}
	user := &models.User{
		Login:       req.Login,
		Email:       req.Email,
		Password:    hashed,
		DisplayName: req.Login,
		Role:        role,
		SSOUser:     req.SSOUser,
	}
	if err := d.CreateUser(user); err != nil {
		return nil, fmt.Errorf("创建账户失败: %w", err)
	}
	s.logger.Info("✓ 账户已创建",
		zap.String("id", user.ID),
		zap.String("login", user.Login),
		zap.String("role", string(user.Role)),
		zap.Bool("sso", user.SSOUser))
	return user, nil
}

/* CreateAdministrator 创建管理员账户 */
func (s *UserService) CreateAdministrator(ctx context.Context, login, email, password string) (*models.User, error) {
	return s.Create(ctx, NewUser{Login: login, Email: email, Password: password, Role: models.RoleAdministrator})
}

/* ByLogin 按登录名查找，不存在时返回 nil */
func (s *UserService) ByLogin(ctx context.Context, login string) (*models.User, error) {
	if login == "" {
		return nil, nil
	}
	return s.dao.WithContext(ctx).GetUserByLogin(login)
}

/* ByEmail 按邮箱查找，不存在时返回 nil */
func (s *UserService) ByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, nil
	}
	return s.dao.WithContext(ctx).GetUserByEmail(email)
}

/* ByID 按 ID 查找，不存在时返回 nil */
func (s *UserService) ByID(ctx context.Context, id string) (*models.User, error) {
	return s.dao.WithContext(ctx).GetUser(id)
}

/* TouchSSOLogin 记录最近一次单点登录时间 */
func (s *UserService) TouchSSOLogin(ctx context.Context, id string, at time.Time) error {
	return s.dao.WithContext(ctx).TouchSSOLogin(id, at)
}

/* Audit 写入审计日志，失败只记录警告 */
func (s *UserService) Audit(ctx context.Context, entry *models.AuditLog) {
	if err := s.dao.WithContext(ctx).CreateAuditLog(entry); err != nil {
		s.logger.Warn("写入审计日志失败", zap.String("action", entry.Action), zap.Error(err))
	}
}
