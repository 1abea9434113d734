// Package application 身份上下文的用例：注册、登录、用户管理
package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wyfcoding/cryptocustody/internal/identity/domain"
	"github.com/wyfcoding/cryptocustody/pkg/errs"
	"github.com/wyfcoding/cryptocustody/pkg/logger"
	"github.com/wyfcoding/cryptocustody/pkg/utils"
)

// 注册时自动配号钱包的币种
var defaultCurrencies = []string{"USDT", "BTC", "ETH"}

// WalletProvisioner 钱包配号端口，由账务上下文提供实现
type WalletProvisioner interface {
	ProvisionWallets(ctx context.Context, userID string, currencies []string) error
}

// IdentityService 身份服务
type IdentityService struct {
	users       domain.UserRepository
	provisioner WalletProvisioner
	tokens      *TokenManager
}

// NewIdentityService 创建身份服务
func NewIdentityService(users domain.UserRepository, provisioner WalletProvisioner, tokens *TokenManager) *IdentityService {
	return &IdentityService{
		users:       users,
		provisioner: provisioner,
		tokens:      tokens,
	}
}

// Register 注册新用户
// 用户名与邮箱唯一；生成全局唯一推荐码；推荐码在注册时解析，
// 未命中任何用户的码被丢弃；注册成功后为默认币种配号钱包。
func (s *IdentityService) Register(ctx context.Context, username, email, password, referredBy string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" {
		return nil, errs.Validation("username and email are required")
	}
	if len(password) < 6 {
		return nil, errs.Validation("password must be at least 6 characters")
	}

	existing, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "user lookup failed", err)
	}
	if existing != nil {
		return nil, errs.StateConflict("username already taken")
	}
	existing, err = s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "user lookup failed", err)
	}
	if existing != nil {
		return nil, errs.StateConflict("email already registered")
	}

	referredBy = strings.TrimSpace(referredBy)
	if referredBy != "" {
		referrer, err := s.users.FindByReferralCode(ctx, referredBy)
		if err != nil {
			return nil, errs.Wrap(errs.KindDependency, "referrer lookup failed", err)
		}
		if referrer == nil {
			logger.Warn(ctx, "Unknown referral code ignored", "referred_by", referredBy)
			referredBy = ""
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "password hashing failed", err)
	}

	user := &domain.User{
		UserID:       fmt.Sprintf("USR-%d", utils.GenID()),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		Status:       domain.StatusActive,
		ReferralCode: strings.ToUpper(utils.RandString(8)),
		ReferredBy:   referredBy,
	}
	if err := s.users.Create(ctx, user); err != nil {
		logger.Error(ctx, "Failed to create user", "username", username, "error", err)
		return nil, errs.Wrap(errs.KindDependency, "failed to create user", err)
	}

	if err := s.provisioner.ProvisionWallets(ctx, user.UserID, defaultCurrencies); err != nil {
		return nil, err
	}

	logger.Info(ctx, "User registered",
		"user_id", user.UserID,
		"username", username,
		"referred_by", user.ReferredBy,
	)
	return user, nil
}

// LoginResult 登录结果，含访问令牌与刷新令牌
type LoginResult struct {
	User         *domain.User `json:"user"`
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

func (s *IdentityService) issueTokens(user *domain.User) (*LoginResult, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "token issuance failed", err)
	}
	refresh, _, err := s.tokens.IssueRefresh(user)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "token issuance failed", err)
	}
	return &LoginResult{User: user, Token: token, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

// Login 用户登录，冻结账户拒绝签发令牌
func (s *IdentityService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, errs.Validation("username and password are required")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "user lookup failed", err)
	}
	if user == nil {
		return nil, errs.Validation("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errs.Validation("invalid credentials")
	}
	if user.Blocked() {
		return nil, errs.StateConflict("account is blocked")
	}

	result, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "User logged in", "user_id", user.UserID)
	return result, nil
}

// Refresh 以刷新令牌换取新的令牌对；用户被冻结后刷新同样被拒绝
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, errs.Validation("refresh_token is required")
	}

	claims, err := s.tokens.Parse(refreshToken)
	if err != nil || claims.TokenType != TokenTypeRefresh {
		return nil, errs.Validation("invalid refresh token")
	}

	user, err := s.users.FindByUserID(ctx, claims.UserID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "user lookup failed", err)
	}
	if user == nil {
		return nil, errs.NotFound("user")
	}
	if user.Blocked() {
		return nil, errs.StateConflict("account is blocked")
	}

	return s.issueTokens(user)
}

// Profile 获取用户资料
func (s *IdentityService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.FindByUserID(ctx, userID)
	if err != nil {
		return nil, errs.Wrap(errs.KindDependency, "user lookup failed", err)
	}
	if user == nil {
		return nil, errs.NotFound("user")
	}
	return user, nil
}

// ListUsers 分页获取用户列表（管理员）
func (s *IdentityService) ListUsers(ctx context.Context, limit, offset int) ([]*domain.User, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	users, total, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, errs.Wrap(errs.KindDependency, "user list failed", err)
	}
	return users, total, nil
}

// UpdateUserStatus 冻结或解冻账户（管理员）
func (s *IdentityService) UpdateUserStatus(ctx context.Context, userID string, status domain.Status) error {
	if status != domain.StatusActive && status != domain.StatusBlocked {
		return errs.Validation("status must be ACTIVE or BLOCKED")
	}

	user, err := s.users.FindByUserID(ctx, userID)
	if err != nil {
		return errs.Wrap(errs.KindDependency, "user lookup failed", err)
	}
	if user == nil {
		return errs.NotFound("user")
	}
	// 管理员账户不可被冻结
	if user.Role == domain.RoleAdmin && status == domain.StatusBlocked {
		return errs.StateConflict("cannot block an admin account")
	}

	if err := s.users.UpdateStatus(ctx, userID, status); err != nil {
		return errs.Wrap(errs.KindDependency, "status update failed", err)
	}
	logger.Info(ctx, "User status updated", "user_id", userID, "status", status)
	return nil
}

// PromoteUser 变更账户角色（管理员）
func (s *IdentityService) PromoteUser(ctx context.Context, userID string, role domain.Role) error {
	if role != domain.RoleUser && role != domain.RoleAdmin {
		return errs.Validation("role must be USER or ADMIN")
	}

	user, err := s.users.FindByUserID(ctx, userID)
	if err != nil {
		return errs.Wrap(errs.KindDependency, "user lookup failed", err)
	}
	if user == nil {
		return errs.NotFound("user")
	}

	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		return errs.Wrap(errs.KindDependency, "role update failed", err)
	}
	logger.Info(ctx, "User role updated", "user_id", userID, "role", role)
	return nil
}
