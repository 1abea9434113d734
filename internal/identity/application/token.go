package application

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wyfcoding/cryptocustody/internal/identity/domain"
)

// 令牌种类，刷新令牌不能当作访问令牌使用
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims 令牌的自定义声明
type Claims struct {
	UserID    string      `json:"user_id"`
	Role      domain.Role `json:"role"`
	TokenType string      `json:"typ"`
	jwt.RegisteredClaims
}

// TokenManager JWT 访问/刷新令牌的签发与校验
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (m *TokenManager) issue(user *domain.User, tokenType string, ttl time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(ttl)
	claims := Claims{
		UserID:    user.UserID,
		Role:      user.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Issue 为用户签发访问令牌
func (m *TokenManager) Issue(user *domain.User) (string, time.Time, error) {
	return m.issue(user, TokenTypeAccess, m.accessTTL)
}

// IssueRefresh 为用户签发刷新令牌
func (m *TokenManager) IssueRefresh(user *domain.User) (string, time.Time, error) {
	return m.issue(user, TokenTypeRefresh, m.refreshTTL)
}

// Parse 校验令牌并返回声明
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
