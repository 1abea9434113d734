package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/cryptocustody/internal/identity/application"
	"github.com/wyfcoding/cryptocustody/internal/identity/domain"
)

// RequireAuth 认证中间件：校验 Bearer 令牌并注入用户身份
func RequireAuth(tokens *application.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		claims, err := tokens.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil || claims.TokenType != application.TokenTypeAccess {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", string(claims.Role))
		c.Next()
	}
}

// RequireAdmin 管理员中间件，必须在 RequireAuth 之后挂载
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != string(domain.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin privilege required"})
			return
		}
		c.Next()
	}
}
