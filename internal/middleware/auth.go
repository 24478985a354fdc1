package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailguard/backend/internal/auth"
	"mailguard/backend/internal/domain"
)

const (
	// AccessTokenCookie 浏览器端保存访问令牌的 Cookie 名。
	AccessTokenCookie = "access_token"

	principalKey = "principal"
)

// AuthRequired 访问令牌认证中间件。
type AuthRequired struct {
	verifier *auth.Service
	log      *zap.Logger
}

// NewAuthRequired 创建认证中间件。
func NewAuthRequired(verifier *auth.Service, log *zap.Logger) *AuthRequired {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthRequired{verifier: verifier, log: log}
}

// Handler 验证访问令牌并将主体信息写入请求上下文。
func (a *AuthRequired) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := a.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "authentication required",
			})
			c.Abort()
			return
		}

		principal, err := a.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			a.log.Warn("token verification failed",
				zap.String("ip", c.ClientIP()),
				zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(principalKey, *principal)
		c.Next()
	}
}

// extractToken 依次从 Authorization 头和 Cookie 提取令牌。
func (a *AuthRequired) extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}

// PrincipalFrom 从请求上下文取出认证主体。
func PrincipalFrom(c *gin.Context) (domain.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := value.(domain.Principal)
	return principal, ok
}
