package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// CSRFCookieName 保存 CSRF 令牌的 Cookie 名。
	// 非 HttpOnly，前端需要读取后放入请求头。
	CSRFCookieName = "csrf_token"

	// CSRFHeaderName 请求头中携带 CSRF 令牌的字段名。
	CSRFHeaderName = "X-CSRF-Token"

	csrfCookieMaxAge = 86400
)

// CSRF 双重提交 Cookie 校验中间件。
// 仅当请求携带会话 Cookie 时才强制校验：纯 Bearer 头调用
// 不受浏览器自动携带凭据的影响，无需 CSRF 保护。
type CSRF struct {
	secure bool
	log    *zap.Logger
}

// NewCSRF 创建 CSRF 中间件。
func NewCSRF(secure bool, log *zap.Logger) *CSRF {
	if log == nil {
		log = zap.NewNop()
	}
	return &CSRF{secure: secure, log: log}
}

// Handler 返回 gin 中间件。
func (m *CSRF) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			m.ensureCookie(c)
			c.Next()
			return
		}

		// 无会话 Cookie 的请求走 Bearer 头认证，跳过校验
		if _, err := c.Cookie(AccessTokenCookie); err != nil {
			c.Next()
			return
		}

		cookieToken, err := c.Cookie(CSRFCookieName)
		if err != nil || cookieToken == "" {
			m.reject(c, "missing cookie token")
			return
		}

		headerToken := c.GetHeader(CSRFHeaderName)
		if headerToken == "" {
			m.reject(c, "missing header token")
			return
		}

		if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
			m.reject(c, "token mismatch")
			return
		}

		c.Next()
	}
}

func (m *CSRF) reject(c *gin.Context, reason string) {
	m.log.Warn("csrf validation failed",
		zap.String("reason", reason),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path))
	c.JSON(http.StatusForbidden, gin.H{
		"status":  "error",
		"message": "CSRF token validation failed",
	})
	c.Abort()
}

// ensureCookie 在安全方法上下发 CSRF 令牌 Cookie。
func (m *CSRF) ensureCookie(c *gin.Context) {
	if _, err := c.Cookie(CSRFCookieName); err == nil {
		return
	}

	token, err := generateCSRFToken()
	if err != nil {
		m.log.Error("generate csrf token failed", zap.Error(err))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CSRFCookieName, token, csrfCookieMaxAge, "/", "", m.secure, false)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
