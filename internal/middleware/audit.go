package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Audit 记录状态变更请求的审计日志。
// 需置于认证中间件之后，以便取得请求主体。
func Audit(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if principal, ok := PrincipalFrom(c); ok {
			fields = append(fields, zap.String("principal", principal.Email))
		}

		switch {
		case status == http.StatusForbidden:
			log.Warn("audit: access denied", fields...)
		case status >= 400:
			log.Info("audit: mutation rejected", fields...)
		default:
			log.Info("audit: mutation applied", fields...)
		}
	}
}
