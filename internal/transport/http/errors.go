package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailguard/backend/internal/auth"
	"mailguard/backend/internal/domain"
	"mailguard/backend/internal/monitoring"
	"mailguard/backend/internal/service"
)

// 通用错误消息
const (
	MsgInvalidRequest   = "请求参数格式错误"
	MsgAuthFailed       = "认证失败"
	MsgTokenInvalid     = "无效或已过期的访问令牌"
	MsgMailboxMismatch  = "无权操作该邮箱"
	MsgDuplicateEntry   = "条目已存在于列表中"
	MsgEntryNotFound    = "条目不存在于列表中"
	MsgInternalError    = "服务器内部错误"
	MsgValidationFailed = "条目校验失败"
)

// writeServiceError 将业务错误映射为 HTTP 响应。
// 未识别的错误按上游故障处理：记录完整上下文，对外仅返回通用消息。
func writeServiceError(c *gin.Context, log *zap.Logger, m *monitoring.Metrics, err error, mailbox string) {
	var validationErr *domain.ValidationError

	switch {
	case errors.As(err, &validationErr):
		BadRequest(c, MsgValidationFailed, validationErr.Messages)
	case errors.Is(err, auth.ErrAuthenticationFailed):
		Unauthorized(c, MsgAuthFailed)
	case errors.Is(err, auth.ErrInvalidToken):
		Unauthorized(c, MsgTokenInvalid)
	case errors.Is(err, auth.ErrMailboxMismatch):
		if m != nil {
			m.OwnershipDenialsTotal.Inc()
		}
		Forbidden(c, MsgMailboxMismatch)
	case errors.Is(err, service.ErrDuplicateEntry):
		Conflict(c, MsgDuplicateEntry)
	case errors.Is(err, service.ErrEntryNotFound):
		NotFound(c, MsgEntryNotFound)
	case errors.Is(err, domain.ErrInvalidListKind):
		BadRequest(c, MsgInvalidRequest, []string{err.Error()})
	default:
		log.Error("unexpected service error",
			zap.String("path", c.Request.URL.Path),
			zap.String("mailbox", mailbox),
			zap.Error(err))
		InternalError(c, MsgInternalError)
	}
}
