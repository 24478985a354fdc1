package auth

import (
	"errors"

	"go.uber.org/zap"

	"mailguard/backend/internal/domain"
)

// ErrMailboxMismatch 请求操作的邮箱与令牌授权的邮箱不一致
var ErrMailboxMismatch = errors.New("mailbox does not match authenticated principal")

// Guard 邮箱归属检查。
//
// 判定采用严格字符串相等，不做规范化、不支持通配域匹配。
// 拒绝是安全相关事件，必须带双方邮箱与调用身份记录日志。
type Guard struct {
	log *zap.Logger
}

// NewGuard 创建归属检查器。
func NewGuard(log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{log: log}
}

// Authorize 校验主体是否有权操作目标邮箱。
func (g *Guard) Authorize(principal domain.Principal, mailbox string) error {
	if principal.Mailbox == mailbox {
		return nil
	}

	g.log.Warn("mailbox ownership denied",
		zap.String("requested_mailbox", mailbox),
		zap.String("authorized_mailbox", principal.Mailbox),
		zap.String("principal", principal.Email),
	)
	return ErrMailboxMismatch
}
