// Package engine 定义与外部垃圾邮件过滤引擎的列表存储边界。
//
// 引擎本身（规则求值、配置重载）在边界之外；本包只负责按邮箱
// 读写 whitelist/blacklist 两类覆盖列表。
package engine

import (
	"context"
	"time"

	"mailguard/backend/internal/domain"
)

// Adapter 过滤引擎列表存储适配器。
// 引擎侧不认识的邮箱不算错误：GetRules 返回空快照。
//
// 实现负责把操作落到引擎的按用户配置上（可能触发引擎重载）；
// 本系统只信任适配器自身的成功信号，不做额外验证。
type Adapter interface {
	// GetRules 获取邮箱当前的完整列表快照。
	GetRules(ctx context.Context, mailbox string) (domain.RuleSet, error)
	// AddRule 向指定类别追加一条已规范化条目。
	AddRule(ctx context.Context, mailbox string, kind domain.ListKind, entry string) error
	// RemoveRule 从指定类别移除一条条目。
	RemoveRule(ctx context.Context, mailbox string, kind domain.ListKind, entry string) error
}

// timeoutAdapter 为每次适配器调用套上超时上限。
type timeoutAdapter struct {
	inner   Adapter
	timeout time.Duration
}

// WithTimeout 包装适配器，保证任何调用都不会无限阻塞。
func WithTimeout(inner Adapter, timeout time.Duration) Adapter {
	if timeout <= 0 {
		return inner
	}
	return &timeoutAdapter{inner: inner, timeout: timeout}
}

func (t *timeoutAdapter) GetRules(ctx context.Context, mailbox string) (domain.RuleSet, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.GetRules(ctx, mailbox)
}

func (t *timeoutAdapter) AddRule(ctx context.Context, mailbox string, kind domain.ListKind, entry string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.AddRule(ctx, mailbox, kind, entry)
}

func (t *timeoutAdapter) RemoveRule(ctx context.Context, mailbox string, kind domain.ListKind, entry string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.RemoveRule(ctx, mailbox, kind, entry)
}
