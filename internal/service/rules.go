package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"mailguard/backend/internal/auth"
	"mailguard/backend/internal/domain"
	"mailguard/backend/internal/engine"
)

var (
	ErrDuplicateEntry = errors.New("entry already exists in list")
	ErrEntryNotFound  = errors.New("entry not found in list")
)

// RuleService 封装白名单/黑名单规则的业务操作。
// 所有规则数据保存在外部过滤引擎中，本服务不持有持久副本。
type RuleService struct {
	adapter engine.Adapter
	guard   *auth.Guard
	log     *zap.Logger

	// 按邮箱串行化写操作，避免 fetch-then-write 竞态。
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRuleService 创建规则业务服务。
func NewRuleService(adapter engine.Adapter, guard *auth.Guard, log *zap.Logger) *RuleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RuleService{
		adapter: adapter,
		guard:   guard,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

// mailboxLock 返回指定邮箱的互斥锁，不存在时创建。
func (s *RuleService) mailboxLock(mailbox string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[mailbox]
	if !ok {
		l = &sync.Mutex{}
		s.locks[mailbox] = l
	}
	return l
}

// List 返回指定邮箱的完整规则集。
func (s *RuleService) List(ctx context.Context, principal domain.Principal, mailbox string) (domain.RuleSet, error) {
	if err := s.guard.Authorize(principal, mailbox); err != nil {
		return domain.RuleSet{}, err
	}

	rules, err := s.adapter.GetRules(ctx, mailbox)
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("get rules: %w", err)
	}
	return rules, nil
}

// Add 向指定列表添加一条规则。重复条目返回 ErrDuplicateEntry。
func (s *RuleService) Add(ctx context.Context, principal domain.Principal, mailbox string, kind domain.ListKind, raw string) (domain.Entry, error) {
	if err := s.guard.Authorize(principal, mailbox); err != nil {
		return domain.Entry{}, err
	}

	entry, err := domain.ParseEntry(raw)
	if err != nil {
		return domain.Entry{}, err
	}

	lock := s.mailboxLock(mailbox)
	lock.Lock()
	defer lock.Unlock()

	rules, err := s.adapter.GetRules(ctx, mailbox)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("get rules: %w", err)
	}
	if rules.Contains(kind, entry.Text) {
		return domain.Entry{}, ErrDuplicateEntry
	}

	if err := s.adapter.AddRule(ctx, mailbox, kind, entry.Text); err != nil {
		return domain.Entry{}, fmt.Errorf("add rule: %w", err)
	}

	s.log.Info("rule added",
		zap.String("mailbox", mailbox),
		zap.String("list", string(kind)),
		zap.String("entry", entry.Text),
		zap.String("entry_kind", string(entry.Kind)))
	return entry, nil
}

// Remove 从指定列表删除一条规则。条目不存在返回 ErrEntryNotFound。
func (s *RuleService) Remove(ctx context.Context, principal domain.Principal, mailbox string, kind domain.ListKind, raw string) error {
	if err := s.guard.Authorize(principal, mailbox); err != nil {
		return err
	}

	entry, err := domain.ParseEntry(raw)
	if err != nil {
		return err
	}

	lock := s.mailboxLock(mailbox)
	lock.Lock()
	defer lock.Unlock()

	rules, err := s.adapter.GetRules(ctx, mailbox)
	if err != nil {
		return fmt.Errorf("get rules: %w", err)
	}
	if !rules.Contains(kind, entry.Text) {
		return ErrEntryNotFound
	}

	if err := s.adapter.RemoveRule(ctx, mailbox, kind, entry.Text); err != nil {
		return fmt.Errorf("remove rule: %w", err)
	}

	s.log.Info("rule removed",
		zap.String("mailbox", mailbox),
		zap.String("list", string(kind)),
		zap.String("entry", entry.Text))
	return nil
}

// BulkAction 表示批量请求中的一个操作。
type BulkAction string

const (
	BulkActionAdd    BulkAction = "add"
	BulkActionRemove BulkAction = "remove"
)

// BulkOperation 是批量请求中的单个条目。
type BulkOperation struct {
	Action BulkAction
	Kind   domain.ListKind
	Entry  string
}

// BulkItemResult 记录单个操作的执行结果。
type BulkItemResult struct {
	Index  int
	Entry  string
	Action BulkAction
	Kind   domain.ListKind
	Err    error
}

// BulkReport 汇总批量执行情况。操作非事务性：失败的条目不影响其余条目。
type BulkReport struct {
	Attempted int
	Succeeded int
	Failed    int
	Results   []BulkItemResult
}

// Bulk 按顺序执行一组规则操作。所有权检查只执行一次；
// 单条失败记入结果并继续执行后续条目。
func (s *RuleService) Bulk(ctx context.Context, principal domain.Principal, mailbox string, ops []BulkOperation) (BulkReport, error) {
	if err := s.guard.Authorize(principal, mailbox); err != nil {
		return BulkReport{}, err
	}

	lock := s.mailboxLock(mailbox)
	lock.Lock()
	defer lock.Unlock()

	report := BulkReport{
		Attempted: len(ops),
		Results:   make([]BulkItemResult, 0, len(ops)),
	}

	for i, op := range ops {
		result := BulkItemResult{
			Index:  i,
			Entry:  op.Entry,
			Action: op.Action,
			Kind:   op.Kind,
		}
		result.Err = s.applyOne(ctx, mailbox, op)
		if result.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
		report.Results = append(report.Results, result)
	}

	s.log.Info("bulk rules applied",
		zap.String("mailbox", mailbox),
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed))
	return report, nil
}

// applyOne 执行单个批量条目。调用方已持有邮箱锁。
func (s *RuleService) applyOne(ctx context.Context, mailbox string, op BulkOperation) error {
	switch op.Action {
	case BulkActionAdd, BulkActionRemove:
	default:
		return fmt.Errorf("unsupported action %q", op.Action)
	}
	if _, err := domain.ParseListKind(string(op.Kind)); err != nil {
		return err
	}

	entry, err := domain.ParseEntry(op.Entry)
	if err != nil {
		return err
	}

	rules, err := s.adapter.GetRules(ctx, mailbox)
	if err != nil {
		return fmt.Errorf("get rules: %w", err)
	}

	switch op.Action {
	case BulkActionAdd:
		if rules.Contains(op.Kind, entry.Text) {
			return ErrDuplicateEntry
		}
		if err := s.adapter.AddRule(ctx, mailbox, op.Kind, entry.Text); err != nil {
			return fmt.Errorf("add rule: %w", err)
		}
	case BulkActionRemove:
		if !rules.Contains(op.Kind, entry.Text) {
			return ErrEntryNotFound
		}
		if err := s.adapter.RemoveRule(ctx, mailbox, op.Kind, entry.Text); err != nil {
			return fmt.Errorf("remove rule: %w", err)
		}
	}
	return nil
}
