package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mailguard/backend/internal/domain"
)

// Adapter 内存列表存储（开发与测试用）。
// 未见过的邮箱视为两张空列表，与引擎默认配置一致。
type Adapter struct {
	mu        sync.Mutex
	mailboxes map[string]*mailboxLists
	now       func() time.Time
}

type mailboxLists struct {
	whitelist   map[string]struct{}
	blacklist   map[string]struct{}
	lastUpdated time.Time
}

// NewAdapter 创建内存适配器。
func NewAdapter() *Adapter {
	return NewAdapterWithClock(time.Now)
}

// NewAdapterWithClock 使用可控时钟创建适配器，供测试注入。
func NewAdapterWithClock(now func() time.Time) *Adapter {
	return &Adapter{
		mailboxes: make(map[string]*mailboxLists),
		now:       now,
	}
}

// GetRules 返回邮箱当前列表快照，条目按字典序排序保证稳定输出。
func (a *Adapter) GetRules(_ context.Context, mailbox string) (domain.RuleSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lists, ok := a.mailboxes[mailbox]
	if !ok {
		return domain.RuleSet{Whitelist: []string{}, Blacklist: []string{}}, nil
	}

	return domain.RuleSet{
		Whitelist:   sortedEntries(lists.whitelist),
		Blacklist:   sortedEntries(lists.blacklist),
		LastUpdated: lists.lastUpdated,
	}, nil
}

// AddRule 追加条目。
func (a *Adapter) AddRule(_ context.Context, mailbox string, kind domain.ListKind, entry string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	lists := a.ensureLocked(mailbox)
	lists.entries(kind)[entry] = struct{}{}
	lists.lastUpdated = a.now()
	return nil
}

// RemoveRule 移除条目。
func (a *Adapter) RemoveRule(_ context.Context, mailbox string, kind domain.ListKind, entry string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	lists := a.ensureLocked(mailbox)
	delete(lists.entries(kind), entry)
	lists.lastUpdated = a.now()
	return nil
}

func (a *Adapter) ensureLocked(mailbox string) *mailboxLists {
	lists, ok := a.mailboxes[mailbox]
	if !ok {
		lists = &mailboxLists{
			whitelist: make(map[string]struct{}),
			blacklist: make(map[string]struct{}),
		}
		a.mailboxes[mailbox] = lists
	}
	return lists
}

func (l *mailboxLists) entries(kind domain.ListKind) map[string]struct{} {
	if kind == domain.ListKindWhitelist {
		return l.whitelist
	}
	return l.blacklist
}

func sortedEntries(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for entry := range set {
		out = append(out, entry)
	}
	sort.Strings(out)
	return out
}
