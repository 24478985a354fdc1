package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mailguard/backend/internal/domain"
	redisstore "mailguard/backend/internal/storage/redis"
)

const (
	rulesKeyPrefix = "mailguard:rules:"
	updatedSuffix  = ":updated"
)

// Adapter Redis 列表存储。
//
// 每个 (邮箱, 类别) 对应一个 Redis 集合，过滤引擎从同一
// Redis 读取覆盖列表；lastUpdated 单独存为 RFC3339 字符串。
type Adapter struct {
	client *redisstore.Client
}

// NewAdapter 创建 Redis 适配器。
func NewAdapter(client *redisstore.Client) *Adapter {
	return &Adapter{client: client}
}

// GetRules 返回邮箱当前列表快照。
func (a *Adapter) GetRules(ctx context.Context, mailbox string) (domain.RuleSet, error) {
	rdb := a.client.Client()

	whitelist, err := rdb.SMembers(ctx, listKey(mailbox, domain.ListKindWhitelist)).Result()
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("failed to fetch whitelist: %w", err)
	}
	blacklist, err := rdb.SMembers(ctx, listKey(mailbox, domain.ListKindBlacklist)).Result()
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("failed to fetch blacklist: %w", err)
	}

	sort.Strings(whitelist)
	sort.Strings(blacklist)

	rules := domain.RuleSet{Whitelist: whitelist, Blacklist: blacklist}

	stamp, err := rdb.Get(ctx, rulesKeyPrefix+mailbox+updatedSuffix).Result()
	if err == nil {
		if parsed, parseErr := time.Parse(time.RFC3339Nano, stamp); parseErr == nil {
			rules.LastUpdated = parsed
		}
	} else if err != goredis.Nil {
		return domain.RuleSet{}, fmt.Errorf("failed to fetch last-updated stamp: %w", err)
	}

	return rules, nil
}

// AddRule 追加条目并刷新 lastUpdated。
func (a *Adapter) AddRule(ctx context.Context, mailbox string, kind domain.ListKind, entry string) error {
	pipe := a.client.Client().TxPipeline()
	pipe.SAdd(ctx, listKey(mailbox, kind), entry)
	pipe.Set(ctx, rulesKeyPrefix+mailbox+updatedSuffix, time.Now().UTC().Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add rule: %w", err)
	}
	return nil
}

// RemoveRule 移除条目并刷新 lastUpdated。
func (a *Adapter) RemoveRule(ctx context.Context, mailbox string, kind domain.ListKind, entry string) error {
	pipe := a.client.Client().TxPipeline()
	pipe.SRem(ctx, listKey(mailbox, kind), entry)
	pipe.Set(ctx, rulesKeyPrefix+mailbox+updatedSuffix, time.Now().UTC().Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove rule: %w", err)
	}
	return nil
}

func listKey(mailbox string, kind domain.ListKind) string {
	return rulesKeyPrefix + mailbox + ":" + string(kind)
}
