package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const counterKeyPrefix = "mailguard:ratelimit:"

// CounterStore Redis 限流计数器。
//
// 使用有序集合实现滑动窗口：成员为事件时间戳，每次
// Increment 先按窗口下限剔除旧成员再计数。
type CounterStore struct {
	client *Client
}

// NewCounterStore 创建 Redis 计数器。
func NewCounterStore(client *Client) *CounterStore {
	return &CounterStore{client: client}
}

// Increment 记录一次事件并返回窗口内的事件总数。
func (c *CounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	cutoff := now.Add(-window).UnixNano()
	redisKey := counterKeyPrefix + key

	pipe := c.client.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(cutoff, 10))
	// 成员用 UUID 保证同一纳秒内的事件互不覆盖
	pipe.ZAdd(ctx, redisKey, goredis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	count := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to update rate limit counter: %w", err)
	}
	return count.Val(), nil
}
