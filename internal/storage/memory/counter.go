package memory

import (
	"context"
	"sync"
	"time"
)

// CounterStore 内存滑动窗口计数器。
//
// 每个 key 保存窗口内的时间戳序列；每次 Increment 顺带
// 剔除窗口外的旧时间戳。
type CounterStore struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

// NewCounterStore 创建内存计数器。
func NewCounterStore() *CounterStore {
	return NewCounterStoreWithClock(time.Now)
}

// NewCounterStoreWithClock 使用可控时钟创建计数器，供测试注入。
func NewCounterStoreWithClock(now func() time.Time) *CounterStore {
	return &CounterStore{
		buckets: make(map[string][]time.Time),
		now:     now,
	}
}

// Increment 记录一次事件并返回窗口内的事件总数。
func (c *CounterStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cutoff := now.Add(-window)

	kept := c.buckets[key][:0]
	for _, ts := range c.buckets[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	c.buckets[key] = kept

	// 顺带清理完全失活的其他 key
	for other, stamps := range c.buckets {
		if other == key {
			continue
		}
		if len(stamps) > 0 && !stamps[len(stamps)-1].After(cutoff) {
			delete(c.buckets, other)
		}
	}

	return int64(len(kept)), nil
}
