package memory

import (
	"context"
	"sync"
	"time"

	"mailguard/backend/internal/storage"
)

// TokenRegistry 内存令牌注册表（开发与测试用）。
//
// 过期记录在每次读写时顺带清理，不依赖后台任务。
type TokenRegistry struct {
	mu      sync.Mutex
	records map[string]storage.TokenRecord
	now     func() time.Time
}

// NewTokenRegistry 创建内存令牌注册表。
func NewTokenRegistry() *TokenRegistry {
	return NewTokenRegistryWithClock(time.Now)
}

// NewTokenRegistryWithClock 使用可控时钟创建注册表，供测试注入。
func NewTokenRegistryWithClock(now func() time.Time) *TokenRegistry {
	return &TokenRegistry{
		records: make(map[string]storage.TokenRecord),
		now:     now,
	}
}

// Save 写入一条令牌记录。
func (r *TokenRegistry) Save(_ context.Context, record storage.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	r.records[record.Token] = record
	return nil
}

// Get 读取令牌记录；不存在或已过期返回 ErrTokenNotFound。
func (r *TokenRegistry) Get(_ context.Context, token string) (*storage.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	if !r.now().Before(record.ExpiresAt) {
		delete(r.records, token)
		return nil, storage.ErrTokenNotFound
	}
	copied := record
	return &copied, nil
}

// Take 原子地取出并删除令牌记录。并发调用下同一令牌
// 至多成功一次，其余返回 ErrTokenNotFound。
func (r *TokenRegistry) Take(_ context.Context, token string) (*storage.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	delete(r.records, token)
	if !r.now().Before(record.ExpiresAt) {
		return nil, storage.ErrTokenNotFound
	}
	copied := record
	return &copied, nil
}

// Delete 删除令牌记录；记录不存在时同样视为成功。
func (r *TokenRegistry) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, token)
	return nil
}

// Len 返回当前未过期记录数，供测试与指标使用。
func (r *TokenRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	return len(r.records)
}

func (r *TokenRegistry) pruneLocked() {
	now := r.now()
	for token, record := range r.records {
		if !now.Before(record.ExpiresAt) {
			delete(r.records, token)
		}
	}
}
