package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mailguard/backend/internal/storage"
)

const tokenKeyPrefix = "mailguard:token:"

// TokenRegistry Redis 令牌注册表。
// 记录以 JSON 存储，过期由 Redis TTL 负责。
type TokenRegistry struct {
	client *Client
}

// NewTokenRegistry 创建 Redis 令牌注册表。
func NewTokenRegistry(client *Client) *TokenRegistry {
	return &TokenRegistry{client: client}
}

// Save 写入令牌记录，TTL 取记录的剩余有效期。
func (r *TokenRegistry) Save(ctx context.Context, record storage.TokenRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}

	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	return r.client.rdb.Set(ctx, tokenKeyPrefix+record.Token, payload, ttl).Err()
}

// Get 读取令牌记录；键不存在返回 ErrTokenNotFound。
func (r *TokenRegistry) Get(ctx context.Context, token string) (*storage.TokenRecord, error) {
	payload, err := r.client.rdb.Get(ctx, tokenKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}

	var record storage.TokenRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("failed to decode token record: %w", err)
	}
	return &record, nil
}

// Take 原子地取出并删除令牌记录。GETDEL 保证并发取
// 同一令牌时只有一个调用方拿到值。
func (r *TokenRegistry) Take(ctx context.Context, token string) (*storage.TokenRecord, error) {
	payload, err := r.client.rdb.GetDel(ctx, tokenKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to take token record: %w", err)
	}

	var record storage.TokenRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("failed to decode token record: %w", err)
	}
	return &record, nil
}

// Delete 删除令牌记录；键不存在同样视为成功。
func (r *TokenRegistry) Delete(ctx context.Context, token string) error {
	return r.client.rdb.Del(ctx, tokenKeyPrefix+token).Err()
}
