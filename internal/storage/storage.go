package storage

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound 注册表中不存在该令牌
var ErrTokenNotFound = errors.New("token not found")

// TokenRecord 是注册表中一条令牌记录。
type TokenRecord struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	Mailbox   string    `json:"mailbox"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenRegistry 服务端可撤销令牌注册表。
//
// 实现必须在并发访问下保持一致；过期记录允许由实现
// 在读取时顺带清理。
//
// Take 原子地取出并删除记录：并发取同一令牌时至多一个
// 调用方拿到记录，其余得到 ErrTokenNotFound。
type TokenRegistry interface {
	Save(ctx context.Context, record TokenRecord) error
	Get(ctx context.Context, token string) (*TokenRecord, error)
	Take(ctx context.Context, token string) (*TokenRecord, error)
	Delete(ctx context.Context, token string) error
}

// CounterStore 滑动窗口计数器，用于限流。
//
// Increment 将 key 的计数加一并返回窗口内的当前计数；
// 窗口外的旧记录由实现负责剔除。
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}
