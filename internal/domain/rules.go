package domain

import (
	"errors"
	"time"
)

// ListKind 列表类别
type ListKind string

const (
	ListKindWhitelist ListKind = "whitelist" // 放行列表
	ListKindBlacklist ListKind = "blacklist" // 拦截列表
)

// ErrInvalidListKind 未知的列表类别
var ErrInvalidListKind = errors.New("invalid list type")

// ParseListKind 解析列表类别字符串。
func ParseListKind(value string) (ListKind, error) {
	switch ListKind(value) {
	case ListKindWhitelist, ListKindBlacklist:
		return ListKind(value), nil
	default:
		return "", ErrInvalidListKind
	}
}

// RuleSet 是一个邮箱当前的完整列表快照。
// 本系统不持有持久副本，每次读取都从外部过滤引擎重新获取。
type RuleSet struct {
	Whitelist   []string  `json:"whitelist"`
	Blacklist   []string  `json:"blacklist"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Entries 返回指定类别的条目切片。
func (rs *RuleSet) Entries(kind ListKind) []string {
	if kind == ListKindWhitelist {
		return rs.Whitelist
	}
	return rs.Blacklist
}

// Contains 判断指定类别中是否已存在某条目。
func (rs *RuleSet) Contains(kind ListKind, entry string) bool {
	for _, e := range rs.Entries(kind) {
		if e == entry {
			return true
		}
	}
	return false
}
