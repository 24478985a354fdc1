package domain

import "time"

// Principal 已认证身份。当前设计中标识与授权邮箱恒等，
// 不存在代管或管理员代操作能力。
type Principal struct {
	Email   string `json:"email"`   // 邮箱形态的身份标识
	Mailbox string `json:"mailbox"` // 唯一被授权操作的邮箱
}

// AccessToken 不透明的持有者凭证，固定 24 小时生命周期。
// 服务端注册表中保存可撤销副本；客户端持有签名编码。
type AccessToken struct {
	Value     string    `json:"token"`
	Principal Principal `json:"-"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
