package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	jwtpkg "mailguard/backend/internal/auth/jwt"
	"mailguard/backend/internal/domain"
	"mailguard/backend/internal/storage"
)

var (
	// ErrAuthenticationFailed 认证失败（对外统一消息，不区分具体环节）
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrInvalidToken 令牌无效或已过期（不区分从未存在/已过期/已撤销）
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Service 会话与凭证验证服务。
//
// 两条独立认证路径（面板会话委托、POP3 凭证探测）成功后
// 均签发 24 小时令牌：JWT 编码交给客户端，同时在服务端
// 注册表登记一份可撤销记录。校验时两者都要通过。
type Service struct {
	registry  storage.TokenRegistry
	jwt       *jwtpkg.Manager
	authority SessionAuthority
	prober    CredentialProber
	tokenTTL  time.Duration
	timeout   time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// Options 构造 Service 的依赖集合。
type Options struct {
	Registry  storage.TokenRegistry
	JWT       *jwtpkg.Manager
	Authority SessionAuthority
	Prober    CredentialProber
	TokenTTL  time.Duration // 默认 24h
	Timeout   time.Duration // 外部调用超时，默认 5s
	Logger    *zap.Logger
	Now       func() time.Time // 测试注入时钟
}

// NewService 创建认证服务。
func NewService(opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		registry:  opts.Registry,
		jwt:       opts.JWT,
		authority: opts.Authority,
		prober:    opts.Prober,
		tokenTTL:  opts.TokenTTL,
		timeout:   opts.Timeout,
		log:       opts.Logger,
		now:       opts.Now,
	}
}

// VerifyPleskSession 委托会话路径：由会话授权方确认会话有效
// 且覆盖目标邮箱。授权方的任何错误或否定结果都按认证失败处理。
func (s *Service) VerifyPleskSession(ctx context.Context, sessionID, mailbox string) (*domain.AccessToken, error) {
	mailbox = normalizeMailbox(mailbox)
	if sessionID == "" || mailbox == "" {
		return nil, ErrAuthenticationFailed
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	valid, err := s.authority.VerifySession(callCtx, sessionID, mailbox)
	if err != nil {
		s.log.Warn("session authority verification failed",
			zap.String("mailbox", mailbox),
			zap.Error(err),
		)
		return nil, ErrAuthenticationFailed
	}
	if !valid {
		s.log.Warn("session authority rejected session", zap.String("mailbox", mailbox))
		return nil, ErrAuthenticationFailed
	}

	return s.issueToken(ctx, domain.Principal{Email: mailbox, Mailbox: mailbox})
}

// VerifyMailbox 凭证探测路径：用提供的邮箱凭证对邮件收取服务
// 做一次真实登录。标识必须与目标邮箱相同（无代管能力）。
func (s *Service) VerifyMailbox(ctx context.Context, email, password, mailbox string) (*domain.AccessToken, error) {
	email = normalizeMailbox(email)
	mailbox = normalizeMailbox(mailbox)
	if email == "" || password == "" || mailbox == "" {
		return nil, ErrAuthenticationFailed
	}
	if email != mailbox {
		s.log.Warn("credential probe rejected: identifier differs from target mailbox",
			zap.String("email", email),
			zap.String("mailbox", mailbox),
		)
		return nil, ErrAuthenticationFailed
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.prober.Probe(callCtx, email, password); err != nil {
		// 连接失败与凭证错误不对外区分
		s.log.Warn("credential probe failed", zap.String("mailbox", mailbox), zap.Error(err))
		return nil, ErrAuthenticationFailed
	}

	return s.issueToken(ctx, domain.Principal{Email: email, Mailbox: mailbox})
}

// Refresh 刷新令牌：旧记录必须在注册表中且未过期；原子地
// 删除旧记录并签发同主体的新令牌。
func (s *Service) Refresh(ctx context.Context, token string) (*domain.AccessToken, error) {
	// Take 原子取出：并发刷新同一令牌时只有一个调用方胜出
	record, err := s.registry.Take(ctx, token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !s.now().Before(record.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	return s.issueToken(ctx, domain.Principal{Email: record.Email, Mailbox: record.Mailbox})
}

// Logout 注销令牌。幂等：记录不存在同样报告成功。
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.registry.Delete(ctx, token); err != nil {
		// 删除失败只记录，调用方仍视为登出成功
		s.log.Warn("failed to delete token on logout", zap.Error(err))
	}
	return nil
}

// Verify 校验持有者令牌：签名与声明有效，且注册表中在场未过期。
// 结构上有效但已撤销的令牌必须失败。
func (s *Service) Verify(ctx context.Context, token string) (*domain.Principal, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	record, err := s.registry.Get(ctx, token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !s.now().Before(record.ExpiresAt) {
		_ = s.registry.Delete(ctx, token)
		return nil, ErrInvalidToken
	}

	return &domain.Principal{Email: claims.Email, Mailbox: claims.Mailbox}, nil
}

// issueToken 签发新令牌并登记到注册表。
func (s *Service) issueToken(ctx context.Context, principal domain.Principal) (*domain.AccessToken, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.tokenTTL)

	signed, err := s.jwt.Generate(principal.Email, principal.Mailbox, issuedAt, expiresAt)
	if err != nil {
		s.log.Error("failed to sign access token", zap.Error(err))
		return nil, ErrAuthenticationFailed
	}

	record := storage.TokenRecord{
		Token:     signed,
		Email:     principal.Email,
		Mailbox:   principal.Mailbox,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	if err := s.registry.Save(ctx, record); err != nil {
		s.log.Error("failed to register access token", zap.Error(err))
		return nil, ErrAuthenticationFailed
	}

	s.log.Info("access token issued",
		zap.String("mailbox", principal.Mailbox),
		zap.Time("expires_at", expiresAt),
	)

	return &domain.AccessToken{
		Value:     signed,
		Principal: principal,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func normalizeMailbox(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
