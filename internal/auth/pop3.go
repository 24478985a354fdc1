package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"mailguard/backend/internal/config"
)

// CredentialProber 通过一次真实的邮件收取协议握手验证邮箱归属。
type CredentialProber interface {
	Probe(ctx context.Context, email, password string) error
}

// ErrProbeFailed 探测失败（连接、协议或凭证任一环节）。
// 具体环节不对外区分，避免泄露信息。
var ErrProbeFailed = errors.New("credential probe failed")

// POP3Prober 对 POP3 服务执行 USER/PASS 登录探测。
type POP3Prober struct {
	address string
	useTLS  bool
	timeout time.Duration
}

// NewPOP3Prober 创建 POP3 凭证探测器。
func NewPOP3Prober(cfg *config.POP3Config) *POP3Prober {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &POP3Prober{
		address: cfg.Address,
		useTLS:  cfg.UseTLS,
		timeout: timeout,
	}
}

// Probe 执行一次完整的 POP3 登录握手。
// 成功登录即视为邮箱归属证明；任何失败统一折叠为 ErrProbeFailed。
func (p *POP3Prober) Probe(ctx context.Context, email, password string) error {
	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := &net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	defer conn.Close()

	if p.useTLS {
		host, _, splitErr := net.SplitHostPort(p.address)
		if splitErr != nil {
			host = p.address
		}
		tlsConn := tls.Client(conn, &tls.Config{ServerName: host})
		if err := tlsConn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("%w: %v", ErrProbeFailed, err)
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrProbeFailed, err)
		}
		conn = tlsConn
	}

	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}

	text := textproto.NewConn(conn)
	defer text.Close()

	// 服务器问候
	if err := expectOK(text); err != nil {
		return err
	}

	if err := command(text, "USER "+email); err != nil {
		return err
	}
	if err := command(text, "PASS "+password); err != nil {
		return err
	}

	// 礼貌退出，结果不影响探测结论
	_ = text.PrintfLine("QUIT")

	return nil
}

func command(text *textproto.Conn, line string) error {
	if err := text.PrintfLine("%s", line); err != nil {
		return fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	return expectOK(text)
}

func expectOK(text *textproto.Conn) error {
	line, err := text.ReadLine()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	if !strings.HasPrefix(line, "+OK") {
		return ErrProbeFailed
	}
	return nil
}
