package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mailguard/backend/internal/config"
)

// SessionAuthority 会话授权方：确认面板会话有效且有权访问目标邮箱。
type SessionAuthority interface {
	VerifySession(ctx context.Context, sessionID, mailbox string) (bool, error)
}

// PleskClient 调用 Plesk 面板的会话校验接口。
type PleskClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewPleskClient 创建会话授权方客户端，所有调用受超时约束。
func NewPleskClient(cfg *config.PleskConfig) *PleskClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PleskClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type pleskVerifyRequest struct {
	SessionID string `json:"sessionId"`
	Mailbox   string `json:"mailbox"`
}

type pleskVerifyResponse struct {
	Valid bool `json:"valid"`
}

// VerifySession 确认会话有效性。任何传输或协议错误都由调用方
// 按认证失败处理（fail closed）。
func (p *PleskClient) VerifySession(ctx context.Context, sessionID, mailbox string) (bool, error) {
	payload, err := json.Marshal(pleskVerifyRequest{SessionID: sessionID, Mailbox: mailbox})
	if err != nil {
		return false, fmt.Errorf("failed to encode session verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to build session verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("session authority unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("session authority returned status %d", resp.StatusCode)
	}

	var body pleskVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode session verify response: %w", err)
	}

	return body.Valid, nil
}
