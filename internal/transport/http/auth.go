package httptransport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailguard/backend/internal/auth"
	"mailguard/backend/internal/domain"
	"mailguard/backend/internal/middleware"
	"mailguard/backend/internal/monitoring"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	verifier *auth.Service
	secure   bool // 是否以 Secure 属性下发 Cookie
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewAuthHandler 创建认证处理器。metrics 可为 nil。
func NewAuthHandler(verifier *auth.Service, secure bool, metrics *monitoring.Metrics, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{verifier: verifier, secure: secure, metrics: metrics, log: log}
}

func (h *AuthHandler) countAuth(kind string, err error) {
	if h.metrics == nil {
		return
	}
	if err != nil {
		h.metrics.AuthFailuresTotal.WithLabelValues(kind).Inc()
		return
	}
	h.metrics.AuthSuccessTotal.WithLabelValues(kind).Inc()
}

type pleskSessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Mailbox   string `json:"mailbox" binding:"required"`
}

type mailboxCredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Mailbox  string `json:"mailbox"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"` // 剩余有效期（秒）
	ExpiresAt string `json:"expiresAt"` // 过期时间（RFC3339）
}

// VerifyPleskSession 委托会话认证
// POST /auth/verify-plesk-session
func (h *AuthHandler) VerifyPleskSession(c *gin.Context) {
	var req pleskSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest, nil)
		return
	}

	token, err := h.verifier.VerifyPleskSession(c.Request.Context(), req.SessionID, req.Mailbox)
	h.countAuth("plesk_session", err)
	if err != nil {
		writeServiceError(c, h.log, h.metrics, err, req.Mailbox)
		return
	}

	h.writeToken(c, token)
}

// VerifyMailbox 凭据探测认证
// POST /auth/verify-mailbox
func (h *AuthHandler) VerifyMailbox(c *gin.Context) {
	var req mailboxCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest, nil)
		return
	}

	mailbox := req.Mailbox
	if mailbox == "" {
		mailbox = req.Email
	}

	token, err := h.verifier.VerifyMailbox(c.Request.Context(), req.Email, req.Password, mailbox)
	h.countAuth("mailbox_probe", err)
	if err != nil {
		writeServiceError(c, h.log, h.metrics, err, mailbox)
		return
	}

	h.writeToken(c, token)
}

// Refresh 刷新访问令牌
// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	req, ok := h.bindToken(c)
	if !ok {
		return
	}

	token, err := h.verifier.Refresh(c.Request.Context(), req)
	h.countAuth("refresh", err)
	if err != nil {
		writeServiceError(c, h.log, h.metrics, err, "")
		return
	}

	h.writeToken(c, token)
}

// Logout 注销访问令牌。幂等：令牌不存在也返回成功。
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	req, ok := h.bindToken(c)
	if !ok {
		return
	}

	if err := h.verifier.Logout(c.Request.Context(), req); err != nil {
		writeServiceError(c, h.log, h.metrics, err, "")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", h.secure, true)
	Success(c, "登出成功", gin.H{"success": true})
}

// bindToken 从请求体或 Cookie 提取令牌。
func (h *AuthHandler) bindToken(c *gin.Context) (string, bool) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.Token != "" {
		return req.Token, true
	}
	if cookie, err := c.Cookie(middleware.AccessTokenCookie); err == nil && cookie != "" {
		return cookie, true
	}
	BadRequest(c, MsgInvalidRequest, nil)
	return "", false
}

// writeToken 下发令牌响应和会话 Cookie。
func (h *AuthHandler) writeToken(c *gin.Context, token *domain.AccessToken) {
	expiresIn := int64(time.Until(token.ExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, token.Value, int(expiresIn), "/", "", h.secure, true)

	Success(c, fmt.Sprintf("认证成功，令牌 %s 过期", token.ExpiresAt.Format("2006-01-02 15:04:05 MST")), tokenResponse{
		Token:     token.Value,
		ExpiresIn: expiresIn,
		ExpiresAt: token.ExpiresAt.Format(time.RFC3339),
	})
}
