package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailguard/backend/internal/auth"
	jwtpkg "mailguard/backend/internal/auth/jwt"
	"mailguard/backend/internal/config"
	enginememory "mailguard/backend/internal/engine/memory"
	"mailguard/backend/internal/service"
	"mailguard/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAuthority 固定应答的会话授权方
type stubAuthority struct {
	valid bool
}

func (s *stubAuthority) VerifySession(ctx context.Context, sessionID, mailbox string) (bool, error) {
	return s.valid, nil
}

// stubProber 固定应答的凭证探测器
type stubProber struct {
	err error
}

func (s *stubProber) Probe(ctx context.Context, email, password string) error {
	return s.err
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{
			PerPrincipalLimit:  1000,
			PerPrincipalWindow: time.Minute,
			PerIPRate:          1000,
			PerIPBurst:         1000,
		},
	}

	authService := auth.NewService(auth.Options{
		Registry:  memory.NewTokenRegistry(),
		JWT:       jwtpkg.NewManager(strings.Repeat("a", 32), "mailguard-test"),
		Authority: &stubAuthority{valid: true},
		Prober:    &stubProber{},
	})

	guard := auth.NewGuard(nil)
	ruleService := service.NewRuleService(enginememory.NewAdapter(), guard, nil)

	return NewRouter(RouterDependencies{
		Config:      cfg,
		AuthService: authService,
		RuleService: ruleService,
		Counter:     memory.NewCounterStore(),
	})
}

func doJSON(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func obtainToken(t *testing.T, router *gin.Engine, mailbox string) string {
	t.Helper()

	w := doJSON(router, http.MethodPost, "/auth/verify-plesk-session", "", gin.H{
		"sessionId": "session-123",
		"mailbox":   mailbox,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	token, _ := data["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRouter_VerifyPleskSession(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/auth/verify-plesk-session", "", gin.H{
		"sessionId": "session-123",
		"mailbox":   "user@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)

	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["token"])
	assert.NotEmpty(t, data["expiresAt"])
	assert.InDelta(t, 24*60*60, data["expiresIn"].(float64), 5)

	// Missing fields are a 400
	w = doJSON(router, http.MethodPost, "/auth/verify-plesk-session", "", gin.H{"mailbox": "user@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_VerifyMailbox_MismatchedIdentity(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/auth/verify-mailbox", "", gin.H{
		"email":    "user@example.com",
		"password": "secret",
		"mailbox":  "other@example.com",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_RulesRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/spam-rules?mailbox=user@example.com", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/spam-rules?mailbox=user@example.com", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_RuleLifecycle(t *testing.T) {
	router := newTestRouter(t)
	token := obtainToken(t, router, "user@example.com")

	// Empty lists to start
	w := doJSON(router, http.MethodGet, "/spam-rules?mailbox=user@example.com", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Add a whitelist entry
	w = doJSON(router, http.MethodPost, "/spam-rules", token, gin.H{
		"mailbox":  "user@example.com",
		"listType": "whitelist",
		"entry":    "Friend@Example.ORG",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "friend@example.org", data["entry"])
	assert.Equal(t, "email", data["kind"])
	assert.NotEmpty(t, data["addedAt"])

	// Duplicate add is a conflict
	w = doJSON(router, http.MethodPost, "/spam-rules", token, gin.H{
		"mailbox":  "user@example.com",
		"listType": "whitelist",
		"entry":    "friend@example.org",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// The entry shows up in the snapshot
	w = doJSON(router, http.MethodGet, "/spam-rules?mailbox=user@example.com", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{"friend@example.org"}, data["whitelist"])

	// Remove it
	w = doJSON(router, http.MethodDelete, "/spam-rules", token, gin.H{
		"mailbox":  "user@example.com",
		"listType": "whitelist",
		"entry":    "friend@example.org",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// Removing again is a 404
	w = doJSON(router, http.MethodDelete, "/spam-rules", token, gin.H{
		"mailbox":  "user@example.com",
		"listType": "whitelist",
		"entry":    "friend@example.org",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_AddInvalidEntry(t *testing.T) {
	router := newTestRouter(t)
	token := obtainToken(t, router, "user@example.com")

	w := doJSON(router, http.MethodPost, "/spam-rules", token, gin.H{
		"mailbox":  "user@example.com",
		"listType": "whitelist",
		"entry":    "<script>alert(1)</script>",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "dangerous")

	// Unknown list type is also a 400
	w = doJSON(router, http.MethodPost, "/spam-rules", token, gin.H{
		"mailbox":  "user@example.com",
		"listType": "greylist",
		"entry":    "a@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_MailboxOwnership(t *testing.T) {
	router := newTestRouter(t)
	token := obtainToken(t, router, "user@example.com")

	w := doJSON(router, http.MethodGet, "/spam-rules?mailbox=other@example.com", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodPost, "/spam-rules", token, gin.H{
		"mailbox":  "other@example.com",
		"listType": "blacklist",
		"entry":    "spam@evil.com",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_Bulk(t *testing.T) {
	router := newTestRouter(t)
	token := obtainToken(t, router, "user@example.com")

	w := doJSON(router, http.MethodPost, "/spam-rules/bulk", token, gin.H{
		"mailbox": "user@example.com",
		"operations": []gin.H{
			{"action": "add", "listType": "whitelist", "entry": "a@example.com"},
			{"action": "add", "listType": "whitelist", "entry": "not valid!!"},
			{"action": "add", "listType": "blacklist", "entry": "@spam.example"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["attempted"])
	assert.Equal(t, float64(2), data["succeeded"])
	assert.Equal(t, float64(1), data["failed"])
	assert.Len(t, data["results"], 2)
	assert.Len(t, data["errors"], 1)
}

func TestRouter_RefreshAndLogout(t *testing.T) {
	router := newTestRouter(t)
	token := obtainToken(t, router, "user@example.com")

	w := doJSON(router, http.MethodPost, "/auth/refresh", "", gin.H{"token": token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	fresh := resp.Data.(map[string]interface{})["token"].(string)
	assert.NotEqual(t, token, fresh)

	// The old token was rotated out
	w = doJSON(router, http.MethodGet, "/spam-rules?mailbox=user@example.com", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The fresh one works until logout
	w = doJSON(router, http.MethodGet, "/spam-rules?mailbox=user@example.com", fresh, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/auth/logout", "", gin.H{"token": fresh})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/spam-rules?mailbox=user@example.com", fresh, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Logout of an already-gone token still succeeds
	w = doJSON(router, http.MethodPost, "/auth/logout", "", gin.H{"token": fresh})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_PrincipalRateLimit(t *testing.T) {
	cfg := &config.Config{
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{
			PerPrincipalLimit:  2,
			PerPrincipalWindow: time.Minute,
			PerIPRate:          1000,
			PerIPBurst:         1000,
		},
	}
	authService := auth.NewService(auth.Options{
		Registry:  memory.NewTokenRegistry(),
		JWT:       jwtpkg.NewManager(strings.Repeat("a", 32), "mailguard-test"),
		Authority: &stubAuthority{valid: true},
		Prober:    &stubProber{},
	})
	router := NewRouter(RouterDependencies{
		Config:      cfg,
		AuthService: authService,
		RuleService: service.NewRuleService(enginememory.NewAdapter(), auth.NewGuard(nil), nil),
		Counter:     memory.NewCounterStore(),
	})
	token := obtainToken(t, router, "user@example.com")

	for i := 0; i < 2; i++ {
		w := doJSON(router, http.MethodGet, "/spam-rules?mailbox=user@example.com", token, nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}

	w := doJSON(router, http.MethodGet, "/spam-rules?mailbox=user@example.com", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRouter_RefreshUnknownToken(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/auth/refresh", "", gin.H{"token": "never-issued"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
