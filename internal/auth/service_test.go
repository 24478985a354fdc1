package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtpkg "mailguard/backend/internal/auth/jwt"
	"mailguard/backend/internal/storage/memory"
)

// fakeAuthority 模拟会话授权方
type fakeAuthority struct {
	valid bool
	err   error

	gotSession string
	gotMailbox string
}

func (f *fakeAuthority) VerifySession(ctx context.Context, sessionID, mailbox string) (bool, error) {
	f.gotSession = sessionID
	f.gotMailbox = mailbox
	return f.valid, f.err
}

// fakeProber 模拟凭证探测器
type fakeProber struct {
	err   error
	calls int
}

func (f *fakeProber) Probe(ctx context.Context, email, password string) error {
	f.calls++
	return f.err
}

// testClock 可推进的测试时钟
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(authority SessionAuthority, prober CredentialProber, clock *testClock) *Service {
	registry := memory.NewTokenRegistryWithClock(clock.Now)
	return NewService(Options{
		Registry:  registry,
		JWT:       jwtpkg.NewManager(strings.Repeat("a", 32), "mailguard-test"),
		Authority: authority,
		Prober:    prober,
		Now:       clock.Now,
	})
}

func TestService_VerifyPleskSession_Success(t *testing.T) {
	authority := &fakeAuthority{valid: true}
	clock := &testClock{now: time.Now()}
	svc := newTestService(authority, &fakeProber{}, clock)

	token, err := svc.VerifyPleskSession(context.Background(), "session-123", "User@Example.com")
	require.NoError(t, err)
	require.NotNil(t, token)

	// Mailbox is normalized before it reaches the authority
	assert.Equal(t, "user@example.com", authority.gotMailbox)
	assert.Equal(t, "user@example.com", token.Principal.Mailbox)
	assert.NotEmpty(t, token.Value)
	assert.Equal(t, 24*time.Hour, token.ExpiresAt.Sub(token.IssuedAt))

	principal, err := svc.Verify(context.Background(), token.Value)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", principal.Mailbox)
}

func TestService_VerifyPleskSession_FailsClosed(t *testing.T) {
	clock := &testClock{now: time.Now()}

	// Authority says no
	svc := newTestService(&fakeAuthority{valid: false}, &fakeProber{}, clock)
	_, err := svc.VerifyPleskSession(context.Background(), "session-123", "user@example.com")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	// Authority errors out
	svc = newTestService(&fakeAuthority{err: errors.New("connection refused")}, &fakeProber{}, clock)
	_, err = svc.VerifyPleskSession(context.Background(), "session-123", "user@example.com")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	// Missing inputs
	svc = newTestService(&fakeAuthority{valid: true}, &fakeProber{}, clock)
	_, err = svc.VerifyPleskSession(context.Background(), "", "user@example.com")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, err = svc.VerifyPleskSession(context.Background(), "session-123", "")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestService_VerifyMailbox_Success(t *testing.T) {
	prober := &fakeProber{}
	clock := &testClock{now: time.Now()}
	svc := newTestService(&fakeAuthority{}, prober, clock)

	token, err := svc.VerifyMailbox(context.Background(), "User@Example.com", "secret", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, prober.calls)
	assert.Equal(t, "user@example.com", token.Principal.Email)
}

func TestService_VerifyMailbox_IdentifierMustMatchMailbox(t *testing.T) {
	prober := &fakeProber{}
	clock := &testClock{now: time.Now()}
	svc := newTestService(&fakeAuthority{}, prober, clock)

	_, err := svc.VerifyMailbox(context.Background(), "user@example.com", "secret", "other@example.com")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	// The probe must never run when identities differ
	assert.Equal(t, 0, prober.calls)
}

func TestService_VerifyMailbox_ProbeFailureIsGeneric(t *testing.T) {
	prober := &fakeProber{err: ErrProbeFailed}
	clock := &testClock{now: time.Now()}
	svc := newTestService(&fakeAuthority{}, prober, clock)

	_, err := svc.VerifyMailbox(context.Background(), "user@example.com", "wrong", "user@example.com")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	// Probe detail must not leak through
	assert.NotContains(t, err.Error(), "probe")
}

func TestService_Verify_ExpiredToken(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newTestService(&fakeAuthority{valid: true}, &fakeProber{}, clock)

	token, err := svc.VerifyPleskSession(context.Background(), "session-123", "user@example.com")
	require.NoError(t, err)

	// Still valid just before expiry
	clock.Advance(24*time.Hour - time.Second)
	_, err = svc.Verify(context.Background(), token.Value)
	require.NoError(t, err)

	// One second past the 24h window the registry record has lapsed
	clock.Advance(2 * time.Second)
	_, err = svc.Verify(context.Background(), token.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_Verify_RevokedToken(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newTestService(&fakeAuthority{valid: true}, &fakeProber{}, clock)

	token, err := svc.VerifyPleskSession(context.Background(), "session-123", "user@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), token.Value))

	// Structurally valid JWT, but no registry record anymore
	_, err = svc.Verify(context.Background(), token.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_Refresh(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newTestService(&fakeAuthority{valid: true}, &fakeProber{}, clock)

	token, err := svc.VerifyPleskSession(context.Background(), "session-123", "user@example.com")
	require.NoError(t, err)

	clock.Advance(23 * time.Hour)
	fresh, err := svc.Refresh(context.Background(), token.Value)
	require.NoError(t, err)
	assert.NotEqual(t, token.Value, fresh.Value)
	assert.Equal(t, token.Principal, fresh.Principal)
	assert.Equal(t, clock.Now().UTC().Add(24*time.Hour), fresh.ExpiresAt)

	// The old token is gone after refresh
	_, err = svc.Verify(context.Background(), token.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// The fresh one is registered and refreshable in turn
	_, err = svc.Refresh(context.Background(), fresh.Value)
	require.NoError(t, err)
}

func TestService_Refresh_ConcurrentSingleWinner(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newTestService(&fakeAuthority{valid: true}, &fakeProber{}, clock)

	token, err := svc.VerifyPleskSession(context.Background(), "session-123", "user@example.com")
	require.NoError(t, err)

	// 并发刷新同一令牌：一次轮换只能产出一个新令牌
	const goroutines = 10
	var wg sync.WaitGroup
	var wins int64
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Refresh(context.Background(), token.Value); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestService_Refresh_ExpiredOrUnknown(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newTestService(&fakeAuthority{valid: true}, &fakeProber{}, clock)

	token, err := svc.VerifyPleskSession(context.Background(), "session-123", "user@example.com")
	require.NoError(t, err)

	clock.Advance(24*time.Hour + time.Second)
	_, err = svc.Refresh(context.Background(), token.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_Logout_Idempotent(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newTestService(&fakeAuthority{valid: true}, &fakeProber{}, clock)

	token, err := svc.VerifyPleskSession(context.Background(), "session-123", "user@example.com")
	require.NoError(t, err)

	assert.NoError(t, svc.Logout(context.Background(), token.Value))
	assert.NoError(t, svc.Logout(context.Background(), token.Value))
	assert.NoError(t, svc.Logout(context.Background(), "never-issued"))
}
