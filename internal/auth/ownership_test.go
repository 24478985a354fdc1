package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"mailguard/backend/internal/domain"
)

func TestGuard_Authorize(t *testing.T) {
	guard := NewGuard(zap.NewNop())
	principal := domain.Principal{Email: "user@example.com", Mailbox: "user@example.com"}

	assert.NoError(t, guard.Authorize(principal, "user@example.com"))
	assert.ErrorIs(t, guard.Authorize(principal, "other@example.com"), ErrMailboxMismatch)

	// Strict string equality, no case folding at this layer
	assert.ErrorIs(t, guard.Authorize(principal, "User@example.com"), ErrMailboxMismatch)
}
