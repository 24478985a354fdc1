package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailguard/backend/internal/domain"
)

func TestAdapter_UnknownMailboxIsEmpty(t *testing.T) {
	adapter := NewAdapter()

	rules, err := adapter.GetRules(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, rules.Whitelist)
	assert.Empty(t, rules.Blacklist)
	assert.True(t, rules.LastUpdated.IsZero())
}

func TestAdapter_AddAndRemove(t *testing.T) {
	now := time.Now()
	adapter := NewAdapterWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, adapter.AddRule(ctx, "user@example.com", domain.ListKindWhitelist, "friend@example.org"))
	require.NoError(t, adapter.AddRule(ctx, "user@example.com", domain.ListKindBlacklist, "@spam.example"))

	rules, err := adapter.GetRules(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"friend@example.org"}, rules.Whitelist)
	assert.Equal(t, []string{"@spam.example"}, rules.Blacklist)
	assert.Equal(t, now, rules.LastUpdated)

	require.NoError(t, adapter.RemoveRule(ctx, "user@example.com", domain.ListKindWhitelist, "friend@example.org"))
	rules, err = adapter.GetRules(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Empty(t, rules.Whitelist)
	assert.Equal(t, []string{"@spam.example"}, rules.Blacklist)
}

func TestAdapter_SortedSnapshot(t *testing.T) {
	adapter := NewAdapter()
	ctx := context.Background()

	for _, entry := range []string{"c@example.com", "a@example.com", "b@example.com"} {
		require.NoError(t, adapter.AddRule(ctx, "user@example.com", domain.ListKindWhitelist, entry))
	}

	rules, err := adapter.GetRules(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, rules.Whitelist)
}

func TestAdapter_MailboxesAreIsolated(t *testing.T) {
	adapter := NewAdapter()
	ctx := context.Background()

	require.NoError(t, adapter.AddRule(ctx, "a@example.com", domain.ListKindWhitelist, "x@example.org"))

	rules, err := adapter.GetRules(ctx, "b@example.com")
	require.NoError(t, err)
	assert.Empty(t, rules.Whitelist)
}
