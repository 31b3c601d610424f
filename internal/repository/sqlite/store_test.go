package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/gproxy.db")
	require.NoError(t, err)
	return store
}

func TestProviderCredentialLifecycle(t *testing.T) {
	store := openTestStore(t)

	cfg := &domain.ProviderConfig{Kind: domain.ProviderClaude, Claude: &domain.BaseURLConfig{}}
	id, err := store.UpsertProvider("claude", cfg, true)
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	// Upsert by the same name keeps the id.
	again, err := store.UpsertProvider("claude", cfg, false)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	credID, err := store.InsertCredential(id, 3, domain.NewAPIKeyCredential(domain.CredentialClaude, "sk-x"))
	require.NoError(t, err)

	rows, err := store.ListCredentials(id)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, credID, rows[0].ID)
	assert.EqualValues(t, 3, rows[0].Weight)
	assert.Equal(t, "sk-x", rows[0].Value.APIKey.APIKey)

	// Deleting the provider cascades over its credentials.
	require.NoError(t, store.DeleteProvider(id))
	rows, err = store.ListCredentials(id)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := openTestStore(t)

	providerID, err := store.UpsertProvider("openai", &domain.ProviderConfig{Kind: domain.ProviderOpenAI, OpenAI: &domain.BaseURLConfig{}}, true)
	require.NoError(t, err)
	_, err = store.InsertCredential(providerID, 1, domain.NewAPIKeyCredential(domain.CredentialOpenAI, "sk"))
	require.NoError(t, err)

	user := domain.User{Name: "alice", Enabled: true}
	require.NoError(t, store.CreateUser(&user))
	key := domain.UserKey{UserID: user.ID, Name: "default", KeyHash: "abc", Enabled: true}
	require.NoError(t, store.CreateUserKey(&key))

	require.NoError(t, store.UpsertDisallow(domain.DisallowRecord{
		Provider:     "openai",
		CredentialID: "1",
		Scope:        domain.ScopeAllModels(),
		Level:        domain.LevelCooldown,
		Until:        time.Now().Add(time.Minute),
		Reason:       "rate_limit",
		UpdatedAt:    time.Now(),
	}))

	snapshot, err := store.LoadSnapshot()
	require.NoError(t, err)
	assert.Len(t, snapshot.Providers, 1)
	assert.Len(t, snapshot.Credentials, 1)
	assert.Len(t, snapshot.Disallow, 1)
	assert.Len(t, snapshot.Users, 1)
	assert.Len(t, snapshot.UserKeys, 1)
	require.NotNil(t, snapshot.GlobalConfig)
}

// The most recent mark per (credential, scope) key wins.
func TestUpsertDisallowLastWriteWins(t *testing.T) {
	store := openTestStore(t)
	record := domain.DisallowRecord{
		Provider:     "claude",
		CredentialID: "7",
		Scope:        domain.ScopeModel("m"),
		Level:        domain.LevelCooldown,
		Until:        time.Now().Add(time.Minute),
		Reason:       "rate_limit",
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, store.UpsertDisallow(record))
	record.Level = domain.LevelDead
	record.Reason = "auth_error"
	require.NoError(t, store.UpsertDisallow(record))

	snapshot, err := store.LoadSnapshot()
	require.NoError(t, err)
	require.Len(t, snapshot.Disallow, 1)
	assert.Equal(t, domain.LevelDead, snapshot.Disallow[0].Level)
	assert.Equal(t, "auth_error", snapshot.Disallow[0].Reason)
}

// Appends are idempotent on retry: the same event stored twice keeps one
// row, and usage aggregation sees the denormalized counters.
func TestAppendEventIdempotentAndAggregates(t *testing.T) {
	store := openTestStore(t)
	event := domain.Event{Upstream: &domain.UpstreamEvent{
		TraceID:   "t1",
		At:        time.Unix(1700000000, 0).UTC(),
		Provider:  "claude",
		Model:     "claude-3-7-sonnet",
		Operation: "claude_generate",
		Usage: &domain.UsageSummary{
			InputTokens:  10,
			OutputTokens: 5,
		},
	}}
	require.NoError(t, store.AppendEvent(event))
	require.NoError(t, store.AppendEvent(event))

	aggregate, err := store.AggregateUsageTokens(domain.UsageFilter{Provider: "claude"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, aggregate.Requests)
	assert.EqualValues(t, 10, aggregate.InputTokens)
	assert.EqualValues(t, 5, aggregate.OutputTokens)
}

func TestGlobalConfigRoundTrip(t *testing.T) {
	store := openTestStore(t)

	cfg, err := store.LoadGlobalConfig()
	require.NoError(t, err)
	assert.Zero(t, cfg.BindPort)

	require.NoError(t, store.UpsertGlobalConfig(&domain.GlobalConfig{BindHost: "0.0.0.0", BindPort: 9000}))
	cfg, err = store.LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.BindPort)

	require.NoError(t, store.UpsertGlobalConfig(&domain.GlobalConfig{BindPort: 9001}))
	cfg, err = store.LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.BindPort)
}
