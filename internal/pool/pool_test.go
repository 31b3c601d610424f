package pool

import (
	"context"
	"math/rand/v2"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/domain"
)

func entry(id string, enabled bool, weight uint32) domain.CredentialEntry {
	return domain.CredentialEntry{
		ID:      id,
		Enabled: enabled,
		Weight:  weight,
		Value:   domain.NewAPIKeyCredential(domain.CredentialClaude, "sk-"+id),
	}
}

func newTestPool(entries ...domain.CredentialEntry) *Pool {
	snapshot := &Snapshot{
		Credentials: entries,
		Disallow:    map[domain.DisallowKey]domain.DisallowEntry{},
	}
	p := New("claude", snapshot, nil)
	p.SetRandSource(rand.NewPCG(1, 2))
	return p
}

func okAttempt(picked *[]string) Attempt {
	return func(_ context.Context, entry domain.CredentialEntry) (*domain.UpstreamHTTPResponse, *domain.AttemptFailure) {
		*picked = append(*picked, entry.ID)
		return &domain.UpstreamHTTPResponse{Status: 200}, nil
	}
}

func TestExecuteSkipsDisabled(t *testing.T) {
	p := newTestPool(entry("a", false, 1), entry("b", true, 1))
	var picked []string
	resp, err := p.Execute(context.Background(), domain.ScopeAllModels(), okAttempt(&picked))
	require.Nil(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, []string{"b"}, picked)
}

func TestExecuteNoCredential(t *testing.T) {
	p := newTestPool()
	_, err := p.Execute(context.Background(), domain.ScopeAllModels(), okAttempt(new([]string)))
	require.NotNil(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.Contains(t, string(err.Body), "no credential available")
}

// A marked failure removes the credential from the working set and the
// loop moves on; the mark lands in the snapshot.
func TestExecuteRetriesOnMarkedFailure(t *testing.T) {
	p := newTestPool(entry("a", true, 1), entry("b", true, 1))
	var picked []string
	attempt := func(_ context.Context, e domain.CredentialEntry) (*domain.UpstreamHTTPResponse, *domain.AttemptFailure) {
		picked = append(picked, e.ID)
		if len(picked) == 1 {
			return nil, &domain.AttemptFailure{
				Passthrough: domain.PassthroughFromStatus(429, "rate limited"),
				Mark: &domain.DisallowMark{
					Scope:    domain.ScopeAllModels(),
					Level:    domain.LevelCooldown,
					Duration: 2 * time.Second,
					Reason:   ReasonRateLimit,
				},
			}
		}
		return &domain.UpstreamHTTPResponse{Status: 200}, nil
	}
	resp, err := p.Execute(context.Background(), domain.ScopeAllModels(), attempt)
	require.Nil(t, err)
	assert.Equal(t, 200, resp.Status)
	require.Len(t, picked, 2)
	assert.NotEqual(t, picked[0], picked[1])

	snapshot := p.Snapshot()
	require.Len(t, snapshot.Disallow, 1)
	key := domain.DisallowKey{CredentialID: picked[0], Scope: domain.ScopeAllModels()}
	mark, ok := snapshot.Disallow[key]
	require.True(t, ok)
	assert.Equal(t, domain.LevelCooldown, mark.Level)
	assert.True(t, mark.Active(time.Now()))
}

// A failure without a mark is not retriable; it surfaces verbatim.
func TestExecuteUnmarkedFailureStops(t *testing.T) {
	p := newTestPool(entry("a", true, 1), entry("b", true, 1))
	calls := 0
	attempt := func(context.Context, domain.CredentialEntry) (*domain.UpstreamHTTPResponse, *domain.AttemptFailure) {
		calls++
		return nil, &domain.AttemptFailure{Passthrough: domain.PassthroughFromStatus(400, "bad request")}
	}
	_, err := p.Execute(context.Background(), domain.ScopeAllModels(), attempt)
	require.NotNil(t, err)
	assert.Equal(t, 400, err.Status)
	assert.Equal(t, 1, calls)
}

func TestExecuteScopeHint(t *testing.T) {
	p := newTestPool(entry("a", true, 1))
	p.ApplyMark("a", domain.DisallowMark{
		Scope:    domain.ScopeModel("m1"),
		Level:    domain.LevelCooldown,
		Duration: time.Minute,
		Reason:   ReasonRateLimit,
	})

	// A model-scoped mark vetoes only that model.
	_, err := p.Execute(context.Background(), domain.ScopeModel("m1"), okAttempt(new([]string)))
	require.NotNil(t, err)

	var picked []string
	_, execErr := p.Execute(context.Background(), domain.ScopeModel("m2"), okAttempt(&picked))
	require.Nil(t, execErr)
	assert.Equal(t, []string{"a"}, picked)

	// An all-models mark vetoes every scope.
	p.ApplyMark("a", domain.DisallowMark{
		Scope:  domain.ScopeAllModels(),
		Level:  domain.LevelDead,
		Reason: ReasonAuthError,
	})
	_, err = p.Execute(context.Background(), domain.ScopeModel("m2"), okAttempt(new([]string)))
	require.NotNil(t, err)
}

func TestExecuteForID(t *testing.T) {
	p := newTestPool(entry("a", true, 1), entry("b", false, 1))

	_, err := p.ExecuteForID(context.Background(), "missing", domain.ScopeAllModels(), okAttempt(new([]string)))
	require.NotNil(t, err)
	assert.Equal(t, http.StatusNotFound, err.Status)

	_, err = p.ExecuteForID(context.Background(), "b", domain.ScopeAllModels(), okAttempt(new([]string)))
	require.NotNil(t, err)
	assert.Equal(t, http.StatusForbidden, err.Status)

	p.ApplyMark("a", domain.DisallowMark{Scope: domain.ScopeAllModels(), Level: domain.LevelDead, Reason: ReasonAuthError})
	_, err = p.ExecuteForID(context.Background(), "a", domain.ScopeAllModels(), okAttempt(new([]string)))
	require.NotNil(t, err)
	assert.Equal(t, http.StatusForbidden, err.Status)
}

// Stale entries are pruned when the next mark is applied.
func TestApplyMarkPrunesExpired(t *testing.T) {
	p := newTestPool(entry("a", true, 1), entry("b", true, 1))
	p.ApplyMark("a", domain.DisallowMark{
		Scope:    domain.ScopeAllModels(),
		Level:    domain.LevelTransient,
		Duration: -time.Second, // already expired
		Reason:   ReasonNetworkError,
	})
	p.ApplyMark("b", domain.DisallowMark{
		Scope:    domain.ScopeAllModels(),
		Level:    domain.LevelCooldown,
		Duration: time.Minute,
		Reason:   ReasonRateLimit,
	})
	snapshot := p.Snapshot()
	require.Len(t, snapshot.Disallow, 1)
	_, ok := snapshot.Disallow[domain.DisallowKey{CredentialID: "b", Scope: domain.ScopeAllModels()}]
	assert.True(t, ok)
}

// The weighted picker is unbiased: empirical frequencies track w_i / ΣW.
func TestWeightedPickDistribution(t *testing.T) {
	p := newTestPool(entry("a", true, 1), entry("b", true, 3))
	p.SetRandSource(rand.NewPCG(42, 7))

	counts := map[string]int{}
	const rounds = 4000
	for i := 0; i < rounds; i++ {
		var picked []string
		_, err := p.Execute(context.Background(), domain.ScopeAllModels(), okAttempt(&picked))
		require.Nil(t, err)
		counts[picked[0]]++
	}
	ratio := float64(counts["b"]) / float64(rounds)
	assert.InDelta(t, 0.75, ratio, 0.03)
}

func TestWeightedPickZeroWeightsUniform(t *testing.T) {
	p := newTestPool(entry("a", true, 0), entry("b", true, 0))
	p.SetRandSource(rand.NewPCG(3, 4))
	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		var picked []string
		_, err := p.Execute(context.Background(), domain.ScopeAllModels(), okAttempt(&picked))
		require.Nil(t, err)
		counts[picked[0]]++
	}
	assert.InDelta(t, 0.5, float64(counts["a"])/2000, 0.05)
}

// Concurrent selections never see a disabled or disallowed entry.
func TestConcurrentSelectionRespectsState(t *testing.T) {
	p := newTestPool(entry("ok", true, 1), entry("off", false, 1), entry("dead", true, 1))
	p.ApplyMark("dead", domain.DisallowMark{Scope: domain.ScopeAllModels(), Level: domain.LevelDead, Reason: ReasonAuthError})

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = p.Execute(context.Background(), domain.ScopeAllModels(), func(_ context.Context, e domain.CredentialEntry) (*domain.UpstreamHTTPResponse, *domain.AttemptFailure) {
					mu.Lock()
					seen[e.ID] = true
					mu.Unlock()
					return &domain.UpstreamHTTPResponse{Status: 200}, nil
				})
			}
		}()
	}
	wg.Wait()
	assert.True(t, seen["ok"])
	assert.False(t, seen["off"])
	assert.False(t, seen["dead"])
}
