package pool

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/domain"
)

// The status→mark mapping is total over the status space.
func TestMarkForStatusTable(t *testing.T) {
	scope := domain.ScopeAllModels()

	for _, status := range []int{401, 403} {
		mark := MarkForStatus(status, http.Header{}, scope)
		require.NotNil(t, mark, "status %d", status)
		assert.Equal(t, domain.LevelDead, mark.Level)
		assert.Equal(t, ReasonAuthError, mark.Reason)
		assert.Zero(t, mark.Duration)
	}

	mark := MarkForStatus(429, http.Header{}, scope)
	require.NotNil(t, mark)
	assert.Equal(t, domain.LevelCooldown, mark.Level)
	assert.Equal(t, 60*time.Second, mark.Duration)
	assert.Equal(t, ReasonRateLimit, mark.Reason)

	for _, status := range []int{502, 503, 504} {
		mark := MarkForStatus(status, http.Header{}, scope)
		require.NotNil(t, mark, "status %d", status)
		assert.Equal(t, domain.LevelTransient, mark.Level)
		assert.Equal(t, 30*time.Second, mark.Duration)
		assert.Equal(t, ReasonUpstreamUnavailable, mark.Reason)
	}

	// Everything else carries no mark.
	for _, status := range []int{200, 201, 204, 400, 404, 409, 422, 500, 501} {
		assert.Nil(t, MarkForStatus(status, http.Header{}, scope), "status %d", status)
	}

	transport := MarkForTransport(scope)
	assert.Equal(t, domain.LevelTransient, transport.Level)
	assert.Equal(t, ReasonNetworkError, transport.Reason)
}

func TestRetryAfterSeconds(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", "2")
	mark := MarkForStatus(429, headers, domain.ScopeAllModels())
	require.NotNil(t, mark)
	assert.Equal(t, 2*time.Second, mark.Duration)
}

func TestRetryAfterHTTPDate(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", time.Now().Add(90*time.Second).UTC().Format(http.TimeFormat))
	mark := MarkForStatus(429, headers, domain.ScopeAllModels())
	require.NotNil(t, mark)
	assert.Greater(t, mark.Duration, 80*time.Second)
	assert.LessOrEqual(t, mark.Duration, 90*time.Second)
}

// An HTTP-date in the past clamps to zero for immediate recovery.
func TestRetryAfterPastDateClampsToZero(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat))
	mark := MarkForStatus(429, headers, domain.ScopeAllModels())
	require.NotNil(t, mark)
	assert.Equal(t, time.Duration(0), mark.Duration)
}

func TestRetryAfterMalformed(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", "soon")
	mark := MarkForStatus(429, headers, domain.ScopeAllModels())
	require.NotNil(t, mark)
	assert.Equal(t, 60*time.Second, mark.Duration)
}
