package pool

import (
	"net/http"
	"strconv"
	"time"

	"github.com/awsl-project/gproxy/internal/domain"
)

// Disallow reasons produced by status classification.
const (
	ReasonAuthError           = "auth_error"
	ReasonRateLimit           = "rate_limit"
	ReasonUpstreamUnavailable = "upstream_unavailable"
	ReasonNetworkError        = "network_error"
	ReasonRefreshTokenInvalid = "refresh_token_invalid"
)

const (
	defaultRateLimitCooldown = 60 * time.Second
	transientDuration        = 30 * time.Second
)

// MarkForStatus is the total status→mark mapping:
//
//	401/403      -> Dead, auth_error
//	429          -> Cooldown for Retry-After (else 60s), rate_limit
//	502/503/504  -> Transient 30s, upstream_unavailable
//	other        -> no mark
func MarkForStatus(status int, headers http.Header, scope domain.DisallowScope) *domain.DisallowMark {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &domain.DisallowMark{
			Scope:  scope,
			Level:  domain.LevelDead,
			Reason: ReasonAuthError,
		}
	case http.StatusTooManyRequests:
		return &domain.DisallowMark{
			Scope:    scope,
			Level:    domain.LevelCooldown,
			Duration: retryAfter(headers),
			Reason:   ReasonRateLimit,
		}
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &domain.DisallowMark{
			Scope:    scope,
			Level:    domain.LevelTransient,
			Duration: transientDuration,
			Reason:   ReasonUpstreamUnavailable,
		}
	}
	return nil
}

// MarkForTransport classifies a network/transport failure.
func MarkForTransport(scope domain.DisallowScope) *domain.DisallowMark {
	return &domain.DisallowMark{
		Scope:    scope,
		Level:    domain.LevelTransient,
		Duration: transientDuration,
		Reason:   ReasonNetworkError,
	}
}

// retryAfter parses the Retry-After header as delta-seconds or an
// HTTP-date. Dates in the past clamp to zero; absent or malformed values
// fall back to 60s.
func retryAfter(headers http.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return defaultRateLimitCooldown
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		wait := time.Until(at)
		if wait < 0 {
			return 0
		}
		return wait
	}
	return defaultRateLimitCooldown
}
