package pool

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/awsl-project/gproxy/internal/domain"
)

// refreshSkew is how close to expiry a cached token is treated as stale.
const refreshSkew = 60 * time.Second

// TokenCache is the process-wide per-credential-id OAuth token store.
// Initialized lazily, never torn down; bounded by credential cardinality.
type TokenCache struct {
	cache *gocache.Cache
}

var defaultTokenCache = NewTokenCache()

// Tokens returns the process-wide token cache.
func Tokens() *TokenCache { return defaultTokenCache }

func NewTokenCache() *TokenCache {
	return &TokenCache{cache: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

// Get returns the cached token set if present and not within refreshSkew
// of expiry.
func (c *TokenCache) Get(credentialID string) (domain.TokenSet, bool) {
	value, ok := c.cache.Get(credentialID)
	if !ok {
		return domain.TokenSet{}, false
	}
	tokens := value.(domain.TokenSet)
	if tokens.Expired(time.Now(), refreshSkew) {
		return domain.TokenSet{}, false
	}
	return tokens, true
}

// Put stores a refreshed token set, expiring it from the cache shortly
// after the token itself dies.
func (c *TokenCache) Put(credentialID string, tokens domain.TokenSet) {
	ttl := time.Until(tokens.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	c.cache.Set(credentialID, tokens, ttl)
}

// Drop forgets a credential's tokens (credential deleted or replaced).
func (c *TokenCache) Drop(credentialID string) {
	c.cache.Delete(credentialID)
}
