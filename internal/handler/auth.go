package handler

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/awsl-project/gproxy/internal/domain"
)

// HashKey is the stored form of a downstream API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// KeyAuthenticator checks downstream API keys against an in-memory hash
// index rebuilt on admin mutations.
type KeyAuthenticator struct {
	keys atomic.Pointer[map[string]domain.UserKey]
}

func NewKeyAuthenticator() *KeyAuthenticator {
	a := &KeyAuthenticator{}
	empty := map[string]domain.UserKey{}
	a.keys.Store(&empty)
	return a
}

// Reload replaces the key index.
func (a *KeyAuthenticator) Reload(keys []domain.UserKey) {
	next := make(map[string]domain.UserKey, len(keys))
	for _, key := range keys {
		if key.Enabled {
			next[key.KeyHash] = key
		}
	}
	a.keys.Store(&next)
}

// Authenticate extracts the presented key from the request — bearer,
// x-api-key / x-goog-api-key, or ?key= — and resolves it. Returns nil on
// miss.
func (a *KeyAuthenticator) Authenticate(r *http.Request) *domain.UserKey {
	presented := extractKey(r)
	if presented == "" {
		return nil
	}
	index := *a.keys.Load()
	if key, ok := index[HashKey(presented)]; ok {
		return &key
	}
	return nil
}

func extractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	if key := r.Header.Get("x-goog-api-key"); key != "" {
		return key
	}
	return r.URL.Query().Get("key")
}

// AdminAuth validates the admin key presented via x-admin-key, bearer or
// ?admin_key=. A constant-time compare keeps the key unguessable.
type AdminAuth struct {
	key string
}

func NewAdminAuth(key string) *AdminAuth { return &AdminAuth{key: key} }

func (a *AdminAuth) Check(r *http.Request) bool {
	if a.key == "" {
		return false
	}
	presented := r.Header.Get("x-admin-key")
	if presented == "" {
		if auth := r.Header.Get("Authorization"); auth != "" {
			presented, _ = strings.CutPrefix(auth, "Bearer ")
		}
	}
	if presented == "" {
		presented = r.URL.Query().Get("admin_key")
	}
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(a.key)) == 1
}
