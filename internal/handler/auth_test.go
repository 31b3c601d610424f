package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/domain"
)

func TestKeyAuthenticatorSources(t *testing.T) {
	auth := NewKeyAuthenticator()
	auth.Reload([]domain.UserKey{{ID: 5, UserID: 2, KeyHash: HashKey("secret"), Enabled: true}})

	bearer := httptest.NewRequest("POST", "/claude/v1/messages", nil)
	bearer.Header.Set("Authorization", "Bearer secret")
	key := auth.Authenticate(bearer)
	require.NotNil(t, key)
	assert.EqualValues(t, 5, key.ID)

	apiKey := httptest.NewRequest("POST", "/claude/v1/messages", nil)
	apiKey.Header.Set("x-api-key", "secret")
	assert.NotNil(t, auth.Authenticate(apiKey))

	googKey := httptest.NewRequest("POST", "/gem/v1beta/models", nil)
	googKey.Header.Set("x-goog-api-key", "secret")
	assert.NotNil(t, auth.Authenticate(googKey))

	query := httptest.NewRequest("GET", "/gem/v1beta/models?key=secret", nil)
	assert.NotNil(t, auth.Authenticate(query))

	wrong := httptest.NewRequest("POST", "/claude/v1/messages", nil)
	wrong.Header.Set("x-api-key", "other")
	assert.Nil(t, auth.Authenticate(wrong))

	missing := httptest.NewRequest("POST", "/claude/v1/messages", nil)
	assert.Nil(t, auth.Authenticate(missing))
}

func TestKeyAuthenticatorIgnoresDisabledKeys(t *testing.T) {
	auth := NewKeyAuthenticator()
	auth.Reload([]domain.UserKey{{ID: 1, KeyHash: HashKey("secret"), Enabled: false}})
	r := httptest.NewRequest("POST", "/p/v1/messages", nil)
	r.Header.Set("x-api-key", "secret")
	assert.Nil(t, auth.Authenticate(r))
}

func TestAdminAuth(t *testing.T) {
	auth := NewAdminAuth("adm")

	viaHeader := httptest.NewRequest("GET", "/admin/providers", nil)
	viaHeader.Header.Set("x-admin-key", "adm")
	assert.True(t, auth.Check(viaHeader))

	viaBearer := httptest.NewRequest("GET", "/admin/providers", nil)
	viaBearer.Header.Set("Authorization", "Bearer adm")
	assert.True(t, auth.Check(viaBearer))

	viaQuery := httptest.NewRequest("GET", "/admin/providers?admin_key=adm", nil)
	assert.True(t, auth.Check(viaQuery))

	bad := httptest.NewRequest("GET", "/admin/providers", nil)
	bad.Header.Set("x-admin-key", "nope")
	assert.False(t, auth.Check(bad))

	// An unset admin key rejects everything.
	unset := NewAdminAuth("")
	assert.False(t, unset.Check(viaHeader))
}

func TestSplitProvider(t *testing.T) {
	name, rest := splitProvider("/claude/v1/messages")
	assert.Equal(t, "claude", name)
	assert.Equal(t, "/v1/messages", rest)

	name, rest = splitProvider("/gem/v1beta/models/gemini-2.0-flash:generateContent")
	assert.Equal(t, "gem", name)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", rest)

	name, rest = splitProvider("/lonely")
	assert.Equal(t, "lonely", name)
	assert.Equal(t, "/", rest)
}
