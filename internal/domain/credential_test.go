package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A Claude-Code credential carrying only a session key parses; the token
// fields stay zero until the cookie bootstrap runs.
func TestClaudeCodeAllowsSessionKeyOnly(t *testing.T) {
	payload := `{"kind":"claude_code","claude_code":{"session_key":"sess_123"}}`
	var cred Credential
	require.NoError(t, json.Unmarshal([]byte(payload), &cred))
	require.NoError(t, cred.Validate())
	require.NotNil(t, cred.ClaudeCode)
	assert.Empty(t, cred.ClaudeCode.AccessToken)
	assert.Empty(t, cred.ClaudeCode.RefreshToken)
	assert.Zero(t, cred.ClaudeCode.ExpiresAt)
	assert.Equal(t, "sess_123", cred.ClaudeCode.SessionKey)
}

// The camelCase spellings Claude Code exports are accepted as aliases.
func TestClaudeCodeCamelCaseAliases(t *testing.T) {
	payload := `{
		"accessToken":"at","refreshToken":"rt","sessionKey":"sk",
		"subscriptionType":"max","rateLimitTier":"tier2","expires_at":123
	}`
	var cred ClaudeCodeCredential
	require.NoError(t, json.Unmarshal([]byte(payload), &cred))
	assert.Equal(t, "at", cred.AccessToken)
	assert.Equal(t, "rt", cred.RefreshToken)
	assert.Equal(t, "sk", cred.SessionKey)
	assert.Equal(t, "max", cred.SubscriptionType)
	assert.Equal(t, "tier2", cred.RateLimitTier)
	assert.EqualValues(t, 123, cred.ExpiresAt)
}

// snake_case wins when both spellings are present.
func TestClaudeCodeSnakeCaseWins(t *testing.T) {
	payload := `{"access_token":"snake","accessToken":"camel"}`
	var cred ClaudeCodeCredential
	require.NoError(t, json.Unmarshal([]byte(payload), &cred))
	assert.Equal(t, "snake", cred.AccessToken)
}

func TestCredentialValidateKindMismatch(t *testing.T) {
	bad := Credential{Kind: CredentialVertex}
	assert.Error(t, bad.Validate())

	good := NewAPIKeyCredential(CredentialOpenAI, "sk")
	assert.NoError(t, good.Validate())

	oauth := Credential{Kind: CredentialCodex}
	assert.Error(t, oauth.Validate())
	oauth.OAuth = &OAuthCredential{AccessToken: "a"}
	assert.NoError(t, oauth.Validate())
}

func TestDispatchTableJSONRoundTrip(t *testing.T) {
	var ops [OperationKindCount]DispatchRule
	ops[OpClaudeGenerate] = Transform(ProtoOpenAIResponse)
	ops[OpOpenAIChatGenerate] = Native()
	table := NewDispatchTable(ops)

	encoded, err := json.Marshal(table)
	require.NoError(t, err)

	var decoded DispatchTable
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	rule := decoded.Rule(OpClaudeGenerate)
	assert.Equal(t, DispatchTransform, rule.Kind)
	assert.Equal(t, ProtoOpenAIResponse, rule.Target)
	assert.Equal(t, DispatchNative, decoded.Rule(OpOpenAIChatGenerate).Kind)
	// Unset slots normalize to unsupported.
	assert.Equal(t, DispatchUnsupported, decoded.Rule(OpGeminiGenerate).Kind)
}
