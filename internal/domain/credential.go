package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CredentialKind discriminates the credential sum type.
type CredentialKind string

var (
	CredentialOpenAI        CredentialKind = "openai"
	CredentialClaude        CredentialKind = "claude"
	CredentialAIStudio      CredentialKind = "aistudio"
	CredentialVertexExpress CredentialKind = "vertex_express"
	CredentialVertex        CredentialKind = "vertex"
	CredentialGeminiCLI     CredentialKind = "gemini_cli"
	CredentialClaudeCode    CredentialKind = "claude_code"
	CredentialCodex         CredentialKind = "codex"
	CredentialAntigravity   CredentialKind = "antigravity"
	CredentialNvidia        CredentialKind = "nvidia"
	CredentialDeepSeek      CredentialKind = "deepseek"
	CredentialCustom        CredentialKind = "custom"
)

// APIKeyCredential is a plain bearer/x-api-key secret.
type APIKeyCredential struct {
	APIKey string `json:"api_key"`
}

// ServiceAccountCredential carries the Google service-account JSON fields
// Vertex needs. Metadata fields are kept for round-trip compatibility.
type ServiceAccountCredential struct {
	ProjectID               string `json:"project_id"`
	ClientEmail             string `json:"client_email"`
	PrivateKey              string `json:"private_key"`
	PrivateKeyID            string `json:"private_key_id"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri,omitempty"`
	TokenURI                string `json:"token_uri,omitempty"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url,omitempty"`
	ClientX509CertURL       string `json:"client_x509_cert_url,omitempty"`
	UniverseDomain          string `json:"universe_domain,omitempty"`
	AccessToken             string `json:"access_token"`
	ExpiresAt               int64  `json:"expires_at"`
}

// OAuthCredential is the shared shape of the OAuth-refresh credential
// variants (GeminiCLI, Codex, Antigravity).
type OAuthCredential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	ProjectID    string `json:"project_id,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	AccountID    string `json:"account_id,omitempty"`
	UserEmail    string `json:"user_email,omitempty"`
}

// ClaudeCodeCredential additionally carries a long-lived session key used
// to bootstrap an OAuth code via cookie-authenticated authorize, plus the
// 1M-context subscription flags.
type ClaudeCodeCredential struct {
	AccessToken            string `json:"access_token"`
	RefreshToken           string `json:"refresh_token"`
	ExpiresAt              int64  `json:"expires_at"`
	EnableClaude1MSonnet   *bool  `json:"enable_claude_1m_sonnet,omitempty"`
	EnableClaude1MOpus     *bool  `json:"enable_claude_1m_opus,omitempty"`
	SupportsClaude1MSonnet *bool  `json:"supports_claude_1m_sonnet,omitempty"`
	SupportsClaude1MOpus   *bool  `json:"supports_claude_1m_opus,omitempty"`
	SubscriptionType       string `json:"subscription_type,omitempty"`
	RateLimitTier          string `json:"rate_limit_tier,omitempty"`
	SessionKey             string `json:"session_key,omitempty"`
	UserEmail              string `json:"user_email,omitempty"`
}

// UnmarshalJSON accepts the camelCase field spellings that Claude Code
// exports alongside the snake_case ones. Session-key-only credentials are
// valid; token fields stay zero until the cookie bootstrap runs.
func (c *ClaudeCodeCredential) UnmarshalJSON(data []byte) error {
	type plain ClaudeCodeCredential
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var alias struct {
		AccessToken      string `json:"accessToken"`
		RefreshToken     string `json:"refreshToken"`
		SessionKey       string `json:"sessionKey"`
		SubscriptionType string `json:"subscriptionType"`
		RateLimitTier    string `json:"rateLimitTier"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*c = ClaudeCodeCredential(p)
	if c.AccessToken == "" {
		c.AccessToken = alias.AccessToken
	}
	if c.RefreshToken == "" {
		c.RefreshToken = alias.RefreshToken
	}
	if c.SessionKey == "" {
		c.SessionKey = alias.SessionKey
	}
	if c.SubscriptionType == "" {
		c.SubscriptionType = alias.SubscriptionType
	}
	if c.RateLimitTier == "" {
		c.RateLimitTier = alias.RateLimitTier
	}
	return nil
}

// Credential is the tagged union over all provider credential shapes.
// Exactly one variant field is non-nil for a valid credential.
type Credential struct {
	Kind CredentialKind `json:"kind"`

	APIKey         *APIKeyCredential         `json:"api_key_credential,omitempty"`
	ServiceAccount *ServiceAccountCredential `json:"service_account,omitempty"`
	OAuth          *OAuthCredential          `json:"oauth,omitempty"`
	ClaudeCode     *ClaudeCodeCredential     `json:"claude_code,omitempty"`
}

func NewAPIKeyCredential(kind CredentialKind, key string) Credential {
	return Credential{Kind: kind, APIKey: &APIKeyCredential{APIKey: key}}
}

// Validate checks that the variant payload matches the kind tag.
func (c *Credential) Validate() error {
	switch c.Kind {
	case CredentialOpenAI, CredentialClaude, CredentialAIStudio, CredentialVertexExpress,
		CredentialNvidia, CredentialDeepSeek, CredentialCustom:
		if c.APIKey == nil {
			return fmt.Errorf("credential %s: missing api key payload", c.Kind)
		}
	case CredentialVertex:
		if c.ServiceAccount == nil {
			return fmt.Errorf("credential vertex: missing service account payload")
		}
	case CredentialGeminiCLI, CredentialCodex, CredentialAntigravity:
		if c.OAuth == nil {
			return fmt.Errorf("credential %s: missing oauth payload", c.Kind)
		}
	case CredentialClaudeCode:
		if c.ClaudeCode == nil {
			return fmt.Errorf("credential claude_code: missing payload")
		}
	default:
		return fmt.Errorf("unknown credential kind %q", c.Kind)
	}
	return nil
}

// IsOAuth reports whether the credential participates in token refresh.
func (c *Credential) IsOAuth() bool {
	switch c.Kind {
	case CredentialGeminiCLI, CredentialClaudeCode, CredentialCodex, CredentialAntigravity, CredentialVertex:
		return true
	}
	return false
}

// CredentialEntry is one selectable pool member.
type CredentialEntry struct {
	ID      string     `json:"id"`
	Enabled bool       `json:"enabled"`
	Weight  uint32     `json:"weight"`
	Value   Credential `json:"value"`
}

// TokenSet is a refreshed access/refresh token pair with its expiry.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the token is past, or within skew of, expiry.
func (t TokenSet) Expired(now time.Time, skew time.Duration) bool {
	if t.AccessToken == "" {
		return true
	}
	return !now.Add(skew).Before(t.ExpiresAt)
}
