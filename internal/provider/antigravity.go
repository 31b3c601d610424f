package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/awsl-project/gproxy/internal/domain"
)

const (
	antigravityDefaultBaseURL = "https://daily-cloudcode-pa.sandbox.googleapis.com"
	antigravityClientID       = "1071006060591-tmhssin7t5p68uep1v1mh7bmcbcmg30j.apps.googleusercontent.com"
	antigravityClientSecret   = "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"
	antigravityScope          = "https://www.googleapis.com/auth/cloud-platform https://www.googleapis.com/auth/userinfo.email"
)

// antigravityAdapter serves Gemini through the Antigravity sandbox
// surface with Google OAuth credentials; the OAuth plumbing is shared
// with the Gemini CLI adapter.
type antigravityAdapter struct{}

func (a *antigravityAdapter) Name() domain.ProviderKind { return domain.ProviderAntigravity }

func (a *antigravityAdapter) DispatchTable(_ *domain.ProviderConfig) domain.DispatchTable {
	return tableSpec{
		claudeGenerate: domain.Transform(domain.ProtoGemini),
		claudeBasic:    domain.Transform(domain.ProtoGemini),
		geminiGenerate: domain.Native(),
		geminiBasic:    domain.Native(),
		chat:           domain.Transform(domain.ProtoGemini),
		responses:      domain.Transform(domain.ProtoGemini),
		openAIBasic:    domain.Transform(domain.ProtoGemini),
		oauth:          domain.Native(),
		usage:          domain.Unsupported(),
	}.build()
}

func (a *antigravityAdapter) Build(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	base := ""
	if cfg != nil && cfg.Antigravity != nil {
		base = cfg.Antigravity.BaseURL
	}
	if cred.Kind != domain.CredentialAntigravity || cred.OAuth == nil {
		return nil, domain.Internal("credential kind mismatch", nil)
	}
	clientID, clientSecret := antigravityClientOf(cred)
	accessToken, _, err := ensureOAuthTokens(ctx, env, googleTokenURL, clientID, clientSecret, cred, op.CredentialID)
	if err != nil {
		return nil, err
	}
	headers := jsonHeaders()
	bearer(headers, accessToken)
	return buildGeminiShapedRequest(base, antigravityDefaultBaseURL, headers, op)
}

func (a *antigravityAdapter) OnAuthFailure(ctx context.Context, env *Env, _ *domain.ProviderConfig, cred *domain.Credential, credentialID string, _ int) (*domain.Credential, error) {
	clientID, clientSecret := antigravityClientOf(cred)
	if env.Tokens != nil {
		env.Tokens.Drop(credentialID)
	}
	return refreshOAuthToken(ctx, env, googleTokenURL, clientID, clientSecret, cred, credentialID)
}

func (a *antigravityAdapter) OAuthStart(_ context.Context, _ *Env, _ *domain.ProviderConfig, redirectURI string) (*OAuthStartResult, error) {
	state := randomToken(16)
	verifier, challenge := pkcePair()
	oauthStates.put(state, verifier, redirectURI)
	extra := url.Values{}
	extra.Set("access_type", "offline")
	extra.Set("prompt", "consent")
	return &OAuthStartResult{
		AuthURL:     authCodeURL(googleAuthEndpoint, antigravityClientID, redirectURI, antigravityScope, state, challenge, extra),
		State:       state,
		RedirectURI: redirectURI,
		Mode:        "redirect",
	}, nil
}

func (a *antigravityAdapter) OAuthCallback(ctx context.Context, env *Env, _ *domain.ProviderConfig, query url.Values) (*domain.Credential, error) {
	state := query.Get("state")
	entry, ok := oauthStates.take(state)
	if !ok {
		return nil, domain.BadRequest("unknown oauth state")
	}
	tokens, err := exchangeCode(ctx, env, googleTokenURL, antigravityClientID, antigravityClientSecret, query.Get("code"), entry.redirectURI, entry.verifier)
	if err != nil {
		return nil, err
	}
	return &domain.Credential{
		Kind: domain.CredentialAntigravity,
		OAuth: &domain.OAuthCredential{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			IDToken:      tokens.IDToken,
			ExpiresAt:    time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix(),
			ClientID:     antigravityClientID,
			ClientSecret: antigravityClientSecret,
		},
	}, nil
}

func antigravityClientOf(cred *domain.Credential) (string, string) {
	clientID := antigravityClientID
	clientSecret := antigravityClientSecret
	if cred.OAuth != nil {
		if cred.OAuth.ClientID != "" {
			clientID = cred.OAuth.ClientID
		}
		if cred.OAuth.ClientSecret != "" {
			clientSecret = cred.OAuth.ClientSecret
		}
	}
	return clientID, clientSecret
}
