package provider

import (
	"context"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/awsl-project/gproxy/internal/domain"
)

const (
	geminiCLIDefaultBaseURL = "https://cloudcode-pa.googleapis.com"
	geminiCLIClientID       = "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com"
	geminiCLIClientSecret   = "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"
	geminiCLIScope          = "https://www.googleapis.com/auth/cloud-platform https://www.googleapis.com/auth/userinfo.email https://www.googleapis.com/auth/userinfo.profile"
)

var googleAuthEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL: googleTokenURL,
}

// geminiCLIAdapter serves the Gemini family through the Cloud Code
// private surface with Google OAuth credentials.
type geminiCLIAdapter struct{}

func (a *geminiCLIAdapter) Name() domain.ProviderKind { return domain.ProviderGeminiCLI }

func (a *geminiCLIAdapter) DispatchTable(_ *domain.ProviderConfig) domain.DispatchTable {
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

func (a *geminiCLIAdapter) Build(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	base := ""
	if cfg != nil && cfg.GeminiCLI != nil {
		base = cfg.GeminiCLI.BaseURL
	}
	if cred.Kind != domain.CredentialGeminiCLI || cred.OAuth == nil {
		return nil, domain.Internal("credential kind mismatch", nil)
	}
	clientID, clientSecret := googleClientOf(cred)
	accessToken, _, err := ensureOAuthTokens(ctx, env, googleTokenURL, clientID, clientSecret, cred, op.CredentialID)
	if err != nil {
		return nil, err
	}
	headers := jsonHeaders()
	bearer(headers, accessToken)
	return buildGeminiShapedRequest(base, geminiCLIDefaultBaseURL, headers, op)
}

func (a *geminiCLIAdapter) OnAuthFailure(ctx context.Context, env *Env, _ *domain.ProviderConfig, cred *domain.Credential, credentialID string, _ int) (*domain.Credential, error) {
	clientID, clientSecret := googleClientOf(cred)
	if env.Tokens != nil {
		env.Tokens.Drop(credentialID)
	}
	return refreshOAuthToken(ctx, env, googleTokenURL, clientID, clientSecret, cred, credentialID)
}

func (a *geminiCLIAdapter) OAuthStart(_ context.Context, _ *Env, _ *domain.ProviderConfig, redirectURI string) (*OAuthStartResult, error) {
	state := randomToken(16)
	verifier, challenge := pkcePair()
	oauthStates.put(state, verifier, redirectURI)
	extra := url.Values{}
	extra.Set("access_type", "offline")
	extra.Set("prompt", "consent")
	return &OAuthStartResult{
		AuthURL:     authCodeURL(googleAuthEndpoint, geminiCLIClientID, redirectURI, geminiCLIScope, state, challenge, extra),
		State:       state,
		RedirectURI: redirectURI,
		Mode:        "redirect",
	}, nil
}

func (a *geminiCLIAdapter) OAuthCallback(ctx context.Context, env *Env, _ *domain.ProviderConfig, query url.Values) (*domain.Credential, error) {
	code := query.Get("code")
	state := query.Get("state")
	entry, ok := oauthStates.take(state)
	if !ok {
		return nil, domain.BadRequest("unknown oauth state")
	}
	tokens, err := exchangeCode(ctx, env, googleTokenURL, geminiCLIClientID, geminiCLIClientSecret, code, entry.redirectURI, entry.verifier)
	if err != nil {
		return nil, err
	}
	return &domain.Credential{
		Kind: domain.CredentialGeminiCLI,
		OAuth: &domain.OAuthCredential{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			IDToken:      tokens.IDToken,
			ExpiresAt:    tokens.expiresAt(nowFunc()).Unix(),
			ClientID:     geminiCLIClientID,
			ClientSecret: geminiCLIClientSecret,
		},
	}, nil
}

// googleClientOf prefers the client pair stored on the credential so
// imported credentials keep refreshing with their original client.
func googleClientOf(cred *domain.Credential) (string, string) {
	clientID := geminiCLIClientID
	clientSecret := geminiCLIClientSecret
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

func credentialKeyOf(cred *domain.Credential) string {
	if cred.OAuth != nil && cred.OAuth.UserEmail != "" {
		return string(cred.Kind) + ":" + cred.OAuth.UserEmail
	}
	return string(cred.Kind)
}
