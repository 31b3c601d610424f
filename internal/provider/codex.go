package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/awsl-project/gproxy/internal/domain"
)

const (
	codexDefaultBaseURL = "https://chatgpt.com/backend-api/codex"
	codexTokenURL       = "https://auth.openai.com/oauth/token"
	codexClientID       = "app_EMoamEEZ73f0CkXaXp7hrann"
	codexScope          = "openid profile email offline_access"
)

var codexAuthEndpoint = oauth2.Endpoint{
	AuthURL:  "https://auth.openai.com/oauth/authorize",
	TokenURL: codexTokenURL,
}

// codexAdapter serves the Responses family through the ChatGPT Codex
// backend with OpenAI OAuth credentials. Everything else transforms to
// Responses.
type codexAdapter struct{}

func (a *codexAdapter) Name() domain.ProviderKind { return domain.ProviderCodex }

func (a *codexAdapter) DispatchTable(_ *domain.ProviderConfig) domain.DispatchTable {
	return tableSpec{
		claudeGenerate: domain.Transform(domain.ProtoOpenAIResponse),
		claudeBasic:    domain.Transform(domain.ProtoOpenAI),
		geminiGenerate: domain.Transform(domain.ProtoOpenAIResponse),
		geminiBasic:    domain.Transform(domain.ProtoOpenAI),
		chat:           domain.Transform(domain.ProtoOpenAIResponse),
		responses:      domain.Native(),
		openAIBasic:    domain.Transform(domain.ProtoOpenAI),
		oauth:          domain.Native(),
		usage:          domain.Native(),
	}.build()
}

func codexBaseURL(cfg *domain.ProviderConfig) string {
	if cfg != nil && cfg.Codex != nil && cfg.Codex.BaseURL != "" {
		return cfg.Codex.BaseURL
	}
	return codexDefaultBaseURL
}

func (a *codexAdapter) Build(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	if cred.Kind != domain.CredentialCodex || cred.OAuth == nil {
		return nil, domain.Internal("credential kind mismatch", nil)
	}
	accessToken, _, err := ensureOAuthTokens(ctx, env, codexTokenURL, codexClientID, "", cred, op.CredentialID)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(codexBaseURL(cfg), "/")

	headers := jsonHeaders()
	bearer(headers, accessToken)
	if cred.OAuth.AccountID != "" {
		headers.Set("chatgpt-account-id", cred.OAuth.AccountID)
	}
	headers.Set("OpenAI-Beta", "responses=experimental")
	headers.Set("originator", "codex_cli_go")

	switch op.Kind {
	case domain.OpOpenAIResponseGenerate, domain.OpOpenAIResponseGenerateStream:
		return &domain.UpstreamHTTPRequest{
			Method:   http.MethodPost,
			URL:      withQuery(base+"/responses", op.Query),
			Headers:  headers,
			Body:     op.Body,
			IsStream: op.Stream,
		}, nil
	case domain.OpOpenAIInputTokens:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodPost,
			URL:     base + "/responses/input_tokens",
			Headers: headers,
			Body:    op.Body,
		}, nil
	case domain.OpOpenAIModelsList:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodGet,
			URL:     base + "/models",
			Headers: headers,
		}, nil
	case domain.OpOpenAIModelsGet:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodGet,
			URL:     base + "/models/" + op.Model,
			Headers: headers,
		}, nil
	}
	return buildOpenAIShapedRequest(base, codexDefaultBaseURL, headers, op)
}

func (a *codexAdapter) OnAuthFailure(ctx context.Context, env *Env, _ *domain.ProviderConfig, cred *domain.Credential, credentialID string, _ int) (*domain.Credential, error) {
	if env.Tokens != nil {
		env.Tokens.Drop(credentialID)
	}
	return refreshOAuthToken(ctx, env, codexTokenURL, codexClientID, "", cred, credentialID)
}

// BuildUsage hits the Codex usage surface; the /codex suffix is dropped
// from the base first.
func (a *codexAdapter) BuildUsage(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential) (*domain.UpstreamHTTPRequest, error) {
	accessToken, _, err := ensureOAuthTokens(ctx, env, codexTokenURL, codexClientID, "", cred, "")
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(codexBaseURL(cfg), "/")
	base = strings.TrimSuffix(base, "/codex")
	headers := jsonHeaders()
	bearer(headers, accessToken)
	if cred.OAuth.AccountID != "" {
		headers.Set("chatgpt-account-id", cred.OAuth.AccountID)
	}
	return &domain.UpstreamHTTPRequest{
		Method:  http.MethodGet,
		URL:     base + "/wham/usage",
		Headers: headers,
	}, nil
}

func (a *codexAdapter) OAuthStart(_ context.Context, _ *Env, _ *domain.ProviderConfig, redirectURI string) (*OAuthStartResult, error) {
	state := randomToken(16)
	verifier, challenge := pkcePair()
	oauthStates.put(state, verifier, redirectURI)
	extra := url.Values{}
	extra.Set("id_token_add_organizations", "true")
	extra.Set("codex_cli_simplified_flow", "true")
	return &OAuthStartResult{
		AuthURL:     authCodeURL(codexAuthEndpoint, codexClientID, redirectURI, codexScope, state, challenge, extra),
		State:       state,
		RedirectURI: redirectURI,
		Mode:        "redirect",
	}, nil
}

func (a *codexAdapter) OAuthCallback(ctx context.Context, env *Env, _ *domain.ProviderConfig, query url.Values) (*domain.Credential, error) {
	state := query.Get("state")
	entry, ok := oauthStates.take(state)
	if !ok {
		return nil, domain.BadRequest("unknown oauth state")
	}
	tokens, err := exchangeCode(ctx, env, codexTokenURL, codexClientID, "", query.Get("code"), entry.redirectURI, entry.verifier)
	if err != nil {
		return nil, err
	}
	return &domain.Credential{
		Kind: domain.CredentialCodex,
		OAuth: &domain.OAuthCredential{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			IDToken:      tokens.IDToken,
			ExpiresAt:    time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix(),
			ClientID:     codexClientID,
		},
	}, nil
}
