package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
)

const (
	claudeCodeAPIBaseURL      = "https://api.anthropic.com"
	claudeCodeClaudeAIBaseURL = "https://claude.ai"
	claudeCodeConsoleBaseURL  = "https://console.anthropic.com"
	claudeCodeClientID        = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	claudeCodeScope           = "org:create_api_key user:profile user:inference"
	claudeCodeCookieUA        = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// claudeCodeAdapter serves the Claude family through an OAuth'd Claude
// Code subscription. Credentials refresh via the Anthropic OAuth token
// endpoint; session-key-only credentials bootstrap an authorization code
// with a cookie-authenticated authorize call first.
type claudeCodeAdapter struct{}

func (a *claudeCodeAdapter) Name() domain.ProviderKind { return domain.ProviderClaudeCode }

func (a *claudeCodeAdapter) DispatchTable(_ *domain.ProviderConfig) domain.DispatchTable {
	return tableSpec{
		claudeGenerate: domain.Native(),
		claudeBasic:    domain.Native(),
		geminiGenerate: domain.Transform(domain.ProtoClaude),
		geminiBasic:    domain.Transform(domain.ProtoClaude),
		chat:           domain.Transform(domain.ProtoClaude),
		responses:      domain.Transform(domain.ProtoClaude),
		openAIBasic:    domain.Transform(domain.ProtoClaude),
		oauth:          domain.Native(),
		usage:          domain.Native(),
	}.build()
}

func claudeCodeURLs(cfg *domain.ProviderConfig) (api, claudeAI, console string) {
	api, claudeAI, console = claudeCodeAPIBaseURL, claudeCodeClaudeAIBaseURL, claudeCodeConsoleBaseURL
	if cfg != nil && cfg.ClaudeCode != nil {
		if cfg.ClaudeCode.BaseURL != "" {
			api = cfg.ClaudeCode.BaseURL
		}
		if cfg.ClaudeCode.ClaudeAIBaseURL != "" {
			claudeAI = cfg.ClaudeCode.ClaudeAIBaseURL
		}
		if cfg.ClaudeCode.PlatformBaseURL != "" {
			console = cfg.ClaudeCode.PlatformBaseURL
		}
	}
	return api, claudeAI, console
}

func (a *claudeCodeAdapter) Build(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	if cred.Kind != domain.CredentialClaudeCode || cred.ClaudeCode == nil {
		return nil, domain.Internal("credential kind mismatch", nil)
	}
	api, _, _ := claudeCodeURLs(cfg)
	accessToken, _, err := a.ensureTokens(ctx, env, cfg, cred, op.CredentialID)
	if err != nil {
		return nil, err
	}

	headers := jsonHeaders()
	bearer(headers, accessToken)
	// Claude Code authenticates with the OAuth beta; the subscription's
	// 1M-context flags ride along when enabled.
	if !op.ClaudeHeaders.HasBeta(claude.BetaOAuth20250416) {
		op.ClaudeHeaders.Beta = append(op.ClaudeHeaders.Beta, claude.BetaOAuth20250416)
	}
	if enabled(cred.ClaudeCode.EnableClaude1MSonnet) || enabled(cred.ClaudeCode.EnableClaude1MOpus) {
		if !op.ClaudeHeaders.HasBeta(claude.BetaContext1M20250807) {
			op.ClaudeHeaders.Beta = append(op.ClaudeHeaders.Beta, claude.BetaContext1M20250807)
		}
	}
	return buildClaudeShapedRequest(api, claudeCodeAPIBaseURL, headers, op)
}

func (a *claudeCodeAdapter) OnAuthFailure(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential, credentialID string, _ int) (*domain.Credential, error) {
	if env.Tokens != nil {
		env.Tokens.Drop(credentialID)
	}
	return a.refresh(ctx, env, cfg, cred, credentialID)
}

func (a *claudeCodeAdapter) BuildUsage(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential) (*domain.UpstreamHTTPRequest, error) {
	api, _, _ := claudeCodeURLs(cfg)
	accessToken, _, err := a.ensureTokens(ctx, env, cfg, cred, "")
	if err != nil {
		return nil, err
	}
	headers := jsonHeaders()
	bearer(headers, accessToken)
	headers.Set("anthropic-beta", claude.BetaOAuth20250416)
	return &domain.UpstreamHTTPRequest{
		Method:  http.MethodGet,
		URL:     buildURL(api, claudeCodeAPIBaseURL, "/api/oauth/usage"),
		Headers: headers,
	}, nil
}

// ensureTokens returns a live access token, refreshing or session-key
// bootstrapping as needed. The refreshed credential, when any, is
// returned so the caller can persist it.
func (a *claudeCodeAdapter) ensureTokens(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential, credentialID string) (string, *domain.Credential, error) {
	if env.Tokens != nil && credentialID != "" {
		if tokens, ok := env.Tokens.Get(credentialID); ok {
			return tokens.AccessToken, nil, nil
		}
	}
	cc := cred.ClaudeCode
	if cc.AccessToken != "" {
		expiresAt := time.Unix(cc.ExpiresAt, 0)
		if time.Now().Add(60 * time.Second).Before(expiresAt) {
			if env.Tokens != nil && credentialID != "" {
				env.Tokens.Put(credentialID, domain.TokenSet{
					AccessToken:  cc.AccessToken,
					RefreshToken: cc.RefreshToken,
					ExpiresAt:    expiresAt,
				})
			}
			return cc.AccessToken, nil, nil
		}
	}
	refreshed, err := a.refresh(ctx, env, cfg, cred, credentialID)
	if err != nil {
		return "", nil, err
	}
	return refreshed.ClaudeCode.AccessToken, refreshed, nil
}

// refresh exchanges the refresh token, or bootstraps one from the session
// key when no refresh token exists.
func (a *claudeCodeAdapter) refresh(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential, credentialID string) (*domain.Credential, error) {
	api, claudeAI, console := claudeCodeURLs(cfg)
	cc := cred.ClaudeCode

	if cc.RefreshToken == "" {
		if cc.SessionKey == "" {
			return nil, &refreshTokenInvalidError{err: fmt.Errorf("no refresh token or session key")}
		}
		return a.oauthWithSessionKey(ctx, env, api, claudeAI, console, cred)
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": cc.RefreshToken,
		"client_id":     claudeCodeClientID,
	})
	if err != nil {
		return nil, err
	}
	headers := jsonHeaders()
	headers.Set("Origin", claudeAI)
	headers.Set("Referer", claudeAI+"/")
	resp, terr := env.HTTP.Send(ctx, &domain.UpstreamHTTPRequest{
		Method:  http.MethodPost,
		URL:     buildURL(api, claudeCodeAPIBaseURL, "/v1/oauth/token"),
		Headers: headers,
		Body:    payload,
	})
	if terr != nil {
		return nil, fmt.Errorf("oauth token endpoint: %s", terr.Message)
	}
	if resp.Status == 401 || resp.Status == 403 {
		return nil, &refreshTokenInvalidError{err: fmt.Errorf("oauth token endpoint returned %d", resp.Status)}
	}
	if resp.Status >= 400 {
		return nil, fmt.Errorf("oauth token endpoint returned %d: %s", resp.Status, string(resp.Body))
	}
	var tokens tokenResponse
	if err := json.Unmarshal(resp.Body, &tokens); err != nil {
		return nil, err
	}

	now := time.Now()
	next := *cred
	updated := *cc
	updated.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		updated.RefreshToken = tokens.RefreshToken
	}
	updated.ExpiresAt = tokens.expiresAt(now).Unix()
	next.ClaudeCode = &updated
	if env.Tokens != nil && credentialID != "" {
		env.Tokens.Put(credentialID, domain.TokenSet{
			AccessToken:  updated.AccessToken,
			RefreshToken: updated.RefreshToken,
			ExpiresAt:    time.Unix(updated.ExpiresAt, 0),
		})
	}
	return &next, nil
}

// oauthWithSessionKey drives the cookie-authenticated authorize flow:
// organization lookup, authorize with the session cookie to obtain a
// code, then the regular code exchange.
func (a *claudeCodeAdapter) oauthWithSessionKey(ctx context.Context, env *Env, api, claudeAI, console string, cred *domain.Credential) (*domain.Credential, error) {
	sessionKey := cred.ClaudeCode.SessionKey
	cookieHeaders := jsonHeaders()
	cookieHeaders.Set("Cookie", "sessionKey="+sessionKey)
	cookieHeaders.Set("User-Agent", claudeCodeCookieUA)
	cookieHeaders.Set("Origin", claudeAI)
	cookieHeaders.Set("Referer", claudeAI+"/")

	// Organization lookup.
	orgResp, terr := env.HTTP.Send(ctx, &domain.UpstreamHTTPRequest{
		Method:  http.MethodGet,
		URL:     claudeAI + "/api/organizations",
		Headers: cookieHeaders,
	})
	if terr != nil {
		return nil, fmt.Errorf("organization lookup: %s", terr.Message)
	}
	if orgResp.Status >= 400 {
		return nil, &refreshTokenInvalidError{err: fmt.Errorf("organization lookup returned %d", orgResp.Status)}
	}
	var orgs []struct {
		UUID string `json:"uuid"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(orgResp.Body, &orgs); err != nil || len(orgs) == 0 {
		return nil, fmt.Errorf("organization lookup: no organizations")
	}

	// Cookie-authenticated authorize issues the code directly.
	verifier, challenge := pkcePair()
	state := randomToken(16)
	redirectURI := console + "/oauth/code/callback"
	authorizePayload, err := json.Marshal(map[string]any{
		"response_type":         "code",
		"client_id":             claudeCodeClientID,
		"organization_uuid":     orgs[0].UUID,
		"redirect_uri":          redirectURI,
		"scope":                 claudeCodeScope,
		"state":                 state,
		"code_challenge":        challenge,
		"code_challenge_method": "S256",
	})
	if err != nil {
		return nil, err
	}
	authResp, terr := env.HTTP.Send(ctx, &domain.UpstreamHTTPRequest{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/v1/oauth/%s/authorize", api, orgs[0].UUID),
		Headers: cookieHeaders,
		Body:    authorizePayload,
	})
	if terr != nil {
		return nil, fmt.Errorf("authorize: %s", terr.Message)
	}
	if authResp.Status >= 400 {
		return nil, &refreshTokenInvalidError{err: fmt.Errorf("authorize returned %d: %s", authResp.Status, string(authResp.Body))}
	}
	var authorized struct {
		RedirectURI string `json:"redirect_uri"`
		Code        string `json:"code"`
	}
	if err := json.Unmarshal(authResp.Body, &authorized); err != nil {
		return nil, err
	}
	code := authorized.Code
	if code == "" {
		if parsed, err := url.Parse(authorized.RedirectURI); err == nil {
			code = parsed.Query().Get("code")
		}
	}
	if code == "" {
		return nil, fmt.Errorf("authorize returned no code")
	}

	tokens, err := exchangeCode(ctx, env, buildURL(api, claudeCodeAPIBaseURL, "/v1/oauth/token"), claudeCodeClientID, "", code, redirectURI, verifier)
	if err != nil {
		return nil, err
	}
	log.Info("claude code session key exchanged for oauth tokens")

	now := time.Now()
	next := *cred
	updated := *cred.ClaudeCode
	updated.AccessToken = tokens.AccessToken
	updated.RefreshToken = tokens.RefreshToken
	updated.ExpiresAt = tokens.expiresAt(now).Unix()
	next.ClaudeCode = &updated
	return &next, nil
}

func (a *claudeCodeAdapter) OAuthStart(_ context.Context, _ *Env, cfg *domain.ProviderConfig, redirectURI string) (*OAuthStartResult, error) {
	_, claudeAI, _ := claudeCodeURLs(cfg)
	state := randomToken(16)
	verifier, challenge := pkcePair()
	oauthStates.put(state, verifier, redirectURI)
	query := url.Values{}
	query.Set("code", "true")
	query.Set("response_type", "code")
	query.Set("client_id", claudeCodeClientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("scope", claudeCodeScope)
	query.Set("state", state)
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", "S256")
	return &OAuthStartResult{
		AuthURL:     claudeAI + "/oauth/authorize?" + query.Encode(),
		State:       state,
		RedirectURI: redirectURI,
		Mode:        "code",
	}, nil
}

func (a *claudeCodeAdapter) OAuthCallback(ctx context.Context, env *Env, cfg *domain.ProviderConfig, query url.Values) (*domain.Credential, error) {
	api, _, _ := claudeCodeURLs(cfg)
	state := query.Get("state")
	entry, ok := oauthStates.take(state)
	if !ok {
		return nil, domain.BadRequest("unknown oauth state")
	}
	tokens, err := exchangeCode(ctx, env, buildURL(api, claudeCodeAPIBaseURL, "/v1/oauth/token"), claudeCodeClientID, "", query.Get("code"), entry.redirectURI, entry.verifier)
	if err != nil {
		return nil, err
	}
	return &domain.Credential{
		Kind: domain.CredentialClaudeCode,
		ClaudeCode: &domain.ClaudeCodeCredential{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			ExpiresAt:    tokens.expiresAt(time.Now()).Unix(),
		},
	}, nil
}

func enabled(flag *bool) bool { return flag != nil && *flag }
