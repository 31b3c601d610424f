package provider

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/jws"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
)

const (
	vertexDefaultLocation = "global"
	vertexScope           = "https://www.googleapis.com/auth/cloud-platform"
)

// vertexAdapter serves Gemini natively against Vertex AI with a service
// account: an RS256 JWT assertion is exchanged for an access token which
// is cached per credential id.
type vertexAdapter struct{}

func (a *vertexAdapter) Name() domain.ProviderKind { return domain.ProviderVertex }

func (a *vertexAdapter) DispatchTable(_ *domain.ProviderConfig) domain.DispatchTable {
	return tableSpec{
		claudeGenerate: domain.Transform(domain.ProtoGemini),
		claudeBasic:    domain.Transform(domain.ProtoGemini),
		geminiGenerate: domain.Native(),
		geminiBasic:    domain.Native(),
		chat:           domain.Transform(domain.ProtoGemini),
		responses:      domain.Transform(domain.ProtoGemini),
		openAIBasic:    domain.Transform(domain.ProtoGemini),
		oauth:          domain.Unsupported(),
		usage:          domain.Unsupported(),
	}.build()
}

func (a *vertexAdapter) Build(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	if cred.Kind != domain.CredentialVertex || cred.ServiceAccount == nil {
		return nil, domain.Internal("credential kind mismatch", nil)
	}
	vertexCfg := cfg.Vertex
	if vertexCfg == nil {
		vertexCfg = &domain.VertexConfig{}
	}
	location := vertexCfg.Location
	if location == "" {
		location = vertexDefaultLocation
	}

	accessToken, err := a.accessToken(ctx, env, vertexCfg, cred, op.CredentialID)
	if err != nil {
		return nil, err
	}

	base := vertexCfg.BaseURL
	if base == "" {
		host := "aiplatform.googleapis.com"
		if location != "global" {
			host = location + "-aiplatform.googleapis.com"
		}
		base = "https://" + host
	}
	model := gemini.NormalizeModel(op.Model)
	prefix := fmt.Sprintf("/v1/projects/%s/locations/%s/publishers/google/models/%s",
		cred.ServiceAccount.ProjectID, location, model)

	headers := jsonHeaders()
	bearer(headers, accessToken)

	switch op.Kind {
	case domain.OpGeminiGenerate:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodPost,
			URL:     withQuery(base+prefix+":generateContent", op.Query),
			Headers: headers,
			Body:    op.Body,
		}, nil
	case domain.OpGeminiGenerateStream:
		return &domain.UpstreamHTTPRequest{
			Method:   http.MethodPost,
			URL:      withQuery(base+prefix+":streamGenerateContent", streamQuery(op)),
			Headers:  headers,
			Body:     op.Body,
			IsStream: true,
		}, nil
	case domain.OpGeminiCountTokens:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodPost,
			URL:     base + prefix + ":countTokens",
			Headers: headers,
			Body:    op.Body,
		}, nil
	case domain.OpGeminiModelsList:
		return &domain.UpstreamHTTPRequest{
			Method: http.MethodGet,
			URL: fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models",
				base, cred.ServiceAccount.ProjectID, location),
			Headers: headers,
		}, nil
	case domain.OpGeminiModelsGet:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodGet,
			URL:     base + prefix,
			Headers: headers,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedOp, op.Kind)
}

func (a *vertexAdapter) OnAuthFailure(_ context.Context, env *Env, _ *domain.ProviderConfig, cred *domain.Credential, credentialID string, _ int) (*domain.Credential, error) {
	// Tokens are derived, not stored; drop the cache so the next attempt
	// re-exchanges the assertion.
	if env.Tokens != nil {
		if credentialID == "" {
			credentialID = credentialCacheKey(cred)
		}
		env.Tokens.Drop(credentialID)
	}
	return nil, nil
}

// accessToken returns a cached token or exchanges a fresh JWT assertion.
func (a *vertexAdapter) accessToken(ctx context.Context, env *Env, cfg *domain.VertexConfig, cred *domain.Credential, credentialID string) (string, error) {
	cacheKey := credentialID
	if cacheKey == "" {
		cacheKey = credentialCacheKey(cred)
	}
	if env.Tokens != nil {
		if tokens, ok := env.Tokens.Get(cacheKey); ok {
			return tokens.AccessToken, nil
		}
	}

	sa := cred.ServiceAccount
	tokenURI := cfg.OAuthTokenURL
	if tokenURI == "" {
		tokenURI = cfg.TokenURI
	}
	if tokenURI == "" {
		tokenURI = sa.TokenURI
	}
	if tokenURI == "" {
		tokenURI = googleTokenURL
	}

	key, err := parseRSAPrivateKey(sa.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("service account private key: %w", err)
	}
	now := time.Now()
	claims := &jws.ClaimSet{
		Iss:   sa.ClientEmail,
		Scope: vertexScope,
		Aud:   tokenURI,
		Iat:   now.Unix(),
		Exp:   now.Add(time.Hour).Unix(),
	}
	header := &jws.Header{Algorithm: "RS256", Typ: "JWT", KeyID: sa.PrivateKeyID}
	assertion, err := jws.Encode(header, claims, key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)
	var tokens tokenResponse
	status, err := postForm(ctx, env, tokenURI, form, &tokens)
	if err != nil {
		if status == 401 || status == 403 {
			return "", &refreshTokenInvalidError{err: err}
		}
		return "", err
	}

	if env.Tokens != nil {
		env.Tokens.Put(cacheKey, domain.TokenSet{
			AccessToken: tokens.AccessToken,
			ExpiresAt:   tokens.expiresAt(now),
		})
	}
	return tokens.AccessToken, nil
}

func credentialCacheKey(cred *domain.Credential) string {
	if cred.ServiceAccount != nil {
		return "vertex:" + cred.ServiceAccount.ClientEmail
	}
	return "vertex"
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("PKCS8 key is not RSA")
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	return key, nil
}
