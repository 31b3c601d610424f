package provider

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/pool"
)

const googleTokenURL = "https://oauth2.googleapis.com/token"

// nowFunc is swapped in tests.
var nowFunc = time.Now

// tokenResponse is the common OAuth token endpoint answer.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

func (t tokenResponse) expiresAt(now time.Time) time.Time {
	if t.ExpiresIn <= 0 {
		return now.Add(time.Hour)
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// postForm sends a form-encoded POST through the adapter environment's
// HTTP client and decodes the JSON answer.
func postForm(ctx context.Context, env *Env, endpoint string, form url.Values, into any) (int, error) {
	headers := jsonHeaders()
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, terr := env.HTTP.Send(ctx, &domain.UpstreamHTTPRequest{
		Method:  "POST",
		URL:     endpoint,
		Headers: headers,
		Body:    []byte(form.Encode()),
	})
	if terr != nil {
		return 0, fmt.Errorf("token endpoint: %s", terr.Message)
	}
	if resp.Status >= 400 {
		return resp.Status, fmt.Errorf("token endpoint returned %d: %s", resp.Status, string(resp.Body))
	}
	if into != nil {
		if err := json.Unmarshal(resp.Body, into); err != nil {
			return resp.Status, fmt.Errorf("token endpoint body: %w", err)
		}
	}
	return resp.Status, nil
}

// refreshOAuthToken exchanges a refresh token, updates the token cache and
// returns a credential copy carrying the new tokens. A 401/403 from the
// token endpoint marks the refresh token itself invalid.
func refreshOAuthToken(ctx context.Context, env *Env, endpoint, clientID, clientSecret string, cred *domain.Credential, credentialID string) (*domain.Credential, error) {
	if cred.OAuth == nil || cred.OAuth.RefreshToken == "" {
		return nil, fmt.Errorf("credential has no refresh token")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.OAuth.RefreshToken)
	if clientID != "" {
		form.Set("client_id", clientID)
	}
	if clientSecret != "" {
		form.Set("client_secret", clientSecret)
	}
	var tokens tokenResponse
	status, err := postForm(ctx, env, endpoint, form, &tokens)
	if err != nil {
		if status == 401 || status == 403 {
			return nil, &refreshTokenInvalidError{err: err}
		}
		return nil, err
	}

	now := time.Now()
	next := *cred
	oauth := *cred.OAuth
	oauth.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		oauth.RefreshToken = tokens.RefreshToken
	}
	if tokens.IDToken != "" {
		oauth.IDToken = tokens.IDToken
	}
	oauth.ExpiresAt = tokens.expiresAt(now).Unix()
	next.OAuth = &oauth

	if env.Tokens != nil && credentialID != "" {
		env.Tokens.Put(credentialID, domain.TokenSet{
			AccessToken:  oauth.AccessToken,
			RefreshToken: oauth.RefreshToken,
			ExpiresAt:    time.Unix(oauth.ExpiresAt, 0),
		})
	}
	log.WithField("credential", credentialID).Debug("oauth token refreshed")
	return &next, nil
}

// refreshTokenInvalidError upgrades the credential to Dead with reason
// refresh_token_invalid.
type refreshTokenInvalidError struct{ err error }

func (e *refreshTokenInvalidError) Error() string { return e.err.Error() }
func (e *refreshTokenInvalidError) Unwrap() error { return e.err }

// RefreshMark maps a refresh failure to its disallow mark.
func RefreshMark(err error) *domain.DisallowMark {
	if _, ok := err.(*refreshTokenInvalidError); ok {
		return &domain.DisallowMark{
			Scope:  domain.ScopeAllModels(),
			Level:  domain.LevelDead,
			Reason: pool.ReasonRefreshTokenInvalid,
		}
	}
	return nil
}

// ensureOAuthTokens returns a live access token for the credential:
// cached tokens when present and not within 60s of expiry, otherwise a
// refresh via the provider token endpoint.
func ensureOAuthTokens(ctx context.Context, env *Env, endpoint, clientID, clientSecret string, cred *domain.Credential, credentialID string) (string, *domain.Credential, error) {
	if env.Tokens != nil && credentialID != "" {
		if tokens, ok := env.Tokens.Get(credentialID); ok {
			return tokens.AccessToken, nil, nil
		}
	}
	if cred.OAuth != nil && cred.OAuth.AccessToken != "" {
		expiresAt := time.Unix(cred.OAuth.ExpiresAt, 0)
		if time.Now().Add(60 * time.Second).Before(expiresAt) {
			if env.Tokens != nil && credentialID != "" {
				env.Tokens.Put(credentialID, domain.TokenSet{
					AccessToken:  cred.OAuth.AccessToken,
					RefreshToken: cred.OAuth.RefreshToken,
					ExpiresAt:    expiresAt,
				})
			}
			return cred.OAuth.AccessToken, nil, nil
		}
	}
	refreshed, err := refreshOAuthToken(ctx, env, endpoint, clientID, clientSecret, cred, credentialID)
	if err != nil {
		return "", nil, err
	}
	return refreshed.OAuth.AccessToken, refreshed, nil
}

// randomToken returns a URL-safe random string for state and verifiers.
func randomToken(bytes int) string {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// pkcePair returns (verifier, challenge) for S256 PKCE.
func pkcePair() (string, string) {
	verifier := randomToken(32)
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:])
}

// oauthStates keeps in-flight dance state (verifier per state token).
// The dance is short-lived; entries die with the process.
var oauthStates = newStateStore()

type stateStore struct {
	entries map[string]stateEntry
}

type stateEntry struct {
	verifier    string
	redirectURI string
	createdAt   time.Time
}

func newStateStore() *stateStore {
	return &stateStore{entries: map[string]stateEntry{}}
}

func (s *stateStore) put(state, verifier, redirectURI string) {
	for key, entry := range s.entries {
		if time.Since(entry.createdAt) > 15*time.Minute {
			delete(s.entries, key)
		}
	}
	s.entries[state] = stateEntry{verifier: verifier, redirectURI: redirectURI, createdAt: time.Now()}
}

func (s *stateStore) take(state string) (stateEntry, bool) {
	entry, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	return entry, ok
}

// authCodeURL assembles the provider authorize URL.
func authCodeURL(endpoint oauth2.Endpoint, clientID, redirectURI, scope, state, challenge string, extra url.Values) string {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", clientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("scope", scope)
	query.Set("state", state)
	if challenge != "" {
		query.Set("code_challenge", challenge)
		query.Set("code_challenge_method", "S256")
	}
	for key, values := range extra {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	separator := "?"
	if strings.Contains(endpoint.AuthURL, "?") {
		separator = "&"
	}
	return endpoint.AuthURL + separator + query.Encode()
}

// exchangeCode swaps an authorization code for tokens.
func exchangeCode(ctx context.Context, env *Env, tokenURL, clientID, clientSecret, code, redirectURI, verifier string) (tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", clientID)
	if clientSecret != "" {
		form.Set("client_secret", clientSecret)
	}
	form.Set("redirect_uri", redirectURI)
	if verifier != "" {
		form.Set("code_verifier", verifier)
	}
	var tokens tokenResponse
	if _, err := postForm(ctx, env, tokenURL, form, &tokens); err != nil {
		return tokenResponse{}, err
	}
	return tokens, nil
}
