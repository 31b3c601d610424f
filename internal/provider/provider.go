// Package provider implements the upstream adapters: one per provider, a
// dispatch table over the twenty operations, URL/header builders, auth
// failure handling and, where applicable, OAuth issuance and local
// responses.
package provider

import (
	"context"
	"net/url"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/pool"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/upstream"
)

// Env carries the shared collaborators adapters build requests with.
type Env struct {
	HTTP    upstream.Client
	Tokens  *pool.TokenCache
	DataDir string
}

// Operation is one upstream call to build, already transformed into the
// protocol the adapter's dispatch rule selected. Body holds the serialized
// request for POST ops; Model is set for generate/count/model-get ops.
type Operation struct {
	Kind   domain.OperationKind
	Model  string
	Stream bool
	Body   []byte
	Query  url.Values

	// ClaudeHeaders carries the parsed anthropic-* headers for Claude ops.
	ClaudeHeaders claude.Headers

	// CredentialID of the pool entry this attempt runs under.
	CredentialID string
}

// Adapter is the required capability surface of every provider.
type Adapter interface {
	Name() domain.ProviderKind
	DispatchTable(cfg *domain.ProviderConfig) domain.DispatchTable
	Build(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error)
}

// AuthRefresher is implemented by adapters that can recover from a 401/403
// by refreshing the credential. A non-nil returned credential replaces the
// pool entry and the attempt is retried once.
type AuthRefresher interface {
	OnAuthFailure(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential, credentialID string, status int) (*domain.Credential, error)
}

// LocalResponder is implemented by adapters that serve some operations
// without a network call (static catalogues, tokenizer counting).
type LocalResponder interface {
	LocalResponse(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPResponse, bool, error)
}

// OAuthStartResult is the interactive-issuance kickoff payload.
type OAuthStartResult struct {
	AuthURL     string `json:"auth_url"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
	Mode        string `json:"mode"`
}

// OAuthProvider is implemented by adapters that issue credentials via an
// interactive OAuth dance.
type OAuthProvider interface {
	OAuthStart(ctx context.Context, env *Env, cfg *domain.ProviderConfig, redirectURI string) (*OAuthStartResult, error)
	OAuthCallback(ctx context.Context, env *Env, cfg *domain.ProviderConfig, query url.Values) (*domain.Credential, error)
}

// UsageBuilder is implemented by adapters with a provider-private usage
// inspection call (Codex, Claude-Code).
type UsageBuilder interface {
	BuildUsage(ctx context.Context, env *Env, cfg *domain.ProviderConfig, cred *domain.Credential) (*domain.UpstreamHTTPRequest, error)
}

var registry = map[domain.ProviderKind]Adapter{}

func register(adapter Adapter) {
	registry[adapter.Name()] = adapter
}

// Get resolves the adapter for a provider kind.
func Get(kind domain.ProviderKind) (Adapter, bool) {
	adapter, ok := registry[kind]
	return adapter, ok
}

func init() {
	register(&openAIAdapter{})
	register(&claudeAdapter{})
	register(&aiStudioAdapter{})
	register(&vertexAdapter{})
	register(&vertexExpressAdapter{})
	register(&geminiCLIAdapter{})
	register(&claudeCodeAdapter{})
	register(&codexAdapter{})
	register(&antigravityAdapter{})
	register(&nvidiaAdapter{})
	register(&deepSeekAdapter{})
	register(&customAdapter{})
}
