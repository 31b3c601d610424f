package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/domain"
)

func TestBuildURLStripsDuplicateVersionPrefix(t *testing.T) {
	assert.Equal(t, "https://host/v1/models", buildURL("https://host", "", "/v1/models"))
	assert.Equal(t, "https://host/v1/models", buildURL("https://host/v1", "", "/v1/models"))
	assert.Equal(t, "https://host/v1beta/models", buildURL("https://host/v1beta", "", "/v1beta/models"))
	assert.Equal(t, "https://host/v1beta1/models", buildURL("https://host/v1beta1", "", "/v1beta1/models"))
	assert.Equal(t, "https://fallback/v1/models", buildURL("", "https://fallback", "/v1/models"))
	// A trailing slash on the base never doubles.
	assert.Equal(t, "https://host/v1/models", buildURL("https://host/", "", "/v1/models"))
}

func TestOpenAIDispatchTable(t *testing.T) {
	adapter, ok := Get(domain.ProviderOpenAI)
	require.True(t, ok)
	table := adapter.DispatchTable(nil)

	rule := table.Rule(domain.OpClaudeGenerate)
	assert.Equal(t, domain.DispatchTransform, rule.Kind)
	assert.Equal(t, domain.ProtoOpenAIResponse, rule.Target)

	rule = table.Rule(domain.OpClaudeCountTokens)
	assert.Equal(t, domain.DispatchTransform, rule.Kind)
	assert.Equal(t, domain.ProtoOpenAI, rule.Target)

	assert.Equal(t, domain.DispatchNative, table.Rule(domain.OpOpenAIChatGenerate).Kind)
	assert.Equal(t, domain.DispatchNative, table.Rule(domain.OpOpenAIResponseGenerate).Kind)
	assert.Equal(t, domain.DispatchUnsupported, table.Rule(domain.OpOAuthStart).Kind)
}

func TestClaudeDispatchTable(t *testing.T) {
	adapter, ok := Get(domain.ProviderClaude)
	require.True(t, ok)
	table := adapter.DispatchTable(nil)
	assert.Equal(t, domain.DispatchNative, table.Rule(domain.OpClaudeGenerate).Kind)
	// Anthropic's OpenAI-compat surface serves chat natively.
	assert.Equal(t, domain.DispatchNative, table.Rule(domain.OpOpenAIChatGenerate).Kind)
	rule := table.Rule(domain.OpGeminiGenerate)
	assert.Equal(t, domain.DispatchTransform, rule.Kind)
	assert.Equal(t, domain.ProtoClaude, rule.Target)
}

func TestClaudeBuildMessages(t *testing.T) {
	adapter, _ := Get(domain.ProviderClaude)
	cred := domain.NewAPIKeyCredential(domain.CredentialClaude, "sk-test")
	cfg := &domain.ProviderConfig{Kind: domain.ProviderClaude, Claude: &domain.BaseURLConfig{}}
	req, err := adapter.Build(context.Background(), &Env{}, cfg, &cred, Operation{
		Kind:   domain.OpClaudeGenerateStream,
		Model:  "claude-3-7-sonnet",
		Stream: true,
		Body:   []byte(`{"model":"claude-3-7-sonnet"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.anthropic.com/v1/messages", req.URL)
	assert.Equal(t, "sk-test", req.Headers.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", req.Headers.Get("anthropic-version"))
	assert.True(t, req.IsStream)
}

func TestAIStudioStreamAttachesAltSSE(t *testing.T) {
	adapter, _ := Get(domain.ProviderAIStudio)
	cred := domain.NewAPIKeyCredential(domain.CredentialAIStudio, "g-key")
	cfg := &domain.ProviderConfig{Kind: domain.ProviderAIStudio, AIStudio: &domain.BaseURLConfig{}}
	req, err := adapter.Build(context.Background(), &Env{}, cfg, &cred, Operation{
		Kind:   domain.OpGeminiGenerateStream,
		Model:  "models/gemini-2.0-flash",
		Stream: true,
		Body:   []byte(`{"contents":[]}`),
	})
	require.NoError(t, err)
	parsed, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, "sse", parsed.Query().Get("alt"))
	// The models/ prefix normalizes into the path once.
	assert.Contains(t, parsed.Path, "/v1beta/models/gemini-2.0-flash:streamGenerateContent")
	assert.Equal(t, "g-key", req.Headers.Get("x-goog-api-key"))
}

func TestDeepSeekLocalModelList(t *testing.T) {
	adapter, _ := Get(domain.ProviderDeepSeek)
	responder := adapter.(LocalResponder)
	cred := domain.NewAPIKeyCredential(domain.CredentialDeepSeek, "sk")
	resp, handled, err := responder.LocalResponse(context.Background(), &Env{}, nil, &cred, Operation{
		Kind: domain.OpOpenAIModelsList,
	})
	require.NoError(t, err)
	require.True(t, handled)
	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &parsed))
	ids := []string{}
	for _, model := range parsed.Data {
		ids = append(ids, model.ID)
	}
	assert.Contains(t, ids, "deepseek-chat")
	assert.Contains(t, ids, "deepseek-reasoner")
}

func TestDeepSeekClaudeMessagesUseAnthropicSurface(t *testing.T) {
	adapter, _ := Get(domain.ProviderDeepSeek)
	cred := domain.NewAPIKeyCredential(domain.CredentialDeepSeek, "sk")
	req, err := adapter.Build(context.Background(), &Env{}, nil, &cred, Operation{
		Kind:  domain.OpClaudeGenerate,
		Model: "deepseek-chat",
		Body:  []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Contains(t, req.URL, "api.deepseek.com/anthropic/v1/messages")
	assert.Equal(t, "sk", req.Headers.Get("x-api-key"))
}

func TestCustomAdapterMasksParams(t *testing.T) {
	adapter, _ := Get(domain.ProviderCustom)
	cred := domain.NewAPIKeyCredential(domain.CredentialCustom, "ck")
	cfg := &domain.ProviderConfig{
		Kind: domain.ProviderCustom,
		Custom: &domain.CustomProviderConfig{
			Proto:         domain.ProtoOpenAIChat,
			BaseURL:       "https://relay.example.com",
			JSONParamMask: []string{"logit_bias", "user"},
		},
	}
	req, err := adapter.Build(context.Background(), &Env{}, cfg, &cred, Operation{
		Kind: domain.OpOpenAIChatGenerate,
		Body: []byte(`{"model":"m","user":"u","logit_bias":{"1":2},"messages":[]}`),
	})
	require.NoError(t, err)
	assert.NotContains(t, string(req.Body), "logit_bias")
	assert.NotContains(t, string(req.Body), `"user"`)
	assert.Contains(t, string(req.Body), `"messages"`)
	assert.Equal(t, "Bearer ck", req.Headers.Get("Authorization"))
}

func TestCustomDispatchComesFromConfig(t *testing.T) {
	adapter, _ := Get(domain.ProviderCustom)
	var ops [domain.OperationKindCount]domain.DispatchRule
	ops[domain.OpClaudeGenerate] = domain.Transform(domain.ProtoOpenAIChat)
	cfg := &domain.ProviderConfig{
		Kind: domain.ProviderCustom,
		Custom: &domain.CustomProviderConfig{
			Proto:    domain.ProtoOpenAIChat,
			BaseURL:  "https://relay.example.com",
			Dispatch: domain.NewDispatchTable(ops),
		},
	}
	table := adapter.DispatchTable(cfg)
	rule := table.Rule(domain.OpClaudeGenerate)
	assert.Equal(t, domain.DispatchTransform, rule.Kind)
	assert.Equal(t, domain.ProtoOpenAIChat, rule.Target)
	// Unset slots read as unsupported.
	assert.Equal(t, domain.DispatchUnsupported, table.Rule(domain.OpGeminiGenerate).Kind)
}

func TestCredentialKindMismatch(t *testing.T) {
	adapter, _ := Get(domain.ProviderOpenAI)
	cred := domain.NewAPIKeyCredential(domain.CredentialClaude, "wrong")
	_, err := adapter.Build(context.Background(), &Env{}, nil, &cred, Operation{Kind: domain.OpOpenAIModelsList})
	require.Error(t, err)
}
