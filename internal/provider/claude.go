package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
)

const claudeDefaultBaseURL = "https://api.anthropic.com"

// claudeAdapter serves the Claude family natively, the chat family via
// Anthropic's OpenAI compatibility surface, and everything else through a
// transform to Claude.
type claudeAdapter struct{}

func (a *claudeAdapter) Name() domain.ProviderKind { return domain.ProviderClaude }

func (a *claudeAdapter) DispatchTable(_ *domain.ProviderConfig) domain.DispatchTable {
	return tableSpec{
		claudeGenerate: domain.Native(),
		claudeBasic:    domain.Native(),
		geminiGenerate: domain.Transform(domain.ProtoClaude),
		geminiBasic:    domain.Transform(domain.ProtoClaude),
		chat:           domain.Native(),
		responses:      domain.Transform(domain.ProtoClaude),
		openAIBasic:    domain.Transform(domain.ProtoClaude),
		oauth:          domain.Unsupported(),
		usage:          domain.Unsupported(),
	}.build()
}

func (a *claudeAdapter) Build(_ context.Context, _ *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	base := ""
	if cfg != nil && cfg.Claude != nil {
		base = cfg.Claude.BaseURL
	}
	apiKey, err := apiKeyOf(cred, domain.CredentialClaude)
	if err != nil {
		return nil, err
	}
	headers := jsonHeaders()
	headers.Set("x-api-key", apiKey)
	return buildClaudeShapedRequest(base, claudeDefaultBaseURL, headers, op)
}

// buildClaudeShapedRequest maps Claude-family plus compat chat operations
// onto Anthropic paths. The anthropic-* headers from the downstream
// request are applied to every Claude op.
func buildClaudeShapedRequest(base, fallback string, headers http.Header, op Operation) (*domain.UpstreamHTTPRequest, error) {
	switch op.Kind {
	case domain.OpClaudeGenerate, domain.OpClaudeGenerateStream:
		op.ClaudeHeaders.Apply(headers)
		return &domain.UpstreamHTTPRequest{
			Method:   http.MethodPost,
			URL:      withQuery(buildURL(base, fallback, "/v1/messages"), op.Query),
			Headers:  headers,
			Body:     op.Body,
			IsStream: op.Stream,
		}, nil
	case domain.OpClaudeCountTokens:
		op.ClaudeHeaders.Apply(headers)
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodPost,
			URL:     buildURL(base, fallback, "/v1/messages/count_tokens"),
			Headers: headers,
			Body:    op.Body,
		}, nil
	case domain.OpClaudeModelsList:
		op.ClaudeHeaders.Apply(headers)
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodGet,
			URL:     withQuery(buildURL(base, fallback, "/v1/models"), op.Query),
			Headers: headers,
		}, nil
	case domain.OpClaudeModelsGet:
		op.ClaudeHeaders.Apply(headers)
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodGet,
			URL:     buildURL(base, fallback, "/v1/models/"+op.Model),
			Headers: headers,
		}, nil
	case domain.OpOpenAIChatGenerate, domain.OpOpenAIChatGenerateStream:
		// Anthropic's OpenAI-compat surface.
		headers.Set("anthropic-version", claude.Version20230601)
		return &domain.UpstreamHTTPRequest{
			Method:   http.MethodPost,
			URL:      withQuery(buildURL(base, fallback, "/v1/chat/completions"), op.Query),
			Headers:  headers,
			Body:     op.Body,
			IsStream: op.Stream,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedOp, op.Kind)
}
