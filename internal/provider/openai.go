package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/awsl-project/gproxy/internal/domain"
)

const openAIDefaultBaseURL = "https://api.openai.com"

// openAIAdapter serves chat, responses and the basic ops natively; both
// Claude and Gemini generate families transform to Responses.
type openAIAdapter struct{}

func (a *openAIAdapter) Name() domain.ProviderKind { return domain.ProviderOpenAI }

func (a *openAIAdapter) DispatchTable(_ *domain.ProviderConfig) domain.DispatchTable {
	return tableSpec{
		claudeGenerate: domain.Transform(domain.ProtoOpenAIResponse),
		claudeBasic:    domain.Transform(domain.ProtoOpenAI),
		geminiGenerate: domain.Transform(domain.ProtoOpenAIResponse),
		geminiBasic:    domain.Transform(domain.ProtoOpenAI),
		chat:           domain.Native(),
		responses:      domain.Native(),
		openAIBasic:    domain.Native(),
		oauth:          domain.Unsupported(),
		usage:          domain.Unsupported(),
	}.build()
}

func (a *openAIAdapter) Build(_ context.Context, _ *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	base := ""
	if cfg != nil && cfg.OpenAI != nil {
		base = cfg.OpenAI.BaseURL
	}
	apiKey, err := apiKeyOf(cred, domain.CredentialOpenAI)
	if err != nil {
		return nil, err
	}
	headers := jsonHeaders()
	bearer(headers, apiKey)
	return buildOpenAIShapedRequest(base, openAIDefaultBaseURL, headers, op)
}

// buildOpenAIShapedRequest maps the OpenAI-family operations onto their
// paths; shared by every adapter exposing an OpenAI-compatible surface.
func buildOpenAIShapedRequest(base, fallback string, headers http.Header, op Operation) (*domain.UpstreamHTTPRequest, error) {
	switch op.Kind {
	case domain.OpOpenAIChatGenerate, domain.OpOpenAIChatGenerateStream:
		return &domain.UpstreamHTTPRequest{
			Method:   http.MethodPost,
			URL:      withQuery(buildURL(base, fallback, "/v1/chat/completions"), op.Query),
			Headers:  headers,
			Body:     op.Body,
			IsStream: op.Stream,
		}, nil
	case domain.OpOpenAIResponseGenerate, domain.OpOpenAIResponseGenerateStream:
		return &domain.UpstreamHTTPRequest{
			Method:   http.MethodPost,
			URL:      withQuery(buildURL(base, fallback, "/v1/responses"), op.Query),
			Headers:  headers,
			Body:     op.Body,
			IsStream: op.Stream,
		}, nil
	case domain.OpOpenAIInputTokens:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodPost,
			URL:     buildURL(base, fallback, "/v1/responses/input_tokens"),
			Headers: headers,
			Body:    op.Body,
		}, nil
	case domain.OpOpenAIModelsList:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodGet,
			URL:     buildURL(base, fallback, "/v1/models"),
			Headers: headers,
		}, nil
	case domain.OpOpenAIModelsGet:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodGet,
			URL:     buildURL(base, fallback, "/v1/models/"+op.Model),
			Headers: headers,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedOp, op.Kind)
}
