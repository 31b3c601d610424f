package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
)

const aiStudioDefaultBaseURL = "https://generativelanguage.googleapis.com"

// aiStudioAdapter serves Gemini natively and chat through AIStudio's
// OpenAI-compat surface; Claude and Responses transform to Gemini.
type aiStudioAdapter struct{}

func (a *aiStudioAdapter) Name() domain.ProviderKind { return domain.ProviderAIStudio }

func (a *aiStudioAdapter) DispatchTable(_ *domain.ProviderConfig) domain.DispatchTable {
	return tableSpec{
		claudeGenerate: domain.Transform(domain.ProtoGemini),
		claudeBasic:    domain.Transform(domain.ProtoGemini),
		geminiGenerate: domain.Native(),
		geminiBasic:    domain.Native(),
		chat:           domain.Native(),
		responses:      domain.Transform(domain.ProtoGemini),
		openAIBasic:    domain.Transform(domain.ProtoGemini),
		oauth:          domain.Unsupported(),
		usage:          domain.Unsupported(),
	}.build()
}

func (a *aiStudioAdapter) Build(_ context.Context, _ *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	base := ""
	if cfg != nil && cfg.AIStudio != nil {
		base = cfg.AIStudio.BaseURL
	}
	apiKey, err := apiKeyOf(cred, domain.CredentialAIStudio)
	if err != nil {
		return nil, err
	}
	headers := jsonHeaders()
	headers.Set("x-goog-api-key", apiKey)

	switch op.Kind {
	case domain.OpOpenAIChatGenerate, domain.OpOpenAIChatGenerateStream:
		bearer(headers, apiKey)
		return &domain.UpstreamHTTPRequest{
			Method:   http.MethodPost,
			URL:      withQuery(buildURL(base, aiStudioDefaultBaseURL, "/v1beta/openai/chat/completions"), op.Query),
			Headers:  headers,
			Body:     op.Body,
			IsStream: op.Stream,
		}, nil
	}
	return buildGeminiShapedRequest(base, aiStudioDefaultBaseURL, headers, op)
}

// buildGeminiShapedRequest maps the Gemini family onto v1beta paths. The
// model name is normalized into the path; stream ops carry alt=sse.
func buildGeminiShapedRequest(base, fallback string, headers http.Header, op Operation) (*domain.UpstreamHTTPRequest, error) {
	model := gemini.NormalizeModel(op.Model)
	switch op.Kind {
	case domain.OpGeminiGenerate:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodPost,
			URL:     withQuery(buildURL(base, fallback, "/v1beta/models/"+model+":generateContent"), op.Query),
			Headers: headers,
			Body:    op.Body,
		}, nil
	case domain.OpGeminiGenerateStream:
		return &domain.UpstreamHTTPRequest{
			Method:   http.MethodPost,
			URL:      withQuery(buildURL(base, fallback, "/v1beta/models/"+model+":streamGenerateContent"), streamQuery(op)),
			Headers:  headers,
			Body:     op.Body,
			IsStream: true,
		}, nil
	case domain.OpGeminiCountTokens:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodPost,
			URL:     buildURL(base, fallback, "/v1beta/models/"+model+":countTokens"),
			Headers: headers,
			Body:    op.Body,
		}, nil
	case domain.OpGeminiModelsList:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodGet,
			URL:     withQuery(buildURL(base, fallback, "/v1beta/models"), op.Query),
			Headers: headers,
		}, nil
	case domain.OpGeminiModelsGet:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodGet,
			URL:     buildURL(base, fallback, "/v1beta/models/"+model),
			Headers: headers,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedOp, op.Kind)
}
