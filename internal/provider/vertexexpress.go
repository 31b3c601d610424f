package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
)

const vertexExpressDefaultBaseURL = "https://aiplatform.googleapis.com"

// vertexExpressAdapter is API-key Vertex: the key rides in the query and
// models live under the publishers/google path without a project.
type vertexExpressAdapter struct{}

func (a *vertexExpressAdapter) Name() domain.ProviderKind { return domain.ProviderVertexExpress }

func (a *vertexExpressAdapter) DispatchTable(_ *domain.ProviderConfig) domain.DispatchTable {
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

func (a *vertexExpressAdapter) Build(_ context.Context, _ *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	base := ""
	if cfg != nil && cfg.VertexExpress != nil {
		base = cfg.VertexExpress.BaseURL
	}
	apiKey, err := apiKeyOf(cred, domain.CredentialVertexExpress)
	if err != nil {
		return nil, err
	}

	model := gemini.NormalizeModel(op.Model)
	prefix := "/v1/publishers/google/models/" + model
	headers := jsonHeaders()

	query := url.Values{}
	for key, values := range op.Query {
		query[key] = values
	}
	query.Set("key", apiKey)

	switch op.Kind {
	case domain.OpGeminiGenerate:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodPost,
			URL:     withQuery(buildURL(base, vertexExpressDefaultBaseURL, prefix+":generateContent"), query),
			Headers: headers,
			Body:    op.Body,
		}, nil
	case domain.OpGeminiGenerateStream:
		query.Set("alt", "sse")
		return &domain.UpstreamHTTPRequest{
			Method:   http.MethodPost,
			URL:      withQuery(buildURL(base, vertexExpressDefaultBaseURL, prefix+":streamGenerateContent"), query),
			Headers:  headers,
			Body:     op.Body,
			IsStream: true,
		}, nil
	case domain.OpGeminiCountTokens:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodPost,
			URL:     withQuery(buildURL(base, vertexExpressDefaultBaseURL, prefix+":countTokens"), query),
			Headers: headers,
			Body:    op.Body,
		}, nil
	case domain.OpGeminiModelsList:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodGet,
			URL:     withQuery(buildURL(base, vertexExpressDefaultBaseURL, "/v1/publishers/google/models"), query),
			Headers: headers,
		}, nil
	case domain.OpGeminiModelsGet:
		return &domain.UpstreamHTTPRequest{
			Method:  http.MethodGet,
			URL:     withQuery(buildURL(base, vertexExpressDefaultBaseURL, prefix), query),
			Headers: headers,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedOp, op.Kind)
}
