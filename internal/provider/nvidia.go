package provider

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/tokenizer"
)

const nvidiaDefaultBaseURL = "https://integrate.api.nvidia.com"

// nvidiaAdapter serves chat natively against the NVIDIA integrate API;
// every other generate family transforms to chat. Input-token counting is
// served locally with the model's HuggingFace tokenizer.
type nvidiaAdapter struct{}

func (a *nvidiaAdapter) Name() domain.ProviderKind { return domain.ProviderNvidia }

func (a *nvidiaAdapter) DispatchTable(_ *domain.ProviderConfig) domain.DispatchTable {
	return tableSpec{
		claudeGenerate: domain.Transform(domain.ProtoOpenAIChat),
		claudeBasic:    domain.Transform(domain.ProtoOpenAI),
		geminiGenerate: domain.Transform(domain.ProtoOpenAIChat),
		geminiBasic:    domain.Transform(domain.ProtoOpenAI),
		chat:           domain.Native(),
		responses:      domain.Transform(domain.ProtoOpenAIChat),
		openAIBasic:    domain.Native(),
		oauth:          domain.Unsupported(),
		usage:          domain.Unsupported(),
	}.build()
}

func (a *nvidiaAdapter) Build(_ context.Context, _ *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	base := ""
	if cfg != nil && cfg.Nvidia != nil {
		base = cfg.Nvidia.BaseURL
	}
	apiKey, err := apiKeyOf(cred, domain.CredentialNvidia)
	if err != nil {
		return nil, err
	}
	headers := jsonHeaders()
	bearer(headers, apiKey)
	return buildOpenAIShapedRequest(base, nvidiaDefaultBaseURL, headers, op)
}

// LocalResponse serves input-token counting without the network: the
// count body minus its model field is serialized stably and encoded with
// the model's tokenizer.
func (a *nvidiaAdapter) LocalResponse(_ context.Context, env *Env, cfg *domain.ProviderConfig, _ *domain.Credential, op Operation) (*domain.UpstreamHTTPResponse, bool, error) {
	if op.Kind != domain.OpOpenAIInputTokens {
		return nil, false, nil
	}
	opts := tokenizer.Options{DataDir: env.DataDir}
	if cfg != nil && cfg.Nvidia != nil {
		opts.HFToken = cfg.Nvidia.HFToken
		opts.HFURL = cfg.Nvidia.HFURL
		if cfg.Nvidia.DataDir != "" {
			opts.DataDir = cfg.Nvidia.DataDir
		}
	}
	count, err := localTokenCount(op, opts)
	if err != nil {
		return nil, true, err
	}
	return localJSONResponse(map[string]any{
		"object":       "response.input_tokens",
		"input_tokens": count,
	})
}

// localTokenCount implements the shared strip-model / stable-serialize /
// encode procedure.
func localTokenCount(op Operation, opts tokenizer.Options) (int, error) {
	stable, err := tokenizer.StableBody(op.Body)
	if err != nil {
		return 0, err
	}
	return tokenizer.Count(op.Model, stable, opts)
}

// localJSONResponse shapes an in-process 200.
func localJSONResponse(payload any) (*domain.UpstreamHTTPResponse, bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, true, err
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	return &domain.UpstreamHTTPResponse{
		Status:  http.StatusOK,
		Headers: headers,
		Body:    body,
	}, true, nil
}
