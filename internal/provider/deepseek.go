package provider

import (
	"context"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/tokenizer"
)

const (
	deepSeekDefaultBaseURL   = "https://api.deepseek.com"
	deepSeekAnthropicBaseURL = "https://api.deepseek.com/anthropic"
)

// deepSeekModels is the static catalogue; DeepSeek's model list never
// needs an upstream call.
var deepSeekModels = []string{"deepseek-chat", "deepseek-reasoner"}

// deepSeekAdapter serves chat natively and Claude messages natively via
// the Anthropic-compat surface; the rest transforms to chat. The model
// list and token counting are local.
type deepSeekAdapter struct{}

func (a *deepSeekAdapter) Name() domain.ProviderKind { return domain.ProviderDeepSeek }

func (a *deepSeekAdapter) DispatchTable(_ *domain.ProviderConfig) domain.DispatchTable {
	table := tableSpec{
		claudeGenerate: domain.Native(),
		claudeBasic:    domain.Transform(domain.ProtoOpenAI),
		geminiGenerate: domain.Transform(domain.ProtoOpenAIChat),
		geminiBasic:    domain.Transform(domain.ProtoOpenAI),
		chat:           domain.Native(),
		responses:      domain.Transform(domain.ProtoOpenAIChat),
		openAIBasic:    domain.Native(),
		oauth:          domain.Unsupported(),
		usage:          domain.Unsupported(),
	}.build()
	return table
}

func (a *deepSeekAdapter) Build(_ context.Context, _ *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	base := ""
	if cfg != nil && cfg.DeepSeek != nil {
		base = cfg.DeepSeek.BaseURL
	}
	apiKey, err := apiKeyOf(cred, domain.CredentialDeepSeek)
	if err != nil {
		return nil, err
	}
	headers := jsonHeaders()
	bearer(headers, apiKey)

	switch op.Kind {
	case domain.OpClaudeGenerate, domain.OpClaudeGenerateStream:
		anthropicBase := deepSeekAnthropicBaseURL
		if base != "" {
			anthropicBase = base + "/anthropic"
		}
		headers.Set("x-api-key", apiKey)
		return buildClaudeShapedRequest(anthropicBase, deepSeekAnthropicBaseURL, headers, op)
	}
	return buildOpenAIShapedRequest(base, deepSeekDefaultBaseURL, headers, op)
}

// LocalResponse serves the static model catalogue and tokenizer counting.
func (a *deepSeekAdapter) LocalResponse(_ context.Context, env *Env, _ *domain.ProviderConfig, _ *domain.Credential, op Operation) (*domain.UpstreamHTTPResponse, bool, error) {
	switch op.Kind {
	case domain.OpOpenAIModelsList:
		models := make([]map[string]any, 0, len(deepSeekModels))
		for _, id := range deepSeekModels {
			models = append(models, map[string]any{"id": id, "object": "model", "owned_by": "deepseek"})
		}
		return localJSONResponse(map[string]any{"object": "list", "data": models})
	case domain.OpOpenAIModelsGet:
		for _, id := range deepSeekModels {
			if id == op.Model {
				return localJSONResponse(map[string]any{"id": id, "object": "model", "owned_by": "deepseek"})
			}
		}
		return nil, false, nil
	case domain.OpOpenAIInputTokens:
		count, err := localTokenCount(op, tokenizer.Options{DataDir: env.DataDir})
		if err != nil {
			return nil, true, err
		}
		return localJSONResponse(map[string]any{
			"object":       "response.input_tokens",
			"input_tokens": count,
		})
	}
	return nil, false, nil
}
