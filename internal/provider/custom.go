package provider

import (
	"context"

	"github.com/tidwall/sjson"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/tokenizer"
)

// customAdapter is the user-defined provider: the config carries the
// upstream's protocol, base URL and a full dispatch table, plus a
// json_param_mask of body paths to drop and the count-tokens mode.
type customAdapter struct{}

func (a *customAdapter) Name() domain.ProviderKind { return domain.ProviderCustom }

func (a *customAdapter) DispatchTable(cfg *domain.ProviderConfig) domain.DispatchTable {
	if cfg != nil && cfg.Custom != nil {
		return cfg.Custom.Dispatch
	}
	return domain.DispatchTable{}
}

func (a *customAdapter) Build(_ context.Context, _ *Env, cfg *domain.ProviderConfig, cred *domain.Credential, op Operation) (*domain.UpstreamHTTPRequest, error) {
	if cfg == nil || cfg.Custom == nil {
		return nil, domain.Internal("custom provider without config", nil)
	}
	custom := cfg.Custom
	apiKey, err := apiKeyOf(cred, domain.CredentialCustom)
	if err != nil {
		return nil, err
	}

	body := op.Body
	for _, path := range custom.JSONParamMask {
		if masked, err := sjson.DeleteBytes(body, path); err == nil {
			body = masked
		}
	}
	op.Body = body

	headers := jsonHeaders()
	switch custom.Proto {
	case domain.ProtoGemini:
		headers.Set("x-goog-api-key", apiKey)
		return buildGeminiShapedRequest(custom.BaseURL, custom.BaseURL, headers, op)
	case domain.ProtoClaude:
		headers.Set("x-api-key", apiKey)
		return buildClaudeShapedRequest(custom.BaseURL, custom.BaseURL, headers, op)
	default:
		bearer(headers, apiKey)
		return buildOpenAIShapedRequest(custom.BaseURL, custom.BaseURL, headers, op)
	}
}

// LocalResponse serves the static model table and non-upstream counting
// modes.
func (a *customAdapter) LocalResponse(_ context.Context, env *Env, cfg *domain.ProviderConfig, _ *domain.Credential, op Operation) (*domain.UpstreamHTTPResponse, bool, error) {
	if cfg == nil || cfg.Custom == nil {
		return nil, false, nil
	}
	custom := cfg.Custom

	switch op.Kind {
	case domain.OpOpenAIModelsList:
		if len(custom.ModelTable) == 0 {
			return nil, false, nil
		}
		models := make([]map[string]any, 0, len(custom.ModelTable))
		for _, entry := range custom.ModelTable {
			models = append(models, map[string]any{"id": entry.ID, "object": "model"})
		}
		return localJSONResponse(map[string]any{"object": "list", "data": models})
	case domain.OpOpenAIModelsGet:
		for _, entry := range custom.ModelTable {
			if entry.ID == op.Model {
				return localJSONResponse(map[string]any{"id": entry.ID, "object": "model"})
			}
		}
		return nil, false, nil
	case domain.OpOpenAIInputTokens:
		switch custom.CountTokens {
		case domain.CountTokensTokenizers:
			count, err := localTokenCount(op, tokenizer.Options{DataDir: env.DataDir})
			if err != nil {
				return nil, true, err
			}
			return localJSONResponse(map[string]any{
				"object":       "response.input_tokens",
				"input_tokens": count,
			})
		case domain.CountTokensTiktoken:
			stable, err := tokenizer.StableBody(op.Body)
			if err != nil {
				return nil, true, err
			}
			count, err := tokenizer.CountTiktoken(op.Model, stable)
			if err != nil {
				return nil, true, err
			}
			return localJSONResponse(map[string]any{
				"object":       "response.input_tokens",
				"input_tokens": count,
			})
		}
	}
	return nil, false, nil
}
