package provider

import "github.com/awsl-project/gproxy/internal/domain"

// tableSpec builds a dispatch table from one rule per operation family.
type tableSpec struct {
	claudeGenerate domain.DispatchRule
	claudeBasic    domain.DispatchRule // count / list / get
	geminiGenerate domain.DispatchRule
	geminiBasic    domain.DispatchRule
	chat           domain.DispatchRule
	responses      domain.DispatchRule
	openAIBasic    domain.DispatchRule
	oauth          domain.DispatchRule
	usage          domain.DispatchRule
}

func (s tableSpec) build() domain.DispatchTable {
	var ops [domain.OperationKindCount]domain.DispatchRule
	ops[domain.OpClaudeGenerate] = s.claudeGenerate
	ops[domain.OpClaudeGenerateStream] = s.claudeGenerate
	ops[domain.OpClaudeCountTokens] = s.claudeBasic
	ops[domain.OpClaudeModelsList] = s.claudeBasic
	ops[domain.OpClaudeModelsGet] = s.claudeBasic
	ops[domain.OpGeminiGenerate] = s.geminiGenerate
	ops[domain.OpGeminiGenerateStream] = s.geminiGenerate
	ops[domain.OpGeminiCountTokens] = s.geminiBasic
	ops[domain.OpGeminiModelsList] = s.geminiBasic
	ops[domain.OpGeminiModelsGet] = s.geminiBasic
	ops[domain.OpOpenAIChatGenerate] = s.chat
	ops[domain.OpOpenAIChatGenerateStream] = s.chat
	ops[domain.OpOpenAIResponseGenerate] = s.responses
	ops[domain.OpOpenAIResponseGenerateStream] = s.responses
	ops[domain.OpOpenAIInputTokens] = s.openAIBasic
	ops[domain.OpOpenAIModelsList] = s.openAIBasic
	ops[domain.OpOpenAIModelsGet] = s.openAIBasic
	ops[domain.OpOAuthStart] = s.oauth
	ops[domain.OpOAuthCallback] = s.oauth
	ops[domain.OpUsage] = s.usage
	return domain.NewDispatchTable(ops)
}
