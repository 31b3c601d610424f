package domain

// Proto identifies a wire dialect understood by the proxy.
type Proto string

var (
	ProtoClaude         Proto = "claude"
	ProtoGemini         Proto = "gemini"
	ProtoOpenAIChat     Proto = "openai_chat"
	ProtoOpenAIResponse Proto = "openai_response"

	// ProtoOpenAI is the administrative family spanning chat, responses,
	// model listing and input-token counting without committing to a
	// generate shape.
	ProtoOpenAI Proto = "openai"
)

// Op is a logical action independent of the wire dialect.
type Op string

var (
	OpModelList             Op = "model_list"
	OpModelGet              Op = "model_get"
	OpCountTokens           Op = "count_tokens"
	OpGenerateContent       Op = "generate_content"
	OpStreamGenerateContent Op = "stream_generate_content"
)

// OperationKind is the fixed ordered set of dispatchable operations.
// The numeric values index DispatchTable and must not be reordered.
type OperationKind int

const (
	OpClaudeGenerate OperationKind = iota
	OpClaudeGenerateStream
	OpClaudeCountTokens
	OpClaudeModelsList
	OpClaudeModelsGet
	OpGeminiGenerate
	OpGeminiGenerateStream
	OpGeminiCountTokens
	OpGeminiModelsList
	OpGeminiModelsGet
	OpOpenAIChatGenerate
	OpOpenAIChatGenerateStream
	OpOpenAIResponseGenerate
	OpOpenAIResponseGenerateStream
	OpOpenAIInputTokens
	OpOpenAIModelsList
	OpOpenAIModelsGet
	OpOAuthStart
	OpOAuthCallback
	OpUsage

	OperationKindCount
)

var operationKindNames = [OperationKindCount]string{
	"claude_generate",
	"claude_generate_stream",
	"claude_count_tokens",
	"claude_models_list",
	"claude_models_get",
	"gemini_generate",
	"gemini_generate_stream",
	"gemini_count_tokens",
	"gemini_models_list",
	"gemini_models_get",
	"openai_chat_generate",
	"openai_chat_generate_stream",
	"openai_response_generate",
	"openai_response_generate_stream",
	"openai_input_tokens",
	"openai_models_list",
	"openai_models_get",
	"oauth_start",
	"oauth_callback",
	"usage",
}

func (k OperationKind) String() string {
	if k < 0 || k >= OperationKindCount {
		return "unknown"
	}
	return operationKindNames[k]
}

// Proto returns the source protocol of the operation, or ProtoOpenAI for
// the admin-family ops. Internal ops report an empty Proto.
func (k OperationKind) Proto() Proto {
	switch k {
	case OpClaudeGenerate, OpClaudeGenerateStream, OpClaudeCountTokens, OpClaudeModelsList, OpClaudeModelsGet:
		return ProtoClaude
	case OpGeminiGenerate, OpGeminiGenerateStream, OpGeminiCountTokens, OpGeminiModelsList, OpGeminiModelsGet:
		return ProtoGemini
	case OpOpenAIChatGenerate, OpOpenAIChatGenerateStream:
		return ProtoOpenAIChat
	case OpOpenAIResponseGenerate, OpOpenAIResponseGenerateStream:
		return ProtoOpenAIResponse
	case OpOpenAIInputTokens, OpOpenAIModelsList, OpOpenAIModelsGet:
		return ProtoOpenAI
	default:
		return ""
	}
}

// Op returns the logical action of the operation.
func (k OperationKind) Op() Op {
	switch k {
	case OpClaudeGenerate, OpOpenAIChatGenerate, OpOpenAIResponseGenerate, OpGeminiGenerate:
		return OpGenerateContent
	case OpClaudeGenerateStream, OpOpenAIChatGenerateStream, OpOpenAIResponseGenerateStream, OpGeminiGenerateStream:
		return OpStreamGenerateContent
	case OpClaudeCountTokens, OpGeminiCountTokens, OpOpenAIInputTokens:
		return OpCountTokens
	case OpClaudeModelsList, OpGeminiModelsList, OpOpenAIModelsList:
		return OpModelList
	case OpClaudeModelsGet, OpGeminiModelsGet, OpOpenAIModelsGet:
		return OpModelGet
	default:
		return ""
	}
}

// IsStream reports whether the operation streams its response.
func (k OperationKind) IsStream() bool {
	switch k {
	case OpClaudeGenerateStream, OpGeminiGenerateStream, OpOpenAIChatGenerateStream, OpOpenAIResponseGenerateStream:
		return true
	}
	return false
}

// GenerateKind maps a generate-family (proto, stream) pair to its operation.
func GenerateKind(proto Proto, stream bool) (OperationKind, bool) {
	switch proto {
	case ProtoClaude:
		if stream {
			return OpClaudeGenerateStream, true
		}
		return OpClaudeGenerate, true
	case ProtoGemini:
		if stream {
			return OpGeminiGenerateStream, true
		}
		return OpGeminiGenerate, true
	case ProtoOpenAIChat:
		if stream {
			return OpOpenAIChatGenerateStream, true
		}
		return OpOpenAIChatGenerate, true
	case ProtoOpenAIResponse:
		if stream {
			return OpOpenAIResponseGenerateStream, true
		}
		return OpOpenAIResponseGenerate, true
	}
	return 0, false
}
