package converter

import "github.com/awsl-project/gproxy/internal/domain"

// registerBuiltins wires every ordered protocol pair: the hand-written
// request rewrites, the neutral-pivot response conversions, and the
// composed reader/writer stream transformers.
func (r *Registry) registerBuiltins() {
	protos := []domain.Proto{
		domain.ProtoClaude,
		domain.ProtoOpenAIChat,
		domain.ProtoOpenAIResponse,
		domain.ProtoGemini,
	}

	requests := map[pair]requestTransform{
		{domain.ProtoClaude, domain.ProtoOpenAIChat}:         claudeToChatRequest,
		{domain.ProtoClaude, domain.ProtoOpenAIResponse}:     claudeToResponsesRequest,
		{domain.ProtoClaude, domain.ProtoGemini}:             claudeToGeminiRequest,
		{domain.ProtoOpenAIChat, domain.ProtoClaude}:         chatToClaudeRequest,
		{domain.ProtoOpenAIChat, domain.ProtoOpenAIResponse}: chatToResponsesRequest,
		{domain.ProtoOpenAIChat, domain.ProtoGemini}:         chatToGeminiRequest,
		{domain.ProtoOpenAIResponse, domain.ProtoClaude}:     responsesToClaudeRequest,
		{domain.ProtoOpenAIResponse, domain.ProtoOpenAIChat}: responsesToChatRequest,
		{domain.ProtoOpenAIResponse, domain.ProtoGemini}:     responsesToGeminiRequest,
		{domain.ProtoGemini, domain.ProtoClaude}:             geminiToClaudeRequest,
		{domain.ProtoGemini, domain.ProtoOpenAIChat}:         geminiToChatRequest,
		{domain.ProtoGemini, domain.ProtoOpenAIResponse}:     geminiToResponsesRequest,
	}
	for key, transform := range requests {
		r.requests[key] = transform
	}

	for _, from := range protos {
		for _, to := range protos {
			if from == to {
				continue
			}
			r.responses[pair{from, to}] = convertResponseVia(to)
			from, to := from, to
			r.streams[pair{from, to}] = func() StreamTransformer {
				return &composedStream{
					reader: newStreamReader(from),
					writer: newStreamWriter(to),
				}
			}
		}
	}
}

func newStreamReader(proto domain.Proto) streamReader {
	switch proto {
	case domain.ProtoClaude:
		return newClaudeStreamReader()
	case domain.ProtoOpenAIChat:
		return newChatStreamReader()
	case domain.ProtoOpenAIResponse:
		return newResponseStreamReader()
	default:
		return newGeminiStreamReader()
	}
}

func newStreamWriter(proto domain.Proto) streamWriter {
	switch proto {
	case domain.ProtoClaude:
		return newClaudeStreamWriter()
	case domain.ProtoOpenAIChat:
		return newChatStreamWriter()
	case domain.ProtoOpenAIResponse:
		return newResponseStreamWriter()
	default:
		return newGeminiStreamWriter()
	}
}
