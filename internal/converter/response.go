package converter

import (
	"fmt"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// parsedResponse is a non-stream response reduced to the neutral parts the
// builders in fold.go consume.
type parsedResponse struct {
	id     string
	model  string
	blocks []foldBlock
	usage  Usage
	finish FinishReason
}

func parseClaudeResponse(in *claude.MessageResponse) parsedResponse {
	out := parsedResponse{
		id:     in.ID,
		model:  in.Model,
		usage:  UsageFromClaude(&in.Usage),
		finish: FinishFromClaude(in.StopReason),
	}
	for _, block := range in.Content {
		switch block.Type {
		case claude.BlockText:
			out.blocks = append(out.blocks, foldBlock{kind: "text", text: block.Text})
		case claude.BlockThinking:
			out.blocks = append(out.blocks, foldBlock{kind: "thinking", text: block.Thinking, signature: block.Signature})
		case claude.BlockToolUse:
			out.blocks = append(out.blocks, foldBlock{
				kind:     "tool_use",
				toolID:   block.ID,
				toolName: block.Name,
				args:     string(block.Input),
			})
		}
	}
	return out
}

func parseChatResponse(in *openai.ChatCompletionResponse) parsedResponse {
	out := parsedResponse{
		id:    in.ID,
		model: in.Model,
		usage: UsageFromChat(in.Usage),
	}
	if len(in.Choices) == 0 {
		out.finish = FinishOther
		return out
	}
	choice := in.Choices[0]
	out.finish = FinishFromOpenAI(choice.FinishReason)
	if choice.Message == nil {
		return out
	}
	if choice.Message.ReasoningContent != "" {
		out.blocks = append(out.blocks, foldBlock{kind: "thinking", text: choice.Message.ReasoningContent})
	}
	if choice.Message.Content != nil {
		if text := choice.Message.Content.Flatten(); text != "" {
			out.blocks = append(out.blocks, foldBlock{kind: "text", text: text})
		}
	}
	for _, call := range choice.Message.ToolCalls {
		out.blocks = append(out.blocks, foldBlock{
			kind:     "tool_use",
			toolID:   call.ID,
			toolName: call.Function.Name,
			args:     call.Function.Arguments,
		})
	}
	return out
}

func parseResponsesResponse(in *openai.Response) parsedResponse {
	out := parsedResponse{
		id:    in.ID,
		model: in.Model,
		usage: UsageFromResponse(in.Usage),
	}
	sawToolCall := false
	for _, item := range in.Output {
		switch item.Type {
		case openai.ItemMessage:
			if item.Content != nil {
				if text := item.Content.Flatten(); text != "" {
					out.blocks = append(out.blocks, foldBlock{kind: "text", text: text})
				}
			}
		case openai.ItemReasoning:
			text := ""
			for _, part := range item.ReasoningContent {
				text += part.Text
			}
			for _, part := range item.Summary {
				text += part.Text
			}
			if text != "" {
				out.blocks = append(out.blocks, foldBlock{kind: "thinking", text: text, signature: item.EncryptedContent})
			}
		case openai.ItemFunctionCall:
			sawToolCall = true
			id := item.CallID
			if id == "" {
				id = item.ID
			}
			out.blocks = append(out.blocks, foldBlock{
				kind:     "tool_use",
				toolID:   id,
				toolName: item.Name,
				args:     item.Arguments,
			})
		}
	}
	switch in.Status {
	case openai.StatusIncomplete:
		out.finish = FinishMaxTokens
	case openai.StatusFailed:
		out.finish = FinishOther
	default:
		if sawToolCall {
			out.finish = FinishToolUse
		} else {
			out.finish = FinishEndTurn
		}
	}
	return out
}

func parseGeminiResponse(in *gemini.GenerateContentResponse) parsedResponse {
	out := parsedResponse{
		id:    in.ResponseID,
		model: in.ModelVersion,
		usage: UsageFromGemini(in.UsageMetadata),
	}
	sawToolCall := false
	toolCount := 0
	for _, candidate := range in.Candidates {
		if candidate.Index != nil && *candidate.Index != 0 {
			continue
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					sawToolCall = true
					toolCount++
					out.blocks = append(out.blocks, foldBlock{
						kind:     "tool_use",
						toolID:   functionCallID(part.FunctionCall, toolCount),
						toolName: part.FunctionCall.Name,
						args:     string(part.FunctionCall.Args),
					})
				case part.Thought && part.Text != "":
					out.blocks = append(out.blocks, foldBlock{
						kind:      "thinking",
						text:      part.Text,
						signature: part.ThoughtSignature,
					})
				case part.Text != "":
					out.blocks = append(out.blocks, foldBlock{kind: "text", text: part.Text})
				}
			}
		}
		out.finish = FinishFromGemini(candidate.FinishReason)
	}
	if sawToolCall && out.finish == FinishEndTurn {
		out.finish = FinishToolUse
	}
	return out
}

// parseResponse reduces a carrier to neutral parts.
func parseResponse(resp GenerateResponse) (parsedResponse, error) {
	switch resp.Proto {
	case domain.ProtoClaude:
		if resp.Claude != nil {
			return parseClaudeResponse(resp.Claude), nil
		}
	case domain.ProtoOpenAIChat:
		if resp.Chat != nil {
			return parseChatResponse(resp.Chat), nil
		}
	case domain.ProtoOpenAIResponse:
		if resp.Responses != nil {
			return parseResponsesResponse(resp.Responses), nil
		}
	case domain.ProtoGemini:
		if resp.Gemini != nil {
			return parseGeminiResponse(resp.Gemini), nil
		}
	}
	return parsedResponse{}, fmt.Errorf("response carrier missing %s payload", resp.Proto)
}

// convertResponseVia is the shared response transform: parse the source
// into neutral parts, rebuild in the destination dialect.
func convertResponseVia(dst domain.Proto) responseTransform {
	return func(resp GenerateResponse) (GenerateResponse, error) {
		parsed, err := parseResponse(resp)
		if err != nil {
			return GenerateResponse{}, err
		}
		return buildResponse(dst, parsed.id, parsed.model, parsed.blocks, parsed.usage, parsed.finish)
	}
}
