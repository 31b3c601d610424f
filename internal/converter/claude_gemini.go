package converter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
)

// claudeToGeminiRequest rewrites a Claude messages request into a Gemini
// generate request: system prompt to systemInstruction, tool definitions
// to functionDeclarations, sampling knobs to generationConfig, and content
// blocks to Parts.
func claudeToGeminiRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Claude
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("claude request payload missing")
	}
	out := &gemini.GenerateContentRequest{}

	if src.System != nil {
		text := systemText(src.System)
		if text != "" {
			out.SystemInstruction = &gemini.Content{Parts: []gemini.Part{{Text: text}}}
		}
	}

	toolNames := map[string]string{} // tool_use id -> name, for tool_result turns
	for _, message := range src.Messages {
		content := gemini.Content{}
		switch message.Role {
		case "assistant":
			content.Role = "model"
		default:
			content.Role = "user"
		}
		for _, block := range message.Content.AsBlocks() {
			switch block.Type {
			case claude.BlockText:
				content.Parts = append(content.Parts, gemini.Part{Text: block.Text})
			case claude.BlockThinking:
				content.Parts = append(content.Parts, gemini.Part{
					Text:             block.Thinking,
					Thought:          true,
					ThoughtSignature: block.Signature,
				})
			case claude.BlockToolUse:
				toolNames[block.ID] = block.Name
				content.Parts = append(content.Parts, gemini.Part{FunctionCall: &gemini.FunctionCall{
					ID:   block.ID,
					Name: block.Name,
					Args: block.Input,
				}})
			case claude.BlockToolResult:
				name := toolNames[block.ToolUseID]
				if name == "" {
					name = block.ToolUseID
				}
				content.Parts = append(content.Parts, gemini.Part{FunctionResponse: &gemini.FunctionResponse{
					ID:       block.ToolUseID,
					Name:     name,
					Response: functionResponsePayload(block.Content),
				}})
			case claude.BlockImage:
				if block.Source != nil && block.Source.Data != "" {
					content.Parts = append(content.Parts, gemini.Part{InlineData: &gemini.Blob{
						MimeType: block.Source.MediaType,
						Data:     block.Source.Data,
					}})
				}
			}
		}
		if len(content.Parts) > 0 {
			out.Contents = append(out.Contents, content)
		}
	}

	config := &gemini.GenerationConfig{}
	hasConfig := false
	if src.MaxTokens > 0 {
		maxTokens := src.MaxTokens
		config.MaxOutputTokens = &maxTokens
		hasConfig = true
	}
	if src.Temperature != nil {
		config.Temperature = src.Temperature
		hasConfig = true
	}
	if src.TopP != nil {
		config.TopP = src.TopP
		hasConfig = true
	}
	if src.TopK != nil {
		config.TopK = src.TopK
		hasConfig = true
	}
	if len(src.StopSequences) > 0 {
		config.StopSequences = src.StopSequences
		hasConfig = true
	}
	if src.Thinking != nil && src.Thinking.Type == "enabled" {
		budget := src.Thinking.BudgetTokens
		config.ThinkingConfig = &gemini.ThinkingConfig{IncludeThoughts: true, ThinkingBudget: &budget}
		hasConfig = true
	}
	if hasConfig {
		out.GenerationConfig = config
	}

	var declarations []gemini.FunctionDeclaration
	for _, tool := range src.Tools {
		declarations = append(declarations, gemini.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		})
	}
	if len(declarations) > 0 {
		out.Tools = []gemini.Tool{{FunctionDeclarations: declarations}}
	}
	if src.ToolChoice != nil {
		out.ToolConfig = claudeToolChoiceToGemini(src.ToolChoice)
	}

	return GenerateRequest{
		Proto:  domain.ProtoGemini,
		Model:  req.Model,
		Stream: req.Stream,
		Gemini: out,
	}, nil
}

// geminiToClaudeRequest rewrites a Gemini generate request into a Claude
// messages request.
func geminiToClaudeRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Gemini
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("gemini request payload missing")
	}
	out := &claude.CreateMessageRequest{Model: req.Model}

	if src.SystemInstruction != nil {
		var text string
		for _, part := range src.SystemInstruction.Parts {
			text += part.Text
		}
		if text != "" {
			system := claude.TextContent(text)
			out.System = &system
		}
	}

	toolCount := 0
	for _, content := range src.Contents {
		message := claude.Message{}
		switch content.Role {
		case "model":
			message.Role = "assistant"
		default:
			message.Role = "user"
		}
		var blocks []claude.ContentBlock
		for _, part := range content.Parts {
			switch {
			case part.FunctionCall != nil:
				toolCount++
				blocks = append(blocks, claude.ContentBlock{
					Type:  claude.BlockToolUse,
					ID:    functionCallID(part.FunctionCall, toolCount),
					Name:  part.FunctionCall.Name,
					Input: part.FunctionCall.Args,
				})
			case part.FunctionResponse != nil:
				id := part.FunctionResponse.ID
				if id == "" {
					id = part.FunctionResponse.Name
				}
				blocks = append(blocks, claude.ContentBlock{
					Type:      claude.BlockToolResult,
					ToolUseID: id,
					Content:   toolResultContent(part.FunctionResponse.Response),
				})
			case part.InlineData != nil:
				blocks = append(blocks, claude.ContentBlock{
					Type: claude.BlockImage,
					Source: &claude.MediaSource{
						Type:      "base64",
						MediaType: part.InlineData.MimeType,
						Data:      part.InlineData.Data,
					},
				})
			case part.Thought && part.Text != "":
				blocks = append(blocks, claude.ContentBlock{
					Type:      claude.BlockThinking,
					Thinking:  part.Text,
					Signature: part.ThoughtSignature,
				})
			case part.Text != "":
				blocks = append(blocks, claude.ContentBlock{Type: claude.BlockText, Text: part.Text})
			}
		}
		if len(blocks) == 1 && blocks[0].Type == claude.BlockText {
			message.Content = claude.TextContent(blocks[0].Text)
		} else if len(blocks) > 0 {
			message.Content = claude.BlocksContent(blocks)
		} else {
			continue
		}
		out.Messages = append(out.Messages, message)
	}

	if config := src.GenerationConfig; config != nil {
		if config.MaxOutputTokens != nil {
			out.MaxTokens = *config.MaxOutputTokens
		}
		out.Temperature = config.Temperature
		out.TopP = config.TopP
		out.TopK = config.TopK
		out.StopSequences = config.StopSequences
		if config.ThinkingConfig != nil && config.ThinkingConfig.IncludeThoughts {
			thinking := &claude.ThinkingConfig{Type: "enabled"}
			if config.ThinkingConfig.ThinkingBudget != nil {
				thinking.BudgetTokens = *config.ThinkingConfig.ThinkingBudget
			}
			out.Thinking = thinking
		}
	}
	if out.MaxTokens == 0 {
		// Claude requires max_tokens; pick a generous ceiling.
		out.MaxTokens = 8192
	}

	for _, tool := range src.Tools {
		for _, decl := range tool.FunctionDeclarations {
			out.Tools = append(out.Tools, claude.Tool{
				Name:        decl.Name,
				Description: decl.Description,
				InputSchema: decl.Parameters,
			})
		}
	}
	if src.ToolConfig != nil && src.ToolConfig.FunctionCallingConfig != nil {
		out.ToolChoice = geminiToolConfigToClaude(src.ToolConfig.FunctionCallingConfig)
	}

	return GenerateRequest{
		Proto:  domain.ProtoClaude,
		Model:  req.Model,
		Stream: req.Stream,
		Claude: out,
	}, nil
}

func systemText(system *claude.SystemPrompt) string {
	if system.IsText() {
		return system.Text
	}
	var out string
	for _, block := range system.Blocks {
		if block.Type == claude.BlockText {
			out += block.Text
		}
	}
	return out
}

// functionResponsePayload wraps a tool_result content value the way Gemini
// expects: an object. Bare strings become {"result": ...}.
func functionResponsePayload(content json.RawMessage) json.RawMessage {
	if len(content) == 0 {
		return json.RawMessage(`{}`)
	}
	trimmed := strings.TrimSpace(string(content))
	if strings.HasPrefix(trimmed, "{") {
		return content
	}
	wrapped, err := json.Marshal(map[string]json.RawMessage{"result": content})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return wrapped
}

// toolResultContent flattens a functionResponse payload back into a
// Claude tool_result content value.
func toolResultContent(response json.RawMessage) json.RawMessage {
	if len(response) == 0 {
		return nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(response, &wrapper); err == nil {
		if result, ok := wrapper["result"]; ok && len(wrapper) == 1 {
			return result
		}
	}
	encoded, err := json.Marshal(string(response))
	if err != nil {
		return nil
	}
	return encoded
}

func claudeToolChoiceToGemini(choice *claude.ToolChoice) *gemini.ToolConfig {
	config := &gemini.FunctionCallingConfig{}
	switch choice.Type {
	case "any":
		config.Mode = "ANY"
	case "tool":
		config.Mode = "ANY"
		if choice.Name != "" {
			config.AllowedFunctionNames = []string{choice.Name}
		}
	case "none":
		config.Mode = "NONE"
	default:
		config.Mode = "AUTO"
	}
	return &gemini.ToolConfig{FunctionCallingConfig: config}
}

func geminiToolConfigToClaude(config *gemini.FunctionCallingConfig) *claude.ToolChoice {
	switch config.Mode {
	case "ANY":
		if len(config.AllowedFunctionNames) == 1 {
			return &claude.ToolChoice{Type: "tool", Name: config.AllowedFunctionNames[0]}
		}
		return &claude.ToolChoice{Type: "any"}
	case "NONE":
		return &claude.ToolChoice{Type: "none"}
	default:
		return &claude.ToolChoice{Type: "auto"}
	}
}
