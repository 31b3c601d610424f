package converter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// claudeToChatRequest rewrites a Claude messages request into a chat
// completions request. The system prompt becomes the leading system
// message; tool_use blocks become assistant tool_calls and tool_result
// blocks become tool-role messages.
func claudeToChatRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Claude
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("claude request payload missing")
	}
	out := &openai.ChatCompletionRequest{Model: req.Model}

	if src.System != nil {
		if text := systemText(src.System); text != "" {
			content := openai.ChatText(text)
			out.Messages = append(out.Messages, openai.ChatMessage{Role: "system", Content: &content})
		}
	}

	for _, message := range src.Messages {
		switch message.Role {
		case "assistant":
			assistant := openai.ChatMessage{Role: "assistant"}
			var text string
			for _, block := range message.Content.AsBlocks() {
				switch block.Type {
				case claude.BlockText:
					text += block.Text
				case claude.BlockThinking:
					assistant.ReasoningContent += block.Thinking
				case claude.BlockToolUse:
					assistant.ToolCalls = append(assistant.ToolCalls, openai.ToolCall{
						ID:   block.ID,
						Type: "function",
						Function: openai.ToolCallFunction{
							Name:      block.Name,
							Arguments: string(block.Input),
						},
					})
				}
			}
			if text != "" || len(assistant.ToolCalls) == 0 {
				content := openai.ChatText(text)
				assistant.Content = &content
			}
			out.Messages = append(out.Messages, assistant)
		default:
			// Tool results become their own tool-role turns; the rest of
			// the user content stays one user message.
			var parts []openai.ChatContentPart
			var toolMessages []openai.ChatMessage
			for _, block := range message.Content.AsBlocks() {
				switch block.Type {
				case claude.BlockText:
					parts = append(parts, openai.ChatContentPart{Type: "text", Text: block.Text})
				case claude.BlockImage:
					if block.Source != nil {
						part := openai.ChatContentPart{Type: "image_url"}
						part.ImageURL = &struct {
							URL    string `json:"url"`
							Detail string `json:"detail,omitempty"`
						}{URL: imageDataURL(block.Source)}
						parts = append(parts, part)
					}
				case claude.BlockToolResult:
					content := openai.ChatText(toolResultText(block.Content))
					toolMessages = append(toolMessages, openai.ChatMessage{
						Role:       "tool",
						ToolCallID: block.ToolUseID,
						Content:    &content,
					})
				}
			}
			out.Messages = append(out.Messages, toolMessages...)
			if len(parts) == 1 && parts[0].Type == "text" {
				content := openai.ChatText(parts[0].Text)
				out.Messages = append(out.Messages, openai.ChatMessage{Role: "user", Content: &content})
			} else if len(parts) > 0 {
				content := openai.ChatContent{Parts: parts}
				out.Messages = append(out.Messages, openai.ChatMessage{Role: "user", Content: &content})
			}
		}
	}

	if src.MaxTokens > 0 {
		maxTokens := src.MaxTokens
		out.MaxCompletionTokens = &maxTokens
	}
	out.Temperature = src.Temperature
	out.TopP = src.TopP
	if len(src.StopSequences) > 0 {
		out.Stop = &openai.StopConfiguration{Sequences: src.StopSequences}
	}

	for _, tool := range src.Tools {
		out.Tools = append(out.Tools, openai.ToolDefinition{
			Type: "function",
			Function: openai.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	if src.ToolChoice != nil {
		out.ToolChoice = claudeToolChoiceToOpenAI(src.ToolChoice)
	}

	return GenerateRequest{
		Proto:  domain.ProtoOpenAIChat,
		Model:  req.Model,
		Stream: req.Stream,
		Chat:   out,
	}, nil
}

// chatToClaudeRequest rewrites a chat completions request into a Claude
// messages request.
func chatToClaudeRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Chat
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("chat request payload missing")
	}
	out := &claude.CreateMessageRequest{Model: req.Model}

	var systemParts string
	for _, message := range src.Messages {
		switch message.Role {
		case "system", "developer":
			if message.Content != nil {
				systemParts += message.Content.Flatten()
			}
		case "assistant":
			var blocks []claude.ContentBlock
			if message.ReasoningContent != "" {
				blocks = append(blocks, claude.ContentBlock{Type: claude.BlockThinking, Thinking: message.ReasoningContent})
			}
			if message.Content != nil {
				if text := message.Content.Flatten(); text != "" {
					blocks = append(blocks, claude.ContentBlock{Type: claude.BlockText, Text: text})
				}
			}
			for _, call := range message.ToolCalls {
				blocks = append(blocks, claude.ContentBlock{
					Type:  claude.BlockToolUse,
					ID:    call.ID,
					Name:  call.Function.Name,
					Input: toolArgsJSON(call.Function.Arguments),
				})
			}
			if len(blocks) > 0 {
				out.Messages = append(out.Messages, claude.Message{
					Role:    "assistant",
					Content: claude.BlocksContent(blocks),
				})
			}
		case "tool":
			var content json.RawMessage
			if message.Content != nil {
				encoded, err := json.Marshal(message.Content.Flatten())
				if err == nil {
					content = encoded
				}
			}
			out.Messages = append(out.Messages, claude.Message{
				Role: "user",
				Content: claude.BlocksContent([]claude.ContentBlock{{
					Type:      claude.BlockToolResult,
					ToolUseID: message.ToolCallID,
					Content:   content,
				}}),
			})
		default:
			if message.Content == nil {
				continue
			}
			if message.Content.IsText() {
				out.Messages = append(out.Messages, claude.Message{
					Role:    "user",
					Content: claude.TextContent(message.Content.Text),
				})
				continue
			}
			var blocks []claude.ContentBlock
			for _, part := range message.Content.Parts {
				switch part.Type {
				case "text":
					blocks = append(blocks, claude.ContentBlock{Type: claude.BlockText, Text: part.Text})
				case "image_url":
					if part.ImageURL != nil {
						blocks = append(blocks, imageBlockFromURL(part.ImageURL.URL))
					}
				}
			}
			if len(blocks) > 0 {
				out.Messages = append(out.Messages, claude.Message{
					Role:    "user",
					Content: claude.BlocksContent(blocks),
				})
			}
		}
	}

	if systemParts != "" {
		system := claude.TextContent(systemParts)
		out.System = &system
	}
	out.MaxTokens = src.MaxOutputTokens()
	if out.MaxTokens == 0 {
		out.MaxTokens = 8192
	}
	out.Temperature = src.Temperature
	out.TopP = src.TopP
	if src.Stop != nil {
		out.StopSequences = src.Stop.Sequences
	}

	for _, tool := range src.Tools {
		out.Tools = append(out.Tools, claude.Tool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}
	if src.ToolChoice != nil {
		out.ToolChoice = openAIToolChoiceToClaude(src.ToolChoice)
	}

	return GenerateRequest{
		Proto:  domain.ProtoClaude,
		Model:  req.Model,
		Stream: req.Stream,
		Claude: out,
	}, nil
}

func claudeToolChoiceToOpenAI(choice *claude.ToolChoice) *openai.ToolChoice {
	switch choice.Type {
	case "any":
		return &openai.ToolChoice{Mode: "required"}
	case "tool":
		return &openai.ToolChoice{Function: choice.Name}
	case "none":
		return &openai.ToolChoice{Mode: "none"}
	default:
		return &openai.ToolChoice{Mode: "auto"}
	}
}

func openAIToolChoiceToClaude(choice *openai.ToolChoice) *claude.ToolChoice {
	if choice.Function != "" {
		return &claude.ToolChoice{Type: "tool", Name: choice.Function}
	}
	switch choice.Mode {
	case "required":
		return &claude.ToolChoice{Type: "any"}
	case "none":
		return &claude.ToolChoice{Type: "none"}
	default:
		return &claude.ToolChoice{Type: "auto"}
	}
}

// imageDataURL renders a Claude media source as a data: or plain URL.
func imageDataURL(source *claude.MediaSource) string {
	if source.Type == "url" {
		return source.URL
	}
	return "data:" + source.MediaType + ";base64," + source.Data
}

// imageBlockFromURL converts a chat image_url part back into a Claude
// image block, decoding data: URLs into base64 sources.
func imageBlockFromURL(url string) claude.ContentBlock {
	const prefix = "data:"
	if len(url) > len(prefix) && url[:len(prefix)] == prefix {
		rest := url[len(prefix):]
		for i := 0; i < len(rest); i++ {
			if rest[i] == ',' {
				meta := rest[:i]
				data := rest[i+1:]
				mediaType := meta
				if j := strings.IndexByte(meta, ';'); j >= 0 {
					mediaType = meta[:j]
				}
				return claude.ContentBlock{
					Type: claude.BlockImage,
					Source: &claude.MediaSource{
						Type:      "base64",
						MediaType: mediaType,
						Data:      data,
					},
				}
			}
		}
	}
	return claude.ContentBlock{
		Type:   claude.BlockImage,
		Source: &claude.MediaSource{Type: "url", URL: url},
	}
}

// toolResultText flattens a Claude tool_result content into plain text.
func toolResultText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(content, &text); err == nil {
		return text
	}
	var blocks []claude.ContentBlock
	if err := json.Unmarshal(content, &blocks); err == nil {
		var out string
		for _, block := range blocks {
			if block.Type == claude.BlockText {
				out += block.Text
			}
		}
		return out
	}
	return string(content)
}
