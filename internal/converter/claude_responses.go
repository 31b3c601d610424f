package converter

import (
	"fmt"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// claudeToResponsesRequest rewrites a Claude messages request into an
// OpenAI Responses request: system prompt to instructions, content blocks
// to input items, thinking budget to reasoning effort.
func claudeToResponsesRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Claude
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("claude request payload missing")
	}
	out := &openai.CreateResponseRequest{Model: req.Model}

	if src.System != nil {
		out.Instructions = systemText(src.System)
	}

	var items []openai.Item
	for _, message := range src.Messages {
		role := message.Role
		var parts []openai.InputPart
		for _, block := range message.Content.AsBlocks() {
			switch block.Type {
			case claude.BlockText:
				partType := openai.PartInputText
				if role == "assistant" {
					partType = openai.PartOutputText
				}
				parts = append(parts, openai.InputPart{Type: partType, Text: block.Text})
			case claude.BlockImage:
				if block.Source != nil {
					parts = append(parts, openai.InputPart{
						Type:     openai.PartInputImage,
						ImageURL: imageDataURL(block.Source),
					})
				}
			case claude.BlockToolUse:
				items = appendMessageItem(items, role, parts)
				parts = nil
				items = append(items, openai.Item{
					Type:      openai.ItemFunctionCall,
					CallID:    block.ID,
					Name:      block.Name,
					Arguments: string(block.Input),
				})
			case claude.BlockToolResult:
				items = appendMessageItem(items, role, parts)
				parts = nil
				items = append(items, openai.Item{
					Type:   openai.ItemFunctionCallOutput,
					CallID: block.ToolUseID,
					Output: block.Content,
				})
			}
		}
		items = appendMessageItem(items, role, parts)
	}
	if len(items) > 0 {
		input := openai.InputItems(items)
		out.Input = &input
	}

	if src.MaxTokens > 0 {
		maxTokens := src.MaxTokens
		out.MaxOutputTokens = &maxTokens
	}
	out.Temperature = src.Temperature
	out.TopP = src.TopP
	if src.Thinking != nil && src.Thinking.Type == "enabled" {
		out.Reasoning = &openai.Reasoning{Effort: effortFromBudget(src.Thinking.BudgetTokens)}
	}

	for _, tool := range src.Tools {
		out.Tools = append(out.Tools, openai.ResponseTool{
			Type:        "function",
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		})
	}
	if src.ToolChoice != nil {
		out.ToolChoice = claudeToolChoiceToOpenAI(src.ToolChoice)
	}

	return GenerateRequest{
		Proto:     domain.ProtoOpenAIResponse,
		Model:     req.Model,
		Stream:    req.Stream,
		Responses: out,
	}, nil
}

// responsesToClaudeRequest rewrites an OpenAI Responses request into a
// Claude messages request.
func responsesToClaudeRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Responses
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("responses request payload missing")
	}
	out := &claude.CreateMessageRequest{Model: req.Model}

	if src.Instructions != "" {
		system := claude.TextContent(src.Instructions)
		out.System = &system
	}

	if src.Input != nil {
		for _, item := range src.Input.AsItems() {
			switch item.Type {
			case openai.ItemMessage, "":
				role := item.Role
				if role == "system" || role == "developer" {
					text := ""
					if item.Content != nil {
						text = item.Content.Flatten()
					}
					if text != "" {
						if out.System == nil {
							system := claude.TextContent(text)
							out.System = &system
						} else {
							system := claude.TextContent(systemText(out.System) + text)
							out.System = &system
						}
					}
					continue
				}
				if role != "assistant" {
					role = "user"
				}
				var blocks []claude.ContentBlock
				if item.Content != nil {
					if item.Content.IsText() {
						blocks = append(blocks, claude.ContentBlock{Type: claude.BlockText, Text: item.Content.Text})
					} else {
						for _, part := range item.Content.Parts {
							switch part.Type {
							case openai.PartInputText, openai.PartOutputText:
								blocks = append(blocks, claude.ContentBlock{Type: claude.BlockText, Text: part.Text})
							case openai.PartInputImage:
								blocks = append(blocks, imageBlockFromURL(part.ImageURL))
							}
						}
					}
				}
				if len(blocks) > 0 {
					out.Messages = append(out.Messages, claude.Message{
						Role:    role,
						Content: claude.BlocksContent(blocks),
					})
				}
			case openai.ItemFunctionCall:
				id := item.CallID
				if id == "" {
					id = item.ID
				}
				out.Messages = append(out.Messages, claude.Message{
					Role: "assistant",
					Content: claude.BlocksContent([]claude.ContentBlock{{
						Type:  claude.BlockToolUse,
						ID:    id,
						Name:  item.Name,
						Input: toolArgsJSON(item.Arguments),
					}}),
				})
			case openai.ItemFunctionCallOutput:
				out.Messages = append(out.Messages, claude.Message{
					Role: "user",
					Content: claude.BlocksContent([]claude.ContentBlock{{
						Type:      claude.BlockToolResult,
						ToolUseID: item.CallID,
						Content:   item.Output,
					}}),
				})
			}
		}
	}

	if src.MaxOutputTokens != nil {
		out.MaxTokens = *src.MaxOutputTokens
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 8192
	}
	out.Temperature = src.Temperature
	out.TopP = src.TopP
	if src.Reasoning != nil && src.Reasoning.Effort != "" && src.Reasoning.Effort != "none" {
		out.Thinking = &claude.ThinkingConfig{Type: "enabled", BudgetTokens: budgetFromEffort(src.Reasoning.Effort)}
	}

	for _, tool := range src.Tools {
		if tool.Type != "function" {
			continue
		}
		out.Tools = append(out.Tools, claude.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
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

// appendMessageItem flushes accumulated parts as one message item.
func appendMessageItem(items []openai.Item, role string, parts []openai.InputPart) []openai.Item {
	if len(parts) == 0 {
		return items
	}
	content := openai.ItemContent{Parts: parts}
	return append(items, openai.Item{Type: openai.ItemMessage, Role: role, Content: &content})
}

// effortFromBudget buckets a thinking token budget into a reasoning effort.
func effortFromBudget(budget int) string {
	switch {
	case budget <= 0:
		return "medium"
	case budget <= 2048:
		return "low"
	case budget <= 16384:
		return "medium"
	default:
		return "high"
	}
}

// budgetFromEffort is the reverse bucketing.
func budgetFromEffort(effort string) int {
	switch effort {
	case "minimal", "low":
		return 1024
	case "high", "xhigh":
		return 32768
	default:
		return 8192
	}
}
