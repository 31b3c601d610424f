package converter

import (
	"encoding/json"
	"fmt"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// chatToResponsesRequest rewrites a chat completions request into the
// Responses item model.
func chatToResponsesRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Chat
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("chat request payload missing")
	}
	out := &openai.CreateResponseRequest{Model: req.Model}

	var items []openai.Item
	for _, message := range src.Messages {
		switch message.Role {
		case "system", "developer":
			if message.Content != nil {
				out.Instructions += message.Content.Flatten()
			}
		case "assistant":
			var parts []openai.InputPart
			if message.Content != nil {
				if text := message.Content.Flatten(); text != "" {
					parts = append(parts, openai.InputPart{Type: openai.PartOutputText, Text: text})
				}
			}
			items = appendMessageItem(items, "assistant", parts)
			for _, call := range message.ToolCalls {
				items = append(items, openai.Item{
					Type:      openai.ItemFunctionCall,
					CallID:    call.ID,
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				})
			}
		case "tool":
			var output json.RawMessage
			if message.Content != nil {
				encoded, err := json.Marshal(message.Content.Flatten())
				if err == nil {
					output = encoded
				}
			}
			items = append(items, openai.Item{
				Type:   openai.ItemFunctionCallOutput,
				CallID: message.ToolCallID,
				Output: output,
			})
		default:
			var parts []openai.InputPart
			if message.Content != nil {
				if message.Content.IsText() {
					parts = append(parts, openai.InputPart{Type: openai.PartInputText, Text: message.Content.Text})
				} else {
					for _, part := range message.Content.Parts {
						switch part.Type {
						case "text":
							parts = append(parts, openai.InputPart{Type: openai.PartInputText, Text: part.Text})
						case "image_url":
							if part.ImageURL != nil {
								parts = append(parts, openai.InputPart{
									Type:     openai.PartInputImage,
									ImageURL: part.ImageURL.URL,
									Detail:   part.ImageURL.Detail,
								})
							}
						case "file":
							if part.File != nil {
								parts = append(parts, openai.InputPart{
									Type:     openai.PartInputFile,
									FileID:   part.File.FileID,
									FileData: part.File.FileData,
									Filename: part.File.Filename,
								})
							}
						}
					}
				}
			}
			items = appendMessageItem(items, "user", parts)
		}
	}
	if len(items) > 0 {
		input := openai.InputItems(items)
		out.Input = &input
	}

	if maxTokens := src.MaxOutputTokens(); maxTokens > 0 {
		out.MaxOutputTokens = &maxTokens
	}
	out.Temperature = src.Temperature
	out.TopP = src.TopP
	out.TopLogprobs = src.TopLogprobs
	out.ParallelToolCalls = src.ParallelToolCalls
	if src.User != "" {
		out.User = src.User
	}
	if src.ReasoningEffort != "" {
		out.Reasoning = &openai.Reasoning{Effort: src.ReasoningEffort}
	}
	if src.ResponseFormat != nil {
		out.Text = responseFormatToTextParam(src.ResponseFormat)
	}

	for _, tool := range src.Tools {
		out.Tools = append(out.Tools, openai.ResponseTool{
			Type:        "function",
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  tool.Function.Parameters,
			Strict:      tool.Function.Strict,
		})
	}
	out.ToolChoice = src.ToolChoice

	return GenerateRequest{
		Proto:     domain.ProtoOpenAIResponse,
		Model:     req.Model,
		Stream:    req.Stream,
		Responses: out,
	}, nil
}

// responsesToChatRequest rewrites a Responses request into chat messages.
func responsesToChatRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Responses
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("responses request payload missing")
	}
	out := &openai.ChatCompletionRequest{Model: req.Model}

	if src.Instructions != "" {
		content := openai.ChatText(src.Instructions)
		out.Messages = append(out.Messages, openai.ChatMessage{Role: "system", Content: &content})
	}

	if src.Input != nil {
		var pendingAssistant *openai.ChatMessage
		flush := func() {
			if pendingAssistant != nil {
				out.Messages = append(out.Messages, *pendingAssistant)
				pendingAssistant = nil
			}
		}
		for _, item := range src.Input.AsItems() {
			switch item.Type {
			case openai.ItemMessage, "":
				flush()
				role := item.Role
				if role == "" {
					role = "user"
				}
				var parts []openai.ChatContentPart
				if item.Content != nil {
					if item.Content.IsText() {
						parts = append(parts, openai.ChatContentPart{Type: "text", Text: item.Content.Text})
					} else {
						for _, part := range item.Content.Parts {
							switch part.Type {
							case openai.PartInputText, openai.PartOutputText:
								parts = append(parts, openai.ChatContentPart{Type: "text", Text: part.Text})
							case openai.PartInputImage:
								chatPart := openai.ChatContentPart{Type: "image_url"}
								chatPart.ImageURL = &struct {
									URL    string `json:"url"`
									Detail string `json:"detail,omitempty"`
								}{URL: part.ImageURL, Detail: part.Detail}
								parts = append(parts, chatPart)
							case openai.PartInputFile:
								chatPart := openai.ChatContentPart{Type: "file"}
								chatPart.File = &struct {
									FileID   string `json:"file_id,omitempty"`
									FileData string `json:"file_data,omitempty"`
									Filename string `json:"filename,omitempty"`
								}{FileID: part.FileID, FileData: part.FileData, Filename: part.Filename}
								parts = append(parts, chatPart)
							}
						}
					}
				}
				if len(parts) == 1 && parts[0].Type == "text" {
					content := openai.ChatText(parts[0].Text)
					out.Messages = append(out.Messages, openai.ChatMessage{Role: role, Content: &content})
				} else if len(parts) > 0 {
					content := openai.ChatContent{Parts: parts}
					out.Messages = append(out.Messages, openai.ChatMessage{Role: role, Content: &content})
				}
			case openai.ItemFunctionCall:
				if pendingAssistant == nil {
					pendingAssistant = &openai.ChatMessage{Role: "assistant"}
				}
				pendingAssistant.ToolCalls = append(pendingAssistant.ToolCalls, openai.ToolCall{
					ID:   item.CallID,
					Type: "function",
					Function: openai.ToolCallFunction{
						Name:      item.Name,
						Arguments: item.Arguments,
					},
				})
			case openai.ItemFunctionCallOutput:
				flush()
				text := ""
				if len(item.Output) > 0 {
					if err := json.Unmarshal(item.Output, &text); err != nil {
						text = string(item.Output)
					}
				}
				content := openai.ChatText(text)
				out.Messages = append(out.Messages, openai.ChatMessage{
					Role:       "tool",
					ToolCallID: item.CallID,
					Content:    &content,
				})
			}
		}
		flush()
	}

	if src.MaxOutputTokens != nil {
		out.MaxCompletionTokens = src.MaxOutputTokens
	}
	out.Temperature = src.Temperature
	out.TopP = src.TopP
	out.TopLogprobs = src.TopLogprobs
	out.ParallelToolCalls = src.ParallelToolCalls
	out.User = src.User
	if src.Reasoning != nil {
		out.ReasoningEffort = src.Reasoning.Effort
	}
	if src.Text != nil && src.Text.Format != nil {
		out.ResponseFormat = textParamToResponseFormat(src.Text)
	}

	for _, tool := range src.Tools {
		if tool.Type != "function" {
			continue
		}
		out.Tools = append(out.Tools, openai.ToolDefinition{
			Type: "function",
			Function: openai.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
				Strict:      tool.Strict,
			},
		})
	}
	out.ToolChoice = src.ToolChoice

	return GenerateRequest{
		Proto:  domain.ProtoOpenAIChat,
		Model:  req.Model,
		Stream: req.Stream,
		Chat:   out,
	}, nil
}

func responseFormatToTextParam(format *openai.ResponseFormat) *openai.ResponseTextParam {
	switch format.Type {
	case "json_object":
		return &openai.ResponseTextParam{Format: &openai.TextFormat{Type: "json_object"}}
	case "json_schema":
		var schema struct {
			Name   string          `json:"name"`
			Schema json.RawMessage `json:"schema"`
			Strict *bool           `json:"strict"`
		}
		_ = json.Unmarshal(format.JSONSchema, &schema)
		return &openai.ResponseTextParam{Format: &openai.TextFormat{
			Type:   "json_schema",
			Name:   schema.Name,
			Schema: schema.Schema,
			Strict: schema.Strict,
		}}
	default:
		return &openai.ResponseTextParam{Format: &openai.TextFormat{Type: "text"}}
	}
}

func textParamToResponseFormat(text *openai.ResponseTextParam) *openai.ResponseFormat {
	format := text.Format
	switch format.Type {
	case "json_object":
		return &openai.ResponseFormat{Type: "json_object"}
	case "json_schema":
		payload, err := json.Marshal(map[string]any{
			"name":   format.Name,
			"schema": json.RawMessage(format.Schema),
			"strict": format.Strict,
		})
		if err != nil {
			return &openai.ResponseFormat{Type: "json_object"}
		}
		return &openai.ResponseFormat{Type: "json_schema", JSONSchema: payload}
	default:
		return &openai.ResponseFormat{Type: "text"}
	}
}
