package converter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// chatToGeminiRequest rewrites a chat completions request into a Gemini
// generate request.
func chatToGeminiRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Chat
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("chat request payload missing")
	}
	out := &gemini.GenerateContentRequest{}

	callNames := map[string]string{}
	var systemText string
	for _, message := range src.Messages {
		switch message.Role {
		case "system", "developer":
			if message.Content != nil {
				systemText += message.Content.Flatten()
			}
		case "assistant":
			content := gemini.Content{Role: "model"}
			if message.Content != nil {
				if text := message.Content.Flatten(); text != "" {
					content.Parts = append(content.Parts, gemini.Part{Text: text})
				}
			}
			for _, call := range message.ToolCalls {
				callNames[call.ID] = call.Function.Name
				content.Parts = append(content.Parts, gemini.Part{FunctionCall: &gemini.FunctionCall{
					ID:   call.ID,
					Name: call.Function.Name,
					Args: toolArgsJSON(call.Function.Arguments),
				}})
			}
			if len(content.Parts) > 0 {
				out.Contents = append(out.Contents, content)
			}
		case "tool":
			name := callNames[message.ToolCallID]
			if name == "" {
				name = message.ToolCallID
			}
			text := ""
			if message.Content != nil {
				text = message.Content.Flatten()
			}
			encoded, err := json.Marshal(text)
			if err != nil {
				encoded = []byte(`""`)
			}
			out.Contents = append(out.Contents, gemini.Content{
				Role: "user",
				Parts: []gemini.Part{{FunctionResponse: &gemini.FunctionResponse{
					ID:       message.ToolCallID,
					Name:     name,
					Response: functionResponsePayload(encoded),
				}}},
			})
		default:
			content := gemini.Content{Role: "user"}
			if message.Content != nil {
				if message.Content.IsText() {
					content.Parts = append(content.Parts, gemini.Part{Text: message.Content.Text})
				} else {
					for _, part := range message.Content.Parts {
						switch part.Type {
						case "text":
							content.Parts = append(content.Parts, gemini.Part{Text: part.Text})
						case "image_url":
							if part.ImageURL != nil {
								content.Parts = append(content.Parts, imagePartFromURL(part.ImageURL.URL))
							}
						}
					}
				}
			}
			if len(content.Parts) > 0 {
				out.Contents = append(out.Contents, content)
			}
		}
	}
	if systemText != "" {
		out.SystemInstruction = &gemini.Content{Parts: []gemini.Part{{Text: systemText}}}
	}

	config := &gemini.GenerationConfig{}
	hasConfig := false
	if maxTokens := src.MaxOutputTokens(); maxTokens > 0 {
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
	if src.Stop != nil && len(src.Stop.Sequences) > 0 {
		config.StopSequences = src.Stop.Sequences
		hasConfig = true
	}
	if src.FrequencyPenalty != nil {
		config.FrequencyPenalty = src.FrequencyPenalty
		hasConfig = true
	}
	if src.PresencePenalty != nil {
		config.PresencePenalty = src.PresencePenalty
		hasConfig = true
	}
	if src.Seed != nil {
		config.Seed = src.Seed
		hasConfig = true
	}
	if src.ResponseFormat != nil {
		switch src.ResponseFormat.Type {
		case "json_object":
			config.ResponseMimeType = "application/json"
			hasConfig = true
		case "json_schema":
			config.ResponseMimeType = "application/json"
			var schema struct {
				Schema json.RawMessage `json:"schema"`
			}
			if err := json.Unmarshal(src.ResponseFormat.JSONSchema, &schema); err == nil {
				config.ResponseJSONSchema = schema.Schema
			}
			hasConfig = true
		}
	}
	if src.ReasoningEffort != "" && src.ReasoningEffort != "none" {
		budget := budgetFromEffort(src.ReasoningEffort)
		config.ThinkingConfig = &gemini.ThinkingConfig{IncludeThoughts: true, ThinkingBudget: &budget}
		hasConfig = true
	}
	if hasConfig {
		out.GenerationConfig = config
	}

	var declarations []gemini.FunctionDeclaration
	for _, tool := range src.Tools {
		declarations = append(declarations, gemini.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  tool.Function.Parameters,
		})
	}
	if len(declarations) > 0 {
		out.Tools = []gemini.Tool{{FunctionDeclarations: declarations}}
	}
	if src.ToolChoice != nil {
		out.ToolConfig = openAIToolChoiceToGemini(src.ToolChoice)
	}

	return GenerateRequest{
		Proto:  domain.ProtoGemini,
		Model:  req.Model,
		Stream: req.Stream,
		Gemini: out,
	}, nil
}

// geminiToChatRequest rewrites a Gemini generate request into chat
// completions messages.
func geminiToChatRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Gemini
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("gemini request payload missing")
	}
	out := &openai.ChatCompletionRequest{Model: req.Model}

	if src.SystemInstruction != nil {
		var text string
		for _, part := range src.SystemInstruction.Parts {
			text += part.Text
		}
		if text != "" {
			content := openai.ChatText(text)
			out.Messages = append(out.Messages, openai.ChatMessage{Role: "system", Content: &content})
		}
	}

	toolCount := 0
	for _, content := range src.Contents {
		role := "user"
		if content.Role == "model" {
			role = "assistant"
		}
		message := openai.ChatMessage{Role: role}
		var text string
		for _, part := range content.Parts {
			switch {
			case part.FunctionCall != nil:
				toolCount++
				message.ToolCalls = append(message.ToolCalls, openai.ToolCall{
					ID:   functionCallID(part.FunctionCall, toolCount),
					Type: "function",
					Function: openai.ToolCallFunction{
						Name:      part.FunctionCall.Name,
						Arguments: string(part.FunctionCall.Args),
					},
				})
			case part.FunctionResponse != nil:
				id := part.FunctionResponse.ID
				if id == "" {
					id = part.FunctionResponse.Name
				}
				toolContent := openai.ChatText(toolResultText(toolResultContent(part.FunctionResponse.Response)))
				out.Messages = append(out.Messages, openai.ChatMessage{
					Role:       "tool",
					ToolCallID: id,
					Content:    &toolContent,
				})
			case part.Thought && part.Text != "":
				message.ReasoningContent += part.Text
			default:
				text += part.Text
			}
		}
		if text != "" || len(message.ToolCalls) > 0 || message.ReasoningContent != "" {
			if text != "" || len(message.ToolCalls) == 0 {
				msgContent := openai.ChatText(text)
				message.Content = &msgContent
			}
			out.Messages = append(out.Messages, message)
		}
	}

	if config := src.GenerationConfig; config != nil {
		if config.MaxOutputTokens != nil {
			out.MaxCompletionTokens = config.MaxOutputTokens
		}
		out.Temperature = config.Temperature
		out.TopP = config.TopP
		if len(config.StopSequences) > 0 {
			out.Stop = &openai.StopConfiguration{Sequences: config.StopSequences}
		}
		out.FrequencyPenalty = config.FrequencyPenalty
		out.PresencePenalty = config.PresencePenalty
		out.Seed = config.Seed
		if config.ResponseMimeType == "application/json" {
			out.ResponseFormat = &openai.ResponseFormat{Type: "json_object"}
		}
		if config.ThinkingConfig != nil && config.ThinkingConfig.IncludeThoughts {
			budget := 0
			if config.ThinkingConfig.ThinkingBudget != nil {
				budget = *config.ThinkingConfig.ThinkingBudget
			}
			out.ReasoningEffort = effortFromBudget(budget)
		}
	}

	for _, tool := range src.Tools {
		for _, decl := range tool.FunctionDeclarations {
			out.Tools = append(out.Tools, openai.ToolDefinition{
				Type: "function",
				Function: openai.ToolFunction{
					Name:        decl.Name,
					Description: decl.Description,
					Parameters:  decl.Parameters,
				},
			})
		}
	}
	if src.ToolConfig != nil && src.ToolConfig.FunctionCallingConfig != nil {
		out.ToolChoice = geminiToolConfigToOpenAI(src.ToolConfig.FunctionCallingConfig)
	}

	return GenerateRequest{
		Proto:  domain.ProtoOpenAIChat,
		Model:  req.Model,
		Stream: req.Stream,
		Chat:   out,
	}, nil
}

func openAIToolChoiceToGemini(choice *openai.ToolChoice) *gemini.ToolConfig {
	config := &gemini.FunctionCallingConfig{}
	if choice.Function != "" {
		config.Mode = "ANY"
		config.AllowedFunctionNames = []string{choice.Function}
	} else {
		switch choice.Mode {
		case "required":
			config.Mode = "ANY"
		case "none":
			config.Mode = "NONE"
		default:
			config.Mode = "AUTO"
		}
	}
	return &gemini.ToolConfig{FunctionCallingConfig: config}
}

func geminiToolConfigToOpenAI(config *gemini.FunctionCallingConfig) *openai.ToolChoice {
	switch config.Mode {
	case "ANY":
		if len(config.AllowedFunctionNames) == 1 {
			return &openai.ToolChoice{Function: config.AllowedFunctionNames[0]}
		}
		return &openai.ToolChoice{Mode: "required"}
	case "NONE":
		return &openai.ToolChoice{Mode: "none"}
	default:
		return &openai.ToolChoice{Mode: "auto"}
	}
}

// imagePartFromURL converts a chat image_url into a Gemini part: data:
// URLs become inlineData, everything else fileData.
func imagePartFromURL(url string) gemini.Part {
	const prefix = "data:"
	if strings.HasPrefix(url, prefix) {
		rest := url[len(prefix):]
		if comma := strings.IndexByte(rest, ','); comma >= 0 {
			meta := rest[:comma]
			mediaType := meta
			if semi := strings.IndexByte(meta, ';'); semi >= 0 {
				mediaType = meta[:semi]
			}
			return gemini.Part{InlineData: &gemini.Blob{
				MimeType: mediaType,
				Data:     rest[comma+1:],
			}}
		}
	}
	return gemini.Part{FileData: &gemini.FileData{FileURI: url}}
}
