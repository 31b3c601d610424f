package converter

import (
	"fmt"
	"strings"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// geminiToResponsesRequest rewrites a Gemini generate request into an
// OpenAI Responses request. Role-tagged contents become message items,
// inline_data becomes an input_file with base64 file_data, image-mime
// file_data becomes input_image and other file_data input_file with a
// file_url. response_mime_type/application/json and response_json_schema
// select text.format; thinking config maps to reasoning effort and an
// image response modality adds the image_generation tool.
func geminiToResponsesRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Gemini
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("gemini request payload missing")
	}
	out := &openai.CreateResponseRequest{Model: req.Model}

	if src.SystemInstruction != nil {
		for _, part := range src.SystemInstruction.Parts {
			out.Instructions += part.Text
		}
	}

	var items []openai.Item
	toolCount := 0
	for _, content := range src.Contents {
		role := "user"
		if content.Role == "model" {
			role = "assistant"
		}
		var parts []openai.InputPart
		for _, part := range content.Parts {
			switch {
			case part.FunctionCall != nil:
				items = appendMessageItem(items, role, parts)
				parts = nil
				toolCount++
				items = append(items, openai.Item{
					Type:      openai.ItemFunctionCall,
					CallID:    functionCallID(part.FunctionCall, toolCount),
					Name:      part.FunctionCall.Name,
					Arguments: string(part.FunctionCall.Args),
				})
			case part.FunctionResponse != nil:
				items = appendMessageItem(items, role, parts)
				parts = nil
				id := part.FunctionResponse.ID
				if id == "" {
					id = part.FunctionResponse.Name
				}
				items = append(items, openai.Item{
					Type:   openai.ItemFunctionCallOutput,
					CallID: id,
					Output: toolResultContent(part.FunctionResponse.Response),
				})
			case part.InlineData != nil:
				parts = append(parts, openai.InputPart{
					Type:     openai.PartInputFile,
					FileData: "data:" + part.InlineData.MimeType + ";base64," + part.InlineData.Data,
				})
			case part.FileData != nil:
				if strings.HasPrefix(part.FileData.MimeType, "image/") {
					parts = append(parts, openai.InputPart{
						Type:     openai.PartInputImage,
						ImageURL: part.FileData.FileURI,
					})
				} else {
					parts = append(parts, openai.InputPart{
						Type:    openai.PartInputFile,
						FileURL: part.FileData.FileURI,
					})
				}
			case part.Text != "":
				partType := openai.PartInputText
				if role == "assistant" {
					partType = openai.PartOutputText
				}
				parts = append(parts, openai.InputPart{Type: partType, Text: part.Text})
			}
		}
		items = appendMessageItem(items, role, parts)
	}
	if len(items) > 0 {
		input := openai.InputItems(items)
		out.Input = &input
	}

	if config := src.GenerationConfig; config != nil {
		if config.MaxOutputTokens != nil {
			out.MaxOutputTokens = config.MaxOutputTokens
		}
		out.Temperature = config.Temperature
		out.TopP = config.TopP
		switch {
		case len(config.ResponseJSONSchema) > 0:
			out.Text = &openai.ResponseTextParam{Format: &openai.TextFormat{
				Type:   "json_schema",
				Name:   "response",
				Schema: config.ResponseJSONSchema,
			}}
		case config.ResponseMimeType == "application/json":
			out.Text = &openai.ResponseTextParam{Format: &openai.TextFormat{Type: "json_object"}}
		}
		if config.ThinkingConfig != nil && config.ThinkingConfig.IncludeThoughts {
			budget := 0
			if config.ThinkingConfig.ThinkingBudget != nil {
				budget = *config.ThinkingConfig.ThinkingBudget
			}
			out.Reasoning = &openai.Reasoning{Effort: effortFromBudget(budget)}
		}
		for _, modality := range config.ResponseModalities {
			if strings.EqualFold(modality, "image") {
				out.Tools = append(out.Tools, openai.ResponseTool{Type: "image_generation"})
			}
		}
	}

	for _, tool := range src.Tools {
		for _, decl := range tool.FunctionDeclarations {
			out.Tools = append(out.Tools, openai.ResponseTool{
				Type:        "function",
				Name:        decl.Name,
				Description: decl.Description,
				Parameters:  decl.Parameters,
			})
		}
	}
	if src.ToolConfig != nil && src.ToolConfig.FunctionCallingConfig != nil {
		out.ToolChoice = geminiToolConfigToOpenAI(src.ToolConfig.FunctionCallingConfig)
	}

	return GenerateRequest{
		Proto:     domain.ProtoOpenAIResponse,
		Model:     req.Model,
		Stream:    req.Stream,
		Responses: out,
	}, nil
}

// responsesToGeminiRequest rewrites a Responses request into a Gemini
// generate request.
func responsesToGeminiRequest(req GenerateRequest) (GenerateRequest, error) {
	src := req.Responses
	if src == nil {
		return GenerateRequest{}, fmt.Errorf("responses request payload missing")
	}
	out := &gemini.GenerateContentRequest{}

	if src.Instructions != "" {
		out.SystemInstruction = &gemini.Content{Parts: []gemini.Part{{Text: src.Instructions}}}
	}

	if src.Input != nil {
		for _, item := range src.Input.AsItems() {
			switch item.Type {
			case openai.ItemMessage, "":
				role := "user"
				if item.Role == "assistant" {
					role = "model"
				}
				content := gemini.Content{Role: role}
				if item.Content != nil {
					if item.Content.IsText() {
						content.Parts = append(content.Parts, gemini.Part{Text: item.Content.Text})
					} else {
						for _, part := range item.Content.Parts {
							switch part.Type {
							case openai.PartInputText, openai.PartOutputText:
								content.Parts = append(content.Parts, gemini.Part{Text: part.Text})
							case openai.PartInputImage:
								content.Parts = append(content.Parts, imagePartFromURL(part.ImageURL))
							case openai.PartInputFile:
								content.Parts = append(content.Parts, filePartFromInput(part))
							}
						}
					}
				}
				if len(content.Parts) > 0 {
					out.Contents = append(out.Contents, content)
				}
			case openai.ItemFunctionCall:
				out.Contents = append(out.Contents, gemini.Content{
					Role: "model",
					Parts: []gemini.Part{{FunctionCall: &gemini.FunctionCall{
						ID:   item.CallID,
						Name: item.Name,
						Args: toolArgsJSON(item.Arguments),
					}}},
				})
			case openai.ItemFunctionCallOutput:
				out.Contents = append(out.Contents, gemini.Content{
					Role: "user",
					Parts: []gemini.Part{{FunctionResponse: &gemini.FunctionResponse{
						ID:       item.CallID,
						Name:     item.CallID,
						Response: functionResponsePayload(item.Output),
					}}},
				})
			}
		}
	}

	config := &gemini.GenerationConfig{}
	hasConfig := false
	if src.MaxOutputTokens != nil {
		config.MaxOutputTokens = src.MaxOutputTokens
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
	if src.Text != nil && src.Text.Format != nil {
		switch src.Text.Format.Type {
		case "json_object":
			config.ResponseMimeType = "application/json"
			hasConfig = true
		case "json_schema":
			config.ResponseMimeType = "application/json"
			config.ResponseJSONSchema = src.Text.Format.Schema
			hasConfig = true
		}
	}
	if src.Reasoning != nil && src.Reasoning.Effort != "" && src.Reasoning.Effort != "none" {
		budget := budgetFromEffort(src.Reasoning.Effort)
		config.ThinkingConfig = &gemini.ThinkingConfig{IncludeThoughts: true, ThinkingBudget: &budget}
		hasConfig = true
	}
	if hasConfig {
		out.GenerationConfig = config
	}

	var declarations []gemini.FunctionDeclaration
	for _, tool := range src.Tools {
		switch tool.Type {
		case "function":
			declarations = append(declarations, gemini.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			})
		case "image_generation":
			if out.GenerationConfig == nil {
				out.GenerationConfig = &gemini.GenerationConfig{}
			}
			out.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}
		}
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

// filePartFromInput converts an input_file part into inlineData (for
// base64 data: payloads) or fileData.
func filePartFromInput(part openai.InputPart) gemini.Part {
	if part.FileData != "" {
		if strings.HasPrefix(part.FileData, "data:") {
			return imagePartFromURL(part.FileData)
		}
		return gemini.Part{InlineData: &gemini.Blob{Data: part.FileData}}
	}
	return gemini.Part{FileData: &gemini.FileData{FileURI: part.FileURL}}
}
