package converter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

func claudeGenerateFixture(t *testing.T) *claude.CreateMessageRequest {
	t.Helper()
	body := `{
		"model":"claude-3-7-sonnet","max_tokens":256,"temperature":0.5,
		"system":"be brief",
		"messages":[
			{"role":"user","content":"hi"},
			{"role":"assistant","content":[
				{"type":"thinking","thinking":"hmm","signature":"sig"},
				{"type":"text","text":"checking"},
				{"type":"tool_use","id":"toolu_1","name":"lookup","input":{"q":"x"}}
			]},
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"found"}]}
		],
		"tools":[{"name":"lookup","description":"d","input_schema":{"type":"object"}}],
		"tool_choice":{"type":"auto"},
		"stop_sequences":["END"]
	}`
	var req claude.CreateMessageRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return &req
}

func TestClaudeToGeminiRequestMapping(t *testing.T) {
	registry := NewRegistry()
	carrier := GenerateRequest{
		Proto:  domain.ProtoClaude,
		Model:  "gemini-2.0-flash",
		Claude: claudeGenerateFixture(t),
	}
	out, err := registry.TransformGenerateRequest(carrier, domain.ProtoGemini, false)
	require.NoError(t, err)
	require.NotNil(t, out.Gemini)
	body := out.Gemini

	require.NotNil(t, body.SystemInstruction)
	assert.Equal(t, "be brief", body.SystemInstruction.Parts[0].Text)

	require.NotNil(t, body.GenerationConfig)
	require.NotNil(t, body.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, 256, *body.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, []string{"END"}, body.GenerationConfig.StopSequences)

	require.Len(t, body.Tools, 1)
	require.Len(t, body.Tools[0].FunctionDeclarations, 1)
	assert.Equal(t, "lookup", body.Tools[0].FunctionDeclarations[0].Name)

	require.Len(t, body.Contents, 3)
	assert.Equal(t, "user", body.Contents[0].Role)
	assert.Equal(t, "model", body.Contents[1].Role)

	assistant := body.Contents[1]
	require.Len(t, assistant.Parts, 3)
	assert.True(t, assistant.Parts[0].Thought)
	assert.Equal(t, "hmm", assistant.Parts[0].Text)
	assert.Equal(t, "checking", assistant.Parts[1].Text)
	require.NotNil(t, assistant.Parts[2].FunctionCall)
	assert.Equal(t, "lookup", assistant.Parts[2].FunctionCall.Name)

	toolTurn := body.Contents[2]
	require.Len(t, toolTurn.Parts, 1)
	require.NotNil(t, toolTurn.Parts[0].FunctionResponse)
	assert.Equal(t, "lookup", toolTurn.Parts[0].FunctionResponse.Name)
}

func TestClaudeToChatRequestMapping(t *testing.T) {
	registry := NewRegistry()
	carrier := GenerateRequest{
		Proto:  domain.ProtoClaude,
		Model:  "gpt-4o",
		Claude: claudeGenerateFixture(t),
	}
	out, err := registry.TransformGenerateRequest(carrier, domain.ProtoOpenAIChat, false)
	require.NoError(t, err)
	require.NotNil(t, out.Chat)
	body := out.Chat

	require.GreaterOrEqual(t, len(body.Messages), 4)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "be brief", body.Messages[0].Content.Flatten())

	var toolMessage, assistant *openai.ChatMessage
	for i := range body.Messages {
		switch body.Messages[i].Role {
		case "tool":
			toolMessage = &body.Messages[i]
		case "assistant":
			assistant = &body.Messages[i]
		}
	}
	require.NotNil(t, assistant)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "toolu_1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "hmm", assistant.ReasoningContent)

	require.NotNil(t, toolMessage)
	assert.Equal(t, "toolu_1", toolMessage.ToolCallID)
	assert.Equal(t, "found", toolMessage.Content.Flatten())

	require.NotNil(t, body.MaxCompletionTokens)
	assert.Equal(t, 256, *body.MaxCompletionTokens)
}

// Stream destinations get the chat streaming conventions: stream=true
// forces stream_options.include_usage; stream=false clears them.
func TestChatStreamFlagNormalization(t *testing.T) {
	registry := NewRegistry()
	includeUsage := false
	carrier := GenerateRequest{
		Proto: domain.ProtoOpenAIChat,
		Model: "gpt-4o",
		Chat: &openai.ChatCompletionRequest{
			Model:         "gpt-4o",
			StreamOptions: &openai.StreamOptions{IncludeUsage: &includeUsage},
		},
	}

	streaming, err := registry.TransformGenerateRequest(carrier, domain.ProtoOpenAIChat, true)
	require.NoError(t, err)
	require.NotNil(t, streaming.Chat.Stream)
	assert.True(t, *streaming.Chat.Stream)
	require.NotNil(t, streaming.Chat.StreamOptions)
	// An explicit include_usage=false is respected.
	assert.False(t, *streaming.Chat.StreamOptions.IncludeUsage)

	fresh := GenerateRequest{
		Proto: domain.ProtoOpenAIChat,
		Model: "gpt-4o",
		Chat:  &openai.ChatCompletionRequest{Model: "gpt-4o"},
	}
	streamed, err := registry.TransformGenerateRequest(fresh, domain.ProtoOpenAIChat, true)
	require.NoError(t, err)
	require.NotNil(t, streamed.Chat.StreamOptions)
	require.NotNil(t, streamed.Chat.StreamOptions.IncludeUsage)
	assert.True(t, *streamed.Chat.StreamOptions.IncludeUsage)

	blocking, err := registry.TransformGenerateRequest(streamed, domain.ProtoOpenAIChat, false)
	require.NoError(t, err)
	assert.Nil(t, blocking.Chat.Stream)
	assert.Nil(t, blocking.Chat.StreamOptions)
}

// Gemini requests keep path and body across the stream/non-stream flip;
// only the carrier's stream intent differs.
func TestGeminiStreamFlipIsInvolutive(t *testing.T) {
	registry := NewRegistry()
	body := &gemini.GenerateContentRequest{
		Contents: []gemini.Content{{Role: "user", Parts: []gemini.Part{{Text: "hi"}}}},
	}
	carrier := GenerateRequest{Proto: domain.ProtoGemini, Model: "gemini-2.0-flash", Gemini: body}

	streamed, err := registry.TransformGenerateRequest(carrier, domain.ProtoGemini, true)
	require.NoError(t, err)
	back, err := registry.TransformGenerateRequest(streamed, domain.ProtoGemini, false)
	require.NoError(t, err)

	original, err := json.Marshal(carrier.Gemini)
	require.NoError(t, err)
	roundTripped, err := json.Marshal(back.Gemini)
	require.NoError(t, err)
	assert.JSONEq(t, string(original), string(roundTripped))
	assert.Equal(t, carrier.Model, back.Model)
}

func TestGeminiToResponsesRequestMapping(t *testing.T) {
	registry := NewRegistry()
	budget := 4096
	body := &gemini.GenerateContentRequest{
		SystemInstruction: &gemini.Content{Parts: []gemini.Part{{Text: "sys"}}},
		Contents: []gemini.Content{
			{Role: "user", Parts: []gemini.Part{
				{Text: "describe"},
				{InlineData: &gemini.Blob{MimeType: "application/pdf", Data: "QUJD"}},
				{FileData: &gemini.FileData{MimeType: "image/png", FileURI: "https://host/img.png"}},
				{FileData: &gemini.FileData{MimeType: "text/plain", FileURI: "https://host/doc.txt"}},
			}},
		},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseMimeType:   "application/json",
			ThinkingConfig:     &gemini.ThinkingConfig{IncludeThoughts: true, ThinkingBudget: &budget},
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}
	carrier := GenerateRequest{Proto: domain.ProtoGemini, Model: "gemini-2.0-flash", Gemini: body}
	out, err := registry.TransformGenerateRequest(carrier, domain.ProtoOpenAIResponse, false)
	require.NoError(t, err)
	resp := out.Responses
	require.NotNil(t, resp)

	assert.Equal(t, "sys", resp.Instructions)

	require.NotNil(t, resp.Input)
	items := resp.Input.AsItems()
	require.Len(t, items, 1)
	parts := items[0].Content.Parts
	require.Len(t, parts, 4)
	assert.Equal(t, openai.PartInputText, parts[0].Type)
	assert.Equal(t, openai.PartInputFile, parts[1].Type)
	assert.Contains(t, parts[1].FileData, "base64,QUJD")
	assert.Equal(t, openai.PartInputImage, parts[2].Type)
	assert.Equal(t, "https://host/img.png", parts[2].ImageURL)
	assert.Equal(t, openai.PartInputFile, parts[3].Type)
	assert.Equal(t, "https://host/doc.txt", parts[3].FileURL)

	require.NotNil(t, resp.Text)
	require.NotNil(t, resp.Text.Format)
	assert.Equal(t, "json_object", resp.Text.Format.Type)

	require.NotNil(t, resp.Reasoning)
	assert.Equal(t, "medium", resp.Reasoning.Effort)

	hasImageTool := false
	for _, tool := range resp.Tools {
		if tool.Type == "image_generation" {
			hasImageTool = true
		}
	}
	assert.True(t, hasImageTool)
}

// Identity response pairs return the carrier untouched.
func TestIdentityResponsePair(t *testing.T) {
	registry := NewRegistry()
	resp := GenerateResponse{
		Proto:  domain.ProtoClaude,
		Claude: &claude.MessageResponse{ID: "msg_1", Type: "message", Role: "assistant"},
	}
	out, err := registry.TransformGenerateResponse(resp, domain.ProtoClaude)
	require.NoError(t, err)
	assert.Same(t, resp.Claude, out.Claude)
}

func TestChatToClaudeResponse(t *testing.T) {
	registry := NewRegistry()
	content := openai.ChatText("hello")
	resp := GenerateResponse{
		Proto: domain.ProtoOpenAIChat,
		Chat: &openai.ChatCompletionResponse{
			ID:     "chatcmpl-1",
			Object: "chat.completion",
			Model:  "gpt-4o",
			Choices: []openai.ChatChoice{{
				Index:        0,
				Message:      &openai.ChatMessage{Role: "assistant", Content: &content},
				FinishReason: openai.FinishStop,
			}},
			Usage: &openai.ChatUsage{PromptTokens: 9, CompletionTokens: 4, TotalTokens: 13},
		},
	}
	out, err := registry.TransformGenerateResponse(resp, domain.ProtoClaude)
	require.NoError(t, err)
	require.NotNil(t, out.Claude)
	assert.Equal(t, claude.StopEndTurn, out.Claude.StopReason)
	assert.Equal(t, 9, out.Claude.Usage.InputTokens)
	assert.Equal(t, 4, out.Claude.Usage.OutputTokens)
	require.Len(t, out.Claude.Content, 1)
	assert.Equal(t, "hello", out.Claude.Content[0].Text)
}
