package converter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// foldBlock is one accumulated content block.
type foldBlock struct {
	kind      string // text / thinking / tool_use
	text      string
	signature string
	toolID    string
	toolName  string
	args      string
}

// Folder coalesces a protocol's stream events into its non-stream response
// record. Used when the downstream asked for non-stream but the upstream
// path only streams, and when logging full bodies.
type Folder struct {
	proto  domain.Proto
	reader streamReader

	id      string
	model   string
	blocks  []foldBlock
	usage   Usage
	sawStop bool
	finish  FinishReason
}

// NewFolder builds the folder for one protocol's own stream dialect.
func NewFolder(proto domain.Proto) (*Folder, error) {
	f := &Folder{proto: proto}
	switch proto {
	case domain.ProtoClaude:
		f.reader = newClaudeStreamReader()
	case domain.ProtoOpenAIChat:
		f.reader = newChatStreamReader()
	case domain.ProtoOpenAIResponse:
		f.reader = newResponseStreamReader()
	case domain.ProtoGemini:
		f.reader = newGeminiStreamReader()
	default:
		return nil, fmt.Errorf("no stream folder for %s", proto)
	}
	return f, nil
}

// Push consumes one decoded payload.
func (f *Folder) Push(payload []byte) error {
	ops, err := f.reader.read(payload)
	if err != nil {
		return err
	}
	for _, op := range ops {
		f.apply(op)
	}
	return nil
}

func (f *Folder) apply(op streamOp) {
	switch op.kind {
	case opStart:
		if op.id != "" {
			f.id = op.id
		}
		if op.model != "" {
			f.model = op.model
		}
	case opTextDelta:
		f.appendText("text", op.text)
	case opThinkingDelta:
		f.appendText("thinking", op.text)
	case opSignatureDelta:
		if n := len(f.blocks); n > 0 && f.blocks[n-1].kind == "thinking" {
			f.blocks[n-1].signature += op.text
		}
	case opToolStart:
		f.blocks = append(f.blocks, foldBlock{kind: "tool_use", toolID: op.toolID, toolName: op.toolName})
	case opToolArgsDelta:
		if n := len(f.blocks); n > 0 && f.blocks[n-1].kind == "tool_use" {
			f.blocks[n-1].args += op.text
		}
	case opUsage:
		f.usage = op.usage
	case opStop:
		f.sawStop = true
		f.finish = op.finish
	}
}

func (f *Folder) appendText(kind, text string) {
	if n := len(f.blocks); n > 0 && f.blocks[n-1].kind == kind {
		f.blocks[n-1].text += text
		return
	}
	f.blocks = append(f.blocks, foldBlock{kind: kind, text: text})
}

// Usage returns the counters accumulated so far.
func (f *Folder) Usage() Usage { return f.usage }

// SawStop reports whether the stream delivered its terminal event.
func (f *Folder) SawStop() bool { return f.sawStop }

// Finish builds the non-stream response. A stream that ended without its
// terminal event gets a synthesized pause_turn/OTHER finish.
func (f *Folder) Finish(model string) (GenerateResponse, error) {
	if f.model == "" {
		f.model = model
	}
	finish := f.finish
	if !f.sawStop {
		finish = FinishPauseTurn
	}
	return buildResponse(f.proto, f.id, f.model, f.blocks, f.usage, finish)
}

// buildResponse assembles a protocol response from the neutral parts.
func buildResponse(proto domain.Proto, id, model string, blocks []foldBlock, usage Usage, finish FinishReason) (GenerateResponse, error) {
	switch proto {
	case domain.ProtoClaude:
		return GenerateResponse{Proto: proto, Claude: buildClaudeResponse(id, model, blocks, usage, finish)}, nil
	case domain.ProtoOpenAIChat:
		return GenerateResponse{Proto: proto, Chat: buildChatResponse(id, model, blocks, usage, finish)}, nil
	case domain.ProtoOpenAIResponse:
		return GenerateResponse{Proto: proto, Responses: buildResponsesResponse(id, model, blocks, usage, finish)}, nil
	case domain.ProtoGemini:
		return GenerateResponse{Proto: proto, Gemini: buildGeminiResponse(id, model, blocks, usage, finish)}, nil
	}
	return GenerateResponse{}, fmt.Errorf("no response builder for %s", proto)
}

func buildClaudeResponse(id, model string, blocks []foldBlock, usage Usage, finish FinishReason) *claude.MessageResponse {
	if id == "" {
		id = fmt.Sprintf("msg_%d", time.Now().UnixNano())
	}
	out := &claude.MessageResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		StopReason: FinishToClaude(finish),
		Usage:      usage.ToClaude(),
		Content:    []claude.ContentBlock{},
	}
	for _, block := range blocks {
		switch block.kind {
		case "text":
			out.Content = append(out.Content, claude.ContentBlock{Type: claude.BlockText, Text: block.text})
		case "thinking":
			out.Content = append(out.Content, claude.ContentBlock{
				Type:      claude.BlockThinking,
				Thinking:  block.text,
				Signature: block.signature,
			})
		case "tool_use":
			out.Content = append(out.Content, claude.ContentBlock{
				Type:  claude.BlockToolUse,
				ID:    block.toolID,
				Name:  block.toolName,
				Input: toolArgsJSON(block.args),
			})
		}
	}
	return out
}

func buildChatResponse(id, model string, blocks []foldBlock, usage Usage, finish FinishReason) *openai.ChatCompletionResponse {
	if id == "" {
		id = fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	}
	message := openai.ChatMessage{Role: "assistant"}
	var text, thinking string
	for _, block := range blocks {
		switch block.kind {
		case "text":
			text += block.text
		case "thinking":
			thinking += block.text
		case "tool_use":
			message.ToolCalls = append(message.ToolCalls, openai.ToolCall{
				ID:   block.toolID,
				Type: "function",
				Function: openai.ToolCallFunction{
					Name:      block.toolName,
					Arguments: block.args,
				},
			})
		}
	}
	if text != "" || len(message.ToolCalls) == 0 {
		content := openai.ChatText(text)
		message.Content = &content
	}
	message.ReasoningContent = thinking
	return &openai.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openai.ChatChoice{{
			Index:        0,
			Message:      &message,
			FinishReason: FinishToOpenAI(finish),
		}},
		Usage: usage.ToChat(),
	}
}

func buildResponsesResponse(id, model string, blocks []foldBlock, usage Usage, finish FinishReason) *openai.Response {
	if id == "" {
		id = fmt.Sprintf("resp_%d", time.Now().UnixNano())
	}
	out := &openai.Response{
		ID:        id,
		Object:    "response",
		CreatedAt: time.Now().Unix(),
		Status:    openai.StatusCompleted,
		Model:     model,
		Output:    []openai.Item{},
		Usage:     usage.ToResponse(),
	}
	if finish == FinishMaxTokens || finish == FinishPauseTurn {
		out.Status = openai.StatusIncomplete
	}
	for i, block := range blocks {
		switch block.kind {
		case "text":
			content := openai.ItemContent{Parts: []openai.InputPart{{Type: openai.PartOutputText, Text: block.text}}}
			out.Output = append(out.Output, openai.Item{
				Type:    openai.ItemMessage,
				ID:      fmt.Sprintf("msg_%s_%d", id, i),
				Status:  openai.StatusCompleted,
				Role:    "assistant",
				Content: &content,
			})
		case "thinking":
			out.Output = append(out.Output, openai.Item{
				Type:   openai.ItemReasoning,
				ID:     fmt.Sprintf("rs_%s_%d", id, i),
				Status: openai.StatusCompleted,
				ReasoningContent: []openai.InputPart{{
					Type: openai.PartReasoningText,
					Text: block.text,
				}},
			})
		case "tool_use":
			out.Output = append(out.Output, openai.Item{
				Type:      openai.ItemFunctionCall,
				ID:        fmt.Sprintf("fc_%s_%d", id, i),
				Status:    openai.StatusCompleted,
				CallID:    block.toolID,
				Name:      block.toolName,
				Arguments: block.args,
			})
		}
	}
	return out
}

func buildGeminiResponse(id, model string, blocks []foldBlock, usage Usage, finish FinishReason) *gemini.GenerateContentResponse {
	index := 0
	content := &gemini.Content{Role: "model"}
	for _, block := range blocks {
		switch block.kind {
		case "text":
			content.Parts = append(content.Parts, gemini.Part{Text: block.text})
		case "thinking":
			content.Parts = append(content.Parts, gemini.Part{
				Text:             block.text,
				Thought:          true,
				ThoughtSignature: block.signature,
			})
		case "tool_use":
			content.Parts = append(content.Parts, gemini.Part{FunctionCall: &gemini.FunctionCall{
				ID:   block.toolID,
				Name: block.toolName,
				Args: toolArgsJSON(block.args),
			}})
		}
	}
	return &gemini.GenerateContentResponse{
		ResponseID:   id,
		ModelVersion: model,
		Candidates: []gemini.Candidate{{
			Content:      content,
			FinishReason: FinishToGemini(finish),
			Index:        &index,
		}},
		UsageMetadata: usage.ToGemini(),
	}
}

// toolArgsJSON returns the accumulated argument fragments as an object,
// falling back to {} when the fragments never formed valid JSON.
func toolArgsJSON(args string) json.RawMessage {
	if args == "" {
		return json.RawMessage(`{}`)
	}
	if !json.Valid([]byte(args)) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(args)
}

// functionCallID derives a stable tool id when the wire omits one.
func functionCallID(call *gemini.FunctionCall, ordinal int) string {
	if call.ID != "" {
		return call.ID
	}
	return fmt.Sprintf("call_%d", ordinal)
}
