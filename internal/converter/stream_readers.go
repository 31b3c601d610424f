package converter

import (
	"encoding/json"

	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// claudeStreamReader decodes Claude SSE payloads into neutral ops.
type claudeStreamReader struct {
	blockKinds map[int]string
}

func newClaudeStreamReader() *claudeStreamReader {
	return &claudeStreamReader{blockKinds: map[int]string{}}
}

func (r *claudeStreamReader) read(payload []byte) ([]streamOp, error) {
	var event claude.StreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if !event.IsKnown() {
		return nil, nil
	}
	switch event.Type {
	case claude.EventMessageStart:
		op := streamOp{kind: opStart}
		if event.Message != nil {
			op.id = event.Message.ID
			op.model = event.Message.Model
			usage := UsageFromClaude(&event.Message.Usage)
			if !usage.IsZero() {
				return []streamOp{op, {kind: opUsage, usage: usage}}, nil
			}
		}
		return []streamOp{op}, nil
	case claude.EventContentBlockStart:
		if event.ContentBlock == nil || event.Index == nil {
			return nil, nil
		}
		r.blockKinds[*event.Index] = event.ContentBlock.Type
		if event.ContentBlock.Type == claude.BlockToolUse {
			return []streamOp{{
				kind:     opToolStart,
				toolID:   event.ContentBlock.ID,
				toolName: event.ContentBlock.Name,
			}}, nil
		}
		return nil, nil
	case claude.EventContentBlockDelta:
		if event.Delta == nil {
			return nil, nil
		}
		switch event.Delta.Type {
		case claude.DeltaText:
			return []streamOp{{kind: opTextDelta, text: event.Delta.Text}}, nil
		case claude.DeltaInputJSON:
			return []streamOp{{kind: opToolArgsDelta, text: event.Delta.PartialJSON}}, nil
		case claude.DeltaThinking:
			return []streamOp{{kind: opThinkingDelta, text: event.Delta.Thinking}}, nil
		case claude.DeltaSignature:
			return []streamOp{{kind: opSignatureDelta, text: event.Delta.Signature}}, nil
		}
		return nil, nil
	case claude.EventMessageDelta:
		var ops []streamOp
		if event.Usage != nil {
			ops = append(ops, streamOp{kind: opUsage, usage: UsageFromClaude(event.Usage)})
		}
		if event.Delta != nil && event.Delta.StopReason != "" {
			ops = append(ops, streamOp{kind: opStop, finish: FinishFromClaude(event.Delta.StopReason)})
		}
		return ops, nil
	case claude.EventMessageStop, claude.EventPing, claude.EventContentBlockStop:
		return nil, nil
	}
	return nil, nil
}

// chatStreamReader decodes chat-completions chunks into neutral ops.
type chatStreamReader struct {
	started   bool
	toolIndex int
}

func newChatStreamReader() *chatStreamReader {
	return &chatStreamReader{toolIndex: -1}
}

func (r *chatStreamReader) read(payload []byte) ([]streamOp, error) {
	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, err
	}
	var ops []streamOp
	if !r.started {
		r.started = true
		ops = append(ops, streamOp{kind: opStart, id: chunk.ID, model: chunk.Model})
	}
	for _, choice := range chunk.Choices {
		if choice.Index != 0 {
			continue
		}
		delta := choice.Delta
		if delta.ReasoningContent != "" {
			ops = append(ops, streamOp{kind: opThinkingDelta, text: delta.ReasoningContent})
		}
		if delta.Content != "" {
			ops = append(ops, streamOp{kind: opTextDelta, text: delta.Content})
		}
		for _, call := range delta.ToolCalls {
			index := 0
			if call.Index != nil {
				index = *call.Index
			}
			if index != r.toolIndex || call.ID != "" {
				r.toolIndex = index
				ops = append(ops, streamOp{kind: opToolStart, toolID: call.ID, toolName: call.Function.Name})
			}
			if call.Function.Arguments != "" {
				ops = append(ops, streamOp{kind: opToolArgsDelta, text: call.Function.Arguments})
			}
		}
		if choice.FinishReason != "" {
			ops = append(ops, streamOp{kind: opStop, finish: FinishFromOpenAI(choice.FinishReason)})
		}
	}
	if chunk.Usage != nil {
		ops = append(ops, streamOp{kind: opUsage, usage: UsageFromChat(chunk.Usage)})
	}
	return ops, nil
}

// responseStreamReader decodes Responses SSE payloads into neutral ops.
type responseStreamReader struct {
	sawToolCall bool
}

func newResponseStreamReader() *responseStreamReader {
	return &responseStreamReader{}
}

func (r *responseStreamReader) read(payload []byte) ([]streamOp, error) {
	var event openai.ResponseStreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if !event.IsKnown() {
		return nil, nil
	}
	switch event.Type {
	case openai.EventResponseCreated:
		op := streamOp{kind: opStart}
		if event.Response != nil {
			op.id = event.Response.ID
			op.model = event.Response.Model
		}
		return []streamOp{op}, nil
	case openai.EventOutputItemAdded:
		if event.Item != nil && event.Item.Type == openai.ItemFunctionCall {
			r.sawToolCall = true
			id := event.Item.CallID
			if id == "" {
				id = event.Item.ID
			}
			return []streamOp{{kind: opToolStart, toolID: id, toolName: event.Item.Name}}, nil
		}
		return nil, nil
	case openai.EventOutputTextDelta:
		return []streamOp{{kind: opTextDelta, text: event.Delta}}, nil
	case openai.EventReasoningTextDelta, openai.EventReasoningSummaryDelta:
		return []streamOp{{kind: opThinkingDelta, text: event.Delta}}, nil
	case openai.EventFunctionCallArgsDelta:
		return []streamOp{{kind: opToolArgsDelta, text: event.Delta}}, nil
	case openai.EventResponseCompleted, openai.EventResponseIncomplete, openai.EventResponseFailed:
		var ops []streamOp
		finish := FinishEndTurn
		if event.Response != nil {
			if event.Response.Usage != nil {
				ops = append(ops, streamOp{kind: opUsage, usage: UsageFromResponse(event.Response.Usage)})
			}
			switch event.Response.Status {
			case openai.StatusIncomplete:
				finish = FinishMaxTokens
			case openai.StatusFailed:
				finish = FinishOther
			}
		}
		if r.sawToolCall && finish == FinishEndTurn {
			finish = FinishToolUse
		}
		ops = append(ops, streamOp{kind: opStop, finish: finish})
		return ops, nil
	}
	return nil, nil
}

// geminiStreamReader decodes Gemini stream chunks into neutral ops.
type geminiStreamReader struct {
	started   bool
	toolCount int
}

func newGeminiStreamReader() *geminiStreamReader {
	return &geminiStreamReader{}
}

func (r *geminiStreamReader) read(payload []byte) ([]streamOp, error) {
	var chunk gemini.GenerateContentResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, err
	}
	var ops []streamOp
	if !r.started {
		r.started = true
		ops = append(ops, streamOp{kind: opStart, id: chunk.ResponseID, model: chunk.ModelVersion})
	}
	sawToolCall := false
	var finish FinishReason
	for _, candidate := range chunk.Candidates {
		if candidate.Index != nil && *candidate.Index != 0 {
			continue
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					sawToolCall = true
					r.toolCount++
					ops = append(ops, streamOp{
						kind:     opToolStart,
						toolID:   functionCallID(part.FunctionCall, r.toolCount),
						toolName: part.FunctionCall.Name,
					})
					if len(part.FunctionCall.Args) > 0 {
						ops = append(ops, streamOp{kind: opToolArgsDelta, text: string(part.FunctionCall.Args)})
					}
				case part.Thought && part.Text != "":
					ops = append(ops, streamOp{kind: opThinkingDelta, text: part.Text})
				case part.Text != "":
					ops = append(ops, streamOp{kind: opTextDelta, text: part.Text})
				}
				if part.ThoughtSignature != "" {
					ops = append(ops, streamOp{kind: opSignatureDelta, text: part.ThoughtSignature})
				}
			}
		}
		if candidate.FinishReason != "" {
			finish = FinishFromGemini(candidate.FinishReason)
		}
	}
	if chunk.UsageMetadata != nil {
		ops = append(ops, streamOp{kind: opUsage, usage: UsageFromGemini(chunk.UsageMetadata)})
	}
	if finish != "" {
		if sawToolCall && finish == FinishEndTurn {
			finish = FinishToolUse
		}
		ops = append(ops, streamOp{kind: opStop, finish: finish})
	}
	return ops, nil
}
