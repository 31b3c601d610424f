package converter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

const (
	blockNone     = ""
	blockText     = "text"
	blockThinking = "thinking"
	blockTool     = "tool_use"
)

func marshalFrame(v any) ([]byte, error) {
	return json.Marshal(v)
}

// claudeStreamWriter emits Claude stream events: one message_start, blocks
// with monotonic indices, message_delta with final usage, one message_stop.
type claudeStreamWriter struct {
	model      string
	id         string
	started    bool
	finished   bool
	blockKind  string
	blockIndex int
	usage      Usage
	finishReason FinishReason
}

func newClaudeStreamWriter() *claudeStreamWriter {
	return &claudeStreamWriter{blockIndex: -1}
}

func (w *claudeStreamWriter) SetModel(model string) { w.model = model }

func (w *claudeStreamWriter) ensureStart(frames [][]byte) ([][]byte, error) {
	if w.started {
		return frames, nil
	}
	w.started = true
	if w.id == "" {
		w.id = fmt.Sprintf("msg_%d", time.Now().UnixNano())
	}
	event := claude.NewMessageStart(w.id, w.model, claude.Usage{})
	frame, err := marshalFrame(event)
	if err != nil {
		return nil, err
	}
	return append(frames, frame), nil
}

func (w *claudeStreamWriter) closeBlock(frames [][]byte) ([][]byte, error) {
	if w.blockKind == blockNone {
		return frames, nil
	}
	index := w.blockIndex
	frame, err := marshalFrame(claude.StreamEvent{Type: claude.EventContentBlockStop, Index: &index})
	if err != nil {
		return nil, err
	}
	w.blockKind = blockNone
	return append(frames, frame), nil
}

func (w *claudeStreamWriter) openBlock(frames [][]byte, kind string, block claude.ContentBlock) ([][]byte, error) {
	frames, err := w.closeBlock(frames)
	if err != nil {
		return nil, err
	}
	w.blockIndex++
	w.blockKind = kind
	index := w.blockIndex
	frame, err := marshalFrame(claude.StreamEvent{
		Type:         claude.EventContentBlockStart,
		Index:        &index,
		ContentBlock: &block,
	})
	if err != nil {
		return nil, err
	}
	return append(frames, frame), nil
}

func (w *claudeStreamWriter) delta(frames [][]byte, delta claude.StreamDelta) ([][]byte, error) {
	index := w.blockIndex
	frame, err := marshalFrame(claude.StreamEvent{
		Type:  claude.EventContentBlockDelta,
		Index: &index,
		Delta: &delta,
	})
	if err != nil {
		return nil, err
	}
	return append(frames, frame), nil
}

func (w *claudeStreamWriter) write(op streamOp) ([][]byte, error) {
	var frames [][]byte
	var err error
	if op.kind == opStart {
		if op.id != "" {
			w.id = op.id
		}
		if op.model != "" {
			w.model = op.model
		}
	}
	frames, err = w.ensureStart(frames)
	if err != nil {
		return nil, err
	}
	switch op.kind {
	case opTextDelta:
		if w.blockKind != blockText {
			frames, err = w.openBlock(frames, blockText, claude.ContentBlock{Type: claude.BlockText, Text: ""})
			if err != nil {
				return nil, err
			}
		}
		return w.delta(frames, claude.StreamDelta{Type: claude.DeltaText, Text: op.text})
	case opThinkingDelta:
		if w.blockKind != blockThinking {
			frames, err = w.openBlock(frames, blockThinking, claude.ContentBlock{Type: claude.BlockThinking})
			if err != nil {
				return nil, err
			}
		}
		return w.delta(frames, claude.StreamDelta{Type: claude.DeltaThinking, Thinking: op.text})
	case opSignatureDelta:
		if w.blockKind != blockThinking {
			return frames, nil
		}
		return w.delta(frames, claude.StreamDelta{Type: claude.DeltaSignature, Signature: op.text})
	case opToolStart:
		id := op.toolID
		if id == "" {
			id = fmt.Sprintf("toolu_%d", w.blockIndex+2)
		}
		return w.openBlock(frames, blockTool, claude.ContentBlock{
			Type:  claude.BlockToolUse,
			ID:    id,
			Name:  op.toolName,
			Input: json.RawMessage(`{}`),
		})
	case opToolArgsDelta:
		if w.blockKind != blockTool {
			return frames, nil
		}
		return w.delta(frames, claude.StreamDelta{Type: claude.DeltaInputJSON, PartialJSON: op.text})
	case opUsage:
		w.usage = op.usage
	case opStop:
		w.finishReason = op.finish
	}
	return frames, nil
}

func (w *claudeStreamWriter) finish() ([][]byte, error) {
	if w.finished {
		return nil, nil
	}
	w.finished = true
	var frames [][]byte
	var err error
	frames, err = w.ensureStart(frames)
	if err != nil {
		return nil, err
	}
	frames, err = w.closeBlock(frames)
	if err != nil {
		return nil, err
	}
	finish := w.finishReason
	if finish == "" {
		finish = FinishPauseTurn
	}
	usage := w.usage.ToClaude()
	frame, err := marshalFrame(claude.StreamEvent{
		Type:  claude.EventMessageDelta,
		Delta: &claude.StreamDelta{StopReason: FinishToClaude(finish)},
		Usage: &usage,
	})
	if err != nil {
		return nil, err
	}
	frames = append(frames, frame)
	stop, err := marshalFrame(claude.StreamEvent{Type: claude.EventMessageStop})
	if err != nil {
		return nil, err
	}
	return append(frames, stop), nil
}

// chatStreamWriter emits chat-completions chunks; the finish-reason chunk
// and the usage chunk come last. The [DONE] frame is the dispatcher's job.
type chatStreamWriter struct {
	model     string
	id        string
	created   int64
	started   bool
	finished  bool
	toolIndex int
	inTool    bool
	usage     Usage
	hasUsage  bool
	finishReason FinishReason
}

func newChatStreamWriter() *chatStreamWriter {
	return &chatStreamWriter{toolIndex: -1, created: time.Now().Unix()}
}

func (w *chatStreamWriter) SetModel(model string) { w.model = model }

func (w *chatStreamWriter) chunk(delta openai.ChatDelta, finishReason string) openai.ChatCompletionChunk {
	return openai.ChatCompletionChunk{
		ID:      w.id,
		Object:  "chat.completion.chunk",
		Created: w.created,
		Model:   w.model,
		Choices: []openai.ChatChunkChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
	}
}

func (w *chatStreamWriter) write(op streamOp) ([][]byte, error) {
	if op.kind == opStart {
		if op.id != "" {
			w.id = op.id
		}
		if op.model != "" {
			w.model = op.model
		}
		return nil, nil
	}
	if w.id == "" {
		w.id = fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	}
	role := ""
	if !w.started {
		w.started = true
		role = "assistant"
	}
	switch op.kind {
	case opTextDelta:
		frame, err := marshalFrame(w.chunk(openai.ChatDelta{Role: role, Content: op.text}, ""))
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil
	case opThinkingDelta:
		frame, err := marshalFrame(w.chunk(openai.ChatDelta{Role: role, ReasoningContent: op.text}, ""))
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil
	case opToolStart:
		w.toolIndex++
		w.inTool = true
		index := w.toolIndex
		call := openai.ToolCall{
			Index:    &index,
			ID:       op.toolID,
			Type:     "function",
			Function: openai.ToolCallFunction{Name: op.toolName},
		}
		frame, err := marshalFrame(w.chunk(openai.ChatDelta{Role: role, ToolCalls: []openai.ToolCall{call}}, ""))
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil
	case opToolArgsDelta:
		if !w.inTool {
			return nil, nil
		}
		index := w.toolIndex
		call := openai.ToolCall{
			Index:    &index,
			Function: openai.ToolCallFunction{Arguments: op.text},
		}
		frame, err := marshalFrame(w.chunk(openai.ChatDelta{ToolCalls: []openai.ToolCall{call}}, ""))
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil
	case opUsage:
		w.usage = op.usage
		w.hasUsage = true
	case opStop:
		w.finishReason = op.finish
	}
	return nil, nil
}

func (w *chatStreamWriter) finish() ([][]byte, error) {
	if w.finished {
		return nil, nil
	}
	w.finished = true
	if w.id == "" {
		w.id = fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	}
	finish := w.finishReason
	if finish == "" {
		finish = FinishOther
	}
	var frames [][]byte
	frame, err := marshalFrame(w.chunk(openai.ChatDelta{}, FinishToOpenAI(finish)))
	if err != nil {
		return nil, err
	}
	frames = append(frames, frame)
	if w.hasUsage {
		usageChunk := openai.ChatCompletionChunk{
			ID:      w.id,
			Object:  "chat.completion.chunk",
			Created: w.created,
			Model:   w.model,
			Choices: []openai.ChatChunkChoice{},
			Usage:   w.usage.ToChat(),
		}
		frame, err := marshalFrame(usageChunk)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// responseStreamWriter emits Responses events: response.created once, item
// lifecycle frames per block, response.completed exactly once.
type responseStreamWriter struct {
	model     string
	id        string
	started   bool
	finished  bool
	seq       int
	itemIndex int
	itemKind  string
	itemID    string
	text      string
	args      string
	output    []openai.Item
	usage     Usage
	finishReason FinishReason
	toolID    string
	toolName  string
}

func newResponseStreamWriter() *responseStreamWriter {
	return &responseStreamWriter{itemIndex: -1}
}

func (w *responseStreamWriter) SetModel(model string) { w.model = model }

func (w *responseStreamWriter) event(e openai.ResponseStreamEvent) ([]byte, error) {
	w.seq++
	e.SequenceNumber = w.seq
	return marshalFrame(e)
}

func (w *responseStreamWriter) snapshot(status string) *openai.Response {
	resp := &openai.Response{
		ID:        w.id,
		Object:    "response",
		CreatedAt: time.Now().Unix(),
		Status:    status,
		Model:     w.model,
		Output:    w.output,
	}
	if resp.Output == nil {
		resp.Output = []openai.Item{}
	}
	return resp
}

func (w *responseStreamWriter) ensureStart(frames [][]byte) ([][]byte, error) {
	if w.started {
		return frames, nil
	}
	w.started = true
	if w.id == "" {
		w.id = fmt.Sprintf("resp_%d", time.Now().UnixNano())
	}
	frame, err := w.event(openai.ResponseStreamEvent{
		Type:     openai.EventResponseCreated,
		Response: w.snapshot(openai.StatusInProgress),
	})
	if err != nil {
		return nil, err
	}
	return append(frames, frame), nil
}

func (w *responseStreamWriter) closeItem(frames [][]byte) ([][]byte, error) {
	switch w.itemKind {
	case "":
		return frames, nil
	case openai.ItemMessage:
		index := w.itemIndex
		doneText, err := w.event(openai.ResponseStreamEvent{
			Type:         openai.EventOutputTextDone,
			ItemID:       w.itemID,
			OutputIndex:  &index,
			ContentIndex: intPtr(0),
			Text:         w.text,
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, doneText)
		item := openai.Item{
			Type:   openai.ItemMessage,
			ID:     w.itemID,
			Status: openai.StatusCompleted,
			Role:   "assistant",
		}
		partList := []openai.InputPart{{Type: openai.PartOutputText, Text: w.text}}
		itemContent := openai.ItemContent{Parts: partList}
		item.Content = &itemContent
		w.output = append(w.output, item)
		frame, err := w.event(openai.ResponseStreamEvent{
			Type:        openai.EventOutputItemDone,
			OutputIndex: &index,
			Item:        &item,
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	case openai.ItemFunctionCall:
		index := w.itemIndex
		done, err := w.event(openai.ResponseStreamEvent{
			Type:        openai.EventFunctionCallArgsDone,
			ItemID:      w.itemID,
			OutputIndex: &index,
			Arguments:   w.args,
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, done)
		item := openai.Item{
			Type:      openai.ItemFunctionCall,
			ID:        w.itemID,
			Status:    openai.StatusCompleted,
			Name:      w.toolName,
			CallID:    w.toolID,
			Arguments: w.args,
		}
		w.output = append(w.output, item)
		frame, err := w.event(openai.ResponseStreamEvent{
			Type:        openai.EventOutputItemDone,
			OutputIndex: &index,
			Item:        &item,
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	case openai.ItemReasoning:
		index := w.itemIndex
		item := openai.Item{
			Type:   openai.ItemReasoning,
			ID:     w.itemID,
			Status: openai.StatusCompleted,
			ReasoningContent: []openai.InputPart{{
				Type: openai.PartReasoningText,
				Text: w.text,
			}},
		}
		w.output = append(w.output, item)
		frame, err := w.event(openai.ResponseStreamEvent{
			Type:        openai.EventOutputItemDone,
			OutputIndex: &index,
			Item:        &item,
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	w.itemKind = ""
	w.text = ""
	w.args = ""
	return frames, nil
}

func (w *responseStreamWriter) openItem(frames [][]byte, kind string, item openai.Item) ([][]byte, error) {
	frames, err := w.closeItem(frames)
	if err != nil {
		return nil, err
	}
	w.itemIndex++
	w.itemKind = kind
	w.itemID = item.ID
	index := w.itemIndex
	item.Status = openai.StatusInProgress
	frame, err := w.event(openai.ResponseStreamEvent{
		Type:        openai.EventOutputItemAdded,
		OutputIndex: &index,
		Item:        &item,
	})
	if err != nil {
		return nil, err
	}
	return append(frames, frame), nil
}

func (w *responseStreamWriter) write(op streamOp) ([][]byte, error) {
	var frames [][]byte
	var err error
	if op.kind == opStart {
		if op.id != "" {
			w.id = op.id
		}
		if op.model != "" {
			w.model = op.model
		}
	}
	frames, err = w.ensureStart(frames)
	if err != nil {
		return nil, err
	}
	switch op.kind {
	case opTextDelta:
		if w.itemKind != openai.ItemMessage {
			frames, err = w.openItem(frames, openai.ItemMessage, openai.Item{
				Type: openai.ItemMessage,
				ID:   fmt.Sprintf("msg_%s_%d", w.id, w.itemIndex+1),
				Role: "assistant",
			})
			if err != nil {
				return nil, err
			}
		}
		w.text += op.text
		index := w.itemIndex
		frame, err := w.event(openai.ResponseStreamEvent{
			Type:         openai.EventOutputTextDelta,
			ItemID:       w.itemID,
			OutputIndex:  &index,
			ContentIndex: intPtr(0),
			Delta:        op.text,
		})
		if err != nil {
			return nil, err
		}
		return append(frames, frame), nil
	case opThinkingDelta:
		if w.itemKind != openai.ItemReasoning {
			frames, err = w.openItem(frames, openai.ItemReasoning, openai.Item{
				Type: openai.ItemReasoning,
				ID:   fmt.Sprintf("rs_%s_%d", w.id, w.itemIndex+1),
			})
			if err != nil {
				return nil, err
			}
		}
		w.text += op.text
		index := w.itemIndex
		frame, err := w.event(openai.ResponseStreamEvent{
			Type:         openai.EventReasoningTextDelta,
			ItemID:       w.itemID,
			OutputIndex:  &index,
			ContentIndex: intPtr(0),
			Delta:        op.text,
		})
		if err != nil {
			return nil, err
		}
		return append(frames, frame), nil
	case opToolStart:
		w.toolID = op.toolID
		w.toolName = op.toolName
		return w.openItem(frames, openai.ItemFunctionCall, openai.Item{
			Type:   openai.ItemFunctionCall,
			ID:     fmt.Sprintf("fc_%s_%d", w.id, w.itemIndex+1),
			CallID: op.toolID,
			Name:   op.toolName,
		})
	case opToolArgsDelta:
		if w.itemKind != openai.ItemFunctionCall {
			return frames, nil
		}
		w.args += op.text
		index := w.itemIndex
		frame, err := w.event(openai.ResponseStreamEvent{
			Type:        openai.EventFunctionCallArgsDelta,
			ItemID:      w.itemID,
			OutputIndex: &index,
			Delta:       op.text,
		})
		if err != nil {
			return nil, err
		}
		return append(frames, frame), nil
	case opUsage:
		w.usage = op.usage
	case opStop:
		w.finishReason = op.finish
	}
	return frames, nil
}

func (w *responseStreamWriter) finish() ([][]byte, error) {
	if w.finished {
		return nil, nil
	}
	w.finished = true
	var frames [][]byte
	var err error
	frames, err = w.ensureStart(frames)
	if err != nil {
		return nil, err
	}
	frames, err = w.closeItem(frames)
	if err != nil {
		return nil, err
	}
	resp := w.snapshot(openai.StatusCompleted)
	if !w.usage.IsZero() {
		resp.Usage = w.usage.ToResponse()
	}
	eventType := openai.EventResponseCompleted
	if w.finishReason == FinishMaxTokens {
		resp.Status = openai.StatusIncomplete
		eventType = openai.EventResponseIncomplete
	}
	frame, err := w.event(openai.ResponseStreamEvent{Type: eventType, Response: resp})
	if err != nil {
		return nil, err
	}
	return append(frames, frame), nil
}

// geminiStreamWriter emits Gemini stream chunks. Function-call arguments
// are buffered until the call closes since Gemini sends them whole.
type geminiStreamWriter struct {
	model    string
	id       string
	started  bool
	finished bool
	inTool   bool
	toolName string
	toolID   string
	args     string
	usage    Usage
	hasUsage bool
	finishReason FinishReason
	sawTool  bool
}

func newGeminiStreamWriter() *geminiStreamWriter {
	return &geminiStreamWriter{}
}

func (w *geminiStreamWriter) SetModel(model string) { w.model = model }

func (w *geminiStreamWriter) chunk(parts []gemini.Part, finishReason string) gemini.GenerateContentResponse {
	index := 0
	out := gemini.GenerateContentResponse{
		ResponseID:   w.id,
		ModelVersion: w.model,
		Candidates: []gemini.Candidate{{
			Content:      &gemini.Content{Role: "model", Parts: parts},
			FinishReason: finishReason,
			Index:        &index,
		}},
	}
	return out
}

// flushTool emits the buffered function call as one complete part.
func (w *geminiStreamWriter) flushTool(frames [][]byte) ([][]byte, error) {
	if !w.inTool {
		return frames, nil
	}
	w.inTool = false
	args := w.args
	if args == "" {
		args = "{}"
	}
	part := gemini.Part{FunctionCall: &gemini.FunctionCall{
		ID:   w.toolID,
		Name: w.toolName,
		Args: json.RawMessage(args),
	}}
	frame, err := marshalFrame(w.chunk([]gemini.Part{part}, ""))
	if err != nil {
		return nil, err
	}
	w.args = ""
	return append(frames, frame), nil
}

func (w *geminiStreamWriter) write(op streamOp) ([][]byte, error) {
	var frames [][]byte
	var err error
	switch op.kind {
	case opStart:
		if op.id != "" {
			w.id = op.id
		}
		if op.model != "" && w.model == "" {
			w.model = op.model
		}
	case opTextDelta:
		frames, err = w.flushTool(frames)
		if err != nil {
			return nil, err
		}
		frame, err := marshalFrame(w.chunk([]gemini.Part{{Text: op.text}}, ""))
		if err != nil {
			return nil, err
		}
		return append(frames, frame), nil
	case opThinkingDelta:
		frames, err = w.flushTool(frames)
		if err != nil {
			return nil, err
		}
		frame, err := marshalFrame(w.chunk([]gemini.Part{{Text: op.text, Thought: true}}, ""))
		if err != nil {
			return nil, err
		}
		return append(frames, frame), nil
	case opSignatureDelta:
		frame, err := marshalFrame(w.chunk([]gemini.Part{{ThoughtSignature: op.text}}, ""))
		if err != nil {
			return nil, err
		}
		return append(frames, frame), nil
	case opToolStart:
		frames, err = w.flushTool(frames)
		if err != nil {
			return nil, err
		}
		w.inTool = true
		w.sawTool = true
		w.toolID = op.toolID
		w.toolName = op.toolName
		w.args = ""
	case opToolArgsDelta:
		if w.inTool {
			w.args += op.text
		}
	case opUsage:
		w.usage = op.usage
		w.hasUsage = true
	case opStop:
		w.finishReason = op.finish
	}
	return frames, nil
}

func (w *geminiStreamWriter) finish() ([][]byte, error) {
	if w.finished {
		return nil, nil
	}
	w.finished = true
	frames, err := w.flushTool(nil)
	if err != nil {
		return nil, err
	}
	finish := w.finishReason
	if finish == "" {
		finish = FinishOther
	}
	final := w.chunk([]gemini.Part{}, FinishToGemini(finish))
	final.Candidates[0].Content = nil
	if w.hasUsage {
		final.UsageMetadata = w.usage.ToGemini()
	}
	frame, err := marshalFrame(final)
	if err != nil {
		return nil, err
	}
	return append(frames, frame), nil
}

func intPtr(v int) *int { return &v }
