package converter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

func runStream(t *testing.T, st StreamTransformer, payloads ...string) [][]byte {
	t.Helper()
	var out [][]byte
	for _, payload := range payloads {
		frames, err := st.Next([]byte(payload))
		require.NoError(t, err)
		out = append(out, frames...)
	}
	frames, err := st.Finish()
	require.NoError(t, err)
	return append(out, frames...)
}

func decodeClaudeEvents(t *testing.T, frames [][]byte) []claude.StreamEvent {
	t.Helper()
	events := make([]claude.StreamEvent, 0, len(frames))
	for _, frame := range frames {
		var event claude.StreamEvent
		require.NoError(t, json.Unmarshal(frame, &event))
		events = append(events, event)
	}
	return events
}

// A Gemini text stream becomes the canonical Claude event sequence: one
// message_start, a text block whose deltas concatenate to the source
// text, a message_delta carrying final usage and stop_reason, and one
// message_stop.
func TestGeminiToClaudeTextStream(t *testing.T) {
	registry := NewRegistry()
	st, err := registry.NewStreamTransformer(domain.ProtoGemini, domain.ProtoClaude, "gemini-2.0-flash")
	require.NoError(t, err)

	frames := runStream(t, st,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hel"}]}}]}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":1}}`,
	)
	events := decodeClaudeEvents(t, frames)

	var types []string
	var text string
	starts, stops := 0, 0
	for _, event := range events {
		types = append(types, event.Type)
		switch event.Type {
		case claude.EventMessageStart:
			starts++
		case claude.EventMessageStop:
			stops++
		case claude.EventContentBlockDelta:
			text += event.Delta.Text
		}
	}
	assert.Equal(t, []string{
		claude.EventMessageStart,
		claude.EventContentBlockStart,
		claude.EventContentBlockDelta,
		claude.EventContentBlockDelta,
		claude.EventContentBlockStop,
		claude.EventMessageDelta,
		claude.EventMessageStop,
	}, types)
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.Equal(t, "Hello", text)

	delta := events[len(events)-2]
	require.NotNil(t, delta.Delta)
	assert.Equal(t, claude.StopEndTurn, delta.Delta.StopReason)
	require.NotNil(t, delta.Usage)
	assert.Equal(t, 2, delta.Usage.InputTokens)
	assert.Equal(t, 1, delta.Usage.OutputTokens)
}

// Claude tool-call streams become chat chunks with accumulating
// arguments deltas and a tool_calls finish reason; usage rides the final
// chunk.
func TestClaudeToChatToolStream(t *testing.T) {
	registry := NewRegistry()
	st, err := registry.NewStreamTransformer(domain.ProtoClaude, domain.ProtoOpenAIChat, "claude-3-7-sonnet")
	require.NoError(t, err)

	frames := runStream(t, st,
		`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-7-sonnet","content":[],"usage":{"input_tokens":0,"output_tokens":0}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{}}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"SF\"}"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"input_tokens":10,"output_tokens":5}}`,
		`{"type":"message_stop"}`,
	)

	var chunks []openai.ChatCompletionChunk
	for _, frame := range frames {
		var chunk openai.ChatCompletionChunk
		require.NoError(t, json.Unmarshal(frame, &chunk))
		chunks = append(chunks, chunk)
	}

	var args string
	var toolName string
	var finish string
	var usage *openai.ChatUsage
	for _, chunk := range chunks {
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
			for _, call := range choice.Delta.ToolCalls {
				if call.Function.Name != "" {
					toolName = call.Function.Name
				}
				args += call.Function.Arguments
			}
		}
	}
	assert.Equal(t, "get_weather", toolName)
	assert.Equal(t, `{"city":"SF"}`, args)
	assert.Equal(t, openai.FinishToolCalls, finish)
	require.NotNil(t, usage)
	assert.Equal(t, 10, usage.PromptTokens)
	assert.Equal(t, 5, usage.CompletionTokens)
}

// Unknown Claude stream envelopes are skipped without error.
func TestClaudeReaderSkipsUnknownEvents(t *testing.T) {
	registry := NewRegistry()
	st, err := registry.NewStreamTransformer(domain.ProtoClaude, domain.ProtoOpenAIChat, "m")
	require.NoError(t, err)
	frames, err := st.Next([]byte(`{"type":"mystery_event","payload":{"x":1}}`))
	require.NoError(t, err)
	assert.Empty(t, frames)
}

// A chat stream translated to Responses emits response.created once and
// exactly one terminal response.completed.
func TestChatToResponsesStream(t *testing.T) {
	registry := NewRegistry()
	st, err := registry.NewStreamTransformer(domain.ProtoOpenAIChat, domain.ProtoOpenAIResponse, "gpt-4o")
	require.NoError(t, err)

	frames := runStream(t, st,
		`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hi"}}]}`,
		`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
	)

	created, completed := 0, 0
	var sawTextDelta bool
	for _, frame := range frames {
		var event openai.ResponseStreamEvent
		require.NoError(t, json.Unmarshal(frame, &event))
		switch event.Type {
		case openai.EventResponseCreated:
			created++
		case openai.EventResponseCompleted:
			completed++
			require.NotNil(t, event.Response)
			require.NotNil(t, event.Response.Usage)
			assert.Equal(t, 3, event.Response.Usage.InputTokens)
			assert.Equal(t, 2, event.Response.Usage.OutputTokens)
		case openai.EventOutputTextDelta:
			sawTextDelta = true
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, completed)
	assert.True(t, sawTextDelta)
}

// The identity pair passes payloads through untouched.
func TestIdentityStreamPassthrough(t *testing.T) {
	registry := NewRegistry()
	st, err := registry.NewStreamTransformer(domain.ProtoClaude, domain.ProtoClaude, "m")
	require.NoError(t, err)
	payload := `{"type":"ping"}`
	frames, err := st.Next([]byte(payload))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, payload, string(frames[0]))
}
