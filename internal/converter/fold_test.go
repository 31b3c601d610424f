package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

func TestClaudeFolderCoalescesStream(t *testing.T) {
	folder, err := NewFolder(domain.ProtoClaude)
	require.NoError(t, err)

	payloads := []string{
		`{"type":"message_start","message":{"id":"msg_9","type":"message","role":"assistant","model":"claude-3-7-sonnet","content":[],"usage":{"input_tokens":0,"output_tokens":0}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hel"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"input_tokens":2,"output_tokens":1}}`,
		`{"type":"message_stop"}`,
	}
	for _, payload := range payloads {
		require.NoError(t, folder.Push([]byte(payload)))
	}
	result, err := folder.Finish("claude-3-7-sonnet")
	require.NoError(t, err)
	require.NotNil(t, result.Claude)

	resp := result.Claude
	assert.Equal(t, "msg_9", resp.ID)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "hello", resp.Content[0].Text)
	assert.Equal(t, claude.StopEndTurn, resp.StopReason)
	assert.Equal(t, 2, resp.Usage.InputTokens)
	assert.Equal(t, 1, resp.Usage.OutputTokens)
	assert.True(t, folder.SawStop())
}

// A stream that dies before its stop event folds with a synthesized
// pause_turn finish.
func TestClaudeFolderSynthesizesPauseTurn(t *testing.T) {
	folder, err := NewFolder(domain.ProtoClaude)
	require.NoError(t, err)
	require.NoError(t, folder.Push([]byte(`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],"usage":{"input_tokens":0,"output_tokens":0}}}`)))
	require.NoError(t, folder.Push([]byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}`)))

	result, err := folder.Finish("m")
	require.NoError(t, err)
	assert.Equal(t, claude.StopPauseTurn, result.Claude.StopReason)
	assert.False(t, folder.SawStop())
}

func TestChatFolderBuildsToolCalls(t *testing.T) {
	folder, err := NewFolder(domain.ProtoOpenAIChat)
	require.NoError(t, err)
	payloads := []string{
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"f","arguments":"{\"x\":"}}]}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1}"}}]}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	}
	for _, payload := range payloads {
		require.NoError(t, folder.Push([]byte(payload)))
	}
	result, err := folder.Finish("gpt-4o")
	require.NoError(t, err)
	require.NotNil(t, result.Chat)
	require.Len(t, result.Chat.Choices, 1)
	message := result.Chat.Choices[0].Message
	require.NotNil(t, message)
	require.Len(t, message.ToolCalls, 1)
	assert.Equal(t, "call_1", message.ToolCalls[0].ID)
	assert.Equal(t, `{"x":1}`, message.ToolCalls[0].Function.Arguments)
	assert.Equal(t, openai.FinishToolCalls, result.Chat.Choices[0].FinishReason)
}

// Folding then finalizing agrees with the stream transformer's terminal
// usage and finish reason.
func TestFoldMatchesStreamFinalState(t *testing.T) {
	payloads := []string{
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"hey"}]},"finishReason":"MAX_TOKENS"}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3}}`,
	}

	folder, err := NewFolder(domain.ProtoGemini)
	require.NoError(t, err)
	for _, payload := range payloads {
		require.NoError(t, folder.Push([]byte(payload)))
	}
	folded, err := folder.Finish("gemini-2.0-flash")
	require.NoError(t, err)

	converted, err := NewRegistry().TransformGenerateResponse(folded, domain.ProtoClaude)
	require.NoError(t, err)
	require.NotNil(t, converted.Claude)
	assert.Equal(t, claude.StopMaxTokens, converted.Claude.StopReason)
	assert.Equal(t, 7, converted.Claude.Usage.InputTokens)
	assert.Equal(t, 3, converted.Claude.Usage.OutputTokens)
}
