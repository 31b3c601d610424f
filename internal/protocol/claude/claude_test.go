package claude

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMessageRequestRoundTripPreservesUnknownFields(t *testing.T) {
	body := `{
		"model":"claude-3-7-sonnet","max_tokens":16,
		"messages":[{"role":"user","content":"hi"}],
		"vendor_extension":{"nested":true},
		"metadata":{"user_id":"u1","future_field":"kept"}
	}`
	var req CreateMessageRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, "claude-3-7-sonnet", req.Model)
	require.Contains(t, req.Extra, "vendor_extension")
	require.NotNil(t, req.Metadata)
	assert.Contains(t, req.Metadata.Extra, "future_field")

	encoded, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(encoded))
}

func TestMessageContentStringOrBlocks(t *testing.T) {
	var text MessageContent
	require.NoError(t, json.Unmarshal([]byte(`"hello"`), &text))
	assert.True(t, text.IsText())
	blocks := text.AsBlocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "hello", blocks[0].Text)
	encoded, err := json.Marshal(text)
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, string(encoded))

	var list MessageContent
	require.NoError(t, json.Unmarshal([]byte(`[{"type":"text","text":"a"},{"type":"tool_use","id":"t","name":"f","input":{}}]`), &list))
	assert.False(t, list.IsText())
	require.Len(t, list.Blocks, 2)
	assert.Equal(t, BlockToolUse, list.Blocks[1].Type)
}

func TestParseHeadersBetaList(t *testing.T) {
	h := http.Header{}
	h.Set("anthropic-version", "2023-06-01")
	h.Add("anthropic-beta", "prompt-caching-2024-07-31, output-128k-2025-02-19")
	h.Add("anthropic-beta", "custom-beta")

	parsed := ParseHeaders(h)
	assert.Equal(t, "2023-06-01", parsed.Version)
	assert.Equal(t, []string{"prompt-caching-2024-07-31", "output-128k-2025-02-19", "custom-beta"}, parsed.Beta)
	assert.True(t, parsed.HasBeta("custom-beta"))
	assert.False(t, parsed.HasBeta("missing"))
}

func TestParseHeadersDuplicatesPreserved(t *testing.T) {
	h := http.Header{}
	h.Set("anthropic-beta", "dup,dup,")
	parsed := ParseHeaders(h)
	assert.Equal(t, []string{"dup", "dup", ""}, parsed.Beta)
}

func TestStreamEventKnownRoundTrip(t *testing.T) {
	payload := `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`
	var event StreamEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &event))
	assert.True(t, event.IsKnown())
	assert.Equal(t, EventContentBlockDelta, event.Type)
	require.NotNil(t, event.Delta)
	assert.Equal(t, "hi", event.Delta.Text)

	encoded, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(encoded))
}

// Unrecognized stream envelopes survive byte-for-byte.
func TestStreamEventUnknownPassthrough(t *testing.T) {
	payload := `{"type":"totally_new_event","weird":{"shape":[1,2,3]}}`
	var event StreamEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &event))
	assert.False(t, event.IsKnown())
	assert.Equal(t, "totally_new_event", event.Type)

	encoded, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(encoded))
}

func TestApplyDefaultsVersion(t *testing.T) {
	out := http.Header{}
	Headers{}.Apply(out)
	assert.Equal(t, Version20230601, out.Get("anthropic-version"))
}
