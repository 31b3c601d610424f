package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, chunks ...string) []string {
	t.Helper()
	decoder := &Decoder{}
	var out []string
	for _, chunk := range chunks {
		out = append(out, decoder.Push([]byte(chunk))...)
	}
	return append(out, decoder.Finish()...)
}

func TestDecoderSSENamedEvents(t *testing.T) {
	input := "event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
		"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"
	payloads := decodeAll(t, input)
	require.Len(t, payloads, 2)
	assert.Equal(t, `{"type":"message_start"}`, payloads[0])
	assert.Equal(t, `{"type":"message_stop"}`, payloads[1])
}

func TestDecoderSSEDataOnlyWithDone(t *testing.T) {
	input := "data: {\"id\":\"1\"}\n\ndata: [DONE]\n\n"
	payloads := decodeAll(t, input)
	require.Len(t, payloads, 2)
	assert.Equal(t, `{"id":"1"}`, payloads[0])
	assert.Equal(t, "[DONE]", payloads[1])
}

func TestDecoderSSEMultiLineData(t *testing.T) {
	input := "data: {\"a\":\ndata: 1}\n\n"
	payloads := decodeAll(t, input)
	require.Len(t, payloads, 1)
	assert.Equal(t, "{\"a\":\n1}", payloads[0])
}

func TestDecoderNDJSON(t *testing.T) {
	input := "{\"n\":1}\r\n{\"n\":2}\n\n{\"n\":3}"
	payloads := decodeAll(t, input)
	require.Len(t, payloads, 3)
	assert.Equal(t, `{"n":1}`, payloads[0])
	assert.Equal(t, `{"n":3}`, payloads[2])
}

func TestDecoderJSONArray(t *testing.T) {
	input := `[{"n":1},{"nested":{"x":[1,2]}},{"s":"br}ace and \"quote\""}]`
	payloads := decodeAll(t, input)
	require.Len(t, payloads, 3)
	assert.Equal(t, `{"n":1}`, payloads[0])
	assert.Equal(t, `{"nested":{"x":[1,2]}}`, payloads[1])
	assert.Equal(t, `{"s":"br}ace and \"quote\""}`, payloads[2])
}

// Splitting the byte stream at any boundary must not change the decoded
// payload sequence.
func TestDecoderRefragmentationStability(t *testing.T) {
	inputs := []string{
		"event: a\ndata: {\"type\":\"a\"}\n\ndata: {\"type\":\"b\"}\n\n",
		"{\"n\":1}\n{\"n\":2}\n",
		`[{"n":1},{"n":2},{"n":3}]`,
	}
	for _, input := range inputs {
		whole := decodeAll(t, input)
		for split := 1; split < len(input); split++ {
			fragmented := decodeAll(t, input[:split], input[split:])
			assert.Equal(t, whole, fragmented, "split at %d of %q", split, input)
		}
	}
}

func TestDecoderFramingDetection(t *testing.T) {
	sse := &Decoder{}
	sse.Push([]byte("event: x\n"))
	assert.Equal(t, FramingSSE, sse.Framing())

	ndjson := &Decoder{}
	ndjson.Push([]byte("{\"a\":1}\n"))
	assert.Equal(t, FramingNDJSON, ndjson.Framing())

	array := &Decoder{}
	array.Push([]byte("  [{\"a\":1}"))
	assert.Equal(t, FramingJSONArray, array.Framing())
}

func TestDecoderFinishDrainsTrailing(t *testing.T) {
	decoder := &Decoder{}
	decoder.Push([]byte("data: {\"tail\":true}"))
	payloads := decoder.Finish()
	require.Len(t, payloads, 1)
	assert.Equal(t, `{"tail":true}`, payloads[0])
}
