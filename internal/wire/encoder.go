package wire

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/awsl-project/gproxy/internal/domain"
)

// FormatSSE frames a payload as one SSE event. An empty event name emits a
// data-only frame. Multi-line data gets one data: line per line.
func FormatSSE(event string, data []byte) []byte {
	var sb strings.Builder
	if event != "" {
		sb.WriteString("event: ")
		sb.WriteString(event)
		sb.WriteString("\n")
	}
	for _, line := range strings.Split(string(data), "\n") {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return []byte(sb.String())
}

// FormatDone is the chat-completions terminator frame.
func FormatDone() []byte {
	return []byte("data: [DONE]\n\n")
}

// EncodeEvent frames one already-serialized event payload for the
// destination protocol: named-event SSE for Claude and OpenAI-Responses
// (the name is the payload's type field), data-only SSE for OpenAI-Chat,
// and newline-delimited JSON for Gemini.
func EncodeEvent(dst domain.Proto, payload []byte) []byte {
	switch dst {
	case domain.ProtoClaude, domain.ProtoOpenAIResponse:
		name, _ := sonic.Get(payload, "type")
		event, _ := name.String()
		return FormatSSE(event, payload)
	case domain.ProtoOpenAIChat:
		return FormatSSE("", payload)
	case domain.ProtoGemini:
		return append(append([]byte(nil), payload...), '\n')
	}
	return nil
}

// ContentTypeForStream is the response content type per destination.
func ContentTypeForStream(dst domain.Proto) string {
	if dst == domain.ProtoGemini {
		return "application/json"
	}
	return "text/event-stream"
}
