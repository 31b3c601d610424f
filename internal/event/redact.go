package event

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/awsl-project/gproxy/internal/domain"
)

// sensitiveBodyPaths are the prompt-bearing fields scrubbed from stored
// traffic bodies when redaction is on.
var sensitiveBodyPaths = []string{
	"messages",
	"contents",
	"input",
	"system",
	"systemInstruction",
	"instructions",
}

// RedactBody removes prompt content from a JSON body, leaving the shape
// (model, params, usage) intact. Non-JSON bodies are dropped entirely.
func RedactBody(body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	if !gjson.ValidBytes(body) {
		return []byte(`"[redacted]"`)
	}
	out := body
	for _, path := range sensitiveBodyPaths {
		if !gjson.GetBytes(out, path).Exists() {
			continue
		}
		if replaced, err := sjson.SetBytes(out, path, "[redacted]"); err == nil {
			out = replaced
		}
	}
	return out
}

// RedactingSink wraps a sink, scrubbing request/response bodies before
// they reach it.
type RedactingSink struct {
	Next Sink
}

func (s *RedactingSink) Name() string { return s.Next.Name() }

func (s *RedactingSink) Consume(event domain.Event) {
	switch {
	case event.Downstream != nil:
		scrubbed := *event.Downstream
		scrubbed.RequestBody = RedactBody(scrubbed.RequestBody)
		scrubbed.ResponseBody = RedactBody(scrubbed.ResponseBody)
		s.Next.Consume(domain.Event{Downstream: &scrubbed})
	case event.Upstream != nil:
		scrubbed := *event.Upstream
		scrubbed.RequestBody = RedactBody(scrubbed.RequestBody)
		scrubbed.ResponseBody = RedactBody(scrubbed.ResponseBody)
		s.Next.Consume(domain.Event{Upstream: &scrubbed})
	default:
		s.Next.Consume(event)
	}
}
