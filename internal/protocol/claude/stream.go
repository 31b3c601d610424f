package claude

import "encoding/json"

// Stream event type tokens.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Delta type tokens inside content_block_delta.
const (
	DeltaText      = "text_delta"
	DeltaInputJSON = "input_json_delta"
	DeltaThinking  = "thinking_delta"
	DeltaSignature = "signature_delta"
	DeltaCitations = "citations_delta"
)

// StreamDelta is the delta payload of a content_block_delta event.
type StreamDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`

	// message_delta payload
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}

// StreamEvent is the Claude streaming sum type. Known envelopes decode into
// the typed fields; anything else keeps its raw bytes in Unknown so
// transforms can skip it without error and re-encoders can pass it through.
type StreamEvent struct {
	Type string `json:"type"`

	// message_start
	Message *MessageResponse `json:"message,omitempty"`

	// content_block_* events
	Index        *int          `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *StreamDelta  `json:"delta,omitempty"`

	// message_delta
	Usage *Usage `json:"usage,omitempty"`

	// error
	Error *ErrorDetail `json:"error,omitempty"`

	// Unknown holds the verbatim envelope for unrecognized event types.
	Unknown json.RawMessage `json:"-"`
}

var knownStreamEvents = map[string]struct{}{
	EventMessageStart:      {},
	EventContentBlockStart: {},
	EventContentBlockDelta: {},
	EventContentBlockStop:  {},
	EventMessageDelta:      {},
	EventMessageStop:       {},
	EventPing:              {},
	EventError:             {},
}

// IsKnown reports whether the event decoded into a typed variant.
func (e *StreamEvent) IsKnown() bool { return e.Unknown == nil }

func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := knownStreamEvents[probe.Type]; !ok {
		*e = StreamEvent{Type: probe.Type, Unknown: append(json.RawMessage(nil), data...)}
		return nil
	}
	type plain StreamEvent
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = StreamEvent(p)
	return nil
}

func (e StreamEvent) MarshalJSON() ([]byte, error) {
	if e.Unknown != nil {
		return e.Unknown, nil
	}
	type plain StreamEvent
	return json.Marshal(plain(e))
}

// NewMessageStart builds the first event of a synthesized Claude stream.
func NewMessageStart(id, model string, usage Usage) StreamEvent {
	return StreamEvent{
		Type: EventMessageStart,
		Message: &MessageResponse{
			ID:      id,
			Type:    "message",
			Role:    "assistant",
			Model:   model,
			Content: []ContentBlock{},
			Usage:   usage,
		},
	}
}

func NewPing() StreamEvent {
	return StreamEvent{Type: EventPing}
}
