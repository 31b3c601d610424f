// Package openai holds the typed wire records for the OpenAI Chat
// Completions and Responses APIs.
package openai

import (
	"encoding/json"

	"github.com/awsl-project/gproxy/internal/protocol/jsonx"
)

// Chat finish reasons.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool_calls"
	FinishContentFilter = "content_filter"
	FinishFunctionCall  = "function_call"
)

// ChatContentPart is one element of a multi-part chat message content.
type ChatContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL    string `json:"url"`
		Detail string `json:"detail,omitempty"`
	} `json:"image_url,omitempty"`
	File *struct {
		FileID   string `json:"file_id,omitempty"`
		FileData string `json:"file_data,omitempty"`
		Filename string `json:"filename,omitempty"`
	} `json:"file,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (p *ChatContentPart) UnmarshalJSON(data []byte) error {
	type plain ChatContentPart
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = ChatContentPart(v)
	p.Extra = jsonx.ExtraFields(data, v)
	return nil
}

func (p ChatContentPart) MarshalJSON() ([]byte, error) {
	type plain ChatContentPart
	return jsonx.MergeExtra(plain(p), p.Extra)
}

// ChatContent is a string or a part list on the wire.
type ChatContent struct {
	Text   string
	Parts  []ChatContentPart
	isText bool
	isNull bool
}

func ChatText(text string) ChatContent { return ChatContent{Text: text, isText: true} }

func (c ChatContent) IsText() bool { return c.isText }
func (c ChatContent) IsNull() bool { return c.isNull }

// Flatten returns the concatenated text of all textual parts.
func (c ChatContent) Flatten() string {
	if c.isText {
		return c.Text
	}
	var out string
	for _, part := range c.Parts {
		if part.Type == "text" {
			out += part.Text
		}
	}
	return out
}

func (c *ChatContent) UnmarshalJSON(data []byte) error {
	*c = ChatContent{}
	if string(data) == "null" {
		c.isNull = true
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		c.isText = true
		return json.Unmarshal(data, &c.Text)
	}
	return json.Unmarshal(data, &c.Parts)
}

func (c ChatContent) MarshalJSON() ([]byte, error) {
	if c.isNull {
		return []byte("null"), nil
	}
	if c.isText {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Parts)
}

// ToolCallFunction is the function payload of a tool call.
type ToolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCall is one tool invocation on an assistant message.
type ToolCall struct {
	// Index is present on streaming deltas only.
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// ChatMessage is one conversation turn.
type ChatMessage struct {
	Role       string       `json:"role"`
	Content    *ChatContent `json:"content,omitempty"`
	Name       string       `json:"name,omitempty"`
	ToolCalls  []ToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Refusal    string       `json:"refusal,omitempty"`
	// ReasoningContent is the DeepSeek-style thinking channel.
	ReasoningContent string `json:"reasoning_content,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type plain ChatMessage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = ChatMessage(p)
	m.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	type plain ChatMessage
	return jsonx.MergeExtra(plain(m), m.Extra)
}

// ToolFunction describes a callable tool.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolChoice is "none"/"auto"/"required" or a named-function object.
type ToolChoice struct {
	Mode     string
	Function string
}

func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	*t = ToolChoice{}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.Mode)
	}
	var obj struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Function = obj.Function.Name
	return nil
}

func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.Function != "" {
		return json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": t.Function},
		})
	}
	return json.Marshal(t.Mode)
}

// StopConfiguration is a single stop sequence or a list on the wire.
type StopConfiguration struct {
	Sequences []string
	single    bool
}

func (s *StopConfiguration) UnmarshalJSON(data []byte) error {
	*s = StopConfiguration{}
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		s.Sequences = []string{one}
		s.single = true
		return nil
	}
	return json.Unmarshal(data, &s.Sequences)
}

func (s StopConfiguration) MarshalJSON() ([]byte, error) {
	if s.single && len(s.Sequences) == 1 {
		return json.Marshal(s.Sequences[0])
	}
	return json.Marshal(s.Sequences)
}

// StreamOptions controls end-of-stream usage emission.
type StreamOptions struct {
	IncludeUsage *bool `json:"include_usage,omitempty"`
}

// ResponseFormat selects plain text, json_object or json_schema output.
type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// ChatCompletionRequest is the POST /v1/chat/completions body.
type ChatCompletionRequest struct {
	Model               string             `json:"model"`
	Messages            []ChatMessage      `json:"messages"`
	MaxCompletionTokens *int               `json:"max_completion_tokens,omitempty"`
	MaxTokens           *int               `json:"max_tokens,omitempty"`
	Temperature         *float64           `json:"temperature,omitempty"`
	TopP                *float64           `json:"top_p,omitempty"`
	N                   *int               `json:"n,omitempty"`
	Stop                *StopConfiguration `json:"stop,omitempty"`
	Stream              *bool              `json:"stream,omitempty"`
	StreamOptions       *StreamOptions     `json:"stream_options,omitempty"`
	Tools               []ToolDefinition   `json:"tools,omitempty"`
	ToolChoice          *ToolChoice        `json:"tool_choice,omitempty"`
	ParallelToolCalls   *bool              `json:"parallel_tool_calls,omitempty"`
	ResponseFormat      *ResponseFormat    `json:"response_format,omitempty"`
	ReasoningEffort     string             `json:"reasoning_effort,omitempty"`
	FrequencyPenalty    *float64           `json:"frequency_penalty,omitempty"`
	PresencePenalty     *float64           `json:"presence_penalty,omitempty"`
	Logprobs            *bool              `json:"logprobs,omitempty"`
	TopLogprobs         *int               `json:"top_logprobs,omitempty"`
	Seed                *int64             `json:"seed,omitempty"`
	User                string             `json:"user,omitempty"`
	Store               *bool              `json:"store,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *ChatCompletionRequest) UnmarshalJSON(data []byte) error {
	type plain ChatCompletionRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ChatCompletionRequest(p)
	r.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (r ChatCompletionRequest) MarshalJSON() ([]byte, error) {
	type plain ChatCompletionRequest
	return jsonx.MergeExtra(plain(r), r.Extra)
}

// IsStream reports the request's streaming intent.
func (r *ChatCompletionRequest) IsStream() bool {
	return r.Stream != nil && *r.Stream
}

// MaxOutputTokens returns the effective output cap, preferring the
// non-deprecated field.
func (r *ChatCompletionRequest) MaxOutputTokens() int {
	if r.MaxCompletionTokens != nil {
		return *r.MaxCompletionTokens
	}
	if r.MaxTokens != nil {
		return *r.MaxTokens
	}
	return 0
}

// PromptTokensDetails breaks down prompt token counters.
type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens,omitempty"`
	AudioTokens  int `json:"audio_tokens,omitempty"`
}

// CompletionTokensDetails breaks down completion token counters.
type CompletionTokensDetails struct {
	ReasoningTokens          int `json:"reasoning_tokens,omitempty"`
	AudioTokens              int `json:"audio_tokens,omitempty"`
	AcceptedPredictionTokens int `json:"accepted_prediction_tokens,omitempty"`
	RejectedPredictionTokens int `json:"rejected_prediction_tokens,omitempty"`
}

// ChatUsage is the chat-completions usage record.
type ChatUsage struct {
	PromptTokens            int                      `json:"prompt_tokens"`
	CompletionTokens        int                      `json:"completion_tokens"`
	TotalTokens             int                      `json:"total_tokens"`
	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

// ChatChoice is one generated alternative.
type ChatChoice struct {
	Index        int             `json:"index"`
	Message      *ChatMessage    `json:"message,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Logprobs     json.RawMessage `json:"logprobs,omitempty"`
}

// ChatCompletionResponse is the non-stream chat answer.
type ChatCompletionResponse struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Created           int64        `json:"created"`
	Model             string       `json:"model"`
	Choices           []ChatChoice `json:"choices"`
	Usage             *ChatUsage   `json:"usage,omitempty"`
	SystemFingerprint string       `json:"system_fingerprint,omitempty"`
	ServiceTier       string       `json:"service_tier,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *ChatCompletionResponse) UnmarshalJSON(data []byte) error {
	type plain ChatCompletionResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ChatCompletionResponse(p)
	r.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (r ChatCompletionResponse) MarshalJSON() ([]byte, error) {
	type plain ChatCompletionResponse
	return jsonx.MergeExtra(plain(r), r.Extra)
}

// ChatDelta is the incremental message payload of a stream chunk.
type ChatDelta struct {
	Role             string     `json:"role,omitempty"`
	Content          string     `json:"content,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	Refusal          string     `json:"refusal,omitempty"`
}

// ChatChunkChoice is one choice of a stream chunk.
type ChatChunkChoice struct {
	Index        int       `json:"index"`
	Delta        ChatDelta `json:"delta"`
	FinishReason string    `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk is one SSE data frame of a chat stream.
type ChatCompletionChunk struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	Created           int64             `json:"created"`
	Model             string            `json:"model"`
	Choices           []ChatChunkChoice `json:"choices"`
	Usage             *ChatUsage        `json:"usage,omitempty"`
	SystemFingerprint string            `json:"system_fingerprint,omitempty"`
}

// OpenAI error envelope.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
