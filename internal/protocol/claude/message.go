package claude

import (
	"encoding/json"

	"github.com/awsl-project/gproxy/internal/protocol/jsonx"
)

// Message content block types.
const (
	BlockText             = "text"
	BlockImage            = "image"
	BlockToolUse          = "tool_use"
	BlockToolResult       = "tool_result"
	BlockThinking         = "thinking"
	BlockRedactedThinking = "redacted_thinking"
	BlockDocument         = "document"
)

// ContentBlock is the interchangeable message content union. Type selects
// which of the remaining fields are meaningful; fields the proxy does not
// model ride along in Extra.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image / document
	Source *MediaSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result; Content is a string or a nested block list
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   *bool           `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// redacted_thinking
	Data string `json:"data,omitempty"`

	CacheControl json.RawMessage `json:"cache_control,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type plain ContentBlock
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = ContentBlock(p)
	b.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (b ContentBlock) MarshalJSON() ([]byte, error) {
	type plain ContentBlock
	return jsonx.MergeExtra(plain(b), b.Extra)
}

// MediaSource carries inline or referenced media for image/document blocks.
type MediaSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
	FileID    string `json:"file_id,omitempty"`
}

// MessageContent is a string or a block list on the wire.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
	isText bool
}

func TextContent(text string) MessageContent {
	return MessageContent{Text: text, isText: true}
}

func BlocksContent(blocks []ContentBlock) MessageContent {
	return MessageContent{Blocks: blocks}
}

// IsText reports whether the content arrived as a bare string.
func (c MessageContent) IsText() bool { return c.isText }

// AsBlocks returns the content normalized to a block list.
func (c MessageContent) AsBlocks() []ContentBlock {
	if c.isText {
		return []ContentBlock{{Type: BlockText, Text: c.Text}}
	}
	return c.Blocks
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		c.isText = true
		c.Blocks = nil
		return json.Unmarshal(data, &c.Text)
	}
	c.isText = false
	c.Text = ""
	return json.Unmarshal(data, &c.Blocks)
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.isText {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Blocks)
}

type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// SystemPrompt is a string or a text-block list on the wire.
type SystemPrompt = MessageContent

type Tool struct {
	Type        string          `json:"type,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (t *Tool) UnmarshalJSON(data []byte) error {
	type plain Tool
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Tool(p)
	t.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (t Tool) MarshalJSON() ([]byte, error) {
	type plain Tool
	return jsonx.MergeExtra(plain(t), t.Extra)
}

type ToolChoice struct {
	Type                   string `json:"type"`
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse *bool  `json:"disable_parallel_tool_use,omitempty"`
}

type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type Metadata struct {
	UserID string `json:"user_id,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = Metadata(p)
	m.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	type plain Metadata
	return jsonx.MergeExtra(plain(m), m.Extra)
}

// CreateMessageRequest is the POST /v1/messages body.
type CreateMessageRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	MaxTokens     int             `json:"max_tokens"`
	System        *SystemPrompt   `json:"system,omitempty"`
	Metadata      *Metadata       `json:"metadata,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        *bool           `json:"stream,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	ToolChoice    *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking      *ThinkingConfig `json:"thinking,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *CreateMessageRequest) UnmarshalJSON(data []byte) error {
	type plain CreateMessageRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = CreateMessageRequest(p)
	r.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (r CreateMessageRequest) MarshalJSON() ([]byte, error) {
	type plain CreateMessageRequest
	return jsonx.MergeExtra(plain(r), r.Extra)
}

// IsStream reports the request's streaming intent.
func (r *CreateMessageRequest) IsStream() bool {
	return r.Stream != nil && *r.Stream
}

type CacheCreation struct {
	Ephemeral5mInputTokens int `json:"ephemeral_5m_input_tokens,omitempty"`
	Ephemeral1hInputTokens int `json:"ephemeral_1h_input_tokens,omitempty"`
}

type Usage struct {
	InputTokens              int            `json:"input_tokens"`
	OutputTokens             int            `json:"output_tokens"`
	CacheCreationInputTokens *int           `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     *int           `json:"cache_read_input_tokens,omitempty"`
	CacheCreation            *CacheCreation `json:"cache_creation,omitempty"`
	ServiceTier              string         `json:"service_tier,omitempty"`
}

// MessageResponse is the non-stream POST /v1/messages answer.
type MessageResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *MessageResponse) UnmarshalJSON(data []byte) error {
	type plain MessageResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = MessageResponse(p)
	r.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (r MessageResponse) MarshalJSON() ([]byte, error) {
	type plain MessageResponse
	return jsonx.MergeExtra(plain(r), r.Extra)
}

// ErrorDetail is the vendor error payload.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}
