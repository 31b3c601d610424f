package openai

import (
	"encoding/json"

	"github.com/awsl-project/gproxy/internal/protocol/jsonx"
)

// Responses item and part type tokens.
const (
	ItemMessage             = "message"
	ItemFunctionCall        = "function_call"
	ItemFunctionCallOutput  = "function_call_output"
	ItemReasoning           = "reasoning"
	ItemImageGenerationCall = "image_generation_call"

	PartInputText     = "input_text"
	PartInputImage    = "input_image"
	PartInputFile     = "input_file"
	PartOutputText    = "output_text"
	PartRefusal       = "refusal"
	PartSummaryText   = "summary_text"
	PartReasoningText = "reasoning_text"
)

// Response status tokens.
const (
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusInProgress = "in_progress"
	StatusIncomplete = "incomplete"
)

// InputPart is one element of an input/output message item.
type InputPart struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	// input_image
	ImageURL string `json:"image_url,omitempty"`
	Detail   string `json:"detail,omitempty"`

	// input_file
	FileID   string `json:"file_id,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	FileData string `json:"file_data,omitempty"`
	Filename string `json:"filename,omitempty"`

	// output_text / refusal
	Refusal     string          `json:"refusal,omitempty"`
	Annotations json.RawMessage `json:"annotations,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (p *InputPart) UnmarshalJSON(data []byte) error {
	type plain InputPart
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = InputPart(v)
	p.Extra = jsonx.ExtraFields(data, v)
	return nil
}

func (p InputPart) MarshalJSON() ([]byte, error) {
	type plain InputPart
	return jsonx.MergeExtra(plain(p), p.Extra)
}

// ItemContent is a string or a part list on the wire.
type ItemContent struct {
	Text   string
	Parts  []InputPart
	isText bool
}

func ItemText(text string) ItemContent { return ItemContent{Text: text, isText: true} }

func (c ItemContent) IsText() bool { return c.isText }

// Flatten returns the concatenated text of textual parts.
func (c ItemContent) Flatten() string {
	if c.isText {
		return c.Text
	}
	var out string
	for _, part := range c.Parts {
		switch part.Type {
		case PartInputText, PartOutputText, PartSummaryText, PartReasoningText:
			out += part.Text
		}
	}
	return out
}

func (c *ItemContent) UnmarshalJSON(data []byte) error {
	*c = ItemContent{}
	if len(data) > 0 && data[0] == '"' {
		c.isText = true
		return json.Unmarshal(data, &c.Text)
	}
	return json.Unmarshal(data, &c.Parts)
}

func (c ItemContent) MarshalJSON() ([]byte, error) {
	if c.isText {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Parts)
}

// Item is the Responses item union: messages, function calls and their
// outputs, reasoning blocks. Type selects the meaningful fields.
type Item struct {
	Type   string `json:"type,omitempty"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`

	// message
	Role    string       `json:"role,omitempty"`
	Content *ItemContent `json:"content,omitempty"`

	// function_call
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output; string or structured output
	Output json.RawMessage `json:"output,omitempty"`

	// reasoning
	Summary          []InputPart `json:"summary,omitempty"`
	ReasoningContent []InputPart `json:"reasoning_content,omitempty"`
	EncryptedContent string      `json:"encrypted_content,omitempty"`

	// image_generation_call
	Result string `json:"result,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (i *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = Item(p)
	i.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (i Item) MarshalJSON() ([]byte, error) {
	type plain Item
	return jsonx.MergeExtra(plain(i), i.Extra)
}

// Input is a bare string or an item list on the wire.
type Input struct {
	Text   string
	Items  []Item
	isText bool
}

func InputItems(items []Item) Input { return Input{Items: items} }

func (in Input) IsText() bool { return in.isText }

// AsItems returns the input normalized to an item list.
func (in Input) AsItems() []Item {
	if in.isText {
		content := ItemText(in.Text)
		return []Item{{Type: ItemMessage, Role: "user", Content: &content}}
	}
	return in.Items
}

func (in *Input) UnmarshalJSON(data []byte) error {
	*in = Input{}
	if len(data) > 0 && data[0] == '"' {
		in.isText = true
		return json.Unmarshal(data, &in.Text)
	}
	return json.Unmarshal(data, &in.Items)
}

func (in Input) MarshalJSON() ([]byte, error) {
	if in.isText {
		return json.Marshal(in.Text)
	}
	return json.Marshal(in.Items)
}

// ResponseTool is the Responses tool union; function tools carry the
// schema inline rather than nested.
type ResponseTool struct {
	Type string `json:"type"`

	// function
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (t *ResponseTool) UnmarshalJSON(data []byte) error {
	type plain ResponseTool
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = ResponseTool(p)
	t.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (t ResponseTool) MarshalJSON() ([]byte, error) {
	type plain ResponseTool
	return jsonx.MergeExtra(plain(t), t.Extra)
}

// Reasoning configures effort and summary emission.
type Reasoning struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// TextFormat selects the output text format (text/json_object/json_schema).
type TextFormat struct {
	Type   string          `json:"type"`
	Name   string          `json:"name,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
	Strict *bool           `json:"strict,omitempty"`
}

// ResponseTextParam wraps the format plus verbosity.
type ResponseTextParam struct {
	Format    *TextFormat `json:"format,omitempty"`
	Verbosity string      `json:"verbosity,omitempty"`
}

// CreateResponseRequest is the POST /v1/responses body.
type CreateResponseRequest struct {
	Model              string             `json:"model"`
	Input              *Input             `json:"input,omitempty"`
	Instructions       string             `json:"instructions,omitempty"`
	Stream             *bool              `json:"stream,omitempty"`
	Store              *bool              `json:"store,omitempty"`
	Background         *bool              `json:"background,omitempty"`
	MaxOutputTokens    *int               `json:"max_output_tokens,omitempty"`
	Temperature        *float64           `json:"temperature,omitempty"`
	TopP               *float64           `json:"top_p,omitempty"`
	TopLogprobs        *int               `json:"top_logprobs,omitempty"`
	Text               *ResponseTextParam `json:"text,omitempty"`
	Tools              []ResponseTool     `json:"tools,omitempty"`
	ToolChoice         *ToolChoice        `json:"tool_choice,omitempty"`
	ParallelToolCalls  *bool              `json:"parallel_tool_calls,omitempty"`
	Reasoning          *Reasoning         `json:"reasoning,omitempty"`
	PreviousResponseID string             `json:"previous_response_id,omitempty"`
	Include            []string           `json:"include,omitempty"`
	User               string             `json:"user,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *CreateResponseRequest) UnmarshalJSON(data []byte) error {
	type plain CreateResponseRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = CreateResponseRequest(p)
	r.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (r CreateResponseRequest) MarshalJSON() ([]byte, error) {
	type plain CreateResponseRequest
	return jsonx.MergeExtra(plain(r), r.Extra)
}

// IsStream reports the request's streaming intent.
func (r *CreateResponseRequest) IsStream() bool {
	return r.Stream != nil && *r.Stream
}

// ResponseUsage is the Responses usage record.
type ResponseUsage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	TotalTokens        int `json:"total_tokens"`
	InputTokensDetails *struct {
		CachedTokens int `json:"cached_tokens,omitempty"`
	} `json:"input_tokens_details,omitempty"`
	OutputTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens,omitempty"`
	} `json:"output_tokens_details,omitempty"`
}

// ResponseError is the terminal error payload of a failed response.
type ResponseError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Response is the non-stream POST /v1/responses answer.
type Response struct {
	ID                 string             `json:"id"`
	Object             string             `json:"object"`
	CreatedAt          int64              `json:"created_at"`
	Status             string             `json:"status,omitempty"`
	Error              *ResponseError     `json:"error,omitempty"`
	IncompleteDetails  json.RawMessage    `json:"incomplete_details,omitempty"`
	Instructions       string             `json:"instructions,omitempty"`
	Model              string             `json:"model"`
	Output             []Item             `json:"output"`
	OutputText         string             `json:"output_text,omitempty"`
	Usage              *ResponseUsage     `json:"usage,omitempty"`
	Tools              []ResponseTool     `json:"tools,omitempty"`
	ToolChoice         *ToolChoice        `json:"tool_choice,omitempty"`
	Text               *ResponseTextParam `json:"text,omitempty"`
	Reasoning          *Reasoning         `json:"reasoning,omitempty"`
	Temperature        *float64           `json:"temperature,omitempty"`
	TopP               *float64           `json:"top_p,omitempty"`
	MaxOutputTokens    *int               `json:"max_output_tokens,omitempty"`
	ParallelToolCalls  *bool              `json:"parallel_tool_calls,omitempty"`
	PreviousResponseID string             `json:"previous_response_id,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *Response) UnmarshalJSON(data []byte) error {
	type plain Response
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Response(p)
	r.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	return jsonx.MergeExtra(plain(r), r.Extra)
}
