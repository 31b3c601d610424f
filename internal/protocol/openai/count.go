package openai

import (
	"encoding/json"

	"github.com/awsl-project/gproxy/internal/protocol/jsonx"
)

// InputTokenCountRequest is the POST /v1/responses/input_tokens body: the
// response request's input-bearing fields without the sampling knobs.
type InputTokenCountRequest struct {
	Model        string         `json:"model"`
	Input        *Input         `json:"input,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
	Tools        []ResponseTool `json:"tools,omitempty"`
	ToolChoice   *ToolChoice    `json:"tool_choice,omitempty"`
	Reasoning    *Reasoning     `json:"reasoning,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *InputTokenCountRequest) UnmarshalJSON(data []byte) error {
	type plain InputTokenCountRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = InputTokenCountRequest(p)
	r.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (r InputTokenCountRequest) MarshalJSON() ([]byte, error) {
	type plain InputTokenCountRequest
	return jsonx.MergeExtra(plain(r), r.Extra)
}

// InputTokenCountResponse is the input-token count answer.
type InputTokenCountResponse struct {
	Object      string `json:"object"`
	InputTokens int    `json:"input_tokens"`
}
