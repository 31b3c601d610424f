package claude

import (
	"encoding/json"

	"github.com/awsl-project/gproxy/internal/protocol/jsonx"
)

// CountTokensRequest is the POST /v1/messages/count_tokens body. It is the
// generate request without the sampling knobs.
type CountTokensRequest struct {
	Model      string          `json:"model"`
	Messages   []Message       `json:"messages"`
	System     *SystemPrompt   `json:"system,omitempty"`
	Tools      []Tool          `json:"tools,omitempty"`
	ToolChoice *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking   *ThinkingConfig `json:"thinking,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *CountTokensRequest) UnmarshalJSON(data []byte) error {
	type plain CountTokensRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = CountTokensRequest(p)
	r.Extra = jsonx.ExtraFields(data, p)
	return nil
}

func (r CountTokensRequest) MarshalJSON() ([]byte, error) {
	type plain CountTokensRequest
	return jsonx.MergeExtra(plain(r), r.Extra)
}

// CountTokensResponse is the token-count answer.
type CountTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}
