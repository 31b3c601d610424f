package gemini

import (
	"encoding/json"

	"github.com/awsl-project/gproxy/internal/protocol/jsonx"
)

// CountTokensRequest is the :countTokens body. Either Contents or a full
// GenerateContentRequest is supplied, not both.
type CountTokensRequest struct {
	Contents               []Content                 `json:"contents,omitempty"`
	GenerateContentRequest *QualifiedGenerateRequest `json:"generateContentRequest,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// QualifiedGenerateRequest is a generate request plus the model it is for,
// as nested inside countTokens. The embedded request has its own
// unmarshaler, so the model field is decoded separately.
type QualifiedGenerateRequest struct {
	Model string `json:"model,omitempty"`
	GenerateContentRequest
}

func (q *QualifiedGenerateRequest) UnmarshalJSON(data []byte) error {
	var model struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(data, &model); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &q.GenerateContentRequest); err != nil {
		return err
	}
	q.Model = model.Model
	return nil
}

func (q QualifiedGenerateRequest) MarshalJSON() ([]byte, error) {
	encoded, err := json.Marshal(q.GenerateContentRequest)
	if err != nil {
		return nil, err
	}
	if q.Model == "" {
		return encoded, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &merged); err != nil {
		return nil, err
	}
	model, err := json.Marshal(q.Model)
	if err != nil {
		return nil, err
	}
	merged["model"] = model
	return json.Marshal(merged)
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

// CountTokensResponse is the :countTokens answer.
type CountTokensResponse struct {
	TotalTokens             int             `json:"totalTokens"`
	CachedContentTokenCount int             `json:"cachedContentTokenCount,omitempty"`
	PromptTokensDetails     json.RawMessage `json:"promptTokensDetails,omitempty"`
}
